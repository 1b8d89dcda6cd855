package version

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

const flagLong = "long"

// NewVersionCommand returns a command printing the version information, as JSON with --long.
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the application binary version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := NewInfo()

			long, _ := cmd.Flags().GetBool(flagLong)
			if !long {
				cmd.Print(info.String())
				return nil
			}

			bz, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(bz))
			return nil
		},
	}
	cmd.Flags().Bool(flagLong, false, "Print the version information as JSON")
	return cmd
}
