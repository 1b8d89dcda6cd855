package cmd

import (
	"fmt"
	"os"

	"github.com/relaykit/imasigner/src/config"
	"github.com/spf13/cobra"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Commands to configure the imasigner",
	}
	cmd.AddCommand(initCmd())
	return cmd
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "init",
		Aliases: []string{"i"},
		Short:   "initialize configuration file and home directory if one doesn't already exist",
		Long: "initialize configuration file, use flags to point it at the committee snapshot,\n" +
			"the key management service and the BLS tools.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cmdFlags := cmd.Flags()
			overwrite, _ := cmdFlags.GetBool("overwrite")

			if _, err := os.Stat(cfg.ConfigFile); !os.IsNotExist(err) && !overwrite {
				return fmt.Errorf("%s already exists. Provide the -o flag to overwrite the existing config",
					cfg.ConfigFile)
			}

			c := config.DefaultConfig()

			if listen, _ := cmdFlags.GetString("listen"); listen != "" {
				c.ListenAddr = listen
			}
			c.DebugAddr, _ = cmdFlags.GetString("debug-addr")
			if committeeFile, _ := cmdFlags.GetString("committee"); committeeFile != "" {
				c.CommitteeFile = committeeFile
			}
			c.Tools.Dir, _ = cmdFlags.GetString("tools-dir")
			c.Signing.StrictPrecheck, _ = cmdFlags.GetBool("strict-precheck")
			c.Signing.StepInterval, _ = cmdFlags.GetString("step-interval")
			c.Signing.MaxSteps, _ = cmdFlags.GetInt("max-steps")
			c.Signing.RPCTimeout, _ = cmdFlags.GetString("rpc-timeout")

			if sgxURL, _ := cmdFlags.GetString("sgx-url"); sgxURL != "" {
				keyShare, _ := cmdFlags.GetString("key-share")
				certFile, _ := cmdFlags.GetString("sgx-cert")
				keyFile, _ := cmdFlags.GetString("sgx-key")
				c.SGX = &config.SGXConfig{
					URL:          sgxURL,
					KeyShareName: keyShare,
					CertFile:     certFile,
					KeyFile:      keyFile,
				}
				err = c.ValidateServerConfig()
			} else {
				err = c.ValidateSignerConfig()
			}
			if err != nil {
				return err
			}

			// silence usage after all input has been validated
			cmd.SilenceUsage = true

			// create all directories up to the state directory
			if err = os.MkdirAll(cfg.StateDir, 0700); err != nil {
				return err
			}
			cfg.Config = c
			if err = cfg.WriteConfigFile(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Successfully initialized configuration: %s\n", cfg.ConfigFile)
			return nil
		},
	}
	cmd.Flags().StringP("listen", "l", config.DefaultListenAddr, "listen address of the inbound signing server")
	cmd.Flags().StringP("debug-addr", "d", config.DefaultDebugAddr,
		"listen address for Debug and Prometheus metrics in format localhost:8543")
	cmd.Flags().StringP("committee", "c", config.DefaultCommitteeFile,
		"committee snapshot file, relative paths are resolved against the home directory")
	cmd.Flags().String("tools-dir", "", "directory holding the BLS glue, hash and verify tools (default is $PATH)")
	cmd.Flags().String("sgx-url", "", "key management service url, required to answer signing requests")
	cmd.Flags().String("key-share", "", "name of this node's BLS key share in the key management service")
	cmd.Flags().String("sgx-cert", "", "client certificate for the key management service")
	cmd.Flags().String("sgx-key", "", "client certificate key for the key management service")
	cmd.Flags().Bool("strict-precheck", false, "refuse to sign batches the source chain does not confirm")
	cmd.Flags().String("step-interval", config.DefaultStepInterval.String(),
		"signature share wait step, accepts valid duration strings for Go's time.ParseDuration() e.g. 500ms")
	cmd.Flags().Int("max-steps", config.DefaultMaxSteps, "number of wait steps before giving up on the quorum")
	cmd.Flags().String("rpc-timeout", config.DefaultRPCTimeout.String(), "timeout of a single signature share request")
	cmd.Flags().BoolP("overwrite", "o", false, "set to overwrite an existing config.yaml")
	return cmd
}
