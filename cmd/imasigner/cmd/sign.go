package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/relaykit/imasigner/src/cosigner"
	"github.com/relaykit/imasigner/src/node"
	"github.com/relaykit/imasigner/src/tss"
	"github.com/relaykit/imasigner/src/types"
	"github.com/spf13/cobra"
)

const (
	flagFile          = "file"
	flagValue         = "value"
	flagCorrelationID = "correlation-id"
)

func signCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Collect threshold BLS signatures from the committee",
	}
	cmd.AddCommand(signMessagesCmd())
	cmd.AddCommand(signScalarCmd())
	cmd.AddCommand(signHashCmd())
	return cmd
}

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify BLS signature shares",
	}
	cmd.AddCommand(verifyHashCmd())
	return cmd
}

// signOutput is the printed form of a signing outcome.
type signOutput struct {
	Unsigned   bool         `json:"unsigned,omitempty"`
	Signature  *tss.G1Point `json:"signature,omitempty"`
	Hash       string       `json:"hash,omitempty"`
	HashPoint  *tss.G1Point `json:"hashPoint,omitempty"`
	Hint       string       `json:"hint,omitempty"`
	StartIndex *uint64      `json:"startMessageIdx,omitempty"`
	Count      int          `json:"count,omitempty"`
	Value      string       `json:"value,omitempty"`
}

func printOutcome(out io.Writer, o node.Outcome) error {
	if o.Err != nil {
		return o.Err
	}

	var res signOutput
	if o.Batch != nil {
		start := o.Batch.StartIndex
		res.StartIndex = &start
		res.Count = o.Batch.Len()
	}
	if o.Value != nil {
		res.Value = o.Value.String()
	}
	if o.Result == nil {
		res.Unsigned = true
	} else {
		res.Signature = &o.Result.Signature
		res.Hash = o.Result.SourceHash
		res.HashPoint = &o.Result.HashPoint
		res.Hint = o.Result.Hint
	}

	return printJSON(out, res)
}

func printJSON(out io.Writer, v interface{}) error {
	bz, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(bz))
	return err
}

// readBatchFile reads a batch in the skale_imaVerifyAndSign parameter format.
func readBatchFile(path string) (types.Direction, *types.MessageBatch, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read batch file %s: %w", path, err)
	}

	var req cosigner.VerifyAndSignRequest
	if err := json.Unmarshal(bz, &req); err != nil {
		return "", nil, fmt.Errorf("failed to parse batch file %s: %w", path, err)
	}
	return req.ToBatch()
}

func signMessagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "messages",
		Short:        "Sign a message batch read from a file",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString(flagFile)
			correlationID, _ := cmd.Flags().GetString(flagCorrelationID)

			direction, batch, err := readBatchFile(file)
			if err != nil {
				return err
			}

			logger, err := newLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			directory, err := loadCommittee()
			if err != nil {
				return err
			}
			info, err := directory.Info()
			if err != nil {
				return err
			}

			s, closeVerifiers, err := newThresholdSigner(logger)
			if err != nil {
				return err
			}
			defer closeVerifiers()

			ch, err := s.SignMessages(cmd.Context(), node.MessagesRequest{
				Direction:     direction,
				Batch:         batch,
				Committee:     info,
				CorrelationID: correlationID,
			})
			if err != nil {
				return err
			}
			return printOutcome(cmd.OutOrStdout(), <-ch)
		},
	}
	cmd.Flags().StringP(flagFile, "f", "", "JSON file with direction, startMessageIdx, chain names and messages")
	cmd.Flags().String(flagCorrelationID, "", "correlation id attached to every share request")
	_ = cmd.MarkFlagRequired(flagFile)
	return cmd
}

func signScalarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "scalar",
		Short:        "Sign a 256 bit value",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString(flagValue)
			correlationID, _ := cmd.Flags().GetString(flagCorrelationID)

			value, err := types.ParseScalar(raw)
			if err != nil {
				return err
			}

			logger, err := newLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			directory, err := loadCommittee()
			if err != nil {
				return err
			}
			info, err := directory.Info()
			if err != nil {
				return err
			}

			s, closeVerifiers, err := newThresholdSigner(logger)
			if err != nil {
				return err
			}
			defer closeVerifiers()

			ch, err := s.SignScalar(cmd.Context(), node.ScalarRequest{
				Value:         value,
				Committee:     info,
				CorrelationID: correlationID,
			})
			if err != nil {
				return err
			}
			return printOutcome(cmd.OutOrStdout(), <-ch)
		},
	}
	cmd.Flags().String(flagValue, "", "decimal or 0x hex value to sign")
	cmd.Flags().String(flagCorrelationID, "", "correlation id attached to every share request")
	_ = cmd.MarkFlagRequired(flagValue)
	return cmd
}

func signHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "hash [hash]",
		Short:        "Sign an already computed hash with the local key share",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			inbound, closeVerifiers, err := newInboundSigner(logger, true)
			if err != nil {
				return err
			}
			defer closeVerifiers()

			res, err := inbound.SignReadyHash(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if _, err := res.Candidate(); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func verifyHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "hash [hash] [member-index] [share]",
		Short:        "Verify the signature share of a committee member over an already computed hash",
		Args:         cobra.ExactArgs(3),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid member index %q: %w", args[1], err)
			}

			logger, err := newLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			inbound, closeVerifiers, err := newInboundSigner(logger, false)
			if err != nil {
				return err
			}
			defer closeVerifiers()

			if err := inbound.VerifyReadyHash(cmd.Context(), args[0], index, args[2]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signature share of member %d is valid\n", index)
			return nil
		},
	}
}
