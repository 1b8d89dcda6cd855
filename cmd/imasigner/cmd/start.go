package cmd

import (
	"context"
	"os"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/cometbft/cometbft/libs/service"
	"github.com/relaykit/imasigner/src/cosigner"
	"github.com/relaykit/imasigner/src/node"
	"github.com/spf13/cobra"
)

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "start",
		Short:        "Start the inbound signing server",
		Long:         "Answer skale_imaVerifyAndSign and skale_imaBSU256 requests of the committee with the local key share",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			logger, err := newLogger(out)
			if err != nil {
				return err
			}

			if err := RequireNotRunning(logger, cfg.PidFile); err != nil {
				return err
			}

			if err := cfg.Config.ValidateServerConfig(); err != nil {
				return err
			}

			// create all directories up to the state directory
			if err := os.MkdirAll(cfg.StateDir, 0700); err != nil {
				return err
			}

			logger.Info(
				"IMA Signer",
				"listen", cfg.Config.ListenAddr,
				"committee", cfg.CommitteeFilePath(),
				"strict_precheck", cfg.Config.Signing.StrictPrecheck,
			)

			inbound, closeVerifiers, err := newInboundSigner(logger, true)
			if err != nil {
				return err
			}
			defer closeVerifiers()

			timeout, err := cfg.Config.Signing.RPCTimeoutDuration()
			if err != nil {
				return err
			}

			srv := cosigner.NewServer(&cosigner.ServerConfig{
				Logger:        logger.With("module", "cosigner_server"),
				ListenAddress: cfg.Config.ListenAddr,
				Handler:       inbound,
				Timeout:       timeout,
			})
			if err := srv.Start(); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go EnableDebugAndMetrics(ctx, logger, cfg.Config.DebugAddr)

			WaitAndTerminate(logger, []service.Service{srv}, cfg.PidFile)
			return nil
		},
	}
}

// newInboundSigner wires the local key share, the committee snapshot and the pre-check.
// The key manager is optional unless withKeyManager is set.
func newInboundSigner(logger log.Logger, withKeyManager bool) (*node.InboundSigner, func(), error) {
	directory, err := loadCommittee()
	if err != nil {
		return nil, nil, err
	}

	provider, err := newProvider(logger)
	if err != nil {
		return nil, nil, err
	}

	var keyManager node.IKeyManager
	if withKeyManager || cfg.Config.SGX != nil {
		kmConfig, err := cfg.KeyManagerConfig()
		if err != nil {
			return nil, nil, err
		}
		km, err := cosigner.NewKeyManager(kmConfig)
		if err != nil {
			return nil, nil, err
		}
		keyManager = km
	}

	prechecker, closeVerifiers, err := newPrechecker(logger)
	if err != nil {
		return nil, nil, err
	}

	inbound, err := node.NewInboundSigner(node.InboundConfig{
		Logger:         logger.With("module", "inbound"),
		KeyManager:     keyManager,
		Committee:      directory,
		Provider:       provider,
		Prechecker:     prechecker,
		ScalarHashMode: cfg.Config.Signing.HashMode(),
	})
	if err != nil {
		closeVerifiers()
		return nil, nil, err
	}
	return inbound, closeVerifiers, nil
}
