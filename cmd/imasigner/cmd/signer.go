package cmd

import (
	"net/http"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/relaykit/imasigner/src/chain"
	"github.com/relaykit/imasigner/src/committee"
	"github.com/relaykit/imasigner/src/node"
	"github.com/relaykit/imasigner/src/tss"
)

func loadCommittee() (*committee.Directory, error) {
	file, err := cfg.CommitteeFileExists()
	if err != nil {
		return nil, err
	}
	return committee.LoadSnapshot(file)
}

func newProvider(logger log.Logger) (*tss.BLSTools, error) {
	return tss.NewBLSTools(logger.With("module", "tss"), cfg.ToolsConfig())
}

// newPrechecker returns a pre-check over the configured chains. Without chains every
// S2M and S2S batch is reported as unverifiable.
func newPrechecker(logger log.Logger) (*node.Prechecker, func(), error) {
	var source node.VerifierSource
	closer := func() {}

	if chains := cfg.Config.Chains.Chains(); len(chains) > 0 {
		observer, err := chain.NewStaticObserver(chains)
		if err != nil {
			return nil, nil, err
		}
		verifiers := chain.NewVerifiers(logger.With("module", "chain"), observer, nil)
		source = verifiers
		closer = verifiers.Close
	}

	return node.NewPrechecker(logger.With("module", "precheck"), source, cfg.Config.Signing.StrictPrecheck), closer, nil
}

// newThresholdSigner wires the outbound signer from the loaded config.
func newThresholdSigner(logger log.Logger) (*node.ThresholdSigner, func(), error) {
	if err := cfg.Config.ValidateSignerConfig(); err != nil {
		return nil, nil, err
	}

	signing := cfg.Config.Signing
	stepInterval, err := signing.StepIntervalDuration()
	if err != nil {
		return nil, nil, err
	}
	rpcTimeout, err := signing.RPCTimeoutDuration()
	if err != nil {
		return nil, nil, err
	}

	provider, err := newProvider(logger)
	if err != nil {
		return nil, nil, err
	}

	prechecker, closeVerifiers, err := newPrechecker(logger)
	if err != nil {
		return nil, nil, err
	}

	s, err := node.NewThresholdSigner(node.SignerConfig{
		Logger:         logger.With("module", "signer"),
		Provider:       provider,
		Dial:           node.RemoteDialer(&http.Client{}),
		Prechecker:     prechecker,
		Disabled:       signing.Disabled,
		StepInterval:   stepInterval,
		MaxSteps:       signing.Steps(),
		RPCTimeout:     rpcTimeout,
		ScalarHashMode: signing.HashMode(),
		OnProgress: func(p node.Progress) {
			logger.Info(
				"Signature shares",
				"received", p.Received,
				"quorum", p.QuorumTarget,
				"successes", p.Successes,
				"errors", p.Errors,
			)
		},
	})
	if err != nil {
		closeVerifiers()
		return nil, nil, err
	}
	return s, closeVerifiers, nil
}
