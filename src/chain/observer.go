package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/relaykit/imasigner/src/types"
)

// Chain describes a chain the signer may have to check messages against.
type Chain struct {
	Name         string
	ChainID      string
	RPCURLs      []string
	MessageProxy common.Address
}

// NetworkObserver picks an endpoint of a chain that is believed to be reachable.
type NetworkObserver interface {
	PickLiveEndpoint(chainName string) (string, error)
}

var _ NetworkObserver = &StaticObserver{}

// StaticObserver rotates through the configured endpoints of each chain.
type StaticObserver struct {
	mu     sync.Mutex
	chains map[string]*Chain
	next   map[string]int
}

func NewStaticObserver(chains []Chain) (*StaticObserver, error) {
	o := &StaticObserver{
		chains: make(map[string]*Chain, len(chains)),
		next:   make(map[string]int, len(chains)),
	}
	for i := range chains {
		c := chains[i]
		if c.Name == "" {
			return nil, types.NewConfigurationError("chain %d has no name", i)
		}
		if _, ok := o.chains[c.Name]; ok {
			return nil, types.NewConfigurationError("chain %s is configured twice", c.Name)
		}
		if len(c.RPCURLs) == 0 {
			return nil, types.NewConfigurationError("chain %s has no rpc endpoints", c.Name)
		}
		o.chains[c.Name] = &c
	}
	return o, nil
}

func (o *StaticObserver) PickLiveEndpoint(chainName string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	c, ok := o.chains[chainName]
	if !ok {
		return "", types.NewConfigurationError("chain %s is not configured", chainName)
	}
	i := o.next[chainName]
	o.next[chainName] = (i + 1) % len(c.RPCURLs)
	return c.RPCURLs[i], nil
}

// Chain returns the configuration of chainName.
func (o *StaticObserver) Chain(chainName string) (Chain, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	c, ok := o.chains[chainName]
	if !ok {
		return Chain{}, false
	}
	return *c, true
}

type DialFunc func(ctx context.Context, logger log.Logger, rpcURL string, proxy common.Address) (*MessageProxyVerifier, error)

// Verifiers hands out message proxy verifiers per chain, connecting on first use.
type Verifiers struct {
	logger   log.Logger
	observer *StaticObserver
	dial     DialFunc

	mu    sync.Mutex
	cache map[string]*MessageProxyVerifier
}

func NewVerifiers(logger log.Logger, observer *StaticObserver, dial DialFunc) *Verifiers {
	if dial == nil {
		dial = DialMessageProxyVerifier
	}
	return &Verifiers{
		logger:   logger,
		observer: observer,
		dial:     dial,
		cache:    make(map[string]*MessageProxyVerifier),
	}
}

// ForChain returns a verifier bound to a live endpoint of chainName.
func (r *Verifiers) ForChain(ctx context.Context, chainName string) (MessageVerifier, error) {
	url, err := r.observer.PickLiveEndpoint(chainName)
	if err != nil {
		return nil, err
	}
	return r.ForEndpoint(ctx, chainName, url)
}

// ForEndpoint returns a verifier for the message proxy of chainName reached through url.
func (r *Verifiers) ForEndpoint(ctx context.Context, chainName, url string) (MessageVerifier, error) {
	c, ok := r.observer.Chain(chainName)
	if !ok {
		return nil, types.NewConfigurationError("chain %s is not configured", chainName)
	}
	if c.MessageProxy == (common.Address{}) {
		return nil, types.NewConfigurationError("chain %s has no message proxy address", chainName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.cache[url]; ok {
		return v, nil
	}

	v, err := r.dial(ctx, r.logger, url, c.MessageProxy)
	if err != nil {
		return nil, fmt.Errorf("chain %s: %w", chainName, err)
	}
	r.cache[url] = v
	return v, nil
}

func (r *Verifiers) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for url, v := range r.cache {
		v.Close()
		delete(r.cache, url)
	}
}
