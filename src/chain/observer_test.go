package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/relaykit/imasigner/src/types"
	"github.com/stretchr/testify/require"
)

func TestStaticObserverRoundRobin(t *testing.T) {
	o, err := NewStaticObserver([]Chain{
		{Name: "Mainnet", RPCURLs: []string{"http://a", "http://b"}},
		{Name: "elated-tan-skat", RPCURLs: []string{"http://c"}},
	})
	require.NoError(t, err)

	var got []string
	for i := 0; i < 5; i++ {
		url, err := o.PickLiveEndpoint("Mainnet")
		require.NoError(t, err)
		got = append(got, url)
	}
	require.Equal(t, []string{"http://a", "http://b", "http://a", "http://b", "http://a"}, got)

	url, err := o.PickLiveEndpoint("elated-tan-skat")
	require.NoError(t, err)
	require.Equal(t, "http://c", url)

	var cfgErr *types.ConfigurationError
	_, err = o.PickLiveEndpoint("unknown")
	require.ErrorAs(t, err, &cfgErr)
}

func TestNewStaticObserverValidation(t *testing.T) {
	tests := []struct {
		name   string
		chains []Chain
	}{
		{"no name", []Chain{{RPCURLs: []string{"http://a"}}}},
		{"no endpoints", []Chain{{Name: "Mainnet"}}},
		{"duplicate", []Chain{
			{Name: "Mainnet", RPCURLs: []string{"http://a"}},
			{Name: "Mainnet", RPCURLs: []string{"http://b"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStaticObserver(tt.chains)
			var cfgErr *types.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestVerifiersDialOncePerEndpoint(t *testing.T) {
	o, err := NewStaticObserver([]Chain{
		{Name: "Mainnet", RPCURLs: []string{"http://a", "http://b"}, MessageProxy: proxyAddress},
		{Name: "no-proxy", RPCURLs: []string{"http://c"}},
	})
	require.NoError(t, err)

	dialed := make(map[string]int)
	dial := func(_ context.Context, _ log.Logger, url string, proxy common.Address) (*MessageProxyVerifier, error) {
		dialed[url]++
		require.Equal(t, proxyAddress, proxy)
		if url == "http://b" {
			return nil, errors.New("connection refused")
		}
		return NewMessageProxyVerifier(newFakeCaller(t, true), proxy)
	}

	r := NewVerifiers(log.NewNopLogger(), o, dial)
	defer r.Close()

	_, err = r.ForChain(context.Background(), "Mainnet")
	require.NoError(t, err)
	_, err = r.ForChain(context.Background(), "Mainnet")
	require.ErrorContains(t, err, "connection refused")
	_, err = r.ForChain(context.Background(), "Mainnet")
	require.NoError(t, err)

	require.Equal(t, map[string]int{"http://a": 1, "http://b": 1}, dialed)

	var cfgErr *types.ConfigurationError
	_, err = r.ForChain(context.Background(), "no-proxy")
	require.ErrorAs(t, err, &cfgErr)
}
