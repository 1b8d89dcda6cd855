package cosigner

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"

	client "github.com/cometbft/cometbft/rpc/jsonrpc/client"
	"github.com/relaykit/imasigner/src/types"
)

// KeyManagerConfig locates the key management service holding this node's BLS key share.
type KeyManagerConfig struct {
	URL          string
	KeyShareName string
	// CertFile and KeyFile are the optional client certificate presented to the service.
	CertFile           string
	KeyFile            string
	InsecureSkipVerify bool
}

// KeyManager signs hashes with the local key share through the key management service.
type KeyManager struct {
	address      string
	keyShareName string
	client       *client.Client
}

func NewKeyManager(cfg KeyManagerConfig) (*KeyManager, error) {
	if cfg.URL == "" {
		return nil, types.NewConfigurationError("key manager URL is not set")
	}
	if cfg.KeyShareName == "" {
		return nil, types.NewConfigurationError("key manager key share name is not set")
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint: gosec
	}
	if cfg.CertFile != "" || cfg.KeyFile != "" {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return nil, types.NewConfigurationError("key manager client certificate needs both certFile and keyFile")
		}
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load key manager client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
			Proxy:           http.ProxyFromEnvironment,
		},
	}

	c, err := client.NewWithHTTPClient(cfg.URL, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create key manager client for %s: %w", cfg.URL, err)
	}

	return &KeyManager{
		address:      cfg.URL,
		keyShareName: cfg.KeyShareName,
		client:       c,
	}, nil
}

func (km *KeyManager) GetAddress() string {
	return km.address
}

// BLSSignMessageHash signs messageHash with the configured key share.
// The result is returned as reported, callers decide whether it carries a usable share.
func (km *KeyManager) BLSSignMessageHash(ctx context.Context, messageHash string, t, n int) (*SignResult, error) {
	params := map[string]interface{}{
		"keyShareName": km.keyShareName,
		"messageHash":  types.Strip0x(messageHash),
		"n":            int32(n),
		"t":            int32(t),
	}

	res := new(SignResult)
	if _, err := km.client.Call(ctx, MethodBLSSignMessageHash, params, res); err != nil {
		return nil, fmt.Errorf("%s: %w", MethodBLSSignMessageHash, err)
	}
	if res.SignatureShare == "" && res.Status == StatusOK && res.ErrorMessage == "" {
		return nil, errors.New("key manager returned an empty result")
	}
	return res, nil
}
