package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/relaykit/imasigner/src/chain"
	"github.com/relaykit/imasigner/src/cosigner"
	"github.com/relaykit/imasigner/src/tss"
	"github.com/relaykit/imasigner/src/types"
	"gopkg.in/yaml.v2"
)

const (
	DefaultListenAddr     = "tcp://0.0.0.0:15000"
	DefaultDebugAddr      = "127.0.0.1:8543"
	DefaultCommitteeFile  = "committee.yaml"
	DefaultStepInterval   = 500 * time.Millisecond
	DefaultMaxSteps       = 1800
	DefaultRPCTimeout     = 30 * time.Second
	DefaultToolsMaxActive = 8
)

// Config maps to the on-disk yaml format
type Config struct {
	LogLevel      string        `yaml:"logLevel,omitempty"`
	ListenAddr    string        `yaml:"listenAddr"`
	DebugAddr     string        `yaml:"debugAddr,omitempty"`
	CommitteeFile string        `yaml:"committeeFile"`
	Signing       SigningConfig `yaml:"signing"`
	Tools         ToolsConfig   `yaml:"tools"`
	SGX           *SGXConfig    `yaml:"sgx,omitempty"`
	Chains        ChainsConfig  `yaml:"chains,omitempty"`
}

// DefaultConfig is written by `config init`.
func DefaultConfig() Config {
	return Config{
		LogLevel:      "info",
		ListenAddr:    DefaultListenAddr,
		DebugAddr:     DefaultDebugAddr,
		CommitteeFile: DefaultCommitteeFile,
		Signing: SigningConfig{
			StepInterval:   DefaultStepInterval.String(),
			MaxSteps:       DefaultMaxSteps,
			RPCTimeout:     DefaultRPCTimeout.String(),
			ScalarHashMode: string(types.ScalarHashDigest),
		},
		Tools: ToolsConfig{
			Glue:          tss.DefaultGlueTool,
			HashToCurve:   tss.DefaultHashToCurveTool,
			Verify:        tss.DefaultVerifyTool,
			MaxConcurrent: DefaultToolsMaxActive,
		},
	}
}

func (c *Config) MustMarshalYaml() []byte {
	out, err := yaml.Marshal(c)
	if err != nil {
		panic(err)
	}
	return out
}

// ValidateSignerConfig checks everything needed to request and aggregate signatures.
func (c *Config) ValidateSignerConfig() error {
	if c.CommitteeFile == "" {
		return fmt.Errorf("committeeFile can't be empty")
	}
	if err := c.Signing.Validate(); err != nil {
		return err
	}
	if c.Tools.MaxConcurrent < 0 {
		return fmt.Errorf("tools.maxConcurrent (%d) can't be negative", c.Tools.MaxConcurrent)
	}
	return c.Chains.Validate()
}

// ValidateServerConfig additionally checks what the inbound server needs.
func (c *Config) ValidateServerConfig() error {
	if err := c.ValidateSignerConfig(); err != nil {
		return err
	}
	if _, err := url.Parse(c.ListenAddr); err != nil {
		return fmt.Errorf("failed to parse listenAddr: %w", err)
	}
	if c.SGX == nil {
		return fmt.Errorf("sgx config can't be empty")
	}
	return c.SGX.Validate()
}

type SigningConfig struct {
	// Disabled passes batches through unsigned after the pre-check.
	Disabled bool `yaml:"disabled"`
	// StrictPrecheck aborts a batch the source chain could not confirm.
	StrictPrecheck bool   `yaml:"strictPrecheck"`
	StepInterval   string `yaml:"stepInterval"`
	MaxSteps       int    `yaml:"maxSteps"`
	RPCTimeout     string `yaml:"rpcTimeout"`
	ScalarHashMode string `yaml:"scalarHashMode"`
}

func parseDuration(name, s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, s)
	}
	return d, nil
}

func (s SigningConfig) StepIntervalDuration() (time.Duration, error) {
	return parseDuration("stepInterval", s.StepInterval, DefaultStepInterval)
}

func (s SigningConfig) RPCTimeoutDuration() (time.Duration, error) {
	return parseDuration("rpcTimeout", s.RPCTimeout, DefaultRPCTimeout)
}

func (s SigningConfig) Steps() int {
	if s.MaxSteps == 0 {
		return DefaultMaxSteps
	}
	return s.MaxSteps
}

func (s SigningConfig) HashMode() types.ScalarHashMode {
	if s.ScalarHashMode == "" {
		return types.ScalarHashDigest
	}
	return types.ScalarHashMode(s.ScalarHashMode)
}

func (s SigningConfig) Validate() error {
	if _, err := s.StepIntervalDuration(); err != nil {
		return err
	}
	if _, err := s.RPCTimeoutDuration(); err != nil {
		return err
	}
	if s.MaxSteps < 0 {
		return fmt.Errorf("maxSteps (%d) can't be negative", s.MaxSteps)
	}
	return s.HashMode().Validate()
}

// ToolsConfig is the on disk format of the external BLS tools location.
type ToolsConfig struct {
	Dir           string `yaml:"dir,omitempty"`
	Glue          string `yaml:"glue,omitempty"`
	HashToCurve   string `yaml:"hashToCurve,omitempty"`
	Verify        string `yaml:"verify,omitempty"`
	MaxConcurrent int    `yaml:"maxConcurrent,omitempty"`
	TempDir       string `yaml:"tempDir,omitempty"`
}

// SGXConfig is the on disk format of the key management service connection.
type SGXConfig struct {
	URL                string `yaml:"url"`
	KeyShareName       string `yaml:"keyShareName"`
	CertFile           string `yaml:"certFile,omitempty"`
	KeyFile            string `yaml:"keyFile,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify,omitempty"`
}

func (s *SGXConfig) Validate() error {
	if s.URL == "" {
		return fmt.Errorf("sgx url can't be empty")
	}
	if _, err := url.Parse(s.URL); err != nil {
		return fmt.Errorf("failed to parse sgx url: %w", err)
	}
	if s.KeyShareName == "" {
		return fmt.Errorf("sgx keyShareName can't be empty")
	}
	if (s.CertFile == "") != (s.KeyFile == "") {
		return fmt.Errorf("sgx certFile and keyFile must be set together")
	}
	return nil
}

type ChainConfig struct {
	Name         string   `yaml:"name"`
	ChainID      string   `yaml:"chainID,omitempty"`
	RPCURLs      []string `yaml:"rpcURLs"`
	MessageProxy string   `yaml:"messageProxy"`
}

func (cc ChainConfig) Validate() error {
	if cc.Name == "" {
		return fmt.Errorf("chain name can't be empty")
	}
	if len(cc.RPCURLs) == 0 {
		return fmt.Errorf("chain %s has no rpcURLs", cc.Name)
	}
	for _, u := range cc.RPCURLs {
		if _, err := url.Parse(u); err != nil {
			return fmt.Errorf("failed to parse chain %s rpc url: %w", cc.Name, err)
		}
	}
	if cc.MessageProxy != "" && !common.IsHexAddress(cc.MessageProxy) {
		return fmt.Errorf("chain %s messageProxy %q is not an address", cc.Name, cc.MessageProxy)
	}
	return nil
}

type ChainsConfig []ChainConfig

func (ccs ChainsConfig) Validate() error {
	seen := make(map[string]bool, len(ccs))
	for _, cc := range ccs {
		if err := cc.Validate(); err != nil {
			return err
		}
		if seen[cc.Name] {
			return fmt.Errorf("found duplicate chain %s", cc.Name)
		}
		seen[cc.Name] = true
	}
	return nil
}

func (ccs ChainsConfig) Chains() []chain.Chain {
	out := make([]chain.Chain, 0, len(ccs))
	for _, cc := range ccs {
		c := chain.Chain{
			Name:    cc.Name,
			ChainID: cc.ChainID,
			RPCURLs: cc.RPCURLs,
		}
		if cc.MessageProxy != "" {
			c.MessageProxy = common.HexToAddress(cc.MessageProxy)
		}
		out = append(out, c)
	}
	return out
}

type RuntimeConfig struct {
	HomeDir    string
	ConfigFile string
	StateDir   string
	PidFile    string
	Config     Config
}

// resolve makes relative paths relative to the home directory.
func (c RuntimeConfig) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.HomeDir, p)
}

func (c RuntimeConfig) CommitteeFilePath() string {
	return c.resolve(c.Config.CommitteeFile)
}

func (c RuntimeConfig) CommitteeFileExists() (string, error) {
	file := c.CommitteeFilePath()
	return file, fileExists(file)
}

func (c RuntimeConfig) ToolsConfig() tss.ToolsConfig {
	tools := c.Config.Tools
	return tss.ToolsConfig{
		Dir:           c.resolve(tools.Dir),
		Glue:          tools.Glue,
		HashToCurve:   tools.HashToCurve,
		Verify:        tools.Verify,
		TempDir:       c.resolve(tools.TempDir),
		MaxConcurrent: tools.MaxConcurrent,
	}
}

func (c RuntimeConfig) KeyManagerConfig() (cosigner.KeyManagerConfig, error) {
	if c.Config.SGX == nil {
		return cosigner.KeyManagerConfig{}, fmt.Errorf("sgx config can't be empty")
	}
	sgx := c.Config.SGX
	return cosigner.KeyManagerConfig{
		URL:                sgx.URL,
		KeyShareName:       sgx.KeyShareName,
		CertFile:           c.resolve(sgx.CertFile),
		KeyFile:            c.resolve(sgx.KeyFile),
		InsecureSkipVerify: sgx.InsecureSkipVerify,
	}, nil
}

func (c RuntimeConfig) WriteConfigFile() error {
	return os.WriteFile(c.ConfigFile, c.Config.MustMarshalYaml(), 0600)
}

func fileExists(file string) error {
	stat, err := os.Stat(file)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file doesn't exist at path (%s): %w", file, err)
		}
		return fmt.Errorf("unexpected error checking file existence (%s): %w", file, err)
	}
	if stat.IsDir() {
		return fmt.Errorf("path is not a file (%s)", file)
	}

	return nil
}
