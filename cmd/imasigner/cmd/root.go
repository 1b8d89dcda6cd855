package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cometbft/cometbft/libs/log"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/relaykit/imasigner/src/config"
	"github.com/relaykit/imasigner/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

var (
	homeDir string
	cfg     config.RuntimeConfig
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imasigner",
		Short: "Threshold BLS signer for interchain message batches",
	}

	cmd.AddCommand(configCmd())
	cmd.AddCommand(startCmd())
	cmd.AddCommand(signCmd())
	cmd.AddCommand(verifyCmd())
	cmd.AddCommand(version.NewVersionCommand())

	cmd.PersistentFlags().StringVar(&homeDir, "home", "", "Directory for config and data (default is $HOME/.imasigner)")
	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	handleInitError(rootCmd().Execute())
}

func init() {
	cobra.OnInitialize(initConfig)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var home string
	if homeDir == "" {
		userHome, err := homedir.Dir()
		handleInitError(err)
		home = filepath.Join(userHome, ".imasigner")
	} else {
		home = homeDir
	}
	cfg = config.RuntimeConfig{
		HomeDir:    home,
		ConfigFile: filepath.Join(home, "config.yaml"),
		StateDir:   filepath.Join(home, "state"),
		PidFile:    filepath.Join(home, "imasigner.pid"),
		Config:     config.DefaultConfig(),
	}
	viper.SetConfigFile(cfg.ConfigFile)
	viper.SetEnvPrefix("imasigner")
	viper.AutomaticEnv()
	err := viper.ReadInConfig()
	if err != nil {
		fmt.Println("no config exists at default location", err)
		return
	}
	bz, err := os.ReadFile(viper.ConfigFileUsed())
	handleInitError(err)
	handleInitError(yaml.Unmarshal(bz, &cfg.Config))
	applyEnvOverrides(&cfg.Config)
}

// applyEnvOverrides lets IMASIGNER_* variables win over the scalar settings of the config file.
func applyEnvOverrides(c *config.Config) {
	if viper.IsSet("loglevel") {
		c.LogLevel = viper.GetString("loglevel")
	}
	if viper.IsSet("listenaddr") {
		c.ListenAddr = viper.GetString("listenaddr")
	}
	if viper.IsSet("debugaddr") {
		c.DebugAddr = viper.GetString("debugaddr")
	}
	if viper.IsSet("committeefile") {
		c.CommitteeFile = viper.GetString("committeefile")
	}
}

// newLogger builds the process logger, filtered by the configured log level.
func newLogger(out io.Writer) (log.Logger, error) {
	logger := log.NewTMLogger(log.NewSyncWriter(out))
	level := cfg.Config.LogLevel
	if level == "" {
		return logger, nil
	}
	option, err := log.AllowLevel(level)
	if err != nil {
		return nil, err
	}
	return log.NewFilter(logger, option), nil
}

func handleInitError(err error) {
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
