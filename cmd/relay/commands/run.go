package commands

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meshnetworks/relay/src/relay"
)

// NewRunCmd returns the command that starts a relay node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runRelay,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runRelay(cmd *cobra.Command, args []string) error {
	engine := relay.New(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

// AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().Bool("logfile", _config.LogFile, "Also write logs to a file in datadir")

	// Identity
	cmd.Flags().String("host", _config.Host, "Externally visible host of this node")
	cmd.Flags().Int("port", _config.Port, "Externally visible port of this node")

	// Seed node
	cmd.Flags().String("seed", _config.SeedAddr, "IP:Port of the seed node")
	cmd.Flags().Duration("ping-interval", _config.PingInterval, "Time between liveness pings to the seed node")
	cmd.Flags().Duration("reconnect-interval", _config.ReconnectInterval, "Time between reconnection attempts")
	cmd.Flags().Int("max-reconnect-attempts", _config.MaxReconnectAttempts, "Consecutive reconnection attempts before giving up")
	cmd.Flags().Duration("seed-timeout", _config.SeedTimeout, "Timeout of seed-node calls and liveness probes")

	// Peer directory
	cmd.Flags().Duration("health-interval", _config.HealthCheckInterval, "Time between validator health sweeps")
	cmd.Flags().Int("probe-limit", _config.ProbeLimit, "Max concurrent probes during a health sweep")

	// Broadcast
	cmd.Flags().Duration("tx-timeout", _config.TxTimeout, "Timeout of transaction and batch dispatches")
	cmd.Flags().Duration("critical-timeout", _config.CriticalTimeout, "Timeout of critical-process dispatches")
	cmd.Flags().Duration("query-timeout", _config.QueryTimeout, "Timeout of status and mempool queries")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for the HTTP API")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	_config.Logger().WithFields(logrus.Fields{
		"DataDir":              _config.DataDir,
		"LogLevel":             _config.LogLevel,
		"Addr":                 _config.Addr(),
		"SeedAddr":             _config.SeedAddr,
		"ServiceAddr":          _config.ServiceAddr,
		"PingInterval":         _config.PingInterval,
		"ReconnectInterval":    _config.ReconnectInterval,
		"MaxReconnectAttempts": _config.MaxReconnectAttempts,
		"HealthCheckInterval":  _config.HealthCheckInterval,
		"ProbeLimit":           _config.ProbeLimit,
		"TxTimeout":            _config.TxTimeout,
		"CriticalTimeout":      _config.CriticalTimeout,
		"QueryTimeout":         _config.QueryTimeout,
	}).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper. Values are resolved in
// order: explicit flags, RELAY_* environment variables, relay.toml in the
// datadir, then compiled-in defaults.
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all
	// other persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	viper.SetEnvPrefix("relay")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// first unmarshal to read from CLI flags and environment
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/relay.toml (.json, .yaml also work)
	viper.SetConfigName("relay")
	viper.AddConfigPath(_config.DataDir)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from the config file
	return viper.Unmarshal(_config)
}
