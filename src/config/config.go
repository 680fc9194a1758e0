package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/meshnetworks/relay/src/common"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultPeersFile is the default name of the optional JSON file containing
	// bootstrap peers, read once at startup before the first directory load.
	DefaultPeersFile = "peers.json"

	// DefaultLogFile is the default name of the log file written when file
	// logging is enabled.
	DefaultLogFile = "relay.log"
)

// Default configuration values.
const (
	DefaultLogLevel             = "debug"
	DefaultHost                 = "127.0.0.1"
	DefaultPort                 = 3000
	DefaultSeedAddr             = "127.0.0.1:4000"
	DefaultServiceAddr          = "127.0.0.1:8080"
	DefaultPingInterval         = 30 * time.Second
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultHealthCheckInterval  = 60 * time.Second
	DefaultProbeLimit           = 16
	DefaultSeedTimeout          = 5 * time.Second
	DefaultTxTimeout            = 10 * time.Second
	DefaultCriticalTimeout      = 15 * time.Second
	DefaultQueryTimeout         = 5 * time.Second
)

// Config contains all the configuration properties of a relay node.
type Config struct {
	// DataDir is the top-level directory containing relay configuration and
	// data (bootstrap peers file, log file).
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile enables an additional file destination for log output, written
	// to DefaultLogFile inside DataDir.
	LogFile bool `mapstructure:"logfile"`

	// Host is the externally visible host of this node.
	Host string `mapstructure:"host"`

	// Port is the externally visible port of this node.
	Port int `mapstructure:"port"`

	// SeedAddr is the host:port of the seed node this node registers with and
	// fetches its peer list from.
	SeedAddr string `mapstructure:"seed"`

	// ServiceAddr is the address:port of the HTTP API service.
	ServiceAddr string `mapstructure:"service-listen"`

	// PingInterval is the frequency of the liveness ping to the seed node.
	PingInterval time.Duration `mapstructure:"ping-interval"`

	// ReconnectInterval is the frequency of reconnection attempts after the
	// seed-node connection is lost. It is independent of PingInterval.
	ReconnectInterval time.Duration `mapstructure:"reconnect-interval"`

	// MaxReconnectAttempts bounds the number of consecutive reconnection
	// attempts before the node gives up until the next connection failure.
	MaxReconnectAttempts int `mapstructure:"max-reconnect-attempts"`

	// HealthCheckInterval is the frequency of the validator health sweep. It
	// is lower-priority telemetry, so the default is much longer than
	// PingInterval.
	HealthCheckInterval time.Duration `mapstructure:"health-interval"`

	// ProbeLimit bounds the number of concurrent probes during a health sweep.
	ProbeLimit int `mapstructure:"probe-limit"`

	// SeedTimeout applies to calls against the seed node, and to individual
	// peer liveness probes.
	SeedTimeout time.Duration `mapstructure:"seed-timeout"`

	// TxTimeout applies to transaction and batch dispatches.
	TxTimeout time.Duration `mapstructure:"tx-timeout"`

	// CriticalTimeout applies to critical-process dispatches, which are
	// expected to be more expensive for validators to ingest.
	CriticalTimeout time.Duration `mapstructure:"critical-timeout"`

	// QueryTimeout applies to pull-style status and mempool queries.
	QueryTimeout time.Duration `mapstructure:"query-timeout"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:              DefaultDataDir(),
		LogLevel:             DefaultLogLevel,
		Host:                 DefaultHost,
		Port:                 DefaultPort,
		SeedAddr:             DefaultSeedAddr,
		ServiceAddr:          DefaultServiceAddr,
		PingInterval:         DefaultPingInterval,
		ReconnectInterval:    DefaultReconnectInterval,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		HealthCheckInterval:  DefaultHealthCheckInterval,
		ProbeLimit:           DefaultProbeLimit,
		SeedTimeout:          DefaultSeedTimeout,
		TxTimeout:            DefaultTxTimeout,
		CriticalTimeout:      DefaultCriticalTimeout,
		QueryTimeout:         DefaultQueryTimeout,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	return config
}

// Addr returns the externally visible host:port address of this node.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PeersFile returns the full path of the optional bootstrap peers file.
func (c *Config) PeersFile() string {
	return filepath.Join(c.DataDir, DefaultPeersFile)
}

// Logger returns a formatted logrus Entry, with prefix set to "relay".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile {
			path := filepath.Join(c.DataDir, DefaultLogFile)
			if _, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666); err != nil {
				c.logger.WithError(err).Warnf("Failed to open %s, using stderr only", path)
			} else {
				c.logger.Hooks.Add(lfshook.NewHook(
					lfshook.PathMap{
						logrus.InfoLevel:  path,
						logrus.WarnLevel:  path,
						logrus.ErrorLevel: path,
					},
					&logrus.TextFormatter{},
				))
			}
		}
	}
	return c.logger.WithField("prefix", "relay")
}

// DefaultDataDir returns the default directory name for top-level relay
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Relay")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Relay")
		} else {
			return filepath.Join(home, ".relay")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
