package config

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestDefaultConfig(t *testing.T) {
	c := NewDefaultConfig()

	if c.Addr() != "127.0.0.1:3000" {
		t.Fatalf("default address should be 127.0.0.1:3000, not %s", c.Addr())
	}
	if c.SeedAddr != DefaultSeedAddr {
		t.Fatalf("unexpected seed address: %s", c.SeedAddr)
	}
	if c.PingInterval != DefaultPingInterval {
		t.Fatalf("unexpected ping interval: %s", c.PingInterval)
	}
	if c.MaxReconnectAttempts != DefaultMaxReconnectAttempts {
		t.Fatalf("unexpected max reconnect attempts: %d", c.MaxReconnectAttempts)
	}
	if c.HealthCheckInterval <= c.PingInterval {
		t.Fatal("health sweep should be less frequent than the seed ping")
	}
}

func TestLogLevel(t *testing.T) {
	if LogLevel("warn") != logrus.WarnLevel {
		t.Fatal("warn should parse to WarnLevel")
	}
	if LogLevel("nonsense") != logrus.DebugLevel {
		t.Fatal("unknown levels should fall back to DebugLevel")
	}
}

func TestLogger(t *testing.T) {
	c := NewTestConfig(t)

	entry := c.Logger()
	if entry == nil {
		t.Fatal("Logger() should never return nil")
	}

	entry.Debug("logger wired")
}
