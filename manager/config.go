package manager

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zsiec/moqclient/session"
)

// Mode mirrors the manager's three operating modes; it is its own type
// (rather than an alias of session.Mode) because the manager's external
// surface is documented independently of the session engine's.
type Mode int

const (
	ModePublishOnly Mode = iota
	ModeSubscribeOnly
	ModeBoth
)

func (m Mode) canPublish() bool   { return m == ModePublishOnly || m == ModeBoth }
func (m Mode) canSubscribe() bool { return m == ModeSubscribeOnly || m == ModeBoth }

func (m Mode) sessionMode() session.Mode {
	switch m {
	case ModePublishOnly:
		return session.ModePublishOnly
	case ModeSubscribeOnly:
		return session.ModeSubscribeOnly
	default:
		return session.ModeBoth
	}
}

// DataCallback receives one frame's payload for a data-gated subscription.
type DataCallback func(trackName string, payload []byte)

// BroadcastConfig describes one track a producer manager publishes.
type BroadcastConfig struct {
	TrackName string `yaml:"trackName"`
	Priority  byte   `yaml:"priority"`
}

// Config configures a Manager. The zero value is invalid; use New.
type Config struct {
	ServerURL          string        `yaml:"serverUrl"`
	Namespace          string        `yaml:"namespace"`
	Mode               Mode          `yaml:"mode"`
	ReconnectOnFailure bool          `yaml:"reconnectOnFailure"`
	BindAddr           string        `yaml:"bindAddr"`
	TLSDisableVerify   bool          `yaml:"tlsDisableVerify"`
	TLSRootCertPath    string        `yaml:"tlsRootCertPath"`

	// ReconcileIntervalMS overrides the interval a subscription worker
	// waits before re-subscribing after a failure; defaults to 4 seconds.
	// Reconciliation itself runs on every catalog update, not on a timer.
	ReconcileIntervalMS int `yaml:"reconcileIntervalMs"`
	// ReconnectMinIntervalMS overrides the minimum interval between
	// reconnection attempts; defaults to 3 seconds.
	ReconnectMinIntervalMS int `yaml:"reconnectMinIntervalMs"`

	Logger *slog.Logger `yaml:"-"`
}

const (
	defaultReconcileInterval    = 4 * time.Second
	defaultReconnectMinInterval = 3 * time.Second
)

func (c Config) reconcileInterval() time.Duration {
	if c.ReconcileIntervalMS > 0 {
		return time.Duration(c.ReconcileIntervalMS) * time.Millisecond
	}
	return defaultReconcileInterval
}

func (c Config) reconnectMinInterval() time.Duration {
	if c.ReconnectMinIntervalMS > 0 {
		return time.Duration(c.ReconnectMinIntervalMS) * time.Millisecond
	}
	return defaultReconnectMinInterval
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// LoadConfig reads a YAML manager configuration from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("manager: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("manager: parse config: %w", err)
	}
	return cfg, nil
}
