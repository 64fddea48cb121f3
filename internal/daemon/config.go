// Package daemon wires the BarterDeck server process: configuration,
// storage, the negotiation engine, the trade manager, and the HTTP API.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration, loaded from
// ~/.barterdeck/config.toml.
type Config struct {
	API      APIConfig      `toml:"api"`
	Store    StoreConfig    `toml:"store"`
	Redis    RedisConfig    `toml:"redis"`
	Engine   EngineConfig   `toml:"engine"`
	Payments PaymentsConfig `toml:"payments"`
	Shipping ShippingConfig `toml:"shipping"`
	Notify   NotifyConfig   `toml:"notify"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StoreConfig controls the SQLite store.
type StoreConfig struct {
	// Dir holds the database file. Empty means ~/.barterdeck.
	Dir        string `toml:"dir"`
	MaxStorage string `toml:"max_storage"` // e.g. "10GB"
}

// RedisConfig controls the optional hold cache. Disabled by default —
// the engine is correct without it.
type RedisConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// EngineConfig controls buy-offer negotiation behavior.
type EngineConfig struct {
	HoldMinutes int `toml:"hold_minutes"`
	// SweepHolds opts in to active reclamation of lapsed cart holds.
	// Off by default: holds are advisory unless enforcement is wanted.
	SweepHolds    bool   `toml:"sweep_holds"`
	SweepInterval string `toml:"sweep_interval"` // e.g. "30s"
}

// PaymentsConfig points at the external payment gateway. An empty URL
// runs the daemon without a gateway — cash trades stay payment-pending
// until a callback arrives through other means.
type PaymentsConfig struct {
	GatewayURL string `toml:"gateway_url"`
}

// ShippingConfig points at the external shipping provider.
type ShippingConfig struct {
	ProviderURL string `toml:"provider_url"`
}

// NotifyConfig controls the outbound notification dispatcher.
type NotifyConfig struct {
	QueueSize int `toml:"queue_size"`
}

// MetricsConfig controls the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// DefaultConfig returns the default daemon configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8310,
		},
		Store: StoreConfig{
			MaxStorage: "10GB",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "127.0.0.1:6379",
		},
		Engine: EngineConfig{
			HoldMinutes:   10,
			SweepHolds:    false,
			SweepInterval: "30s",
		},
		Notify: NotifyConfig{
			QueueSize: 256,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Home returns the BarterDeck home directory (BARTERDECK_HOME or
// ~/.barterdeck).
func Home() string {
	if env := os.Getenv("BARTERDECK_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".barterdeck")
}

// ConfigPath returns the config file location.
func ConfigPath() string {
	return filepath.Join(Home(), "config.toml")
}

// LoadConfig reads the config file, filling in defaults for anything
// missing. A missing file is not an error — defaults apply.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := ConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes the config file, creating the home directory if
// needed.
func SaveConfig(cfg Config) error {
	if err := os.MkdirAll(Home(), 0700); err != nil {
		return err
	}
	f, err := os.Create(ConfigPath())
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// StoreDir returns the resolved database directory.
func (c Config) StoreDir() string {
	if c.Store.Dir != "" {
		return c.Store.Dir
	}
	return Home()
}

// parseStorageSize parses sizes like "10GB" into bytes. Unparseable or
// empty input falls back to 10GB.
func parseStorageSize(s string) uint64 {
	const def = 10 * 1024 * 1024 * 1024

	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return def
	}

	multipliers := []struct {
		suffix string
		mult   uint64
	}{
		{"TB", 1024 * 1024 * 1024 * 1024},
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}
	for _, m := range multipliers {
		if strings.HasSuffix(s, m.suffix) {
			n, err := strconv.ParseUint(strings.TrimSuffix(s, m.suffix), 10, 64)
			if err != nil {
				return def
			}
			return n * m.mult
		}
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n
	}
	return def
}
