package daemon

import (
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8310 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8310)
	}
	if cfg.Store.MaxStorage != "10GB" {
		t.Errorf("Store.MaxStorage = %q, want %q", cfg.Store.MaxStorage, "10GB")
	}
	if cfg.Engine.HoldMinutes != 10 {
		t.Errorf("Engine.HoldMinutes = %d, want %d", cfg.Engine.HoldMinutes, 10)
	}

	// Holds are advisory unless explicitly enforced.
	if cfg.Engine.SweepHolds {
		t.Error("Engine.SweepHolds should be false by default (opt-in)")
	}
	if cfg.Engine.SweepInterval != "30s" {
		t.Errorf("Engine.SweepInterval = %q, want %q", cfg.Engine.SweepInterval, "30s")
	}

	// Redis is an optional fast path, never required.
	if cfg.Redis.Enabled {
		t.Error("Redis.Enabled should be false by default (opt-in)")
	}
	if cfg.Redis.Addr != "127.0.0.1:6379" {
		t.Errorf("Redis.Addr = %q, want %q", cfg.Redis.Addr, "127.0.0.1:6379")
	}

	if cfg.Notify.QueueSize != 256 {
		t.Errorf("Notify.QueueSize = %d, want %d", cfg.Notify.QueueSize, 256)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be true by default")
	}
}

func TestParseStorageSize(t *testing.T) {
	tests := []struct {
		input string
		want  uint64
	}{
		{"10GB", 10 * 1024 * 1024 * 1024},
		{"1TB", 1 * 1024 * 1024 * 1024 * 1024},
		{"100MB", 100 * 1024 * 1024},
		{"", 10 * 1024 * 1024 * 1024}, // Default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseStorageSize(tt.input)
			if got != tt.want {
				t.Errorf("parseStorageSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}
