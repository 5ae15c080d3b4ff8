package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLoadLayersYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "api_port: \"8080\"\nevents_backend: amqp\ntx_max_attempts: 5\nrate_limit_per_minute: 10\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RATE_LIMIT_PER_MINUTE", "60")
	t.Setenv("TX_BASE_DELAY_MS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"yaml overrides default", cfg.APIPort, "8080"},
		{"yaml backend", cfg.EventsBackend, "amqp"},
		{"yaml attempts", cfg.TxMaxAttempts, 5},
		{"env overrides yaml", cfg.RateLimitPerMinute, 60},
		{"env duration", cfg.TxBaseDelay, 5 * time.Millisecond},
		{"default kept", cfg.MigrationsDir, "migrations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateNormalizes(t *testing.T) {
	cfg := defaults()
	cfg.EventsBackend = "kafka"
	cfg.TxMaxAttempts = 0
	cfg.Validate(zap.NewNop())

	if cfg.EventsBackend != "redis" {
		t.Errorf("EventsBackend = %s, want redis", cfg.EventsBackend)
	}
	if cfg.TxMaxAttempts != 1 {
		t.Errorf("TxMaxAttempts = %d, want 1", cfg.TxMaxAttempts)
	}
}
