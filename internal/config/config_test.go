package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"PORT", "ADMIN_PORT", "APP_ENV", "STORE_MAX_OBSERVATIONS", "STORE_MAX_AGE",
	"IDLE_TIMEOUT", "SWEEP_INTERVAL", "IDLE_SWEEP_INTERVAL", "MAX_BODY_BYTES",
	"SHUTDOWN_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	c, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Port != 4567 || c.AdminPort != 8080 {
		t.Fatalf("ports default: %d %d", c.Port, c.AdminPort)
	}
	if c.MaxObservations != 20 || c.MaxAge != 30*time.Second {
		t.Fatalf("store retention default: %d %s", c.MaxObservations, c.MaxAge)
	}
	if c.IdleTimeout != 30*time.Second || c.SweepInterval != time.Second {
		t.Fatalf("sweep default: %s %s", c.IdleTimeout, c.SweepInterval)
	}
	if c.IdleSweepInterval != c.IdleTimeout {
		t.Fatalf("idle sweep interval should follow idle timeout, got %s", c.IdleSweepInterval)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "5000")
	t.Setenv("ADMIN_PORT", "0")
	t.Setenv("APP_ENV", "dev")
	t.Setenv("STORE_MAX_OBSERVATIONS", "4")
	t.Setenv("IDLE_TIMEOUT", "15s")
	t.Setenv("IDLE_SWEEP_INTERVAL", "2s")

	c, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Port != 5000 || c.AdminPort != 0 || c.Env != "dev" {
		t.Fatalf("env overrides not applied: %+v", c)
	}
	if c.MaxObservations != 4 || c.IdleTimeout != 15*time.Second || c.IdleSweepInterval != 2*time.Second {
		t.Fatalf("env overrides not applied: %+v", c)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "aggregator.yaml")
	yaml := "port: 6000\nmax_observations: 10\nidle_timeout: 45s\nmax_age: 1m\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("STORE_MAX_OBSERVATIONS", "12")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Port != 6000 || c.IdleTimeout != 45*time.Second || c.MaxAge != time.Minute {
		t.Fatalf("yaml values not applied: %+v", c)
	}
	if c.MaxObservations != 12 {
		t.Fatalf("env must win over yaml, got %d", c.MaxObservations)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"PORT":                   "70000",
		"STORE_MAX_OBSERVATIONS": "0",
		"IDLE_TIMEOUT":           "soon",
		"APP_ENV":                "staging",
		"ADMIN_PORT":             "4567",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			if _, err := Load(""); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestLoadRejectsUnknownYAMLKeys(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "aggregator.yaml")
	if err := os.WriteFile(path, []byte("prot: 1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}
