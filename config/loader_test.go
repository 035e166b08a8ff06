package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadClientConfig(t *testing.T) {
	path := writeTempConfig(t, `
server: "127.0.0.1:2301"
password: "secret"
ping_interval: 10s
dispatch:
  queue_capacity: 50
  command_timeout: 5s
security:
  rate_limit: 30
`)

	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatalf("LoadClientConfig failed: %v", err)
	}

	if cfg.Server != "127.0.0.1:2301" {
		t.Errorf("server: got %q", cfg.Server)
	}
	if cfg.PingInterval != 10*time.Second {
		t.Errorf("ping_interval: got %v", cfg.PingInterval)
	}
	if cfg.Dispatch.QueueCapacity != 50 {
		t.Errorf("queue_capacity: got %d", cfg.Dispatch.QueueCapacity)
	}
	if cfg.Dispatch.CommandTimeout != 5*time.Second {
		t.Errorf("command_timeout: got %v", cfg.Dispatch.CommandTimeout)
	}
	if cfg.Security.RateLimit != 30 {
		t.Errorf("rate_limit: got %d", cfg.Security.RateLimit)
	}

	// Defaults fill the rest.
	if cfg.ClientID == "" {
		t.Error("expected generated client_id")
	}
	if cfg.Transport != TransportTCP {
		t.Errorf("expected default transport, got %q", cfg.Transport)
	}
	if cfg.Dispatch.MaxInflight != DefaultMaxInflight {
		t.Errorf("expected default max_inflight, got %d", cfg.Dispatch.MaxInflight)
	}
}

func TestLoadClientConfigRejectsInvalid(t *testing.T) {
	path := writeTempConfig(t, `
server: "not-an-address"
password: "secret"
`)

	if _, err := LoadClientConfig(path); err == nil {
		t.Error("expected validation error for bad server address")
	}
}

func TestLoadClientConfigMissingFile(t *testing.T) {
	if _, err := LoadClientConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadClientConfigMalformedYAML(t *testing.T) {
	path := writeTempConfig(t, "server: [unclosed")
	if _, err := LoadClientConfig(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}
