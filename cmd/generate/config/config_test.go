package config

import (
	"bytes"
	"testing"

	appconfig "github.com/quennic/rconx/config"
	"github.com/quennic/rconx/examples"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestClientConfigTemplateFields verifies that the embedded client.yaml
// template parses into config.Client without unknown fields, validates
// after defaults are applied, and ships the documented default values.
func TestClientConfigTemplateFields(t *testing.T) {
	content, err := examples.ClientConfig()
	require.NoError(t, err, "failed to load client config template")

	var cfg appconfig.Client
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true) // Error on unknown fields
	err = decoder.Decode(&cfg)
	require.NoError(t, err, "client.yaml contains unknown fields or invalid YAML")

	assert.NotEmpty(t, cfg.Server, "server should not be empty")
	assert.NotEmpty(t, cfg.Password, "password should not be empty")
	assert.Equal(t, appconfig.TransportTCP, cfg.Transport, "template should default to tcp")

	// Verify defaults match config/defaults.go
	assert.Equal(t, appconfig.DefaultPingInterval, cfg.PingInterval,
		"ping_interval should match DefaultPingInterval")
	assert.Equal(t, appconfig.DefaultQueueCapacity, cfg.Dispatch.QueueCapacity,
		"queue_capacity should match DefaultQueueCapacity")
	assert.Equal(t, appconfig.DefaultMaxInflight, cfg.Dispatch.MaxInflight,
		"max_inflight should match DefaultMaxInflight")
	assert.Equal(t, appconfig.DefaultCommandTimeout, cfg.Dispatch.CommandTimeout,
		"command_timeout should match DefaultCommandTimeout")
	assert.Equal(t, appconfig.DefaultMaxRetries, cfg.Dispatch.MaxRetries,
		"max_retries should match DefaultMaxRetries")

	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate(), "template should validate after defaults")
}
