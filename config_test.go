package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Dragonsize/TDTUmes/p2p"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var relayEnvKeys = []string{
	"RELAY_HOST",
	"RELAY_PORT",
	"RELAY_CHUNK_SIZE",
	"RELAY_WRITE_TIMEOUT",
	"RELAY_METRICS_ADDR",
	"RELAY_LOG_LEVEL",
	"RELAY_LOG_FORMAT",
}

// clearRelayEnv blanks every RELAY_* variable for the duration of the test.
func clearRelayEnv(t *testing.T) {
	t.Helper()
	for _, key := range relayEnvKeys {
		t.Setenv(key, "")
	}
}

func writeEnvFile(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	clearRelayEnv(t)

	cfg, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, p2p.DefaultChunkSize, cfg.ChunkSize)
	assert.Zero(t, cfg.WriteTimeout)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Equal(t, "127.0.0.1:5000", cfg.Addr())
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	clearRelayEnv(t)

	path := writeEnvFile(t, `RELAY_HOST=0.0.0.0
RELAY_PORT=6000
RELAY_CHUNK_SIZE=512
RELAY_WRITE_TIMEOUT=2s
RELAY_METRICS_ADDR=:9090
RELAY_LOG_LEVEL=debug
RELAY_LOG_FORMAT=json
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, RelayConfig{
		Host:         "0.0.0.0",
		Port:         6000,
		ChunkSize:    512,
		WriteTimeout: 2 * time.Second,
		MetricsAddr:  ":9090",
		LogLevel:     "debug",
		LogFormat:    "json",
	}, *cfg)
}

func TestLoadConfigEnvironmentWins(t *testing.T) {
	clearRelayEnv(t)
	t.Setenv("RELAY_PORT", "7000")

	path := writeEnvFile(t, "RELAY_PORT=6000\nRELAY_HOST=10.0.0.1\n")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "10.0.0.1", cfg.Host)
}

func TestLoadConfigMissingEnvFile(t *testing.T) {
	clearRelayEnv(t)

	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoadConfigInvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"RELAY_PORT", "abc"},
		{"RELAY_PORT", "70000"},
		{"RELAY_PORT", "-1"},
		{"RELAY_CHUNK_SIZE", "0"},
		{"RELAY_CHUNK_SIZE", "big"},
		{"RELAY_WRITE_TIMEOUT", "soon"},
		{"RELAY_WRITE_TIMEOUT", "-1s"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearRelayEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := loadConfig("")
			assert.Error(t, err)
		})
	}
}

func TestRelayConfigAddr(t *testing.T) {
	cfg := RelayConfig{Host: "::1", Port: 5000}
	assert.Equal(t, "[::1]:5000", cfg.Addr())
}
