package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreDefaultLogger(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestInitLoggerJSON(t *testing.T) {
	restoreDefaultLogger(t)

	var buf bytes.Buffer
	initLogger("info", "json", &buf)
	slog.Info("Client connected", "peer_id", "abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Client connected", entry["msg"])
	assert.Equal(t, "abc", entry["peer_id"])
}

func TestInitLoggerLevel(t *testing.T) {
	restoreDefaultLogger(t)

	var buf bytes.Buffer
	logger := initLogger("WARN", "text", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
