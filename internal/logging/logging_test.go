package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := Setup("lendingd", "production", "info", &buf)
	logger.Info("pool created", "asset_id", "usdc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	require.Equal(t, "lendingd", entry["service"])
	require.Equal(t, "production", entry["env"])
	require.Equal(t, "usdc", entry["asset_id"])
}

func TestSetupBridgesStdLog(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	Setup("lendingd", "development", "debug", &buf)
	log.Printf("legacy line %d", 7)
	require.True(t, strings.Contains(buf.String(), "legacy line 7"))
	require.True(t, strings.Contains(buf.String(), "service=lendingd"))
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
}
