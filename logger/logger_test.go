package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")

	log, err := New(Config{Level: "warn", Format: "json", Output: path})
	require.NoError(t, err)

	log.Named("printer").Info("dropped")
	log.Named("printer").Warn("kept")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "printer", entry["logger"])
	assert.Equal(t, "warn", entry["level"])
}

func TestNewBadOutput(t *testing.T) {
	_, err := New(Config{Output: filepath.Join(t.TempDir(), "missing", "bridge.log")})
	assert.Error(t, err)
}
