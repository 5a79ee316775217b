package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, slog.LevelInfo, "json")

	l.Info("todo created", slog.String("user_id", "u-1"), slog.Int("count", 2))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "todo created", entry["msg"])
	assert.Equal(t, "u-1", entry["user_id"])
	assert.Equal(t, float64(2), entry["count"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Contains(t, entry, "time")
}

func TestSetup_LevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, slog.LevelWarn, "json")

	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestSetup_Text(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, slog.LevelDebug, "text")

	l.Debug("console line", slog.String("tool", "create_todo"))

	out := buf.String()
	assert.Contains(t, out, "console line")
	assert.Contains(t, out, "create_todo")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestSetupDefault_SetsGlobalLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupDefault(&buf, "info", "json")
	slog.Default().Info("global test")

	assert.Contains(t, buf.String(), "global test")
}
