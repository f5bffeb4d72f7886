package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyLoggerFollowsDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	l := Logger("test")

	buf := &bytes.Buffer{}
	SetOutput(buf)
	l.Info("after switch", "key", "value")

	out := buf.String()
	assert.Contains(t, out, "after switch")
	assert.Contains(t, out, "key=value")
	assert.Contains(t, out, "component=test")

	buf.Reset()
	l.Debug("hidden")
	assert.Empty(t, buf.String(), "Info 级别下不应输出 Debug")

	SetOutputWithLevel(buf, LevelDebug)
	l.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.True(t, l.Enabled(LevelDebug))
}

func TestSetupJSON(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	buf := &bytes.Buffer{}
	Setup(Options{Level: LevelWarn, Format: FormatJSON, Output: buf})
	Logger("json").Warn("hello")

	assert.Contains(t, buf.String(), `"component":"json"`)
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"":        LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}
