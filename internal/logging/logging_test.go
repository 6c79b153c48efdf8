package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelTrace, ParseLevel("trace"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestInitJSONWithModule(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	Init("trace", "json", &buf)
	ForModule("drawing").Log(t.Context(), LevelTrace, "pointer move", "x", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "TRACE", rec["level"])
	assert.Equal(t, "drawing", rec["module"])
	assert.Equal(t, "pointer move", rec["msg"])
}
