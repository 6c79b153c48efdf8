package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	s := Default()
	assert.True(t, s.Engine.AutoLink)
	assert.InDelta(t, 5.0, s.Engine.MinDrawSize, 0)
	assert.Equal(t, 300*time.Millisecond, s.Engine.EditDebounce)
	assert.Equal(t, DefaultWhitelist, s.OCR.Whitelist)
	assert.Equal(t, "plantag.db", s.Store.Path)
	assert.NoError(t, Validate(s))
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plantag.yaml")
	yaml := `
log:
  level: debug
engine:
  autolink: false
  editdebounce: 50ms
ocr:
  cachettl: 0s
store:
  path: /tmp/annotations.db
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", s.Log.Level)
	assert.False(t, s.Engine.AutoLink)
	assert.Equal(t, 50*time.Millisecond, s.Engine.EditDebounce)
	assert.Equal(t, time.Duration(0), s.OCR.CacheTTL)
	assert.Equal(t, "/tmp/annotations.db", s.Store.Path)
	assert.Equal(t, "eng", s.OCR.Language, "unset keys keep defaults")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PLANTAG_STORE_PATH", "env.db")
	dir := t.TempDir()
	path := filepath.Join(dir, "plantag.yaml")
	require.NoError(t, os.WriteFile(path, []byte("debug: true\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env.db", s.Store.Path)
	assert.True(t, s.Debug)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	s := Default()
	s.Engine.DevicePixelRatio = 0
	s.Match.MinConfidence = 120
	s.Store.Path = " "

	err := Validate(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "devicepixelratio")
	assert.Contains(t, err.Error(), "match.minconfidence")
	assert.Contains(t, err.Error(), "store.path")
}
