package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileWatcher(t *testing.T) (*BinaryWatcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plantagger")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o755))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))
	return &BinaryWatcher{execPath: path, baseline: old, interval: 10 * time.Millisecond}, path
}

func TestNewBinaryWatcherFindsExecutable(t *testing.T) {
	w := NewBinaryWatcher(time.Second)
	require.NotNil(t, w)
	assert.NotEmpty(t, w.ExecPath())
	assert.False(t, w.Changed())
}

func TestBinaryWatcherDetectsRebuild(t *testing.T) {
	w, path := newFileWatcher(t)
	assert.False(t, w.Changed())

	now := time.Now()
	require.NoError(t, os.Chtimes(path, now, now))
	assert.True(t, w.Changed())

	w.ResetBaseline()
	assert.False(t, w.Changed(), "an accepted build is not reported again")
	assert.WithinDuration(t, now, w.Baseline(), time.Second)
}

func TestBinaryWatcherWatch(t *testing.T) {
	w, path := newFileWatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{})
	w.Watch(ctx, func() { close(changed) })

	now := time.Now()
	require.NoError(t, os.Chtimes(path, now, now))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("change not reported")
	}
}

func TestBinaryWatcherStopsWithContext(t *testing.T) {
	w, _ := newFileWatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	w.Watch(ctx, func() { t.Error("unexpected change") })
	cancel()
	// goleak in TestMain verifies the goroutine exits.
	time.Sleep(50 * time.Millisecond)
}
