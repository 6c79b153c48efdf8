package app

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// BinaryWatcher reports when the running executable is replaced on disk,
// so a development build can offer to restart itself.
type BinaryWatcher struct {
	execPath string
	baseline time.Time
	interval time.Duration
}

// NewBinaryWatcher watches the current executable. It returns nil when the
// executable cannot be located.
func NewBinaryWatcher(interval time.Duration) *BinaryWatcher {
	execPath, err := os.Executable()
	if err != nil {
		return nil
	}
	// go build replaces the file behind a symlink
	if real, err := filepath.EvalSymlinks(execPath); err == nil {
		execPath = real
	}
	info, err := os.Stat(execPath)
	if err != nil {
		return nil
	}
	return &BinaryWatcher{execPath: execPath, baseline: info.ModTime(), interval: interval}
}

// ExecPath returns the watched executable.
func (w *BinaryWatcher) ExecPath() string { return w.execPath }

// Baseline returns the modification time changes are measured against.
func (w *BinaryWatcher) Baseline() time.Time { return w.baseline }

// Changed reports whether the executable is newer than the baseline.
func (w *BinaryWatcher) Changed() bool {
	info, err := os.Stat(w.execPath)
	if err != nil {
		return false
	}
	return info.ModTime().After(w.baseline)
}

// ResetBaseline accepts the current executable, so a declined restart is
// not offered again for the same build.
func (w *BinaryWatcher) ResetBaseline() {
	if info, err := os.Stat(w.execPath); err == nil {
		w.baseline = info.ModTime()
	}
}

// Watch calls onChange once, from its own goroutine, when the executable
// changes. It stops when ctx is done.
func (w *BinaryWatcher) Watch(ctx context.Context, onChange func()) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if w.Changed() {
					onChange()
					return
				}
			}
		}
	}()
}

// Restart replaces the current process with the watched executable,
// keeping arguments and environment. It does not return on success.
func (w *BinaryWatcher) Restart() error {
	return syscall.Exec(w.execPath, os.Args, os.Environ())
}
