package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	// MaxSize is the maximum file size in bytes before rotation.
	MaxSize int64

	// MaxAge is how long to keep rotated files.
	MaxAge time.Duration

	// MaxBackups is the maximum number of rotated files to keep.
	MaxBackups int

	// Daily rotates at midnight regardless of size.
	Daily bool
}

// DefaultRotationConfig returns sensible rotation defaults.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSize:    10 * 1024 * 1024, // 10 MB
		MaxAge:     30 * 24 * time.Hour,
		MaxBackups: 5,
		Daily:      true,
	}
}

// RotatingWriter writes to a log file with rotation. Multiple processes may
// write to the same file; an advisory flock serializes rotation.
type RotatingWriter struct {
	mu       sync.Mutex
	path     string
	cfg      RotationConfig
	file     *os.File
	lockFile *os.File
	size     int64
	openedAt time.Time
}

// NewRotatingWriter creates a writer for the given path, creating parent
// directories as needed.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	if cfg.MaxSize == 0 {
		cfg = DefaultRotationConfig()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	w := &RotatingWriter{path: path, cfg: cfg}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	w.cleanup()
	return w, nil
}

// Write implements io.Writer.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.shouldRotate(int64(len(p))) {
		if err := w.rotate(); err != nil {
			// Rotation failure must not lose log lines; keep writing
			// to the current file.
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the underlying file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) openFile() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stating log file: %w", err)
	}

	w.file = f
	w.size = info.Size()
	w.openedAt = time.Now()
	return nil
}

func (w *RotatingWriter) shouldRotate(incoming int64) bool {
	if w.size+incoming > w.cfg.MaxSize {
		return true
	}
	if w.cfg.Daily {
		now := time.Now()
		if now.YearDay() != w.openedAt.YearDay() || now.Year() != w.openedAt.Year() {
			return true
		}
	}
	return false
}

// rotate renames the current file to path.timestamp.ext and opens a fresh
// one. Must be called with w.mu held.
func (w *RotatingWriter) rotate() error {
	if err := w.lock(); err != nil {
		return err
	}
	defer w.unlock()

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing log file for rotation: %w", err)
	}

	ext := filepath.Ext(w.path)
	base := strings.TrimSuffix(w.path, ext)
	rotated := fmt.Sprintf("%s.%s%s", base, time.Now().Format("20060102-150405"), ext)

	if err := os.Rename(w.path, rotated); err != nil {
		// Another process may have already rotated it.
		if !os.IsNotExist(err) {
			reopenErr := w.openFile()
			if reopenErr != nil {
				return fmt.Errorf("renaming log file: %v (reopen: %w)", err, reopenErr)
			}
			return fmt.Errorf("renaming log file: %w", err)
		}
	}

	if err := w.openFile(); err != nil {
		return err
	}

	w.cleanup()
	return nil
}

// cleanup removes rotated files beyond MaxBackups or older than MaxAge.
func (w *RotatingWriter) cleanup() {
	ext := filepath.Ext(w.path)
	base := strings.TrimSuffix(w.path, ext)
	matches, err := filepath.Glob(base + ".*" + ext)
	if err != nil {
		return
	}

	type backup struct {
		path string
		mod  time.Time
	}
	var backups []backup
	for _, m := range matches {
		if m == w.path {
			continue
		}
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		backups = append(backups, backup{path: m, mod: info.ModTime()})
	}

	// Newest first.
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].mod.After(backups[j].mod)
	})

	cutoff := time.Now().Add(-w.cfg.MaxAge)
	for i, b := range backups {
		tooMany := w.cfg.MaxBackups > 0 && i >= w.cfg.MaxBackups
		tooOld := w.cfg.MaxAge > 0 && b.mod.Before(cutoff)
		if tooMany || tooOld {
			os.Remove(b.path)
		}
	}
}

// lock acquires an advisory lock on a sidecar lock file so concurrent
// processes do not race on rotation.
func (w *RotatingWriter) lock() error {
	lockPath := w.path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return fmt.Errorf("locking: %w", err)
	}
	w.lockFile = f
	return nil
}

func (w *RotatingWriter) unlock() {
	if w.lockFile == nil {
		return
	}
	unix.Flock(int(w.lockFile.Fd()), unix.LOCK_UN)
	w.lockFile.Close()
	w.lockFile = nil
}
