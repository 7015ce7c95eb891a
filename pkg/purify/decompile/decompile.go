// Package decompile turns an APK into an editable tree and, for apktool,
// back into an APK. Timeouts scale with input size so large APKs get more
// time without letting a wedged tool hang a batch forever.
package decompile

import (
	"context"
	"fmt"
	"time"
)

// Decompiler is one strategy for unpacking an APK into a directory tree.
type Decompiler interface {
	// Name identifies the strategy in logs and job records.
	Name() string

	// Rebuildable reports whether the produced tree can be compiled back
	// into an APK. Only rebuildable trees are worth patching.
	Rebuildable() bool

	// Decompile unpacks the APK at path into outDir, replacing any
	// previous contents.
	Decompile(ctx context.Context, path, outDir string) error
}

// Error describes a failed decompile run, keeping the tool's stderr for
// diagnosis and whether the run hit its deadline.
type Error struct {
	Tool     string
	Stderr   string
	TimedOut bool
}

func (e *Error) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s timed out", e.Tool)
	}
	return fmt.Sprintf("%s failed: %s", e.Tool, firstLine(e.Stderr))
}

// BuildErrorKind classifies recompile failures by the tool's stderr.
type BuildErrorKind int

const (
	BuildUnknown BuildErrorKind = iota
	BuildResourceConflict
	BuildDuplicateResource
	BuildInvalidResource
)

func (k BuildErrorKind) String() string {
	switch k {
	case BuildResourceConflict:
		return "resource conflict"
	case BuildDuplicateResource:
		return "duplicate resource"
	case BuildInvalidResource:
		return "invalid resource"
	default:
		return "unknown"
	}
}

// BuildError describes a failed recompile.
type BuildError struct {
	Kind     BuildErrorKind
	Stderr   string
	TimedOut bool
}

func (e *BuildError) Error() string {
	if e.TimedOut {
		return "apktool build timed out"
	}
	return fmt.Sprintf("apktool build failed (%s): %s", e.Kind, firstLine(e.Stderr))
}

// scaledTimeout computes a per-run deadline from the input size at the
// given rate per mebibyte, clamped to [min, max].
func scaledTimeout(sizeBytes int64, perMB, min, max time.Duration) time.Duration {
	mb := sizeBytes / (1 << 20)
	d := time.Duration(mb) * perMB
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
