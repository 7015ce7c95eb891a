package decompile

import (
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestDecodeTimeout(t *testing.T) {
	tests := []struct {
		name string
		size int64
		want time.Duration
	}{
		{"tiny apk clamps to minimum", 1 << 20, 5 * time.Minute},
		{"10MB clamps to minimum", 10 << 20, 5 * time.Minute},
		{"20MB scales", 20 << 20, 10 * time.Minute},
		{"40MB scales", 40 << 20, 20 * time.Minute},
		{"huge apk clamps to maximum", 500 << 20, 30 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeTimeout(tt.size); got != tt.want {
				t.Errorf("DecodeTimeout(%d) = %v, want %v", tt.size, got, tt.want)
			}
		})
	}
}

func TestJadxTimeout(t *testing.T) {
	if got := JadxTimeout(1 << 20); got != 5*time.Minute {
		t.Errorf("JadxTimeout(1MB) = %v, want 5m", got)
	}
	if got := JadxTimeout(1 << 30); got != 30*time.Minute {
		t.Errorf("JadxTimeout(1GB) = %v, want 30m", got)
	}
}

// Deadlines must never shrink as inputs grow.
func TestTimeoutMonotonic(t *testing.T) {
	prev := time.Duration(0)
	for size := int64(1 << 20); size <= 1<<30; size *= 2 {
		got := DecodeTimeout(size)
		if got < prev {
			t.Fatalf("DecodeTimeout(%d) = %v, less than previous %v", size, got, prev)
		}
		prev = got
	}
}

func TestClassifyBuildError(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   BuildErrorKind
	}{
		{"duplicate resource", "brut.androlib.AndrolibException: Duplicate resource id", BuildDuplicateResource},
		{"invalid config", "error: Invalid configuration 'xhdpi-v4'", BuildInvalidResource},
		{"aapt failure", "W: aapt2 link failed", BuildResourceConflict},
		{"unclassified", "java.lang.OutOfMemoryError", BuildUnknown},
		{"empty stderr", "", BuildUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyBuildError(tt.stderr); got != tt.want {
				t.Errorf("classifyBuildError(%q) = %v, want %v", tt.stderr, got, tt.want)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	timedOut := &Error{Tool: "apktool", TimedOut: true}
	if !strings.Contains(timedOut.Error(), "timed out") {
		t.Errorf("timeout error should say so, got %q", timedOut.Error())
	}

	failed := &Error{Tool: "jadx", Stderr: "ERROR: bad dex\nmore detail"}
	if !strings.Contains(failed.Error(), "bad dex") {
		t.Errorf("error should carry first stderr line, got %q", failed.Error())
	}
	if strings.Contains(failed.Error(), "more detail") {
		t.Errorf("error should not carry full stderr, got %q", failed.Error())
	}

	build := &BuildError{Kind: BuildDuplicateResource, Stderr: "Duplicate resource"}
	if !strings.Contains(build.Error(), "duplicate resource") {
		t.Errorf("build error should name its kind, got %q", build.Error())
	}
}

func TestDiskFree(t *testing.T) {
	free, err := DiskFree(t.TempDir())
	if err != nil {
		t.Skipf("statfs unavailable: %v", err)
	}
	if free == 0 {
		t.Error("DiskFree() = 0 for a writable temp dir")
	}
}

func TestEnsureDiskSpace(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("preflight is a no-op without statfs")
	}
	dir := t.TempDir()

	if err := EnsureDiskSpace(dir, 1); err != nil {
		t.Errorf("EnsureDiskSpace(1 byte) error = %v", err)
	}

	// No filesystem has this much room.
	if err := EnsureDiskSpace(dir, 1<<62); err == nil {
		t.Error("EnsureDiskSpace(4EiB) expected error, got nil")
	}
}
