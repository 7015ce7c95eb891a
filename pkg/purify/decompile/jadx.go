package decompile

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/purify/pkg/purify/logging"
	"github.com/jamesainslie/purify/pkg/purify/runner"
	"github.com/jamesainslie/purify/pkg/purify/tools"
)

// Jadx scaling: 45s per MiB for smali-style runs, 60s per MiB when
// producing Java sources with deobfuscation.
const (
	jadxPerMB     = 45 * time.Second
	jadxMin       = 5 * time.Minute
	jadxMax       = 30 * time.Minute
	jadxJavaPerMB = 60 * time.Second
	jadxJavaMin   = 10 * time.Minute
	jadxJavaMax   = 60 * time.Minute
)

// Jadx decompiles APKs with the jadx launcher. Jadx output cannot be
// rebuilt into an APK, so it serves analysis and as a fallback when
// apktool cannot decode an input at all.
type Jadx struct {
	tc     *tools.Toolchain
	logger *logging.Logger
}

// NewJadx returns a jadx-backed decompiler, or an error when the launcher
// was not found.
func NewJadx(tc *tools.Toolchain) (*Jadx, error) {
	if tc.Jadx == "" {
		return nil, fmt.Errorf("%w: jadx", tools.ErrToolNotFound)
	}
	return &Jadx{tc: tc, logger: logging.Get("decompile")}, nil
}

// Name implements Decompiler.
func (j *Jadx) Name() string { return "jadx" }

// Rebuildable implements Decompiler. Jadx output is read-only.
func (j *Jadx) Rebuildable() bool { return false }

// JadxTimeout returns the deadline for a jadx run on an APK of the given size.
func JadxTimeout(sizeBytes int64) time.Duration {
	return scaledTimeout(sizeBytes, jadxPerMB, jadxMin, jadxMax)
}

// Decompile implements Decompiler. Resources are skipped on the first
// attempt; the retry decodes them too and keeps debug info, at double the
// deadline.
func (j *Jadx) Decompile(ctx context.Context, path, outDir string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stating apk: %w", err)
	}
	timeout := JadxTimeout(info.Size())

	if err := os.RemoveAll(outDir); err != nil {
		return fmt.Errorf("clearing output dir: %w", err)
	}

	j.logger.Info("decompiling apk with jadx",
		"apk", path,
		"size", humanize.IBytes(uint64(info.Size())),
		"timeout", timeout)

	argv := []string{
		j.tc.Jadx,
		"-d", outDir,
		"-r",
		"--show-bad-code",
		"--no-imports",
		"--no-debug-info",
		path,
	}
	res := runner.Run(ctx, runner.Command{Argv: argv, Timeout: timeout})
	if res.Ok() && dirExists(outDir) {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	j.logger.Warn("jadx failed, retrying with resource decoding",
		"exit", res.ExitCode, "timed_out", res.TimedOut)

	retry := []string{
		j.tc.Jadx,
		"-d", outDir,
		"--show-bad-code",
		"--no-imports",
		path,
	}
	res = runner.Run(ctx, runner.Command{Argv: retry, Timeout: 2 * timeout})
	if res.Ok() && dirExists(outDir) {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	return &Error{Tool: "jadx", Stderr: res.Stderr, TimedOut: res.TimedOut}
}

// DecompileJava produces deobfuscated Java sources for manual inspection.
// Deobfuscation is slow, so the deadline scales higher than smali runs.
func (j *Jadx) DecompileJava(ctx context.Context, path, outDir string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stating apk: %w", err)
	}
	timeout := scaledTimeout(info.Size(), jadxJavaPerMB, jadxJavaMin, jadxJavaMax)

	if err := os.RemoveAll(outDir); err != nil {
		return fmt.Errorf("clearing output dir: %w", err)
	}

	j.logger.Info("decompiling apk to java sources",
		"apk", path, "timeout", timeout)

	argv := []string{
		j.tc.Jadx,
		"-d", outDir,
		"--show-bad-code",
		"--no-imports",
		"--no-debug-info",
		"--deobf",
		path,
	}
	res := runner.Run(ctx, runner.Command{Argv: argv, Timeout: timeout})
	if res.Ok() && dirExists(outDir) {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	return &Error{Tool: "jadx", Stderr: res.Stderr, TimedOut: res.TimedOut}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
