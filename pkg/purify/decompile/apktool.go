package decompile

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/purify/pkg/purify/logging"
	"github.com/jamesainslie/purify/pkg/purify/runner"
	"github.com/jamesainslie/purify/pkg/purify/tools"
)

// Decode timeout scaling: 30s per MiB, clamped to [5m, 30m]. The retry
// without --no-src decompiles dex sources and gets double the budget.
const (
	decodePerMB  = 30 * time.Second
	decodeMin    = 5 * time.Minute
	decodeMax    = 30 * time.Minute
	buildTimeout = 15 * time.Minute
)

// Apktool decodes and rebuilds APKs via apktool.jar.
type Apktool struct {
	tc     *tools.Toolchain
	logger *logging.Logger
}

// NewApktool returns an apktool-backed decompiler.
func NewApktool(tc *tools.Toolchain) *Apktool {
	return &Apktool{tc: tc, logger: logging.Get("decompile")}
}

// Name implements Decompiler.
func (a *Apktool) Name() string { return "apktool" }

// Rebuildable implements Decompiler. Apktool trees recompile.
func (a *Apktool) Rebuildable() bool { return true }

// DecodeTimeout returns the deadline for decoding an APK of the given size.
func DecodeTimeout(sizeBytes int64) time.Duration {
	return scaledTimeout(sizeBytes, decodePerMB, decodeMin, decodeMax)
}

// Decompile implements Decompiler. The first attempt skips source
// decompilation, which is faster and fails less often. On failure it
// retries with sources at double the deadline, since resource-only decode
// errors sometimes clear when dex decoding reorders the work.
func (a *Apktool) Decompile(ctx context.Context, path, outDir string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stating apk: %w", err)
	}
	timeout := DecodeTimeout(info.Size())

	if err := os.RemoveAll(outDir); err != nil {
		return fmt.Errorf("clearing output dir: %w", err)
	}

	a.logger.Info("decompiling apk",
		"apk", path,
		"size", humanize.IBytes(uint64(info.Size())),
		"timeout", timeout)

	argv := append(a.tc.JavaArgs(a.tc.Apktool), "d", path, "-o", outDir, "-f", "--no-src")
	res := runner.Run(ctx, runner.Command{Argv: argv, Timeout: timeout})
	if res.Ok() {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	a.logger.Warn("decode failed, retrying with source decompilation",
		"exit", res.ExitCode, "timed_out", res.TimedOut)

	retry := append(a.tc.JavaArgs(a.tc.Apktool), "d", path, "-o", outDir, "-f")
	res = runner.Run(ctx, runner.Command{Argv: retry, Timeout: 2 * timeout})
	if res.Ok() {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	return &Error{Tool: "apktool", Stderr: res.Stderr, TimedOut: res.TimedOut}
}

// Build recompiles a decoded tree into an APK at outAPK. The first attempt
// uses aapt2; if that fails the legacy aapt path is tried before giving up.
func (a *Apktool) Build(ctx context.Context, dir, outAPK string) error {
	a.logger.Info("recompiling apk", "dir", dir, "out", outAPK)

	argv := append(a.tc.JavaArgs(a.tc.Apktool), "b", dir, "-o", outAPK, "-f", "--use-aapt2")
	res := runner.Run(ctx, runner.Command{Argv: argv, Timeout: buildTimeout})
	if res.Ok() && fileExists(outAPK) {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	a.logger.Warn("aapt2 build failed, retrying with aapt",
		"exit", res.ExitCode, "timed_out", res.TimedOut)

	fallback := append(a.tc.JavaArgs(a.tc.Apktool), "b", dir, "-o", outAPK, "-f")
	resFallback := runner.Run(ctx, runner.Command{Argv: fallback, Timeout: buildTimeout})
	if resFallback.Ok() && fileExists(outAPK) {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Classify from the fallback run; the aapt2 stderr is noisier.
	return &BuildError{
		Kind:     classifyBuildError(resFallback.Stderr),
		Stderr:   resFallback.Stderr,
		TimedOut: resFallback.TimedOut,
	}
}

func classifyBuildError(stderr string) BuildErrorKind {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "duplicate"):
		return BuildDuplicateResource
	case strings.Contains(lower, "invalid"):
		return BuildInvalidResource
	case strings.Contains(lower, "aapt"):
		return BuildResourceConflict
	default:
		return BuildUnknown
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
