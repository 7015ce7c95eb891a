// Package sign aligns and signs APKs with uber-apk-signer and verifies
// existing signatures.
package sign

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jamesainslie/purify/pkg/purify/logging"
	"github.com/jamesainslie/purify/pkg/purify/runner"
	"github.com/jamesainslie/purify/pkg/purify/tools"
	"github.com/jamesainslie/purify/pkg/purify/types"
)

const (
	signTimeout   = 5 * time.Minute
	verifyTimeout = time.Minute
)

// Credentials selects a custom keystore. Nil credentials sign with the
// debug keystore.
type Credentials struct {
	KeystorePath     string
	KeystorePassword string
	KeyAlias         string
	KeyPassword      string
}

// Error describes a failed signing run.
type Error struct {
	Stderr   string
	TimedOut bool
}

func (e *Error) Error() string {
	if e.TimedOut {
		return "signing timed out"
	}
	line, _, _ := strings.Cut(e.Stderr, "\n")
	return fmt.Sprintf("signing failed: %s", line)
}

// Signer signs APKs via uber-apk-signer.
type Signer struct {
	tc     *tools.Toolchain
	logger *logging.Logger
}

// NewSigner returns a signer using the resolved toolchain.
func NewSigner(tc *tools.Toolchain) *Signer {
	return &Signer{tc: tc, logger: logging.Get("sign")}
}

// Sign signs in and writes the result to out. The tool emits its own
// file names into the output directory; the result is probed by the
// known suffix conventions and moved onto the requested path.
func (s *Signer) Sign(ctx context.Context, in types.Artifact, out string, creds *Credentials) (types.Artifact, error) {
	outDir := filepath.Dir(out)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return types.Artifact{}, fmt.Errorf("creating output dir: %w", err)
	}

	argv := append(s.tc.JavaArgs(s.tc.Signer), "--apks", in.Path, "--out", outDir)

	if creds != nil && creds.KeystorePath != "" {
		argv = append(argv, "--ks", creds.KeystorePath)
		if creds.KeystorePassword != "" {
			argv = append(argv, "--ksPass", creds.KeystorePassword)
		}
		if creds.KeyAlias != "" {
			argv = append(argv, "--ksAlias", creds.KeyAlias)
		}
		if creds.KeyPassword != "" {
			argv = append(argv, "--ksKeyPass", creds.KeyPassword)
		}
	} else {
		argv = append(argv, "--debug")
	}

	argv = append(argv, "--allowResign", "--overwrite")

	s.logger.Info("signing apk", "apk", in.Path, "out", out, "debug", creds == nil)

	res := runner.Run(ctx, runner.Command{Argv: argv, Timeout: signTimeout})
	if !res.Ok() {
		if ctx.Err() != nil {
			return types.Artifact{}, ctx.Err()
		}
		return types.Artifact{}, &Error{Stderr: res.Stderr, TimedOut: res.TimedOut}
	}

	stem := strings.TrimSuffix(filepath.Base(in.Path), filepath.Ext(in.Path))
	signed, err := findSignedAPK(outDir, stem)
	if err != nil {
		return types.Artifact{}, err
	}

	if signed != out {
		if err := os.Rename(signed, out); err != nil {
			return types.Artifact{}, fmt.Errorf("moving signed apk: %w", err)
		}
	}

	info, err := os.Stat(out)
	if err != nil {
		return types.Artifact{}, fmt.Errorf("stating signed apk: %w", err)
	}

	s.logger.Info("apk signed", "path", out, "size", info.Size())
	return types.Artifact{Path: out, Size: info.Size()}, nil
}

// Suffixes uber-apk-signer appends, most specific first.
var signedSuffixes = []string{
	"-aligned-debugSigned.apk",
	"-aligned-signed.apk",
	"-debugSigned.apk",
	"-signed.apk",
}

func findSignedAPK(dir, stem string) (string, error) {
	for _, suffix := range signedSuffixes {
		candidate := filepath.Join(dir, stem+suffix)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	// Naming conventions shift between tool versions; take any APK the
	// run produced.
	matches, err := filepath.Glob(filepath.Join(dir, "*.apk"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("signed apk not found in %s", dir)
	}
	return matches[0], nil
}

// Verification is the outcome of a signature check.
type Verification struct {
	Signed  bool
	Schemes []string
	Output  string
}

// Verify checks the signature on an APK. A failing check is a result,
// not an error: Signed=false with the tool's output attached.
func (s *Signer) Verify(ctx context.Context, apk string) (Verification, error) {
	argv := append(s.tc.JavaArgs(s.tc.Signer), "--verify", "--apks", apk)

	res := runner.Run(ctx, runner.Command{Argv: argv, Timeout: verifyTimeout})
	if ctx.Err() != nil {
		return Verification{}, ctx.Err()
	}

	v := Verification{Output: res.Stdout}
	if !res.Ok() {
		s.logger.Warn("signature verification failed", "apk", apk, "exit", res.ExitCode)
		return v, nil
	}

	v.Signed = true
	v.Schemes = parseSchemes(res.Stdout)
	return v, nil
}

func parseSchemes(output string) []string {
	lower := strings.ToLower(output)
	var schemes []string
	for _, scheme := range []string{"v1", "v2", "v3"} {
		if strings.Contains(lower, scheme+" signature") {
			schemes = append(schemes, scheme)
		}
	}
	return schemes
}

// IsSigned reports whether an APK carries v1 signature files, by listing
// META-INF for .RSA/.DSA/.EC entries. Cheap compared to running the
// verifier, and good enough for the analyze summary.
func IsSigned(apk string) (bool, error) {
	r, err := zip.OpenReader(apk)
	if err != nil {
		return false, fmt.Errorf("opening apk: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if !strings.HasPrefix(f.Name, "META-INF/") {
			continue
		}
		switch strings.ToUpper(filepath.Ext(f.Name)) {
		case ".RSA", ".DSA", ".EC":
			return true, nil
		}
	}
	return false, nil
}
