// Package tools resolves the external binaries the pipeline shells out
// to: a Java runtime, apktool.jar, uber-apk-signer.jar, and the jadx
// launcher script.
package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/jamesainslie/purify/pkg/purify/config"
	"github.com/jamesainslie/purify/pkg/purify/logging"
	"github.com/jamesainslie/purify/pkg/purify/runner"
)

// ErrToolNotFound is returned when a required external tool cannot be
// located in the tools directory or on PATH.
var ErrToolNotFound = errors.New("tool not found")

// Toolchain holds resolved paths to every external tool the pipeline can
// invoke. Jadx may be empty when only apktool runs are requested.
type Toolchain struct {
	Java     string
	JavaHeap string
	Apktool  string
	Signer   string
	Jadx     string
}

// JavaArgs returns the leading arguments for a jar invocation, including
// the heap flag when configured.
func (t *Toolchain) JavaArgs(jar string) []string {
	args := []string{t.Java}
	if t.JavaHeap != "" {
		args = append(args, t.JavaHeap)
	}
	return append(args, "-jar", jar)
}

// Resolve locates every tool from the config, checking explicit overrides
// first, then the tools directory, then PATH.
func Resolve(cfg config.ToolsConfig) (*Toolchain, error) {
	logger := logging.Get("tools")

	java := cfg.Java
	if java == "" {
		java = "java"
	}
	javaPath, err := exec.LookPath(java)
	if err != nil {
		return nil, fmt.Errorf("%w: java runtime (%s)", ErrToolNotFound, java)
	}

	tc := &Toolchain{Java: javaPath, JavaHeap: cfg.JavaHeap}

	tc.Apktool, err = resolveFile(cfg.Apktool, filepath.Join(cfg.Dir, "apktool.jar"), "apktool")
	if err != nil {
		return nil, err
	}

	tc.Signer, err = resolveFile(cfg.Signer, filepath.Join(cfg.Dir, "uber-apk-signer.jar"), "uber-apk-signer")
	if err != nil {
		return nil, err
	}

	// Jadx is optional. A missing launcher only fails jadx runs.
	tc.Jadx, err = resolveFile(cfg.Jadx, jadxLauncher(cfg.Dir), "jadx")
	if err != nil {
		logger.Debug("jadx not found, jadx runs unavailable", "dir", cfg.Dir)
		tc.Jadx = ""
	}

	logger.Debug("toolchain resolved",
		"java", tc.Java, "apktool", tc.Apktool, "signer", tc.Signer, "jadx", tc.Jadx)
	return tc, nil
}

// resolveFile picks the first existing candidate: the explicit override,
// the tools-directory default, then a PATH lookup by tool name.
func resolveFile(override, dirDefault, name string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("%w: %s at %s", ErrToolNotFound, name, override)
		}
		return override, nil
	}

	if _, err := os.Stat(dirDefault); err == nil {
		return dirDefault, nil
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%w: %s (looked at %s and PATH)", ErrToolNotFound, name, dirDefault)
}

// jadxLauncher returns the expected launcher path inside the tools dir.
func jadxLauncher(dir string) string {
	name := "jadx"
	if runtime.GOOS == "windows" {
		name = "jadx.bat"
	}
	return filepath.Join(dir, "jadx", "bin", name)
}

// Status describes the availability of one tool.
type Status struct {
	Name      string
	Path      string
	Available bool
	Version   string
}

// Check probes each tool and returns its status. The Java runtime is
// probed with -version; jars and the jadx launcher with --version.
func Check(ctx context.Context, cfg config.ToolsConfig) []Status {
	var out []Status

	tc, err := Resolve(cfg)
	if err != nil {
		// Resolve failed on java, apktool, or signer; report what we
		// can still locate individually.
		out = append(out, probeMissing(cfg)...)
		return out
	}

	out = append(out, probe(ctx, "java", tc.Java, tc.Java, "-version"))
	out = append(out, probe(ctx, "apktool", tc.Apktool, tc.Java, "-jar", tc.Apktool, "--version"))
	out = append(out, probe(ctx, "uber-apk-signer", tc.Signer, tc.Java, "-jar", tc.Signer, "--version"))

	if tc.Jadx != "" {
		out = append(out, probe(ctx, "jadx", tc.Jadx, tc.Jadx, "--version"))
	} else {
		out = append(out, Status{Name: "jadx"})
	}

	return out
}

func probe(ctx context.Context, name, path string, argv ...string) Status {
	res := runner.Run(ctx, runner.Command{Argv: argv, Timeout: runner.ProbeTimeout})
	status := Status{Name: name, Path: path, Available: res.Ok()}
	if res.Ok() {
		// java -version writes to stderr; tools differ.
		text := strings.TrimSpace(res.Stdout)
		if text == "" {
			text = strings.TrimSpace(res.Stderr)
		}
		if line, _, found := strings.Cut(text, "\n"); found {
			text = line
		}
		status.Version = text
	}
	return status
}

func probeMissing(cfg config.ToolsConfig) []Status {
	java := cfg.Java
	if java == "" {
		java = "java"
	}

	var out []Status
	for _, t := range []struct {
		name string
		path string
	}{
		{"java", java},
		{"apktool", filepath.Join(cfg.Dir, "apktool.jar")},
		{"uber-apk-signer", filepath.Join(cfg.Dir, "uber-apk-signer.jar")},
		{"jadx", jadxLauncher(cfg.Dir)},
	} {
		st := Status{Name: t.name, Path: t.path}
		if t.name == "java" {
			if p, err := exec.LookPath(t.path); err == nil {
				st.Path = p
				st.Available = true
			}
		} else if _, err := os.Stat(t.path); err == nil {
			st.Available = true
		}
		out = append(out, st)
	}
	return out
}
