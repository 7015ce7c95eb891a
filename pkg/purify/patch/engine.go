// Package patch rewrites a decompiled APK tree in place: ad domains
// blanked in smali string literals, ad SDK classes deleted, manifest
// entries stripped, and ad resources removed together with their
// public.xml registrations.
//
// The manifest and the resource tables are snapshotted before any pass
// runs. A pass failure restores them so a half-patched tree still
// recompiles.
package patch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jamesainslie/purify/pkg/purify/logging"
	"github.com/jamesainslie/purify/pkg/purify/patterns"
	"github.com/jamesainslie/purify/pkg/purify/types"
)

// Engine applies patch passes to a decompiled tree.
type Engine struct {
	pats   *patterns.Set
	logger *logging.Logger
}

// NewEngine returns an engine using the given pattern set. The set's
// resource globs must already be compiled.
func NewEngine(pats *patterns.Set) *Engine {
	return &Engine{pats: pats, logger: logging.Get("patch")}
}

// Patch runs the requested passes against projectDir in order. Every pass
// is idempotent; running Patch twice leaves the tree unchanged the second
// time. The returned result is never nil: pass-level failures restore the
// snapshotted files and land in Errors instead of aborting the batch.
func (e *Engine) Patch(ctx context.Context, projectDir string, passes []types.Pass) *types.PatchResult {
	result := &types.PatchResult{}

	if len(passes) == 0 {
		passes = types.AllPasses()
	}

	e.logger.Info("patching decompiled tree", "dir", projectDir, "passes", len(passes))

	snap, err := e.snapshot(projectDir)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("snapshot: %v", err))
		return result
	}

	for _, pass := range passes {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, "patching cancelled")
			return result
		}

		if err := e.runPass(projectDir, pass, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", pass, err))
			if restoreErr := e.restore(projectDir, snap); restoreErr != nil {
				// The tree may no longer recompile cleanly. Callers see
				// the original pass error; the restore failure is a
				// consistency problem, not a new patch failure.
				e.logger.Error("restore after failed pass did not complete",
					"pass", pass, "error", restoreErr)
			} else {
				e.logger.Warn("restored manifest and resource tables after failed pass",
					"pass", pass)
			}
			return result
		}

		result.PassesApplied = append(result.PassesApplied, pass)
	}

	e.logger.Info("patching complete",
		"domains", result.DomainsReplaced,
		"classes", result.ClassesRemoved,
		"permissions", result.PermissionsRemoved,
		"components", result.ComponentsRemoved,
		"resources", result.ResourcesRemoved,
		"errors", len(result.Errors))
	return result
}

func (e *Engine) runPass(projectDir string, pass types.Pass, result *types.PatchResult) error {
	switch pass {
	case types.PassDomains:
		count, errs, err := e.replaceDomains(projectDir)
		result.DomainsReplaced += count
		result.Errors = append(result.Errors, errs...)
		return err
	case types.PassClasses:
		count, errs, err := e.removeClasses(projectDir)
		result.ClassesRemoved += count
		result.Errors = append(result.Errors, errs...)
		return err
	case types.PassManifest:
		perms, comps, err := e.cleanManifest(projectDir)
		result.PermissionsRemoved += perms
		result.ComponentsRemoved += comps
		return err
	case types.PassResources:
		count, errs, err := e.cleanResources(projectDir)
		result.ResourcesRemoved += count
		result.Errors = append(result.Errors, errs...)
		return err
	default:
		return fmt.Errorf("unknown pass %q", pass)
	}
}

// snapshot captures AndroidManifest.xml and every res/values*/public.xml
// as in-memory copies keyed by path relative to projectDir. Missing files
// are simply absent from the snapshot.
func (e *Engine) snapshot(projectDir string) (map[string][]byte, error) {
	snap := make(map[string][]byte)

	manifest := filepath.Join(projectDir, "AndroidManifest.xml")
	if data, err := os.ReadFile(manifest); err == nil {
		snap["AndroidManifest.xml"] = data
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	for _, valuesDir := range valuesDirs(projectDir) {
		public := filepath.Join(valuesDir, "public.xml")
		data, err := os.ReadFile(public)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", public, err)
		}
		rel, err := filepath.Rel(projectDir, public)
		if err != nil {
			return nil, err
		}
		snap[rel] = data
	}

	return snap, nil
}

func (e *Engine) restore(projectDir string, snap map[string][]byte) error {
	for rel, data := range snap {
		path := filepath.Join(projectDir, rel)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("restoring %s: %w", rel, err)
		}
	}
	return nil
}

// smaliRoots lists the smali directories of an apktool tree. Multi-dex
// APKs decode into smali, smali_classes2, smali_classes3, and so on.
func smaliRoots(projectDir string) []string {
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return nil
	}

	var roots []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "smali") {
			roots = append(roots, filepath.Join(projectDir, entry.Name()))
		}
	}
	return roots
}

// valuesDirs lists res/values and every qualified variant (values-v21,
// values-de, ...).
func valuesDirs(projectDir string) []string {
	resDir := filepath.Join(projectDir, "res")
	entries, err := os.ReadDir(resDir)
	if err != nil {
		return nil
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "values") {
			dirs = append(dirs, filepath.Join(resDir, entry.Name()))
		}
	}
	return dirs
}
