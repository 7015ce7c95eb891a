// Package analyze inspects APKs before and after decompilation: a cheap
// zip inventory of the archive itself, and a deeper census of a
// decompiled tree in either apktool or jadx layout.
package analyze

import (
	"archive/zip"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/beevik/etree"
	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/purify/pkg/purify/logging"
	"github.com/jamesainslie/purify/pkg/purify/patterns"
	"github.com/jamesainslie/purify/pkg/purify/types"
)

// ErrInvalidAPK marks inputs that are not usable APK files.
var ErrInvalidAPK = errors.New("invalid apk")

// ValidArtifact checks that path names a plausible APK: an existing .apk
// file that opens as a zip and contains AndroidManifest.xml and at least
// one dex.
func ValidArtifact(path string) (types.Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.Artifact{}, fmt.Errorf("%w: %v", ErrInvalidAPK, err)
	}
	if info.IsDir() {
		return types.Artifact{}, fmt.Errorf("%w: %s is a directory", ErrInvalidAPK, path)
	}
	if !strings.EqualFold(filepath.Ext(path), ".apk") {
		return types.Artifact{}, fmt.Errorf("%w: %s is not an .apk file", ErrInvalidAPK, path)
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		return types.Artifact{}, fmt.Errorf("%w: not a zip archive: %v", ErrInvalidAPK, err)
	}
	defer r.Close()

	hasManifest := false
	hasDex := false
	for _, f := range r.File {
		switch {
		case f.Name == "AndroidManifest.xml":
			hasManifest = true
		case strings.HasSuffix(f.Name, ".dex") && !strings.Contains(f.Name, "/"):
			hasDex = true
		}
	}
	if !hasManifest {
		return types.Artifact{}, fmt.Errorf("%w: no AndroidManifest.xml", ErrInvalidAPK)
	}
	if !hasDex {
		return types.Artifact{}, fmt.Errorf("%w: no classes.dex", ErrInvalidAPK)
	}

	return types.Artifact{Path: path, Size: info.Size()}, nil
}

// InspectAPK builds a shallow analysis from the archive listing alone,
// without decompiling.
func InspectAPK(path string) (*types.Analysis, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening apk: %w", err)
	}
	defer r.Close()

	analysis := &types.Analysis{}
	for _, f := range r.File {
		switch {
		case strings.HasSuffix(f.Name, ".dex") && !strings.Contains(f.Name, "/"):
			analysis.DexFiles++
		case strings.HasPrefix(f.Name, "res/"):
			analysis.ResourceCount++
		}
	}
	return analysis, nil
}

// AnalyzeTree inspects a decompiled tree. Both layouts are recognized:
// apktool puts AndroidManifest.xml at the root next to smali dirs, jadx
// nests it under resources/ with code under sources/.
func AnalyzeTree(projectDir string, pats *patterns.Set) (*types.Analysis, error) {
	logger := logging.Get("analyze")
	analysis := &types.Analysis{}

	manifestPath := filepath.Join(projectDir, "AndroidManifest.xml")
	codeRoots, codeExt := apktoolLayout(projectDir)
	if len(codeRoots) == 0 {
		// jadx layout
		manifestPath = filepath.Join(projectDir, "resources", "AndroidManifest.xml")
		if dirExists(filepath.Join(projectDir, "sources")) {
			codeRoots = []string{filepath.Join(projectDir, "sources")}
			codeExt = ".java"
		}
	}

	if err := parseManifest(manifestPath, analysis); err != nil {
		logger.Warn("manifest not parsed", "path", manifestPath, "error", err)
	}

	if len(codeRoots) > 0 {
		total, adFiles, err := codeCensus(codeRoots, codeExt, pats)
		if err != nil {
			return nil, err
		}
		analysis.CodeFiles = total
		analysis.AdRelatedFiles = adFiles
	}

	analysis.ResourceCount = countFiles(resDir(projectDir))

	logger.Info("tree analyzed",
		"dir", projectDir,
		"package", analysis.Package,
		"code_files", analysis.CodeFiles,
		"ad_related", len(analysis.AdRelatedFiles))
	return analysis, nil
}

// apktoolLayout returns the smali roots when projectDir looks like
// apktool output.
func apktoolLayout(projectDir string) ([]string, string) {
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return nil, ""
	}
	var roots []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "smali") {
			roots = append(roots, filepath.Join(projectDir, entry.Name()))
		}
	}
	return roots, ".smali"
}

func resDir(projectDir string) string {
	direct := filepath.Join(projectDir, "res")
	if dirExists(direct) {
		return direct
	}
	return filepath.Join(projectDir, "resources", "res")
}

func parseManifest(path string, analysis *types.Analysis) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return fmt.Errorf("parsing manifest: %w", err)
	}

	root := doc.Root()
	if root == nil || root.Tag != "manifest" {
		return errors.New("no <manifest> root")
	}

	analysis.Package = root.SelectAttrValue("package", "")
	analysis.VersionName = root.SelectAttrValue("android:versionName", "")

	for _, perm := range root.SelectElements("uses-permission") {
		if name := perm.SelectAttrValue("android:name", ""); name != "" {
			analysis.Permissions = append(analysis.Permissions, name)
		}
	}

	if app := root.SelectElement("application"); app != nil {
		collect := func(kind string, dst *[]string) {
			for _, el := range app.SelectElements(kind) {
				if name := el.SelectAttrValue("android:name", ""); name != "" {
					*dst = append(*dst, name)
				}
			}
		}
		collect("activity", &analysis.Activities)
		collect("service", &analysis.Services)
		collect("receiver", &analysis.Receivers)
	}

	return nil
}

// codeCensus counts code files under the given roots and collects the
// relative paths whose package path matches an ad class prefix.
func codeCensus(roots []string, ext string, pats *patterns.Set) (int, []string, error) {
	var (
		total   atomic.Int64
		mu      sync.Mutex
		adFiles []string
	)

	conf := fastwalk.Config{Follow: false}
	for _, root := range roots {
		root := root
		err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.HasSuffix(path, ext) {
				return nil
			}
			total.Add(1)

			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			for _, pattern := range pats.Classes {
				if strings.Contains(rel, pattern) {
					mu.Lock()
					adFiles = append(adFiles, rel)
					mu.Unlock()
					break
				}
			}
			return nil
		})
		if err != nil {
			return 0, nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}

	return int(total.Load()), adFiles, nil
}

func countFiles(dir string) int {
	count := 0
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			count++
		}
		return nil
	})
	return count
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
