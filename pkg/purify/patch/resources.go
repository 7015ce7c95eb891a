package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resource kinds scanned for ad assets. Qualified variants (layout-land,
// drawable-xxhdpi, ...) are matched by prefix.
var resourceKinds = []string{"layout", "drawable"}

// removedResource identifies one deleted resource for public.xml cleanup.
type removedResource struct {
	kind string
	name string
}

// cleanResources deletes resource files whose stem matches an ad resource
// glob, across every qualifier directory, then drops the matching
// declarations from each res/values*/public.xml. Declarations left behind
// for deleted files break apktool rebuilds, so the two steps belong to
// the same pass.
func (e *Engine) cleanResources(projectDir string) (int, []string, error) {
	resDir := filepath.Join(projectDir, "res")
	entries, err := os.ReadDir(resDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil, nil
		}
		return 0, nil, fmt.Errorf("reading res dir: %w", err)
	}

	var (
		removedCount int
		removed      []removedResource
		soft         []string
	)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		kind := baseKind(entry.Name())
		if kind == "" {
			continue
		}

		dir := filepath.Join(resDir, entry.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			soft = append(soft, fmt.Sprintf("reading %s: %v", dir, err))
			continue
		}

		for _, file := range files {
			if file.IsDir() {
				continue
			}
			stem := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
			if !e.pats.MatchResource(stem) {
				continue
			}

			path := filepath.Join(dir, file.Name())
			if err := os.Remove(path); err != nil {
				soft = append(soft, fmt.Sprintf("removing %s: %v", path, err))
				continue
			}
			removedCount++
			removed = append(removed, removedResource{kind: kind, name: stem})
			e.logger.Info("removed resource", "kind", kind, "file", file.Name())
		}
	}

	if len(removed) > 0 {
		if errs := e.cleanPublicXML(projectDir, removed); len(errs) > 0 {
			soft = append(soft, errs...)
		}
	}

	e.logger.Info("resource cleanup done", "removed", removedCount)
	return removedCount, soft, nil
}

// baseKind maps a res subdirectory name to its resource kind, stripping
// qualifiers: layout-land -> layout. Unknown kinds return "".
func baseKind(dirName string) string {
	for _, kind := range resourceKinds {
		if dirName == kind || strings.HasPrefix(dirName, kind+"-") {
			return kind
		}
	}
	return ""
}

// cleanPublicXML filters declaration lines out of every public.xml. The
// files are line-oriented apktool output; a line goes when it names both
// the kind and the name of a removed resource. Text filtering keeps the
// surrounding formatting byte-identical, which XML round-tripping would
// not.
func (e *Engine) cleanPublicXML(projectDir string, removed []removedResource) []string {
	var soft []string

	for _, valuesDir := range valuesDirs(projectDir) {
		publicPath := filepath.Join(valuesDir, "public.xml")
		data, err := os.ReadFile(publicPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			soft = append(soft, fmt.Sprintf("reading %s: %v", publicPath, err))
			continue
		}

		lines := strings.Split(string(data), "\n")
		filtered := lines[:0]
		dropped := 0

		for _, line := range lines {
			if declaresRemoved(line, removed) {
				dropped++
				continue
			}
			filtered = append(filtered, line)
		}

		if dropped == 0 {
			continue
		}

		out := strings.Join(filtered, "\n")
		if err := os.WriteFile(publicPath, []byte(out), 0o644); err != nil {
			soft = append(soft, fmt.Sprintf("writing %s: %v", publicPath, err))
			continue
		}
		e.logger.Info("updated public.xml", "path", publicPath, "entries_removed", dropped)
	}

	return soft
}

func declaresRemoved(line string, removed []removedResource) bool {
	for _, r := range removed {
		if strings.Contains(line, `type="`+r.kind+`"`) &&
			strings.Contains(line, `name="`+r.name+`"`) {
			return true
		}
	}
	return false
}
