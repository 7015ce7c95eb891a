package patch

import (
	"fmt"
	"os"
	"path/filepath"
)

// removeClasses deletes ad SDK code from every smali root: for each class
// path prefix, the whole package directory and any standalone
// <prefix>.smali file. Already-removed entries are skipped, which makes
// the pass idempotent.
func (e *Engine) removeClasses(projectDir string) (int, []string, error) {
	roots := smaliRoots(projectDir)
	if len(roots) == 0 {
		return 0, nil, nil
	}

	var (
		removed int
		soft    []string
	)

	for _, root := range roots {
		for _, pattern := range e.pats.Classes {
			dir := filepath.Join(root, filepath.FromSlash(pattern))
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				if err := os.RemoveAll(dir); err != nil {
					soft = append(soft, fmt.Sprintf("removing %s: %v", dir, err))
				} else {
					removed++
					e.logger.Info("removed ad class directory", "path", dir)
				}
			}

			file := dir + ".smali"
			if info, err := os.Stat(file); err == nil && !info.IsDir() {
				if err := os.Remove(file); err != nil {
					soft = append(soft, fmt.Sprintf("removing %s: %v", file, err))
				} else {
					removed++
					e.logger.Info("removed ad class file", "path", file)
				}
			}
		}
	}

	e.logger.Info("class removal done", "removed", removed)
	return removed, soft, nil
}
