package patch

import (
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
)

// replaceDomains rewrites ad network hostnames inside smali files with an
// equal-length run of 'x'. Keeping the byte length identical preserves
// smali string literal annotations, so the tree still assembles. The
// count is one per (domain, file) pair, matching how often a rewrite
// decision was made rather than raw occurrences.
func (e *Engine) replaceDomains(projectDir string) (int, []string, error) {
	roots := smaliRoots(projectDir)
	if len(roots) == 0 {
		return 0, nil, nil
	}

	domains := e.pats.SortedDomains()
	fillers := make(map[string]string, len(domains))
	for _, d := range domains {
		fillers[d] = strings.Repeat("x", len(d))
	}

	var (
		mu       sync.Mutex
		replaced int
		soft     []string
	)

	conf := fastwalk.Config{Follow: false}
	for _, root := range roots {
		err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				mu.Lock()
				soft = append(soft, fmt.Sprintf("walking %s: %v", path, err))
				mu.Unlock()
				return nil
			}
			if d.IsDir() || !strings.HasSuffix(path, ".smali") {
				return nil
			}

			data, err := os.ReadFile(path)
			if err != nil {
				mu.Lock()
				soft = append(soft, fmt.Sprintf("reading %s: %v", path, err))
				mu.Unlock()
				return nil
			}

			content := string(data)
			fileReplacements := 0
			for _, domain := range domains {
				if strings.Contains(content, domain) {
					content = strings.ReplaceAll(content, domain, fillers[domain])
					fileReplacements++
				}
			}
			if fileReplacements == 0 {
				return nil
			}

			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				mu.Lock()
				soft = append(soft, fmt.Sprintf("writing %s: %v", path, err))
				mu.Unlock()
				return nil
			}

			mu.Lock()
			replaced += fileReplacements
			mu.Unlock()
			e.logger.Debug("replaced ad domains", "file", path, "domains", fileReplacements)
			return nil
		})
		if err != nil {
			return replaced, soft, fmt.Errorf("walking %s: %w", root, err)
		}
	}

	e.logger.Info("domain replacement done", "replaced", replaced)
	return replaced, soft, nil
}
