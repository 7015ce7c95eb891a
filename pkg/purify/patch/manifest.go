package patch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/beevik/etree"
)

// Manifest component kinds that can carry ad SDK entry points.
var componentKinds = []string{"activity", "service", "receiver"}

// cleanManifest strips ad-related entries from AndroidManifest.xml:
// uses-permission elements whose name matches the permission list, and
// application components whose android:name contains a component keyword.
// Returns (permissions removed, components removed). A missing manifest
// is not an error; jadx trees don't always produce one.
func (e *Engine) cleanManifest(projectDir string) (int, int, error) {
	manifestPath := filepath.Join(projectDir, "AndroidManifest.xml")
	if _, err := os.Stat(manifestPath); os.IsNotExist(err) {
		return 0, 0, nil
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromFile(manifestPath); err != nil {
		return 0, 0, fmt.Errorf("parsing manifest: %w", err)
	}

	root := doc.Root()
	if root == nil || root.Tag != "manifest" {
		return 0, 0, fmt.Errorf("manifest has no <manifest> root")
	}

	permissions := 0
	for _, perm := range root.SelectElements("uses-permission") {
		name := perm.SelectAttrValue("android:name", "")
		if e.pats.MatchPermission(name) {
			root.RemoveChild(perm)
			permissions++
			e.logger.Info("removed permission", "name", name)
		}
	}

	components := 0
	if app := root.SelectElement("application"); app != nil {
		for _, kind := range componentKinds {
			for _, comp := range app.SelectElements(kind) {
				name := comp.SelectAttrValue("android:name", "")
				if e.pats.MatchComponent(name) {
					app.RemoveChild(comp)
					components++
					e.logger.Info("removed component", "kind", kind, "name", name)
				}
			}
		}
	}

	if permissions == 0 && components == 0 {
		return 0, 0, nil
	}

	if err := doc.WriteToFile(manifestPath); err != nil {
		return permissions, components, fmt.Errorf("writing manifest: %w", err)
	}

	e.logger.Info("manifest cleanup done", "permissions", permissions, "components", components)
	return permissions, components, nil
}
