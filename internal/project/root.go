// Package project locates Sail project roots and the optional sail-lsp
// manifest.
package project

import (
	"os"
	"path/filepath"
)

// markerNames are the files that mark a Sail project root. The marker file
// itself is the entry point sail loads.
var markerNames = [...]string{"ROOT", ".sail_project"}

func markerIn(dir string) (string, bool) {
	for _, name := range markerNames {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// FindEntryFile resolves the file a fresh sail session should load for
// filePath: the project marker in root when one exists, otherwise the
// nearest marker walking upward from filePath, otherwise filePath itself.
func FindEntryFile(root, filePath string) string {
	if root != "" {
		if marker, ok := markerIn(root); ok {
			return marker
		}
	}
	dir := filepath.Dir(filePath)
	for {
		if marker, ok := markerIn(dir); ok {
			return marker
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return filePath
}
