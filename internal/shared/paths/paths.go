// Package paths provides workspace path normalization and boundary
// checks shared by the safety policy and session defaults.
package paths

import (
	"path/filepath"
	"strings"
)

// DefaultWorkspaceRoot is the stock workspace mount.
const DefaultWorkspaceRoot = "/workspace"

// Normalize cleans a path to its canonical lexical form.
func Normalize(path string) string {
	return filepath.Clean(path)
}

// WithinRoot reports whether path is root itself or nested under it.
// The comparison is lexical; "/workspace-evil" is not inside
// "/workspace", and "/workspace/../etc" cleans to a path outside it.
func WithinRoot(path, root string) bool {
	cleaned := Normalize(path)
	root = Normalize(root)
	return cleaned == root || strings.HasPrefix(cleaned, root+string(filepath.Separator))
}

// WithinRoots reports whether path falls under any of the given roots.
func WithinRoots(path string, roots []string) bool {
	for _, root := range roots {
		if WithinRoot(path, root) {
			return true
		}
	}
	return false
}
