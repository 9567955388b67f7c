// Package files implements the workspace-sandboxed filesystem tools:
// read_file, write_file, edit_file, list_dir.
package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolver resolves a caller-supplied path to an absolute path inside a
// workspace root, refusing anything that would escape it. An empty Root
// disables the restriction entirely, per the sandbox's documented escape
// hatch for unconfigured workspaces.
type Resolver struct {
	Root string
}

// Resolve returns an absolute, cleaned path within the workspace root, or
// an error if path is empty or escapes the root.
func (r Resolver) Resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	root := strings.TrimSpace(r.Root)
	if root == "" {
		if filepath.IsAbs(clean) {
			return filepath.Clean(clean), nil
		}
		abs, err := filepath.Abs(clean)
		if err != nil {
			return "", fmt.Errorf("resolve path: %w", err)
		}
		return abs, nil
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}

	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(rootAbs, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return targetAbs, nil
}
