// Package security guards the file names the recorder derives from
// configuration.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// canonical resolves symlinks in the longest existing prefix of path, so
// paths that do not exist yet still resolve through a symlinked parent.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	check := abs
	for {
		if resolved, err := filepath.EvalSymlinks(check); err == nil {
			rest, _ := filepath.Rel(check, abs)
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(check)
		if parent == check {
			return abs, nil
		}
		check = parent
	}
}

// ValidatePathWithinDirectory reports an error when filePath, after cleaning
// and symlink resolution, lies outside safeDir.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	path, err := canonical(filePath)
	if err != nil {
		return err
	}
	dir, err := canonical(safeDir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}

// ValidateNamePart rejects a file name prefix or extension that could move
// the resulting file out of its directory.
func ValidateNamePart(kind, s string) error {
	switch {
	case strings.ContainsAny(s, `/\`):
		return fmt.Errorf("%s %q must not contain a path separator", kind, s)
	case strings.Contains(s, ".."):
		return fmt.Errorf("%s %q must not contain '..'", kind, s)
	case strings.ContainsRune(s, 0):
		return fmt.Errorf("%s %q must not contain NUL", kind, s)
	}
	return nil
}
