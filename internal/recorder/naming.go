package recorder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/scopecam/internal/fsutil"
	"github.com/banshee-data/scopecam/internal/security"
)

// NextIndexedPath returns dir/prefixNNNN+ext where NNNN is one past the
// highest index already present, so names only ever increase even when
// earlier files were deleted. The directory is created if missing.
func NextIndexedPath(fs fsutil.FileSystem, dir, prefix, ext string) (string, error) {
	if err := security.ValidateNamePart("prefix", prefix); err != nil {
		return "", err
	}
	if err := security.ValidateNamePart("extension", ext); err != nil {
		return "", err
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	names, err := fs.ReadDirNames(dir)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", dir, err)
	}

	next := 0
	for _, name := range names {
		if n, ok := parseIndex(name, prefix, ext); ok && n >= next {
			next = n + 1
		}
	}
	path := filepath.Join(dir, fmt.Sprintf("%s%04d%s", prefix, next, ext))
	if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
		return "", err
	}
	return path, nil
}

// maxReserveAttempts bounds how often ReserveIndexedPath rescans after
// losing a name to another writer.
const maxReserveAttempts = 16

// ReserveIndexedPath picks a name like NextIndexedPath and creates it
// empty with O_EXCL, so a concurrent writer sharing dir cannot be handed
// the same name. The caller owns the returned file.
func ReserveIndexedPath(fs fsutil.FileSystem, dir, prefix, ext string) (string, error) {
	for range maxReserveAttempts {
		path, err := NextIndexedPath(fs, dir, prefix, ext)
		if err != nil {
			return "", err
		}
		err = fs.CreateExclusive(path, 0o644)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("reserve %s: %w", path, err)
		}
		logf("%s taken by another writer, rescanning", path)
	}
	return "", fmt.Errorf("no free %s*%s name in %s after %d attempts", prefix, ext, dir, maxReserveAttempts)
}

// NextVideoPath is NextIndexedPath for recordings.
func NextVideoPath(fs fsutil.FileSystem, dir, prefix, ext string) (string, error) {
	return NextIndexedPath(fs, dir, prefix, ext)
}

func parseIndex(name, prefix, ext string) (int, bool) {
	if len(name) < len(prefix)+len(ext) || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
		return 0, false
	}
	digits := name[len(prefix) : len(name)-len(ext)]
	if len(digits) < 4 {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}
