package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	safeDir := filepath.Join(tmpDir, "vids")
	unsafeDir := filepath.Join(tmpDir, "elsewhere")
	require.NoError(t, os.MkdirAll(safeDir, 0o755))
	require.NoError(t, os.MkdirAll(unsafeDir, 0o755))
	require.NoError(t, os.Symlink(unsafeDir, filepath.Join(safeDir, "escape")))

	tests := []struct {
		name    string
		path    string
		safeDir string
		wantErr bool
	}{
		{"existing dir child", filepath.Join(safeDir, "video_0000.avi"), safeDir, false},
		{"nested new dir", filepath.Join(safeDir, "a", "b", "snap_0001.png"), safeDir, false},
		{"safe dir not created yet", filepath.Join(tmpDir, "later", "video_0000.avi"), filepath.Join(tmpDir, "later"), false},
		{"dot dot", filepath.Join(safeDir, "..", "elsewhere", "x.avi"), safeDir, true},
		{"sibling with shared prefix", filepath.Join(tmpDir, "vids2", "x.avi"), safeDir, true},
		{"through symlink", filepath.Join(safeDir, "escape", "x.avi"), safeDir, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, tt.safeDir)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateNamePart(t *testing.T) {
	for _, ok := range []string{"video_", ".avi", "", "snap-"} {
		assert.NoError(t, ValidateNamePart("prefix", ok), ok)
	}
	for _, bad := range []string{"../video_", "a/b", `a\b`, "x..y", "nul\x00"} {
		assert.Error(t, ValidateNamePart("prefix", bad), bad)
	}
}
