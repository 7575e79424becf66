package main

import (
	"flag"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFlagDefaults verifies that every override flag defaults to empty so the
// config file (or its built-in defaults) wins.
func TestFlagDefaults(t *testing.T) {
	for _, name := range []string{"config", "port", "camera", "video-dir", "db"} {
		f := flag.Lookup(name)
		require.NotNil(t, f, "flag -%s not defined", name)
		assert.Empty(t, f.DefValue, "flag -%s", name)
	}

	assert.Equal(t, ":8080", flag.Lookup("listen").DefValue)
	assert.Equal(t, "false", flag.Lookup("dev").DefValue)
	assert.Equal(t, "false", flag.Lookup("version").DefValue)
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", cfg.GetSerialPort())

	cfg, err = loadConfig(filepath.Join("..", "..", "config", "scope.defaults.json"))
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.GetFrameRate())

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
