package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEmptyScopeConfig_Defaults(t *testing.T) {
	cfg := EmptyScopeConfig()

	assert.Equal(t, 115200, cfg.GetBaudRate())
	assert.Equal(t, 3*time.Second, cfg.GetReadTimeout())
	assert.Equal(t, "cheesoSPIM", cfg.GetDeviceIdentity())
	assert.Equal(t, time.Second, cfg.GetLimitSettleTime())
	assert.Equal(t, 5*time.Millisecond, cfg.GetPollInterval())
	assert.Equal(t, 10*time.Millisecond, cfg.GetDisplayInterval())
	assert.Equal(t, 100, cfg.GetSaveQueueCapacity())
	assert.Equal(t, 3, cfg.GetMedianFilterSize())
	assert.Equal(t, 0.1, cfg.GetMinExposureMs())
	assert.Equal(t, 2000.0, cfg.GetMaxExposureMs())
	assert.Equal(t, 0.0, cfg.GetMinGainDB())
	assert.Equal(t, 24.0, cfg.GetMaxGainDB())
	assert.Equal(t, "video_", cfg.GetVideoPrefix())
	assert.Equal(t, ".avi", cfg.GetVideoExtension())
	assert.Equal(t, 100, cfg.GetLensBigStep())
	assert.Equal(t, 10, cfg.GetLensSmallStep())
	assert.Equal(t, 100, cfg.GetMotorBigStep())
	assert.Equal(t, 5, cfg.GetMotorSmallStep())
	assert.Equal(t, 960, cfg.GetPreviewMaxWidth())
	assert.Equal(t, 720, cfg.GetPreviewMaxHeight())
	assert.NoError(t, cfg.Validate())
}

func TestLoadScopeConfig_Partial(t *testing.T) {
	path := writeConfig(t, "scope.json", `{
  "serial_port": "/dev/ttyUSB3",
  "read_timeout": "500ms",
  "save_queue_capacity": 8,
  "median_filter_size": 5
}`)

	cfg, err := LoadScopeConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB3", cfg.GetSerialPort())
	assert.Equal(t, 500*time.Millisecond, cfg.GetReadTimeout())
	assert.Equal(t, 8, cfg.GetSaveQueueCapacity())
	assert.Equal(t, 5, cfg.GetMedianFilterSize())
	// untouched fields keep their defaults
	assert.Equal(t, 115200, cfg.GetBaudRate())
	assert.Equal(t, "vids", cfg.GetVideoDir())
}

func TestLoadScopeConfig_DefaultsFile(t *testing.T) {
	cfg, err := LoadScopeConfig(filepath.Join("..", "..", DefaultConfigPath))
	require.NoError(t, err)

	defaults := EmptyScopeConfig()
	assert.Equal(t, defaults.GetBaudRate(), cfg.GetBaudRate())
	assert.Equal(t, defaults.GetSaveQueueCapacity(), cfg.GetSaveQueueCapacity())
	assert.Equal(t, defaults.GetPollInterval(), cfg.GetPollInterval())
	assert.Equal(t, defaults.GetMaxExposureMs(), cfg.GetMaxExposureMs())
}

func TestLoadScopeConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "scope.yaml", `{}`, ".json extension"},
		{"bad json", "scope.json", `{not json`, "failed to parse"},
		{"bad duration", "scope.json", `{"poll_interval": "soon"}`, "invalid poll_interval"},
		{"even median", "scope.json", `{"median_filter_size": 4}`, "median_filter_size"},
		{"zero capacity", "scope.json", `{"save_queue_capacity": 0}`, "save_queue_capacity"},
		{"encoding", "scope.json", `{"encoding": "latin-1"}`, "unsupported encoding"},
		{"gain bounds", "scope.json", `{"min_gain_db": 30}`, "gain bounds"},
		{"exposure bounds", "scope.json", `{"min_exposure_ms": 0}`, "exposure bounds"},
		{"jpeg quality", "scope.json", `{"jpeg_quality": 101}`, "jpeg_quality"},
		{"preview width", "scope.json", `{"preview_max_width": -1}`, "preview_max_width"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			_, err := LoadScopeConfig(path)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), "error %q should mention %q", err, tt.wantErr)
		})
	}
}

func TestLoadScopeConfig_MissingFile(t *testing.T) {
	_, err := LoadScopeConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stat")
}
