package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultConfigPath is the path to the canonical scope defaults file.
const DefaultConfigPath = "config/scope.defaults.json"

// ScopeConfig is the root configuration for the microscope accessory: the
// controller's serial link, the camera, the acquisition loops and recording.
// Unset fields fall back to the defaults returned by the Get* accessors, so
// partial files are safe.
type ScopeConfig struct {
	// Controller link
	SerialPort      *string `json:"serial_port,omitempty"`
	BaudRate        *int    `json:"baud_rate,omitempty"`
	ReadTimeout     *string `json:"read_timeout,omitempty"` // duration string like "3s"
	DeviceIdentity  *string `json:"device_identity,omitempty"`
	Encoding        *string `json:"encoding,omitempty"`
	LimitSettleTime *string `json:"limit_settle_time,omitempty"`

	// Camera
	CameraDevice       *string  `json:"camera_device,omitempty"`
	FrameWidth         *int     `json:"frame_width,omitempty"`
	FrameHeight        *int     `json:"frame_height,omitempty"`
	FrameRate          *int     `json:"frame_rate,omitempty"`
	FrameQueueCapacity *int     `json:"frame_queue_capacity,omitempty"`
	AutoExposure       *bool    `json:"auto_exposure,omitempty"`
	AutoGain           *bool    `json:"auto_gain,omitempty"`
	ExposureMs         *float64 `json:"exposure_ms,omitempty"`
	GainDB             *float64 `json:"gain_db,omitempty"`
	MinExposureMs      *float64 `json:"min_exposure_ms,omitempty"`
	MaxExposureMs      *float64 `json:"max_exposure_ms,omitempty"`
	MinGainDB          *float64 `json:"min_gain_db,omitempty"`
	MaxGainDB          *float64 `json:"max_gain_db,omitempty"`
	Binning            *int     `json:"binning,omitempty"`
	CropROI            *bool    `json:"crop_roi,omitempty"`
	MedianFilterSize   *int     `json:"median_filter_size,omitempty"`

	// Acquisition loops
	PollInterval    *string `json:"poll_interval,omitempty"`
	DisplayInterval *string `json:"display_interval,omitempty"`

	// Recording
	SaveQueueCapacity *int    `json:"save_queue_capacity,omitempty"`
	VideoDir          *string `json:"video_dir,omitempty"`
	VideoPrefix       *string `json:"video_prefix,omitempty"`
	VideoExtension    *string `json:"video_extension,omitempty"`
	JPEGQuality       *int    `json:"jpeg_quality,omitempty"`
	DatabasePath      *string `json:"database_path,omitempty"`

	// Preview
	PreviewMaxWidth  *int `json:"preview_max_width,omitempty"`
	PreviewMaxHeight *int `json:"preview_max_height,omitempty"`

	// Jog step sizes
	LensBigStep    *int `json:"lens_big_step,omitempty"`
	LensSmallStep  *int `json:"lens_small_step,omitempty"`
	MotorBigStep   *int `json:"motor_big_step,omitempty"`
	MotorSmallStep *int `json:"motor_small_step,omitempty"`
}

// EmptyScopeConfig returns a ScopeConfig with all fields set to nil, so every
// accessor reports its default.
func EmptyScopeConfig() *ScopeConfig {
	return &ScopeConfig{}
}

// LoadScopeConfig loads a ScopeConfig from a JSON file.
// The file must have a .json extension and be under the max file size.
func LoadScopeConfig(path string) (*ScopeConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyScopeConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *ScopeConfig) Validate() error {
	for name, v := range map[string]*string{
		"read_timeout":      c.ReadTimeout,
		"limit_settle_time": c.LimitSettleTime,
		"poll_interval":     c.PollInterval,
		"display_interval":  c.DisplayInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}

	if c.Encoding != nil {
		switch strings.ToLower(*c.Encoding) {
		case "utf8", "utf-8", "ascii":
		default:
			return fmt.Errorf("unsupported encoding %q: expected utf-8 or ascii", *c.Encoding)
		}
	}

	for name, v := range map[string]*int{
		"baud_rate":            c.BaudRate,
		"frame_width":          c.FrameWidth,
		"frame_height":         c.FrameHeight,
		"frame_rate":           c.FrameRate,
		"frame_queue_capacity": c.FrameQueueCapacity,
		"save_queue_capacity":  c.SaveQueueCapacity,
		"binning":              c.Binning,
	} {
		if v != nil && *v < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, *v)
		}
	}

	if c.MedianFilterSize != nil {
		if n := *c.MedianFilterSize; n < 1 || n%2 == 0 {
			return fmt.Errorf("median_filter_size must be a positive odd number, got %d", n)
		}
	}

	for name, v := range map[string]*int{
		"preview_max_width":  c.PreviewMaxWidth,
		"preview_max_height": c.PreviewMaxHeight,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, *v)
		}
	}

	if c.JPEGQuality != nil {
		if q := *c.JPEGQuality; q < 1 || q > 100 {
			return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", q)
		}
	}

	if c.GetMinExposureMs() <= 0 || c.GetMinExposureMs() > c.GetMaxExposureMs() {
		return fmt.Errorf("exposure bounds invalid: min %g, max %g", c.GetMinExposureMs(), c.GetMaxExposureMs())
	}
	if c.GetMinGainDB() < 0 || c.GetMinGainDB() > c.GetMaxGainDB() {
		return fmt.Errorf("gain bounds invalid: min %g, max %g", c.GetMinGainDB(), c.GetMaxGainDB())
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// GetSerialPort returns the controller's serial port path.
func (c *ScopeConfig) GetSerialPort() string { return stringOr(c.SerialPort, "/dev/ttyACM0") }

// GetBaudRate returns the controller's baud rate.
func (c *ScopeConfig) GetBaudRate() int { return intOr(c.BaudRate, 115200) }

// GetReadTimeout returns how long a response line may take.
func (c *ScopeConfig) GetReadTimeout() time.Duration { return durationOr(c.ReadTimeout, 3*time.Second) }

// GetDeviceIdentity returns the string the controller must answer to "Y".
func (c *ScopeConfig) GetDeviceIdentity() string { return stringOr(c.DeviceIdentity, "cheesoSPIM") }

// GetLimitSettleTime returns the pause after each full lens travel.
func (c *ScopeConfig) GetLimitSettleTime() time.Duration {
	return durationOr(c.LimitSettleTime, time.Second)
}

// GetCameraDevice returns the V4L2 device node.
func (c *ScopeConfig) GetCameraDevice() string { return stringOr(c.CameraDevice, "/dev/video0") }

// GetFrameWidth returns the requested capture width in pixels.
func (c *ScopeConfig) GetFrameWidth() int { return intOr(c.FrameWidth, 1280) }

// GetFrameHeight returns the requested capture height in pixels.
func (c *ScopeConfig) GetFrameHeight() int { return intOr(c.FrameHeight, 720) }

// GetFrameRate returns the requested capture rate in frames per second.
func (c *ScopeConfig) GetFrameRate() int { return intOr(c.FrameRate, 15) }

// GetFrameQueueCapacity returns the capacity of the camera's frame queue.
func (c *ScopeConfig) GetFrameQueueCapacity() int { return intOr(c.FrameQueueCapacity, 16) }

// GetAutoExposure returns the initial auto-exposure setting.
func (c *ScopeConfig) GetAutoExposure() bool { return boolOr(c.AutoExposure, false) }

// GetAutoGain returns the initial auto-gain setting.
func (c *ScopeConfig) GetAutoGain() bool { return boolOr(c.AutoGain, true) }

// GetExposureMs returns the initial exposure time in milliseconds.
func (c *ScopeConfig) GetExposureMs() float64 { return floatOr(c.ExposureMs, 50) }

// GetGainDB returns the initial gain in dB.
func (c *ScopeConfig) GetGainDB() float64 { return floatOr(c.GainDB, 24) }

// GetMinExposureMs returns the lower exposure bound.
func (c *ScopeConfig) GetMinExposureMs() float64 { return floatOr(c.MinExposureMs, 0.1) }

// GetMaxExposureMs returns the upper exposure bound.
func (c *ScopeConfig) GetMaxExposureMs() float64 { return floatOr(c.MaxExposureMs, 2000) }

// GetMinGainDB returns the lower gain bound.
func (c *ScopeConfig) GetMinGainDB() float64 { return floatOr(c.MinGainDB, 0) }

// GetMaxGainDB returns the upper gain bound.
func (c *ScopeConfig) GetMaxGainDB() float64 { return floatOr(c.MaxGainDB, 24) }

// GetBinning returns the sensor binning factor.
func (c *ScopeConfig) GetBinning() int { return intOr(c.Binning, 2) }

// GetCropROI returns whether the sensor ROI is cropped.
func (c *ScopeConfig) GetCropROI() bool { return boolOr(c.CropROI, false) }

// GetMedianFilterSize returns the hot-pixel median kernel size.
func (c *ScopeConfig) GetMedianFilterSize() int { return intOr(c.MedianFilterSize, 3) }

// GetPollInterval returns the pipeline's frame polling period.
func (c *ScopeConfig) GetPollInterval() time.Duration {
	return durationOr(c.PollInterval, 5*time.Millisecond)
}

// GetDisplayInterval returns the display refresh period.
func (c *ScopeConfig) GetDisplayInterval() time.Duration {
	return durationOr(c.DisplayInterval, 10*time.Millisecond)
}

// GetSaveQueueCapacity returns the bounded capacity of the save queue.
func (c *ScopeConfig) GetSaveQueueCapacity() int { return intOr(c.SaveQueueCapacity, 100) }

// GetVideoDir returns the directory recordings and snapshots are written to.
func (c *ScopeConfig) GetVideoDir() string { return stringOr(c.VideoDir, "vids") }

// GetVideoPrefix returns the recording file name prefix.
func (c *ScopeConfig) GetVideoPrefix() string { return stringOr(c.VideoPrefix, "video_") }

// GetVideoExtension returns the recording file extension, including the dot.
func (c *ScopeConfig) GetVideoExtension() string { return stringOr(c.VideoExtension, ".avi") }

// GetJPEGQuality returns the quality used for encoded video frames.
func (c *ScopeConfig) GetJPEGQuality() int { return intOr(c.JPEGQuality, 90) }

// GetDatabasePath returns the catalogue database path.
func (c *ScopeConfig) GetDatabasePath() string { return stringOr(c.DatabasePath, "scope.db") }

// GetPreviewMaxWidth bounds the preview width; 0 leaves it unbounded.
func (c *ScopeConfig) GetPreviewMaxWidth() int { return intOr(c.PreviewMaxWidth, 960) }

// GetPreviewMaxHeight bounds the preview height; 0 leaves it unbounded.
func (c *ScopeConfig) GetPreviewMaxHeight() int { return intOr(c.PreviewMaxHeight, 720) }

// GetLensBigStep returns the coarse lens jog size.
func (c *ScopeConfig) GetLensBigStep() int { return intOr(c.LensBigStep, 100) }

// GetLensSmallStep returns the fine lens jog size.
func (c *ScopeConfig) GetLensSmallStep() int { return intOr(c.LensSmallStep, 10) }

// GetMotorBigStep returns the coarse motor jog size.
func (c *ScopeConfig) GetMotorBigStep() int { return intOr(c.MotorBigStep, 100) }

// GetMotorSmallStep returns the fine motor jog size.
func (c *ScopeConfig) GetMotorSmallStep() int { return intOr(c.MotorSmallStep, 5) }
