//go:build !linux

package v4l2

import (
	"context"
	"errors"
	"image"

	"github.com/banshee-data/scopecam/internal/camera"
)

// ErrUnsupported is returned by Open on platforms without V4L2.
var ErrUnsupported = errors.New("v4l2 cameras are only supported on linux")

// Options selects the capture format.
type Options struct {
	Path   string
	Width  int
	Height int
	FPS    int
}

// Device is unavailable on this platform.
type Device struct{}

// Open always fails with ErrUnsupported.
func Open(Options) (*Device, error) { return nil, ErrUnsupported }

func (*Device) ReadFrame(context.Context) (image.Image, error) { return nil, ErrUnsupported }
func (*Device) Apply(camera.Parameters) error                  { return ErrUnsupported }
func (*Device) Property(string) (float64, bool)                { return 0, false }
func (*Device) Close() error                                   { return nil }
