//go:build linux

// Package v4l2 is the Linux USB camera backend, reading MJPEG frames through
// go4vl.
package v4l2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"

	"github.com/banshee-data/scopecam/internal/camera"
)

// V4L2 control IDs (linux/v4l2-controls.h).
const (
	ctrlAutogain         = 0x00980912
	ctrlGain             = 0x00980913
	ctrlExposureAuto     = 0x009a0901
	ctrlExposureAbsolute = 0x009a0902

	exposureManual       = 1
	exposureAperturePrio = 3
)

// Options selects the capture format.
type Options struct {
	Path   string
	Width  int
	Height int
	FPS    int
}

// Device is a camera.Device backed by a V4L2 node.
type Device struct {
	dev    *device.Device
	opts   Options
	format Format
	frames <-chan []byte
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// Open opens the node in MJPEG mode and starts streaming into the driver's
// buffers. Frames are read with ReadFrame.
func Open(opts Options) (*Device, error) {
	dev, err := device.Open(opts.Path,
		device.WithIOType(v4l2.IOTypeMMAP),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: v4l2.PixelFmtMJPEG,
			Width:       uint32(opts.Width),
			Height:      uint32(opts.Height),
			Field:       v4l2.FieldNone,
		}),
		device.WithFPS(uint32(opts.FPS)),
		device.WithBufferSize(4),
	)
	if err != nil {
		return nil, fmt.Errorf("open camera %s: %w", opts.Path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := dev.Start(ctx); err != nil {
		cancel()
		dev.Close()
		return nil, fmt.Errorf("start camera %s: %w", opts.Path, err)
	}

	pix, sizeErr := dev.GetPixFormat()
	fps, fpsErr := dev.GetFrameRate()
	format := negotiated(opts, pix.Width, pix.Height, sizeErr, fps, fpsErr)
	if format != (Format{Width: opts.Width, Height: opts.Height, FPS: opts.FPS}) {
		logf("%s asked for %dx%d@%d, driver chose %dx%d@%d", opts.Path,
			opts.Width, opts.Height, opts.FPS, format.Width, format.Height, format.FPS)
	}
	logf("opened %s at %dx%d@%d MJPEG", opts.Path, format.Width, format.Height, format.FPS)

	return &Device{
		dev:    dev,
		opts:   opts,
		format: format,
		frames: dev.GetOutput(),
		cancel: cancel,
	}, nil
}

// ReadFrame implements camera.Device.
func (d *Device) ReadFrame(ctx context.Context) (image.Image, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case buf, ok := <-d.frames:
		if !ok {
			return nil, errors.New("camera stream closed")
		}
		if len(buf) == 0 {
			return nil, errors.New("empty frame")
		}
		return jpeg.Decode(bytes.NewReader(buf))
	}
}

// Apply implements camera.Device. Controls a camera does not expose are
// logged and skipped.
func (d *Device) Apply(p camera.Parameters) error {
	exposureMode := int32(exposureManual)
	if p.AutoExposure {
		exposureMode = exposureAperturePrio
	}
	autogain := int32(0)
	if p.AutoGain {
		autogain = 1
	}

	controls := []struct {
		name  string
		id    uint32
		value int32
	}{
		{"exposure_auto", ctrlExposureAuto, exposureMode},
		// V4L2 absolute exposure is in units of 100µs.
		{"exposure_absolute", ctrlExposureAbsolute, int32(p.ExposureMs * 10)},
		{"autogain", ctrlAutogain, autogain},
		{"gain", ctrlGain, int32(p.GainDB)},
	}
	for _, c := range controls {
		if c.name == "exposure_absolute" && p.AutoExposure {
			continue
		}
		if c.name == "gain" && p.AutoGain {
			continue
		}
		if err := d.dev.SetControlValue(c.id, c.value); err != nil {
			logf("set %s=%d: %v", c.name, c.value, err)
		}
	}
	return nil
}

// Property implements camera.Device with the format the driver negotiated
// when the device was opened.
func (d *Device) Property(name string) (float64, bool) {
	return d.format.property(name)
}

// Close stops streaming and releases the node.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.cancel()
	return d.dev.Close()
}
