package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/anthonynsimon/bild/clone"
)

var (
	// ErrAlreadyStreaming is returned by Start while the capture loop runs.
	ErrAlreadyStreaming = errors.New("camera already streaming")
	// ErrNotStreaming is returned by Stop when the source is idle.
	ErrNotStreaming = errors.New("camera not streaming")
)

// Frame is one captured image. Once handed out it is shared read-only between
// the display and save paths; use Clone before modifying the pixels.
type Frame struct {
	Seq      uint64
	Captured time.Time
	Image    image.Image
}

// Clone returns a frame with its own copy of the pixel data.
func (f Frame) Clone() Frame {
	if f.Image != nil {
		f.Image = clone.AsRGBA(f.Image)
	}
	return f
}

// Size returns the frame's pixel dimensions.
func (f Frame) Size() (width, height int) {
	if f.Image == nil {
		return 0, 0
	}
	b := f.Image.Bounds()
	return b.Dx(), b.Dy()
}

// CaptureReadError is a single failed device read. The capture loop logs it
// and carries on.
type CaptureReadError struct {
	Seq uint64
	Err error
}

func (e *CaptureReadError) Error() string {
	return fmt.Sprintf("camera read after frame %d failed: %v", e.Seq, e.Err)
}

func (e *CaptureReadError) Unwrap() error { return e.Err }

// Device is a camera the Source reads frames from.
type Device interface {
	// ReadFrame blocks for the next image.
	ReadFrame(ctx context.Context) (image.Image, error)
	// Apply pushes capture parameters to the hardware.
	Apply(p Parameters) error
	// Property returns "fps", "width" or "height".
	Property(name string) (float64, bool)
	Close() error
}
