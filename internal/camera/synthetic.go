package camera

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/banshee-data/scopecam/internal/timeutil"
)

// ErrSyntheticReadFailure is returned by SyntheticDevice on scheduled failures.
var ErrSyntheticReadFailure = errors.New("synthetic read failure")

// SyntheticDevice is a deterministic camera for tests and running without
// hardware. Frames are a moving grey gradient sprinkled with saturated hot
// pixels, which the median filter is expected to remove.
type SyntheticDevice struct {
	Width  int
	Height int
	FPS    float64
	// HotPixelStride places a hot pixel every n pixels; zero disables them.
	HotPixelStride int
	// FailEvery makes every nth read fail; zero never fails.
	FailEvery int
	// Clock paces reads at FPS when set.
	Clock timeutil.Clock

	mu      sync.Mutex
	reads   int
	applied []Parameters
	closed  bool
}

// NewSyntheticDevice returns a w×h device running at fps with a hot pixel
// every 97 pixels.
func NewSyntheticDevice(w, h int, fps float64) *SyntheticDevice {
	return &SyntheticDevice{Width: w, Height: h, FPS: fps, HotPixelStride: 97}
}

// ReadFrame implements Device.
func (d *SyntheticDevice) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, errors.New("synthetic device closed")
	}
	d.reads++
	n := d.reads
	clock := d.Clock
	d.mu.Unlock()

	if clock != nil && d.FPS > 0 {
		clock.Sleep(time.Duration(float64(time.Second) / d.FPS))
	}
	if d.FailEvery > 0 && n%d.FailEvery == 0 {
		return nil, ErrSyntheticReadFailure
	}
	return d.render(n), nil
}

func (d *SyntheticDevice) render(n int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, d.Width, d.Height))
	span := max(1, d.Width+d.Height)
	for y := 0; y < d.Height; y++ {
		for x := 0; x < d.Width; x++ {
			v := uint8(((x + y + n) % span) * 200 / span)
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	if d.HotPixelStride > 0 {
		for i := (n * 7) % d.HotPixelStride; i < len(img.Pix); i += d.HotPixelStride {
			img.Pix[i] = 255
		}
	}
	return img
}

// Apply implements Device and records p.
func (d *SyntheticDevice) Apply(p Parameters) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.applied = append(d.applied, p)
	return nil
}

// Applied returns every parameter set pushed to the device.
func (d *SyntheticDevice) Applied() []Parameters {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Parameters(nil), d.applied...)
}

// Reads is the number of ReadFrame calls so far.
func (d *SyntheticDevice) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

// Property implements Device.
func (d *SyntheticDevice) Property(name string) (float64, bool) {
	switch name {
	case "fps":
		return d.FPS, true
	case "width":
		return float64(d.Width), true
	case "height":
		return float64(d.Height), true
	}
	return 0, false
}

// Close implements Device.
func (d *SyntheticDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
