package recorder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"github.com/icza/mjpeg"
)

// DefaultJPEGQuality is used when WriterOptions leaves it unset.
const DefaultJPEGQuality = 90

// VideoWriter encodes frames into one container file.
type VideoWriter interface {
	WriteFrame(img image.Image) error
	Close() error
	// IsOpen reports whether the output file is still open.
	IsOpen() bool
}

// WriterOptions describe the output of one recording.
type WriterOptions struct {
	Path        string
	FrameRate   float64
	Width       int
	Height      int
	JPEGQuality int
}

func (o WriterOptions) validate() error {
	if o.Path == "" {
		return errors.New("writer: empty path")
	}
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("writer: invalid frame size %dx%d", o.Width, o.Height)
	}
	if o.FrameRate <= 0 {
		return fmt.Errorf("writer: invalid frame rate %g", o.FrameRate)
	}
	return nil
}

// WriterFactory opens a VideoWriter.
type WriterFactory func(WriterOptions) (VideoWriter, error)

// MJPEGWriter writes an AVI container with the MJPG codec tag; each frame is
// stored as a JPEG.
type MJPEGWriter struct {
	avi     mjpeg.AviWriter
	opts    WriterOptions
	encode  imgio.Encoder
	buf     bytes.Buffer
	mu      sync.Mutex
	open    bool
	written int
}

// NewMJPEGWriter creates the file at opts.Path. Frames whose size differs from
// opts are scaled to fit.
func NewMJPEGWriter(opts WriterOptions) (VideoWriter, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultJPEGQuality
	}
	fps := max(1, int32(opts.FrameRate+0.5))
	avi, err := mjpeg.New(opts.Path, int32(opts.Width), int32(opts.Height), fps)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", opts.Path, err)
	}
	return &MJPEGWriter{
		avi:    avi,
		opts:   opts,
		encode: imgio.JPEGEncoder(opts.JPEGQuality),
		open:   true,
	}, nil
}

// WriteFrame implements VideoWriter.
func (w *MJPEGWriter) WriteFrame(img image.Image) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return errors.New("writer closed")
	}

	if b := img.Bounds(); b.Dx() != w.opts.Width || b.Dy() != w.opts.Height {
		img = transform.Resize(img, w.opts.Width, w.opts.Height, transform.Linear)
	}
	w.buf.Reset()
	if err := w.encode(&w.buf, img); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := w.avi.AddFrame(w.buf.Bytes()); err != nil {
		return fmt.Errorf("add frame: %w", err)
	}
	w.written++
	return nil
}

// Close finalises the AVI index and closes the file.
func (w *MJPEGWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return nil
	}
	if err := w.avi.Close(); err != nil {
		return err
	}
	w.open = false
	return nil
}

// IsOpen implements VideoWriter.
func (w *MJPEGWriter) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// MemoryWriter is a VideoWriter that keeps frames in memory.
type MemoryWriter struct {
	Opts WriterOptions
	// CloseFailures is how many Close calls return without closing.
	CloseFailures int
	// WriteErr, when set, fails every WriteFrame.
	WriteErr error

	mu         sync.Mutex
	frames     []image.Image
	open       bool
	closeCalls int
}

// NewMemoryWriter returns an open MemoryWriter.
func NewMemoryWriter(opts WriterOptions) *MemoryWriter {
	return &MemoryWriter{Opts: opts, open: true}
}

// MemoryWriterFactory returns a factory handing out w.
func MemoryWriterFactory(w *MemoryWriter) WriterFactory {
	return func(opts WriterOptions) (VideoWriter, error) {
		if err := opts.validate(); err != nil {
			return nil, err
		}
		w.mu.Lock()
		w.Opts = opts
		w.open = true
		w.mu.Unlock()
		return w, nil
	}
}

func (w *MemoryWriter) WriteFrame(img image.Image) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return errors.New("writer closed")
	}
	if w.WriteErr != nil {
		return w.WriteErr
	}
	w.frames = append(w.frames, img)
	return nil
}

func (w *MemoryWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeCalls++
	if w.closeCalls <= w.CloseFailures {
		return nil
	}
	w.open = false
	return nil
}

func (w *MemoryWriter) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// Frames returns the frames written so far.
func (w *MemoryWriter) Frames() []image.Image {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]image.Image(nil), w.frames...)
}

// CloseCalls is how many times Close was called.
func (w *MemoryWriter) CloseCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeCalls
}
