// Package preview is the display sink: it keeps the latest frame as a JPEG
// and serves it as a still image or an MJPEG stream.
package preview

import (
	"bytes"
	"fmt"
	"image"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"sync"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"

	"github.com/banshee-data/scopecam/internal/camera"
	"github.com/banshee-data/scopecam/internal/monitoring"
)

var logf = monitoring.Component("preview")

// Options bound the preview size and quality.
type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// Broadcaster implements pipeline.Sink.
type Broadcaster struct {
	maxW, maxH int
	encode     imgio.Encoder

	mu      sync.Mutex
	jpeg    []byte
	seq     uint64
	hasSeq  bool
	subs    map[chan []byte]struct{}
	encoded monitoring.Counter
}

// NewBroadcaster returns an empty Broadcaster. A zero MaxWidth or MaxHeight
// leaves that dimension unbounded.
func NewBroadcaster(opts Options) *Broadcaster {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 75
	}
	return &Broadcaster{
		maxW:   opts.MaxWidth,
		maxH:   opts.MaxHeight,
		encode: imgio.JPEGEncoder(opts.Quality),
		subs:   make(map[chan []byte]struct{}),
	}
}

// Fit scales img down to fit within maxW×maxH, preserving aspect ratio.
// Images already small enough are returned unchanged.
func Fit(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return img
	}
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && float64(h)*scale > float64(maxH) {
		scale = float64(maxH) / float64(h)
	}
	if scale >= 1 {
		return img
	}
	nw := max(1, int(float64(w)*scale+0.5))
	nh := max(1, int(float64(h)*scale+0.5))
	return transform.Resize(img, nw, nh, transform.Linear)
}

// Show encodes f unless it is the frame already on display.
func (b *Broadcaster) Show(f camera.Frame) {
	if f.Image == nil {
		return
	}
	b.mu.Lock()
	if b.hasSeq && b.seq == f.Seq {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	var buf bytes.Buffer
	if err := b.encode(&buf, Fit(f.Image, b.maxW, b.maxH)); err != nil {
		logf("encode frame %d: %v", f.Seq, err)
		return
	}
	data := buf.Bytes()
	b.encoded.Inc()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.jpeg, b.seq, b.hasSeq = data, f.Seq, true
	for ch := range b.subs {
		select {
		case ch <- data:
		default:
		}
	}
}

// Latest returns the most recent JPEG and its frame sequence number.
func (b *Broadcaster) Latest() ([]byte, uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jpeg, b.seq, b.jpeg != nil
}

// Encoded is the number of frames encoded so far.
func (b *Broadcaster) Encoded() uint64 { return b.encoded.Load() }

func (b *Broadcaster) subscribe() chan []byte {
	ch := make(chan []byte, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	if b.jpeg != nil {
		ch <- b.jpeg
	}
	b.mu.Unlock()
	return ch
}

func (b *Broadcaster) unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// Subscribers is the number of connected stream clients.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// ServeJPEG serves the latest frame.
func (b *Broadcaster) ServeJPEG(w http.ResponseWriter, r *http.Request) {
	data, seq, ok := b.Latest()
	if !ok {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(seq, 10))
	w.Write(data)
}

// ServeMJPEG streams frames as multipart/x-mixed-replace until the client
// goes away.
func (b *Broadcaster) ServeMJPEG(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	ch := b.subscribe()
	defer b.unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			part, err := mw.CreatePart(textproto.MIMEHeader{
				"Content-Type":   {"image/jpeg"},
				"Content-Length": {fmt.Sprint(len(data))},
			})
			if err != nil {
				return
			}
			if _, err := part.Write(data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// AttachRoutes mounts /preview.jpg and /preview.mjpeg.
func (b *Broadcaster) AttachRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /preview.jpg", b.ServeJPEG)
	mux.HandleFunc("GET /preview.mjpeg", b.ServeMJPEG)
}
