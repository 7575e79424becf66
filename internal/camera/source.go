// Package camera owns the capture device: a streaming capture loop feeding a
// bounded frame queue, single-shot snaps, and the validated capture
// parameters.
package camera

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/scopecam/internal/monitoring"
	"github.com/banshee-data/scopecam/internal/timeutil"
)

var logf = monitoring.Component("camera")

// State of a Source.
type State int

const (
	Idle State = iota
	Streaming
)

func (s State) String() string {
	if s == Streaming {
		return "streaming"
	}
	return "idle"
}

// DefaultQueueCapacity bounds the internal frame queue.
const DefaultQueueCapacity = 16

// DefaultRetryDelay is the pause after a failed read before the next attempt.
const DefaultRetryDelay = 10 * time.Millisecond

// SourceOptions configures a Source.
type SourceOptions struct {
	QueueCapacity int
	Limits        Limits
	Parameters    Parameters
	Clock         timeutil.Clock
	RetryDelay    time.Duration
	// OnReadError is called for every failed read in the capture loop.
	OnReadError func(*CaptureReadError)
}

// SourceStats are running totals for a Source.
type SourceStats struct {
	State       string `json:"state"`
	Captured    uint64 `json:"captured"`
	ReadErrors  uint64 `json:"read_errors"`
	Overwritten uint64 `json:"overwritten"`
	Pending     int    `json:"pending"`
}

// Source runs the capture loop for one Device.
type Source struct {
	dev         Device
	clock       timeutil.Clock
	retryDelay  time.Duration
	onReadError func(*CaptureReadError)
	queue       *frameQueue

	// readMu serialises device reads between the capture loop and Snap.
	readMu sync.Mutex

	mu     sync.Mutex
	state  State
	params Parameters
	limits Limits
	cancel context.CancelFunc
	done   chan struct{}

	seq         atomic.Uint64
	readErrors  monitoring.Counter
	overwritten monitoring.Counter
}

// NewSource wraps dev. The initial parameters are validated but not pushed;
// call SetParameters to apply them.
func NewSource(dev Device, opts SourceOptions) (*Source, error) {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	if opts.Limits == (Limits{}) {
		opts.Limits = DefaultLimits
	}
	if opts.Parameters == (Parameters{}) {
		opts.Parameters = DefaultParameters
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if err := opts.Limits.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Parameters.Validate(opts.Limits); err != nil {
		return nil, err
	}
	return &Source{
		dev:         dev,
		clock:       opts.Clock,
		retryDelay:  opts.RetryDelay,
		onReadError: opts.OnReadError,
		queue:       newFrameQueue(opts.QueueCapacity),
		params:      opts.Parameters,
		limits:      opts.Limits,
	}, nil
}

// Start launches the capture loop. It runs until Stop is called or ctx is
// cancelled.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Streaming {
		return ErrAlreadyStreaming
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.state = Streaming

	go s.captureLoop(loopCtx, done)
	logf("streaming started")
	return nil
}

// Stop cancels the capture loop and waits for it to exit. At most the read
// in flight when Stop is called completes.
func (s *Source) Stop() error {
	s.mu.Lock()
	if s.state != Streaming {
		s.mu.Unlock()
		return ErrNotStreaming
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	s.state = Idle
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()
	logf("streaming stopped after %d frames", s.seq.Load())
	return nil
}

// State reports whether the capture loop is running.
func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Streaming is State() == Streaming.
func (s *Source) Streaming() bool { return s.State() == Streaming }

func (s *Source) captureLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for ctx.Err() == nil {
		if _, err := s.capture(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.reportReadError(err.(*CaptureReadError))
			s.clock.Sleep(s.retryDelay)
		}
	}
}

// capture reads one frame and enqueues it.
func (s *Source) capture(ctx context.Context) (Frame, error) {
	s.readMu.Lock()
	img, err := s.dev.ReadFrame(ctx)
	s.readMu.Unlock()
	if err != nil {
		return Frame{}, &CaptureReadError{Seq: s.seq.Load(), Err: err}
	}

	f := Frame{
		Seq:      s.seq.Add(1),
		Captured: s.clock.Now(),
		Image:    img,
	}
	if s.queue.push(f) {
		s.overwritten.Inc()
	}
	return f, nil
}

func (s *Source) reportReadError(err *CaptureReadError) {
	n := s.readErrors.Inc()
	if n == 1 || n%100 == 0 {
		logf("%v (%d read errors so far)", err, n)
	}
	if s.onReadError != nil {
		s.onReadError(err)
	}
}

// Snap reads one frame synchronously, in either state, enqueues it and
// returns it.
func (s *Source) Snap(ctx context.Context) (Frame, error) {
	f, err := s.capture(ctx)
	if err != nil {
		s.readErrors.Inc()
		return Frame{}, err
	}
	return f, nil
}

// Next blocks until a frame is available or ctx is done.
func (s *Source) Next(ctx context.Context) (Frame, error) {
	return s.queue.pop(ctx)
}

// TryNext returns the oldest queued frame without blocking.
func (s *Source) TryNext() (Frame, bool) {
	return s.queue.tryPop()
}

// Latest empties the queue and returns the newest frame, plus how many older
// frames were discarded to get to it.
func (s *Source) Latest() (Frame, int, bool) {
	return s.queue.drainNewest()
}

// Pending is the number of frames waiting in the queue.
func (s *Source) Pending() int {
	return s.queue.len()
}

// Parameters returns the parameters last applied.
func (s *Source) Parameters() Parameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// Limits returns the exposure and gain bounds.
func (s *Source) Limits() Limits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits
}

// SetParameters validates p and pushes it to the device. Mid-stream changes
// are not synchronised with frames already in flight.
func (s *Source) SetParameters(p Parameters) error {
	s.mu.Lock()
	limits := s.limits
	s.mu.Unlock()

	if err := p.Validate(limits); err != nil {
		return err
	}
	if err := s.dev.Apply(p); err != nil {
		return err
	}

	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
	return nil
}

// QueryProperty returns a scalar device property. Recognised names are
// fps/framerate, w/width and h/height, case-insensitively; anything else
// reports false.
func (s *Source) QueryProperty(name string) (float64, bool) {
	var canonical string
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fps", "framerate":
		canonical = "fps"
	case "w", "width":
		canonical = "width"
	case "h", "height":
		canonical = "height"
	default:
		return 0, false
	}
	return s.dev.Property(canonical)
}

// Stats returns running totals.
func (s *Source) Stats() SourceStats {
	return SourceStats{
		State:       s.State().String(),
		Captured:    s.seq.Load(),
		ReadErrors:  s.readErrors.Load(),
		Overwritten: s.overwritten.Load(),
		Pending:     s.queue.len(),
	}
}

// Close stops streaming if needed and closes the device.
func (s *Source) Close() error {
	if s.Streaming() {
		s.Stop()
	}
	return s.dev.Close()
}
