// Package pipeline moves frames from the camera to the display and, when
// recording, to the save queue. Polling and display refresh run on separate
// tickers so a slow display never delays frame collection.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/scopecam/internal/camera"
	"github.com/banshee-data/scopecam/internal/monitoring"
	"github.com/banshee-data/scopecam/internal/timeutil"
)

var logf = monitoring.Component("pipeline")

// Mode selects which sinks receive frames.
type Mode int

const (
	// Live shows frames only.
	Live Mode = iota
	// Record shows frames and queues them for the video writer.
	Record
)

func (m Mode) String() string {
	if m == Record {
		return "record"
	}
	return "live"
}

const (
	DefaultPollInterval    = 5 * time.Millisecond
	DefaultDisplayInterval = 10 * time.Millisecond
	DefaultFilterSize      = 3
)

var (
	// ErrRunning is returned by Start while the pipeline is running. Changing
	// mode requires Stop then Start.
	ErrRunning = errors.New("pipeline already running")
	// ErrNotRunning is returned by Stop when nothing is running.
	ErrNotRunning = errors.New("pipeline not running")
	// ErrNoQueue is returned when Record mode is started without a queue.
	ErrNoQueue = errors.New("record mode needs a save queue")
)

// Source yields the newest captured frame, discarding older ones.
type Source interface {
	Latest() (frame camera.Frame, discarded int, ok bool)
}

// Queue accepts frames without blocking.
type Queue interface {
	TryPut(camera.Frame) error
}

// Sink displays frames.
type Sink interface {
	Show(camera.Frame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(camera.Frame)

func (f SinkFunc) Show(fr camera.Frame) { f(fr) }

// Options configure a Pipeline.
type Options struct {
	Clock           timeutil.Clock
	PollInterval    time.Duration
	DisplayInterval time.Duration
	FilterSize      int
	Sink            Sink
	// OnOverflow is called with the *recorder.QueueOverflowError for every
	// frame the save queue rejects.
	OnOverflow func(error)
}

// Stats are running totals since the pipeline was created.
type Stats struct {
	Running bool   `json:"running"`
	Mode    string `json:"mode"`
	Polled  uint64 `json:"polled"`
	Stale   uint64 `json:"stale"`
	Queued  uint64 `json:"queued"`
	Dropped uint64 `json:"dropped"`
	Shown   uint64 `json:"shown"`
}

// Pipeline is the acquisition pipeline.
type Pipeline struct {
	src        Source
	clock      timeutil.Clock
	poll       time.Duration
	display    time.Duration
	sink       Sink
	onOverflow func(error)
	filterSize atomic.Int32

	mu      sync.Mutex
	running bool
	mode    Mode
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	last atomic.Pointer[camera.Frame]

	polled  monitoring.Counter
	stale   monitoring.Counter
	queued  monitoring.Counter
	dropped monitoring.Counter
	shown   monitoring.Counter
}

// New returns a stopped pipeline reading from src.
func New(src Source, opts Options) *Pipeline {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.DisplayInterval <= 0 {
		opts.DisplayInterval = DefaultDisplayInterval
	}
	if opts.FilterSize == 0 {
		opts.FilterSize = DefaultFilterSize
	}
	p := &Pipeline{
		src:        src,
		clock:      opts.Clock,
		poll:       opts.PollInterval,
		display:    opts.DisplayInterval,
		sink:       opts.Sink,
		onOverflow: opts.OnOverflow,
	}
	p.filterSize.Store(int32(opts.FilterSize))
	return p
}

// Start launches the poll and display loops. In Record mode every filtered
// frame is also offered to q.
func (p *Pipeline) Start(ctx context.Context, mode Mode, q Queue) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrRunning
	}
	if mode == Record && q == nil {
		return ErrNoQueue
	}

	runCtx, cancel := context.WithCancel(ctx)
	pollTicker := p.clock.NewTicker(p.poll)
	displayTicker := p.clock.NewTicker(p.display)

	p.running = true
	p.mode = mode
	p.cancel = cancel

	p.wg.Add(2)
	go p.pollLoop(runCtx, pollTicker, mode, q)
	go p.displayLoop(runCtx, displayTicker)
	logf("started in %s mode", mode)
	return nil
}

// Stop cancels both loops and waits for them to return.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrNotRunning
	}
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()

	p.mu.Lock()
	p.running = false
	p.cancel = nil
	p.mu.Unlock()
	logf("stopped")
	return nil
}

// Running reports whether the loops are active.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Mode is the mode of the current or most recent run.
func (p *Pipeline) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// SetFilterSize changes the median kernel for subsequent frames.
func (p *Pipeline) SetFilterSize(n int) { p.filterSize.Store(int32(n)) }

func (p *Pipeline) pollLoop(ctx context.Context, t timeutil.Ticker, mode Mode, q Queue) {
	defer p.wg.Done()
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			p.pollOnce(mode, q)
		}
	}
}

func (p *Pipeline) pollOnce(mode Mode, q Queue) {
	f, discarded, ok := p.src.Latest()
	if !ok {
		return
	}
	p.polled.Inc()
	p.stale.Add(uint64(discarded))

	f.Image = Median(f.Image, int(p.filterSize.Load()))
	p.last.Store(&f)

	if mode != Record {
		return
	}
	if err := q.TryPut(f); err != nil {
		n := p.dropped.Inc()
		if n == 1 || n%50 == 0 {
			logf("%v (%d dropped)", err, n)
		}
		if p.onOverflow != nil {
			p.onOverflow(err)
		}
		return
	}
	p.queued.Inc()
}

func (p *Pipeline) displayLoop(ctx context.Context, t timeutil.Ticker) {
	defer p.wg.Done()
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			if f, ok := p.LastFrame(); ok && p.sink != nil {
				p.sink.Show(f)
				p.shown.Inc()
			}
		}
	}
}

// LastFrame returns the most recent filtered frame.
func (p *Pipeline) LastFrame() (camera.Frame, bool) {
	f := p.last.Load()
	if f == nil {
		return camera.Frame{}, false
	}
	return *f, true
}

// Stats returns running totals.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	running, mode := p.running, p.mode
	p.mu.Unlock()
	return Stats{
		Running: running,
		Mode:    mode.String(),
		Polled:  p.polled.Load(),
		Stale:   p.stale.Load(),
		Queued:  p.queued.Load(),
		Dropped: p.dropped.Load(),
		Shown:   p.shown.Load(),
	}
}
