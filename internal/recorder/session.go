package recorder

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/scopecam/internal/fsutil"
	"github.com/banshee-data/scopecam/internal/timeutil"
)

// SessionOptions configure a recording.
type SessionOptions struct {
	Dir           string
	Prefix        string
	Ext           string
	FS            fsutil.FileSystem
	FrameRate     float64
	Width         int
	Height        int
	QueueCapacity int
	JPEGQuality   int
	Factory       WriterFactory
	Clock         timeutil.Clock
}

// Summary describes a finished recording.
type Summary struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	FrameRate   float64   `json:"frame_rate"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Frames      int       `json:"frames"`
	WriteErrors int       `json:"write_errors"`
	Dropped     uint64    `json:"dropped"`
	Started     time.Time `json:"started"`
	Stopped     time.Time `json:"stopped"`
	Error       string    `json:"error,omitempty"`
}

// Session is one recording: a uniquely named output file, its save queue
// and the single writer goroutine draining it.
type Session struct {
	id      string
	path    string
	opts    SessionOptions
	queue   *SaveQueue
	clock   timeutil.Clock
	started time.Time

	done   chan struct{}
	result WriterResult
	err    error

	stopOnce sync.Once
	summary  Summary
}

// StartSession picks the next free file name, opens the writer and starts
// draining. The writer is open before StartSession returns.
func StartSession(opts SessionOptions) (*Session, error) {
	if opts.FS == nil {
		opts.FS = fsutil.OSFileSystem{}
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Factory == nil {
		opts.Factory = NewMJPEGWriter
	}
	if opts.Prefix == "" {
		opts.Prefix = "video_"
	}
	if opts.Ext == "" {
		opts.Ext = ".avi"
	}

	path, err := ReserveIndexedPath(opts.FS, opts.Dir, opts.Prefix, opts.Ext)
	if err != nil {
		return nil, err
	}
	w, err := opts.Factory(WriterOptions{
		Path:        path,
		FrameRate:   opts.FrameRate,
		Width:       opts.Width,
		Height:      opts.Height,
		JPEGQuality: opts.JPEGQuality,
	})
	if err != nil {
		if rerr := opts.FS.Remove(path); rerr != nil {
			logf("release %s: %v", path, rerr)
		}
		return nil, fmt.Errorf("open video writer: %w", err)
	}

	s := &Session{
		id:      uuid.NewString(),
		path:    path,
		opts:    opts,
		queue:   NewSaveQueue(opts.QueueCapacity),
		clock:   opts.Clock,
		started: opts.Clock.Now(),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		s.result, s.err = Drain(s.queue, w)
	}()
	logf("recording %s to %s (%dx%d @ %g fps)", s.id, path, opts.Width, opts.Height, opts.FrameRate)
	return s, nil
}

func (s *Session) ID() string        { return s.id }
func (s *Session) Path() string      { return s.path }
func (s *Session) Queue() *SaveQueue { return s.queue }

// Done is closed once the writer has closed the output file.
func (s *Session) Done() <-chan struct{} { return s.done }

// Stop closes the queue and waits for the writer to close the file. Only the
// first call does the work; later calls return the same summary.
func (s *Session) Stop() (Summary, error) {
	s.stopOnce.Do(func() {
		s.queue.Close()
		<-s.done
		s.summary = Summary{
			ID:          s.id,
			Path:        s.path,
			FrameRate:   s.opts.FrameRate,
			Width:       s.opts.Width,
			Height:      s.opts.Height,
			Frames:      s.result.Frames,
			WriteErrors: s.result.WriteErrors,
			Dropped:     s.queue.Dropped(),
			Started:     s.started,
			Stopped:     s.clock.Now(),
		}
		if s.err != nil {
			s.summary.Error = s.err.Error()
		}
		logf("recording %s stopped: %d frames, %d dropped", s.id, s.summary.Frames, s.summary.Dropped)
	})
	return s.summary, s.err
}
