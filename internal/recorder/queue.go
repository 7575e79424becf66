// Package recorder moves frames from the acquisition pipeline to a video file:
// a bounded save queue, the writer that drains it, and the recording session
// that ties the two together.
package recorder

import (
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/scopecam/internal/camera"
	"github.com/banshee-data/scopecam/internal/monitoring"
)

var logf = monitoring.Component("recorder")

var (
	// ErrQueueFull is wrapped by QueueOverflowError.
	ErrQueueFull = errors.New("save queue full")
	// ErrQueueClosed is returned by TryPut after Close, and by a second Close.
	ErrQueueClosed = errors.New("save queue closed")
)

// QueueOverflowError reports a frame dropped because the save queue was full.
type QueueOverflowError struct {
	Seq      uint64
	Capacity int
}

func (e *QueueOverflowError) Error() string {
	return fmt.Sprintf("save queue full (capacity %d), dropped frame %d", e.Capacity, e.Seq)
}

func (e *QueueOverflowError) Unwrap() error { return ErrQueueFull }

// DefaultQueueCapacity is the save queue size.
const DefaultQueueCapacity = 100

// SaveQueue is a bounded single-producer single-consumer frame channel.
// Closing it tells the consumer no more frames will arrive.
type SaveQueue struct {
	ch      chan camera.Frame
	mu      sync.RWMutex
	closed  bool
	dropped monitoring.Counter
}

// NewSaveQueue returns a queue holding at most capacity frames.
func NewSaveQueue(capacity int) *SaveQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &SaveQueue{ch: make(chan camera.Frame, capacity)}
}

// TryPut enqueues f without blocking. A full queue drops the frame and
// returns *QueueOverflowError.
func (q *SaveQueue) TryPut(f camera.Frame) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- f:
		return nil
	default:
		q.dropped.Inc()
		return &QueueOverflowError{Seq: f.Seq, Capacity: cap(q.ch)}
	}
}

// Close marks the end of the stream. Only the first call closes the channel;
// later calls return ErrQueueClosed.
func (q *SaveQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.closed = true
	close(q.ch)
	return nil
}

// Closed reports whether Close has been called.
func (q *SaveQueue) Closed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Frames is the consumer side. It is closed after Close once drained.
func (q *SaveQueue) Frames() <-chan camera.Frame { return q.ch }

func (q *SaveQueue) Len() int { return len(q.ch) }
func (q *SaveQueue) Cap() int { return cap(q.ch) }

// Dropped is the number of frames rejected because the queue was full.
func (q *SaveQueue) Dropped() uint64 { return q.dropped.Load() }
