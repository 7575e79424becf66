package camera

import (
	"context"
	"sync"
)

// frameQueue is a bounded FIFO that discards its oldest frame when full, so
// the capture loop never blocks on a slow consumer.
type frameQueue struct {
	mu     sync.Mutex
	items  []Frame
	cap    int
	notify chan struct{}
}

func newFrameQueue(capacity int) *frameQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &frameQueue{
		items:  make([]Frame, 0, capacity),
		cap:    capacity,
		notify: make(chan struct{}, 1),
	}
}

// push appends f and reports whether an older frame was evicted.
func (q *frameQueue) push(f Frame) (evicted bool) {
	q.mu.Lock()
	if len(q.items) == q.cap {
		q.items[0] = Frame{}
		q.items = q.items[1:]
		evicted = true
	}
	q.items = append(q.items, f)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return evicted
}

func (q *frameQueue) tryPop() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Frame{}, false
	}
	f := q.items[0]
	q.items[0] = Frame{}
	q.items = q.items[1:]
	return f, true
}

// drainNewest empties the queue and returns the most recent frame along with
// how many older frames were discarded.
func (q *frameQueue) drainNewest() (Frame, int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if n == 0 {
		return Frame{}, 0, false
	}
	f := q.items[n-1]
	clear(q.items)
	q.items = q.items[:0]
	return f, n - 1, true
}

func (q *frameQueue) pop(ctx context.Context) (Frame, error) {
	for {
		if f, ok := q.tryPop(); ok {
			return f, nil
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		}
	}
}

func (q *frameQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
