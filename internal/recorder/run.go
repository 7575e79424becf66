package recorder

import (
	"errors"
	"fmt"
)

// MaxCloseAttempts bounds the close retry loop in Drain.
const MaxCloseAttempts = 5

// ErrWriterStillOpen is returned when the writer reports open after every
// close attempt.
var ErrWriterStillOpen = errors.New("video writer still open after close")

// WriterResult summarises one drained queue.
type WriterResult struct {
	Frames        int
	WriteErrors   int
	CloseAttempts int
}

// RunWriter opens a writer with factory and drains queue into it.
func RunWriter(queue *SaveQueue, opts WriterOptions, factory WriterFactory) (WriterResult, error) {
	if factory == nil {
		factory = NewMJPEGWriter
	}
	w, err := factory(opts)
	if err != nil {
		return WriterResult{}, err
	}
	return Drain(queue, w)
}

// Drain writes every frame from queue until it is closed, then closes w,
// calling Close again while w still reports open. Failed frame writes are
// counted and skipped.
func Drain(queue *SaveQueue, w VideoWriter) (WriterResult, error) {
	var res WriterResult
	for f := range queue.Frames() {
		if err := w.WriteFrame(f.Image); err != nil {
			res.WriteErrors++
			if res.WriteErrors == 1 {
				logf("write frame %d: %v", f.Seq, err)
			}
			continue
		}
		res.Frames++
	}

	var closeErr error
	for w.IsOpen() && res.CloseAttempts < MaxCloseAttempts {
		res.CloseAttempts++
		closeErr = w.Close()
	}
	if w.IsOpen() {
		if closeErr != nil {
			return res, fmt.Errorf("%w: %w", ErrWriterStillOpen, closeErr)
		}
		return res, ErrWriterStillOpen
	}
	if res.WriteErrors > 0 {
		logf("%d frames written, %d failed", res.Frames, res.WriteErrors)
	}
	return res, nil
}
