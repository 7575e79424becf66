package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scopecam/internal/camera"
	"github.com/banshee-data/scopecam/internal/recorder"
	"github.com/banshee-data/scopecam/internal/timeutil"
)

// fakeSource hands out queued frames newest-first like camera.Source.Latest.
type fakeSource struct {
	mu     sync.Mutex
	frames []camera.Frame
}

func (s *fakeSource) add(fs ...camera.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, fs...)
}

func (s *fakeSource) Latest() (camera.Frame, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return camera.Frame{}, 0, false
	}
	f := s.frames[len(s.frames)-1]
	n := len(s.frames) - 1
	s.frames = nil
	return f, n, true
}

type recordingSink struct {
	mu   sync.Mutex
	seqs []uint64
}

func (r *recordingSink) Show(f camera.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seqs = append(r.seqs, f.Seq)
}

func (r *recordingSink) shown() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.seqs...)
}

func frame(seq uint64) camera.Frame {
	img := image.NewGray(image.Rect(0, 0, 5, 5))
	for i := range img.Pix {
		img.Pix[i] = 100
	}
	img.SetGray(2, 2, color.Gray{Y: 255})
	return camera.Frame{Seq: seq, Image: img}
}

func TestMedian_RemovesHotPixel(t *testing.T) {
	in := frame(1).Image
	out := Median(in, 3)

	r, _, _, _ := out.At(2, 2).RGBA()
	assert.Equal(t, uint32(100)*0x101, r)
	assert.Equal(t, color.Gray{Y: 255}, in.At(2, 2), "input must not be modified")

	assert.Same(t, in, Median(in, 1))
}

func TestPollOnce_LiveKeepsNewestOnly(t *testing.T) {
	src := &fakeSource{}
	p := New(src, Options{Clock: timeutil.NewMockClock(time.Unix(0, 0))})

	src.add(frame(1), frame(2), frame(3))
	p.pollOnce(Live, nil)

	last, ok := p.LastFrame()
	require.True(t, ok)
	assert.Equal(t, uint64(3), last.Seq)

	st := p.Stats()
	assert.Equal(t, uint64(1), st.Polled)
	assert.Equal(t, uint64(2), st.Stale)
	assert.Zero(t, st.Queued)

	p.pollOnce(Live, nil)
	assert.Equal(t, uint64(1), p.Stats().Polled, "empty poll is not counted")
}

func TestPollOnce_RecordOverflowDropsAndReports(t *testing.T) {
	src := &fakeSource{}
	var overflows []error
	p := New(src, Options{OnOverflow: func(err error) { overflows = append(overflows, err) }})
	q := recorder.NewSaveQueue(2)

	for i := uint64(1); i <= 5; i++ {
		src.add(frame(i))
		p.pollOnce(Record, q)
	}

	st := p.Stats()
	assert.Equal(t, uint64(2), st.Queued)
	assert.Equal(t, uint64(3), st.Dropped)
	assert.Equal(t, 2, q.Len())
	require.Len(t, overflows, 3)

	var oe *recorder.QueueOverflowError
	require.True(t, errors.As(overflows[0], &oe))
	assert.Equal(t, uint64(3), oe.Seq)

	last, _ := p.LastFrame()
	assert.Equal(t, uint64(5), last.Seq, "dropped frames are still displayed")
}

func TestPipeline_StartStopWithTickers(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	src := &fakeSource{}
	sink := &recordingSink{}
	p := New(src, Options{Clock: clock, Sink: sink})
	ctx := context.Background()

	assert.ErrorIs(t, p.Start(ctx, Record, nil), ErrNoQueue)
	require.NoError(t, p.Start(ctx, Live, nil))
	assert.ErrorIs(t, p.Start(ctx, Record, recorder.NewSaveQueue(1)), ErrRunning)

	tickers := clock.Tickers()
	require.Len(t, tickers, 2)
	assert.Equal(t, DefaultPollInterval, tickers[0].Interval())
	assert.Equal(t, DefaultDisplayInterval, tickers[1].Interval())

	src.add(frame(7))
	require.Eventually(t, func() bool {
		tickers[0].Trigger(clock.Now())
		_, ok := p.LastFrame()
		return ok
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		tickers[1].Trigger(clock.Now())
		return len(sink.shown()) > 0
	}, time.Second, time.Millisecond)
	assert.Equal(t, uint64(7), sink.shown()[0])

	require.NoError(t, p.Stop())
	assert.False(t, p.Running())
	assert.True(t, tickers[0].Stopped())
	assert.True(t, tickers[1].Stopped())
	assert.ErrorIs(t, p.Stop(), ErrNotRunning)

	require.NoError(t, p.Start(ctx, Record, recorder.NewSaveQueue(1)))
	assert.Equal(t, Record, p.Mode())
	require.NoError(t, p.Stop())
}

func TestPipeline_WithCameraSource(t *testing.T) {
	dev := camera.NewSyntheticDevice(16, 12, 30)
	src, err := camera.NewSource(dev, camera.SourceOptions{})
	require.NoError(t, err)
	defer src.Close()

	q := recorder.NewSaveQueue(100)
	p := New(src, Options{PollInterval: time.Millisecond, DisplayInterval: 2 * time.Millisecond})

	ctx := context.Background()
	require.NoError(t, src.Start(ctx))
	require.NoError(t, p.Start(ctx, Record, q))
	require.Eventually(t, func() bool { return q.Len() >= 3 }, 5*time.Second, time.Millisecond)
	require.NoError(t, p.Stop())
	require.NoError(t, src.Stop())

	f := <-q.Frames()
	b := f.Image.Bounds()
	assert.Equal(t, 16, b.Dx())
	assert.Equal(t, 12, b.Dy())
}
