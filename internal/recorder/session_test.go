package recorder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scopecam/internal/camera"
	"github.com/banshee-data/scopecam/internal/fsutil"
	"github.com/banshee-data/scopecam/internal/timeutil"
)

func testFrame(seq uint64, w, h int) camera.Frame {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(int(seq)*13 + i)
	}
	return camera.Frame{Seq: seq, Image: img}
}

func TestDrain_RetriesCloseUntilClosed(t *testing.T) {
	w := NewMemoryWriter(WriterOptions{})
	w.CloseFailures = 2
	q := NewSaveQueue(4)
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, q.TryPut(testFrame(i, 2, 2)))
	}
	require.NoError(t, q.Close())

	res, err := Drain(q, w)
	require.NoError(t, err)
	assert.Equal(t, WriterResult{Frames: 3, CloseAttempts: 3}, res)
	assert.False(t, w.IsOpen())
	assert.Len(t, w.Frames(), 3)
}

func TestDrain_GivesUpAfterMaxAttempts(t *testing.T) {
	w := NewMemoryWriter(WriterOptions{})
	w.CloseFailures = MaxCloseAttempts + 1
	q := NewSaveQueue(1)
	require.NoError(t, q.Close())

	res, err := Drain(q, w)
	assert.ErrorIs(t, err, ErrWriterStillOpen)
	assert.Equal(t, MaxCloseAttempts, res.CloseAttempts)
}

func TestDrain_CountsWriteErrors(t *testing.T) {
	w := NewMemoryWriter(WriterOptions{})
	w.WriteErr = errors.New("disk full")
	q := NewSaveQueue(2)
	require.NoError(t, q.TryPut(testFrame(1, 2, 2)))
	require.NoError(t, q.Close())

	res, err := Drain(q, w)
	require.NoError(t, err)
	assert.Equal(t, 1, res.WriteErrors)
	assert.Zero(t, res.Frames)
}

func TestRunWriter_InvalidOptions(t *testing.T) {
	_, err := RunWriter(NewSaveQueue(1), WriterOptions{Path: "x.avi"}, MemoryWriterFactory(NewMemoryWriter(WriterOptions{})))
	assert.Error(t, err)
}

func TestSession_StopIsExactlyOnce(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	mw := NewMemoryWriter(WriterOptions{})
	clock := timeutil.NewMockClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	s, err := StartSession(SessionOptions{
		Dir: "vids", FS: fs, FrameRate: 15, Width: 4, Height: 3,
		QueueCapacity: 2, Factory: MemoryWriterFactory(mw), Clock: clock,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("vids", "video_0000.avi"), s.Path())
	assert.True(t, mw.IsOpen())

	for i := uint64(1); i <= 2; i++ {
		require.NoError(t, s.Queue().TryPut(testFrame(i, 4, 3)))
	}

	clock.Advance(2 * time.Second)
	sum, err := s.Stop()
	require.NoError(t, err)
	select {
	case <-s.Done():
	default:
		t.Fatal("writer still running after Stop returned")
	}
	assert.False(t, mw.IsOpen())

	again, err := s.Stop()
	require.NoError(t, err)
	if diff := cmp.Diff(sum, again); diff != "" {
		t.Errorf("second Stop summary differs (-first +second):\n%s", diff)
	}
	assert.Equal(t, 1, mw.CloseCalls())
	assert.Equal(t, 2, sum.Frames)
	assert.Equal(t, s.ID(), sum.ID)
	assert.Equal(t, 2*time.Second, sum.Stopped.Sub(sum.Started))
	assert.ErrorIs(t, s.Queue().TryPut(testFrame(3, 4, 3)), ErrQueueClosed)
}

func TestSession_UniquePaths(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	var paths []string
	for i := 0; i < 3; i++ {
		mw := NewMemoryWriter(WriterOptions{})
		s, err := StartSession(SessionOptions{
			Dir: "vids", FS: fs, FrameRate: 10, Width: 2, Height: 2,
			Factory: func(o WriterOptions) (VideoWriter, error) {
				fs.WriteFile(o.Path, nil, 0o644)
				return MemoryWriterFactory(mw)(o)
			},
		})
		require.NoError(t, err)
		_, err = s.Stop()
		require.NoError(t, err)
		paths = append(paths, filepath.Base(s.Path()))
	}
	assert.Equal(t, []string{"video_0000.avi", "video_0001.avi", "video_0002.avi"}, paths)
}

func TestSession_ReleasesNameWhenWriterFails(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	var reserved bool
	_, err := StartSession(SessionOptions{
		Dir: "vids", FS: fs, FrameRate: 10, Width: 2, Height: 2,
		Factory: func(o WriterOptions) (VideoWriter, error) {
			reserved = fs.Exists(o.Path)
			return nil, errors.New("codec unavailable")
		},
	})
	require.Error(t, err)
	assert.True(t, reserved, "name is reserved before the writer opens")
	assert.False(t, fs.Exists(filepath.Join("vids", "video_0000.avi")))
}

func TestSession_MJPEGRoundTrip(t *testing.T) {
	const n, w, h, fps = 7, 32, 24, 15
	dir := t.TempDir()

	s, err := StartSession(SessionOptions{Dir: dir, FrameRate: fps, Width: w, Height: h, QueueCapacity: n})
	require.NoError(t, err)
	for i := uint64(1); i <= n; i++ {
		require.NoError(t, s.Queue().TryPut(testFrame(i, w, h)))
	}
	sum, err := s.Stop()
	require.NoError(t, err)
	assert.Equal(t, n, sum.Frames)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("RIFF")))
	assert.Contains(t, string(data[:512]), "MJPG")

	avih := bytes.Index(data, []byte("avih"))
	require.Positive(t, avih)
	hdr := data[avih+8:]
	assert.Equal(t, uint32(1000000/fps), binary.LittleEndian.Uint32(hdr[0:]))
	assert.Equal(t, uint32(w), binary.LittleEndian.Uint32(hdr[32:]))
	assert.Equal(t, uint32(h), binary.LittleEndian.Uint32(hdr[36:]))

	idx := bytes.LastIndex(data, []byte("idx1"))
	require.Positive(t, idx)
	assert.Equal(t, uint32(n*16), binary.LittleEndian.Uint32(data[idx+4:]))
}

func TestMJPEGWriter_ScalesMismatchedFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scaled.avi")
	wr, err := NewMJPEGWriter(WriterOptions{Path: path, FrameRate: 5, Width: 16, Height: 16})
	require.NoError(t, err)

	big := image.NewRGBA(image.Rect(0, 0, 64, 40))
	big.Set(3, 3, color.White)
	require.NoError(t, wr.WriteFrame(big))
	require.NoError(t, wr.Close())
	assert.False(t, wr.IsOpen())
	assert.Error(t, wr.WriteFrame(big))
}

func TestSaveSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap_0000.png")
	require.NoError(t, SaveSnapshot(path, testFrame(1, 5, 5).Image))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
}
