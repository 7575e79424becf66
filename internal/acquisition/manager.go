// Package acquisition coordinates the camera, the pipeline and recording
// sessions: live view, recording, single snaps and parameter changes.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/scopecam/internal/camera"
	"github.com/banshee-data/scopecam/internal/fsutil"
	"github.com/banshee-data/scopecam/internal/monitoring"
	"github.com/banshee-data/scopecam/internal/pipeline"
	"github.com/banshee-data/scopecam/internal/recorder"
)

var logf = monitoring.Component("acquisition")

// ErrBusy is returned for operations that are not allowed while streaming.
var ErrBusy = errors.New("acquisition busy: stop streaming first")

// ErrIdle is returned by Stop when nothing is streaming.
var ErrIdle = errors.New("acquisition not streaming")

// Catalogue records finished recordings and snapshots.
type Catalogue interface {
	RecordRecording(ctx context.Context, s recorder.Summary) error
	RecordSnapshot(ctx context.Context, s recorder.Snapshot) error
}

// SessionStarter opens a recording session.
type SessionStarter func(recorder.SessionOptions) (*recorder.Session, error)

// Options configure a Manager.
type Options struct {
	Source   *camera.Source
	Pipeline *pipeline.Pipeline
	// Session holds the directory, naming, queue and writer settings for
	// recordings. Frame rate and size are filled in from the camera.
	Session      recorder.SessionOptions
	StartSession SessionStarter
	SnapshotDir  string
	Catalogue    Catalogue
	// Sink, when set, is shown every snapped frame.
	Sink pipeline.Sink
}

// Status is a point-in-time summary for the control surface.
type Status struct {
	State         string             `json:"state"`
	Mode          string             `json:"mode,omitempty"`
	Recording     *RecordingStatus   `json:"recording,omitempty"`
	Camera        camera.SourceStats `json:"camera"`
	Pipeline      pipeline.Stats     `json:"pipeline"`
	Parameters    camera.Parameters  `json:"parameters"`
	LastRecording *recorder.Summary  `json:"last_recording,omitempty"`
	LastSnapshot  *recorder.Snapshot `json:"last_snapshot,omitempty"`
}

// RecordingStatus describes the active recording.
type RecordingStatus struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	Queued  int    `json:"queued"`
	Dropped uint64 `json:"dropped"`
}

// SnapResult is a snapped, filtered frame and where it was saved.
type SnapResult struct {
	Frame camera.Frame
	Path  string
}

// Manager serialises start, stop, snap and parameter operations.
type Manager struct {
	src          *camera.Source
	pipe         *pipeline.Pipeline
	sessionOpts  recorder.SessionOptions
	startSession SessionStarter
	snapshotDir  string
	catalogue    Catalogue
	sink         pipeline.Sink

	mu            sync.Mutex
	streaming     bool
	mode          pipeline.Mode
	session       *recorder.Session
	lastRecording *recorder.Summary
	lastSnapshot  *recorder.Snapshot
}

// NewManager returns an idle Manager.
func NewManager(opts Options) *Manager {
	if opts.StartSession == nil {
		opts.StartSession = recorder.StartSession
	}
	if opts.Session.FS == nil {
		opts.Session.FS = fsutil.OSFileSystem{}
	}
	if opts.SnapshotDir == "" {
		opts.SnapshotDir = opts.Session.Dir
	}
	return &Manager{
		src:          opts.Source,
		pipe:         opts.Pipeline,
		sessionOpts:  opts.Session,
		startSession: opts.StartSession,
		snapshotDir:  opts.SnapshotDir,
		catalogue:    opts.Catalogue,
		sink:         opts.Sink,
	}
}

// StartLive streams to the display only.
func (m *Manager) StartLive(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.streaming {
		return ErrBusy
	}
	return m.start(ctx, pipeline.Live, nil)
}

// StartRecord opens a new recording sized from the live device and streams
// to both the display and the file.
func (m *Manager) StartRecord(ctx context.Context) (*recorder.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.streaming {
		return nil, ErrBusy
	}

	opts := m.sessionOpts
	fps, ok := m.src.QueryProperty("fps")
	if !ok || fps <= 0 {
		return nil, errors.New("camera does not report a frame rate")
	}
	w, okW := m.src.QueryProperty("width")
	h, okH := m.src.QueryProperty("height")
	if !okW || !okH {
		return nil, errors.New("camera does not report a frame size")
	}
	opts.FrameRate, opts.Width, opts.Height = fps, int(w), int(h)

	sess, err := m.startSession(opts)
	if err != nil {
		return nil, fmt.Errorf("start recording: %w", err)
	}
	if err := m.start(ctx, pipeline.Record, sess.Queue()); err != nil {
		sess.Stop()
		return nil, err
	}
	m.session = sess
	return sess, nil
}

// start runs the camera and pipeline until Stop. The loops outlive ctx,
// which usually belongs to the request that asked for streaming.
func (m *Manager) start(ctx context.Context, mode pipeline.Mode, q pipeline.Queue) error {
	runCtx := context.WithoutCancel(ctx)
	// Discard frames left over from a snap or an earlier run.
	m.src.Latest()
	if err := m.src.Start(runCtx); err != nil {
		return fmt.Errorf("start camera: %w", err)
	}
	if err := m.pipe.Start(runCtx, mode, q); err != nil {
		m.src.Stop()
		return fmt.Errorf("start pipeline: %w", err)
	}
	m.streaming = true
	m.mode = mode
	logf("streaming in %s mode", mode)
	return nil
}

// Stop halts the pipeline and camera, then finishes any recording. The
// returned summary is nil in live mode.
func (m *Manager) Stop(ctx context.Context) (*recorder.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.streaming {
		return nil, ErrIdle
	}

	m.pipe.Stop()
	m.src.Stop()
	m.streaming = false

	if m.session == nil {
		return nil, nil
	}
	sess := m.session
	m.session = nil
	sum, err := sess.Stop()
	m.lastRecording = &sum
	if m.catalogue != nil {
		if cerr := m.catalogue.RecordRecording(ctx, sum); cerr != nil {
			logf("catalogue recording %s: %v", sum.ID, cerr)
		}
	}
	return &sum, err
}

// Snap captures one frame, applies the median filter and optionally saves
// it as a PNG next to the recordings. Not available while streaming.
func (m *Manager) Snap(ctx context.Context, save bool) (SnapResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.streaming {
		return SnapResult{}, ErrBusy
	}

	f, err := m.src.Snap(ctx)
	if err != nil {
		return SnapResult{}, err
	}
	m.src.Latest()
	f.Image = pipeline.Median(f.Image, m.src.Parameters().MedianFilterSize)
	if m.sink != nil {
		m.sink.Show(f)
	}

	res := SnapResult{Frame: f}
	if !save {
		return res, nil
	}

	path, err := recorder.ReserveIndexedPath(m.sessionOpts.FS, m.snapshotDir, "snap_", ".png")
	if err != nil {
		return res, err
	}
	if err := recorder.SaveSnapshot(path, f.Image); err != nil {
		if rerr := m.sessionOpts.FS.Remove(path); rerr != nil {
			logf("release %s: %v", path, rerr)
		}
		return res, err
	}
	res.Path = path

	w, h := f.Size()
	snap := recorder.Snapshot{
		ID:       uuid.NewString(),
		Path:     path,
		Seq:      f.Seq,
		Width:    w,
		Height:   h,
		Captured: f.Captured,
	}
	if snap.Captured.IsZero() {
		snap.Captured = time.Now()
	}
	m.lastSnapshot = &snap
	if m.catalogue != nil {
		if err := m.catalogue.RecordSnapshot(ctx, snap); err != nil {
			logf("catalogue snapshot %s: %v", path, err)
		}
	}
	return res, nil
}

// SetParameters pushes p to the camera. Not available while streaming.
func (m *Manager) SetParameters(p camera.Parameters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.streaming {
		return ErrBusy
	}
	return m.setParameters(p)
}

func (m *Manager) setParameters(p camera.Parameters) error {
	if err := m.src.SetParameters(p); err != nil {
		return err
	}
	m.pipe.SetFilterSize(p.MedianFilterSize)
	return nil
}

// ApplyInput runs operator text through camera.ApplyInput and pushes the
// result. A *camera.ValidationError is returned alongside the parameters that
// were actually applied.
func (m *Manager) ApplyInput(field, text string) (camera.Parameters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.streaming {
		return m.src.Parameters(), ErrBusy
	}

	p, verr := camera.ApplyInput(m.src.Parameters(), m.src.Limits(), field, text)
	if errors.Is(verr, camera.ErrUnknownParameter) {
		return m.src.Parameters(), verr
	}
	if err := m.setParameters(p); err != nil {
		return m.src.Parameters(), err
	}
	return p, verr
}

// Parameters returns the applied camera parameters and their limits.
func (m *Manager) Parameters() (camera.Parameters, camera.Limits) {
	return m.src.Parameters(), m.src.Limits()
}

// Streaming reports whether the camera is streaming.
func (m *Manager) Streaming() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streaming
}

// Status returns the current state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		State:         "idle",
		Camera:        m.src.Stats(),
		Pipeline:      m.pipe.Stats(),
		Parameters:    m.src.Parameters(),
		LastRecording: m.lastRecording,
		LastSnapshot:  m.lastSnapshot,
	}
	if m.streaming {
		st.State = "streaming"
		st.Mode = m.mode.String()
	}
	if m.session != nil {
		q := m.session.Queue()
		st.Recording = &RecordingStatus{
			ID:      m.session.ID(),
			Path:    m.session.Path(),
			Queued:  q.Len(),
			Dropped: q.Dropped(),
		}
	}
	return st
}

// Close stops anything still running.
func (m *Manager) Close(ctx context.Context) error {
	if !m.Streaming() {
		return nil
	}
	_, err := m.Stop(ctx)
	return err
}
