package db

import (
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scopecam/internal/devicelink"
	"github.com/banshee-data/scopecam/internal/monitoring"
	"github.com/banshee-data/scopecam/internal/recorder"
	"github.com/banshee-data/scopecam/internal/scope"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	db, err := NewDB(filepath.Join(t.TempDir(), "catalogue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestApplyPragmas(t *testing.T) {
	rawDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "pragmas.db"))
	require.NoError(t, err)
	defer rawDB.Close()

	require.NoError(t, applyPragmas(rawDB))

	var journalMode string
	require.NoError(t, rawDB.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, rawDB.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)
}

func TestNewDB_MigratesToLatest(t *testing.T) {
	db := newTestDB(t)

	latest, err := LatestMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), latest)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, latest, version)

	// Reopening an up-to-date database is a no-op.
	require.NoError(t, db.MigrateUp())
}

func TestMigrateDown(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.MigrateDown())
	version, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	_, _, err = db.LatestLensLimits(context.Background())
	assert.Error(t, err, "lens_limits table should be gone")

	require.NoError(t, db.MigrateUp())
	_, ok, err := db.LatestLensLimits(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := recorder.Summary{
		ID: "a", Path: "/v/video_0001.avi", FrameRate: 30, Width: 640, Height: 480,
		Frames: 90, Dropped: 2, Started: t0, Stopped: t0.Add(3 * time.Second),
	}
	second := recorder.Summary{
		ID: "b", Path: "/v/video_0002.avi", FrameRate: 15, Width: 320, Height: 240,
		Frames: 10, WriteErrors: 1, Started: t0.Add(time.Minute), Stopped: t0.Add(2 * time.Minute),
		Error: "disk full",
	}
	require.NoError(t, db.RecordRecording(ctx, first))
	require.NoError(t, db.RecordRecording(ctx, second))

	got, err := db.ListRecordings(ctx, 0)
	require.NoError(t, err)
	if diff := cmp.Diff([]recorder.Summary{second, first}, got); diff != "" {
		t.Errorf("ListRecordings mismatch (-want +got):\n%s", diff)
	}

	got, err = db.ListRecordings(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)

	assert.Error(t, db.RecordRecording(ctx, recorder.Summary{}))
}

func TestSnapshots(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	snap := recorder.Snapshot{
		ID: "s1", Path: "/v/snap_0001.png", Seq: 42, Width: 64, Height: 48,
		Captured: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.RecordSnapshot(ctx, snap))

	got, err := db.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	if diff := cmp.Diff([]recorder.Snapshot{snap}, got); diff != "" {
		t.Errorf("ListSnapshots mismatch (-want +got):\n%s", diff)
	}
}

func TestCommands(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	observe := db.CommandObserver()
	observe(devicelink.CommandRecord{Command: "Y", Response: "cheesoSPIM", Expected: true, Started: t0, Duration: 3 * time.Millisecond})
	observe(devicelink.CommandRecord{Command: "? F", Expected: true, Err: errors.New("timeout"), Started: t0.Add(time.Second), Duration: 500 * time.Millisecond})
	require.NoError(t, db.RecordCommand(ctx, devicelink.CommandRecord{Command: "K", Started: t0.Add(2 * time.Second)}))

	got, err := db.ListCommands(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "K", got[0].Command)
	assert.False(t, got[0].Expected)
	assert.Empty(t, got[0].Response)

	assert.Equal(t, "? F", got[1].Command)
	assert.True(t, got[1].Expected)
	assert.Equal(t, "timeout", got[1].Error)
	assert.InDelta(t, 500.0, got[1].DurationMs, 0.001)
	assert.True(t, got[1].Sent.Equal(t0.Add(time.Second)))
}

func TestLensLimits(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, ok, err := db.LatestLensLimits(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.RecordLensLimits(ctx, scope.Limits{Min: 0, Max: 20000}, t0))
	require.NoError(t, db.RecordLensLimits(ctx, scope.Limits{Min: 10, Max: 19990}, t0.Add(time.Hour)))

	e, ok, err := db.LatestLensLimits(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10, e.Min)
	assert.Equal(t, 19990, e.Max)
	assert.True(t, e.Measured.Equal(t0.Add(time.Hour)))
}

func localHostRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAttachAdminRoutes(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.RecordRecording(context.Background(), recorder.Summary{ID: "r1", Path: "x.avi", FrameRate: 10}))

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	t.Run("recordings listing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/catalogue/recordings?limit=5"))
		require.Equal(t, http.StatusOK, rec.Code)

		var got []recorder.Summary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "r1", got[0].ID)
	})

	t.Run("backup is a gzipped sqlite file", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/backup"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "backup-")

		gz, err := gzip.NewReader(rec.Body)
		require.NoError(t, err)
		data, err := io.ReadAll(gz)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(data), 16)
		assert.Equal(t, "SQLite format 3\x00", string(data[:16]))
	})
}
