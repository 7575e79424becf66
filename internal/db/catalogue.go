package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/scopecam/internal/devicelink"
	"github.com/banshee-data/scopecam/internal/recorder"
	"github.com/banshee-data/scopecam/internal/scope"
)

// DefaultListLimit bounds list queries called with a non-positive limit.
const DefaultListLimit = 100

// CommandEntry is one persisted controller exchange.
type CommandEntry struct {
	ID         int64     `json:"id"`
	Command    string    `json:"command"`
	Expected   bool      `json:"expected"`
	Response   string    `json:"response,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs float64   `json:"duration_ms"`
	Sent       time.Time `json:"sent"`
}

// LensLimitsEntry is one persisted limit search result.
type LensLimitsEntry struct {
	ID       int64     `json:"id"`
	Min      int       `json:"min"`
	Max      int       `json:"max"`
	Measured time.Time `json:"measured"`
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(s float64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(s*1e9)).UTC()
}

func normaliseLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// RecordRecording stores (or replaces) a finished recording summary.
func (db *DB) RecordRecording(ctx context.Context, s recorder.Summary) error {
	if s.ID == "" {
		return errors.New("recording summary has no id")
	}
	var errText sql.NullString
	if s.Error != "" {
		errText = sql.NullString{String: s.Error, Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO recordings (
			recording_id, path, frame_rate, width, height, frames,
			write_errors, dropped, started_unix, stopped_unix, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Path, s.FrameRate, s.Width, s.Height, s.Frames,
		s.WriteErrors, int64(s.Dropped), unixSeconds(s.Started), unixSeconds(s.Stopped), errText,
	)
	if err != nil {
		return fmt.Errorf("record recording %s: %w", s.ID, err)
	}
	return nil
}

// ListRecordings returns the most recent recordings, newest first.
func (db *DB) ListRecordings(ctx context.Context, limit int) ([]recorder.Summary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT recording_id, path, frame_rate, width, height, frames,
			write_errors, dropped, started_unix, stopped_unix, error
		FROM recordings
		ORDER BY started_unix DESC
		LIMIT ?`, normaliseLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []recorder.Summary{}
	for rows.Next() {
		var (
			s                recorder.Summary
			dropped          int64
			started, stopped float64
			errText          sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Path, &s.FrameRate, &s.Width, &s.Height, &s.Frames,
			&s.WriteErrors, &dropped, &started, &stopped, &errText); err != nil {
			return nil, err
		}
		s.Dropped = uint64(dropped)
		s.Started = fromUnixSeconds(started)
		s.Stopped = fromUnixSeconds(stopped)
		s.Error = errText.String
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecordSnapshot stores a saved still image.
func (db *DB) RecordSnapshot(ctx context.Context, s recorder.Snapshot) error {
	if s.ID == "" {
		return errors.New("snapshot has no id")
	}
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshots (snapshot_id, path, seq, width, height, captured_unix)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.Path, int64(s.Seq), s.Width, s.Height, unixSeconds(s.Captured))
	if err != nil {
		return fmt.Errorf("record snapshot %s: %w", s.ID, err)
	}
	return nil
}

// ListSnapshots returns the most recent snapshots, newest first.
func (db *DB) ListSnapshots(ctx context.Context, limit int) ([]recorder.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT snapshot_id, path, seq, width, height, captured_unix
		FROM snapshots
		ORDER BY captured_unix DESC
		LIMIT ?`, normaliseLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []recorder.Snapshot{}
	for rows.Next() {
		var (
			s        recorder.Snapshot
			seq      int64
			captured float64
		)
		if err := rows.Scan(&s.ID, &s.Path, &seq, &s.Width, &s.Height, &captured); err != nil {
			return nil, err
		}
		s.Seq = uint64(seq)
		s.Captured = fromUnixSeconds(captured)
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecordCommand stores one controller exchange. Its signature matches
// devicelink.LinkOptions.Observer via CommandObserver.
func (db *DB) RecordCommand(ctx context.Context, rec devicelink.CommandRecord) error {
	var response, errText sql.NullString
	if rec.Response != "" {
		response = sql.NullString{String: rec.Response, Valid: true}
	}
	if rec.Err != nil {
		errText = sql.NullString{String: rec.Err.Error(), Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO commands (command, expected, response, error, duration_ms, sent_unix)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Command, rec.Expected, response, errText,
		float64(rec.Duration)/float64(time.Millisecond), unixSeconds(rec.Started))
	if err != nil {
		return fmt.Errorf("record command %q: %w", rec.Command, err)
	}
	return nil
}

// CommandObserver adapts RecordCommand to a link observer. Failures are
// logged and otherwise ignored so that persistence never blocks the link.
func (db *DB) CommandObserver() func(devicelink.CommandRecord) {
	return func(rec devicelink.CommandRecord) {
		if err := db.RecordCommand(context.Background(), rec); err != nil {
			logf("%v", err)
		}
	}
}

// ListCommands returns the most recent controller exchanges, newest first.
func (db *DB) ListCommands(ctx context.Context, limit int) ([]CommandEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT command_id, command, expected, response, error, duration_ms, sent_unix
		FROM commands
		ORDER BY command_id DESC
		LIMIT ?`, normaliseLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []CommandEntry{}
	for rows.Next() {
		var (
			e               CommandEntry
			response, errTx sql.NullString
			sent            float64
		)
		if err := rows.Scan(&e.ID, &e.Command, &e.Expected, &response, &errTx, &e.DurationMs, &sent); err != nil {
			return nil, err
		}
		e.Response = response.String
		e.Error = errTx.String
		e.Sent = fromUnixSeconds(sent)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordLensLimits stores the outcome of a lens limit search.
func (db *DB) RecordLensLimits(ctx context.Context, l scope.Limits, measured time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO lens_limits (min_position, max_position, measured_unix) VALUES (?, ?, ?)`,
		l.Min, l.Max, unixSeconds(measured))
	return err
}

// LatestLensLimits returns the most recent limit search, or ok=false when
// none has been stored.
func (db *DB) LatestLensLimits(ctx context.Context) (LensLimitsEntry, bool, error) {
	var (
		e        LensLimitsEntry
		measured float64
	)
	err := db.QueryRowContext(ctx, `
		SELECT limits_id, min_position, max_position, measured_unix
		FROM lens_limits
		ORDER BY limits_id DESC
		LIMIT 1`).Scan(&e.ID, &e.Min, &e.Max, &measured)
	if errors.Is(err, sql.ErrNoRows) {
		return LensLimitsEntry{}, false, nil
	}
	if err != nil {
		return LensLimitsEntry{}, false, err
	}
	e.Measured = fromUnixSeconds(measured)
	return e, true, nil
}
