// Package passlog persists tracking sessions and pass analyses in SQLite.
package passlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ccdanpian/sat-yuntai/internal/metrics"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("not found")

// Session is one tracking run.
type Session struct {
	ID         string     `json:"session_id"`
	Satellite  string     `json:"satellite"`
	NORADID    int        `json:"norad_id"`
	Simulation bool       `json:"simulation"`
	Convention string     `json:"convention"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// Record is a persisted pass analysis. Station coordinates are deliberately
// absent.
type Record struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"session_id,omitempty"`
	Satellite     string    `json:"satellite"`
	NORADID       int       `json:"norad_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	PeakTime      time.Time `json:"peak_time"`
	PeakAzimuth   float64   `json:"peak_azimuth"`
	PeakElevation float64   `json:"peak_elevation"`
	Description   string    `json:"description"`
	Sector        string    `json:"sector"`
	Rule          string    `json:"rule"`
	Rationale     string    `json:"rationale"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// Query filters Passes. Zero values mean no filter.
type Query struct {
	NORADID   int
	SessionID string
	Since     time.Time
	Limit     int // default 50, max 1000
}

// Store wraps the SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	// One writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	version, _, err := s.MigrateVersion()
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("pass log opened", "component", "passlog", "path", path, "schema_version", version)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// StartSession records the start of a tracking session.
func (s *Store) StartSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, satellite, norad_id, simulation, convention, started_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Satellite, sess.NORADID, sess.Simulation, sess.Convention, sess.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", sess.ID, err)
	}
	return nil
}

// EndSession stamps the end time of a session.
func (s *Store) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at_ms = ? WHERE session_id = ?`,
		endedAt.UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("ending session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// Session loads one session.
func (s *Store) Session(ctx context.Context, id string) (Session, error) {
	var (
		sess    Session
		started int64
		ended   sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, satellite, norad_id, simulation, convention, started_at_ms, ended_at_ms
		FROM sessions WHERE session_id = ?`, id,
	).Scan(&sess.ID, &sess.Satellite, &sess.NORADID, &sess.Simulation, &sess.Convention, &started, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("loading session %s: %w", id, err)
	}
	sess.StartedAt = time.UnixMilli(started).UTC()
	if ended.Valid {
		t := time.UnixMilli(ended.Int64).UTC()
		sess.EndedAt = &t
	}
	return sess, nil
}

// RecordPass inserts a pass analysis and returns its id.
func (s *Store) RecordPass(ctx context.Context, r Record) (int64, error) {
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now()
	}
	var sessionID any
	if r.SessionID != "" {
		sessionID = r.SessionID
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO passes (
			session_id, satellite, norad_id, start_ms, end_ms, peak_ms,
			peak_azimuth, peak_elevation, description, sector, rule, rationale, recorded_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, r.Satellite, r.NORADID,
		r.Start.UnixMilli(), r.End.UnixMilli(), r.PeakTime.UnixMilli(),
		r.PeakAzimuth, r.PeakElevation, r.Description, r.Sector, r.Rule, r.Rationale,
		r.RecordedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting pass for NORAD %d: %w", r.NORADID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading pass id: %w", err)
	}
	metrics.IncPassesRecorded()
	return id, nil
}

// Passes returns recorded analyses, newest start first.
func (s *Store) Passes(ctx context.Context, q Query) ([]Record, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `
		SELECT pass_id, COALESCE(session_id, ''), satellite, norad_id, start_ms, end_ms, peak_ms,
		       peak_azimuth, peak_elevation, description, sector, rule, rationale, recorded_at_ms
		FROM passes WHERE 1 = 1`
	var args []any
	if q.NORADID != 0 {
		query += ` AND norad_id = ?`
		args = append(args, q.NORADID)
	}
	if q.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, q.SessionID)
	}
	if !q.Since.IsZero() {
		query += ` AND start_ms >= ?`
		args = append(args, q.Since.UnixMilli())
	}
	query += ` ORDER BY start_ms DESC, pass_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying passes: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var start, end, peak, recorded int64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Satellite, &r.NORADID, &start, &end, &peak,
			&r.PeakAzimuth, &r.PeakElevation, &r.Description, &r.Sector, &r.Rule, &r.Rationale, &recorded); err != nil {
			return nil, fmt.Errorf("scanning pass: %w", err)
		}
		r.Start = time.UnixMilli(start).UTC()
		r.End = time.UnixMilli(end).UTC()
		r.PeakTime = time.UnixMilli(peak).UTC()
		r.RecordedAt = time.UnixMilli(recorded).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
