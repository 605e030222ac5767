// Package archive persists completed sessions to a local SQLite
// database so transcripts survive process restarts and backend outages.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"meetscribe/internal/orchestrator"
	"meetscribe/internal/transcript"
)

// ErrNotArchived is returned when a meeting has no archived session.
var ErrNotArchived = errors.New("meeting not archived")

// Store manages transcript persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	keep int
}

// Open initializes or connects to the archive database and applies
// migrations.
func Open(path string, keep int) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, keep: keep}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record is one archived session summary.
type Record struct {
	SessionID    string     `json:"session_id"`
	MeetingID    string     `json:"meeting_id"`
	URL          string     `json:"url"`
	Status       string     `json:"status"`
	Reason       string     `json:"reason"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Duration     float64    `json:"duration"`
	SegmentCount int        `json:"segment_count"`
	Transcript   string     `json:"transcript"`
}

// SaveFinal writes one completed session and its segments in a single
// transaction. Re-saving the same session id replaces the previous rows,
// so a retried finalization is harmless.
func (s *Store) SaveFinal(ctx context.Context, session orchestrator.Session, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var completedAt any
	if session.CompletedAt != nil {
		completedAt = session.CompletedAt.UTC().Format(time.RFC3339Nano)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (
            session_id, meeting_id, url, status, reason,
            started_at, completed_at, duration, segment_count, transcript
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.SessionID,
		session.MeetingID,
		session.URL,
		string(session.Status),
		reason,
		session.StartedAt.UTC().Format(time.RFC3339Nano),
		completedAt,
		session.Duration(),
		session.SegmentCount(),
		session.Transcript(),
	); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM segments WHERE session_id = ?", session.SessionID); err != nil {
		return fmt.Errorf("clear segments: %w", err)
	}
	for _, seg := range session.Segments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO segments (session_id, idx, speaker, text, start_sec, end_sec, words)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			session.SessionID, seg.Index, seg.Speaker, seg.Text, seg.Start, seg.End, seg.WordCount(),
		); err != nil {
			return fmt.Errorf("insert segment %d: %w", seg.Index, err)
		}
	}

	if err := s.pruneLocked(ctx, tx, session.MeetingID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// pruneLocked drops the oldest sessions of a meeting beyond the
// retention count.
func (s *Store) pruneLocked(ctx context.Context, tx *sql.Tx, meetingID string) error {
	if s.keep <= 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE meeting_id = ? AND session_id NOT IN (
            SELECT session_id FROM sessions WHERE meeting_id = ?
            ORDER BY started_at DESC LIMIT ?
        )`, meetingID, meetingID, s.keep); err != nil {
		return fmt.Errorf("prune sessions: %w", err)
	}
	return nil
}

// Recent returns the newest archived sessions, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, meeting_id, url, status, reason,
                started_at, completed_at, duration, segment_count, transcript
         FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LatestFor returns the newest archived session for a meeting.
func (s *Store) LatestFor(ctx context.Context, meetingID string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, meeting_id, url, status, reason,
                started_at, completed_at, duration, segment_count, transcript
         FROM sessions WHERE meeting_id = ?
         ORDER BY started_at DESC LIMIT 1`, meetingID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotArchived
	}
	return rec, err
}

// SegmentsFor returns the stored segments of one archived session in
// transcript order.
func (s *Store) SegmentsFor(ctx context.Context, sessionID string) ([]transcript.Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, speaker, text, start_sec, end_sec
         FROM segments WHERE session_id = ? ORDER BY idx`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []transcript.Segment
	for rows.Next() {
		var seg transcript.Segment
		if err := rows.Scan(&seg.Index, &seg.Speaker, &seg.Text, &seg.Start, &seg.End); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var startedAt string
	var completedAt sql.NullString
	if err := row.Scan(
		&rec.SessionID, &rec.MeetingID, &rec.URL, &rec.Status, &rec.Reason,
		&startedAt, &completedAt, &rec.Duration, &rec.SegmentCount, &rec.Transcript,
	); err != nil {
		return Record{}, fmt.Errorf("scan session: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		rec.StartedAt = ts
	}
	if completedAt.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, completedAt.String); err == nil {
			rec.CompletedAt = &ts
		}
	}
	return rec, nil
}
