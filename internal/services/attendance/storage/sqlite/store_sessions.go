package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/geo"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/session"
)

const sessionColumns = `id, class_id, token, anchor_lat, anchor_lng, duration_ms, state, created_at, started_at, closed_at`

// PutSession inserts a newly issued session.
func (s *Store) PutSession(ctx context.Context, sess session.Session) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(sess.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(sess.ClassID) == "" {
		return fmt.Errorf("class id is required")
	}
	if strings.TrimSpace(sess.Token) == "" {
		return fmt.Errorf("session token is required")
	}

	var lat, lng sql.NullFloat64
	if sess.Anchor != nil {
		lat = sql.NullFloat64{Float64: sess.Anchor.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: sess.Anchor.Lng, Valid: true}
	}
	var startedAt sql.NullInt64
	if !sess.StartedAt.IsZero() {
		startedAt = sql.NullInt64{Int64: toMillis(sess.StartedAt), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO sessions (`+sessionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		sess.ID,
		sess.ClassID,
		sess.Token,
		lat,
		lng,
		sess.Duration.Milliseconds(),
		string(sess.State),
		toMillis(sess.CreatedAt),
		startedAt,
		toNullMillis(sess.ClosedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) && sess.State == session.StateActive {
			return session.ErrActiveSessionExists
		}
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// ActivateSession moves a pending session to active. Active sessions whose
// deadline has passed are first materialized as expired so they no longer
// hold the single-active slot.
func (s *Store) ActivateSession(ctx context.Context, sessionID string, startedAt time.Time) (session.Session, error) {
	if err := s.ready(ctx); err != nil {
		return session.Session{}, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return session.Session{}, fmt.Errorf("begin activate session: %w", err)
	}
	defer tx.Rollback()

	sess, err := getSession(ctx, tx, `WHERE id = ?`, sessionID)
	if err != nil {
		return session.Session{}, err
	}
	if sess.State != session.StatePending {
		return session.Session{}, session.ErrNotPending
	}

	startedMillis := toMillis(startedAt)
	if _, err := tx.ExecContext(ctx, `
UPDATE sessions SET state = 'expired'
WHERE state = 'active' AND started_at + duration_ms <= ?
`, startedMillis); err != nil {
		return session.Session{}, fmt.Errorf("expire stale sessions: %w", err)
	}

	var active int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE state = 'active'`).Scan(&active); err != nil {
		return session.Session{}, fmt.Errorf("check active session: %w", err)
	}
	if active > 0 {
		return session.Session{}, session.ErrActiveSessionExists
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE sessions SET state = 'active', started_at = ?
WHERE id = ? AND state = 'pending'
`, startedMillis, sessionID); err != nil {
		if isUniqueConstraintError(err) {
			return session.Session{}, session.ErrActiveSessionExists
		}
		return session.Session{}, fmt.Errorf("activate session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return session.Session{}, fmt.Errorf("commit activate session: %w", err)
	}

	sess.State = session.StateActive
	sess.StartedAt = fromMillis(startedMillis)
	return sess, nil
}

// CloseSession ends a session at the given instant. Pending sessions and
// active sessions at or before their deadline become closed; an active
// session past its deadline is recorded as expired. The boolean reports
// whether the session was closed by this call.
func (s *Store) CloseSession(ctx context.Context, sessionID string, at time.Time) (session.Session, bool, error) {
	if err := s.ready(ctx); err != nil {
		return session.Session{}, false, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return session.Session{}, false, fmt.Errorf("begin close session: %w", err)
	}
	defer tx.Rollback()

	sess, err := getSession(ctx, tx, `WHERE id = ?`, sessionID)
	if err != nil {
		return session.Session{}, false, err
	}

	closedAt := fromMillis(toMillis(at))
	next := sess.State
	switch sess.State {
	case session.StatePending:
		next = session.StateClosed
	case session.StateActive:
		if closedAt.After(sess.Deadline()) {
			next = session.StateExpired
		} else {
			next = session.StateClosed
		}
	default:
		return sess, false, nil
	}

	if next == session.StateClosed {
		_, err = tx.ExecContext(ctx, `UPDATE sessions SET state = 'closed', closed_at = ? WHERE id = ?`, toMillis(closedAt), sessionID)
		sess.ClosedAt = &closedAt
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE sessions SET state = 'expired' WHERE id = ?`, sessionID)
	}
	if err != nil {
		return session.Session{}, false, fmt.Errorf("update session state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return session.Session{}, false, fmt.Errorf("commit close session: %w", err)
	}
	sess.State = next
	return sess, next == session.StateClosed, nil
}

// GetSession loads one session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (session.Session, error) {
	if err := s.ready(ctx); err != nil {
		return session.Session{}, err
	}
	return getSession(ctx, s.sqlDB, `WHERE id = ?`, sessionID)
}

// GetSessionByToken loads the session bound to token.
func (s *Store) GetSessionByToken(ctx context.Context, token string) (session.Session, error) {
	if err := s.ready(ctx); err != nil {
		return session.Session{}, err
	}
	return getSession(ctx, s.sqlDB, `WHERE token = ?`, token)
}

// GetActiveSession loads the session that is active and inside its window at now.
func (s *Store) GetActiveSession(ctx context.Context, now time.Time) (session.Session, error) {
	if err := s.ready(ctx); err != nil {
		return session.Session{}, err
	}
	return getSession(ctx, s.sqlDB, `WHERE state = 'active' AND started_at + duration_ms > ?`, toMillis(now))
}

// ListSessionsByClass returns up to limit sessions for a class, newest first.
func (s *Store) ListSessionsByClass(ctx context.Context, classID string, limit int) ([]session.Session, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+sessionColumns+`
FROM sessions
WHERE class_id = ?
ORDER BY created_at DESC, rowid DESC
LIMIT ?
`, classID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []session.Session
	for rows.Next() {
		sess, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

func getSession(ctx context.Context, q execer, where string, args ...any) (session.Session, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions `+where+` LIMIT 1`, args...)
	sess, err := scanSession(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func scanSession(scan func(dest ...any) error) (session.Session, error) {
	var (
		sess       session.Session
		lat, lng   sql.NullFloat64
		durationMs int64
		state      string
		createdAt  int64
		startedAt  sql.NullInt64
		closedAt   sql.NullInt64
	)
	if err := scan(&sess.ID, &sess.ClassID, &sess.Token, &lat, &lng, &durationMs, &state, &createdAt, &startedAt, &closedAt); err != nil {
		return session.Session{}, err
	}
	if lat.Valid && lng.Valid {
		sess.Anchor = &geo.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	sess.Duration = time.Duration(durationMs) * time.Millisecond
	sess.State = session.State(state)
	sess.CreatedAt = fromMillis(createdAt)
	if startedAt.Valid {
		sess.StartedAt = fromMillis(startedAt.Int64)
	}
	sess.ClosedAt = fromNullMillis(closedAt)
	return sess, nil
}

var _ session.Store = (*Store)(nil)
