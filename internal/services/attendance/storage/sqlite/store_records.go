package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/ledger"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/session"
)

// PutRecord inserts one attendance record. The (session, student) unique
// constraint turns a concurrent second insert into ledger.ErrDuplicateScan,
// and the insert only lands while the session row is still active.
func (s *Store) PutRecord(ctx context.Context, record ledger.Record) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("record id is required")
	}

	var distance sql.NullFloat64
	if record.DistanceMeters != nil {
		distance = sql.NullFloat64{Float64: *record.DistanceMeters, Valid: true}
	}
	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO attendance_records (id, session_id, student_id, recorded_at, distance_meters)
SELECT ?, ?, ?, ?, ?
WHERE EXISTS (SELECT 1 FROM sessions WHERE id = ? AND state = 'active')
`, record.ID, record.SessionID, record.StudentID, toMillis(record.RecordedAt), distance, record.SessionID)
	if err != nil {
		switch {
		case isUniqueConstraintError(err):
			return ledger.ErrDuplicateScan
		case isForeignKeyConstraintError(err):
			return session.ErrNotFound
		default:
			return fmt.Errorf("put attendance record: %w", err)
		}
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("put attendance record rows affected: %w", err)
	}
	if inserted == 0 {
		var exists bool
		if err := s.sqlDB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = ?)`, record.SessionID).Scan(&exists); err != nil {
			return fmt.Errorf("check session for record: %w", err)
		}
		if !exists {
			return session.ErrNotFound
		}
		return ledger.ErrSessionNotActive
	}
	return nil
}

// HasRecord reports whether a student is recorded for a session.
func (s *Store) HasRecord(ctx context.Context, sessionID, studentID string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	var exists int
	if err := s.sqlDB.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM attendance_records WHERE session_id = ? AND student_id = ?)
`, sessionID, studentID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check attendance record: %w", err)
	}
	return exists == 1, nil
}

// ListRecords returns a session's records in insertion order.
func (s *Store) ListRecords(ctx context.Context, sessionID string) ([]ledger.Record, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, session_id, student_id, recorded_at, distance_meters
FROM attendance_records
WHERE session_id = ?
ORDER BY rowid
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	defer rows.Close()

	var records []ledger.Record
	for rows.Next() {
		var (
			record     ledger.Record
			recordedAt int64
			distance   sql.NullFloat64
		)
		if err := rows.Scan(&record.ID, &record.SessionID, &record.StudentID, &recordedAt, &distance); err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		record.RecordedAt = fromMillis(recordedAt)
		if distance.Valid {
			value := distance.Float64
			record.DistanceMeters = &value
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return records, nil
}

// CountRecords returns the number of students recorded for a session.
func (s *Store) CountRecords(ctx context.Context, sessionID string) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance_records WHERE session_id = ?`, sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count attendance records: %w", err)
	}
	return count, nil
}

var _ ledger.Store = (*Store)(nil)
