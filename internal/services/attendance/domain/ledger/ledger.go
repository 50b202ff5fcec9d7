// Package ledger keeps the append-only record of accepted scans.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/rollcall-app/rollcall/internal/platform/errors"
	"github.com/rollcall-app/rollcall/internal/platform/id"
)

var (
	// ErrDuplicateScan indicates the student is already recorded for the session.
	ErrDuplicateScan = apperrors.New(apperrors.CodeDuplicateScan, "attendance already recorded")
	// ErrSessionIDRequired indicates a ledger call without a session.
	ErrSessionIDRequired = apperrors.New(apperrors.CodeInvalidArgument, "session id is required")
	// ErrStudentIDRequired indicates a ledger call without a student.
	ErrStudentIDRequired = apperrors.New(apperrors.CodeInvalidArgument, "student id is required")
	// ErrSessionNotActive indicates the session stopped accepting scans before the write.
	ErrSessionNotActive = apperrors.New(apperrors.CodeSessionExpired, "session is no longer active")
	// ErrStoreNotConfigured indicates the ledger is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("ledger store is not configured")
)

// Record is one accepted scan.
type Record struct {
	ID             string
	SessionID      string
	StudentID      string
	RecordedAt     time.Time
	DistanceMeters *float64
}

// Meta carries the verification details stored with a record.
type Meta struct {
	RecordedAt     time.Time
	DistanceMeters *float64
}

// Store persists ledger records.
//
// PutRecord must enforce (SessionID, StudentID) uniqueness atomically and
// report a violation as ErrDuplicateScan. The write must also be conditional
// on the session still being active, reporting ErrSessionNotActive otherwise.
type Store interface {
	PutRecord(ctx context.Context, record Record) error
	HasRecord(ctx context.Context, sessionID, studentID string) (bool, error)
	ListRecords(ctx context.Context, sessionID string) ([]Record, error)
	CountRecords(ctx context.Context, sessionID string) (int, error)
}

// Ledger records attendance for sessions.
type Ledger struct {
	store Store
	clock func() time.Time
	newID func() (string, error)
}

// New constructs a ledger.
func New(store Store, clock func() time.Time, newID func() (string, error)) *Ledger {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Ledger{store: store, clock: clock, newID: newID}
}

// Record appends a record for (sessionID, studentID). A second record for the
// same pair fails with ErrDuplicateScan.
func (l *Ledger) Record(ctx context.Context, sessionID, studentID string, meta Meta) (Record, error) {
	if l == nil || l.store == nil {
		return Record{}, ErrStoreNotConfigured
	}
	sessionID, studentID, err := normalizeKey(sessionID, studentID)
	if err != nil {
		return Record{}, err
	}
	recordID, err := l.newID()
	if err != nil {
		return Record{}, err
	}
	recordedAt := meta.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = l.clock()
	}
	record := Record{
		ID:             recordID,
		SessionID:      sessionID,
		StudentID:      studentID,
		RecordedAt:     recordedAt.UTC(),
		DistanceMeters: meta.DistanceMeters,
	}
	if err := l.store.PutRecord(ctx, record); err != nil {
		return Record{}, err
	}
	return record, nil
}

// Has reports whether studentID is already recorded for sessionID.
func (l *Ledger) Has(ctx context.Context, sessionID, studentID string) (bool, error) {
	if l == nil || l.store == nil {
		return false, ErrStoreNotConfigured
	}
	sessionID, studentID, err := normalizeKey(sessionID, studentID)
	if err != nil {
		return false, err
	}
	return l.store.HasRecord(ctx, sessionID, studentID)
}

// List returns a session's records in recording order.
func (l *Ledger) List(ctx context.Context, sessionID string) ([]Record, error) {
	if l == nil || l.store == nil {
		return nil, ErrStoreNotConfigured
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	return l.store.ListRecords(ctx, sessionID)
}

// Count returns how many students are recorded for a session.
func (l *Ledger) Count(ctx context.Context, sessionID string) (int, error) {
	if l == nil || l.store == nil {
		return 0, ErrStoreNotConfigured
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return 0, ErrSessionIDRequired
	}
	return l.store.CountRecords(ctx, sessionID)
}

func normalizeKey(sessionID, studentID string) (string, string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", "", ErrSessionIDRequired
	}
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return "", "", ErrStudentIDRequired
	}
	return sessionID, studentID, nil
}
