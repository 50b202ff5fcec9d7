// Package session models attendance sessions and the single-active admission rule.
package session

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/rollcall-app/rollcall/internal/platform/errors"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/geo"
)

// DefaultDuration is the validity window applied when none is requested.
const DefaultDuration = 300 * time.Second

var (
	// ErrNotFound indicates a session lookup missed.
	ErrNotFound = apperrors.New(apperrors.CodeNotFound, "session not found")
	// ErrActiveSessionExists indicates another session is already active.
	ErrActiveSessionExists = apperrors.New(apperrors.CodeActiveSessionExists, "another session is already active")
	// ErrNotPending indicates activation of a session that already left Pending.
	ErrNotPending = apperrors.New(apperrors.CodeSessionNotPending, "session is not pending")
	// ErrClassIDRequired indicates a session was requested without a class.
	ErrClassIDRequired = apperrors.New(apperrors.CodeInvalidArgument, "class id is required")
	// ErrSessionIDRequired indicates an operation was requested without a session id.
	ErrSessionIDRequired = apperrors.New(apperrors.CodeInvalidArgument, "session id is required")
	// ErrInvalidDuration indicates a non-positive validity window.
	ErrInvalidDuration = apperrors.New(apperrors.CodeInvalidArgument, "session duration must be positive")
	// ErrStoreNotConfigured indicates the lifecycle is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("session store is not configured")
	// ErrIssuerNotConfigured indicates the lifecycle cannot mint tokens.
	ErrIssuerNotConfigured = errors.New("session issuer is not configured")
)

// State is the lifecycle state of a session.
type State string

const (
	StatePending State = "pending"
	StateActive  State = "active"
	StateExpired State = "expired"
	StateClosed  State = "closed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateExpired || s == StateClosed
}

// Session is one time-boxed attendance window for a class.
type Session struct {
	ID        string
	ClassID   string
	Token     string
	Anchor    *geo.Point
	Duration  time.Duration
	State     State
	CreatedAt time.Time
	StartedAt time.Time
	ClosedAt  *time.Time
}

// Deadline is the first instant at which an active session no longer accepts scans.
func (s Session) Deadline() time.Time {
	return s.StartedAt.Add(s.Duration)
}

// Observed returns the session as seen at now: an Active session whose
// deadline has passed reads as Expired. Nothing is persisted.
func (s Session) Observed(now time.Time) Session {
	if s.State == StateActive && !now.Before(s.Deadline()) {
		s.State = StateExpired
	}
	return s
}

// IsActive reports whether s accepts scans taken at t.
func IsActive(s Session, t time.Time) bool {
	return s.State == StateActive && t.Before(s.Deadline())
}

// Issuer mints new pending sessions.
type Issuer interface {
	Issue(classID string, anchor *geo.Point, duration time.Duration) (Session, error)
}

// AnchorResolver supplies a class's default anchor location. A nil point
// with a nil error means the class has no anchor.
type AnchorResolver interface {
	ResolveAnchor(ctx context.Context, classID string) (*geo.Point, error)
}

// Store is the persistence boundary for session state.
//
// ActivateSession and CloseSession must apply their checks and writes in one
// transaction so the single-active rule holds across processes sharing the
// database.
type Store interface {
	PutSession(ctx context.Context, s Session) error
	ActivateSession(ctx context.Context, sessionID string, startedAt time.Time) (Session, error)
	CloseSession(ctx context.Context, sessionID string, at time.Time) (Session, bool, error)
	GetSession(ctx context.Context, sessionID string) (Session, error)
	GetSessionByToken(ctx context.Context, token string) (Session, error)
	GetActiveSession(ctx context.Context, now time.Time) (Session, error)
	ListSessionsByClass(ctx context.Context, classID string, limit int) ([]Session, error)
}
