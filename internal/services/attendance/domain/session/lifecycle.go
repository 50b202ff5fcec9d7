package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/geo"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// OpenInput describes one instructor request to start a session.
type OpenInput struct {
	ClassID  string
	Anchor   *geo.Point
	Duration time.Duration
}

// Lifecycle orchestrates session issuance and state transitions.
type Lifecycle struct {
	store           Store
	issuer          Issuer
	anchors         AnchorResolver
	clock           func() time.Time
	defaultDuration time.Duration

	// mu serializes admission decisions made by this process.
	mu sync.Mutex
}

// Option customizes a Lifecycle.
type Option func(*Lifecycle)

// WithAnchorResolver sets the class directory used for default anchors.
func WithAnchorResolver(resolver AnchorResolver) Option {
	return func(l *Lifecycle) {
		l.anchors = resolver
	}
}

// WithDefaultDuration overrides DefaultDuration for sessions opened without one.
func WithDefaultDuration(d time.Duration) Option {
	return func(l *Lifecycle) {
		if d > 0 {
			l.defaultDuration = d
		}
	}
}

// NewLifecycle constructs a session lifecycle.
func NewLifecycle(store Store, issuer Issuer, clock func() time.Time, opts ...Option) *Lifecycle {
	if clock == nil {
		clock = time.Now
	}
	l := &Lifecycle{
		store:           store,
		issuer:          issuer,
		clock:           clock,
		defaultDuration: DefaultDuration,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open issues a session for a class and activates it immediately. When the
// admission rule rejects activation the issued session is closed and the
// conflict is returned.
func (l *Lifecycle) Open(ctx context.Context, input OpenInput) (Session, error) {
	if err := l.ready(); err != nil {
		return Session{}, err
	}
	if l.issuer == nil {
		return Session{}, ErrIssuerNotConfigured
	}
	classID := strings.TrimSpace(input.ClassID)
	if classID == "" {
		return Session{}, ErrClassIDRequired
	}
	duration := input.Duration
	if duration < 0 {
		return Session{}, ErrInvalidDuration
	}
	if duration == 0 {
		duration = l.defaultDuration
	}

	anchor := input.Anchor
	if anchor == nil && l.anchors != nil {
		resolved, err := l.anchors.ResolveAnchor(ctx, classID)
		if err != nil {
			return Session{}, err
		}
		anchor = resolved
	}

	issued, err := l.issuer.Issue(classID, anchor, duration)
	if err != nil {
		return Session{}, err
	}
	if err := l.store.PutSession(ctx, issued); err != nil {
		return Session{}, fmt.Errorf("put session: %w", err)
	}

	active, err := l.Activate(ctx, issued.ID)
	if err != nil {
		if errors.Is(err, ErrActiveSessionExists) {
			if _, _, closeErr := l.store.CloseSession(ctx, issued.ID, l.now()); closeErr != nil {
				return Session{}, errors.Join(err, fmt.Errorf("discard issued session: %w", closeErr))
			}
		}
		return Session{}, err
	}
	return active, nil
}

// Activate moves a pending session to Active with StartedAt set to now.
func (l *Lifecycle) Activate(ctx context.Context, sessionID string) (Session, error) {
	if err := l.ready(); err != nil {
		return Session{}, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Session{}, ErrSessionIDRequired
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.ActivateSession(ctx, sessionID, l.now())
}

// Close ends a session. Closing a session that already ended is a no-op and
// returns its current state; the boolean reports whether this call closed it.
func (l *Lifecycle) Close(ctx context.Context, sessionID string) (Session, bool, error) {
	if err := l.ready(); err != nil {
		return Session{}, false, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Session{}, false, ErrSessionIDRequired
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.CloseSession(ctx, sessionID, l.now())
}

// Get loads one session in its observed state.
func (l *Lifecycle) Get(ctx context.Context, sessionID string) (Session, error) {
	if err := l.ready(); err != nil {
		return Session{}, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Session{}, ErrSessionIDRequired
	}
	s, err := l.store.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	return s.Observed(l.now()), nil
}

// FindByToken loads the session bound to token as stored. Callers decide
// activity against their own timestamp with IsActive.
func (l *Lifecycle) FindByToken(ctx context.Context, token string) (Session, error) {
	if err := l.ready(); err != nil {
		return Session{}, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrNotFound
	}
	return l.store.GetSessionByToken(ctx, token)
}

// Current returns the session accepting scans right now.
func (l *Lifecycle) Current(ctx context.Context) (Session, error) {
	if err := l.ready(); err != nil {
		return Session{}, err
	}
	return l.store.GetActiveSession(ctx, l.now())
}

// ListByClass returns a class's sessions newest first in their observed state.
func (l *Lifecycle) ListByClass(ctx context.Context, classID string, limit int) ([]Session, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	classID = strings.TrimSpace(classID)
	if classID == "" {
		return nil, ErrClassIDRequired
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	sessions, err := l.store.ListSessionsByClass(ctx, classID, limit)
	if err != nil {
		return nil, err
	}
	now := l.now()
	for i := range sessions {
		sessions[i] = sessions[i].Observed(now)
	}
	return sessions, nil
}

// Now returns the lifecycle clock reading in UTC.
func (l *Lifecycle) Now() time.Time {
	return l.now()
}

func (l *Lifecycle) ready() error {
	if l == nil || l.store == nil {
		return ErrStoreNotConfigured
	}
	return nil
}

func (l *Lifecycle) now() time.Time {
	return l.clock().UTC()
}
