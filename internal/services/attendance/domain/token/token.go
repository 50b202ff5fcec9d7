// Package token mints session tokens and pending sessions.
package token

import (
	"crypto/rand"
	"encoding/base32"
	"io"
	"strings"
	"time"

	apperrors "github.com/rollcall-app/rollcall/internal/platform/errors"
	"github.com/rollcall-app/rollcall/internal/platform/id"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/geo"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/session"
)

// Bytes is the amount of randomness in one token (160 bits).
const Bytes = 20

// ErrEntropyExhausted indicates the random source failed. It is not retryable.
var ErrEntropyExhausted = apperrors.New(apperrors.CodeEntropyExhausted, "entropy source exhausted")

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// New reads Bytes from entropy and renders them as lowercase base32.
func New(entropy io.Reader) (string, error) {
	if entropy == nil {
		entropy = rand.Reader
	}
	buf := make([]byte, Bytes)
	if _, err := io.ReadFull(entropy, buf); err != nil {
		return "", apperrors.Wrap(apperrors.CodeEntropyExhausted, "read token entropy", err)
	}
	return strings.ToLower(encoding.EncodeToString(buf)), nil
}

// Issuer creates pending sessions with fresh tokens.
type Issuer struct {
	entropy io.Reader
	clock   func() time.Time
	newID   func() (string, error)
}

// NewIssuer constructs an issuer. Nil arguments fall back to crypto/rand,
// time.Now and id.NewID.
func NewIssuer(entropy io.Reader, clock func() time.Time, newID func() (string, error)) *Issuer {
	if entropy == nil {
		entropy = rand.Reader
	}
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Issuer{entropy: entropy, clock: clock, newID: newID}
}

// Issue returns a new Pending session for classID. It has no side effects.
func (i *Issuer) Issue(classID string, anchor *geo.Point, duration time.Duration) (session.Session, error) {
	classID = strings.TrimSpace(classID)
	if classID == "" {
		return session.Session{}, session.ErrClassIDRequired
	}
	if duration <= 0 {
		return session.Session{}, session.ErrInvalidDuration
	}
	if anchor != nil {
		if err := anchor.Validate(); err != nil {
			return session.Session{}, err
		}
		copied := *anchor
		anchor = &copied
	}

	sessionID, err := i.newID()
	if err != nil {
		return session.Session{}, apperrors.Wrap(apperrors.CodeEntropyExhausted, "generate session id", err)
	}
	value, err := New(i.entropy)
	if err != nil {
		return session.Session{}, err
	}
	return session.Session{
		ID:        sessionID,
		ClassID:   classID,
		Token:     value,
		Anchor:    anchor,
		Duration:  duration,
		State:     session.StatePending,
		CreatedAt: i.clock().UTC(),
	}, nil
}
