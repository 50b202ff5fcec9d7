// Package scan verifies student scans against a session before recording them.
package scan

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/rollcall-app/rollcall/internal/platform/errors"
	"github.com/rollcall-app/rollcall/internal/platform/otel"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/geo"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/ledger"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/session"
)

// DefaultThresholdMeters is the proximity limit applied when none is configured.
const DefaultThresholdMeters = 100.0

var (
	// ErrInvalidToken indicates the token does not name any session.
	ErrInvalidToken = apperrors.New(apperrors.CodeInvalidToken, "invalid token")
	// ErrSessionExpired indicates the session no longer accepts scans.
	ErrSessionExpired = apperrors.New(apperrors.CodeSessionExpired, "session is no longer active")
	// ErrOutOfRange matches any OutOfRangeError.
	ErrOutOfRange = apperrors.New(apperrors.CodeOutOfRange, "scanner is out of range")
	// ErrStudentIDRequired indicates a scan without a student identity.
	ErrStudentIDRequired = apperrors.New(apperrors.CodeInvalidArgument, "student id is required")
	// ErrVerifierNotConfigured indicates missing collaborators.
	ErrVerifierNotConfigured = errors.New("scan verifier is not configured")
)

// OutOfRangeError reports a scan taken too far from the session anchor.
type OutOfRangeError struct {
	DistanceMeters  float64
	ThresholdMeters float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("scanner is %.0fm from anchor, limit %.0fm", e.DistanceMeters, e.ThresholdMeters)
}

// Unwrap exposes the coded OUT_OF_RANGE error with the distance as metadata.
func (e *OutOfRangeError) Unwrap() error {
	return apperrors.WithMetadata(apperrors.CodeOutOfRange, e.Error(), map[string]string{
		"DistanceMeters":  strconv.FormatFloat(e.DistanceMeters, 'f', 0, 64),
		"ThresholdMeters": strconv.FormatFloat(e.ThresholdMeters, 'f', 0, 64),
	})
}

// Attempt is one submitted scan.
type Attempt struct {
	Token     string
	StudentID string
	Location  *geo.Point
	ScanTime  time.Time
}

// Result is the outcome of an accepted scan.
type Result struct {
	Session        session.Session
	Record         ledger.Record
	DistanceMeters *float64
}

// Sessions resolves tokens to sessions.
type Sessions interface {
	FindByToken(ctx context.Context, token string) (session.Session, error)
}

// Ledger is the record keeper consulted and written by the verifier.
type Ledger interface {
	Has(ctx context.Context, sessionID, studentID string) (bool, error)
	Record(ctx context.Context, sessionID, studentID string, meta ledger.Meta) (ledger.Record, error)
}

// Verifier validates scans in a fixed order and records accepted ones.
type Verifier struct {
	sessions  Sessions
	ledger    Ledger
	threshold float64
	clock     func() time.Time
	tracer    trace.Tracer
}

// NewVerifier constructs a verifier. A non-positive threshold uses
// DefaultThresholdMeters.
func NewVerifier(sessions Sessions, records Ledger, thresholdMeters float64, clock func() time.Time) *Verifier {
	if thresholdMeters <= 0 {
		thresholdMeters = DefaultThresholdMeters
	}
	if clock == nil {
		clock = time.Now
	}
	return &Verifier{
		sessions:  sessions,
		ledger:    records,
		threshold: thresholdMeters,
		clock:     clock,
		tracer:    otel.Tracer("github.com/rollcall-app/rollcall/internal/services/attendance/domain/scan"),
	}
}

// ThresholdMeters returns the configured proximity limit.
func (v *Verifier) ThresholdMeters() float64 {
	if v == nil {
		return DefaultThresholdMeters
	}
	return v.threshold
}

// Verify checks the attempt and records it on success. Checks run in order:
// token, activity at the scan's own time, proximity, duplicate. The first
// failure is returned and nothing is written.
func (v *Verifier) Verify(ctx context.Context, attempt Attempt) (result Result, err error) {
	if v == nil || v.sessions == nil || v.ledger == nil {
		return Result{}, ErrVerifierNotConfigured
	}
	ctx, span := v.tracer.Start(ctx, "scan.Verify")
	defer func() {
		span.SetAttributes(attribute.String("scan.outcome", Outcome(err)))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	studentID := strings.TrimSpace(attempt.StudentID)
	if studentID == "" {
		return Result{}, ErrStudentIDRequired
	}
	scanTime := attempt.ScanTime
	if scanTime.IsZero() {
		scanTime = v.clock()
	}
	scanTime = scanTime.UTC()

	s, err := v.sessions.FindByToken(ctx, strings.TrimSpace(attempt.Token))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return Result{}, ErrInvalidToken
		}
		return Result{}, fmt.Errorf("find session by token: %w", err)
	}
	span.SetAttributes(attribute.String("session.id", s.ID), attribute.String("class.id", s.ClassID))

	if !session.IsActive(s, scanTime) {
		return Result{}, ErrSessionExpired
	}

	var distance *float64
	if s.Anchor != nil && attempt.Location != nil {
		meters, err := geo.Distance(*s.Anchor, *attempt.Location)
		if err != nil {
			return Result{}, err
		}
		span.SetAttributes(attribute.Float64("scan.distance_meters", meters))
		if meters > v.threshold {
			return Result{}, &OutOfRangeError{DistanceMeters: meters, ThresholdMeters: v.threshold}
		}
		distance = &meters
	}

	recorded, err := v.ledger.Has(ctx, s.ID, studentID)
	if err != nil {
		return Result{}, fmt.Errorf("check ledger: %w", err)
	}
	if recorded {
		return Result{}, ledger.ErrDuplicateScan
	}

	record, err := v.ledger.Record(ctx, s.ID, studentID, ledger.Meta{RecordedAt: scanTime, DistanceMeters: distance})
	if err != nil {
		return Result{}, err
	}
	return Result{Session: s, Record: record, DistanceMeters: distance}, nil
}

// Outcome names the result of a verification for logs and metrics.
func Outcome(err error) string {
	if err == nil {
		return "accepted"
	}
	switch apperrors.CodeOf(err) {
	case apperrors.CodeInvalidToken:
		return "invalid_token"
	case apperrors.CodeSessionExpired:
		return "expired"
	case apperrors.CodeOutOfRange:
		return "out_of_range"
	case apperrors.CodeDuplicateScan:
		return "duplicate"
	case apperrors.CodeInvalidArgument, apperrors.CodeInvalidCoordinate:
		return "invalid_request"
	default:
		return "error"
	}
}
