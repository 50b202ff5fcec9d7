// Package attendance serves the attendance JSON API over net/http.
package attendance

import (
	"context"
	"errors"
	"log"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/rollcall-app/rollcall/internal/platform/errors"
	"github.com/rollcall-app/rollcall/internal/platform/timeouts"
	"github.com/rollcall-app/rollcall/internal/services/attendance/directory"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/ledger"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/scan"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/session"
	"github.com/rollcall-app/rollcall/internal/services/attendance/feedback"
	"github.com/rollcall-app/rollcall/internal/services/attendance/metrics"
	"github.com/rollcall-app/rollcall/internal/services/attendance/qr"
)

// Sessions is the session lifecycle surface used by the API.
type Sessions interface {
	Open(ctx context.Context, input session.OpenInput) (session.Session, error)
	Close(ctx context.Context, sessionID string) (session.Session, bool, error)
	Get(ctx context.Context, sessionID string) (session.Session, error)
	FindByToken(ctx context.Context, token string) (session.Session, error)
	Current(ctx context.Context) (session.Session, error)
	ListByClass(ctx context.Context, classID string, limit int) ([]session.Session, error)
}

// Records is the read side of the attendance ledger.
type Records interface {
	List(ctx context.Context, sessionID string) ([]ledger.Record, error)
	Count(ctx context.Context, sessionID string) (int, error)
}

// Verifier checks and records scans.
type Verifier interface {
	Verify(ctx context.Context, attempt scan.Attempt) (scan.Result, error)
	ThresholdMeters() float64
}

// Deps wires the handler's collaborators. Directory, Metrics, Feedback and
// Clock are optional.
type Deps struct {
	Sessions  Sessions
	Records   Records
	Verifier  Verifier
	Codec     *qr.Codec
	Directory directory.Directory
	Metrics   *metrics.Recorder
	Feedback  feedback.Sink
	Clock     func() time.Time
	// CountdownTick is the wall-clock wait between countdown frames.
	CountdownTick time.Duration
	Logf          func(format string, args ...any)
}

// Handler serves attendance routes.
type Handler struct {
	sessions  Sessions
	records   Records
	verifier  Verifier
	codec     *qr.Codec
	directory directory.Directory
	metrics   *metrics.Recorder
	feedback  feedback.Sink
	clock     func() time.Time
	tick      time.Duration
	logf      func(format string, args ...any)
	validate  *validator.Validate
}

// NewHandler builds the attendance routes.
func NewHandler(deps Deps) (*Handler, error) {
	if deps.Sessions == nil {
		return nil, errors.New("sessions are required")
	}
	if deps.Records == nil {
		return nil, errors.New("records are required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("verifier is required")
	}
	if deps.Codec == nil {
		return nil, errors.New("qr codec is required")
	}
	h := &Handler{
		sessions:  deps.Sessions,
		records:   deps.Records,
		verifier:  deps.Verifier,
		codec:     deps.Codec,
		directory: deps.Directory,
		metrics:   deps.Metrics,
		feedback:  deps.Feedback,
		clock:     deps.Clock,
		tick:      deps.CountdownTick,
		logf:      deps.Logf,
		validate:  newValidator(),
	}
	if h.clock == nil {
		h.clock = time.Now
	}
	if h.tick <= 0 {
		h.tick = timeouts.CountdownTick
	}
	if h.logf == nil {
		h.logf = log.Printf
	}
	if h.feedback == nil {
		h.feedback = feedback.LogSink{Logf: h.logf}
	}
	return h, nil
}

// Routes returns a mux with every attendance route registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.register(mux)
	return mux
}

func (h *Handler) now() time.Time {
	return h.clock().UTC()
}

// validateRequest maps validator failures onto INVALID_ARGUMENT.
func (h *Handler) validateRequest(req any) error {
	err := h.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid request", err)
	}
	first := fieldErrs[0]
	return apperrors.WithMetadata(
		apperrors.CodeInvalidArgument,
		"invalid "+jsonFieldName(first.Namespace())+": "+first.Tag(),
		map[string]string{"Field": jsonFieldName(first.Namespace()), "Rule": first.Tag()},
	)
}

// jsonFieldName turns "openSessionRequest.anchor.lat" into "anchor.lat".
func jsonFieldName(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (h *Handler) className(ctx context.Context, classID string) (label, room string) {
	if h.directory == nil {
		return classID, ""
	}
	class, err := h.directory.Class(ctx, classID)
	if err != nil {
		return classID, ""
	}
	return class.Label(), class.RoomName()
}

func (h *Handler) studentName(ctx context.Context, studentID string) string {
	if h.directory == nil {
		return ""
	}
	name, err := h.directory.StudentName(ctx, studentID)
	if err != nil {
		return ""
	}
	return name
}
