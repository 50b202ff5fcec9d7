// Package feedback renders localized scan outcomes and delivers them to a
// notification sink.
package feedback

import (
	"context"
	"log"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	keyAccepted       = "scan.accepted"
	keyAcceptedNamed  = "scan.accepted_named"
	keyExpired        = "scan.expired"
	keyOutOfRange     = "scan.out_of_range"
	keyDuplicate      = "scan.duplicate"
	keyInvalidToken   = "scan.invalid_token"
	keyInvalidRequest = "scan.invalid_request"
	keyFailed         = "scan.failed"

	defaultAccepted = "Attendance marked successfully!"
	defaultExpired  = "QR code has expired. Please ask instructor for a new code."
	defaultFailed   = "Attendance could not be recorded. Please try again."
)

// Outcome values mirror scan.Outcome.
const (
	OutcomeAccepted       = "accepted"
	OutcomeInvalidToken   = "invalid_token"
	OutcomeExpired        = "expired"
	OutcomeOutOfRange     = "out_of_range"
	OutcomeDuplicate      = "duplicate"
	OutcomeInvalidRequest = "invalid_request"
)

var supported = []language.Tag{
	language.English,
	language.MustParse("pt-BR"),
}

var matcher = language.NewMatcher(supported)

// Localizer is the minimal message-printer contract required by Render.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

// Input is one scan outcome to describe.
type Input struct {
	Outcome         string
	StudentName     string
	ClassLabel      string
	Room            string
	DistanceMeters  float64
	ThresholdMeters float64
}

// Render returns the user-facing message for a scan outcome.
func Render(loc Localizer, input Input) string {
	switch input.Outcome {
	case OutcomeAccepted:
		if input.StudentName != "" && input.ClassLabel != "" {
			if msg := localize(loc, keyAcceptedNamed, input.StudentName, input.ClassLabel); msg != keyAcceptedNamed {
				return msg
			}
		}
		return localizeWithFallback(loc, keyAccepted, defaultAccepted)
	case OutcomeExpired:
		return localizeWithFallback(loc, keyExpired, defaultExpired)
	case OutcomeOutOfRange:
		room := input.Room
		if room == "" {
			room = "the classroom"
		}
		return localize(loc, keyOutOfRange, input.ThresholdMeters, room, input.DistanceMeters)
	case OutcomeDuplicate:
		return localize(loc, keyDuplicate)
	case OutcomeInvalidToken:
		return localize(loc, keyInvalidToken)
	case OutcomeInvalidRequest:
		return localize(loc, keyInvalidRequest)
	default:
		return localizeWithFallback(loc, keyFailed, defaultFailed)
	}
}

// NewPrinter picks the best supported language for an Accept-Language value.
func NewPrinter(acceptLanguage string) *message.Printer {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return message.NewPrinter(language.English)
	}
	_, index, _ := matcher.Match(tags...)
	return message.NewPrinter(supported[index])
}

func localize(loc Localizer, key string, args ...any) string {
	if loc == nil {
		return key
	}
	return loc.Sprintf(key, args...)
}

func localizeWithFallback(loc Localizer, key, fallback string) string {
	value := strings.TrimSpace(localize(loc, key))
	if value == "" || value == key {
		return fallback
	}
	return value
}

// Notice is one feedback message addressed to a student.
type Notice struct {
	StudentID string
	SessionID string
	Outcome   string
	Message   string
	At        time.Time
}

// Sink receives feedback notices. Delivery is fire-and-forget.
type Sink interface {
	Notify(ctx context.Context, notice Notice)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, notice Notice)

// Notify calls f.
func (f SinkFunc) Notify(ctx context.Context, notice Notice) {
	f(ctx, notice)
}

// LogSink writes notices to the process log.
type LogSink struct {
	Logf func(format string, args ...any)
}

// Notify logs the notice.
func (s LogSink) Notify(_ context.Context, notice Notice) {
	logf := s.Logf
	if logf == nil {
		logf = log.Printf
	}
	logf("feedback student=%s session=%s outcome=%s message=%q",
		orDash(notice.StudentID), orDash(notice.SessionID), notice.Outcome, notice.Message)
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
