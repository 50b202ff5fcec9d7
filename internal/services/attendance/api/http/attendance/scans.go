package attendance

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/rollcall-app/rollcall/internal/platform/errors"
	"github.com/rollcall-app/rollcall/internal/platform/httpx"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/scan"
	"github.com/rollcall-app/rollcall/internal/services/attendance/feedback"
)

// scanOutcome carries everything needed to describe one scan to the student.
type scanOutcome struct {
	studentID string
	sessionID string
	classID   string
	result    scan.Result
	distance  *float64
	err       error
}

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.RequestContext(r)

	var req scanRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.respondScan(ctx, w, r, scanOutcome{err: err})
		return
	}
	out := scanOutcome{studentID: strings.TrimSpace(req.StudentID)}
	if err := h.validateRequest(req); err != nil {
		out.err = err
		h.respondScan(ctx, w, r, out)
		return
	}

	token, err := h.resolveToken(req)
	if err != nil {
		out.err = err
		h.respondScan(ctx, w, r, out)
		return
	}

	location := req.Location.point()
	if location != nil {
		if err := location.Validate(); err != nil {
			out.err = err
			h.respondScan(ctx, w, r, out)
			return
		}
	}
	var scannedAt time.Time
	if req.ScannedAt != nil {
		scannedAt = *req.ScannedAt
	}

	out.result, out.err = h.verifier.Verify(ctx, scan.Attempt{
		Token:     token,
		StudentID: req.StudentID,
		Location:  location,
		ScanTime:  scannedAt,
	})
	switch {
	case out.err == nil:
		out.sessionID = out.result.Session.ID
		out.classID = out.result.Session.ClassID
		out.distance = out.result.DistanceMeters
	default:
		if s, err := h.sessions.FindByToken(ctx, token); err == nil {
			out.sessionID = s.ID
			out.classID = s.ClassID
		}
		var rangeErr *scan.OutOfRangeError
		if errors.As(out.err, &rangeErr) {
			meters := rangeErr.DistanceMeters
			out.distance = &meters
		}
	}
	h.respondScan(ctx, w, r, out)
}

// resolveToken returns the raw session token from either the token field or
// a signed QR payload. When both are sent they must agree.
func (h *Handler) resolveToken(req scanRequest) (string, error) {
	token := strings.TrimSpace(req.Token)
	if strings.TrimSpace(req.QRPayload) == "" {
		return token, nil
	}
	payload, err := h.codec.Decode(req.QRPayload)
	if err != nil {
		return "", err
	}
	if token != "" && token != payload.Token {
		return "", apperrors.New(apperrors.CodeInvalidToken, "token does not match qr payload")
	}
	return payload.Token, nil
}

func (h *Handler) respondScan(ctx context.Context, w http.ResponseWriter, r *http.Request, out scanOutcome) {
	outcome := scan.Outcome(out.err)
	h.metrics.ObserveScan(outcome, out.distance)

	if outcome == "error" {
		h.writeError(w, "verify scan", out.err)
		return
	}

	input := feedback.Input{
		Outcome:         outcome,
		ThresholdMeters: h.verifier.ThresholdMeters(),
	}
	if out.distance != nil {
		input.DistanceMeters = *out.distance
	}
	if out.classID != "" {
		input.ClassLabel, input.Room = h.className(ctx, out.classID)
	}
	if out.studentID != "" {
		input.StudentName = h.studentName(ctx, out.studentID)
	}
	message := feedback.Render(feedback.NewPrinter(r.Header.Get("Accept-Language")), input)

	h.feedback.Notify(ctx, feedback.Notice{
		StudentID: out.studentID,
		SessionID: out.sessionID,
		Outcome:   outcome,
		Message:   message,
		At:        h.now(),
	})

	if out.err == nil {
		_ = httpx.WriteJSON(w, http.StatusOK, scanAcceptedView{
			Status:         outcome,
			SessionID:      out.result.Record.SessionID,
			StudentID:      out.result.Record.StudentID,
			RecordedAt:     out.result.Record.RecordedAt,
			DistanceMeters: out.distance,
			Message:        message,
		})
		return
	}

	var domainErr *apperrors.Error
	if !errors.As(out.err, &domainErr) {
		h.writeError(w, "verify scan", out.err)
		return
	}
	_ = httpx.WriteJSON(w, domainErr.Code.HTTPStatus(), scanErrorView{
		Code:           string(domainErr.Code),
		Message:        message,
		Metadata:       domainErr.Metadata,
		DistanceMeters: out.distance,
	})
}
