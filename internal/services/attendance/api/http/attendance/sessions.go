package attendance

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/rollcall-app/rollcall/internal/platform/errors"
	"github.com/rollcall-app/rollcall/internal/platform/httpx"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/scan"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/session"
	"github.com/rollcall-app/rollcall/internal/services/attendance/qr"
)

func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.RequestContext(r)

	var req openSessionRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := h.validateRequest(req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	anchor := req.Anchor.point()
	if anchor != nil {
		if err := anchor.Validate(); err != nil {
			httpx.WriteError(w, err)
			return
		}
	}

	opened, err := h.sessions.Open(ctx, session.OpenInput{
		ClassID:  req.ClassID,
		Anchor:   anchor,
		Duration: time.Duration(req.DurationSeconds) * time.Second,
	})
	if err != nil {
		if errors.Is(err, session.ErrActiveSessionExists) {
			h.metrics.SessionConflict()
		}
		h.writeError(w, "open session", err)
		return
	}
	h.metrics.SessionOpened()
	h.logf("session opened session=%s class=%s deadline=%s", opened.ID, opened.ClassID, opened.Deadline().Format(time.RFC3339))

	_ = httpx.WriteJSON(w, http.StatusCreated, h.sessionView(ctx, opened, 0))
}

func (h *Handler) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.RequestContext(r)
	current, err := h.sessions.Current(ctx)
	if err != nil {
		h.writeError(w, "current session", err)
		return
	}
	count, err := h.records.Count(ctx, current.ID)
	if err != nil {
		h.writeError(w, "count records", err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, h.sessionView(ctx, current, count))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.RequestContext(r)
	s, err := h.sessions.Get(ctx, r.PathValue("sessionID"))
	if err != nil {
		h.writeError(w, "get session", err)
		return
	}
	count, err := h.records.Count(ctx, s.ID)
	if err != nil {
		h.writeError(w, "count records", err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, h.sessionView(ctx, s, count))
}

func (h *Handler) handleSessionQR(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.RequestContext(r)
	s, err := h.sessions.Get(ctx, r.PathValue("sessionID"))
	if err != nil {
		h.writeError(w, "get session", err)
		return
	}
	if s.State != session.StateActive {
		httpx.WriteError(w, scan.ErrSessionExpired)
		return
	}

	size := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 64 || parsed > 2048 {
			httpx.WriteError(w, apperrors.WithMetadata(apperrors.CodeInvalidArgument, "size must be between 64 and 2048", map[string]string{"Field": "size"}))
			return
		}
		size = parsed
	}

	label, _ := h.className(ctx, s.ClassID)
	payload, err := h.codec.Encode(qrPayload(s, label))
	if err != nil {
		h.writeError(w, "encode qr payload", err)
		return
	}
	image, err := qr.PNG(payload, size)
	if err != nil {
		h.writeError(w, "render qr", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(image)
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.RequestContext(r)
	closed, changed, err := h.sessions.Close(ctx, r.PathValue("sessionID"))
	if err != nil {
		h.writeError(w, "close session", err)
		return
	}
	if changed {
		h.metrics.SessionClosed()
		h.logf("session closed session=%s class=%s", closed.ID, closed.ClassID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAttendance(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.RequestContext(r)
	s, err := h.sessions.Get(ctx, r.PathValue("sessionID"))
	if err != nil {
		h.writeError(w, "get session", err)
		return
	}
	records, err := h.records.List(ctx, s.ID)
	if err != nil {
		h.writeError(w, "list records", err)
		return
	}
	label, _ := h.className(ctx, s.ClassID)
	view := attendanceView{
		SessionID:     s.ID,
		ClassID:       s.ClassID,
		ClassLabel:    label,
		State:         s.State,
		AttendeeCount: len(records),
		Records:       make([]recordView, 0, len(records)),
	}
	for _, record := range records {
		view.Records = append(view.Records, h.recordView(ctx, record))
	}
	_ = httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleClassSessions(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.RequestContext(r)
	classID := strings.TrimSpace(r.PathValue("classID"))

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httpx.WriteError(w, apperrors.WithMetadata(apperrors.CodeInvalidArgument, "limit must be a non-negative integer", map[string]string{"Field": "limit"}))
			return
		}
		limit = parsed
	}

	sessions, err := h.sessions.ListByClass(ctx, classID, limit)
	if err != nil {
		h.writeError(w, "list class sessions", err)
		return
	}
	label, _ := h.className(ctx, classID)
	view := classSessionsView{
		ClassID:    classID,
		ClassLabel: label,
		Sessions:   make([]sessionView, 0, len(sessions)),
	}
	for _, s := range sessions {
		count, err := h.records.Count(ctx, s.ID)
		if err != nil {
			h.writeError(w, "count records", err)
			return
		}
		view.Sessions = append(view.Sessions, h.sessionView(ctx, s, count))
	}
	_ = httpx.WriteJSON(w, http.StatusOK, view)
}

// writeError logs non-domain failures with their operation before writing
// the response. Entropy exhaustion is an operator problem and logged too.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	code := apperrors.CodeOf(err)
	if code == apperrors.CodeUnknown || code == apperrors.CodeEntropyExhausted {
		h.logf("%s: %v", op, err)
	}
	httpx.WriteError(w, err)
}
