package attendance

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/net/websocket"

	"github.com/rollcall-app/rollcall/internal/platform/httpx"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/countdown"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/session"
)

// sampleCadence is the countdown time between consecutive frames.
const sampleCadence = time.Second

const (
	frameCountdown = "countdown"
	frameEnded     = "ended"
)

// countdownFrame is one message on the countdown stream.
type countdownFrame struct {
	Type      string            `json:"type"`
	SessionID string            `json:"session_id"`
	State     session.State     `json:"state"`
	Sample    *countdown.Sample `json:"sample,omitempty"`
}

// handleCountdown streams one countdown sample per tick until the session
// expires, is closed, or the client goes away. The stream is display only;
// expiry is decided by the session itself.
func (h *Handler) handleCountdown(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.RequestContext(r)
	s, err := h.sessions.Get(ctx, r.PathValue("sessionID"))
	if err != nil {
		h.writeError(w, "get session", err)
		return
	}

	websocket.Handler(func(conn *websocket.Conn) {
		defer func() {
			_ = conn.Close()
		}()
		done := h.metrics.StreamStarted()
		defer done()
		h.streamCountdown(conn.Request().Context(), conn, s)
	}).ServeHTTP(w, r)
}

func (h *Handler) streamCountdown(ctx context.Context, conn *websocket.Conn, s session.Session) {
	if s.State != session.StateActive {
		_ = websocket.JSON.Send(conn, countdownFrame{Type: frameEnded, SessionID: s.ID, State: s.State})
		return
	}

	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	for sample := range countdown.Samples(s.StartedAt, s.Duration, h.now(), sampleCadence) {
		if err := websocket.JSON.Send(conn, countdownFrame{
			Type:      frameCountdown,
			SessionID: s.ID,
			State:     session.StateActive,
			Sample:    &sample,
		}); err != nil {
			return
		}
		if sample.Tier == countdown.TierExpired {
			break
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		current, err := h.sessions.Get(ctx, s.ID)
		if err != nil {
			h.logf("countdown reload session=%s err=%v", s.ID, err)
			return
		}
		if current.State == session.StateClosed {
			_ = websocket.JSON.Send(conn, countdownFrame{Type: frameEnded, SessionID: s.ID, State: current.State})
			return
		}
	}
	_ = websocket.JSON.Send(conn, countdownFrame{Type: frameEnded, SessionID: s.ID, State: session.StateExpired})
}
