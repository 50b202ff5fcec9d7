package attendance

import (
	"context"
	"time"

	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/countdown"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/geo"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/ledger"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/session"
	"github.com/rollcall-app/rollcall/internal/services/attendance/qr"
)

type locationRequest struct {
	Lat *float64 `json:"lat" validate:"required"`
	Lng *float64 `json:"lng" validate:"required"`
}

func (l *locationRequest) point() *geo.Point {
	if l == nil {
		return nil
	}
	return &geo.Point{Lat: *l.Lat, Lng: *l.Lng}
}

type openSessionRequest struct {
	ClassID         string           `json:"class_id" validate:"required"`
	Anchor          *locationRequest `json:"anchor" validate:"omitempty"`
	DurationSeconds int              `json:"duration_seconds" validate:"omitempty,min=1,max=86400"`
}

type scanRequest struct {
	Token     string           `json:"token" validate:"required_without=QRPayload"`
	QRPayload string           `json:"qr_payload" validate:"required_without=Token"`
	StudentID string           `json:"student_id" validate:"required"`
	Location  *locationRequest `json:"location" validate:"omitempty"`
	ScannedAt *time.Time       `json:"scanned_at"`
}

type sessionView struct {
	SessionID       string            `json:"session_id"`
	ClassID         string            `json:"class_id"`
	ClassLabel      string            `json:"class_label,omitempty"`
	Room            string            `json:"room,omitempty"`
	State           session.State     `json:"state"`
	Token           string            `json:"token,omitempty"`
	QRPayload       string            `json:"qr_payload,omitempty"`
	Anchor          *geo.Point        `json:"anchor,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	StartedAt       time.Time         `json:"started_at,omitzero"`
	Deadline        time.Time         `json:"deadline,omitzero"`
	ClosedAt        *time.Time        `json:"closed_at,omitempty"`
	DurationSeconds int               `json:"duration_seconds"`
	Countdown       *countdown.Sample `json:"countdown,omitempty"`
	AttendeeCount   int               `json:"attendee_count"`
}

type recordView struct {
	RecordID       string    `json:"record_id"`
	StudentID      string    `json:"student_id"`
	StudentName    string    `json:"student_name,omitempty"`
	RecordedAt     time.Time `json:"recorded_at"`
	DistanceMeters *float64  `json:"distance_meters,omitempty"`
}

type attendanceView struct {
	SessionID     string        `json:"session_id"`
	ClassID       string        `json:"class_id"`
	ClassLabel    string        `json:"class_label,omitempty"`
	State         session.State `json:"state"`
	AttendeeCount int           `json:"attendee_count"`
	Records       []recordView  `json:"records"`
}

type classSessionsView struct {
	ClassID    string        `json:"class_id"`
	ClassLabel string        `json:"class_label,omitempty"`
	Sessions   []sessionView `json:"sessions"`
}

type scanAcceptedView struct {
	Status         string    `json:"status"`
	SessionID      string    `json:"session_id"`
	StudentID      string    `json:"student_id"`
	RecordedAt     time.Time `json:"recorded_at"`
	DistanceMeters *float64  `json:"distance_meters,omitempty"`
	Message        string    `json:"message"`
}

type scanErrorView struct {
	Code           string            `json:"code"`
	Message        string            `json:"message"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	DistanceMeters *float64          `json:"distance_meters,omitempty"`
}

// sessionView renders s as observed now. Secrets and the countdown are only
// included while the session accepts scans.
func (h *Handler) sessionView(ctx context.Context, s session.Session, attendees int) sessionView {
	label, room := h.className(ctx, s.ClassID)
	view := sessionView{
		SessionID:       s.ID,
		ClassID:         s.ClassID,
		ClassLabel:      label,
		Room:            room,
		State:           s.State,
		Anchor:          s.Anchor,
		CreatedAt:       s.CreatedAt,
		StartedAt:       s.StartedAt,
		ClosedAt:        s.ClosedAt,
		DurationSeconds: int(s.Duration / time.Second),
		AttendeeCount:   attendees,
	}
	if !s.StartedAt.IsZero() {
		view.Deadline = s.Deadline()
	}
	if s.State == session.StateActive {
		sample := countdown.Derive(s.StartedAt, s.Duration, h.now())
		view.Countdown = &sample
		view.Token = s.Token
		payload, err := h.codec.Encode(qrPayload(s, label))
		if err != nil {
			h.logf("encode qr payload session=%s err=%v", s.ID, err)
		} else {
			view.QRPayload = payload
		}
	}
	return view
}

func qrPayload(s session.Session, classLabel string) qr.Payload {
	return qr.Payload{
		SessionID:  s.ID,
		Token:      s.Token,
		IssuedAt:   s.StartedAt,
		ClassLabel: classLabel,
	}
}

func (h *Handler) recordView(ctx context.Context, record ledger.Record) recordView {
	return recordView{
		RecordID:       record.ID,
		StudentID:      record.StudentID,
		StudentName:    h.studentName(ctx, record.StudentID),
		RecordedAt:     record.RecordedAt,
		DistanceMeters: record.DistanceMeters,
	}
}
