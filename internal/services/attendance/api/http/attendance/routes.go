package attendance

import "net/http"

const (
	SessionsPath          = "/v1/sessions"
	CurrentSessionPath    = "/v1/sessions/current"
	SessionPattern        = "/v1/sessions/{sessionID}"
	SessionQRPattern      = "/v1/sessions/{sessionID}/qr.png"
	SessionCountdownPath  = "/v1/sessions/{sessionID}/countdown"
	SessionClosePattern   = "/v1/sessions/{sessionID}/close"
	SessionAttendancePath = "/v1/sessions/{sessionID}/attendance"
	ClassSessionsPattern  = "/v1/classes/{classID}/sessions"
	ScansPath             = "/v1/scans"
)

func (h *Handler) register(mux *http.ServeMux) {
	mux.HandleFunc(http.MethodPost+" "+SessionsPath, h.handleOpenSession)
	mux.HandleFunc(http.MethodGet+" "+CurrentSessionPath, h.handleCurrentSession)
	mux.HandleFunc(http.MethodGet+" "+SessionPattern, h.handleGetSession)
	mux.HandleFunc(http.MethodGet+" "+SessionQRPattern, h.handleSessionQR)
	mux.HandleFunc(http.MethodGet+" "+SessionCountdownPath, h.handleCountdown)
	mux.HandleFunc(http.MethodPost+" "+SessionClosePattern, h.handleCloseSession)
	mux.HandleFunc(http.MethodGet+" "+SessionAttendancePath, h.handleAttendance)
	mux.HandleFunc(http.MethodGet+" "+ClassSessionsPattern, h.handleClassSessions)
	mux.HandleFunc(http.MethodPost+" "+ScansPath, h.handleScan)
}
