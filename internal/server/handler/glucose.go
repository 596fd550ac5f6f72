package handler

import (
	"net/http"
	"strconv"

	"github.com/GamerLionLeo/CGM-Trakr/internal/apperr"
	"github.com/GamerLionLeo/CGM-Trakr/internal/glucose"
	"github.com/GamerLionLeo/CGM-Trakr/internal/session"
)

type Glucose struct {
	sessions *session.Manager
}

func NewGlucose(sessions *session.Manager) *Glucose {
	return &Glucose{sessions: sessions}
}

type currentResponse struct {
	Reading *glucose.Reading `json:"reading"`
}

func (h *Glucose) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}

	reading, ok := h.sessions.Get(userID).CurrentReading()
	if !ok {
		apperr.WriteOK(w, currentResponse{})
		return
	}
	apperr.WriteOK(w, currentResponse{Reading: &reading})
}

type historyResponse struct {
	Readings []glucose.Reading `json:"readings"`
}

func (h *Glucose) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}

	hours := 0
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			apperr.WriteError(w, apperr.BadRequest("invalid_hours", "hours must be a non-negative integer"))
			return
		}
		hours = parsed
	}

	readings := h.sessions.Get(userID).History(hours)
	if readings == nil {
		readings = []glucose.Reading{}
	}
	apperr.WriteOK(w, historyResponse{Readings: readings})
}

type alertsResponse struct {
	Alerts []session.Alert `json:"alerts"`
}

// HandleAlerts drains alerts raised since the client last polled.
func (h *Glucose) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}

	alerts := h.sessions.Get(userID).Alerts()
	if alerts == nil {
		alerts = []session.Alert{}
	}
	apperr.WriteOK(w, alertsResponse{Alerts: alerts})
}
