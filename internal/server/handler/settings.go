package handler

import (
	"net/http"

	go_json "github.com/goccy/go-json"

	"github.com/GamerLionLeo/CGM-Trakr/internal/apperr"
	"github.com/GamerLionLeo/CGM-Trakr/internal/session"
	"github.com/GamerLionLeo/CGM-Trakr/internal/settings"
)

type Settings struct {
	sessions *session.Manager
}

func NewSettings(sessions *session.Manager) *Settings {
	return &Settings{sessions: sessions}
}

func (h *Settings) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}

	out, err := h.sessions.Get(userID).Settings(r.Context())
	if err != nil {
		apperr.WriteError(w, apperr.Internal("settings_failed", "failed to load settings", err))
		return
	}
	apperr.WriteOK(w, out)
}

func (h *Settings) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}

	var patch settings.Patch
	if err := go_json.NewDecoder(r.Body).Decode(&patch); err != nil {
		apperr.WriteError(w, apperr.BadRequest("invalid_body", "request body must be JSON"))
		return
	}

	out, err := h.sessions.Get(userID).UpdateSettings(r.Context(), patch)
	if err != nil {
		if patchErr := patch.Validate(); patchErr != nil {
			apperr.WriteError(w, apperr.BadRequest("invalid_settings", patchErr.Error()))
			return
		}
		apperr.WriteError(w, apperr.Internal("settings_failed", "failed to update settings", err))
		return
	}
	apperr.WriteOK(w, out)
}
