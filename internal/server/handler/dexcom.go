package handler

import (
	"context"
	"net/http"

	go_json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/GamerLionLeo/CGM-Trakr/internal/apperr"
	"github.com/GamerLionLeo/CGM-Trakr/internal/client/dexcom"
	"github.com/GamerLionLeo/CGM-Trakr/internal/glucose"
	"github.com/GamerLionLeo/CGM-Trakr/internal/session"
	"github.com/GamerLionLeo/CGM-Trakr/internal/token"
	"github.com/GamerLionLeo/CGM-Trakr/internal/xslog"
)

// ClientFactory builds a provider API client bound to one user's stored
// credentials.
type ClientFactory func(userID string) *dexcom.Client

type Dexcom struct {
	sessions *session.Manager
	auth     AuthService
	clients  ClientFactory
}

// AuthService is the slice of the token lifecycle these handlers drive:
// the authorization URL for the connect flow, and keeping the stored pair
// fresh around direct provider calls.
type AuthService interface {
	AuthCodeURL(state string) (string, error)
	EnsureFresh(ctx context.Context, userID string) (token.Record, error)
	ForceRefresh(ctx context.Context, userID string) (token.Record, error)
}

func NewDexcom(sessions *session.Manager, auth AuthService, clients ClientFactory) *Dexcom {
	return &Dexcom{sessions: sessions, auth: auth, clients: clients}
}

type authorizeResponse struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// HandleAuthorize returns the provider authorization URL the client should
// redirect the user to. The state must round-trip through the provider
// callback unchanged.
func (h *Dexcom) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	if _, ok := mustUserID(w, r); !ok {
		return
	}

	state := uuid.New().String()
	url, err := h.auth.AuthCodeURL(state)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	apperr.WriteOK(w, authorizeResponse{URL: url, State: state})
}

type connectRequest struct {
	AuthorizationCode string `json:"authorizationCode"`
}

type statusResponse struct {
	State   glucose.ConnectionState `json:"connection_state"`
	Polling bool                    `json:"polling"`
}

// HandleConnect exchanges the authorization code and starts the poll loop.
// Codes are single-use: a failed exchange is never retried here, the
// client must restart the authorization flow.
func (h *Dexcom) HandleConnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}

	var req connectRequest
	if err := go_json.NewDecoder(r.Body).Decode(&req); err != nil || req.AuthorizationCode == "" {
		apperr.WriteError(w, apperr.BadRequest("invalid_body", "authorizationCode is required"))
		return
	}

	sess := h.sessions.Get(userID)
	if err := sess.Connect(r.Context(), req.AuthorizationCode); err != nil {
		writePipelineError(w, err)
		return
	}

	apperr.WriteOK(w, statusResponse{State: sess.State(), Polling: sess.Polling()})
}

func (h *Dexcom) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}

	sess := h.sessions.Get(userID)
	if err := sess.Disconnect(r.Context()); err != nil {
		xslog.FromContext(r.Context()).ErrorContext(r.Context(), "disconnect failed",
			xslog.UserID(userID),
			xslog.Error(err))
		apperr.WriteError(w, apperr.Internal("disconnect_failed", "failed to disconnect", err))
		return
	}
	apperr.WriteNoContent(w)
}

// HandleStatus reports connection state from the token store, the system
// of record, and resumes polling for a user whose connection is live but
// whose session is idle (fresh process, new login).
func (h *Dexcom) HandleStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}

	sess := h.sessions.Get(userID)
	if !sess.Polling() {
		switch err := sess.Resume(r.Context()); {
		case err == nil:
		case isNotConnected(err):
			apperr.WriteOK(w, statusResponse{State: glucose.Disconnected, Polling: false})
			return
		default:
			writePipelineError(w, err)
			return
		}
	}

	apperr.WriteOK(w, statusResponse{State: sess.State(), Polling: sess.Polling()})
}

type devicesResponse struct {
	Devices []dexcom.Device `json:"devices"`
}

// HandleDevices proxies the provider device list. Like the poll cycle, it
// ensures the token is fresh before the call, and answers a provider 401
// with one forced refresh and retry before treating the connection as dead.
func (h *Dexcom) HandleDevices(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}

	if _, err := h.auth.EnsureFresh(r.Context(), userID); err != nil {
		writePipelineError(w, err)
		return
	}

	devices, err := h.clients(userID).Device.List(r.Context())
	if dexcom.IsUnauthorized(err) {
		if _, rerr := h.auth.ForceRefresh(r.Context(), userID); rerr != nil {
			writePipelineError(w, rerr)
			return
		}
		devices, err = h.clients(userID).Device.List(r.Context())
	}
	if err != nil {
		writePipelineError(w, err)
		return
	}
	apperr.WriteOK(w, devicesResponse{Devices: devices})
}
