package handler

import (
	"errors"
	"net/http"
	"net/mail"
	"time"

	go_json "github.com/goccy/go-json"

	"github.com/GamerLionLeo/CGM-Trakr/internal/apperr"
	"github.com/GamerLionLeo/CGM-Trakr/internal/user"
	"github.com/GamerLionLeo/CGM-Trakr/internal/xslog"
)

const minPasswordLength = 8

type Auth struct {
	users  user.Service
	secret []byte
	ttl    time.Duration
}

func NewAuth(users user.Service, secret []byte, ttl time.Duration) *Auth {
	return &Auth{users: users, secret: secret, ttl: ttl}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string    `json:"token"`
	User  user.User `json:"user"`
}

func (h *Auth) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := go_json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteError(w, apperr.BadRequest("invalid_body", "request body must be JSON"))
		return
	}

	if _, err := mail.ParseAddress(req.Email); err != nil {
		apperr.WriteError(w, apperr.BadRequest("invalid_email", "a valid email address is required"))
		return
	}
	if len(req.Password) < minPasswordLength {
		apperr.WriteError(w, apperr.BadRequest("weak_password", "password must be at least 8 characters"))
		return
	}

	u, err := h.users.Register(r.Context(), req.Email, req.Password)
	if errors.Is(err, user.ErrEmailTaken) {
		apperr.WriteError(w, apperr.Conflict("email_taken", "email already registered"))
		return
	}
	if err != nil {
		apperr.WriteError(w, apperr.Internal("register_failed", "failed to create account", err))
		return
	}

	h.writeSession(w, r, u)
}

func (h *Auth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := go_json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteError(w, apperr.BadRequest("invalid_body", "request body must be JSON"))
		return
	}

	u, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, user.ErrInvalidCredentials) {
		apperr.WriteError(w, apperr.Unauthorized(apperr.CodeUnauthenticated, "invalid email or password"))
		return
	}
	if err != nil {
		apperr.WriteError(w, apperr.Internal("login_failed", "failed to log in", err))
		return
	}

	h.writeSession(w, r, u)
}

func (h *Auth) writeSession(w http.ResponseWriter, r *http.Request, u user.User) {
	token, err := user.GenerateToken(u.ID, h.secret, h.ttl)
	if err != nil {
		xslog.FromContext(r.Context()).ErrorContext(r.Context(), "failed to sign session token", xslog.Error(err))
		apperr.WriteError(w, apperr.Internal("token_failed", "failed to issue session token", err))
		return
	}
	apperr.WriteOK(w, sessionResponse{Token: token, User: u})
}
