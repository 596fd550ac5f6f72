package server

import (
	"log/slog"
	"net/http"

	"github.com/GamerLionLeo/CGM-Trakr/internal/config"
	"github.com/GamerLionLeo/CGM-Trakr/internal/oauth"
	"github.com/GamerLionLeo/CGM-Trakr/internal/server/handler"
	"github.com/GamerLionLeo/CGM-Trakr/internal/server/middleware"
	"github.com/GamerLionLeo/CGM-Trakr/internal/session"
	"github.com/GamerLionLeo/CGM-Trakr/internal/user"
)

type Deps struct {
	Config   config.Config
	Logger   *slog.Logger
	Users    user.Service
	Sessions *session.Manager
	OAuth    *oauth.Service
	Clients  handler.ClientFactory
}

// New wires the route table. Public routes sit behind the per-IP rate
// limiter; everything under /api (except auth) requires a session token.
func New(deps Deps) http.Handler {
	authHandler := handler.NewAuth(deps.Users, []byte(deps.Config.Auth.JWTSecret), deps.Config.Auth.TokenTTL)
	dexcomHandler := handler.NewDexcom(deps.Sessions, deps.OAuth, deps.Clients)
	glucoseHandler := handler.NewGlucose(deps.Sessions)
	settingsHandler := handler.NewSettings(deps.Sessions)

	mux := http.NewServeMux()

	publicMux := http.NewServeMux()
	publicMux.HandleFunc("POST /api/auth/register", authHandler.HandleRegister)
	publicMux.HandleFunc("POST /api/auth/login", authHandler.HandleLogin)
	publicMux.HandleFunc("GET /health", handler.HandleHealth)
	publicWrapped := middleware.Chain(publicMux,
		middleware.RateLimit(deps.Config.RateLimit.Limit, deps.Config.RateLimit.Burst),
	)
	mux.Handle("/api/auth/", publicWrapped)
	mux.Handle("/health", publicWrapped)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/dexcom/authorize", dexcomHandler.HandleAuthorize)
	apiMux.HandleFunc("POST /api/dexcom/connect", dexcomHandler.HandleConnect)
	apiMux.HandleFunc("POST /api/dexcom/disconnect", dexcomHandler.HandleDisconnect)
	apiMux.HandleFunc("GET /api/dexcom/status", dexcomHandler.HandleStatus)
	apiMux.HandleFunc("GET /api/dexcom/devices", dexcomHandler.HandleDevices)
	apiMux.HandleFunc("GET /api/glucose/current", glucoseHandler.HandleCurrent)
	apiMux.HandleFunc("GET /api/glucose/history", glucoseHandler.HandleHistory)
	apiMux.HandleFunc("GET /api/glucose/alerts", glucoseHandler.HandleAlerts)
	apiMux.HandleFunc("GET /api/settings", settingsHandler.HandleGet)
	apiMux.HandleFunc("PUT /api/settings", settingsHandler.HandleUpdate)
	apiWrapped := middleware.Chain(apiMux,
		middleware.BearerAuth([]byte(deps.Config.Auth.JWTSecret)),
	)
	mux.Handle("/api/dexcom/", apiWrapped)
	mux.Handle("/api/glucose/", apiWrapped)
	mux.Handle("/api/settings", apiWrapped)

	return middleware.Chain(mux,
		middleware.Recovery,
		middleware.Logging,
		middleware.Logger(deps.Logger),
		middleware.RequestID,
	)
}
