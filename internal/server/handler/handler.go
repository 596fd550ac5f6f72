package handler

import (
	"errors"
	"net/http"

	"github.com/GamerLionLeo/CGM-Trakr/internal/apperr"
	"github.com/GamerLionLeo/CGM-Trakr/internal/client/dexcom"
	"github.com/GamerLionLeo/CGM-Trakr/internal/config"
	"github.com/GamerLionLeo/CGM-Trakr/internal/oauth"
	"github.com/GamerLionLeo/CGM-Trakr/internal/xcontext"
)

// mustUserID reads the authenticated user set by the bearer middleware.
// Routes calling this are always mounted behind it; a miss is a wiring bug.
func mustUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := xcontext.GetUserID(r.Context())
	if !ok {
		apperr.WriteError(w, apperr.Unauthorized(apperr.CodeUnauthenticated, "missing session"))
		return "", false
	}
	return userID, true
}

func isNotConnected(err error) bool {
	return errors.Is(err, oauth.ErrNotConnected)
}

// writePipelineError maps pipeline sentinel errors onto the HTTP failure
// taxonomy.
func writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, config.ErrDexcomConfigMissing):
		apperr.WriteError(w, apperr.Internal(apperr.CodeConfigMissing, "provider credentials are not configured", err))
	case errors.Is(err, oauth.ErrExchangeFailed):
		apperr.WriteError(w, apperr.BadRequest(apperr.CodeExchangeFailed, "failed to exchange authorization code; request a fresh one"))
	case errors.Is(err, oauth.ErrRefreshInvalid):
		apperr.WriteError(w, apperr.BadRequest(apperr.CodeRefreshInvalid, "provider connection expired; please reconnect"))
	case errors.Is(err, oauth.ErrNotConnected):
		apperr.WriteError(w, apperr.NotFound(apperr.CodeNotConnected, "no provider connection; please connect first"))
	case errors.Is(err, dexcom.ErrMalformedResponse):
		apperr.WriteError(w, apperr.BadGateway(apperr.CodeMalformedResponse, "provider returned an unexpected payload", err))
	case dexcom.IsUnauthorized(err):
		// The provider rejected a token the caller just refreshed; the
		// authorization itself is gone.
		apperr.WriteError(w, apperr.BadRequest(apperr.CodeRefreshInvalid, "provider connection expired; please reconnect"))
	case dexcom.IsUnavailable(err):
		apperr.WriteError(w, apperr.BadGateway(apperr.CodeProviderUnavailable, "provider is unavailable", err))
	default:
		apperr.WriteError(w, err)
	}
}
