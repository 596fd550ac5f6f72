package middleware

import (
	"net/http"
	"strings"

	"github.com/GamerLionLeo/CGM-Trakr/internal/apperr"
	"github.com/GamerLionLeo/CGM-Trakr/internal/user"
	"github.com/GamerLionLeo/CGM-Trakr/internal/xcontext"
)

// BearerAuth verifies the session JWT and attaches the user ID to the
// request context. Requests without a valid token fail with the
// unauthenticated taxonomy code: the caller must re-login.
func BearerAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				apperr.WriteError(w, apperr.Unauthorized(apperr.CodeUnauthenticated, "missing bearer token"))
				return
			}

			userID, err := user.ParseUserID(tokenString, secret)
			if err != nil {
				apperr.WriteError(w, apperr.Unauthorized(apperr.CodeUnauthenticated, "invalid session token"))
				return
			}

			ctx := xcontext.SetUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
