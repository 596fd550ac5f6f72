package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/GamerLionLeo/CGM-Trakr/internal/xcontext"
)

const headerRequestID = "X-Request-Id"

func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		ctx := xcontext.SetRequestID(r.Context(), id)
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
