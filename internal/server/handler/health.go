package handler

import (
	"net/http"

	"github.com/GamerLionLeo/CGM-Trakr/internal/apperr"
)

func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	apperr.WriteOK(w, map[string]string{"status": "ok"})
}
