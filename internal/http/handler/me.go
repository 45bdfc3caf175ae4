package handler

import (
	"net/http"

	"diary/internal/auth"
	"diary/internal/http/response"
)

type MeHandler struct{}

func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	response.OK(w, map[string]any{"user_id": uid})
}
