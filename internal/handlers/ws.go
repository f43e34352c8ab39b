package handlers

import (
	"net/http"
	"strings"

	"finance/internal/auth"
	"finance/internal/websocket"
)

// WSInvoices streams invoice updates for the token's user. Browsers cannot
// set headers on the upgrade request, so the token may come as a query
// parameter.
func (h *Handler) WSInvoices(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.UserID, h.cfg.Origins())
}
