package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sitelink/fenceline/internal/utils"
)

// TokenRequest is the operator login payload.
type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// issueToken authenticates the operator account and returns a JWT for the
// admin and dashboard routes. With no ADMIN_PASSWORD_HASH configured the
// endpoint is closed.
func (r *Router) issueToken(w http.ResponseWriter, req *http.Request) {
	if r.adminHash == "" {
		respondError(w, http.StatusNotFound, "operator login not configured")
		return
	}

	var tr TokenRequest
	if err := json.NewDecoder(req.Body).Decode(&tr); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if tr.Username != "admin" || !utils.CheckPasswordHash(tr.Password, r.adminHash) {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := utils.GenerateToken(tr.Username, "operator", r.jwtSecret)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"accessToken": token})
}
