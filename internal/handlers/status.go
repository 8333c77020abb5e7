package handlers

import (
	"log"
	"net/http"

	"github.com/sitelink/fenceline/internal/buildinfo"
	"github.com/sitelink/fenceline/internal/fence"
)

// healthCheck reports liveness. The heartbeat prober polls /status instead,
// so this stays dependency-free.
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"role":   string(r.role),
		"uptime": buildinfo.Uptime().String(),
	})
}

// getStatus reports role, fence mode and outbox depth.
func (r *Router) getStatus(w http.ResponseWriter, req *http.Request) {
	pending, err := r.ob.PendingCount(req.Context(), r.tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count outbox")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"role":          string(r.role),
		"fence":         string(r.store.Get(r.tenantID)),
		"tenantId":      r.tenantID,
		"outboxPending": pending,
	})
}

// setFence is the operator override: POST /admin/fence?mode=online|fenced.
// Setting the current mode is a no-op, like any other fence transition.
func (r *Router) setFence(w http.ResponseWriter, req *http.Request) {
	mode, ok := fence.ParseMode(req.URL.Query().Get("mode"))
	if !ok {
		respondError(w, http.StatusBadRequest, "mode must be online or fenced")
		return
	}
	log.Printf("🔧 [ADMIN] fence override for %s: %s", r.tenantID, mode)
	r.store.Set(r.tenantID, mode)
	respondJSON(w, http.StatusOK, map[string]string{
		"tenantId": r.tenantID,
		"fence":    string(mode),
	})
}
