package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/sitelink/fenceline/internal/fence"
	"github.com/sitelink/fenceline/internal/gateway"
	"github.com/sitelink/fenceline/internal/middleware"
	"github.com/sitelink/fenceline/internal/outbox"
	"github.com/sitelink/fenceline/internal/policy"
	"github.com/sitelink/fenceline/internal/websocket"
)

// Router wraps the mux router and the site's dependencies.
type Router struct {
	*mux.Router
	db       *gorm.DB
	store    *fence.Store
	gw       *gateway.Gateway
	ob       *outbox.Writer
	hub      *websocket.Hub
	role     fence.AppRole
	tenantID string

	jwtSecret string
	adminHash string
}

// NewRouter creates the HTTP router with all routes.
func NewRouter(db *gorm.DB, store *fence.Store, gw *gateway.Gateway, ob *outbox.Writer, hub *websocket.Hub, role fence.AppRole, tenantID, jwtSecret, adminHash string) *Router {
	r := &Router{
		Router:    mux.NewRouter(),
		db:        db,
		store:     store,
		gw:        gw,
		ob:        ob,
		hub:       hub,
		role:      role,
		tenantID:  tenantID,
		jwtSecret: jwtSecret,
		adminHash: adminHash,
	}

	r.Use(middleware.WriteGuard(role, store, tenantID))

	// Health and status endpoints
	r.HandleFunc("/health", r.healthCheck).Methods("GET")
	r.HandleFunc("/status", r.getStatus).Methods("GET")

	// Operator override. Token-protected once an admin credential is
	// configured, open on dev setups without one.
	admin := r.PathPrefix("/admin").Subrouter()
	if adminHash != "" {
		admin.Use(middleware.Auth(jwtSecret))
	}
	admin.HandleFunc("/fence", r.setFence).Methods("POST")

	// Auth routes
	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/token", r.issueToken).Methods("POST")

	// Backoffice routes
	backoffice := r.PathPrefix("/backoffice").Subrouter()
	backoffice.HandleFunc("/salesorders", r.listSalesOrders).Methods("GET")
	backoffice.HandleFunc("/salesorders", r.createEntity(policy.DomainBackoffice, policy.EntitySalesOrder)).Methods("POST")
	backoffice.HandleFunc("/customernotes", r.listCustomerNotes).Methods("GET")
	backoffice.HandleFunc("/customernotes", r.createEntity(policy.DomainBackoffice, policy.EntityCustomerNote)).Methods("POST")

	// Floorops routes
	floorops := r.PathPrefix("/floorops").Subrouter()
	floorops.HandleFunc("/stockmovements", r.listStockMovements).Methods("GET")
	floorops.HandleFunc("/stockmovements", r.createEntity(policy.DomainFloorOps, policy.EntityStockMovement)).Methods("POST")

	// Dashboard websocket
	if hub != nil {
		r.HandleFunc("/ws", hub.ServeWs).Methods("GET")
	}

	return r
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
