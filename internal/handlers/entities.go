package handlers

import (
	"io"
	"net/http"

	"github.com/sitelink/fenceline/internal/gateway"
	"github.com/sitelink/fenceline/internal/models"
)

const listLimit = 10

// createEntity builds the POST handler for one entity endpoint. The gateway
// canonicalizes the body, so a client may omit the id and still get the same
// one at both sites.
func (r *Router) createEntity(domain, entity string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(req.Body)
		if err != nil || len(body) == 0 {
			respondError(w, http.StatusBadRequest, "empty body")
			return
		}

		res := r.gw.Dispatch(req.Context(), gateway.SyncRequest{
			TenantID: r.tenantID,
			Domain:   domain,
			Entity:   entity,
			Action:   gateway.ActionPost,
			Payload:  body,
		})
		if !res.OK {
			respondJSON(w, res.Status, map[string]any{
				"ok":    false,
				"mode":  res.Mode,
				"error": res.Message,
			})
			return
		}
		respondJSON(w, res.Status, map[string]any{
			"ok":   true,
			"mode": res.Mode,
			"data": res.Data,
		})
	}
}

// listSalesOrders returns the newest sales orders.
func (r *Router) listSalesOrders(w http.ResponseWriter, req *http.Request) {
	var orders []models.SalesOrder
	if err := r.db.WithContext(req.Context()).Order("created_at desc").Limit(listLimit).Find(&orders).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "failed to fetch sales orders")
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

// listCustomerNotes returns the newest customer notes.
func (r *Router) listCustomerNotes(w http.ResponseWriter, req *http.Request) {
	var notes []models.CustomerNote
	if err := r.db.WithContext(req.Context()).Order("created_at desc").Limit(listLimit).Find(&notes).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "failed to fetch customer notes")
		return
	}
	respondJSON(w, http.StatusOK, notes)
}

// listStockMovements returns the newest stock movements.
func (r *Router) listStockMovements(w http.ResponseWriter, req *http.Request) {
	var moves []models.StockMovement
	if err := r.db.WithContext(req.Context()).Order("created_at desc").Limit(listLimit).Find(&moves).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "failed to fetch stock movements")
		return
	}
	respondJSON(w, http.StatusOK, moves)
}
