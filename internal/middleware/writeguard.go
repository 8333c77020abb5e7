package middleware

import (
	"net/http"
	"regexp"

	"github.com/sitelink/fenceline/internal/fence"
	"github.com/sitelink/fenceline/internal/policy"
)

// entityPath extracts the domain and entity segment from write URLs like
// /backoffice/salesorders or /floorops/stockmovements/123.
var entityPath = regexp.MustCompile(`^/(backoffice|floorops)/(\w+)`)

// WriteGuard refuses writes the current role and fence mode make ineligible,
// before any handler or routing runs. Reads, admin, auth and infrastructure
// paths pass through untouched.
func WriteGuard(role fence.AppRole, store *fence.Store, tenantID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isWrite(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			m := entityPath.FindStringSubmatch(r.URL.Path)
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}

			entity, known := policy.Normalize(m[2])
			if !known {
				entity = m[2]
			}
			mode := store.Get(tenantID)
			if !policy.CanWrite(role, mode, entity) {
				respondLocked(w, role, mode, entity)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func respondLocked(w http.ResponseWriter, role fence.AppRole, mode fence.FenceMode, entity string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusLocked)
	w.Write([]byte(`{"error":"readonly","reason":"` + entity + ` writes are not accepted by role ` +
		string(role) + ` while ` + string(mode) + `"}`))
}
