package httpx

import (
	"net/http"

	"github.com/target/towertrack-portal/internal/service"
)

// healthHandler reports liveness, the number of live portals and the local role cache counters.
func healthHandler(reg *service.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		cache := reg.Resolver().Stats()
		WriteJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"portals": reg.Len(),
			"role_cache": map[string]any{
				"size":      cache.Size,
				"capacity":  cache.Capacity,
				"hits":      cache.Hits,
				"misses":    cache.Misses,
				"evictions": cache.Evictions,
			},
		})
	}
}
