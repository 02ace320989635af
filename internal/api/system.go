package api

import (
	"context"
	"net/http"
	"time"

	"github.com/venuecast/venuecast-core/internal/display"
)

// componentCheckTimeout bounds the component checks run for GET /health.
const componentCheckTimeout = 5 * time.Second

// ComponentHealth is one component's entry in the health response.
type ComponentHealth struct {
	Status string `json:"status"` // ok | error
	Error  string `json:"error,omitempty"`
}

// handleHealth reports liveness plus per-component checks.
//
// The process answering at all is the liveness signal, so the response
// is always 200; a failed optional component (mqtt, influxdb) shows as
// degraded in the body rather than taking the endpoint down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), componentCheckTimeout)
	defer cancel()

	// Snapshot checks under lock, run them after release.
	s.checksMu.RLock()
	checks := make(map[string]ComponentCheck, len(s.checks))
	for name, check := range s.checks {
		checks[name] = check
	}
	s.checksMu.RUnlock()

	status := "ok"
	components := make(map[string]ComponentHealth, len(checks))
	for name, check := range checks {
		if err := check(ctx); err != nil {
			status = "degraded"
			components[name] = ComponentHealth{Status: "error", Error: err.Error()}
			continue
		}
		components[name] = ComponentHealth{Status: "ok"}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}

// handleSystemInfo returns version, uptime, and fleet counts.
func (s *Server) handleSystemInfo(w http.ResponseWriter, _ *http.Request) {
	displays := map[string]int{
		"total": s.registry.Count(),
	}
	for _, g := range display.AllGroups() {
		displays[string(g)] = len(s.registry.ListByGroup(g))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"version":           s.version,
		"uptime_seconds":    int64(time.Since(s.startedAt).Seconds()),
		"displays":          displays,
		"websocket_clients": s.hubClientCount(),
		"events_dropped":    s.board.EventsDropped(),
	})
}

// hubClientCount tolerates the hub not existing yet (info requested
// between New and Start).
func (s *Server) hubClientCount() int {
	if s.hub == nil {
		return 0
	}
	return s.hub.ClientCount()
}
