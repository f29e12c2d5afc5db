package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// ReadinessCheck reports whether the service can take traffic.
type ReadinessCheck func() error

// HealthHandlers answers liveness and readiness probes.
type HealthHandlers struct {
	started time.Time
	ready   ReadinessCheck
}

// NewHealthHandlers constructs health handlers. A nil readiness check means
// the service is ready as soon as it is up.
func NewHealthHandlers(ready ReadinessCheck) *HealthHandlers {
	return &HealthHandlers{
		started: time.Now(),
		ready:   ready,
	}
}

// Healthz responds with a simple status payload for liveness monitoring.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeHealthPayload(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(h.started).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readyz reports readiness, running the configured check when present.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, _ *http.Request) {
	if h.ready != nil {
		if err := h.ready(); err != nil {
			writeHealthPayload(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unavailable",
				"reason": err.Error(),
			})
			return
		}
	}
	writeHealthPayload(w, http.StatusOK, map[string]any{"status": "ready"})
}

func writeHealthPayload(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
