package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/NexaDev-26/Nexafya0.1-sub004/pkg/circuitbreaker"
)

// Check probes one dependency; a nil error means ready.
type Check func(ctx context.Context) error

type HealthHandler struct {
	service  string
	checks   map[string]Check
	breakers func() []circuitbreaker.Health
	timeout  time.Duration
}

func NewHealthHandler(service string, checks map[string]Check, breakers func() []circuitbreaker.Health) *HealthHandler {
	if checks == nil {
		checks = map[string]Check{}
	}
	return &HealthHandler{service: service, checks: checks, breakers: breakers, timeout: 2 * time.Second}
}

// Health is liveness: it never touches dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": h.service})
}

type dependencyStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Ready runs every check and answers 503 when any fails. Breaker states are reported but
// an open breaker does not make the service unready.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	code := http.StatusOK
	deps := make([]dependencyStatus, 0, len(names))
	for _, name := range names {
		st := dependencyStatus{Name: name, Status: "up"}
		if err := h.checks[name](ctx); err != nil {
			st.Status = "down"
			st.Error = err.Error()
			code = http.StatusServiceUnavailable
		}
		deps = append(deps, st)
	}

	body := map[string]any{"service": h.service, "dependencies": deps}
	if h.breakers != nil {
		body["circuit_breakers"] = h.breakers()
	}
	if code == http.StatusOK {
		body["status"] = "ready"
	} else {
		body["status"] = "unavailable"
	}
	writeJSON(w, code, body)
}
