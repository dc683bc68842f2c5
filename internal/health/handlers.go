package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync/atomic"
	"time"
)

var ready atomic.Bool

func init() {
	ready.Store(true)
}

// SetReady toggles readiness. It is flipped off while the server drains.
func SetReady(v bool) {
	ready.Store(v)
}

// Check tests a single dependency within the given timeout.
type Check func(ctx context.Context, timeout time.Duration) error

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checks map[string]Check
	// Circuits maps an upstream name to a func reporting its breaker state.
	Circuits map[string]func() string
	Timeout  time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type readyResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks"`
	Circuits map[string]string `json:"circuits,omitempty"`
}

// Ready reports readiness based on dependency checks. An open circuit is
// reported but does not fail readiness.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := readyResponse{Status: "ok", Checks: map[string]string{}}
	healthy := ready.Load()
	if !healthy {
		resp.Status = "draining"
	}

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		status := "ok"
		if err := h.Checks[name](r.Context(), h.timeout()); err != nil {
			status = err.Error()
			healthy = false
			if resp.Status == "ok" {
				resp.Status = "degraded"
			}
		}
		resp.Checks[name] = status
	}

	if len(h.Circuits) > 0 {
		resp.Circuits = make(map[string]string, len(h.Circuits))
		for name, state := range h.Circuits {
			resp.Circuits[name] = state()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.Timeout
}
