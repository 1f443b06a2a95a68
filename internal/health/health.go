// Package health exposes liveness and readiness endpoints.
package health

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Check probes one dependency. Name appears in the readiness report.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Handler serves /healthz (liveness) and /readyz (readiness). Liveness always
// succeeds while the process runs; readiness runs the registered checks.
type Handler struct {
	checks []Check
	logger *zap.Logger
}

func NewHandler(logger *zap.Logger, checks ...Check) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{checks: checks, logger: logger}
}

// RegisterRoutes registers the health routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.handleLive)
	mux.HandleFunc("/readyz", h.handleReady)
}

func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	for _, c := range h.checks {
		if err := c.Probe(ctx); err != nil {
			h.logger.Warn("readiness check failed", zap.String("check", c.Name), zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable","failed":"` + c.Name + `"}`))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
