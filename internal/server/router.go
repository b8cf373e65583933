package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MOHCentral/opm-stats-gateway/internal/handlers"
	"github.com/MOHCentral/opm-stats-gateway/internal/middleware"
)

// NewRouter constructs a ServeMux with gateway routes registered.
func NewRouter(h *handlers.IngestHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/events", h.HandleBatch)

	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
