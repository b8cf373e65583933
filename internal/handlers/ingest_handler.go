package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/MOHCentral/opm-stats-gateway/internal/auth"
	"github.com/MOHCentral/opm-stats-gateway/internal/httputil"
	"github.com/MOHCentral/opm-stats-gateway/internal/logging"
	"github.com/MOHCentral/opm-stats-gateway/internal/metrics"
	"github.com/MOHCentral/opm-stats-gateway/internal/models"
	"github.com/MOHCentral/opm-stats-gateway/internal/parser"
	"github.com/MOHCentral/opm-stats-gateway/internal/ratelimit"
)

// BatchIngestor is the orchestrator surface the handler consumes.
type BatchIngestor interface {
	Ingest(ctx context.Context, serverID string, body []byte) (*models.BatchResult, error)
}

// QueueStats reports dead-letter queue state for the readiness document.
type QueueStats interface {
	Stats(ctx context.Context) map[string]interface{}
}

// IngestHandler is the HTTP surface of the gateway. Authentication is a
// precondition: a missing or unknown token rejects the request before
// any element is parsed and before any sink call.
type IngestHandler struct {
	service  BatchIngestor
	resolver auth.Resolver
	limiter  ratelimit.RateLimiter
	maxBody  int64
	logger   *logging.Logger
	dlqStats QueueStats
}

func NewIngestHandler(service BatchIngestor, resolver auth.Resolver, limiter ratelimit.RateLimiter, maxBody int64, logger *logging.Logger) *IngestHandler {
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	return &IngestHandler{
		service:  service,
		resolver: resolver,
		limiter:  limiter,
		maxBody:  maxBody,
		logger:   logger,
	}
}

func (h *IngestHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		metrics.RequestsTotal.WithLabelValues("method_not_allowed").Inc()
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	token := r.Header.Get(auth.TokenHeader)
	if token == "" {
		metrics.RequestsTotal.WithLabelValues("unauthorized").Inc()
		metrics.AuthFailures.Inc()
		httputil.WriteError(w, http.StatusUnauthorized, "missing server token")
		return
	}

	serverID, err := h.resolver.Resolve(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrUnknownToken) {
			metrics.RequestsTotal.WithLabelValues("unauthorized").Inc()
			metrics.AuthFailures.Inc()
			httputil.WriteError(w, http.StatusUnauthorized, "unknown server token")
			return
		}
		h.logger.WithContext(r.Context()).Error("token resolution failed", slog.String("error", err.Error()))
		metrics.RequestsTotal.WithLabelValues("auth_unavailable").Inc()
		httputil.WriteError(w, http.StatusServiceUnavailable, "authentication unavailable")
		return
	}

	allowed, err := h.limiter.Allow(r.Context(), serverID)
	if err != nil {
		h.logger.WithContext(r.Context()).Warn("rate limit check failed", slog.String("error", err.Error()))
		allowed = true
	}
	if !allowed {
		metrics.RequestsTotal.WithLabelValues("rate_limited").Inc()
		httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	// A body over the limit is rejected outright; truncating it would
	// drop the tail events while still returning a success accounting.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.RequestsTotal.WithLabelValues("request_too_large").Inc()
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "request body exceeds size limit")
			return
		}
		metrics.RequestsTotal.WithLabelValues("bad_request").Inc()
		httputil.WriteError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	defer r.Body.Close()
	metrics.EventBytesTotal.Add(float64(len(body)))

	result, err := h.service.Ingest(r.Context(), serverID, body)
	if err != nil {
		if errors.Is(err, parser.ErrUnparsable) {
			metrics.RequestsTotal.WithLabelValues("unparsable").Inc()
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.WithContext(r.Context()).Error("batch processing failed", slog.String("error", err.Error()))
		metrics.RequestsTotal.WithLabelValues("internal_error").Inc()
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Transport success is not business success: callers inspect
	// processed vs total in the body, so a batch where every element
	// failed still returns 200.
	metrics.RequestsTotal.WithLabelValues("ok").Inc()
	httputil.WriteJSON(w, http.StatusOK, result)
}

// SetDLQStats attaches a dead-letter queue whose state Ready reports.
func (h *IngestHandler) SetDLQStats(q QueueStats) {
	h.dlqStats = q
}

func (h *IngestHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *IngestHandler) Ready(w http.ResponseWriter, r *http.Request) {
	doc := map[string]interface{}{"status": "ready"}
	if h.dlqStats != nil {
		doc["dlq"] = h.dlqStats.Stats(r.Context())
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}
