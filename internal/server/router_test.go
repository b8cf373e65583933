package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MOHCentral/opm-stats-gateway/internal/auth"
	"github.com/MOHCentral/opm-stats-gateway/internal/canonical"
	"github.com/MOHCentral/opm-stats-gateway/internal/handlers"
	"github.com/MOHCentral/opm-stats-gateway/internal/logging"
	"github.com/MOHCentral/opm-stats-gateway/internal/models"
	"github.com/MOHCentral/opm-stats-gateway/internal/service"
)

func newTestRouter() http.Handler {
	logger := logging.New(logging.ParseLevel("error"), "text")
	ing := service.NewIngestor(canonical.New(nil), discardSink{}, nil, time.Second, logger)
	resolver := auth.NewStaticResolver(map[string]string{"tok": "server-1"})
	h := handlers.NewIngestHandler(ing, resolver, nil, 1<<20, logger)
	return NewRouter(h)
}

type discardSink struct{}

func (discardSink) WriteBatch(_ context.Context, _ []models.CanonicalEvent) error {
	return nil
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestRouter_Ready(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output missing runtime collectors")
	}
}

func TestRouter_EventsRequiresAuth(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader("[]")))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
