// Package service orchestrates one batch request: parse, canonicalize
// per element, one bulk sink write, and the outcome accounting the
// producer uses to decide whether to resend.
package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/MOHCentral/opm-stats-gateway/internal/canonical"
	"github.com/MOHCentral/opm-stats-gateway/internal/dlq"
	"github.com/MOHCentral/opm-stats-gateway/internal/logging"
	"github.com/MOHCentral/opm-stats-gateway/internal/metrics"
	"github.com/MOHCentral/opm-stats-gateway/internal/models"
	"github.com/MOHCentral/opm-stats-gateway/internal/parser"
	"github.com/MOHCentral/opm-stats-gateway/internal/sink"
)

// Ingestor processes authenticated batches. Stateless between requests;
// the sink and DLQ clients are the only shared resources.
type Ingestor struct {
	canon       *canonical.Canonicalizer
	sink        sink.Writer
	dlq         dlq.Writer
	sinkTimeout time.Duration
	logger      *logging.Logger
}

// NewIngestor wires the orchestrator. dlqWriter may be nil to disable
// dead-lettering.
func NewIngestor(canon *canonical.Canonicalizer, sinkWriter sink.Writer, dlqWriter dlq.Writer, sinkTimeout time.Duration, logger *logging.Logger) *Ingestor {
	return &Ingestor{
		canon:       canon,
		sink:        sinkWriter,
		dlq:         dlqWriter,
		sinkTimeout: sinkTimeout,
		logger:      logger,
	}
}

// Ingest runs the full pipeline for one request body. Returns
// parser.ErrUnparsable (wrapped) when the body matches neither grammar;
// every other failure is accounted per element in the BatchResult.
//
// Element errors from parsing and canonicalization are independent of
// the sink outcome and are never overwritten by a sink failure.
func (s *Ingestor) Ingest(ctx context.Context, serverID string, body []byte) (*models.BatchResult, error) {
	format, elements, err := parser.Parse(body)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result := &models.BatchResult{Total: len(elements)}

	accepted := make([]models.CanonicalEvent, 0, len(elements))
	acceptedIdx := make([]int, 0, len(elements))
	dropped := make([]dlq.FailedEvent, 0)

	for _, el := range elements {
		if el.Err != nil {
			result.Errors = append(result.Errors, models.ElementError{
				Index:  el.Index,
				Reason: models.ReasonParse,
				Detail: el.Err.Error(),
			})
			metrics.EventsTotal.WithLabelValues(models.ReasonParse).Inc()
			dropped = append(dropped, dlq.FailedEvent{
				Timestamp: now,
				ServerID:  serverID,
				Index:     el.Index,
				Reason:    models.ReasonParse,
				Detail:    el.Err.Error(),
				Raw:       el.Raw,
			})
			continue
		}

		event, err := s.canon.Canonicalize(el, serverID, now)
		if err != nil {
			result.Errors = append(result.Errors, models.ElementError{
				Index:  el.Index,
				Reason: models.ReasonValidation,
				Detail: err.Error(),
			})
			metrics.EventsTotal.WithLabelValues(models.ReasonValidation).Inc()
			dropped = append(dropped, dlq.FailedEvent{
				Timestamp: now,
				ServerID:  serverID,
				Index:     el.Index,
				Reason:    models.ReasonValidation,
				Detail:    err.Error(),
				Raw:       el.Raw,
			})
			continue
		}

		accepted = append(accepted, event)
		acceptedIdx = append(acceptedIdx, el.Index)
	}

	if len(accepted) > 0 {
		if err := s.writeBatch(ctx, accepted); err != nil {
			s.logger.WithContext(ctx).Error("sink write failed",
				slog.String("server_id", serverID),
				slog.Int("events", len(accepted)),
				slog.String("error", err.Error()),
			)
			for _, idx := range acceptedIdx {
				result.Errors = append(result.Errors, models.ElementError{
					Index:  idx,
					Reason: models.ReasonSink,
					Detail: err.Error(),
				})
			}
			metrics.EventsTotal.WithLabelValues(models.ReasonSink).Add(float64(len(accepted)))
		} else {
			result.Processed = len(accepted)
			metrics.EventsTotal.WithLabelValues("processed").Add(float64(len(accepted)))
		}
	}

	sort.Slice(result.Errors, func(i, j int) bool {
		return result.Errors[i].Index < result.Errors[j].Index
	})

	s.deadLetter(ctx, dropped)

	s.logger.WithContext(ctx).Info("batch processed",
		slog.String("server_id", serverID),
		slog.String("format", string(format)),
		slog.Int("total", result.Total),
		slog.Int("processed", result.Processed),
		slog.Int("errors", len(result.Errors)),
	)

	return result, nil
}

// writeBatch issues the single bulk write for the accepted sub-batch.
// Once issued, the call runs to completion even if the client
// disconnects, so a write of unknown outcome is never abandoned mid
// flight; only the configured sink deadline bounds it.
func (s *Ingestor) writeBatch(ctx context.Context, events []models.CanonicalEvent) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sinkTimeout)
	defer cancel()

	start := time.Now()
	err := s.sink.WriteBatch(writeCtx, events)
	metrics.SinkDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SinkErrors.Inc()
	}
	return err
}

func (s *Ingestor) deadLetter(ctx context.Context, dropped []dlq.FailedEvent) {
	if s.dlq == nil {
		return
	}
	for _, failed := range dropped {
		if err := s.dlq.Write(ctx, failed); err != nil {
			s.logger.WithContext(ctx).Warn("dlq write failed",
				slog.Int("index", failed.Index),
				slog.String("error", err.Error()),
			)
			continue
		}
		metrics.DLQWrites.Inc()
	}
}
