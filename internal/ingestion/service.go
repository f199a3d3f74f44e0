// Package ingestion implements the validate -> archive -> encode -> publish
// pipeline that turns a parsed trade record into a durable, partitioned
// event on the trades log.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"tradecore/internal/codec"
	"tradecore/internal/dlq"
	"tradecore/internal/errtag"
	"tradecore/internal/model"
	"tradecore/pkg/archive"
	"tradecore/pkg/circuitbreaker"
	"tradecore/pkg/metrics"
)

// Publisher is the subset of pkg/eventlog.Producer this service depends on.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Service runs the ingestion pipeline for one trade at a time. It is safe
// for concurrent use by multiple caller goroutines.
type Service struct {
	archiveStore   archive.Store
	archiveBreaker *circuitbreaker.Breaker
	publisher      Publisher
	dlqWriter      *dlq.Writer
	metrics        *metrics.Registry
	now            func() time.Time
}

// Config wires a Service's collaborators.
type Config struct {
	Archive        archive.Store
	ArchiveBreaker *circuitbreaker.Breaker
	Publisher      Publisher
	DLQ            *dlq.Writer
	Metrics        *metrics.Registry
}

// New constructs a Service. If cfg.ArchiveBreaker is nil, a default
// HighAvailability breaker is created.
func New(cfg Config) *Service {
	breaker := cfg.ArchiveBreaker
	if breaker == nil {
		var listener circuitbreaker.Listener
		if cfg.Metrics != nil {
			listener = cfg.Metrics.BreakerListener()
		}
		breaker = circuitbreaker.New(circuitbreaker.HighAvailability("archive"), listener)
	}
	return &Service{
		archiveStore:   cfg.Archive,
		archiveBreaker: breaker,
		publisher:      cfg.Publisher,
		dlqWriter:      cfg.DLQ,
		metrics:        cfg.Metrics,
		now:            time.Now,
	}
}

// Ingest runs one trade through validate -> archive -> encode -> publish.
// A validation failure or a publish failure after this call's own retries
// routes the message to the DLQ and returns nil: per spec, a single
// poisoned message must never stall the caller's loop.
func (s *Service) Ingest(ctx context.Context, t *model.TradeEnvelope) error {
	if err := Validate(t, s.now()); err != nil {
		s.countRejected(errtag.Classify(err))
		s.sendDLQ(ctx, t, err)
		return nil
	}

	s.archiveRawBytes(ctx, t)

	encoded, err := codec.EncodeTrade(t)
	if err != nil {
		wrapped := errtag.Tag(errtag.Internal, fmt.Errorf("ingestion: encode: %w", err))
		s.sendDLQ(ctx, t, wrapped)
		return nil
	}

	start := s.now()
	if err := s.publisher.Publish(ctx, t.TraderID, encoded); err != nil {
		wrapped := errtag.Tag(errtag.DownstreamPermanent, fmt.Errorf("ingestion: publish: %w", err))
		s.sendDLQ(ctx, t, wrapped)
		return nil
	}
	if s.metrics != nil {
		s.metrics.PublishLatency.Observe(s.now().Sub(start).Seconds())
		s.metrics.TradesIngested.WithLabelValues(t.Exchange).Inc()
	}
	return nil
}

// archiveRawBytes writes the raw payload to the archive store, wrapped in
// the HighAvailability circuit breaker. A failure here is swallowed: the
// archive is a compliance aid, not the record of truth, so ingestion
// proceeds regardless.
func (s *Service) archiveRawBytes(ctx context.Context, t *model.TradeEnvelope) {
	if s.archiveStore == nil {
		return
	}
	key := archive.KeyFor(t.ExecTS)
	err := s.archiveBreaker.Execute(ctx, func(ctx context.Context) error {
		return s.archiveStore.Put(ctx, key, t.RawBytes)
	})
	outcome := "ok"
	if err != nil {
		outcome = "skipped"
	}
	if s.metrics != nil {
		s.metrics.ArchiveWrites.WithLabelValues(outcome).Inc()
	}
}

// sendDLQ routes t's raw bytes to the DLQ keyed by t.TraderID, the same key
// the trade would have been published under, so a given trader's failures
// stay in one DLQ partition.
func (s *Service) sendDLQ(ctx context.Context, t *model.TradeEnvelope, cause error) {
	if s.dlqWriter == nil {
		return
	}
	s.dlqWriter.Send(ctx, "trades.raw", 0, 0, []byte(t.TraderID), t.RawBytes, cause, 0, map[string]string{"exec_id": t.ExecID})
}

func (s *Service) countRejected(kind errtag.Kind) {
	if s.metrics == nil {
		return
	}
	s.metrics.TradesRejected.WithLabelValues(string(kind)).Inc()
}
