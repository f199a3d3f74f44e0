package coldpath

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tradecore/internal/codec"
	"tradecore/internal/dlq"
	"tradecore/internal/errtag"
	"tradecore/internal/model"
	"tradecore/internal/refdata"
	"tradecore/pkg/eventlog"
	"tradecore/pkg/metrics"
	"tradecore/pkg/store"
)

// Consumer is the subset of pkg/eventlog.Consumer this service depends on.
type Consumer interface {
	Poll(ctx context.Context) ([]eventlog.Record, error)
	Commit(ctx context.Context, records []eventlog.Record) error
}

// pendingRecord pairs a decoded, enriched trade with the source offset
// info needed to route it to the DLQ individually if persistence ultimately
// fails for it alone.
type pendingRecord struct {
	record  eventlog.Record
	trade   model.EnrichedTrade
}

// Service runs the cold-path consume loop: decode, enrich, buffer, and
// idempotently bulk-insert, with per-record DLQ fallback on persistent
// write failure after retry exhaustion.
type Service struct {
	consumer  Consumer
	refdata   *refdata.Store
	batch     *store.BatchWriter
	inserter  store.Inserter // unwrapped store, used directly by the split-retry path
	dlqWriter *dlq.Writer
	metrics   *metrics.Registry
	retry     store.RetryConfig
	limiter   *rate.Limiter

	commitEvery  int
	commitPeriod time.Duration

	mu      sync.Mutex
	pending map[string]pendingRecord // keyed by exec_id, for DLQ routing on flush failure
}

// ServiceConfig wires a Service's collaborators.
type ServiceConfig struct {
	Consumer     Consumer
	RefData      *refdata.Store
	Store        store.Inserter
	DLQ          *dlq.Writer
	Metrics      *metrics.Registry
	Retry        store.RetryConfig
	Limiter      *rate.Limiter
	MaxBatchSize int
	MaxBatchAge  time.Duration
	CommitEvery  int
	CommitPeriod time.Duration
}

// NewService constructs a Service. Its BatchWriter's failure hook splits a
// flush that exhausted retries into halves and retries them, so only the
// trades that still fail on their own are routed to the DLQ.
func NewService(cfg ServiceConfig) *Service {
	commitEvery := cfg.CommitEvery
	if commitEvery <= 0 {
		commitEvery = 500
	}
	commitPeriod := cfg.CommitPeriod
	if commitPeriod <= 0 {
		commitPeriod = 5 * time.Second
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = coldPathRetryConfig()
	}

	s := &Service{
		consumer:     cfg.Consumer,
		refdata:      cfg.RefData,
		inserter:     cfg.Store,
		dlqWriter:    cfg.DLQ,
		metrics:      cfg.Metrics,
		retry:        retry,
		limiter:      cfg.Limiter,
		commitEvery:  commitEvery,
		commitPeriod: commitPeriod,
		pending:      make(map[string]pendingRecord),
	}

	s.batch = store.NewBatchWriter(&retryingInserter{inner: cfg.Store, retry: retry, limiter: cfg.Limiter, onSuccess: s.forgetAll}, cfg.MaxBatchSize, cfg.MaxBatchAge, s.onFlushFailure)
	return s
}

// coldPathRetryConfig matches the spec's stated backoff: initial 1s,
// factor 2, max 30s, up to 5 attempts.
func coldPathRetryConfig() store.RetryConfig {
	return store.RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// retryingInserter wraps a store.Inserter with bounded exponential backoff
// for transient SQL errors, since retries are safe under the exec_id
// uniqueness constraint.
type retryingInserter struct {
	inner     store.Inserter
	retry     store.RetryConfig
	limiter   *rate.Limiter
	onSuccess func(trades []model.EnrichedTrade)
}

func (r *retryingInserter) InsertBatch(trades []model.EnrichedTrade) (int, error) {
	var inserted int
	err := store.WithRetry(context.Background(), r.retry, r.limiter, func() error {
		n, err := r.inner.InsertBatch(trades)
		inserted = n
		return err
	})
	if err == nil && r.onSuccess != nil {
		r.onSuccess(trades)
	}
	return inserted, err
}

// onFlushFailure is called by the BatchWriter after the whole-batch retry is
// exhausted. Rather than DLQing every trade in the batch, it bisects the
// batch and retries each half independently, recursing until either a half
// persists or it is down to a single record. Only a record that still fails
// when retried alone becomes a DLQ candidate, so one malformed row doesn't
// sacrifice the rest of a batch of up to MaxBatchSize good ones.
func (s *Service) onFlushFailure(trades []model.EnrichedTrade, err error) {
	if len(trades) == 0 {
		return
	}
	if len(trades) == 1 {
		s.dlqTrades(trades, err)
		return
	}
	mid := len(trades) / 2
	s.retrySplit(trades[:mid])
	s.retrySplit(trades[mid:])
}

// retrySplit retries inserting a sub-batch directly against the unwrapped
// store, bypassing the BatchWriter. On failure it bisects further; on
// success it marks every trade in the sub-batch as no longer pending.
func (s *Service) retrySplit(trades []model.EnrichedTrade) {
	if len(trades) == 0 {
		return
	}
	err := store.WithRetry(context.Background(), s.retry, s.limiter, func() error {
		_, err := s.inserter.InsertBatch(trades)
		return err
	})
	if err == nil {
		s.forgetAll(trades)
		return
	}
	if len(trades) == 1 {
		s.dlqTrades(trades, err)
		return
	}
	mid := len(trades) / 2
	s.retrySplit(trades[:mid])
	s.retrySplit(trades[mid:])
}

// dlqTrades routes trades (already isolated to the records that fail to
// persist even alone) to the DLQ.
func (s *Service) dlqTrades(trades []model.EnrichedTrade, err error) {
	tagged := errtag.Tag(errtag.DownstreamPermanent, fmt.Errorf("coldpath: batch insert: %w", err))

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range trades {
		pr, ok := s.pending[t.ExecID]
		delete(s.pending, t.ExecID)
		if !ok {
			continue
		}
		if s.dlqWriter != nil {
			s.dlqWriter.Send(context.Background(), pr.record.Topic, pr.record.Partition, pr.record.Offset, pr.record.Key, pr.record.Value, tagged, s.retry.MaxAttempts, map[string]string{"exec_id": t.ExecID})
		}
		if s.metrics != nil {
			s.metrics.DLQMessages.WithLabelValues("coldpath", "DOWNSTREAM").Inc()
		}
	}
}

func (s *Service) forgetAll(trades []model.EnrichedTrade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range trades {
		delete(s.pending, t.ExecID)
	}
}

// Run polls the consumer, decodes and enriches each record, and buffers it
// for batched persistence. Offsets commit every commitEvery messages or
// commitPeriod, whichever comes first; a decode failure routes the raw
// message straight to the DLQ without blocking the loop.
func (s *Service) Run(ctx context.Context) error {
	uncommitted := 0
	var committable []eventlog.Record
	lastCommit := time.Now()

	flush := func() error {
		if len(committable) == 0 {
			return nil
		}
		if err := s.consumer.Commit(ctx, committable); err != nil {
			return err
		}
		committable = nil
		uncommitted = 0
		lastCommit = time.Now()
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			s.batch.Flush()
			_ = flush()
			return ctx.Err()
		default:
		}

		records, err := s.consumer.Poll(ctx)
		if err != nil {
			return err
		}

		for _, rec := range records {
			s.process(ctx, rec)
			committable = append(committable, rec)
			uncommitted++
		}

		if uncommitted >= s.commitEvery || time.Since(lastCommit) >= s.commitPeriod {
			s.batch.Flush()
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

func (s *Service) process(ctx context.Context, rec eventlog.Record) {
	trade, err := codec.DecodeTrade(rec.Value)
	if err != nil {
		wrapped := errtag.Tag(errtag.Deserialization, fmt.Errorf("coldpath: decode: %w", err))
		s.routeDLQ(ctx, rec, wrapped)
		return
	}

	enriched := Enrich(s.refdata, s.metrics, trade)

	s.mu.Lock()
	s.pending[enriched.ExecID] = pendingRecord{record: rec, trade: enriched}
	s.mu.Unlock()

	s.batch.Add(enriched)
}

func (s *Service) routeDLQ(ctx context.Context, rec eventlog.Record, cause error) {
	if s.dlqWriter != nil {
		s.dlqWriter.Send(ctx, rec.Topic, rec.Partition, rec.Offset, rec.Key, rec.Value, cause, 0, nil)
	}
	if s.metrics != nil {
		s.metrics.DLQMessages.WithLabelValues("coldpath", string(errtag.Classify(cause))).Inc()
	}
}

// Close flushes any buffered trades and stops the batch writer's
// background flush loop.
func (s *Service) Close() {
	s.batch.Close()
}
