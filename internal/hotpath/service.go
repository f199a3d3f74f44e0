package hotpath

import (
	"context"
	"sync"
	"time"

	"tradecore/pkg/eventlog"
	"tradecore/pkg/metrics"
)

// Consumer is the subset of pkg/eventlog.Consumer this service depends on.
type Consumer interface {
	Poll(ctx context.Context) ([]eventlog.Record, error)
	Commit(ctx context.Context, records []eventlog.Record) error
}

// partitionWorker is the dedicated goroutine owning one partition's Engine.
// Records for that partition are fed through ch and processed strictly in
// arrival order; stop tears the worker down on revocation.
type partitionWorker struct {
	ch   chan eventlog.Record
	stop chan struct{}
}

// Service runs the hot-path consume loop: one Engine, and one goroutine, per
// owned partition, so a slow call against one partition's collaborators
// never blocks processing for the others. Offsets are committed from a
// single coordinating goroutine every CommitEvery messages or CommitPeriod,
// whichever comes first.
type Service struct {
	consumer      Consumer
	engineFactory func() *Engine
	metrics       *metrics.Registry
	commitEvery   int
	commitPeriod  time.Duration

	mu      sync.Mutex
	engines map[int32]*Engine
	workers map[int32]*partitionWorker
	runCtx  context.Context

	acked chan eventlog.Record
	wg    sync.WaitGroup
}

// ServiceConfig parameterizes Service.
type ServiceConfig struct {
	Consumer      Consumer
	EngineFactory func() *Engine
	Metrics       *metrics.Registry
	CommitEvery   int           // messages
	CommitPeriod  time.Duration // wall clock
}

// NewService constructs a Service with an empty per-partition engine set;
// engines are created lazily on first message for a partition and
// discarded (state dropped) on OnPartitionsRevoked.
func NewService(cfg ServiceConfig) *Service {
	commitEvery := cfg.CommitEvery
	if commitEvery <= 0 {
		commitEvery = 500
	}
	commitPeriod := cfg.CommitPeriod
	if commitPeriod <= 0 {
		commitPeriod = 5 * time.Second
	}
	return &Service{
		consumer:      cfg.Consumer,
		engineFactory: cfg.EngineFactory,
		metrics:       cfg.Metrics,
		commitEvery:   commitEvery,
		commitPeriod:  commitPeriod,
		engines:       make(map[int32]*Engine),
		workers:       make(map[int32]*partitionWorker),
		runCtx:        context.Background(),
		acked:         make(chan eventlog.Record, commitEvery*4),
	}
}

// OnPartitionsAssigned implements eventlog.RebalanceListener. State for a
// newly assigned partition starts empty; it is rebuilt purely by replaying
// the log from the last committed offset. Each newly owned partition gets
// its own Engine and its own worker goroutine.
func (s *Service) OnPartitionsAssigned(topic string, partitions []int32) {
	s.mu.Lock()
	for _, p := range partitions {
		if _, ok := s.engines[p]; !ok {
			s.engines[p] = s.engineFactory()
		}
		if _, ok := s.workers[p]; !ok {
			w := &partitionWorker{
				ch:   make(chan eventlog.Record, s.commitEvery),
				stop: make(chan struct{}),
			}
			s.workers[p] = w
			s.wg.Add(1)
			go s.runPartitionWorker(p, w)
		}
	}
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.RebalanceEvents.WithLabelValues("assigned").Add(float64(len(partitions)))
	}
}

// OnPartitionsRevoked implements eventlog.RebalanceListener. In-memory
// state for revoked partitions is dropped; it is never migrated, since the
// cache is a projection and replay reconstructs state on reassignment. Each
// revoked partition's worker goroutine is torn down.
func (s *Service) OnPartitionsRevoked(topic string, partitions []int32) {
	s.mu.Lock()
	for _, p := range partitions {
		if w, ok := s.workers[p]; ok {
			close(w.stop)
			delete(s.workers, p)
		}
		delete(s.engines, p)
	}
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.RebalanceEvents.WithLabelValues("revoked").Add(float64(len(partitions)))
	}
}

// SetConsumer wires the consumer after construction, needed because Service
// itself is the RebalanceListener passed to eventlog.NewConsumer, which
// must exist before the Consumer it returns can be assigned back here.
func (s *Service) SetConsumer(c Consumer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumer = c
}

func (s *Service) engineFor(partition int32) *Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.engines[partition]
	if !ok {
		e = s.engineFactory()
		s.engines[partition] = e
	}
	return e
}

func (s *Service) currentCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runCtx
}

// runPartitionWorker is the one-goroutine-per-owned-partition loop: it
// drains ch strictly in order, so per-partition ordering is preserved even
// though different partitions' workers run concurrently.
func (s *Service) runPartitionWorker(partition int32, w *partitionWorker) {
	defer s.wg.Done()
	for {
		select {
		case rec := <-w.ch:
			engine := s.engineFor(partition)
			_ = engine.ProcessRaw(s.currentCtx(), rec.Topic, rec.Partition, rec.Offset, rec.Key, rec.Value)
			select {
			case s.acked <- rec:
			case <-w.stop:
				return
			}
		case <-w.stop:
			return
		}
	}
}

// dispatch hands rec to its partition's worker, creating the worker (and
// its Engine) lazily if this is the first record seen for that partition,
// which covers consumers that don't drive rebalance callbacks explicitly.
func (s *Service) dispatch(rec eventlog.Record) {
	s.mu.Lock()
	if _, ok := s.engines[rec.Partition]; !ok {
		s.engines[rec.Partition] = s.engineFactory()
	}
	w, ok := s.workers[rec.Partition]
	if !ok {
		w = &partitionWorker{
			ch:   make(chan eventlog.Record, s.commitEvery),
			stop: make(chan struct{}),
		}
		s.workers[rec.Partition] = w
		s.wg.Add(1)
		go s.runPartitionWorker(rec.Partition, w)
	}
	s.mu.Unlock()

	select {
	case w.ch <- rec:
	case <-w.stop:
	}
}

// Run polls the consumer and fans each record out to its partition's
// worker goroutine, committing offsets every commitEvery processed messages
// or commitPeriod, whichever comes first. It returns when ctx is done or
// Poll returns a fatal error.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	polled := make(chan []eventlog.Record)
	pollErr := make(chan error, 1)
	go func() {
		for {
			records, err := s.consumer.Poll(ctx)
			if err != nil {
				pollErr <- err
				return
			}
			select {
			case polled <- records:
			case <-ctx.Done():
				return
			}
		}
	}()

	uncommitted := 0
	var pending []eventlog.Record
	ticker := time.NewTicker(s.commitPeriod)
	defer ticker.Stop()

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := s.consumer.Commit(ctx, pending); err != nil {
			return err
		}
		pending = nil
		uncommitted = 0
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			_ = flush()
			return ctx.Err()

		case err := <-pollErr:
			_ = flush()
			return err

		case records := <-polled:
			for _, rec := range records {
				s.dispatch(rec)
			}

		case rec := <-s.acked:
			pending = append(pending, rec)
			uncommitted++
			if uncommitted >= s.commitEvery {
				if err := flush(); err != nil {
					return err
				}
			}

		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}
		}
	}
}
