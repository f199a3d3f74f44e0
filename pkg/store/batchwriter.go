package store

import (
	"sync"
	"sync/atomic"
	"time"

	"tradecore/internal/model"
)

// Inserter is the subset of Store the batch writer needs, so tests can
// substitute a fake that records calls instead of hitting SQLite.
type Inserter interface {
	InsertBatch(trades []model.EnrichedTrade) (int, error)
}

// BatchWriterMetrics reports cumulative batch writer activity.
type BatchWriterMetrics struct {
	TotalRows     uint64
	TotalBatches  uint64
	TotalErrors   uint64
	LastBatchSize int
	LastFlushTime time.Time
}

// FailureHook is invoked when a flush fails, so the caller can route the
// batch's trades to the DLQ without this package depending on that one.
type FailureHook func(trades []model.EnrichedTrade, err error)

// BatchWriter buffers enriched trades and flushes them to the store when
// either the buffer reaches maxSize or maxAge has elapsed since the first
// buffered row, whichever comes first.
type BatchWriter struct {
	store   Inserter
	maxSize int
	maxAge  time.Duration
	onFail  FailureHook

	mu        sync.Mutex
	buffer    []model.EnrichedTrade
	oldestAt  time.Time
	done      chan struct{}
	wg        sync.WaitGroup
	metrics   BatchWriterMetrics
}

// NewBatchWriter constructs a BatchWriter and starts its background
// age-based flush loop.
func NewBatchWriter(s Inserter, maxSize int, maxAge time.Duration, onFail FailureHook) *BatchWriter {
	if maxSize <= 0 {
		maxSize = 5000
	}
	if maxAge <= 0 {
		maxAge = 5 * time.Second
	}
	bw := &BatchWriter{
		store:   s,
		maxSize: maxSize,
		maxAge:  maxAge,
		onFail:  onFail,
		buffer:  make([]model.EnrichedTrade, 0, maxSize),
		done:    make(chan struct{}),
	}
	bw.wg.Add(1)
	go bw.backgroundFlush()
	return bw
}

// Add appends a trade to the buffer, flushing immediately if the buffer has
// reached maxSize.
func (bw *BatchWriter) Add(t model.EnrichedTrade) {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.oldestAt = time.Now()
	}
	bw.buffer = append(bw.buffer, t)
	shouldFlush := len(bw.buffer) >= bw.maxSize
	bw.mu.Unlock()

	if shouldFlush {
		bw.Flush()
	}
}

// Flush writes all buffered trades now, regardless of size or age.
func (bw *BatchWriter) Flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	batch := bw.buffer
	bw.buffer = make([]model.EnrichedTrade, 0, bw.maxSize)
	bw.mu.Unlock()

	atomic.AddUint64(&bw.metrics.TotalBatches, 1)
	atomic.AddUint64(&bw.metrics.TotalRows, uint64(len(batch)))
	bw.metrics.LastBatchSize = len(batch)
	bw.metrics.LastFlushTime = time.Now()

	if _, err := bw.store.InsertBatch(batch); err != nil {
		atomic.AddUint64(&bw.metrics.TotalErrors, 1)
		if bw.onFail != nil {
			bw.onFail(batch, err)
		}
	}
}

func (bw *BatchWriter) backgroundFlush() {
	defer bw.wg.Done()
	ticker := time.NewTicker(bw.maxAge / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			bw.mu.Lock()
			age := time.Since(bw.oldestAt)
			hasData := len(bw.buffer) > 0
			bw.mu.Unlock()
			if hasData && age >= bw.maxAge {
				bw.Flush()
			}
		case <-bw.done:
			bw.Flush()
			return
		}
	}
}

// Pending returns the number of buffered, unflushed trades.
func (bw *BatchWriter) Pending() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Metrics returns a snapshot of cumulative batch writer activity.
func (bw *BatchWriter) Metrics() BatchWriterMetrics {
	return BatchWriterMetrics{
		TotalRows:     atomic.LoadUint64(&bw.metrics.TotalRows),
		TotalBatches:  atomic.LoadUint64(&bw.metrics.TotalBatches),
		TotalErrors:   atomic.LoadUint64(&bw.metrics.TotalErrors),
		LastBatchSize: bw.metrics.LastBatchSize,
		LastFlushTime: bw.metrics.LastFlushTime,
	}
}

// Close flushes any remaining buffered trades and stops the background
// flush loop.
func (bw *BatchWriter) Close() {
	close(bw.done)
	bw.wg.Wait()
}
