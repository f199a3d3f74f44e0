package hotpath

import (
	"context"
	"fmt"
	"sync"

	"tradecore/internal/codec"
	"tradecore/internal/dlq"
	"tradecore/internal/errtag"
	"tradecore/internal/model"
	"tradecore/pkg/circuitbreaker"
	"tradecore/pkg/metrics"
)

// PriceReader resolves the mark-price waterfall for a symbol.
type PriceReader interface {
	MarkPriceWaterfall(ctx context.Context, symbol string) (model.Mantissa, model.MarkSource, error)
}

// SnapshotPublisher writes a position snapshot to the shared cache.
type SnapshotPublisher interface {
	PutPosition(ctx context.Context, snap model.PositionSnapshot) error
	PublishPositionUpdate(ctx context.Context, traderID, symbol string) error
}

// Engine owns one partition's worth of positions and applies trades
// serially against them. It is NOT safe for concurrent calls to Process:
// the caller (the partition-owning consumer loop) must serialize calls.
type Engine struct {
	mu         sync.RWMutex
	positions  map[model.PositionKey]*model.Position
	prices     PriceReader
	priceBreaker *circuitbreaker.Breaker
	cache      SnapshotPublisher
	cacheBreaker *circuitbreaker.Breaker
	dlqWriter  *dlq.Writer
	metrics    *metrics.Registry
}

// Config wires an Engine's collaborators.
type Config struct {
	Prices       PriceReader
	PriceBreaker *circuitbreaker.Breaker
	Cache        SnapshotPublisher
	CacheBreaker *circuitbreaker.Breaker
	DLQ          *dlq.Writer
	Metrics      *metrics.Registry
}

// NewEngine constructs an Engine with an empty position map, as required
// after a partition assignment: state is rebuilt purely by replaying the
// log from the last committed offset.
func NewEngine(cfg Config) *Engine {
	var listener circuitbreaker.Listener
	if cfg.Metrics != nil {
		listener = cfg.Metrics.BreakerListener()
	}
	priceBreaker := cfg.PriceBreaker
	if priceBreaker == nil {
		priceBreaker = circuitbreaker.New(circuitbreaker.Storage("price-cache"), listener)
	}
	cacheBreaker := cfg.CacheBreaker
	if cacheBreaker == nil {
		cacheBreaker = circuitbreaker.New(circuitbreaker.Storage("position-cache"), listener)
	}
	return &Engine{
		positions:    make(map[model.PositionKey]*model.Position),
		prices:       cfg.Prices,
		priceBreaker: priceBreaker,
		cache:        cfg.Cache,
		cacheBreaker: cacheBreaker,
		dlqWriter:    cfg.DLQ,
		metrics:      cfg.Metrics,
	}
}

// Reset drops all in-memory position state, used on partition revocation.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positions = make(map[model.PositionKey]*model.Position)
}

// Position returns a copy of the current position for key, if any.
func (e *Engine) Position(key model.PositionKey) (model.Position, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.positions[key]
	if !ok {
		return model.Position{}, false
	}
	return *p, true
}

// ProcessRaw decodes raw, applies it to the owning position, and publishes
// the resulting snapshot. A decode failure routes raw to the DLQ and
// returns nil: a single poisoned message never stalls the consumer loop.
func (e *Engine) ProcessRaw(ctx context.Context, sourceTopic string, partition int32, offset int64, key, raw []byte) error {
	trade, err := codec.DecodeTrade(raw)
	if err != nil {
		wrapped := errtag.Tag(errtag.Deserialization, fmt.Errorf("hotpath: decode: %w", err))
		if e.dlqWriter != nil {
			e.dlqWriter.Send(ctx, sourceTopic, partition, offset, key, raw, wrapped, 0, nil)
		}
		return nil
	}
	return e.Process(ctx, trade)
}

// Process applies trade to the owning position and publishes the snapshot.
func (e *Engine) Process(ctx context.Context, trade *model.TradeEnvelope) error {
	key := model.PositionKey{TraderID: trade.TraderID, Symbol: trade.Symbol}

	e.mu.Lock()
	pos, ok := e.positions[key]
	if !ok {
		pos = &model.Position{TraderID: trade.TraderID, Symbol: trade.Symbol}
		e.positions[key] = pos
	}
	ApplyTrade(pos, trade)
	posCopy := *pos
	e.mu.Unlock()

	mark, source, err := e.resolveMark(ctx, trade.Symbol)
	if err != nil {
		mark, source = 0, model.MarkStale
	}

	snap := Snapshot(posCopy, mark, source)
	e.publishSnapshot(ctx, snap)

	if e.metrics != nil {
		e.metrics.PositionsUpdated.WithLabelValues(trade.Symbol).Inc()
	}
	return nil
}

func (e *Engine) resolveMark(ctx context.Context, symbol string) (model.Mantissa, model.MarkSource, error) {
	if e.prices == nil {
		return 0, model.MarkStale, nil
	}
	var mark model.Mantissa
	var source model.MarkSource
	err := e.priceBreaker.Execute(ctx, func(ctx context.Context) error {
		m, s, err := e.prices.MarkPriceWaterfall(ctx, symbol)
		mark, source = m, s
		return err
	})
	return mark, source, err
}

// publishSnapshot writes the snapshot's hash fields to the cache, breaker-
// guarded, then best-effort notifies the trader's pub/sub channel. On a
// circuit-open or hash-write failure, the snapshot write is skipped:
// in-memory state remains the source of truth and the next trade for this
// key will retry. The channel publish is never escalated — it runs
// independently of the breaker and its failure never counts against it,
// since the hash write above is already the canonical state.
func (e *Engine) publishSnapshot(ctx context.Context, snap model.PositionSnapshot) {
	if e.cache == nil {
		return
	}
	err := e.cacheBreaker.Execute(ctx, func(ctx context.Context) error {
		return e.cache.PutPosition(ctx, snap)
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.CachePublishSkipped.Inc()
		}
		return
	}
	_ = e.cache.PublishPositionUpdate(ctx, snap.TraderID, snap.Symbol)
}
