// Package cache exposes the position/price cache backed by Redis: one hash
// per trader holding per-symbol position fields, four scalar mark-price
// keys per symbol used by the waterfall, and a pub/sub channel per trader
// for position update notifications.
package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"tradecore/internal/model"
)

// commander is the narrow slice of redis.Cmdable this package actually
// calls, which both *redis.Client and *redis.ClusterClient satisfy
// structurally, along with any fake used in tests.
type commander interface {
	Ping(ctx context.Context) *redis.StatusCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Cache wraps a redis.Cmdable, accepting either a standalone *redis.Client
// or a *redis.ClusterClient so deployment topology is a config concern, not
// a code concern.
type Cache struct {
	client commander
}

// New constructs a Cache over client. client is typically a *redis.Client
// or *redis.ClusterClient, both of which implement redis.Cmdable and
// therefore the narrower set of commands this package uses.
func New(client redis.Cmdable) *Cache {
	return &Cache{client: client}
}

// newWithCommander is used by tests to inject a fake implementing only the
// handful of commands this package calls, without standing up the full
// redis.Cmdable surface.
func newWithCommander(client commander) *Cache {
	return &Cache{client: client}
}

// Ping probes Redis connectivity. The circuit breakers do not call it; a
// HALF_OPEN breaker probes with the next real cache call.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache: ping: %w", err)
	}
	return nil
}

func positionsKey(traderID string) string {
	return "positions:" + traderID
}

func priceKey(tier, symbol string) string {
	return fmt.Sprintf("price:%s:%s", tier, symbol)
}

func channelFor(traderID string) string {
	return "pnl:" + traderID
}

// PutPosition upserts a trader's positions hash with this symbol's fields:
// the bare symbol field carries quantity, and symbol:pnl/mark/source/trades
// carry the rest of the snapshot.
func (c *Cache) PutPosition(ctx context.Context, snap model.PositionSnapshot) error {
	key := positionsKey(snap.TraderID)
	fields := map[string]any{
		snap.Symbol:                snap.Quantity,
		snap.Symbol + ":pnl":       int64(snap.TotalPnL()),
		snap.Symbol + ":mark":      int64(snap.MarkPriceMantissa),
		snap.Symbol + ":source":    string(snap.MarkSource),
		snap.Symbol + ":trades":    snap.TradeCount,
	}
	if err := c.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("cache: hset %s: %w", key, err)
	}
	return nil
}

// PublishPositionUpdate fire-and-forgets a notification on the trader's
// channel. Failure here is never escalated: the hash write above is the
// canonical state, this is a best-effort nudge for live subscribers.
func (c *Cache) PublishPositionUpdate(ctx context.Context, traderID, symbol string) error {
	if err := c.client.Publish(ctx, channelFor(traderID), symbol).Err(); err != nil {
		return fmt.Errorf("cache: publish: %w", err)
	}
	return nil
}

// MarkPriceWaterfall resolves a mark price for symbol by reading, in order,
// the official close, last-traded price, and mid price, falling back to a
// stale cached value and finally zero if nothing is available.
func (c *Cache) MarkPriceWaterfall(ctx context.Context, symbol string) (model.Mantissa, model.MarkSource, error) {
	if v, ok, err := c.readPrice(ctx, "close", symbol); err != nil {
		return 0, "", err
	} else if ok {
		return v, model.MarkOfficial, nil
	}
	if v, ok, err := c.readPrice(ctx, "ltp", symbol); err != nil {
		return 0, "", err
	} else if ok {
		return v, model.MarkLTP, nil
	}
	if v, ok, err := c.readPrice(ctx, "mid", symbol); err != nil {
		return 0, "", err
	} else if ok {
		return v, model.MarkMid, nil
	}
	if v, ok, err := c.readPrice(ctx, "stale", symbol); err != nil {
		return 0, "", err
	} else if ok {
		return v, model.MarkStale, nil
	}
	return 0, model.MarkStale, nil
}

func (c *Cache) readPrice(ctx context.Context, tier, symbol string) (model.Mantissa, bool, error) {
	str, err := c.client.Get(ctx, priceKey(tier, symbol)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("cache: get %s: %w", priceKey(tier, symbol), err)
	}
	raw, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("cache: parse %s: %w", priceKey(tier, symbol), err)
	}
	return model.Mantissa(raw), true, nil
}
