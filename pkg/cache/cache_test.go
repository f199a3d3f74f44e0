package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"tradecore/internal/model"
)

// fakeRedis is a minimal in-memory stand-in for the commander interface,
// enough to exercise MarkPriceWaterfall and PutPosition without a live
// Redis instance.
type fakeRedis struct {
	hashes    map[string]map[string]string
	scalars   map[string]string
	published map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		hashes:    map[string]map[string]string{},
		scalars:   map[string]string{},
		published: map[string]string{},
	}
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func (f *fakeRedis) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	h, ok := f.hashes[key]
	if !ok {
		h = map[string]string{}
		f.hashes[key] = h
	}
	if len(values) == 1 {
		if m, ok := values[0].(map[string]any); ok {
			for field, v := range m {
				h[field] = toStr(v)
			}
			cmd := redis.NewIntCmd(ctx)
			cmd.SetVal(int64(len(m)))
			return cmd
		}
	}
	for i := 0; i+1 < len(values); i += 2 {
		field := values[i].(string)
		h[field] = toStr(values[i+1])
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(values) / 2))
	return cmd
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	v, ok := f.scalars[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.published[channel] = toStr(message)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func toStr(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return itoa(t)
	case int:
		return itoa(int64(t))
	default:
		return ""
	}
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestMarkPriceWaterfallPrefersOfficial(t *testing.T) {
	fr := newFakeRedis()
	fr.scalars["price:close:AAPL"] = "19000000000"
	fr.scalars["price:ltp:AAPL"] = "19100000000"
	c := newWithCommander(fr)

	price, source, err := c.MarkPriceWaterfall(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("MarkPriceWaterfall: %v", err)
	}
	if source != model.MarkOfficial || price != 19000000000 {
		t.Fatalf("got (%v, %v), want (19000000000, OFFICIAL)", price, source)
	}
}

func TestMarkPriceWaterfallFallsBackToStale(t *testing.T) {
	fr := newFakeRedis()
	fr.scalars["price:stale:MSFT"] = "1000"
	c := newWithCommander(fr)

	price, source, err := c.MarkPriceWaterfall(context.Background(), "MSFT")
	if err != nil {
		t.Fatalf("MarkPriceWaterfall: %v", err)
	}
	if source != model.MarkStale || price != 1000 {
		t.Fatalf("got (%v, %v), want (1000, STALE)", price, source)
	}
}

func TestMarkPriceWaterfallNoDataReturnsZero(t *testing.T) {
	fr := newFakeRedis()
	c := newWithCommander(fr)

	price, source, err := c.MarkPriceWaterfall(context.Background(), "GOOG")
	if err != nil {
		t.Fatalf("MarkPriceWaterfall: %v", err)
	}
	if price != 0 || source != model.MarkStale {
		t.Fatalf("got (%v, %v), want (0, STALE)", price, source)
	}
}

func TestPutPositionWritesHash(t *testing.T) {
	fr := newFakeRedis()
	c := newWithCommander(fr)

	snap := model.PositionSnapshot{
		Position: model.Position{
			TraderID: "T1", Symbol: "AAPL", Quantity: 100,
			TotalBuyCostMantissa: 19000000000 * 100, TotalBuyQty: 100,
			RealizedPnLMantissa: 500,
			TradeCount:          3,
			LastUpdateTS:        time.Unix(0, 0),
		},
		MarkPriceMantissa:    19050000000,
		MarkSource:           model.MarkLTP,
		UnrealizedPnLMantissa: 250,
	}
	if err := c.PutPosition(context.Background(), snap); err != nil {
		t.Fatalf("PutPosition: %v", err)
	}
	h := fr.hashes[positionsKey("T1")]
	if h["AAPL"] != "100" {
		t.Fatalf("expected AAPL quantity 100, got %q", h["AAPL"])
	}
	if h["AAPL:pnl"] != "750" {
		t.Fatalf("expected AAPL:pnl 750, got %q", h["AAPL:pnl"])
	}
	if h["AAPL:mark"] != "19050000000" {
		t.Fatalf("expected AAPL:mark 19050000000, got %q", h["AAPL:mark"])
	}
	if h["AAPL:source"] != "LTP" {
		t.Fatalf("expected AAPL:source LTP, got %q", h["AAPL:source"])
	}
	if h["AAPL:trades"] != "3" {
		t.Fatalf("expected AAPL:trades 3, got %q", h["AAPL:trades"])
	}
}
