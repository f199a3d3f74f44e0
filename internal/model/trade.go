// Package model holds the shared data-model primitives for the trade
// ingestion, hot-path, and cold-path services: trade envelopes, positions,
// snapshots, and dead-letter envelopes.
package model

import "time"

// Side is the execution side of a trade.
type Side string

const (
	SideBuy       Side = "BUY"
	SideSell      Side = "SELL"
	SideSellShort Side = "SELL_SHORT"
)

// Valid reports whether s is one of the three recognized sides.
func (s Side) Valid() bool {
	switch s {
	case SideBuy, SideSell, SideSellShort:
		return true
	default:
		return false
	}
}

// TradeEnvelope is the canonical record of one execution, published once to
// the trades log and never mutated afterward.
type TradeEnvelope struct {
	ExecID        string // globally unique key
	Symbol        string
	Quantity      int64 // > 0
	PriceMantissa Mantissa
	Side          Side
	ExecTS        time.Time
	OrderID       string
	ClientOrderID string
	TraderID      string
	Account       string
	Exchange      string
	GatewayID     string
	StrategyCode  string // optional; empty when the trade carries no strategy attribution
	ReceiveTS     time.Time
	RawBytes      []byte // opaque, preserved losslessly for archive/DLQ
}

// PositionKey identifies a single position by trader and symbol.
type PositionKey struct {
	TraderID string
	Symbol   string
}

// EnrichedTrade is a TradeEnvelope plus reference-data lookups resolved by
// the cold path. Any enrichment field may be its zero value if the
// corresponding reference lookup missed; exec_id uniqueness is unaffected.
type EnrichedTrade struct {
	TradeEnvelope

	TraderName   string
	TraderMPID   string
	TraderCRD    string
	AccountType  string
	StrategyCode string
	StrategyName string
	StrategyType string
	CUSIP        string
	SEDOL        string
	ISIN         string
	SecurityName string
	MIC          string
	EnrichmentTS time.Time
}

// MarkSource identifies where a position snapshot's mark price came from in
// the mark-price waterfall.
type MarkSource string

const (
	MarkOfficial MarkSource = "OFFICIAL"
	MarkLTP      MarkSource = "LTP"
	MarkMid      MarkSource = "MID"
	MarkStale    MarkSource = "STALE"
)

// Position is the mutable per-(trader, symbol) running state, owned
// exclusively by the hot-path partition-owner for that trader.
type Position struct {
	TraderID                  string
	Symbol                    string
	Quantity                  int64 // signed
	TotalBuyQty               int64
	TotalSellQty              int64
	TotalBuyCostMantissa      Mantissa
	TotalSellProceedsMantissa Mantissa
	RealizedPnLMantissa       Mantissa
	TradeCount                int64
	LastUpdateTS              time.Time
}

// Key returns the (trader_id, symbol) identity of the position.
func (p *Position) Key() PositionKey {
	return PositionKey{TraderID: p.TraderID, Symbol: p.Symbol}
}

// AvgBuyPrice returns total_buy_cost_mantissa / total_buy_qty, or zero when
// there is no buy quantity to divide by.
func (p *Position) AvgBuyPrice() Mantissa {
	return DivSafe(p.TotalBuyCostMantissa, p.TotalBuyQty)
}

// PositionSnapshot is the immutable value produced on every position
// update: the position fields plus the mark price used and the computed
// unrealized P&L.
type PositionSnapshot struct {
	Position
	MarkPriceMantissa  Mantissa
	MarkSource         MarkSource
	UnrealizedPnLMantissa Mantissa
}

// TotalPnL returns realized + unrealized P&L.
func (s PositionSnapshot) TotalPnL() Mantissa {
	return s.RealizedPnLMantissa + s.UnrealizedPnLMantissa
}
