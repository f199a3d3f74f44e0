// Package hotpath maintains per-(trader, symbol) position state from the
// trades log and publishes position/P&L snapshots to the shared cache.
package hotpath

import "tradecore/internal/model"

// ApplyTrade folds one trade into pos's running state using the exact
// integer arithmetic specified for the hot path. pos is mutated in place;
// callers own a single Position per (trader_id, symbol) so no locking is
// needed here.
//
// Realized P&L uses average-buy cost basis and is only recognized on a
// long position closing (prev > 0 and total_buy_qty > 0): going short from
// flat, or adding to an existing short, produces zero realized P&L, and a
// BUY that covers a short does not realize P&L either.
func ApplyTrade(pos *model.Position, t *model.TradeEnvelope) {
	cost := t.PriceMantissa.Mul(t.Quantity)

	switch t.Side {
	case model.SideBuy:
		pos.Quantity += t.Quantity
		pos.TotalBuyQty += t.Quantity
		pos.TotalBuyCostMantissa += cost
	case model.SideSell, model.SideSellShort:
		prev := pos.Quantity
		pos.Quantity -= t.Quantity
		pos.TotalSellQty += t.Quantity
		pos.TotalSellProceedsMantissa += cost
		if prev > 0 && pos.TotalBuyQty > 0 {
			avgBuy := model.AvgPrice(pos.TotalBuyCostMantissa, pos.TotalBuyQty)
			pos.RealizedPnLMantissa += (t.PriceMantissa - avgBuy).Mul(t.Quantity)
		}
	}

	pos.TradeCount++
	pos.LastUpdateTS = t.ExecTS
}

// Snapshot computes a PositionSnapshot for pos given a resolved mark price,
// per the hot-path's unrealized P&L formula: unrealized is zero unless
// there is both a non-zero quantity and a buy-side cost basis to mark
// against.
func Snapshot(pos model.Position, mark model.Mantissa, source model.MarkSource) model.PositionSnapshot {
	var unrealized model.Mantissa
	if pos.Quantity != 0 && pos.TotalBuyQty > 0 {
		avgBuy := model.AvgPrice(pos.TotalBuyCostMantissa, pos.TotalBuyQty)
		unrealized = (mark - avgBuy).Mul(pos.Quantity)
	}
	return model.PositionSnapshot{
		Position:              pos,
		MarkPriceMantissa:     mark,
		MarkSource:            source,
		UnrealizedPnLMantissa: unrealized,
	}
}
