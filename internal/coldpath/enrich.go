// Package coldpath implements the regulatory (cold-path) consumer: it
// enriches every trade from reference data, buffers the result, and
// persists it idempotently and durably in batches.
package coldpath

import (
	"time"

	"tradecore/internal/model"
	"tradecore/internal/refdata"
	"tradecore/pkg/metrics"
)

// Enrich resolves trader, strategy, security, and exchange reference data
// for t, using ref as of the call. AccountType is taken from the trader
// record; t.Account itself is not looked up. A missed lookup leaves
// the corresponding fields at their zero value and counts against
// metrics.EnrichmentMisses; it never fails the enrichment as a whole,
// since exec_id uniqueness is unaffected by a missing reference field.
func Enrich(ref *refdata.Store, reg *metrics.Registry, t *model.TradeEnvelope) model.EnrichedTrade {
	out := model.EnrichedTrade{TradeEnvelope: *t, EnrichmentTS: time.Now().UTC()}

	if trader, ok := ref.Trader(t.TraderID); ok {
		out.TraderName = trader.Name
		out.TraderMPID = trader.MPID
		out.TraderCRD = trader.CRD
		out.AccountType = trader.AccountType
	} else {
		miss(reg, "trader")
	}

	if strategy, ok := ref.Strategy(t.StrategyCode); ok {
		out.StrategyCode = strategy.Code
		out.StrategyName = strategy.Name
		out.StrategyType = strategy.Type
	} else {
		miss(reg, "strategy")
	}

	if security, ok := ref.Security(t.Symbol); ok {
		out.CUSIP = security.CUSIP
		out.SEDOL = security.SEDOL
		out.ISIN = security.ISIN
		out.SecurityName = security.Name
	} else {
		miss(reg, "security")
	}

	if mic, ok := ref.MIC(t.Exchange); ok {
		out.MIC = mic
	} else {
		miss(reg, "exchange")
	}

	return out
}

func miss(reg *metrics.Registry, table string) {
	if reg != nil {
		reg.EnrichmentMisses.WithLabelValues(table).Inc()
	}
}
