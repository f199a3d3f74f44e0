package store

import (
	"testing"
	"time"

	"tradecore/internal/model"
)

func sampleTrade(execID, traderID string) model.EnrichedTrade {
	return model.EnrichedTrade{
		TradeEnvelope: model.TradeEnvelope{
			ExecID:        execID,
			Symbol:        "AAPL",
			Quantity:      100,
			PriceMantissa: 19000000000,
			Side:          model.SideBuy,
			ExecTS:        time.Unix(1000, 0),
			OrderID:       "O1",
			ClientOrderID: "C1",
			TraderID:      traderID,
			Account:       "ACC1",
			Exchange:      "NASDAQ",
			GatewayID:     "GW1",
			ReceiveTS:     time.Unix(1001, 0),
		},
		TraderName:   "Alice",
		EnrichmentTS: time.Unix(1002, 0),
	}
}

func TestInsertBatchIsIdempotent(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	trade := sampleTrade("E1", "T1")

	n, err := s.InsertBatch([]model.EnrichedTrade{trade})
	if err != nil {
		t.Fatalf("InsertBatch first: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row inserted, got %d", n)
	}

	n, err = s.InsertBatch([]model.EnrichedTrade{trade})
	if err != nil {
		t.Fatalf("InsertBatch duplicate: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 rows inserted on duplicate exec_id, got %d", n)
	}

	count, err := s.CountByTrader("T1")
	if err != nil {
		t.Fatalf("CountByTrader: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 persisted row, got %d", count)
	}
}

func TestInsertBatchMultipleRows(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	trades := []model.EnrichedTrade{sampleTrade("E1", "T1"), sampleTrade("E2", "T1"), sampleTrade("E3", "T2")}
	n, err := s.InsertBatch(trades)
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows inserted, got %d", n)
	}

	count, err := s.CountByTrader("T1")
	if err != nil {
		t.Fatalf("CountByTrader: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows for T1, got %d", count)
	}
}

func TestInsertBatchCreatedAtRespectsInsertOrder(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	tick := time.Unix(2000, 0)
	s.now = func() time.Time {
		t := tick
		tick = tick.Add(time.Second)
		return t
	}

	if _, err := s.InsertBatch([]model.EnrichedTrade{sampleTrade("E1", "T1")}); err != nil {
		t.Fatalf("InsertBatch E1: %v", err)
	}
	if _, err := s.InsertBatch([]model.EnrichedTrade{sampleTrade("E2", "T1")}); err != nil {
		t.Fatalf("InsertBatch E2: %v", err)
	}

	t1, err := s.CreatedAtByExecID("E1")
	if err != nil {
		t.Fatalf("CreatedAtByExecID E1: %v", err)
	}
	t2, err := s.CreatedAtByExecID("E2")
	if err != nil {
		t.Fatalf("CreatedAtByExecID E2: %v", err)
	}
	if !t2.After(t1) {
		t.Fatalf("expected E2's created_at (%v) to follow E1's (%v), matching log offset order", t2, t1)
	}
}
