// Package store persists enriched trades to a relational store for
// regulatory retention, keyed idempotently on exec_id so at-least-once
// redelivery from the trades log never produces duplicate rows.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"tradecore/internal/model"
)

// Store wraps the SQL handle for the enriched-trades table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates (if needed) and opens the SQLite database at path, applying
// the schema migration. SQLite accepts only a single writer at a time, so
// the pool is capped to one open connection, matching the store's own
// single-writer discipline.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: database path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS enriched_trades (
	trade_id            INTEGER PRIMARY KEY AUTOINCREMENT,
	exec_id             TEXT NOT NULL UNIQUE,
	symbol              TEXT NOT NULL,
	quantity            INTEGER NOT NULL,
	price_mantissa      INTEGER NOT NULL,
	side                TEXT NOT NULL,
	exec_ts             INTEGER NOT NULL,
	order_id            TEXT NOT NULL,
	client_order_id     TEXT NOT NULL,
	trader_id           TEXT NOT NULL,
	account             TEXT NOT NULL,
	exchange            TEXT NOT NULL,
	gateway_id          TEXT NOT NULL,
	receive_ts          INTEGER NOT NULL,
	trader_name         TEXT NOT NULL,
	trader_mpid         TEXT NOT NULL,
	trader_crd          TEXT NOT NULL,
	account_type        TEXT NOT NULL,
	strategy_code       TEXT NOT NULL,
	strategy_name       TEXT NOT NULL,
	strategy_type       TEXT NOT NULL,
	cusip               TEXT NOT NULL,
	sedol               TEXT NOT NULL,
	isin                TEXT NOT NULL,
	security_name       TEXT NOT NULL,
	mic                 TEXT NOT NULL,
	enrichment_ts       INTEGER NOT NULL,
	created_at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_enriched_trades_trader_id ON enriched_trades(trader_id);
CREATE INDEX IF NOT EXISTS idx_enriched_trades_exec_ts ON enriched_trades(exec_ts);
CREATE INDEX IF NOT EXISTS idx_enriched_trades_symbol ON enriched_trades(symbol);
CREATE INDEX IF NOT EXISTS idx_enriched_trades_order_id ON enriched_trades(order_id);
CREATE INDEX IF NOT EXISTS idx_enriched_trades_created_at ON enriched_trades(created_at);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Close releases the underlying DB handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InsertBatch idempotently inserts trades, ignoring any row whose exec_id
// already exists. The whole batch commits atomically or not at all.
func (s *Store) InsertBatch(trades []model.EnrichedTrade) (inserted int, err error) {
	if len(trades) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	const stmt = `
INSERT OR IGNORE INTO enriched_trades (
	exec_id, symbol, quantity, price_mantissa, side, exec_ts, order_id,
	client_order_id, trader_id, account, exchange, gateway_id, receive_ts,
	trader_name, trader_mpid, trader_crd, account_type, strategy_code,
	strategy_name, strategy_type, cusip, sedol, isin, security_name, mic,
	enrichment_ts, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`
	prepared, err := tx.Prepare(stmt)
	if err != nil {
		return 0, fmt.Errorf("store: prepare insert: %w", err)
	}
	defer prepared.Close()

	createdAt := s.now().UnixNano()
	for _, t := range trades {
		res, execErr := prepared.Exec(
			t.ExecID, t.Symbol, t.Quantity, int64(t.PriceMantissa), string(t.Side),
			t.ExecTS.UnixNano(), t.OrderID, t.ClientOrderID, t.TraderID, t.Account,
			t.Exchange, t.GatewayID, t.ReceiveTS.UnixNano(),
			t.TraderName, t.TraderMPID, t.TraderCRD, t.AccountType,
			t.StrategyCode, t.StrategyName, t.StrategyType,
			t.CUSIP, t.SEDOL, t.ISIN, t.SecurityName, t.MIC,
			t.EnrichmentTS.UnixNano(), createdAt,
		)
		if execErr != nil {
			err = fmt.Errorf("store: insert %s: %w", t.ExecID, execErr)
			return 0, err
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("store: commit: %w", err)
		return 0, err
	}
	return inserted, nil
}

// CountByTrader returns the number of persisted rows for a trader, used by
// tests to assert idempotent-insert behavior end to end.
func (s *Store) CountByTrader(traderID string) (int, error) {
	row := s.db.QueryRow(`SELECT COUNT(*) FROM enriched_trades WHERE trader_id = ?`, traderID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count by trader: %w", err)
	}
	return n, nil
}

// CreatedAtByExecID returns the insertion timestamp recorded for exec_id,
// used by tests to assert created_at tracks log offset order.
func (s *Store) CreatedAtByExecID(execID string) (time.Time, error) {
	row := s.db.QueryRow(`SELECT created_at FROM enriched_trades WHERE exec_id = ?`, execID)
	var nano int64
	if err := row.Scan(&nano); err != nil {
		return time.Time{}, fmt.Errorf("store: created_at by exec_id: %w", err)
	}
	return time.Unix(0, nano).UTC(), nil
}
