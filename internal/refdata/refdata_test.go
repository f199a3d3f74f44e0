package refdata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleJSON = `{
  "traders": [{"trader_id": "T1", "name": "Alice", "mpid": "MPID1", "crd": "CRD1", "account_type": "PROP"}],
  "strategies": [{"code": "S1", "name": "Momentum", "type": "SYSTEMATIC"}],
  "securities": [{"symbol": "AAPL", "cusip": "037833100", "sedol": "2046251", "isin": "US0378331005", "name": "Apple Inc"}],
  "mics": {"NASDAQ": "XNAS"}
}`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "refdata.json")
	if err := os.WriteFile(path, []byte(sampleJSON), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return path
}

func TestFileSourceLoad(t *testing.T) {
	path := writeSample(t)
	src := FileSource{Path: path}
	snap, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Traders["T1"].Name != "Alice" {
		t.Fatalf("expected trader T1 Alice, got %+v", snap.Traders["T1"])
	}
	if snap.MICs["NASDAQ"] != "XNAS" {
		t.Fatalf("expected MIC XNAS, got %q", snap.MICs["NASDAQ"])
	}
}

func TestStoreLoadAndLookup(t *testing.T) {
	path := writeSample(t)
	store := NewStore(FileSource{Path: path}, nil)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	trader, ok := store.Trader("T1")
	if !ok || trader.Name != "Alice" {
		t.Fatalf("expected trader T1 found with name Alice, got %+v, ok=%v", trader, ok)
	}
	if _, ok := store.Trader("NOPE"); ok {
		t.Fatal("expected lookup miss for unknown trader id")
	}
}

type failingSource struct{ err error }

func (f failingSource) Load(ctx context.Context) (*Snapshot, error) { return nil, f.err }

func TestStoreRunRetainsSnapshotOnRefreshFailure(t *testing.T) {
	path := writeSample(t)
	store := NewStore(FileSource{Path: path}, nil)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	before := store.Snapshot()

	store.source = failingSource{err: errors.New("unreachable")}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	store.Run(ctx, 5*time.Millisecond)

	after := store.Snapshot()
	if after != before {
		t.Fatal("expected snapshot to remain unchanged after refresh failures")
	}
}
