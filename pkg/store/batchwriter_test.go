package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"tradecore/internal/model"
)

type fakeInserter struct {
	mu      sync.Mutex
	batches [][]model.EnrichedTrade
	err     error
}

func (f *fakeInserter) InsertBatch(trades []model.EnrichedTrade) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	cp := append([]model.EnrichedTrade(nil), trades...)
	f.batches = append(f.batches, cp)
	return len(trades), nil
}

func (f *fakeInserter) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func TestBatchWriterFlushesOnSize(t *testing.T) {
	fi := &fakeInserter{}
	bw := NewBatchWriter(fi, 2, time.Hour, nil)
	defer bw.Close()

	bw.Add(sampleTrade("E1", "T1"))
	bw.Add(sampleTrade("E2", "T1"))

	time.Sleep(10 * time.Millisecond)
	if fi.batchCount() != 1 {
		t.Fatalf("expected 1 flushed batch after hitting maxSize, got %d", fi.batchCount())
	}
}

func TestBatchWriterFlushesOnAge(t *testing.T) {
	fi := &fakeInserter{}
	bw := NewBatchWriter(fi, 100, 20*time.Millisecond, nil)
	defer bw.Close()

	bw.Add(sampleTrade("E1", "T1"))

	time.Sleep(60 * time.Millisecond)
	if fi.batchCount() < 1 {
		t.Fatalf("expected at least 1 age-triggered flush, got %d", fi.batchCount())
	}
}

func TestBatchWriterFailureHookInvoked(t *testing.T) {
	fi := &fakeInserter{err: errors.New("db locked")}
	var hookCalled bool
	bw := NewBatchWriter(fi, 1, time.Hour, func(trades []model.EnrichedTrade, err error) {
		hookCalled = true
	})
	defer bw.Close()

	bw.Add(sampleTrade("E1", "T1"))
	time.Sleep(10 * time.Millisecond)

	if !hookCalled {
		t.Fatal("expected failure hook to be invoked")
	}
}

func TestBatchWriterCloseFlushesRemaining(t *testing.T) {
	fi := &fakeInserter{}
	bw := NewBatchWriter(fi, 100, time.Hour, nil)
	bw.Add(sampleTrade("E1", "T1"))
	bw.Close()

	if fi.batchCount() != 1 {
		t.Fatalf("expected final flush on Close, got %d batches", fi.batchCount())
	}
}
