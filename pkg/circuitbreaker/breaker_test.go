package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreakerTripsAfterThreshold(t *testing.T) {
	cfg := Config{
		Name:                 "test",
		FailureThreshold:     3,
		FailureWindow:        time.Minute,
		OpenDuration:         50 * time.Millisecond,
		SuccessThresholdHalf: 1,
	}
	b := New(cfg, nil)

	failing := func(ctx context.Context) error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		if err := b.Execute(context.Background(), failing); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	if got := b.State(); got != Open {
		t.Fatalf("expected Open after threshold failures, got %v", got)
	}

	if err := b.Execute(context.Background(), failing); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen while open, got %v", err)
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	cfg := Config{
		Name:                 "test",
		FailureThreshold:     1,
		FailureWindow:        time.Minute,
		OpenDuration:         10 * time.Millisecond,
		SuccessThresholdHalf: 2,
	}
	b := New(cfg, nil)

	_ = b.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	if got := b.State(); got != Open {
		t.Fatalf("expected Open, got %v", got)
	}

	time.Sleep(20 * time.Millisecond)

	succeed := func(ctx context.Context) error { return nil }
	if err := b.Execute(context.Background(), succeed); err != nil {
		t.Fatalf("expected probe call to succeed, got %v", err)
	}
	if got := b.State(); got != HalfOpen {
		t.Fatalf("expected HalfOpen after one success, got %v", got)
	}

	if err := b.Execute(context.Background(), succeed); err != nil {
		t.Fatalf("expected second probe call to succeed, got %v", err)
	}
	if got := b.State(); got != Closed {
		t.Fatalf("expected Closed after success threshold, got %v", got)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cfg := Config{
		Name:                 "test",
		FailureThreshold:     1,
		FailureWindow:        time.Minute,
		OpenDuration:         10 * time.Millisecond,
		SuccessThresholdHalf: 2,
	}
	b := New(cfg, nil)
	_ = b.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	_ = b.Execute(context.Background(), func(ctx context.Context) error { return errors.New("still broken") })
	if got := b.State(); got != Open {
		t.Fatalf("expected Open after HALF_OPEN probe failure, got %v", got)
	}
}

func TestTripAndReset(t *testing.T) {
	b := New(HighAvailability("test"), nil)
	b.Trip()
	if got := b.State(); got != Open {
		t.Fatalf("expected Open after Trip, got %v", got)
	}
	b.Reset()
	if got := b.State(); got != Closed {
		t.Fatalf("expected Closed after Reset, got %v", got)
	}
}

func TestBreakerStatsTracksCallAccounting(t *testing.T) {
	cfg := Config{
		Name:                 "test",
		FailureThreshold:     2,
		FailureWindow:        time.Minute,
		OpenDuration:         time.Minute,
		SuccessThresholdHalf: 1,
	}
	b := New(cfg, nil)

	_ = b.Execute(context.Background(), func(ctx context.Context) error { return nil })
	_ = b.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	_ = b.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom again") })
	_ = b.Execute(context.Background(), func(ctx context.Context) error { return nil }) // rejected: breaker now OPEN

	stats := b.Stats()
	if stats.Total != 3 {
		t.Fatalf("expected 3 attempted calls counted, got %d", stats.Total)
	}
	if stats.Successful != 1 || stats.Failed != 2 {
		t.Fatalf("expected 1 successful/2 failed, got %+v", stats)
	}
	if stats.Rejected != 1 {
		t.Fatalf("expected 1 rejected call after tripping OPEN, got %d", stats.Rejected)
	}
	if stats.ConsecutiveFailures != 2 {
		t.Fatalf("expected 2 consecutive failures, got %d", stats.ConsecutiveFailures)
	}
	if stats.State != Open {
		t.Fatalf("expected OPEN in stats, got %v", stats.State)
	}
	if stats.LastFailureAt.IsZero() {
		t.Fatal("expected LastFailureAt to be set")
	}
}

func TestBreakerExceptionTypesFilterIgnoresUnlistedKinds(t *testing.T) {
	cfg := Config{
		Name:                 "test",
		FailureThreshold:     1,
		FailureWindow:        time.Minute,
		OpenDuration:         time.Minute,
		SuccessThresholdHalf: 1,
		ExceptionTypes:       []string{"DOWNSTREAM_PERMANENT"},
		Classify:             func(err error) string { return "VALIDATION" },
	}
	b := New(cfg, nil)

	err := b.Execute(context.Background(), func(ctx context.Context) error { return errors.New("bad input") })
	if err == nil {
		t.Fatal("expected the underlying error to still be returned")
	}
	if got := b.State(); got != Closed {
		t.Fatalf("expected breaker to stay CLOSED for an unlisted exception kind, got %v", got)
	}
	if stats := b.Stats(); stats.Failed != 0 {
		t.Fatalf("expected the unlisted kind not to count as a breaker failure, got %+v", stats)
	}
}
