// Package circuitbreaker implements a CLOSED/OPEN/HALF_OPEN circuit
// breaker guarding calls to an external collaborator (cache, store,
// archive). State transitions are driven purely by call outcomes and
// elapsed time, in the spirit of the failure-window bookkeeping used
// for gateway connections elsewhere in this codebase's lineage.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is one of the three breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrOpen is returned by Execute when the breaker is OPEN and the open
// duration has not yet elapsed.
var ErrOpen = errors.New("circuitbreaker: circuit open")

// Config parameterizes a breaker instance.
type Config struct {
	Name                 string
	FailureThreshold     int           // consecutive/windowed failures that trip the breaker
	FailureWindow        time.Duration // window over which failures are counted
	OpenDuration         time.Duration // time spent OPEN before probing HALF_OPEN
	SuccessThresholdHalf int           // consecutive HALF_OPEN successes required to close

	// ExceptionTypes, if non-empty, restricts which error kinds count as
	// breaker failures: an error whose Classify result isn't in this list
	// is still returned to the caller but never recorded against the
	// breaker. Empty means every non-nil error counts. Classify is
	// required whenever ExceptionTypes is non-empty.
	ExceptionTypes []string
	Classify       func(error) string
}

// HighAvailability is tuned for collaborators that must trip fast and
// recover fast, such as the ingestion service's archive writes.
func HighAvailability(name string) Config {
	return Config{
		Name:                 name,
		FailureThreshold:     3,
		FailureWindow:        30 * time.Second,
		OpenDuration:         15 * time.Second,
		SuccessThresholdHalf: 1,
	}
}

// ExternalService is tuned for third-party collaborators with looser
// latency/availability guarantees, such as reference-data lookups.
func ExternalService(name string) Config {
	return Config{
		Name:                 name,
		FailureThreshold:     5,
		FailureWindow:        120 * time.Second,
		OpenDuration:         60 * time.Second,
		SuccessThresholdHalf: 3,
	}
}

// Storage is tuned for storage backends such as the hot path's price and
// position caches, where a single outage tends to last longer and probing
// too eagerly just adds load.
func Storage(name string) Config {
	return Config{
		Name:                 name,
		FailureThreshold:     10,
		FailureWindow:        60 * time.Second,
		OpenDuration:         30 * time.Second,
		SuccessThresholdHalf: 2,
	}
}

// Listener receives state transition notifications, used to drive metrics
// and logging without coupling this package to either.
type Listener func(name string, from, to State)

// Stats is a point-in-time snapshot of a breaker's call accounting, used
// for metrics export and diagnostics.
type Stats struct {
	Total               int64
	Successful          int64
	Failed              int64
	Rejected            int64
	ConsecutiveFailures int64
	LastSuccessAt       time.Time
	LastFailureAt       time.Time
	State               State
}

// Breaker is a single named circuit breaker instance. Safe for concurrent
// use.
type Breaker struct {
	cfg      Config
	onChange Listener

	mu               sync.Mutex
	state            State
	failureTimes     []time.Time
	openedAt         time.Time
	halfOpenGood     int
	halfOpenInFlight bool

	total               int64
	successful          int64
	failed              int64
	rejected            int64
	consecutiveFailures int64
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
}

// New constructs a Breaker in the CLOSED state.
func New(cfg Config, onChange Listener) *Breaker {
	return &Breaker{cfg: cfg, state: Closed, onChange: onChange}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot of the breaker's call accounting.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Total:               b.total,
		Successful:          b.successful,
		Failed:              b.failed,
		Rejected:            b.rejected,
		ConsecutiveFailures: b.consecutiveFailures,
		LastSuccessAt:       b.lastSuccessAt,
		LastFailureAt:       b.lastFailureAt,
		State:               b.state,
	}
}

// Execute runs fn if the breaker permits a call, recording the outcome.
// It returns ErrOpen without calling fn if the breaker is OPEN and the
// open duration has not elapsed, or if a HALF_OPEN probe is already
// in flight (only one probe call is allowed at a time).
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !b.allow() {
		b.mu.Lock()
		b.rejected++
		b.mu.Unlock()
		return ErrOpen
	}
	err := fn(ctx)
	b.record(b.countsAsSuccess(err))
	return err
}

// countsAsSuccess reports whether err should count toward the breaker's
// failure accounting. A nil error always counts as success. A non-nil
// error counts as a failure unless ExceptionTypes is set and the error's
// classified kind isn't in that list, in which case it's ignored by the
// breaker even though it's still returned to the caller.
func (b *Breaker) countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	if len(b.cfg.ExceptionTypes) == 0 || b.cfg.Classify == nil {
		return false
	}
	kind := b.cfg.Classify(err)
	for _, k := range b.cfg.ExceptionTypes {
		if k == kind {
			return false
		}
	}
	return true
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.openedAt) < b.cfg.OpenDuration {
			return false
		}
		b.transition(HalfOpen)
		b.halfOpenGood = 0
		b.halfOpenInFlight = true
		return true
	case HalfOpen:
		if b.halfOpenInFlight {
			return false
		}
		b.halfOpenInFlight = true
		return true
	default:
		return false
	}
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++
	now := time.Now()
	if success {
		b.successful++
		b.consecutiveFailures = 0
		b.lastSuccessAt = now
	} else {
		b.failed++
		b.consecutiveFailures++
		b.lastFailureAt = now
	}

	switch b.state {
	case HalfOpen:
		b.halfOpenInFlight = false
		if success {
			b.halfOpenGood++
			if b.halfOpenGood >= b.cfg.SuccessThresholdHalf {
				b.transition(Closed)
				b.failureTimes = nil
			}
		} else {
			b.transition(Open)
			b.openedAt = time.Now()
		}
	case Closed:
		if success {
			return
		}
		b.failureTimes = append(b.failureTimes, now)
		b.failureTimes = pruneBefore(b.failureTimes, now.Add(-b.cfg.FailureWindow))
		if len(b.failureTimes) >= b.cfg.FailureThreshold {
			b.transition(Open)
			b.openedAt = now
		}
	}
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(times); i++ {
		if times[i].After(cutoff) {
			break
		}
	}
	return times[i:]
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onChange != nil {
		onChange, name := b.onChange, b.cfg.Name
		go onChange(name, from, to)
	}
}

// Trip forces the breaker OPEN regardless of recorded history. Used when an
// upstream probe detects an outage by means outside Execute's call path.
func (b *Breaker) Trip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(Open)
	b.openedAt = time.Now()
}

// Reset forces the breaker back to CLOSED and clears failure history.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(Closed)
	b.failureTimes = nil
	b.halfOpenGood = 0
	b.halfOpenInFlight = false
}
