// Package circuitbreaker stops calls to a failing upstream until it has
// had time to recover. After enough consecutive failures the breaker
// opens and rejects calls outright; once the open timeout passes a single
// probe is let through, and consecutive probe successes close it again.
// No external dependencies - uses only standard library.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when the half-open probe slot is taken.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config controls when the breaker opens and closes.
type Config struct {
	Name             string
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // consecutive half-open successes before closing
	OpenTimeout      time.Duration // how long the breaker stays open
	HalfOpenProbes   int           // concurrent calls allowed while half-open

	// OnStateChange, when set, is invoked on every transition.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker guards calls to a single upstream.
type CircuitBreaker struct {
	cfg Config

	mu          sync.Mutex
	state       State
	consecFails int
	consecOKs   int
	probes      int
	openedAt    time.Time
}

// New creates a closed breaker. Zero thresholds fall back to 5 failures,
// 2 successes, 30s open timeout, 1 probe.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenProbes < 1 {
		cfg.HalfOpenProbes = 1
	}
	return &CircuitBreaker{cfg: cfg}
}

// OracleBreaker guards the scoring oracle. The oracle is slow under load
// and analysis runs degrade gracefully without it, so the breaker opens
// early and stays open for a full minute.
func OracleBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(Config{
		Name:             "scoring-oracle",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      time.Minute,
		HalfOpenProbes:   1,
		OnStateChange:    onStateChange,
	})
}

// Execute runs fn if the breaker admits the call and records the outcome.
// Rejected calls return ErrCircuitOpen or ErrTooManyRequests without
// invoking fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err == nil)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.openedAt) < cb.cfg.OpenTimeout {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probes = 1
		return nil
	default: // StateHalfOpen
		if cb.probes >= cb.cfg.HalfOpenProbes {
			return ErrTooManyRequests
		}
		cb.probes++
		return nil
	}
}

func (cb *CircuitBreaker) record(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if ok {
		cb.consecFails = 0
		cb.consecOKs++
		if cb.state == StateHalfOpen && cb.consecOKs >= cb.cfg.SuccessThreshold {
			cb.transition(StateClosed)
		}
		return
	}

	cb.consecOKs = 0
	cb.consecFails++
	switch cb.state {
	case StateClosed:
		if cb.consecFails >= cb.cfg.FailureThreshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		// A failed probe reopens immediately.
		cb.transition(StateOpen)
	}
}

// transition must be called with the lock held.
func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.consecFails = 0
	cb.consecOKs = 0
	cb.probes = 0
	if to == StateOpen {
		cb.openedAt = time.Now()
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// IsOpen reports whether calls are currently rejected.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() == StateOpen
}
