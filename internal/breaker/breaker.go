package breaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/lumahub/luma-bridge/internal/metrics"
)

const (
	// DefaultThreshold is the number of consecutive failures before the circuit opens.
	DefaultThreshold = 3
	// DefaultCooldown is how long the circuit stays open after tripping.
	DefaultCooldown = 30 * time.Second
)

// OpenError is returned when a call is short-circuited because the
// backend's circuit is open. Callers must not contact the backend.
type OpenError struct {
	BackendID  string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit_open_retry_in_%ds", int(e.RetryAfter.Seconds()))
}

// entry tracks failure state for a single backend. Each entry has its own
// lock so unrelated backends never contend.
type entry struct {
	mu           sync.Mutex
	failureCount int
	openUntil    time.Time
	threshold    int
	cooldown     time.Duration
}

// Breaker is a per-backend failure-tracking guard. There is no half-open
// state: once the cooldown expires the next call goes through and its
// outcome decides what happens next.
type Breaker struct {
	mu      sync.Mutex
	entries map[string]*entry

	defaultThreshold int
	defaultCooldown  time.Duration
	now              func() time.Time
}

// New creates a Breaker with the given defaults for backends that have not
// been configured explicitly. Zero values fall back to package defaults.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Breaker{
		entries:          make(map[string]*entry),
		defaultThreshold: threshold,
		defaultCooldown:  cooldown,
		now:              time.Now,
	}
}

// Configure sets per-backend threshold and cooldown, overriding the defaults.
func (b *Breaker) Configure(backendID string, threshold int, cooldown time.Duration) {
	e := b.get(backendID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if threshold > 0 {
		e.threshold = threshold
	}
	if cooldown > 0 {
		e.cooldown = cooldown
	}
}

func (b *Breaker) get(backendID string) *entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[backendID]
	if !ok {
		e = &entry{threshold: b.defaultThreshold, cooldown: b.defaultCooldown}
		b.entries[backendID] = e
	}
	return e
}

// Allow reports whether a call to the backend may proceed. When it returns
// false the second value is how long until the circuit closes again.
func (b *Breaker) Allow(backendID string) (bool, time.Duration) {
	e := b.get(backendID)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := b.now()
	if now.Before(e.openUntil) {
		metrics.BreakerShortCircuits.WithLabelValues(backendID).Inc()
		return false, e.openUntil.Sub(now)
	}
	return true, 0
}

// RecordSuccess resets the failure count and closes the circuit.
func (b *Breaker) RecordSuccess(backendID string) {
	e := b.get(backendID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failureCount = 0
	e.openUntil = time.Time{}
}

// RecordFailure increments the failure count and opens the circuit once the
// threshold is reached.
func (b *Breaker) RecordFailure(backendID string) {
	e := b.get(backendID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failureCount++
	if e.failureCount >= e.threshold {
		e.openUntil = b.now().Add(e.cooldown)
		metrics.BreakerOpens.WithLabelValues(backendID).Inc()
	}
}

// Snapshot returns the current failure count and remaining open time for a
// backend, for status reporting.
func (b *Breaker) Snapshot(backendID string) (failures int, openFor time.Duration) {
	e := b.get(backendID)
	e.mu.Lock()
	defer e.mu.Unlock()
	failures = e.failureCount
	if remaining := e.openUntil.Sub(b.now()); remaining > 0 {
		openFor = remaining
	}
	return failures, openFor
}
