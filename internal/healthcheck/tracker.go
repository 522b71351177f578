package healthcheck

import (
	"sync"
	"time"
)

// Snapshot describes the latest check cycle.
type Snapshot struct {
	LastCycleTime   *time.Time `json:"last_cycle_time"`
	CycleDurationMS int64      `json:"cycle_duration_ms"`
	PowerStatus     string     `json:"power_status"`
}

// Tracker records check cycle timing for health endpoints.
type Tracker struct {
	mu            sync.RWMutex
	lastCycle     time.Time
	cycleDuration time.Duration
	powerStatus   string
	ready         bool
}

// NewTracker constructs a new Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordCycle updates cycle timing, the observed power status and readiness.
func (t *Tracker) RecordCycle(duration time.Duration, powerStatus string) {
	if t == nil {
		return
	}
	now := time.Now().UTC()
	t.mu.Lock()
	t.lastCycle = now
	t.cycleDuration = duration
	t.powerStatus = powerStatus
	t.ready = true
	t.mu.Unlock()
}

// Snapshot returns the current tracker snapshot.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var last *time.Time
	if !t.lastCycle.IsZero() {
		value := t.lastCycle
		last = &value
	}
	return Snapshot{
		LastCycleTime:   last,
		CycleDurationMS: int64(t.cycleDuration / time.Millisecond),
		PowerStatus:     t.powerStatus,
	}
}

// Ready reports whether at least one check cycle has completed.
func (t *Tracker) Ready() bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ready
}

// Healthy reports whether the last cycle completed within 2x the check interval.
func (t *Tracker) Healthy(now time.Time, checkInterval time.Duration) bool {
	if t == nil {
		return false
	}
	if checkInterval <= 0 {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lastCycle.IsZero() {
		return false
	}
	return now.Sub(t.lastCycle) <= 2*checkInterval
}
