package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ykhomyn/power-sentinel/internal/deviation"
	"github.com/ykhomyn/power-sentinel/internal/eventlog"
	"github.com/ykhomyn/power-sentinel/internal/metrics"
	"github.com/ykhomyn/power-sentinel/internal/schedule"
	"github.com/ykhomyn/power-sentinel/internal/state"
	"github.com/ykhomyn/power-sentinel/internal/transition"
)

// ErrInvalidKey rejects a heartbeat carrying the wrong secret key. It is the
// only error surfaced to the heartbeat caller; everything else degrades
// internally.
var ErrInvalidKey = errors.New("invalid heartbeat key")

const (
	// DefaultTimeout is how long after the last heartbeat the power is
	// considered down.
	DefaultTimeout = 180 * time.Second

	// DefaultDownBackdate places the outage start shortly after the last
	// successful ping rather than at detection time. A heuristic tuned to
	// roughly one-minute heartbeat intervals; tunable, not an invariant.
	DefaultDownBackdate = 60 * time.Second
)

// Analyzer classifies an observed transition against the schedule.
type Analyzer interface {
	Analyze(observed time.Time, up bool) deviation.Result
}

// GridProvider supplies lookahead grid snapshots for schedule hints.
type GridProvider interface {
	GridAt(t time.Time) schedule.Grid
}

// Notifier receives transition events for delivery.
type Notifier interface {
	Notify(ctx context.Context, event transition.Event) error
}

// Monitor is the availability state machine. Heartbeats and timeout checks
// run their whole read-decide-write-persist sequence under one lock, so a
// heartbeat racing a timeout check can never interleave transitions.
type Monitor struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	store    state.Store
	events   *eventlog.Log
	analyzer Analyzer
	grids    GridProvider
	notifier Notifier
	metrics  *metrics.Metrics
	timeout  time.Duration
	backdate time.Duration
	snap     state.Snapshot
}

// Option customizes monitor behavior.
type Option func(*Monitor)

// WithTimeout overrides the heartbeat timeout threshold.
func WithTimeout(timeout time.Duration) Option {
	return func(m *Monitor) {
		m.timeout = timeout
	}
}

// WithDownBackdate overrides how far after the last heartbeat the outage
// start is placed.
func WithDownBackdate(backdate time.Duration) Option {
	return func(m *Monitor) {
		m.backdate = backdate
	}
}

// WithGridProvider enables schedule hints on transition events.
func WithGridProvider(grids GridProvider) Option {
	return func(m *Monitor) {
		m.grids = grids
	}
}

// WithNotifier sets the transition event receiver.
func WithNotifier(notifier Notifier) Option {
	return func(m *Monitor) {
		m.notifier = notifier
	}
}

// WithMetrics enables metric updates on heartbeats and transitions.
func WithMetrics(m2 *metrics.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = m2
	}
}

// New loads the persisted snapshot and constructs the monitor. A snapshot
// without a secret key gets one generated and persisted immediately.
func New(ctx context.Context, logger zerolog.Logger, store state.Store, events *eventlog.Log, analyzer Analyzer, opts ...Option) (*Monitor, error) {
	m := &Monitor{
		logger:   logger,
		store:    store,
		events:   events,
		analyzer: analyzer,
		timeout:  DefaultTimeout,
		backdate: DefaultDownBackdate,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.timeout <= 0 {
		return nil, errors.New("timeout must be greater than zero")
	}

	snap, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	m.snap = snap

	if m.snap.SecretKey == "" {
		m.snap.SecretKey = state.NewSecretKey()
		if err := store.Save(ctx, m.snap); err != nil {
			logger.Error().Err(err).Msg("failed to persist generated secret key")
		}
	}
	m.publishStatus()
	return m, nil
}

// SecretKey returns the token the sensor must present with heartbeats.
func (m *Monitor) SecretKey() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.SecretKey
}

// StatusInfo is a point-in-time copy of the availability state.
type StatusInfo struct {
	Status     state.Status
	LastSeen   time.Time
	WentDownAt time.Time
	CameUpAt   time.Time
}

// Status returns the current availability state.
func (m *Monitor) Status() StatusInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return StatusInfo{
		Status:     m.snap.Status,
		LastSeen:   state.FromUnix(m.snap.LastSeen),
		WentDownAt: state.FromUnix(m.snap.WentDownAt),
		CameUpAt:   state.FromUnix(m.snap.CameUpAt),
	}
}

// RecordHeartbeat processes a sensor ping. A wrong key returns ErrInvalidKey
// with no mutation. While already up the call is a pure refresh; from down
// or unknown it transitions to up and returns the emitted event.
func (m *Monitor) RecordHeartbeat(ctx context.Context, key string, now time.Time) (*transition.Event, error) {
	m.mu.Lock()
	m.reloadLocked(ctx)

	if key != m.snap.SecretKey {
		m.mu.Unlock()
		m.metrics.IncInvalidKeys()
		return nil, ErrInvalidKey
	}

	prev := m.snap.Status
	m.snap.LastSeen = state.ToUnix(now)

	var event *transition.Event
	if prev == state.StatusDown || prev == state.StatusUnknown {
		m.snap.Status = state.StatusUp
		m.snap.CameUpAt = state.ToUnix(now)
		m.events.Append(eventlog.EventUp, now)

		evt := transition.Event{
			Type:      transition.TypeUp,
			Timestamp: now,
			Deviation: m.analyzer.Analyze(now, true),
		}
		if m.snap.WentDownAt > 0 {
			evt.PriorKnown = true
			evt.PriorDuration = now.Sub(state.FromUnix(m.snap.WentDownAt))
		}
		evt.NextChange = m.nextChangeLocked(now, true)
		event = &evt

		m.logger.Info().
			Str("previous_status", string(prev)).
			Time("at", now).
			Str("deviation", evt.Deviation.Label).
			Msg("power restored")
	}

	m.persistLocked(ctx)
	m.publishStatus()
	m.mu.Unlock()

	m.metrics.IncHeartbeats()
	m.metrics.SetLastHeartbeatTimestamp(now)
	if event != nil {
		m.metrics.IncTransitions(string(event.Type))
		m.dispatch(ctx, *event)
	}
	return event, nil
}

// CheckTimeout decides whether the heartbeat stream has gone quiet. When it
// has, the monitor transitions to down with the outage start back-dated to
// lastSeen plus the configured grace, and returns the emitted event. A
// repeat call before the next heartbeat is a no-op.
func (m *Monitor) CheckTimeout(ctx context.Context, now time.Time) *transition.Event {
	m.mu.Lock()
	m.reloadLocked(ctx)

	if m.snap.Status != state.StatusUp || now.Sub(state.FromUnix(m.snap.LastSeen)) <= m.timeout {
		m.mu.Unlock()
		return nil
	}

	downTime := state.FromUnix(m.snap.LastSeen).Add(m.backdate)
	m.snap.Status = state.StatusDown
	m.snap.WentDownAt = state.ToUnix(downTime)
	m.events.Append(eventlog.EventDown, downTime)

	evt := transition.Event{
		Type:      transition.TypeDown,
		Timestamp: downTime,
		Deviation: m.analyzer.Analyze(downTime, false),
	}
	if m.snap.CameUpAt > 0 {
		evt.PriorKnown = true
		evt.PriorDuration = downTime.Sub(state.FromUnix(m.snap.CameUpAt))
	}
	evt.NextChange = m.nextChangeLocked(downTime, false)

	m.logger.Warn().
		Time("last_seen", state.FromUnix(m.snap.LastSeen)).
		Time("down_at", downTime).
		Str("deviation", evt.Deviation.Label).
		Msg("heartbeat timeout, power considered down")

	m.persistLocked(ctx)
	m.publishStatus()
	m.mu.Unlock()

	m.metrics.IncTransitions(string(evt.Type))
	m.dispatch(ctx, evt)
	return &evt
}

// reloadLocked re-reads the persisted snapshot inside the caller's critical
// section so decisions see writes from other processes sharing the file. A
// missing or corrupt file keeps the in-memory state.
func (m *Monitor) reloadLocked(ctx context.Context) {
	loaded, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("state reload failed, keeping in-memory state")
		return
	}
	if loaded.SecretKey == "" && loaded.LastSeen == 0 {
		// Default snapshot: the file is gone or unreadable.
		return
	}
	m.snap = loaded
}

func (m *Monitor) persistLocked(ctx context.Context) {
	if err := m.store.Save(ctx, m.snap); err != nil {
		m.logger.Error().Err(err).Msg("failed to persist state, continuing with in-memory state")
	}
}

// nextChangeLocked derives the schedule's expectation for the next flip of
// the state that was just entered.
func (m *Monitor) nextChangeLocked(at time.Time, up bool) string {
	if m.grids == nil {
		return ""
	}
	grid := m.grids.GridAt(at)
	if grid.Empty() {
		return ""
	}
	scheduledOn := grid.StateAt(at) == schedule.SlotOn
	if scheduledOn == up {
		// Observation agrees with the schedule: the change comes when the
		// current scheduled block ends.
		return grid.CurrentBlockEnd(at).Label()
	}
	// Observation contradicts the schedule: the change aligns with the end
	// of the next opposite block.
	next := grid.NextBlockRange(at)
	if next.Pending {
		return "pending"
	}
	return next.End.Label()
}

func (m *Monitor) dispatch(ctx context.Context, event transition.Event) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, event); err != nil {
		m.logger.Error().Err(err).Str("type", string(event.Type)).Msg("transition notification failed")
	}
}

func (m *Monitor) publishStatus() {
	switch m.snap.Status {
	case state.StatusUp:
		m.metrics.SetPowerStatus(1)
	case state.StatusDown:
		m.metrics.SetPowerStatus(0)
	default:
		m.metrics.SetPowerStatus(-1)
	}
}
