package monitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ykhomyn/power-sentinel/internal/deviation"
	"github.com/ykhomyn/power-sentinel/internal/eventlog"
	"github.com/ykhomyn/power-sentinel/internal/schedule"
	"github.com/ykhomyn/power-sentinel/internal/state"
	"github.com/ykhomyn/power-sentinel/internal/transition"
)

type stubAnalyzer struct {
	result deviation.Result
	calls  []time.Time
}

func (a *stubAnalyzer) Analyze(observed time.Time, up bool) deviation.Result {
	a.calls = append(a.calls, observed)
	return a.result
}

type recordingNotifier struct {
	events []transition.Event
}

func (n *recordingNotifier) Notify(_ context.Context, event transition.Event) error {
	n.events = append(n.events, event)
	return nil
}

func newTestMonitor(t *testing.T, opts ...Option) (*Monitor, *eventlog.Log, *state.FileStore) {
	t.Helper()
	dir := t.TempDir()
	store := state.NewFileStore(filepath.Join(dir, "state.json"), zerolog.Nop())
	events := eventlog.Open(filepath.Join(dir, "event_log.json"), time.UTC, zerolog.Nop())

	m, err := New(context.Background(), zerolog.Nop(), store, events, &stubAnalyzer{}, opts...)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return m, events, store
}

func TestNewGeneratesAndPersistsSecretKey(t *testing.T) {
	m, _, store := newTestMonitor(t)

	key := m.SecretKey()
	if key == "" {
		t.Fatal("expected generated secret key")
	}

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if snap.SecretKey != key {
		t.Fatalf("expected key persisted, got %q vs %q", snap.SecretKey, key)
	}
	if snap.Status != state.StatusUnknown {
		t.Fatalf("expected unknown status, got %q", snap.Status)
	}
}

func TestNewKeepsExistingSecretKey(t *testing.T) {
	dir := t.TempDir()
	store := state.NewFileStore(filepath.Join(dir, "state.json"), zerolog.Nop())
	snap := state.Default()
	snap.SecretKey = "existing-key"
	if err := store.Save(context.Background(), snap); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	events := eventlog.Open(filepath.Join(dir, "event_log.json"), time.UTC, zerolog.Nop())
	m, err := New(context.Background(), zerolog.Nop(), store, events, &stubAnalyzer{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if m.SecretKey() != "existing-key" {
		t.Fatalf("expected existing key kept, got %q", m.SecretKey())
	}
}

func TestRecordHeartbeatInvalidKey(t *testing.T) {
	m, _, _ := newTestMonitor(t)

	now := time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC)
	event, err := m.RecordHeartbeat(context.Background(), "wrong-key", now)
	if err != ErrInvalidKey {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if event != nil {
		t.Fatalf("expected no event, got %+v", event)
	}

	info := m.Status()
	if info.Status != state.StatusUnknown {
		t.Fatalf("expected state unchanged, got %q", info.Status)
	}
	if !info.LastSeen.IsZero() {
		t.Fatalf("expected LastSeen untouched, got %s", info.LastSeen)
	}
}

func TestRecordHeartbeatUnknownToUp(t *testing.T) {
	notifier := &recordingNotifier{}
	m, events, _ := newTestMonitor(t, WithNotifier(notifier))

	now := time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC)
	event, err := m.RecordHeartbeat(context.Background(), m.SecretKey(), now)
	if err != nil {
		t.Fatalf("RecordHeartbeat error: %v", err)
	}
	if event == nil || event.Type != transition.TypeUp {
		t.Fatalf("expected up event, got %+v", event)
	}
	if event.PriorKnown {
		t.Fatal("expected unknown prior duration on first heartbeat")
	}

	info := m.Status()
	if info.Status != state.StatusUp {
		t.Fatalf("expected up status, got %q", info.Status)
	}
	if !info.LastSeen.Equal(now) || !info.CameUpAt.Equal(now) {
		t.Fatalf("unexpected timestamps: %+v", info)
	}

	if events.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", events.Len())
	}
	entry, ok := events.LastMatching(eventlog.EventUp)
	if !ok || !entry.Time().Equal(now) {
		t.Fatalf("unexpected log entry: %+v ok=%v", entry, ok)
	}

	if len(notifier.events) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.events))
	}
}

func TestRecordHeartbeatWhileUpIsRefresh(t *testing.T) {
	m, events, _ := newTestMonitor(t)

	first := time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC)
	if _, err := m.RecordHeartbeat(context.Background(), m.SecretKey(), first); err != nil {
		t.Fatalf("first heartbeat: %v", err)
	}

	second := first.Add(time.Minute)
	event, err := m.RecordHeartbeat(context.Background(), m.SecretKey(), second)
	if err != nil {
		t.Fatalf("second heartbeat: %v", err)
	}
	if event != nil {
		t.Fatalf("expected no event while already up, got %+v", event)
	}

	info := m.Status()
	if !info.LastSeen.Equal(second) {
		t.Fatalf("expected LastSeen refreshed, got %s", info.LastSeen)
	}
	if !info.CameUpAt.Equal(first) {
		t.Fatalf("expected CameUpAt unchanged, got %s", info.CameUpAt)
	}
	if events.Len() != 1 {
		t.Fatalf("expected single log entry, got %d", events.Len())
	}
}

func TestCheckTimeoutTransitionsDown(t *testing.T) {
	notifier := &recordingNotifier{}
	analyzer := &stubAnalyzer{}
	dir := t.TempDir()
	store := state.NewFileStore(filepath.Join(dir, "state.json"), zerolog.Nop())
	events := eventlog.Open(filepath.Join(dir, "event_log.json"), time.UTC, zerolog.Nop())
	m, err := New(context.Background(), zerolog.Nop(), store, events, analyzer,
		WithNotifier(notifier),
		WithTimeout(180*time.Second),
		WithDownBackdate(60*time.Second),
	)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	lastSeen := time.Date(2026, 2, 27, 8, 0, 0, 0, time.UTC)
	if _, err := m.RecordHeartbeat(context.Background(), m.SecretKey(), lastSeen); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	// Inside the timeout nothing happens.
	if event := m.CheckTimeout(context.Background(), lastSeen.Add(2*time.Minute)); event != nil {
		t.Fatalf("expected no event inside timeout, got %+v", event)
	}

	// Past the timeout the outage starts at lastSeen plus the backdate.
	checkedAt := lastSeen.Add(4 * time.Minute)
	event := m.CheckTimeout(context.Background(), checkedAt)
	if event == nil || event.Type != transition.TypeDown {
		t.Fatalf("expected down event, got %+v", event)
	}
	wantDownAt := lastSeen.Add(60 * time.Second)
	if !event.Timestamp.Equal(wantDownAt) {
		t.Fatalf("expected back-dated timestamp %s, got %s", wantDownAt, event.Timestamp)
	}
	if !event.PriorKnown || event.PriorDuration != time.Minute {
		t.Fatalf("unexpected prior duration: %+v", event)
	}

	info := m.Status()
	if info.Status != state.StatusDown {
		t.Fatalf("expected down status, got %q", info.Status)
	}
	if !info.WentDownAt.Equal(wantDownAt) {
		t.Fatalf("unexpected WentDownAt %s", info.WentDownAt)
	}

	// Deviation is analyzed at the back-dated outage start.
	last := analyzer.calls[len(analyzer.calls)-1]
	if !last.Equal(wantDownAt) {
		t.Fatalf("expected analysis at %s, got %s", wantDownAt, last)
	}

	// The repeat check is a no-op.
	if event := m.CheckTimeout(context.Background(), checkedAt.Add(time.Minute)); event != nil {
		t.Fatalf("expected no repeat event, got %+v", event)
	}
	if events.Len() != 2 {
		t.Fatalf("expected 2 log entries, got %d", events.Len())
	}
	if len(notifier.events) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(notifier.events))
	}
}

func TestCheckTimeoutIgnoresUnknownAndDown(t *testing.T) {
	m, _, _ := newTestMonitor(t)

	// Unknown state never times out.
	if event := m.CheckTimeout(context.Background(), time.Now().Add(time.Hour)); event != nil {
		t.Fatalf("expected no event from unknown state, got %+v", event)
	}
}

func TestRecordHeartbeatDownToUp(t *testing.T) {
	m, _, _ := newTestMonitor(t)

	lastSeen := time.Date(2026, 2, 27, 8, 0, 0, 0, time.UTC)
	if _, err := m.RecordHeartbeat(context.Background(), m.SecretKey(), lastSeen); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if event := m.CheckTimeout(context.Background(), lastSeen.Add(10*time.Minute)); event == nil {
		t.Fatal("expected down transition")
	}

	restoredAt := lastSeen.Add(2 * time.Hour)
	event, err := m.RecordHeartbeat(context.Background(), m.SecretKey(), restoredAt)
	if err != nil {
		t.Fatalf("restore heartbeat: %v", err)
	}
	if event == nil || event.Type != transition.TypeUp {
		t.Fatalf("expected up event, got %+v", event)
	}
	// The outage is measured from the back-dated start.
	wantOutage := restoredAt.Sub(lastSeen.Add(time.Minute))
	if !event.PriorKnown || event.PriorDuration != wantOutage {
		t.Fatalf("expected outage %s, got %+v", wantOutage, event)
	}
}

func TestNextChangeFromGrid(t *testing.T) {
	scheduleStore := schedule.NewStore(time.UTC, zerolog.Nop())
	date := time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)
	day := schedule.Day{Date: date}
	for i := range day.Slots {
		if i < 24 {
			day.Slots[i] = schedule.SlotOff
		} else {
			day.Slots[i] = schedule.SlotOn
		}
	}
	tomorrow := schedule.Day{Date: date.AddDate(0, 0, 1)}
	for i := range tomorrow.Slots {
		tomorrow.Slots[i] = schedule.SlotOff
	}
	scheduleStore.Replace([]schedule.Day{day, tomorrow})

	m, _, _ := newTestMonitor(t, WithGridProvider(scheduleStore))

	// Heartbeat at 13:00 agrees with the schedule; the on-block runs to
	// midnight.
	event, err := m.RecordHeartbeat(context.Background(), m.SecretKey(), date.Add(13*time.Hour))
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if event == nil {
		t.Fatal("expected up event")
	}
	if event.NextChange != "tomorrow at 00:00" {
		t.Fatalf("unexpected next change %q", event.NextChange)
	}
}

func TestReloadPicksUpExternalState(t *testing.T) {
	m, _, store := newTestMonitor(t)

	now := time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC)
	if _, err := m.RecordHeartbeat(context.Background(), m.SecretKey(), now); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	// Another writer rotates the secret key on disk.
	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	snap.SecretKey = "rotated-key"
	if err := store.Save(context.Background(), snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := m.RecordHeartbeat(context.Background(), m.SecretKey(), now.Add(time.Minute)); err != ErrInvalidKey {
		t.Fatalf("expected stale key rejected after reload, got %v", err)
	}
	if _, err := m.RecordHeartbeat(context.Background(), "rotated-key", now.Add(time.Minute)); err != nil {
		t.Fatalf("expected rotated key accepted, got %v", err)
	}
}

func TestNewRejectsNonPositiveTimeout(t *testing.T) {
	dir := t.TempDir()
	store := state.NewFileStore(filepath.Join(dir, "state.json"), zerolog.Nop())
	events := eventlog.Open(filepath.Join(dir, "event_log.json"), time.UTC, zerolog.Nop())

	if _, err := New(context.Background(), zerolog.Nop(), store, events, &stubAnalyzer{}, WithTimeout(0)); err == nil {
		t.Fatal("expected error for zero timeout")
	}
}
