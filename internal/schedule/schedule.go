package schedule

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SlotsPerDay is the number of half-hour slots in one calendar day.
const SlotsPerDay = 48

// SlotState is the scheduled power state for a single half-hour slot.
type SlotState string

const (
	SlotOn      SlotState = "on"
	SlotOff     SlotState = "off"
	SlotPending SlotState = "pending"
)

// Invert flips On and Off. Pending stays Pending.
func (s SlotState) Invert() SlotState {
	switch s {
	case SlotOn:
		return SlotOff
	case SlotOff:
		return SlotOn
	default:
		return SlotPending
	}
}

// Day holds the published schedule for one calendar date.
type Day struct {
	Date  time.Time // local midnight
	Slots [SlotsPerDay]SlotState
}

// Complete reports whether every slot carries a definite On/Off value.
func (d Day) Complete() bool {
	for _, s := range d.Slots {
		if s != SlotOn && s != SlotOff {
			return false
		}
	}
	return true
}

// Transition is a boundary between slots where the scheduled state changes.
type Transition struct {
	Index int // boundary index 0..47; boundary i sits at i*30min from midnight
	Up    bool
	At    time.Time
}

// Transitions enumerates the day's scheduled state changes. The boundary
// before slot 0 is treated as the inverse of slot 0, so a uniform day still
// yields one transition at midnight. Boundaries touching a Pending slot are
// skipped.
func (d Day) Transitions() []Transition {
	var out []Transition
	for i := 0; i < SlotsPerDay; i++ {
		after := d.Slots[i]
		var before SlotState
		if i == 0 {
			before = after.Invert()
		} else {
			before = d.Slots[i-1]
		}
		if before == SlotPending || after == SlotPending {
			continue
		}
		if before == after {
			continue
		}
		out = append(out, Transition{
			Index: i,
			Up:    after == SlotOn,
			At:    SlotTime(d.Date, i),
		})
	}
	return out
}

// NearestTransition returns the day's transition of the requested direction
// closest to at. Transitions farther than radius are not considered a match.
func (d Day) NearestTransition(at time.Time, wantUp bool, radius time.Duration) (Transition, bool) {
	var best Transition
	var bestDist time.Duration
	found := false
	for _, tr := range d.Transitions() {
		if tr.Up != wantUp {
			continue
		}
		dist := at.Sub(tr.At)
		if dist < 0 {
			dist = -dist
		}
		if !found || dist < bestDist {
			best = tr
			bestDist = dist
			found = true
		}
	}
	if !found || bestDist > radius {
		return Transition{}, false
	}
	return best, true
}

// SlotTime resolves boundary i of a day to wall-clock time. Resolving by
// hour and minute rather than a duration from midnight keeps boundaries
// aligned with the clock on DST-change days.
func SlotTime(date time.Time, i int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), i/2, (i%2)*30, 0, 0, date.Location())
}

// SlotIndex maps an instant to its half-hour slot within the instant's day.
func SlotIndex(t time.Time) int {
	idx := t.Hour() * 2
	if t.Minute() >= 30 {
		idx++
	}
	return idx
}

// Midnight truncates t to local midnight in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// Store holds the most recently fetched schedule days, keyed by date. Days
// are replaced wholesale on refresh; readers get immutable Grid snapshots.
type Store struct {
	mu     sync.RWMutex
	loc    *time.Location
	days   map[string]Day
	logger zerolog.Logger
}

// NewStore constructs an empty schedule store for the given time zone.
func NewStore(loc *time.Location, logger zerolog.Logger) *Store {
	return &Store{
		loc:    loc,
		days:   make(map[string]Day),
		logger: logger,
	}
}

// Location returns the store's local time zone.
func (s *Store) Location() *time.Location {
	return s.loc
}

const dateKeyLayout = "2006-01-02"

// Replace installs a fresh set of days, dropping everything held before.
func (s *Store) Replace(days []Day) {
	next := make(map[string]Day, len(days))
	for _, d := range days {
		next[d.Date.Format(dateKeyLayout)] = d
	}
	s.mu.Lock()
	s.days = next
	s.mu.Unlock()
	s.logger.Debug().Int("days", len(days)).Msg("schedule replaced")
}

// DayFor returns the schedule day covering the instant's calendar date.
func (s *Store) DayFor(t time.Time) (Day, bool) {
	key := t.In(s.loc).Format(dateKeyLayout)
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.days[key]
	return d, ok
}

// GridAt builds a 96-slot lookahead snapshot anchored on the instant's date.
func (s *Store) GridAt(t time.Time) Grid {
	midnight := Midnight(t, s.loc)
	today, ok := s.DayFor(t)
	if !ok || !today.Complete() {
		return Grid{date: midnight, loc: s.loc, empty: true}
	}
	tomorrow, haveTomorrow := s.DayFor(midnight.AddDate(0, 0, 1))
	if haveTomorrow && !tomorrow.Complete() {
		haveTomorrow = false
	}

	g := Grid{date: midnight, loc: s.loc, haveTomorrow: haveTomorrow}
	copy(g.slots[:SlotsPerDay], today.Slots[:])
	if haveTomorrow {
		copy(g.slots[SlotsPerDay:], tomorrow.Slots[:])
	} else {
		// No data for tomorrow: pad with today's closing state.
		last := today.Slots[SlotsPerDay-1]
		for i := SlotsPerDay; i < 2*SlotsPerDay; i++ {
			g.slots[i] = last
		}
	}
	return g
}
