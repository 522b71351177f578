package deviation

import (
	"fmt"
	"time"

	"github.com/ykhomyn/power-sentinel/internal/schedule"
)

// DefaultRadius is the ignore radius for attributing an observed transition
// to a scheduled one.
const DefaultRadius = 90 * time.Minute

// Kind classifies the timing relation between an observed transition and its
// nearest same-type scheduled transition.
type Kind string

const (
	KindNoSchedule Kind = "no_schedule"
	KindNoMatch    Kind = "no_match"
	KindOnSchedule Kind = "on_schedule"
	KindEarly      Kind = "early"
	KindLate       Kind = "late"
)

// Result is the structured deviation output handed to notifiers.
type Result struct {
	Matched      bool
	Kind         Kind
	DeltaMinutes int // signed; positive means the observed event ran late
	ScheduledAt  time.Time
	Label        string
}

// DayProvider supplies the schedule day covering an instant, when one exists.
type DayProvider interface {
	DayFor(t time.Time) (schedule.Day, bool)
}

// Analyzer compares observed transitions against the published schedule.
type Analyzer struct {
	provider DayProvider
	radius   time.Duration
}

// NewAnalyzer constructs an Analyzer. A non-positive radius falls back to
// DefaultRadius.
func NewAnalyzer(provider DayProvider, radius time.Duration) *Analyzer {
	if radius <= 0 {
		radius = DefaultRadius
	}
	return &Analyzer{provider: provider, radius: radius}
}

// Analyze classifies an observed transition against the nearest same-type
// scheduled transition of the observed day. Absent or incomplete schedules
// degrade to a no-schedule result, never an error.
func (a *Analyzer) Analyze(observed time.Time, up bool) Result {
	day, ok := a.provider.DayFor(observed)
	if !ok || !day.Complete() {
		return Result{Kind: KindNoSchedule, Label: "no schedule"}
	}

	tr, ok := day.NearestTransition(observed, up, a.radius)
	if !ok {
		return Result{Kind: KindNoMatch, Label: "no match"}
	}

	deltaMinutes := int(observed.Sub(tr.At).Minutes())
	result := Result{
		Matched:      true,
		DeltaMinutes: deltaMinutes,
		ScheduledAt:  tr.At,
	}
	switch {
	case deltaMinutes == 0:
		result.Kind = KindOnSchedule
		result.Label = "on schedule"
	case deltaMinutes > 0:
		result.Kind = KindLate
		result.Label = "late by " + FormatDelta(deltaMinutes)
	default:
		result.Kind = KindEarly
		result.Label = "early by " + FormatDelta(-deltaMinutes)
	}
	return result
}

// FormatDelta renders a positive minute count as hours and minutes, omitting
// zero-valued components.
func FormatDelta(minutes int) string {
	h := minutes / 60
	m := minutes % 60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}
