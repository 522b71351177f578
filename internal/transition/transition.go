package transition

import (
	"time"

	"github.com/ykhomyn/power-sentinel/internal/deviation"
)

// Type is the direction of a power transition.
type Type string

const (
	TypeUp   Type = "up"
	TypeDown Type = "down"
)

// Event is the structured payload handed to notifiers when the monitor
// decides a transition. Human-readable formatting belongs to the notifier;
// the only text carried here is the deviation label.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// PriorDuration is how long the opposite state lasted before this
	// transition. Unknown when the monitor has no prior transition on
	// record (PriorKnown false).
	PriorDuration time.Duration `json:"prior_duration"`
	PriorKnown    bool          `json:"prior_known"`

	Deviation deviation.Result `json:"deviation"`

	// NextChange is the schedule's view of when the state is expected to
	// flip back, e.g. the expected return of power after an outage began.
	// Empty when no schedule is available.
	NextChange string `json:"next_change,omitempty"`
}
