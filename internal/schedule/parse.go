package schedule

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// regionDocument is the published outage-region JSON layout. Fact data is
// keyed by day timestamp, then group ID, then hour (1..24). Hour values:
// "yes" power on, "no" power off, "first" first half-hour off, "second"
// second half-hour off.
type regionDocument struct {
	RegionID    string     `json:"regionId"`
	LastUpdated string     `json:"lastUpdated"`
	Fact        regionFact `json:"fact"`
}

type regionFact struct {
	Data   map[string]map[string]map[string]string `json:"data"`
	Update string                                  `json:"update"`
}

// ParseRegion extracts the schedule days for one group from a region
// document. Days the group is absent from are skipped; unknown hour values
// default to power on, matching the published format's convention. A day
// without a single outage hour is emitted with every slot Pending: the feed
// lists upcoming dates before their schedules are published, and an all-on
// reading of such a day would invent a midnight transition.
func ParseRegion(data []byte, group string, loc *time.Location) ([]Day, error) {
	var doc regionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse region document: %w", err)
	}
	if len(doc.Fact.Data) == 0 {
		return nil, nil
	}

	days := make([]Day, 0, len(doc.Fact.Data))
	for ts, groups := range doc.Fact.Data {
		hours, ok := groups[group]
		if !ok {
			continue
		}
		unix, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse day timestamp %q: %w", ts, err)
		}
		day := Day{Date: Midnight(time.Unix(unix, 0), loc)}
		anyOutage := false
		for h := 1; h <= 24; h++ {
			value, present := hours[strconv.Itoa(h)]
			if present && value != "yes" {
				anyOutage = true
			}
			first, second := expandHour(value)
			day.Slots[(h-1)*2] = first
			day.Slots[(h-1)*2+1] = second
		}
		if !anyOutage {
			// A day with no outage hour at all means the schedule for it has
			// not been published yet, not that power is on around the clock.
			for i := range day.Slots {
				day.Slots[i] = SlotPending
			}
		}
		days = append(days, day)
	}

	sort.Slice(days, func(i, j int) bool {
		return days[i].Date.Before(days[j].Date)
	})
	return days, nil
}

func expandHour(value string) (SlotState, SlotState) {
	switch value {
	case "no":
		return SlotOff, SlotOff
	case "first":
		return SlotOff, SlotOn
	case "second":
		return SlotOn, SlotOff
	default:
		return SlotOn, SlotOn
	}
}
