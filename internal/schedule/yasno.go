package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Planned-outages documents are keyed by group with the "GPV" prefix
// stripped. Each group carries today/tomorrow day objects whose slots are
// minute intervals rather than hour codes.
type yasnoDay struct {
	Date   string      `json:"date"`
	Status string      `json:"status"`
	Slots  []yasnoSlot `json:"slots"`
}

type yasnoSlot struct {
	Start int    `json:"start"` // minutes from midnight
	End   int    `json:"end"`
	Type  string `json:"type"`
}

const yasnoEmergency = "EmergencyShutdowns"

var yasnoDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseYasno extracts the schedule days for one group from a planned-outages
// document. Days under emergency shutdowns, and days whose interval list is
// empty, are emitted with every slot Pending. Minutes outside a listed
// interval default to power on; "NotPlanned" intervals confirm power on,
// everything else marks an outage.
func ParseYasno(data []byte, group string, loc *time.Location) ([]Day, error) {
	var doc map[string]struct {
		Today    *yasnoDay `json:"today"`
		Tomorrow *yasnoDay `json:"tomorrow"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse planned-outages document: %w", err)
	}

	entry, ok := doc[strings.TrimPrefix(group, "GPV")]
	if !ok {
		return nil, nil
	}

	var days []Day
	for _, yd := range []*yasnoDay{entry.Today, entry.Tomorrow} {
		if yd == nil || yd.Date == "" {
			continue
		}
		date, err := parseYasnoDate(yd.Date, loc)
		if err != nil {
			return nil, err
		}

		day := Day{Date: Midnight(date, loc)}
		if yd.Status == yasnoEmergency || len(yd.Slots) == 0 {
			for i := range day.Slots {
				day.Slots[i] = SlotPending
			}
			days = append(days, day)
			continue
		}

		for i := range day.Slots {
			day.Slots[i] = SlotOn
		}
		for _, s := range yd.Slots {
			state := SlotOff
			if s.Type == "NotPlanned" {
				state = SlotOn
			}
			start := s.Start / 30
			end := s.End / 30
			if start < 0 {
				start = 0
			}
			if end > SlotsPerDay {
				end = SlotsPerDay
			}
			for i := start; i < end; i++ {
				day.Slots[i] = state
			}
		}
		days = append(days, day)
	}
	return days, nil
}

func parseYasnoDate(value string, loc *time.Location) (time.Time, error) {
	for _, layout := range yasnoDateLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse planned-outages date %q", value)
}
