package schedule

import (
	"fmt"
	"time"
)

const gridSlots = 2 * SlotsPerDay

// Grid is an immutable 96-slot view over today and tomorrow. A Grid built
// when no schedule exists for today answers Pending everywhere.
type Grid struct {
	date         time.Time // local midnight of slot 0
	loc          *time.Location
	slots        [gridSlots]SlotState
	haveTomorrow bool
	empty        bool
}

// Empty reports whether the grid has no schedule data at all.
func (g Grid) Empty() bool {
	return g.empty
}

// StateAt returns the scheduled state covering the instant.
func (g Grid) StateAt(t time.Time) SlotState {
	if g.empty {
		return SlotPending
	}
	idx := g.index(t)
	if idx < 0 || idx >= gridSlots {
		return SlotPending
	}
	return g.slots[idx]
}

// BlockEnd marks where the current contiguous block of equal slots ends.
type BlockEnd struct {
	Index     int // 0..96; 96 means the block runs past the grid
	DayOffset int
	At        time.Time
	Pending   bool
}

// Label renders the block end relative to the grid's first day.
func (b BlockEnd) Label() string {
	if b.Pending {
		return "pending"
	}
	hhmm := b.At.Format("15:04")
	if b.DayOffset == 0 {
		return hhmm
	}
	return "tomorrow at " + hhmm
}

// CurrentBlockEnd scans forward from the instant's slot for the first slot
// whose value differs and returns its boundary.
func (g Grid) CurrentBlockEnd(t time.Time) BlockEnd {
	if g.empty {
		return BlockEnd{Index: gridSlots, Pending: true}
	}
	idx := g.index(t)
	if idx < 0 || idx >= gridSlots {
		return BlockEnd{Index: gridSlots, Pending: true}
	}
	current := g.slots[idx]
	end := gridSlots
	for i := idx + 1; i < gridSlots; i++ {
		if g.slots[i] != current {
			end = i
			break
		}
	}
	return g.boundary(end)
}

// BlockRange describes the next contiguous block of the opposite state.
type BlockRange struct {
	Start   BlockEnd
	End     BlockEnd
	Hours   float64 // duration at half-hour granularity
	Pending bool
}

// Label renders the range as "HH:MM - HH:MM" or "pending".
func (r BlockRange) Label() string {
	if r.Pending {
		return "pending"
	}
	return fmt.Sprintf("%s - %s", r.Start.Label(), r.End.Label())
}

// NextBlockRange locates the block of the opposite state that follows the
// current block. A block that would fall entirely inside an absent tomorrow
// is reported as pending.
func (g Grid) NextBlockRange(t time.Time) BlockRange {
	if g.empty {
		return BlockRange{Pending: true}
	}
	idx := g.index(t)
	if idx < 0 || idx >= gridSlots {
		return BlockRange{Pending: true}
	}
	current := g.slots[idx]

	start := gridSlots
	for i := idx + 1; i < gridSlots; i++ {
		if g.slots[i] != current {
			start = i
			break
		}
	}
	if start >= gridSlots {
		return BlockRange{Pending: true}
	}
	if start >= SlotsPerDay && !g.haveTomorrow {
		return BlockRange{Pending: true}
	}

	end := gridSlots
	for i := start + 1; i < gridSlots; i++ {
		if g.slots[i] == current {
			end = i
			break
		}
	}

	return BlockRange{
		Start: g.boundary(start),
		End:   g.boundary(end),
		Hours: float64(end-start) * 0.5,
	}
}

// index maps an instant to its grid slot. The day offset is resolved by
// calendar date, not by dividing the elapsed duration, so grids anchored on a
// 23- or 25-hour DST day still route tomorrow's instants to slots 48..95.
func (g Grid) index(t time.Time) int {
	local := t.In(g.loc)
	day := Midnight(local, g.loc)
	switch {
	case day.Equal(g.date):
		return SlotIndex(local)
	case day.Equal(g.date.AddDate(0, 0, 1)):
		return SlotsPerDay + SlotIndex(local)
	default:
		return -1
	}
}

func (g Grid) boundary(idx int) BlockEnd {
	if idx >= gridSlots {
		return BlockEnd{Index: gridSlots, Pending: true}
	}
	day := g.date.AddDate(0, 0, idx/SlotsPerDay)
	return BlockEnd{
		Index:     idx,
		DayOffset: idx / SlotsPerDay,
		At:        SlotTime(day, idx%SlotsPerDay),
	}
}
