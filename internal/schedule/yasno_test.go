package schedule

import (
	"testing"
	"time"
)

const yasnoDoc = `{
	"1.1": {
		"today": {
			"date": "2026-02-27",
			"status": "Planned",
			"slots": [
				{"start": 0, "end": 720, "type": "Planned"},
				{"start": 720, "end": 1440, "type": "NotPlanned"}
			]
		},
		"tomorrow": {
			"date": "2026-02-28",
			"status": "Planned",
			"slots": []
		}
	}
}`

func TestParseYasno(t *testing.T) {
	days, err := ParseYasno([]byte(yasnoDoc), "GPV1.1", time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(days))
	}

	today := days[0]
	if want := time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC); !today.Date.Equal(want) {
		t.Fatalf("unexpected date %s", today.Date)
	}
	if today.Slots[0] != SlotOff || today.Slots[23] != SlotOff {
		t.Fatalf("expected morning off, got %v/%v", today.Slots[0], today.Slots[23])
	}
	if today.Slots[24] != SlotOn || today.Slots[47] != SlotOn {
		t.Fatalf("expected afternoon on, got %v/%v", today.Slots[24], today.Slots[47])
	}
	if !today.Complete() {
		t.Fatal("expected today to be complete")
	}

	// Tomorrow has no intervals published yet.
	for i, s := range days[1].Slots {
		if s != SlotPending {
			t.Fatalf("tomorrow slot %d: expected pending, got %v", i, s)
		}
	}
}

func TestParseYasnoEmergency(t *testing.T) {
	doc := `{
		"1.1": {
			"today": {
				"date": "2026-02-27",
				"status": "EmergencyShutdowns",
				"slots": [{"start": 0, "end": 1440, "type": "Planned"}]
			}
		}
	}`

	days, err := ParseYasno([]byte(doc), "GPV1.1", time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("expected 1 day, got %d", len(days))
	}
	// Emergency shutdowns invalidate the published intervals.
	for i, s := range days[0].Slots {
		if s != SlotPending {
			t.Fatalf("slot %d: expected pending, got %v", i, s)
		}
	}
}

func TestParseYasnoClampsIntervals(t *testing.T) {
	doc := `{
		"1.1": {
			"today": {
				"date": "2026-02-27",
				"slots": [{"start": 1380, "end": 2000, "type": "Planned"}]
			}
		}
	}`

	days, err := ParseYasno([]byte(doc), "GPV1.1", time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	day := days[0]
	if day.Slots[46] != SlotOff || day.Slots[47] != SlotOff {
		t.Fatalf("expected final hour off, got %v/%v", day.Slots[46], day.Slots[47])
	}
	if day.Slots[0] != SlotOn {
		t.Fatalf("expected untouched slot on, got %v", day.Slots[0])
	}
}

func TestParseYasnoGroupAbsent(t *testing.T) {
	days, err := ParseYasno([]byte(yasnoDoc), "GPV2.2", time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(days) != 0 {
		t.Fatalf("expected no days for absent group, got %d", len(days))
	}
}

func TestParseYasnoInvalid(t *testing.T) {
	if _, err := ParseYasno([]byte("{not json"), "GPV1.1", time.UTC); err == nil {
		t.Fatal("expected error for malformed json")
	}

	doc := `{"1.1": {"today": {"date": "not-a-date", "slots": [{"start": 0, "end": 60}]}}}`
	if _, err := ParseYasno([]byte(doc), "GPV1.1", time.UTC); err == nil {
		t.Fatal("expected error for malformed date")
	}
}
