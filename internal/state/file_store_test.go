package state

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFileStore_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "state.json")
	store := NewFileStore(path, zerolog.Nop())

	snap := Snapshot{
		Status:     StatusUp,
		LastSeen:   1772181600.5,
		WentDownAt: 1772170000,
		CameUpAt:   1772175000,
		SecretKey:  "abc123",
	}

	if err := store.Save(context.Background(), snap); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}

	if loaded.Status != StatusUp {
		t.Fatalf("unexpected status: %s", loaded.Status)
	}
	if loaded.LastSeen != snap.LastSeen {
		t.Fatalf("unexpected last_seen: %v", loaded.LastSeen)
	}
	if loaded.SecretKey != "abc123" {
		t.Fatalf("unexpected secret key: %s", loaded.SecretKey)
	}
}

func TestFileStore_MissingFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "missing.json")
	store := NewFileStore(path, zerolog.Nop())

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}

	if snap.Status != StatusUnknown {
		t.Fatalf("expected unknown status, got %s", snap.Status)
	}
	if snap.LastSeen != 0 {
		t.Fatalf("expected zero last_seen, got %v", snap.LastSeen)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "state.json")
	store := NewFileStore(path, zerolog.Nop())

	if err := os.WriteFile(path, []byte("{not-json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}

	if snap.Status != StatusUnknown {
		t.Fatalf("expected unknown status, got %s", snap.Status)
	}
}

func TestFileStore_UnrecognizedStatusResets(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "state.json")
	store := NewFileStore(path, zerolog.Nop())

	if err := os.WriteFile(path, []byte(`{"status":"sideways","secret_key":"k"}`), 0o600); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}

	if snap.Status != StatusUnknown {
		t.Fatalf("expected unknown status, got %s", snap.Status)
	}
	if snap.SecretKey != "k" {
		t.Fatalf("expected secret key to survive, got %q", snap.SecretKey)
	}
}

func TestUnixConversionRoundTrip(t *testing.T) {
	now := time.Date(2026, 2, 27, 11, 50, 30, 500_000_000, time.UTC)

	sec := ToUnix(now)
	back := FromUnix(sec)

	if math.Abs(float64(back.Sub(now))) > float64(time.Millisecond) {
		t.Fatalf("round trip drifted: %v vs %v", back, now)
	}
	if !FromUnix(0).IsZero() {
		t.Fatalf("expected zero seconds to map to zero time")
	}
}

func TestNewSecretKey(t *testing.T) {
	a := NewSecretKey()
	b := NewSecretKey()

	if a == "" || b == "" {
		t.Fatalf("expected non-empty keys")
	}
	if a == b {
		t.Fatalf("expected distinct keys, got %q twice", a)
	}
}
