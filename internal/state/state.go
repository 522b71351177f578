package state

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"
)

// Status is the inferred power availability.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusUp      Status = "up"
	StatusDown    Status = "down"
)

// Snapshot is the persisted availability record. Timestamps are epoch
// seconds so other consumers of the file can read it without a schema; the
// file is last-writer-wins with no transactional guarantee.
type Snapshot struct {
	Status     Status  `json:"status"`
	LastSeen   float64 `json:"last_seen"`
	WentDownAt float64 `json:"went_down_at"`
	CameUpAt   float64 `json:"came_up_at"`
	SecretKey  string  `json:"secret_key"`
}

// Default returns the snapshot used before any heartbeat has been seen.
func Default() Snapshot {
	return Snapshot{Status: StatusUnknown}
}

// Store defines the interface for persisting the availability snapshot.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// ToUnix converts a time to the snapshot's epoch-second representation.
func ToUnix(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000
}

// FromUnix converts epoch seconds back to a time. Zero maps to the zero time.
func FromUnix(sec float64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(sec * 1000))
}

const secretKeyBytes = 16

// NewSecretKey generates the opaque token that authorizes heartbeats.
func NewSecretKey() string {
	buf := make([]byte, secretKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
