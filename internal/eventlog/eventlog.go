package eventlog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ykhomyn/power-sentinel/internal/state"
)

// EventType is the direction of an observed power transition.
type EventType string

const (
	EventUp   EventType = "up"
	EventDown EventType = "down"
)

// DefaultRetention bounds the log to roughly a month of events.
const DefaultRetention = 1000

// Entry is one observed transition. Timestamp is epoch seconds; DateStr is a
// human-readable duplicate kept for operators reading the file directly.
type Entry struct {
	Timestamp float64   `json:"timestamp"`
	Event     EventType `json:"event"`
	DateStr   string    `json:"date_str,omitempty"`
}

// Time returns the entry timestamp as a time.Time.
func (e Entry) Time() time.Time {
	return state.FromUnix(e.Timestamp)
}

// AnnotatedEntry is an Entry plus the duration since the preceding entry.
// SincePrevious is nil for the first entry in the log.
type AnnotatedEntry struct {
	Entry
	SincePrevious *time.Duration
}

// Log is an append-only, bounded record of up/down transitions backed by a
// JSON file. Appends hold the log's own lock; callers sequence appends with
// their transition decisions by appending inside their own critical section.
type Log struct {
	mu        sync.Mutex
	path      string
	loc       *time.Location
	logger    zerolog.Logger
	entries   []Entry
	retention int
}

// Open loads the log at path, degrading to an empty log when the file is
// missing or corrupt.
func Open(path string, loc *time.Location, logger zerolog.Logger) *Log {
	l := &Log{
		path:      path,
		loc:       loc,
		logger:    logger,
		retention: DefaultRetention,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn().Str("path", path).Err(err).Msg("event log unreadable, starting empty")
		}
		return l
	}
	if err := json.Unmarshal(data, &l.entries); err != nil {
		logger.Warn().Str("path", path).Err(err).Msg("event log corrupt, starting empty")
		l.entries = nil
	}
	return l
}

// Append records a transition and persists the log. The retention cap drops
// the oldest entries. Persist failures are logged and the in-memory entry is
// kept.
func (l *Log) Append(event EventType, ts time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, Entry{
		Timestamp: state.ToUnix(ts),
		Event:     event,
		DateStr:   ts.In(l.loc).Format("2006-01-02 15:04:05"),
	})
	if len(l.entries) > l.retention {
		l.entries = append([]Entry(nil), l.entries[len(l.entries)-l.retention:]...)
	}

	if err := l.persistLocked(); err != nil {
		l.logger.Error().Str("path", l.path).Err(err).Msg("failed to persist event log")
	}
}

// Recent returns the last n entries, most recent first, each annotated with
// the duration since its immediate predecessor.
func (l *Log) Recent(n int) []AnnotatedEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || len(l.entries) == 0 {
		return nil
	}
	if n > len(l.entries) {
		n = len(l.entries)
	}

	out := make([]AnnotatedEntry, 0, n)
	for i := len(l.entries) - 1; i >= len(l.entries)-n; i-- {
		annotated := AnnotatedEntry{Entry: l.entries[i]}
		if i > 0 {
			d := time.Duration((l.entries[i].Timestamp - l.entries[i-1].Timestamp) * float64(time.Second))
			annotated.SincePrevious = &d
		}
		out = append(out, annotated)
	}
	return out
}

// LastMatching scans backward for the most recent entry of the given type.
func (l *Log) LastMatching(event EventType) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Event == event {
			return l.entries[i], true
		}
	}
	return Entry{}, false
}

// Len reports the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Log) persistLocked() error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, ".events-*.json")
	if err != nil {
		return err
	}
	cleanup := func() {
		_ = os.Remove(tempFile.Name())
	}

	encoder := json.NewEncoder(tempFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(l.entries); err != nil {
		_ = tempFile.Close()
		cleanup()
		return err
	}
	if err := tempFile.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tempFile.Name(), l.path); err != nil {
		cleanup()
		return err
	}
	return nil
}
