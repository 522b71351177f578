package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ykhomyn/power-sentinel/internal/deviation"
	"github.com/ykhomyn/power-sentinel/internal/transition"
)

func fastSlackTiming() SlackOption {
	return WithSlackTiming(time.Millisecond, 5, time.Millisecond, 5*time.Millisecond, 50*time.Millisecond)
}

func makeUpEvent() transition.Event {
	return transition.Event{
		Type:          transition.TypeUp,
		Timestamp:     time.Date(2026, 2, 27, 12, 10, 0, 0, time.UTC),
		PriorKnown:    true,
		PriorDuration: 90 * time.Minute,
		Deviation: deviation.Result{
			Matched:      true,
			Kind:         deviation.KindLate,
			DeltaMinutes: 10,
			ScheduledAt:  time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC),
			Label:        "10m later than scheduled",
		},
		NextChange: "18:00",
	}
}

func TestBuildSlackMessage(t *testing.T) {
	msg := buildSlackMessage(makeUpEvent(), time.UTC)

	if !strings.Contains(msg.Text, "12:10 Power restored") {
		t.Fatalf("expected restore summary, got %q", msg.Text)
	}
	if msg.Blocks == nil || len(msg.Blocks.BlockSet) != 3 {
		t.Fatalf("expected 3 blocks, got %+v", msg.Blocks)
	}

	down := makeUpEvent()
	down.Type = transition.TypeDown
	msg = buildSlackMessage(down, time.UTC)
	if !strings.Contains(msg.Text, "Power lost") {
		t.Fatalf("expected loss summary, got %q", msg.Text)
	}
}

func TestSlackNotifierDelivers(t *testing.T) {
	var body atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body.Store(string(data))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(zerolog.Nop(), server.URL, time.UTC, fastSlackTiming())

	if err := notifier.Notify(context.Background(), makeUpEvent()); err != nil {
		t.Fatalf("Notify error: %v", err)
	}

	sent, _ := body.Load().(string)
	if !strings.Contains(sent, "Power restored") {
		t.Fatalf("expected payload to contain summary, got %q", sent)
	}
}

func TestSlackNotifierRetriesServerErrors(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(zerolog.Nop(), server.URL, time.UTC, fastSlackTiming())

	if err := notifier.Notify(context.Background(), makeUpEvent()); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if requests.Load() != 2 {
		t.Fatalf("expected 2 requests, got %d", requests.Load())
	}
}

func TestSlackNotifierHonorsRetryAfter(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(zerolog.Nop(), server.URL, time.UTC, fastSlackTiming())

	started := time.Now()
	if err := notifier.Notify(context.Background(), makeUpEvent()); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if elapsed := time.Since(started); elapsed < time.Second {
		t.Fatalf("expected at least 1s wait for Retry-After, waited %s", elapsed)
	}
	if requests.Load() != 2 {
		t.Fatalf("expected 2 requests, got %d", requests.Load())
	}
}

func TestSlackNotifierFailsOnClientError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(zerolog.Nop(), server.URL, time.UTC, fastSlackTiming())

	err := notifier.Notify(context.Background(), makeUpEvent())
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "invalid_payload") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestSlackNotifierEmptyURLIsNoop(t *testing.T) {
	notifier := NewSlackNotifier(zerolog.Nop(), "", time.UTC)
	if _, ok := notifier.(*NoopNotifier); !ok {
		t.Fatalf("expected noop notifier, got %T", notifier)
	}
}
