package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ykhomyn/power-sentinel/internal/deviation"
	"github.com/ykhomyn/power-sentinel/internal/eventlog"
	"github.com/ykhomyn/power-sentinel/internal/healthcheck"
	"github.com/ykhomyn/power-sentinel/internal/metrics"
	"github.com/ykhomyn/power-sentinel/internal/monitor"
	"github.com/ykhomyn/power-sentinel/internal/schedule"
	"github.com/ykhomyn/power-sentinel/internal/transition"
)

const (
	shutdownTimeout = 5 * time.Second

	// recentEventsLimit caps how many log entries the status endpoint returns.
	recentEventsLimit = 20
)

// Service is the subset of the monitor the API handlers need.
type Service interface {
	RecordHeartbeat(ctx context.Context, key string, now time.Time) (*transition.Event, error)
	Status() monitor.StatusInfo
}

// EventSource supplies annotated history for the status endpoint.
type EventSource interface {
	Recent(n int) []eventlog.AnnotatedEntry
}

// GridProvider supplies schedule context for the status endpoint.
type GridProvider interface {
	GridAt(t time.Time) schedule.Grid
}

// Analyzer classifies the last logged transition for the status endpoint.
// Status attribution uses a wider radius than live transition analysis.
type Analyzer interface {
	Analyze(observed time.Time, up bool) deviation.Result
}

// API serves the heartbeat and status endpoints.
type API struct {
	logger   zerolog.Logger
	service  Service
	events   EventSource
	grids    GridProvider
	analyzer Analyzer
	loc      *time.Location
	now      func() time.Time
}

// APIOption customizes API behavior.
type APIOption func(*API)

// WithAnalyzer enables deviation context for the last logged event.
func WithAnalyzer(analyzer Analyzer) APIOption {
	return func(a *API) {
		a.analyzer = analyzer
	}
}

// NewAPI constructs the API. events and grids may be nil; the status
// endpoint then omits the corresponding sections.
func NewAPI(logger zerolog.Logger, service Service, events EventSource, grids GridProvider, loc *time.Location, opts ...APIOption) *API {
	if loc == nil {
		loc = time.UTC
	}
	a := &API{
		logger:  logger,
		service: service,
		events:  events,
		grids:   grids,
		loc:     loc,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the API route mux.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/push/{key}", a.handlePush)
	mux.HandleFunc("GET /api/status", a.handleStatus)
	return mux
}

type pushResponse struct {
	Status string `json:"status"`
	Msg    string `json:"msg"`
}

func (a *API) handlePush(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	_, err := a.service.RecordHeartbeat(r.Context(), key, a.now())
	if err != nil {
		if errors.Is(err, monitor.ErrInvalidKey) {
			a.logger.Warn().Str("remote", r.RemoteAddr).Msg("heartbeat with invalid key")
			writeJSON(w, http.StatusForbidden, pushResponse{Status: "error", Msg: "invalid_key"})
			return
		}
		a.logger.Error().Err(err).Msg("heartbeat processing failed")
		writeJSON(w, http.StatusInternalServerError, pushResponse{Status: "error", Msg: "internal_error"})
		return
	}
	writeJSON(w, http.StatusOK, pushResponse{Status: "ok", Msg: "heartbeat_received"})
}

type statusEvent struct {
	Event         string  `json:"event"`
	At            string  `json:"at"`
	Date          string  `json:"date"`
	SincePrevious *string `json:"since_previous,omitempty"`
}

type statusSchedule struct {
	ScheduledState string  `json:"scheduled_state"`
	Pending        bool    `json:"pending"`
	NextChange     string  `json:"next_change,omitempty"`
	NextBlock      string  `json:"next_block,omitempty"`
	NextBlockHours float64 `json:"next_block_hours,omitempty"`
}

type statusLastEvent struct {
	Event     string `json:"event"`
	At        string `json:"at"`
	Deviation string `json:"deviation,omitempty"`
}

type statusResponse struct {
	Status       string           `json:"status"`
	LastSeen     string           `json:"last_seen,omitempty"`
	WentDownAt   string           `json:"went_down_at,omitempty"`
	CameUpAt     string           `json:"came_up_at,omitempty"`
	LastEvent    *statusLastEvent `json:"last_event,omitempty"`
	RecentEvents []statusEvent    `json:"recent_events"`
	Schedule     *statusSchedule  `json:"schedule,omitempty"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	info := a.service.Status()

	resp := statusResponse{
		Status:       string(info.Status),
		LastSeen:     formatTime(info.LastSeen, a.loc),
		WentDownAt:   formatTime(info.WentDownAt, a.loc),
		CameUpAt:     formatTime(info.CameUpAt, a.loc),
		RecentEvents: []statusEvent{},
	}

	if a.events != nil {
		recent := a.events.Recent(recentEventsLimit)
		for _, entry := range recent {
			evt := statusEvent{
				Event: string(entry.Event),
				At:    formatTime(entry.Time(), a.loc),
				Date:  entry.DateStr,
			}
			if entry.SincePrevious != nil {
				label := formatMinutes(*entry.SincePrevious)
				evt.SincePrevious = &label
			}
			resp.RecentEvents = append(resp.RecentEvents, evt)
		}
		if len(recent) > 0 {
			newest := recent[0]
			last := &statusLastEvent{
				Event: string(newest.Event),
				At:    formatTime(newest.Time(), a.loc),
			}
			if a.analyzer != nil {
				last.Deviation = a.analyzer.Analyze(newest.Time(), newest.Event == eventlog.EventUp).Label
			}
			resp.LastEvent = last
		}
	}

	if a.grids != nil {
		now := a.now()
		grid := a.grids.GridAt(now)
		if !grid.Empty() {
			sched := &statusSchedule{}
			switch grid.StateAt(now) {
			case schedule.SlotOn:
				sched.ScheduledState = "on"
			case schedule.SlotOff:
				sched.ScheduledState = "off"
			default:
				sched.ScheduledState = "pending"
				sched.Pending = true
			}
			if !sched.Pending {
				sched.NextChange = grid.CurrentBlockEnd(now).Label()
				next := grid.NextBlockRange(now)
				if !next.Pending {
					sched.NextBlock = next.Label()
					sched.NextBlockHours = next.Hours
				}
			}
			resp.Schedule = sched
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(time.RFC3339)
}

func formatMinutes(d time.Duration) string {
	minutes := int(d / time.Minute)
	hours := minutes / 60
	minutes %= 60
	if hours > 0 && minutes > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dm", minutes)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Start launches the API, health and metrics HTTP servers as configured.
// Endpoints assigned the same port share one mux and one server.
func Start(ctx context.Context, logger zerolog.Logger, api *API, checkInterval time.Duration, tracker *healthcheck.Tracker, metricsCollector *metrics.Metrics, apiPort, healthPort, metricsPort int) {
	muxes := make(map[int]*http.ServeMux)
	labels := make(map[int]string)

	muxFor := func(port int, label string) *http.ServeMux {
		mux, ok := muxes[port]
		if !ok {
			mux = http.NewServeMux()
			muxes[port] = mux
			labels[port] = label
		} else {
			labels[port] += "/" + label
		}
		return mux
	}

	if apiPort > 0 && api != nil {
		muxFor(apiPort, "api").Handle("/api/", api.Handler())
	}
	if healthPort > 0 {
		mux := muxFor(healthPort, "health")
		mux.HandleFunc("/healthz", healthcheck.HealthHandler(tracker, checkInterval))
		mux.HandleFunc("/readyz", healthcheck.ReadyHandler(tracker))
	}
	if metricsPort > 0 && metricsCollector != nil {
		muxFor(metricsPort, "metrics").Handle("/metrics", metricsCollector.Handler())
	}

	for port, mux := range muxes {
		startServer(ctx, logger, mux, port, labels[port])
	}
}

func startServer(ctx context.Context, logger zerolog.Logger, handler http.Handler, port int, label string) {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("server", label).Int("port", port).Msg("http server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("server", label).Int("port", port).Msg("http server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Str("server", label).Int("port", port).Msg("http server shutdown failed")
		}
	}()
}
