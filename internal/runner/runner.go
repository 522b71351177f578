package runner

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Ticker is the minimal interface needed for driving the runner loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

// Runner drives a periodic task: one immediate run at startup, then one run
// per tick until the context is canceled. Task errors are logged, never
// fatal; monitoring keeps running through transient failures.
type Runner struct {
	logger        zerolog.Logger
	interval      time.Duration
	tickerFactory func(time.Duration) Ticker
	task          func(context.Context) error
}

// Option customizes runner behavior.
type Option func(*Runner)

// WithTickerFactory overrides how tickers are created.
func WithTickerFactory(factory func(time.Duration) Ticker) Option {
	return func(r *Runner) {
		r.tickerFactory = factory
	}
}

// New constructs a Runner executing task every interval.
func New(logger zerolog.Logger, interval time.Duration, task func(context.Context) error, opts ...Option) *Runner {
	r := &Runner{
		logger:   logger,
		interval: interval,
		task:     task,
		tickerFactory: func(d time.Duration) Ticker {
			return timeTicker{ticker: time.NewTicker(d)}
		},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run starts the loop and blocks until the context is canceled.
func (r *Runner) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return errors.New("interval must be greater than zero")
	}
	if r.task == nil {
		return errors.New("task must not be nil")
	}

	// Run immediately on startup
	if err := r.RunOnce(ctx); err != nil {
		r.logger.Error().Err(err).Msg("initial run cycle failed")
	}

	ticker := r.tickerFactory(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("runner stopped")
			return nil
		case <-ticker.C():
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error().Err(err).Msg("run cycle failed")
			}
		}
	}
}

// RunOnce executes a single cycle of the task.
func (r *Runner) RunOnce(ctx context.Context) error {
	return r.task(ctx)
}
