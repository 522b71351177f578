package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ykhomyn/power-sentinel/internal/runner"
)

// Loop is a named periodic task managed by the Coordinator.
type Loop struct {
	Name     string
	Interval time.Duration
	Task     func(ctx context.Context) error
}

// Coordinator manages multiple runners, one per loop.
// It spawns runners in parallel and waits for context cancellation.
type Coordinator struct {
	logger     zerolog.Logger
	loops      []Loop
	loopErrors map[string]error
	mu         sync.RWMutex
}

// New constructs a Coordinator over the given loops.
func New(logger zerolog.Logger, loops []Loop) *Coordinator {
	return &Coordinator{
		logger:     logger,
		loops:      loops,
		loopErrors: make(map[string]error),
	}
}

// Run starts all loops in parallel and blocks until context is canceled.
// Returns nil on clean shutdown; logs any per-loop errors internally.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info().
		Int("loops", len(c.loops)).
		Msg("starting coordinator")

	var wg sync.WaitGroup
	for _, loop := range c.loops {
		wg.Add(1)
		go c.spawnRunner(ctx, &wg, loop)
	}

	// Wait for all loops to exit (via context cancellation or error)
	wg.Wait()
	c.logger.Info().Msg("all loops stopped")

	c.mu.RLock()
	defer c.mu.RUnlock()
	for name, err := range c.loopErrors {
		if err != nil {
			c.logger.Error().Err(err).Str("loop", name).Msg("loop error")
		}
	}

	return nil
}

// spawnRunner creates and runs a single Runner for the given loop.
func (c *Coordinator) spawnRunner(ctx context.Context, wg *sync.WaitGroup, loop Loop) {
	defer wg.Done()

	loopLogger := c.logger.With().Str("loop", loop.Name).Logger()

	r := runner.New(loopLogger, loop.Interval, loop.Task)

	loopLogger.Info().Msg("loop started")

	if err := r.Run(ctx); err != nil {
		loopLogger.Error().Err(err).Msg("loop exited with error")
		c.recordError(loop.Name, err)
	} else {
		loopLogger.Info().Msg("loop exited cleanly")
	}
}

// recordError records a per-loop error for later reporting.
func (c *Coordinator) recordError(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loopErrors[name] = err
}
