package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Parser turns a fetched document into schedule days for one group.
type Parser func(data []byte, group string, loc *time.Location) ([]Day, error)

// Source is one prioritized schedule provider. A nil Parse means the
// outage-region format.
type Source struct {
	Name    string
	Group   string
	Fetcher Fetcher
	Parse   Parser
}

// Refresher pulls fresh schedule days into a Store. Sources are tried in
// order; the first one yielding a complete day for today wins the refresh.
type Refresher struct {
	logger     zerolog.Logger
	store      *Store
	sources    []Source
	validators map[string]Validators
	cached     map[string][]Day
}

// NewRefresher constructs a Refresher over the given sources.
func NewRefresher(logger zerolog.Logger, store *Store, sources []Source) *Refresher {
	return &Refresher{
		logger:     logger,
		store:      store,
		sources:    sources,
		validators: make(map[string]Validators),
		cached:     make(map[string][]Day),
	}
}

// Refresh fetches each source until one provides today's schedule and
// replaces the store contents with it. Returns an error only when every
// source failed; an empty but successful response is a degraded state, not
// an error.
func (r *Refresher) Refresh(ctx context.Context) error {
	now := time.Now()
	var errs []error

	for _, src := range r.sources {
		days, err := r.fetchSource(ctx, src)
		if err != nil {
			r.logger.Warn().Err(err).Str("source", src.Name).Msg("schedule source failed")
			errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
			continue
		}
		if !hasDayFor(days, now, r.store.Location()) {
			r.logger.Debug().Str("source", src.Name).Msg("schedule source has no data for today")
			continue
		}

		r.store.Replace(days)
		r.logger.Info().
			Str("source", src.Name).
			Str("group", src.Group).
			Int("days", len(days)).
			Msg("schedule refreshed")
		return nil
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	r.logger.Warn().Msg("no schedule source provided data for today")
	return nil
}

func (r *Refresher) fetchSource(ctx context.Context, src Source) ([]Day, error) {
	result, err := src.Fetcher.Fetch(ctx, r.validators[src.Name])
	if err != nil {
		return nil, err
	}
	v := r.validators[src.Name]
	if result.ETag != "" {
		v.ETag = result.ETag
	}
	if result.LastModified != "" {
		v.LastModified = result.LastModified
	}
	r.validators[src.Name] = v
	if result.NotModified {
		return r.cached[src.Name], nil
	}

	parse := src.Parse
	if parse == nil {
		parse = ParseRegion
	}
	days, err := parse(result.Body, src.Group, r.store.Location())
	if err != nil {
		return nil, err
	}
	r.cached[src.Name] = days
	return days, nil
}

func hasDayFor(days []Day, t time.Time, loc *time.Location) bool {
	midnight := Midnight(t, loc)
	for _, d := range days {
		if d.Date.Equal(midnight) && d.Complete() {
			return true
		}
	}
	return false
}
