package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ykhomyn/power-sentinel/internal/config"
	"github.com/ykhomyn/power-sentinel/internal/coordinator"
	"github.com/ykhomyn/power-sentinel/internal/deviation"
	"github.com/ykhomyn/power-sentinel/internal/eventlog"
	"github.com/ykhomyn/power-sentinel/internal/healthcheck"
	"github.com/ykhomyn/power-sentinel/internal/logging"
	"github.com/ykhomyn/power-sentinel/internal/metrics"
	"github.com/ykhomyn/power-sentinel/internal/monitor"
	"github.com/ykhomyn/power-sentinel/internal/notify"
	"github.com/ykhomyn/power-sentinel/internal/schedule"
	"github.com/ykhomyn/power-sentinel/internal/server"
	"github.com/ykhomyn/power-sentinel/internal/state"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootstrapLogger := logging.New()
		bootstrapLogger.Fatal().Err(err).Msg("configuration error")
	}

	logger := logging.NewWithLevel(cfg.LogLevel)
	logger.Info().Msg("power-sentinel starting")

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatal().Err(err).Str("timezone", cfg.Timezone).Msg("invalid timezone")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.New()

	events := eventlog.Open(filepath.Join(cfg.DataDir, "event_log.json"), loc, logger)
	scheduleStore := schedule.NewStore(loc, logger)
	analyzer := deviation.NewAnalyzer(scheduleStore, deviation.DefaultRadius)

	stateStore := state.NewFileStore(filepath.Join(cfg.DataDir, "state.json"), logger)

	notifier := buildNotifier(logger, cfg, loc)

	mon, err := monitor.New(ctx, logger, stateStore, events, analyzer,
		monitor.WithTimeout(cfg.HeartbeatTimeout),
		monitor.WithDownBackdate(cfg.DownBackdate),
		monitor.WithGridProvider(scheduleStore),
		monitor.WithNotifier(notifier),
		monitor.WithMetrics(collector),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize monitor")
	}
	logger.Info().Str("push_url", "/api/push/"+mon.SecretKey()).Msg("heartbeat endpoint ready")

	refresher, refreshEnabled := buildRefresher(logger, cfg, scheduleStore)

	tracker := healthcheck.NewTracker()

	loops := []coordinator.Loop{
		{
			Name:     "timeout-check",
			Interval: cfg.CheckInterval,
			Task: func(ctx context.Context) error {
				started := time.Now()
				mon.CheckTimeout(ctx, time.Now())
				elapsed := time.Since(started)
				collector.ObserveCycleDuration(elapsed)
				tracker.RecordCycle(elapsed, string(mon.Status().Status))
				return nil
			},
		},
	}
	if refreshEnabled {
		loops = append(loops, coordinator.Loop{
			Name:     "schedule-refresh",
			Interval: cfg.ScheduleRefresh,
			Task: func(ctx context.Context) error {
				if err := refresher.Refresh(ctx); err != nil {
					collector.IncScheduleRefreshErrors()
					return err
				}
				collector.IncScheduleRefreshes()
				return nil
			},
		})
	}

	// The status endpoint matches the last event against the schedule with a
	// wider radius than the outage classifier so context survives long drifts.
	statusAnalyzer := deviation.NewAnalyzer(scheduleStore, 180*time.Minute)
	api := server.NewAPI(logger, mon, events, scheduleStore, loc, server.WithAnalyzer(statusAnalyzer))
	server.Start(ctx, logger, api, cfg.CheckInterval, tracker, collector, cfg.ListenPort, cfg.HealthPort, cfg.MetricsPort)

	coord := coordinator.New(logger, loops)
	if err := coord.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("coordinator exited with error")
	}

	logger.Info().Msg("power-sentinel stopped")
}

// buildNotifier assembles the notification fan-out from configuration. With
// nothing configured a logging noop stands in so transitions still leave a
// trace.
func buildNotifier(logger zerolog.Logger, cfg config.Config, loc *time.Location) notify.Notifier {
	var notifiers []notify.Notifier

	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notify.NewTelegramNotifier(logger, cfg.TelegramBotToken, cfg.TelegramChatID, loc))
	}
	if cfg.SlackWebhookURL != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(logger, cfg.SlackWebhookURL, loc))
	}
	if cfg.WebhookURL != "" {
		webhook, err := notify.NewWebhookNotifier(logger, cfg.WebhookURL, cfg.WebhookTemplate)
		if err != nil {
			logger.Error().Err(err).Msg("invalid webhook template, webhook notifications disabled")
		} else {
			notifiers = append(notifiers, webhook)
		}
	}

	var notifier notify.Notifier
	switch len(notifiers) {
	case 0:
		notifier = notify.NewNoop(logger, "no notification channels configured")
	case 1:
		notifier = notifiers[0]
	default:
		notifier = notify.NewMultiNotifier(notifiers...)
	}

	if cfg.DryRun {
		logger.Info().Msg("dry-run mode: notifications will be logged, not sent")
		return notify.NewDryRunNotifier(logger, notifier)
	}
	return notifier
}

// buildRefresher wires the schedule sources file into a refresher. Returns
// false when no sources are configured.
func buildRefresher(logger zerolog.Logger, cfg config.Config, store *schedule.Store) (*schedule.Refresher, bool) {
	mappings, err := config.LoadSourcesFile(cfg.ScheduleSourcesPath)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.ScheduleSourcesPath).Msg("failed to load schedule sources, refresh disabled")
		return nil, false
	}
	if len(mappings) == 0 {
		logger.Info().Msg("no schedule sources configured, deviation analysis will report no_schedule")
		return nil, false
	}

	sources := make([]schedule.Source, 0, len(mappings))
	for _, mapping := range mappings {
		timeout := mapping.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		fetcher, err := schedule.NewHTTPFetcher(mapping.URL, timeout, 0)
		if err != nil {
			logger.Error().Err(err).Str("source", mapping.Name).Msg("invalid schedule source, skipping")
			continue
		}
		var parse schedule.Parser = schedule.ParseRegion
		if mapping.Format == config.SourceFormatYasno {
			parse = schedule.ParseYasno
		}
		sources = append(sources, schedule.Source{
			Name:    mapping.Name,
			Group:   mapping.Group,
			Fetcher: fetcher,
			Parse:   parse,
		})
	}
	if len(sources) == 0 {
		return nil, false
	}
	return schedule.NewRefresher(logger, store, sources), true
}
