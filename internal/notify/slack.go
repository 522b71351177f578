package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/ykhomyn/power-sentinel/internal/transition"
)

// SlackNotifier posts transition events to a Slack incoming webhook.
type SlackNotifier struct {
	logger     zerolog.Logger
	webhookURL string
	loc        *time.Location
	timing     timingConfig
	poster     *httpPoster
}

// SlackOption customizes SlackNotifier behavior.
type SlackOption func(*SlackNotifier)

// WithSlackTiming overrides timing parameters (primarily for testing).
func WithSlackTiming(rateInterval time.Duration, rateBurst int, backoffInitial, backoffMax, backoffMaxElapsed time.Duration) SlackOption {
	return func(s *SlackNotifier) {
		s.timing.rateInterval = rateInterval
		s.timing.rateBurst = rateBurst
		s.timing.backoffInitial = backoffInitial
		s.timing.backoffMax = backoffMax
		s.timing.backoffMaxElapsed = backoffMaxElapsed
	}
}

// NewSlackNotifier creates a Slack notifier or a noop notifier when the
// webhook is empty.
func NewSlackNotifier(logger zerolog.Logger, webhookURL string, loc *time.Location, opts ...SlackOption) Notifier {
	if webhookURL == "" {
		return NewNoop(logger, "slack webhook not configured; notifications disabled")
	}

	notifier := &SlackNotifier{
		logger:     logger,
		webhookURL: webhookURL,
		loc:        loc,
		timing:     defaultTiming,
	}

	for _, opt := range opts {
		opt(notifier)
	}

	notifier.poster = newHTTPPoster(logger, "slack", webhookURL, "application/json", notifier.timing)

	return notifier
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, event transition.Event) error {
	if err := n.poster.waitForRateLimit(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(buildSlackMessage(event, n.loc))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	if err := n.poster.postWithRetry(ctx, payload); err != nil {
		return err
	}

	n.logger.Debug().
		Str("type", string(event.Type)).
		Msg("slack notification sent")

	return nil
}

func buildSlackMessage(event transition.Event, loc *time.Location) slack.WebhookMessage {
	timeOfDay := event.Timestamp.In(loc).Format("15:04")
	summary := fmt.Sprintf("%s Power restored", timeOfDay)
	if event.Type == transition.TypeDown {
		summary = fmt.Sprintf("%s Power lost", timeOfDay)
	}

	header := slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", summary, false, false))
	contextBlock := slack.NewContextBlock("",
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Observed at *%s*", event.Timestamp.In(loc).Format("2006-01-02 15:04")), false, false),
	)

	fields := make([]*slack.TextBlockObject, 0, 3)
	if event.PriorKnown {
		label := "*Outage lasted:*"
		if event.Type == transition.TypeDown {
			label = "*Uptime lasted:*"
		}
		fields = append(fields, slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("%s\n%s", label, formatDuration(event.PriorDuration)), false, false))
	}
	if event.Deviation.Label != "" {
		fields = append(fields, slack.NewTextBlockObject("mrkdwn", "*Deviation:*\n"+event.Deviation.Label, false, false))
	}
	if event.NextChange != "" {
		fields = append(fields, slack.NewTextBlockObject("mrkdwn", "*Next change:*\n"+event.NextChange, false, false))
	}

	section := slack.NewSectionBlock(
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Transition: `%s`", event.Type), false, false),
		fields, nil,
	)

	blockSet := slack.Blocks{BlockSet: []slack.Block{header, contextBlock, section}}
	return slack.WebhookMessage{
		Text:   summary,
		Blocks: &blockSet,
	}
}
