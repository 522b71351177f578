package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ykhomyn/power-sentinel/internal/transition"
)

// DryRunNotifier logs transition events without sending notifications.
type DryRunNotifier struct {
	logger zerolog.Logger
	inner  Notifier
}

// NewDryRunNotifier returns a notifier that suppresses delivery and logs instead.
func NewDryRunNotifier(logger zerolog.Logger, inner Notifier) *DryRunNotifier {
	return &DryRunNotifier{logger: logger, inner: inner}
}

// Notify implements Notifier.
func (n *DryRunNotifier) Notify(_ context.Context, event transition.Event) error {
	n.logger.Info().
		Str("type", string(event.Type)).
		Time("timestamp", event.Timestamp).
		Bool("prior_known", event.PriorKnown).
		Dur("prior_duration", event.PriorDuration).
		Str("deviation", event.Deviation.Label).
		Str("next_change", event.NextChange).
		Msg("[DRY-RUN] Would notify")
	return nil
}
