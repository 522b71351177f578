package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ykhomyn/power-sentinel/internal/deviation"
	"github.com/ykhomyn/power-sentinel/internal/transition"
)

const defaultTelegramAPIBase = "https://api.telegram.org"

// TelegramNotifier sends transition events to a Telegram chat through the
// bot sendMessage API.
type TelegramNotifier struct {
	logger  zerolog.Logger
	chatID  string
	loc     *time.Location
	apiBase string
	timing  timingConfig
	poster  *httpPoster
}

// TelegramOption customizes TelegramNotifier behavior.
type TelegramOption func(*TelegramNotifier)

// WithTelegramTiming overrides timing parameters (primarily for testing).
func WithTelegramTiming(rateInterval time.Duration, rateBurst int, backoffInitial, backoffMax, backoffMaxElapsed time.Duration) TelegramOption {
	return func(t *TelegramNotifier) {
		t.timing.rateInterval = rateInterval
		t.timing.rateBurst = rateBurst
		t.timing.backoffInitial = backoffInitial
		t.timing.backoffMax = backoffMax
		t.timing.backoffMaxElapsed = backoffMaxElapsed
	}
}

// WithTelegramAPIBase overrides the API base URL (for testing).
func WithTelegramAPIBase(base string) TelegramOption {
	return func(t *TelegramNotifier) {
		t.apiBase = base
	}
}

// NewTelegramNotifier creates a Telegram notifier or a noop notifier when
// the token or chat ID is empty.
func NewTelegramNotifier(logger zerolog.Logger, token, chatID string, loc *time.Location, opts ...TelegramOption) Notifier {
	if token == "" || chatID == "" {
		return NewNoop(logger, "telegram not configured; notifications disabled")
	}

	notifier := &TelegramNotifier{
		logger:  logger,
		chatID:  chatID,
		loc:     loc,
		apiBase: defaultTelegramAPIBase,
		timing:  defaultTiming,
	}
	for _, opt := range opts {
		opt(notifier)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", notifier.apiBase, token)
	notifier.poster = newHTTPPoster(logger, "telegram", endpoint, "application/json", notifier.timing)

	return notifier
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// Notify implements Notifier.
func (n *TelegramNotifier) Notify(ctx context.Context, event transition.Event) error {
	if err := n.poster.waitForRateLimit(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(telegramMessage{
		ChatID:    n.chatID,
		Text:      buildTelegramText(event, n.loc),
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}
	if err := n.poster.postWithRetry(ctx, payload); err != nil {
		return err
	}

	n.logger.Debug().
		Str("type", string(event.Type)).
		Msg("telegram notification sent")

	return nil
}

func buildTelegramText(event transition.Event, loc *time.Location) string {
	timeOfDay := event.Timestamp.In(loc).Format("15:04")
	up := event.Type == transition.TypeUp

	var b strings.Builder
	if up {
		fmt.Fprintf(&b, "🟢 <b>%s Power restored</b>\n\n", timeOfDay)
	} else {
		fmt.Fprintf(&b, "🔴 <b>%s Power lost!</b>\n\n", timeOfDay)
	}

	b.WriteString("📊 <b>Outage summary:</b>\n")
	prior := "unknown"
	if event.PriorKnown {
		prior = formatDuration(event.PriorDuration)
	}
	if up {
		fmt.Fprintf(&b, "• Power was out: <b>%s</b>\n", prior)
	} else {
		fmt.Fprintf(&b, "• Power was on: <b>%s</b>\n", prior)
	}
	if event.Deviation.Matched {
		fmt.Fprintf(&b, "• Accuracy: %s\n", event.Deviation.Label)
	}

	b.WriteString("\n🗓 <b>Schedule:</b>\n")
	if event.Deviation.Matched {
		scheduled := event.Deviation.ScheduledAt.In(loc).Format("15:04")
		if up {
			fmt.Fprintf(&b, "• Scheduled switch-on: <b>%s</b>\n", scheduled)
		} else {
			fmt.Fprintf(&b, "• Scheduled switch-off: <b>%s</b>\n", scheduled)
		}
	}
	if event.NextChange != "" {
		if up {
			fmt.Fprintf(&b, "• Next outage expected: <b>%s</b>", event.NextChange)
		} else {
			fmt.Fprintf(&b, "• Power expected back: <b>%s</b>", event.NextChange)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	if minutes < 0 {
		minutes = 0
	}
	if minutes == 0 {
		return "0m"
	}
	return deviation.FormatDelta(minutes)
}
