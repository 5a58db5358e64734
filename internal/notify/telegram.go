package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Alias1177/SignalScanner/models"
)

// Sender is the part of *tgbotapi.BotAPI used for outgoing messages
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ChatSource lists the chats subscribed to notifications
type ChatSource interface {
	ActiveChatIDs(ctx context.Context) ([]int64, error)
}

// TelegramOptions configure the Telegram notifier
type TelegramOptions struct {
	// fixed chats notified in addition to subscribers
	ChatIDs []int64
	// event types to send; empty means all
	Events []models.EventType
	// Telegram allows about 30 messages per second per bot
	MessagesPerSec int
}

// Telegram sends lifecycle events to Telegram chats
type Telegram struct {
	sender  Sender
	chats   ChatSource
	static  []int64
	events  map[models.EventType]bool
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewTelegram creates a notifier. chats may be nil when only fixed chat IDs are used.
func NewTelegram(sender Sender, chats ChatSource, opts TelegramOptions) *Telegram {
	if opts.MessagesPerSec <= 0 {
		opts.MessagesPerSec = 20
	}
	var events map[models.EventType]bool
	if len(opts.Events) > 0 {
		events = make(map[models.EventType]bool, len(opts.Events))
		for _, e := range opts.Events {
			events[e] = true
		}
	}
	return &Telegram{
		sender:  sender,
		chats:   chats,
		static:  opts.ChatIDs,
		events:  events,
		limiter: rate.NewLimiter(rate.Limit(opts.MessagesPerSec), 1),
		logger:  log.With().Str("component", "telegram_notifier").Logger(),
	}
}

// Notify formats the event and sends it to every chat
func (t *Telegram) Notify(ctx context.Context, event models.LifecycleEvent) error {
	if t.events != nil && !t.events[event.Type] {
		return nil
	}
	_, failed, err := t.Broadcast(ctx, FormatEvent(event))
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("telegram: %d messages failed", failed)
	}
	return nil
}

// Broadcast sends text to every chat and reports how many deliveries failed
func (t *Telegram) Broadcast(ctx context.Context, text string) (sent, failed int, err error) {
	ids, err := t.recipients(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, id := range ids {
		if err := t.limiter.Wait(ctx); err != nil {
			return sent, failed, err
		}
		msg := tgbotapi.NewMessage(id, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := t.sender.Send(msg); err != nil {
			t.logger.Error().Err(err).Int64("chat_id", id).Msg("Failed to send message")
			failed++
			continue
		}
		sent++
	}
	return sent, failed, nil
}

func (t *Telegram) recipients(ctx context.Context) ([]int64, error) {
	seen := make(map[int64]bool, len(t.static))
	var ids []int64
	add := func(id int64) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range t.static {
		add(id)
	}
	if t.chats != nil {
		subscribed, err := t.chats.ActiveChatIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading subscribers: %w", err)
		}
		for _, id := range subscribed {
			add(id)
		}
	}
	return ids, nil
}

// FormatEvent renders a lifecycle event as a Markdown message
func FormatEvent(event models.LifecycleEvent) string {
	p := event.Prediction
	if p == nil {
		return fmt.Sprintf("*%s*", event.Type)
	}

	var b strings.Builder
	switch event.Type {
	case models.EventAdmitted:
		fmt.Fprintf(&b, "%s *%s %s*\n", arrow(p.Direction), strings.ToUpper(string(p.Direction)), p.Symbol)
		fmt.Fprintf(&b, "Confidence: %.1f%%\n", p.Confidence)
		fmt.Fprintf(&b, "Score: %.2f (%d indicators)\n", p.Score, p.IndicatorCount)
		fmt.Fprintf(&b, "Entry: %s\n", formatPrice(p.EntryPrice))
		fmt.Fprintf(&b, "Valid for: %s (until %s UTC)\n", p.EstimatedRun().Round(time.Minute), p.ExpiresAt.UTC().Format("15:04"))
		if p.Sizing != nil && p.Sizing.SuggestedSize > 0 {
			fmt.Fprintf(&b, "Size: %.2f%% of account, max risk %.2f%%\n", p.Sizing.SuggestedSize*100, p.Sizing.MaxRisk*100)
		}
		if top := topIndicators(p.Breakdown, 3); len(top) > 0 {
			fmt.Fprintf(&b, "Top: %s\n", strings.Join(top, ", "))
		}
	case models.EventOutcome:
		o := event.Outcome
		if o == nil {
			return fmt.Sprintf("*%s %s* closed", p.Symbol, p.Direction)
		}
		result := "✅"
		if o.PnLPercent < 0 {
			result = "❌"
		}
		fmt.Fprintf(&b, "%s *%s %s closed*\n", result, o.Symbol, strings.ToUpper(string(o.Direction)))
		fmt.Fprintf(&b, "Entry %s → exit %s\n", formatPrice(o.EntryPrice), formatPrice(o.ExitPrice))
		fmt.Fprintf(&b, "PnL: %+.2f%%\n", o.PnLPercent)
	case models.EventEvicted:
		fmt.Fprintf(&b, "♻️ *%s %s* replaced by a stronger signal (confidence %.1f%%)\n",
			p.Symbol, strings.ToUpper(string(p.Direction)), p.Confidence)
	case models.EventDropped:
		fmt.Fprintf(&b, "⚠️ *%s %s* expired without an exit price\n", p.Symbol, strings.ToUpper(string(p.Direction)))
	default:
		fmt.Fprintf(&b, "*%s* %s\n", event.Type, p.Symbol)
	}
	return strings.TrimRight(b.String(), "\n")
}

func arrow(d models.Direction) string {
	if d == models.DirectionShort {
		return "🔻"
	}
	return "🔺"
}

func formatPrice(p float64) string {
	if p < 10 {
		return fmt.Sprintf("%.5f", p)
	}
	return fmt.Sprintf("%.2f", p)
}

// topIndicators returns the n breakdown entries with the largest contribution
func topIndicators(breakdown map[string]float64, n int) []string {
	keys := make([]string, 0, len(breakdown))
	for k := range breakdown {
		if strings.HasPrefix(k, "diag_") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if breakdown[keys[i]] != breakdown[keys[j]] {
			return breakdown[keys[i]] > breakdown[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// Multi fans an event out to several notifiers
type Multi []models.Notifier

func (m Multi) Notify(ctx context.Context, event models.LifecycleEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
