package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/SignalScanner/models"
)

// Subscriptions stores which chats receive notifications
type Subscriptions interface {
	AddSubscriber(ctx context.Context, chatID int64) error
	RemoveSubscriber(ctx context.Context, chatID int64) error
}

// StatusProvider is the read side of the scanner used by bot commands
type StatusProvider interface {
	Active() []*models.Prediction
	Status() models.ScannerStatus
}

// UpdatesSource is the part of *tgbotapi.BotAPI used for incoming updates
type UpdatesSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot answers chat commands: /start, /stop, /status and /predictions
type Bot struct {
	sender  Sender
	subs    Subscriptions
	scanner StatusProvider
	logger  zerolog.Logger
}

func NewBot(sender Sender, subs Subscriptions, scanner StatusProvider) *Bot {
	return &Bot{
		sender:  sender,
		subs:    subs,
		scanner: scanner,
		logger:  log.With().Str("component", "telegram_bot").Logger(),
	}
}

// Run handles updates until ctx is done
func (b *Bot) Run(ctx context.Context, source UpdatesSource) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := source.GetUpdatesChan(updateConfig)
	defer source.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				b.HandleMessage(ctx, update.Message)
			}
		}
	}
}

// HandleMessage answers a single chat message
func (b *Bot) HandleMessage(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	command := strings.Fields(message.Text)
	if len(command) == 0 {
		return
	}

	var reply string
	switch command[0] {
	case "/start":
		if err := b.subs.AddSubscriber(ctx, chatID); err != nil {
			b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Error adding subscriber")
			reply = "Sorry, there was an error. Please try again later."
			break
		}
		reply = "Subscribed. You will get a message for every new prediction and its outcome.\n" +
			"Commands: /predictions, /status, /stop"
	case "/stop":
		if err := b.subs.RemoveSubscriber(ctx, chatID); err != nil {
			b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("Error removing subscriber")
		}
		reply = "Unsubscribed. Send /start to subscribe again."
	case "/status":
		reply = FormatStatus(b.scanner.Status())
	case "/predictions":
		reply = FormatActive(b.scanner.Active())
	default:
		reply = "Unknown command. Try /predictions, /status, /start or /stop."
	}

	msg := tgbotapi.NewMessage(chatID, reply)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send reply")
	}
}

func FormatStatus(s models.ScannerStatus) string {
	var sb strings.Builder
	state := "stopped"
	if s.IsRunning {
		state = "running"
	}
	if s.ScanInProgress {
		state += ", scanning"
	}
	fmt.Fprintf(&sb, "*Scanner %s*\n", state)
	fmt.Fprintf(&sb, "Active predictions: %d\n", s.ActiveCount)
	fmt.Fprintf(&sb, "Symbols in last scan: %d\n", s.SymbolsScanned)
	fmt.Fprintf(&sb, "Errors: %d\n", s.ErrorCount)
	if !s.LastSuccessfulScan.IsZero() {
		fmt.Fprintf(&sb, "Last successful scan: %s UTC", s.LastSuccessfulScan.UTC().Format(time.DateTime))
	} else {
		sb.WriteString("No successful scan yet")
	}
	return sb.String()
}

func FormatActive(preds []*models.Prediction) string {
	if len(preds) == 0 {
		return "No active predictions."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%d active predictions*\n", len(preds))
	for _, p := range preds {
		fmt.Fprintf(&sb, "%s %s %s %.1f%% until %s UTC\n",
			arrow(p.Direction), p.Symbol, strings.ToUpper(string(p.Direction)),
			p.Confidence, p.ExpiresAt.UTC().Format("15:04"))
	}
	return strings.TrimRight(sb.String(), "\n")
}
