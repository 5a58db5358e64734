package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/SignalScanner/models"
)

type fakeSender struct {
	mu     sync.Mutex
	sent   []tgbotapi.MessageConfig
	failOn map[int64]bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := c.(tgbotapi.MessageConfig)
	if f.failOn[msg.ChatID] {
		return tgbotapi.Message{}, errors.New("blocked by user")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{}, nil
}

type fakeChats struct {
	ids []int64
	err error
}

func (f fakeChats) ActiveChatIDs(context.Context) ([]int64, error) {
	return f.ids, f.err
}

func admittedEvent() models.LifecycleEvent {
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	return models.LifecycleEvent{
		Type: models.EventAdmitted,
		Prediction: &models.Prediction{
			ID: "p1", Symbol: "BTC/USD", Direction: models.DirectionLong,
			Score: 2.6, Confidence: 62.5, IndicatorCount: 5, EntryPrice: 65000,
			CreatedAt: created, ExpiresAt: created.Add(90 * time.Minute),
			Breakdown: map[string]float64{
				"RSI_1h_long": 0.6, "MACD_4h_long": 0.72, "EMA_15min_long": 0.48,
				"ADX_1h_long": 0.66, "diag_raw_score": 2.6,
			},
			Sizing: &models.PositionSizing{SuggestedSize: 0.05, MaxRisk: 0.02},
		},
		At: created,
	}
}

func TestFormatEvent(t *testing.T) {
	text := FormatEvent(admittedEvent())
	assert.Contains(t, text, "LONG BTC/USD")
	assert.Contains(t, text, "Confidence: 62.5%")
	assert.Contains(t, text, "Valid for: 1h30m0s (until 11:30 UTC)")
	assert.Contains(t, text, "Size: 5.00% of account, max risk 2.00%")
	assert.Contains(t, text, "Top: MACD_4h_long, ADX_1h_long, RSI_1h_long")
	assert.NotContains(t, text, "diag_")

	ev := admittedEvent()
	ev.Type = models.EventOutcome
	ev.Outcome = &models.Outcome{Symbol: "BTC/USD", Direction: models.DirectionLong, EntryPrice: 65000, ExitPrice: 64350, PnLPercent: -1}
	text = FormatEvent(ev)
	assert.Contains(t, text, "❌")
	assert.Contains(t, text, "PnL: -1.00%")

	ev.Type = models.EventEvicted
	assert.Contains(t, FormatEvent(ev), "replaced by a stronger signal")
}

func TestTelegramNotify(t *testing.T) {
	sender := &fakeSender{}
	tg := NewTelegram(sender, fakeChats{ids: []int64{2, 3}}, TelegramOptions{ChatIDs: []int64{1, 2}, MessagesPerSec: 1000})

	require.NoError(t, tg.Notify(context.Background(), admittedEvent()))
	require.Len(t, sender.sent, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{sender.sent[0].ChatID, sender.sent[1].ChatID, sender.sent[2].ChatID})
	assert.Equal(t, tgbotapi.ModeMarkdown, sender.sent[0].ParseMode)
}

func TestTelegramNotifyFailures(t *testing.T) {
	sender := &fakeSender{failOn: map[int64]bool{2: true}}
	tg := NewTelegram(sender, nil, TelegramOptions{ChatIDs: []int64{1, 2, 3}, MessagesPerSec: 1000})

	sent, failed, err := tg.Broadcast(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, 1, failed)

	assert.Error(t, tg.Notify(context.Background(), admittedEvent()))

	broken := NewTelegram(sender, fakeChats{err: errors.New("db down")}, TelegramOptions{})
	assert.Error(t, broken.Notify(context.Background(), admittedEvent()))
}

func TestTelegramEventFilter(t *testing.T) {
	sender := &fakeSender{}
	tg := NewTelegram(sender, nil, TelegramOptions{
		ChatIDs:        []int64{1},
		Events:         []models.EventType{models.EventOutcome},
		MessagesPerSec: 1000,
	})

	require.NoError(t, tg.Notify(context.Background(), admittedEvent()))
	assert.Empty(t, sender.sent)
}

type countingNotifier struct {
	calls int
	err   error
}

func (c *countingNotifier) Notify(context.Context, models.LifecycleEvent) error {
	c.calls++
	return c.err
}

func TestMulti(t *testing.T) {
	a := &countingNotifier{}
	b := &countingNotifier{err: errors.New("kafka down")}
	c := &countingNotifier{}

	err := Multi{a, b, c}.Notify(context.Background(), admittedEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka down")
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, c.calls)

	assert.NoError(t, Multi{}.Notify(context.Background(), admittedEvent()))
}

type fakeSubs struct {
	added, removed []int64
}

func (f *fakeSubs) AddSubscriber(_ context.Context, id int64) error {
	f.added = append(f.added, id)
	return nil
}

func (f *fakeSubs) RemoveSubscriber(_ context.Context, id int64) error {
	f.removed = append(f.removed, id)
	return nil
}

type fakeStatus struct{}

func (fakeStatus) Active() []*models.Prediction {
	return []*models.Prediction{admittedEvent().Prediction}
}

func (fakeStatus) Status() models.ScannerStatus {
	return models.ScannerStatus{IsRunning: true, ActiveCount: 1, SymbolsScanned: 12}
}

func TestBotCommands(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"/start", "Subscribed"},
		{"/stop", "Unsubscribed"},
		{"/status", "Active predictions: 1"},
		{"/predictions", "BTC/USD LONG 62.5% until 11:30 UTC"},
		{"/foo", "Unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			sender := &fakeSender{}
			subs := &fakeSubs{}
			bot := NewBot(sender, subs, fakeStatus{})

			bot.HandleMessage(context.Background(), &tgbotapi.Message{Text: tt.text, Chat: &tgbotapi.Chat{ID: 42}})

			require.Len(t, sender.sent, 1)
			assert.Equal(t, int64(42), sender.sent[0].ChatID)
			assert.Contains(t, sender.sent[0].Text, tt.want)
		})
	}
}

func TestBotSubscriptions(t *testing.T) {
	subs := &fakeSubs{}
	bot := NewBot(&fakeSender{}, subs, fakeStatus{})

	bot.HandleMessage(context.Background(), &tgbotapi.Message{Text: "/start", Chat: &tgbotapi.Chat{ID: 7}})
	bot.HandleMessage(context.Background(), &tgbotapi.Message{Text: "/stop", Chat: &tgbotapi.Chat{ID: 7}})

	assert.Equal(t, []int64{7}, subs.added)
	assert.Equal(t, []int64{7}, subs.removed)
}
