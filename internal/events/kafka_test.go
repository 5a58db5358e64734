package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/SignalScanner/models"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublisherNotify(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisherWithWriter(w, "prediction-events")

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	event := models.LifecycleEvent{
		Type:       models.EventOutcome,
		Prediction: &models.Prediction{ID: "p1", Symbol: "eth/usdt", Direction: models.DirectionShort},
		Outcome:    &models.Outcome{PredictionID: "p1", PnLPercent: 1.5},
		At:         at,
	}
	require.NoError(t, p.Notify(context.Background(), event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "ETHUSDT", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "outcome", string(msg.Headers[0].Value))

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, models.EventOutcome, env.Type)
	assert.Equal(t, "p1", env.Prediction.ID)
	assert.Equal(t, 1.5, env.Outcome.PnLPercent)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublisherWriteError(t *testing.T) {
	p := NewPublisherWithWriter(&fakeWriter{err: errors.New("leader not available")}, "t")
	err := p.Notify(context.Background(), models.LifecycleEvent{Type: models.EventAdmitted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestNewPublisherRequiresBrokers(t *testing.T) {
	_, err := NewPublisher()
	assert.Error(t, err)

	p, err := NewPublisher(WithBrokers([]string{"localhost:9092"}), WithTopic("x"), WithWriteTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "x", p.topic)
}
