package twelvedata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/SignalScanner/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientOptions{APIKey: "test-key", BaseURL: srv.URL, RequestsPerSec: 100})
}

func TestGetCandles(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/time_series", r.URL.Path)
		assert.Equal(t, "BTC/USD", r.URL.Query().Get("symbol"))
		assert.Equal(t, "15min", r.URL.Query().Get("interval"))
		assert.Equal(t, "50", r.URL.Query().Get("outputsize"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))

		_, _ = w.Write([]byte(`{
			"meta": {"symbol": "BTC/USD", "interval": "15min"},
			"values": [
				{"datetime": "2026-01-01 10:15:00", "open": "101", "high": "103", "low": "100", "close": "102", "volume": "7"},
				{"datetime": "2026-01-01 10:00:00", "open": "100", "high": "102", "low": "99", "close": "101", "volume": "5"}
			],
			"status": "ok"
		}`))
	})

	candles, err := c.GetCandles(context.Background(), "BTC/USD", "15min", 50)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, "2026-01-01 10:00:00", candles[0].Datetime)
	assert.Equal(t, 101.0, candles[0].Close)
	assert.Equal(t, int64(7), candles[1].Volume)
}

func TestGetCandlesUnavailable(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty values", `{"values": [], "status": "ok"}`},
		{"unknown symbol", `{"code": 400, "message": "symbol not found", "status": "error"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.GetCandles(context.Background(), "NOPE", "1h", 10)
			assert.ErrorIs(t, err, models.ErrDataUnavailable)
		})
	}
}

func TestGetCandlesAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code": 401, "message": "bad key", "status": "error"}`))
	})
	_, err := c.GetCandles(context.Background(), "BTC/USD", "1h", 10)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrDataUnavailable)
}

func TestGetPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/price", r.URL.Path)
		if r.URL.Query().Get("symbol") == "EUR/USD" {
			_, _ = w.Write([]byte(`{"price": "1.08450"}`))
			return
		}
		_, _ = w.Write([]byte(`{"price": "0"}`))
	})

	price, err := c.GetPrice(context.Background(), "EUR/USD")
	require.NoError(t, err)
	assert.Equal(t, 1.0845, price)

	_, err = c.GetPrice(context.Background(), "XXX")
	assert.ErrorIs(t, err, models.ErrDataUnavailable)
}
