package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/SignalScanner/internal/signals"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scanner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30*time.Second, cfg.Scanner.Interval)
	assert.Equal(t, 10, cfg.Lifecycle.Capacity)
	assert.Equal(t, 10.0, cfg.Lifecycle.AdmissionMargin)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 5*time.Minute, cfg.HTTP.HealthStaleAfter)
	assert.Equal(t, []string{"admitted", "outcome"}, cfg.Telegram.Events)
	assert.True(t, cfg.Telegram.Commands)
	assert.Equal(t, "prediction-events", cfg.Kafka.Topic)
	assert.Equal(t, "memory", cfg.ResolvedSentimentStore())
	assert.False(t, cfg.Database.Enabled())
}

func TestLoadOverlayAndEnv(t *testing.T) {
	path := writeFile(t, `
scanner:
  symbols: [BTC/USD, ETH/USD]
  interval: 1m
lifecycle:
  admission_margin: 12.5
signals:
  weights:
    MACD: 1.5
confidence:
  timeframe_weights:
    4h: 3
telegram:
  commands: false
`)
	t.Setenv("SCANNER_CONFIG_FILE", path)
	t.Setenv("TWELVE_API_KEY", "key")
	t.Setenv("ACTIVE_SET_CAPACITY", "15")
	t.Setenv("TIMEFRAMES", "5min, 1h")
	t.Setenv("TELEGRAM_CHAT_IDS", "1, 2")
	t.Setenv("DB_HOST", "db.local")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC/USD", "ETH/USD"}, cfg.Scanner.Symbols)
	assert.Equal(t, time.Minute, cfg.Scanner.Interval)
	assert.Equal(t, 12.5, cfg.Lifecycle.AdmissionMargin)
	// untouched keys keep their defaults
	assert.Equal(t, 50.0, cfg.Lifecycle.MinConfidence)
	assert.Equal(t, 1.5, cfg.Signals.Weights[signals.MACD])
	assert.Equal(t, 1.0, cfg.Signals.Weights[signals.RSI])
	assert.Equal(t, 3.0, cfg.Confidence.TimeframeWeights["4h"])
	assert.Equal(t, 1.5, cfg.Confidence.TimeframeWeights["1h"])
	assert.False(t, cfg.Telegram.Commands)

	assert.Equal(t, "key", cfg.TwelveData.APIKey)
	assert.Equal(t, 15, cfg.Lifecycle.Capacity)
	assert.Equal(t, []string{"5min", "1h"}, cfg.Scanner.Timeframes)
	assert.Equal(t, []int64{1, 2}, cfg.Telegram.ChatIDs)
	assert.Equal(t, "postgres", cfg.ResolvedSentimentStore())
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		yaml string
	}{
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "loud"}},
		{name: "unknown timeframe", env: map[string]string{"TIMEFRAMES": "3min"}},
		{name: "zero capacity", env: map[string]string{"ACTIVE_SET_CAPACITY": "0"}},
		{name: "bad chat id", env: map[string]string{"TELEGRAM_CHAT_IDS": "abc"}},
		{name: "redis store without addr", env: map[string]string{"SENTIMENT_STORE": "redis"}},
		{name: "weight out of bounds", yaml: "signals:\n  weights:\n    RSI: 5\n"},
		{name: "inverted duration band", yaml: "lifecycle:\n  min_duration: 5h\n"},
		{name: "bad event", yaml: "telegram:\n  events: [everything]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if tt.yaml != "" {
				t.Setenv("SCANNER_CONFIG_FILE", writeFile(t, tt.yaml))
			}
			_, err := Load()
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("SCANNER_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("X_INT", "nope")
	t.Setenv("X_DUR", "90s")
	t.Setenv("X_LIST", " , ")
	t.Setenv("X_BOOL", "yes")

	assert.Equal(t, 7, getEnvIntWithDefault("X_INT", 7))
	assert.Equal(t, 90*time.Second, getEnvDurationWithDefault("X_DUR", time.Second))
	assert.Equal(t, []string{"a"}, getEnvListWithDefault("X_LIST", []string{"a"}))
	assert.True(t, getEnvBoolWithDefault("X_BOOL", false))
	assert.Equal(t, "d", getEnvWithDefault("X_MISSING", "d"))
}
