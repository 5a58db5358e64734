package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/Alias1177/SignalScanner/internal/lifecycle"
	"github.com/Alias1177/SignalScanner/internal/scanner"
	"github.com/Alias1177/SignalScanner/internal/scoring"
	"github.com/Alias1177/SignalScanner/internal/signals"
	"github.com/Alias1177/SignalScanner/internal/trading/risk"
	"github.com/Alias1177/SignalScanner/models"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config holds all application configuration
type Config struct {
	TwelveData TwelveDataConfig `yaml:"twelve_data"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
	// where the sentiment ledger persists: auto picks postgres, then redis, then memory
	SentimentStore string `yaml:"sentiment_store" default:"auto" validate:"oneof=auto postgres redis memory"`

	Scanner    scanner.Config           `yaml:"scanner"`
	Signals    signals.Config           `yaml:"signals"`
	Scoring    scoring.Config           `yaml:"scoring"`
	Confidence scoring.ConfidenceConfig `yaml:"confidence"`
	Lifecycle  lifecycle.Config         `yaml:"lifecycle"`
	Risk       risk.Config              `yaml:"risk"`
}

type TwelveDataConfig struct {
	APIKey          string        `yaml:"-"`
	BaseURL         string        `yaml:"base_url" default:"https://api.twelvedata.com"`
	RequestTimeout  time.Duration `yaml:"request_timeout" default:"30s"`
	RequestsPerSec  int           `yaml:"requests_per_sec" default:"5" validate:"gte=1"`
	// HTTP retries for one-shot tools; the scanner service retries per
	// source call instead (scanner.retry_attempts)
	MaxRetries      int           `yaml:"max_retries" default:"3" validate:"gte=0"`
	MaxRetryTimeout time.Duration `yaml:"max_retry_timeout" default:"30s"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port" default:"5432"`
	User     string `yaml:"user" default:"postgres"`
	Password string `yaml:"-"`
	Name     string `yaml:"name" default:"scanner"`
	SSLMode  string `yaml:"ssl_mode" default:"disable" validate:"oneof=disable require verify-ca verify-full"`
}

// Enabled reports whether a database host is configured
func (c DatabaseConfig) Enabled() bool { return c.Host != "" }

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"-"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Prefix   string `yaml:"prefix" default:"scanner"`
}

func (c RedisConfig) Enabled() bool { return c.Addr != "" }

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic" default:"prediction-events"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
}

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

type TelegramConfig struct {
	BotToken string  `yaml:"-"`
	ChatIDs  []int64 `yaml:"chat_ids"`
	// event types sent to chats; admitted and outcome by default
	Events         []string `yaml:"events" default:"[\"admitted\",\"outcome\"]" validate:"dive,oneof=admitted evicted outcome dropped"`
	MessagesPerSec int      `yaml:"messages_per_sec" default:"20" validate:"gte=1"`
	// run the command bot (/start, /stop, /status, /predictions)
	Commands bool `yaml:"commands" default:"true"`
}

func (c TelegramConfig) Enabled() bool { return c.BotToken != "" }

type HTTPConfig struct {
	Host             string        `yaml:"host" default:"0.0.0.0"`
	Port             int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" default:"10s"`
	HealthMaxErrors  int64         `yaml:"health_max_errors" default:"10" validate:"gte=0"`
	HealthStaleAfter time.Duration `yaml:"health_stale_after" default:"5m"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" default:"console" validate:"oneof=console json"`
}

// Setup configures the global zerolog logger
func (c LogConfig) Setup() {
	lvl, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if c.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl)
}

// Default returns the built-in configuration
func Default() (*Config, error) {
	cfg := &Config{
		Scanner:    scanner.DefaultConfig(),
		Signals:    signals.DefaultConfig(),
		Scoring:    scoring.DefaultConfig(),
		Confidence: scoring.DefaultConfidenceConfig(),
		Lifecycle:  lifecycle.DefaultConfig(),
		Risk:       risk.DefaultConfig(),
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("setting defaults: %w", err)
	}
	return cfg, nil
}

// Load builds the configuration from defaults, the optional YAML file named
// by SCANNER_CONFIG_FILE and environment variables, in that order.
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path := os.Getenv("SCANNER_CONFIG_FILE"); path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlay reads a YAML file over the current values. Keys missing from the
// file keep their value; indicator weights and timeframe weights merge.
func (c *Config) overlay(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.TwelveData.APIKey = os.Getenv("TWELVE_API_KEY")
	c.TwelveData.BaseURL = getEnvWithDefault("TWELVE_BASE_URL", c.TwelveData.BaseURL)
	c.TwelveData.RequestsPerSec = getEnvIntWithDefault("REQUESTS_PER_SEC", c.TwelveData.RequestsPerSec)
	c.TwelveData.RequestTimeout = getEnvDurationWithDefault("REQUEST_TIMEOUT", c.TwelveData.RequestTimeout)

	c.Scanner.Symbols = getEnvListWithDefault("SYMBOLS", c.Scanner.Symbols)
	c.Scanner.Timeframes = getEnvListWithDefault("TIMEFRAMES", c.Scanner.Timeframes)
	c.Scanner.Interval = getEnvDurationWithDefault("SCAN_INTERVAL", c.Scanner.Interval)
	c.Scanner.SourceTimeout = getEnvDurationWithDefault("SOURCE_TIMEOUT", c.Scanner.SourceTimeout)
	c.Scanner.RetryAttempts = getEnvIntWithDefault("RETRY_ATTEMPTS", c.Scanner.RetryAttempts)

	c.Signals.Params.Adaptive = getEnvBoolWithDefault("ADAPTIVE_INDICATOR", c.Signals.Params.Adaptive)

	c.Lifecycle.Capacity = getEnvIntWithDefault("ACTIVE_SET_CAPACITY", c.Lifecycle.Capacity)
	c.Lifecycle.AdmissionMargin = getEnvFloatWithDefault("ADMISSION_MARGIN", c.Lifecycle.AdmissionMargin)
	c.Lifecycle.MinConfidence = getEnvFloatWithDefault("MIN_CONFIDENCE", c.Lifecycle.MinConfidence)
	c.Lifecycle.SkewGuardEnabled = getEnvBoolWithDefault("SKEW_GUARD", c.Lifecycle.SkewGuardEnabled)

	c.Risk.KellyMultiplier = getEnvFloatWithDefault("KELLY_MULTIPLIER", c.Risk.KellyMultiplier)
	c.Risk.MaxPositionSize = getEnvFloatWithDefault("MAX_POSITION_SIZE", c.Risk.MaxPositionSize)

	c.Database.Host = getEnvWithDefault("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvWithDefault("DB_PORT", c.Database.Port)
	c.Database.User = getEnvWithDefault("DB_USER", c.Database.User)
	c.Database.Password = os.Getenv("DB_PASSWORD")
	c.Database.Name = getEnvWithDefault("DB_NAME", c.Database.Name)
	c.Database.SSLMode = getEnvWithDefault("DB_SSLMODE", c.Database.SSLMode)

	c.Redis.Addr = getEnvWithDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.DB = getEnvIntWithDefault("REDIS_DB", c.Redis.DB)
	c.SentimentStore = getEnvWithDefault("SENTIMENT_STORE", c.SentimentStore)

	c.Kafka.Brokers = getEnvListWithDefault("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.Topic = getEnvWithDefault("KAFKA_TOPIC", c.Kafka.Topic)

	c.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if raw := os.Getenv("TELEGRAM_CHAT_IDS"); raw != "" {
		ids, err := parseChatIDs(raw)
		if err != nil {
			return err
		}
		c.Telegram.ChatIDs = ids
	}

	c.HTTP.Port = getEnvIntWithDefault("HTTP_PORT", c.HTTP.Port)
	c.HTTP.HealthMaxErrors = int64(getEnvIntWithDefault("HEALTH_MAX_ERRORS", int(c.HTTP.HealthMaxErrors)))
	c.HTTP.HealthStaleAfter = getEnvDurationWithDefault("HEALTH_STALE_AFTER", c.HTTP.HealthStaleAfter)

	c.Log.Level = getEnvWithDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvWithDefault("LOG_FORMAT", c.Log.Format)
	return nil
}

func parseChatIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: TELEGRAM_CHAT_IDS entry %q: %v", ErrInvalidConfig, part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Validate runs the struct tag checks and every section's own validation
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	checks := []func() error{
		c.Scanner.Validate,
		c.Scoring.Validate,
		c.Confidence.Validate,
		c.Lifecycle.Validate,
		c.Risk.Validate,
		c.Signals.Weights.Validate,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	for _, tf := range append([]string{c.Signals.BaseTimeframe}, c.Scanner.Timeframes...) {
		if models.TimeframeDuration(tf) == 0 {
			return fmt.Errorf("%w: unsupported timeframe %q", ErrInvalidConfig, tf)
		}
	}
	if c.SentimentStore == "postgres" && !c.Database.Enabled() {
		return fmt.Errorf("%w: sentiment_store postgres needs DB_HOST", ErrInvalidConfig)
	}
	if c.SentimentStore == "redis" && !c.Redis.Enabled() {
		return fmt.Errorf("%w: sentiment_store redis needs REDIS_ADDR", ErrInvalidConfig)
	}
	return nil
}

// ResolvedSentimentStore turns "auto" into the concrete backend
func (c *Config) ResolvedSentimentStore() string {
	if c.SentimentStore != "auto" {
		return c.SentimentStore
	}
	switch {
	case c.Database.Enabled():
		return "postgres"
	case c.Redis.Enabled():
		return "redis"
	}
	return "memory"
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvListWithDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
