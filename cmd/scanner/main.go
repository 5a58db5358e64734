package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/SignalScanner/internal/api/twelvedata"
	"github.com/Alias1177/SignalScanner/internal/cache"
	"github.com/Alias1177/SignalScanner/internal/config"
	"github.com/Alias1177/SignalScanner/internal/database"
	"github.com/Alias1177/SignalScanner/internal/events"
	"github.com/Alias1177/SignalScanner/internal/lifecycle"
	"github.com/Alias1177/SignalScanner/internal/metrics"
	"github.com/Alias1177/SignalScanner/internal/notify"
	"github.com/Alias1177/SignalScanner/internal/scanner"
	"github.com/Alias1177/SignalScanner/internal/scoring"
	"github.com/Alias1177/SignalScanner/internal/sentiment"
	"github.com/Alias1177/SignalScanner/internal/server"
	"github.com/Alias1177/SignalScanner/internal/signals"
	"github.com/Alias1177/SignalScanner/internal/trading/risk"
	"github.com/Alias1177/SignalScanner/models"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// 2. Configure logging
	cfg.Log.Setup()
	log.Info().
		Strs("symbols", cfg.Scanner.Symbols).
		Strs("timeframes", cfg.Scanner.Timeframes).
		Int("capacity", cfg.Lifecycle.Capacity).
		Msg("Starting signal scanner")

	// 3. Storage
	var db *database.DB
	if cfg.Database.Enabled() {
		db, err = database.New(ctx, database.ConnectionParams{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.Name,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer db.Close()
	}

	var store models.SentimentStore
	switch cfg.ResolvedSentimentStore() {
	case "postgres":
		store = db
	case "redis":
		rs, err := cache.NewSentimentStore(ctx,
			cache.WithAddr(cfg.Redis.Addr),
			cache.WithPassword(cfg.Redis.Password),
			cache.WithDB(cfg.Redis.DB),
			cache.WithPrefix(cfg.Redis.Prefix),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rs.Close()
		store = rs
	default:
		log.Warn().Msg("No sentiment store configured, card counts reset on restart")
	}

	// 4. Market data and signals. The scanner retries whole source calls,
	// so the client does not retry on its own.
	market := twelvedata.NewClient(twelvedata.ClientOptions{
		APIKey:          cfg.TwelveData.APIKey,
		BaseURL:         cfg.TwelveData.BaseURL,
		RequestTimeout:  cfg.TwelveData.RequestTimeout,
		RequestsPerSec:  cfg.TwelveData.RequestsPerSec,
		MaxRetries:      0,
		MaxRetryTimeout: cfg.TwelveData.MaxRetryTimeout,
	})
	source, err := signals.NewSource(market, cfg.Signals)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create signal source")
	}

	// 5. Scoring, lifecycle and sizing
	engine, err := scoring.NewEngine(cfg.Scoring)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid scoring config")
	}
	estimator, err := scoring.NewEstimator(cfg.Confidence)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid confidence config")
	}
	manager, err := lifecycle.NewManager(cfg.Lifecycle, sentiment.NewLedger(store, cfg.Scanner.PersistTimeout))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid lifecycle config")
	}
	sizer, err := risk.NewCalculator(cfg.Risk)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid risk config")
	}

	// 6. Notifications
	var notifiers notify.Multi
	var bot *tgbotapi.BotAPI
	if cfg.Telegram.Enabled() {
		bot, err = tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Telegram bot")
		}
		log.Info().Str("username", bot.Self.UserName).Msg("Authorized on Telegram")

		var chats notify.ChatSource
		if db != nil {
			chats = db
		}
		eventTypes := make([]models.EventType, 0, len(cfg.Telegram.Events))
		for _, e := range cfg.Telegram.Events {
			eventTypes = append(eventTypes, models.EventType(e))
		}
		notifiers = append(notifiers, notify.NewTelegram(bot, chats, notify.TelegramOptions{
			ChatIDs:        cfg.Telegram.ChatIDs,
			Events:         eventTypes,
			MessagesPerSec: cfg.Telegram.MessagesPerSec,
		}))
	}
	if cfg.Kafka.Enabled() {
		publisher, err := events.NewPublisher(
			events.WithBrokers(cfg.Kafka.Brokers),
			events.WithTopic(cfg.Kafka.Topic),
			events.WithWriteTimeout(cfg.Kafka.WriteTimeout),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Kafka publisher")
		}
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
	}

	// 7. Scanner
	recorder := metrics.New(nil)
	deps := scanner.Deps{
		Signals:    source,
		Prices:     source,
		Volatility: source,
		Engine:     engine,
		Estimator:  estimator,
		Manager:    manager,
		Sizer:      sizer,
		Metrics:    recorder,
	}
	if db != nil {
		deps.Log = db
	}
	if len(notifiers) > 0 {
		deps.Notifier = notifiers
	}
	sc, err := scanner.New(cfg.Scanner, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scanner")
	}
	if err := sc.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scanner")
	}

	// 8. Control surface
	serverDeps := server.Deps{
		Scanner: sc,
		Weights: source,
		Metrics: recorder.Handler(),
	}
	if db != nil {
		serverDeps.History = db
	}
	srv, err := server.New(serverDeps,
		server.WithAddr(cfg.HTTP.Host, cfg.HTTP.Port),
		server.WithHealth(cfg.HTTP.HealthMaxErrors, cfg.HTTP.HealthStaleAfter),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create HTTP server")
	}
	srv.Start()

	if bot != nil && cfg.Telegram.Commands {
		if db == nil {
			log.Warn().Msg("Telegram commands need a database for subscriptions, skipping")
		} else {
			go notify.NewBot(bot, db, sc).Run(ctx, bot)
		}
	}

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	done := make(chan struct{})
	go func() {
		sc.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cfg.Scanner.SourceTimeout * time.Duration(cfg.Scanner.RetryAttempts+2)):
		log.Warn().Msg("Scanner did not stop in time")
	}
	log.Info().Msg("Scanner stopped")
}
