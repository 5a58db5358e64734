package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/SignalScanner/internal/config"
	"github.com/Alias1177/SignalScanner/internal/database"
	"github.com/Alias1177/SignalScanner/internal/notify"
	"github.com/Alias1177/SignalScanner/internal/trading/performance"
)

func main() {
	days := flag.Int("days", 30, "report window in days")
	broadcast := flag.Bool("broadcast", false, "send the report to subscribers and configured chats")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	cfg.Log.Setup()

	if !cfg.Database.Enabled() {
		log.Fatal().Msg("DB_HOST not set, nothing to report on")
	}
	db, err := database.New(ctx, database.ConnectionParams{
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

	since := time.Now().AddDate(0, 0, -*days)
	outcomes, err := db.Outcomes(ctx, since)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load outcomes")
	}

	report := performance.Calculate(outcomes)
	text := report.Format()
	fmt.Println(text)

	if !*broadcast {
		return
	}
	if !cfg.Telegram.Enabled() {
		log.Fatal().Msg("TELEGRAM_BOT_TOKEN not set in environment")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Telegram bot")
	}

	tg := notify.NewTelegram(bot, db, notify.TelegramOptions{
		ChatIDs:        cfg.Telegram.ChatIDs,
		MessagesPerSec: cfg.Telegram.MessagesPerSec,
	})
	sent, failed, err := tg.Broadcast(ctx, text)
	if err != nil {
		log.Fatal().Err(err).Msg("Broadcast failed")
	}
	log.Info().Int("sent", sent).Int("failed", failed).Msg("Report broadcast complete")
}
