package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/Alias1177/SignalScanner/internal/api/twelvedata"
	"github.com/Alias1177/SignalScanner/internal/config"
	"github.com/Alias1177/SignalScanner/internal/lifecycle"
	"github.com/Alias1177/SignalScanner/internal/scoring"
	"github.com/Alias1177/SignalScanner/internal/sentiment"
	"github.com/Alias1177/SignalScanner/internal/signals"
	"github.com/Alias1177/SignalScanner/internal/trading/risk"
	"github.com/Alias1177/SignalScanner/models"
)

func main() {
	symbol := flag.String("symbol", "", "symbol to analyze (defaults to the first configured symbol)")
	cardCount := flag.Int("sentiment", 0, "card count to score with")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	cfg.Log.Setup()
	if *symbol == "" {
		*symbol = cfg.Scanner.Symbols[0]
	}

	// 2. Setup clients and scoring
	market := twelvedata.NewClient(twelvedata.ClientOptions{
		APIKey:          cfg.TwelveData.APIKey,
		BaseURL:         cfg.TwelveData.BaseURL,
		RequestTimeout:  cfg.TwelveData.RequestTimeout,
		RequestsPerSec:  cfg.TwelveData.RequestsPerSec,
		MaxRetries:      cfg.TwelveData.MaxRetries,
		MaxRetryTimeout: cfg.TwelveData.MaxRetryTimeout,
	})
	source, err := signals.NewSource(market, cfg.Signals)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create signal source")
	}
	engine, err := scoring.NewEngine(cfg.Scoring)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid scoring config")
	}
	estimator, err := scoring.NewEstimator(cfg.Confidence)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid confidence config")
	}
	manager, err := lifecycle.NewManager(cfg.Lifecycle, sentiment.NewLedger(nil, 0))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid lifecycle config")
	}
	sizer, err := risk.NewCalculator(cfg.Risk)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid risk config")
	}

	// 3. Score
	sigs, err := source.GetSignals(ctx, *symbol, cfg.Scanner.Timeframes)
	if err != nil {
		log.Fatal().Err(err).Str("symbol", *symbol).Msg("Failed to get signals")
	}
	result := engine.Score(sigs, *cardCount)
	direction := models.DirectionFromScore(result.Score)
	confidence := estimator.Confidence(result.Score, result.IndicatorCount, sigs)
	duration := estimator.EstimateDuration(math.Abs(result.Score), scoring.AgreeingTimeframes(sigs, direction))

	fmt.Printf("===== %s =====\n", *symbol)
	fmt.Printf("Timeframes: %v\n", cfg.Scanner.Timeframes)
	fmt.Printf("Signals: %d directional\n", result.IndicatorCount)
	printBreakdown(result.Breakdown)
	fmt.Printf("\nScore: %+.3f (%s)\n", result.Score, direction)
	fmt.Printf("Confidence: %.1f%%\n", confidence)
	fmt.Printf("Duration: %s\n", duration)

	candidate := models.Candidate{
		Symbol:         *symbol,
		Direction:      direction,
		Score:          result.Score,
		Confidence:     confidence,
		IndicatorCount: result.IndicatorCount,
		Duration:       duration,
	}
	if reason := manager.Eligible(candidate); reason != lifecycle.RejectNone {
		fmt.Printf("Admission: rejected (%s)\n", reason)
	} else {
		fmt.Println("Admission: eligible")
	}
	if direction == models.DirectionNeutral {
		return
	}

	// 4. Sizing and levels
	price, err := source.GetPrice(ctx, *symbol)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get price")
	}
	volatility, err := source.GetVolatility(ctx, *symbol)
	if err != nil {
		log.Warn().Err(err).Msg("Volatility unavailable")
	}
	sizing := sizer.Size(confidence, cfg.Scanner.RiskReward, volatility, cfg.Scanner.WinRate)

	fmt.Printf("\nPrice: %.5f\n", price)
	fmt.Printf("Volatility (ATR/price): %.4f\n", volatility)
	fmt.Printf("Kelly fraction: %.4f\n", sizing.KellyFraction)
	fmt.Printf("Suggested size: %.2f%% of account, max risk %.2f%%\n", sizing.SuggestedSize*100, sizing.MaxRisk*100)

	readings, err := source.Readings(ctx, *symbol, cfg.Signals.BaseTimeframe)
	if err != nil || readings == nil {
		return
	}
	levels := sizer.Levels(price, readings.ATR, direction)
	fmt.Printf("Stop loss: %.5f | Take profit: %.5f (R:R %.1f)\n", levels.StopLoss, levels.TakeProfit, levels.RiskRewardRatio)
}

// printBreakdown lists score contributions, strongest first
func printBreakdown(breakdown map[string]float64) {
	keys := make([]string, 0, len(breakdown))
	for k := range breakdown {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return math.Abs(breakdown[keys[i]]) > math.Abs(breakdown[keys[j]])
	})
	for _, k := range keys {
		fmt.Printf("  %-28s %+.3f\n", k, breakdown[k])
	}
}
