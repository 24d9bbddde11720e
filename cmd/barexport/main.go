package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"charty-feed/internal/app"
	"charty-feed/internal/cfg"
	"charty-feed/internal/export"
	"charty-feed/internal/marketdata"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		symbol     = flag.String("symbol", "", "Contract id to export (overrides config)")
		timeframe  = flag.String("timeframe", "", "Timeframe: 5m, 15m or 60m (overrides config)")
		source     = flag.String("source", "", "History source: mock or rest (overrides config)")
		outputPath = flag.String("output", "export", "Output directory")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *symbol != "" {
		config.Symbol = *symbol
	}
	if *timeframe != "" {
		if !marketdata.KnownTimeframe(*timeframe) {
			log.Fatal().Str("timeframe", *timeframe).Msg("Unknown timeframe")
		}
		config.Timeframe = *timeframe
	}
	if *source != "" {
		config.HistorySource = *source
	}

	fetcher, err := app.NewHistoryFetcher(config)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create history source")
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.RESTTimeout+5*time.Second)
	defer cancel()

	start := time.Now()
	candles, err := fetcher.Fetch(ctx, config.Symbol, config.Timeframe)
	if err != nil {
		log.Fatal().Err(err).Str("symbol", config.Symbol).Msg("Failed to fetch history")
	}
	log.Info().Str("symbol", config.Symbol).Str("timeframe", config.Timeframe).
		Int("bars", len(candles)).Dur("took", time.Since(start)).Msg("History fetched")

	reporter := export.NewReporter(config.Symbol, config.Timeframe, candles, *outputPath)
	if err := reporter.GenerateReport(); err != nil {
		log.Fatal().Err(err).Msg("Failed to generate report")
	}

	fmt.Println()
	if err := reporter.PrintSummary(os.Stdout); err != nil {
		log.Error().Err(err).Msg("Failed to print summary")
	}
}
