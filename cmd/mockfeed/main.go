package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"charty-feed/internal/cfg"
	"charty-feed/internal/feedserver"
	"charty-feed/internal/marketdata"
	"charty-feed/internal/metrics"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mw := metrics.NewWrapper(metrics.New())
	srv := feedserver.New(feedserver.Config{
		Addr:  c.FeedAddr,
		Tick:  c.FeedTick,
		Debug: level <= zerolog.DebugLevel,
	}, marketdata.NewMockHistory(nil, nil), mw, nil)

	log.Info().Str("addr", c.FeedAddr).Dur("tick", c.FeedTick).Msg("Starting mock feed")
	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("mock feed failed")
	}
	log.Info().Msg("mock feed stopped")
}
