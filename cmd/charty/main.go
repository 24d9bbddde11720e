package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"charty-feed/internal/app"
	"charty-feed/internal/cfg"
	"charty-feed/internal/marketdata"
	"charty-feed/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mw := metrics.NewWrapper(metrics.New())
	startMetricsServer(ctx, c)

	a, err := app.New(c, mw)
	if err != nil {
		log.Fatal().Err(err).Msg("app init failed")
	}
	a.Start()

	go readCommands(ctx, os.Stdin, a, cancel)

	waitForShutdown(ctx)
	cancel()
	if err := a.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close settings store")
	}
	log.Info().Msg("shutdown complete")
}

func setupLogging(c cfg.Settings) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
}

// startMetricsServer serves Prometheus metrics and a health probe.
func startMetricsServer(ctx context.Context, c cfg.Settings) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown metrics server")
		}
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// readCommands drives the workspace from line commands:
//
//	symbol <id>     switch the chart to another contract
//	tf <5m|15m|60m> switch the timeframe
//	last            print the most recent bar
//	recent          list recently viewed symbols
//	quit
func readCommands(ctx context.Context, r io.Reader, a *app.App, cancel context.CancelFunc) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch cmd, args := fields[0], fields[1:]; cmd {
		case "symbol":
			if len(args) != 1 {
				fmt.Println("usage: symbol <id>")
				continue
			}
			a.Workspace.SetSymbol(args[0])
		case "tf":
			if len(args) != 1 || !marketdata.KnownTimeframe(args[0]) {
				fmt.Println("usage: tf <5m|15m|60m>")
				continue
			}
			a.Workspace.SetTimeframe(args[0])
		case "last":
			symbol, tf := a.Workspace.Selection()
			if c, ok := a.Series.Last(); ok {
				fmt.Printf("%s %s %s O:%.2f H:%.2f L:%.2f C:%.2f (%d bars)\n", symbol, tf,
					time.Unix(c.Time, 0).UTC().Format(time.DateTime), c.Open, c.High, c.Low, c.Close, a.Series.Len())
			} else {
				fmt.Printf("%s %s: no data yet\n", symbol, tf)
			}
		case "recent":
			if a.Store == nil {
				fmt.Println("persistence disabled")
				continue
			}
			symbols, err := a.Store.RecentSymbols(10)
			if err != nil {
				log.Error().Err(err).Msg("failed to read recent symbols")
				continue
			}
			fmt.Println(strings.Join(symbols, "\n"))
		case "quit", "exit":
			cancel()
			return
		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
	}
}

// waitForShutdown blocks until a signal arrives or ctx is cancelled.
func waitForShutdown(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}
	log.Info().Msg("shutting down gracefully...")
}
