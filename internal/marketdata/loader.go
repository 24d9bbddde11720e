package marketdata

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// HistoryMetrics is implemented by metrics.MetricsWrapper.
type HistoryMetrics interface {
	HistoryObserve(d time.Duration, err error)
}

// HistoryLoader runs at most one history fetch at a time. Starting a new load
// cancels the previous one, and a cancelled or superseded load never calls
// its completion callback.
type HistoryLoader struct {
	fetcher HistoryFetcher
	metrics HistoryMetrics

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// NewHistoryLoader wraps fetcher. metrics may be nil.
func NewHistoryLoader(fetcher HistoryFetcher, metrics HistoryMetrics) *HistoryLoader {
	return &HistoryLoader{fetcher: fetcher, metrics: metrics}
}

// Load fetches symbol/timeframe in the background and hands the result to done.
// It returns the generation of this load, which done's caller can compare
// against Current to guard state it owns.
func (l *HistoryLoader) Load(symbol, timeframe string, done func([]Candle, error)) uint64 {
	ctx, cancel := context.WithCancel(context.Background())

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.gen++
	gen := l.gen
	l.cancel = cancel
	l.mu.Unlock()

	go func() {
		defer cancel()

		start := time.Now()
		candles, err := l.fetcher.Fetch(ctx, symbol, timeframe)
		if ctx.Err() != nil || !l.isCurrent(gen) {
			log.Debug().Str("symbol", symbol).Str("timeframe", timeframe).Msg("history load abandoned")
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}

		if l.metrics != nil {
			l.metrics.HistoryObserve(time.Since(start), err)
		}
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Str("timeframe", timeframe).Msg("Failed to load history")
		} else {
			log.Info().Str("symbol", symbol).Str("timeframe", timeframe).Int("candles", len(candles)).
				Dur("took", time.Since(start)).Msg("History loaded")
		}
		done(candles, err)
	}()
	return gen
}

// Current returns the generation of the most recent Load.
func (l *HistoryLoader) Current() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen
}

// Cancel abandons the in-flight load, if any.
func (l *HistoryLoader) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.gen++
}

func (l *HistoryLoader) isCurrent(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen == gen
}
