package app

import (
	"errors"
	"sync"
	"time"

	"charty-feed/internal/chart"
	"charty-feed/internal/marketdata"
	"charty-feed/internal/storage"

	"github.com/rs/zerolog/log"
)

// SettingsStore persists the workspace selection.
type SettingsStore interface {
	HasSettings() (bool, error)
	LoadSettings() (storage.WorkspaceSettings, error)
	UpdateSettings(fn func(*storage.WorkspaceSettings)) (storage.WorkspaceSettings, error)
	TouchSymbol(symbol string, ts time.Time) error
}

// Subscriber is satisfied by *marketdata.Feed.
type Subscriber interface {
	Subscribe(symbol string, handler func(marketdata.Candle)) (unsubscribe func())
}

// HistorySource is satisfied by *marketdata.HistoryLoader.
type HistorySource interface {
	Load(symbol, timeframe string, done func([]marketdata.Candle, error)) uint64
	Cancel()
}

// Workspace drives one chart: changing the symbol or timeframe cancels the
// previous history load and live subscription, loads history, and then
// streams ticks into the series.
type Workspace struct {
	feed   Subscriber
	loader HistorySource
	series *chart.Series
	store  SettingsStore // optional

	mu          sync.Mutex
	symbol      string
	timeframe   string
	gen         uint64
	unsubscribe func()
	closed      bool
	ready       chan struct{} // closed once gen streams, is superseded, or the workspace closes
}

// NewWorkspace wires the collaborators. store may be nil.
func NewWorkspace(feed Subscriber, loader HistorySource, series *chart.Series, store SettingsStore) *Workspace {
	return &Workspace{feed: feed, loader: loader, series: series, store: store, ready: make(chan struct{})}
}

// Open restores the persisted selection, falling back to the given defaults
// when nothing has been saved yet.
func (w *Workspace) Open(defaultSymbol, defaultTimeframe string) {
	symbol, timeframe := defaultSymbol, defaultTimeframe
	if w.store != nil {
		if saved, _ := w.store.HasSettings(); saved {
			settings, err := w.store.LoadSettings()
			if err != nil {
				log.Warn().Err(err).Msg("Failed to load workspace settings, using defaults")
			} else {
				symbol, timeframe = settings.Symbol, settings.Timeframe
			}
		}
	}
	if symbol == "" {
		symbol = defaultSymbol
	}
	if !marketdata.KnownTimeframe(timeframe) {
		timeframe = defaultTimeframe
	}
	w.show(symbol, timeframe)
}

// SetSymbol switches the chart to symbol, keeping the timeframe.
func (w *Workspace) SetSymbol(symbol string) {
	w.mu.Lock()
	tf := w.timeframe
	w.mu.Unlock()
	w.show(symbol, tf)
}

// SetTimeframe switches the chart to timeframe, keeping the symbol.
func (w *Workspace) SetTimeframe(timeframe string) {
	w.mu.Lock()
	symbol := w.symbol
	w.mu.Unlock()
	w.show(symbol, timeframe)
}

// Selection returns the current symbol and timeframe.
func (w *Workspace) Selection() (symbol, timeframe string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.symbol, w.timeframe
}

// Ready returns a channel closed once the current selection is streaming. It
// is also closed when that selection is replaced or the workspace closes, so
// callers should re-check Selection after waking.
func (w *Workspace) Ready() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ready
}

// Series returns the chart series.
func (w *Workspace) Series() *chart.Series { return w.series }

// Close cancels loading and streaming. It is idempotent.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.gen++
	w.closeReadyLocked()
	unsubscribe := w.unsubscribe
	w.unsubscribe = nil
	w.mu.Unlock()

	w.loader.Cancel()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (w *Workspace) show(symbol, timeframe string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	unsubscribe := w.unsubscribe
	w.unsubscribe = nil
	w.symbol = symbol
	w.timeframe = timeframe
	w.gen++
	gen := w.gen
	w.closeReadyLocked()
	w.ready = make(chan struct{})
	w.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	w.persist(symbol, timeframe)

	log.Info().Str("symbol", symbol).Str("timeframe", timeframe).Msg("Loading chart")
	w.loader.Load(symbol, timeframe, func(candles []marketdata.Candle, err error) {
		w.onHistory(gen, symbol, timeframe, candles, err)
	})
}

func (w *Workspace) onHistory(gen uint64, symbol, timeframe string, candles []marketdata.Candle, err error) {
	w.mu.Lock()
	if !w.currentLocked(gen) {
		w.mu.Unlock()
		return
	}
	if err != nil {
		// stream anyway; the chart fills from live ticks
		candles = nil
	}
	w.series.SetData(symbol, timeframe, candles)
	w.mu.Unlock()

	// subscribing may write to the network, keep it outside w.mu
	unsubscribe := w.feed.Subscribe(symbol, func(c marketdata.Candle) { w.onTick(gen, c) })

	w.mu.Lock()
	if !w.currentLocked(gen) {
		w.mu.Unlock()
		unsubscribe()
		return
	}
	w.unsubscribe = unsubscribe
	w.closeReadyLocked()
	w.mu.Unlock()
}

func (w *Workspace) currentLocked(gen uint64) bool {
	return !w.closed && gen == w.gen
}

func (w *Workspace) closeReadyLocked() {
	select {
	case <-w.ready:
	default:
		close(w.ready)
	}
}

func (w *Workspace) onTick(gen uint64, c marketdata.Candle) {
	w.mu.Lock()
	current := w.currentLocked(gen)
	w.mu.Unlock()
	if !current {
		return
	}

	if err := w.series.Merge(c); err != nil {
		if errors.Is(err, chart.ErrStaleTick) {
			log.Debug().Err(err).Msg("Ignoring stale tick")
			return
		}
		log.Warn().Err(err).Msg("Failed to apply tick")
	}
}

func (w *Workspace) persist(symbol, timeframe string) {
	if w.store == nil {
		return
	}
	if _, err := w.store.UpdateSettings(func(s *storage.WorkspaceSettings) {
		s.Symbol = symbol
		s.Timeframe = timeframe
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to save workspace settings")
	}
	if err := w.store.TouchSymbol(symbol, time.Now()); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to record recent symbol")
	}
}
