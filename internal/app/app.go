// Package app is the composition root: it builds the connection manager and
// everything that hangs off it from the loaded settings.
package app

import (
	"fmt"

	"charty-feed/internal/cfg"
	"charty-feed/internal/chart"
	"charty-feed/internal/common"
	"charty-feed/internal/marketdata"
	"charty-feed/internal/metrics"
	"charty-feed/internal/storage"
	"charty-feed/internal/wsconn"

	"github.com/rs/zerolog/log"
)

// App owns the long-lived components of the charting client.
type App struct {
	settings cfg.Settings

	Manager     *wsconn.Manager
	Feed        *marketdata.Feed
	Loader      *marketdata.HistoryLoader
	Series      *chart.Series
	Store       *storage.Store // nil when persistence is unavailable
	Workspace   *Workspace
	Reconnector *Reconnector // nil unless enabled
}

// New builds the application. mw may be nil.
func New(settings cfg.Settings, mw *metrics.MetricsWrapper) (*App, error) {
	var (
		connMetrics    wsconn.Metrics
		feedMetrics    marketdata.Metrics
		historyMetrics marketdata.HistoryMetrics
		reconnMetrics  ReconnectMetrics
	)
	if mw != nil {
		connMetrics, feedMetrics, historyMetrics, reconnMetrics = mw, mw, mw, mw
	}

	mgr := wsconn.New(wsconn.Config{
		PingInterval:     settings.Ping,
		WriteTimeout:     settings.WriteTimeout,
		HandshakeTimeout: settings.WriteTimeout,
		ReadLimit:        settings.ReadLimit,
	}, connMetrics)

	fetcher, err := NewHistoryFetcher(settings)
	if err != nil {
		return nil, err
	}

	a := &App{
		settings: settings,
		Manager:  mgr,
		Feed:     marketdata.NewFeed(mgr, settings.WsURL, feedMetrics),
		Loader:   marketdata.NewHistoryLoader(fetcher, historyMetrics),
		Series: chart.NewSeries(func(c marketdata.Candle) {
			log.Debug().Int64("time", c.Time).Float64("close", c.Close).Msg("tick painted")
		}),
		Store: openStore(settings.DataPath),
	}

	var store SettingsStore
	if a.Store != nil {
		store = a.Store
	}
	a.Workspace = NewWorkspace(a.Feed, a.Loader, a.Series, store)

	if settings.Reconnect {
		a.Reconnector = NewReconnector(mgr, settings.WsURL, BackoffConfig{}, reconnMetrics)
	}
	return a, nil
}

// NewHistoryFetcher builds the configured history source.
func NewHistoryFetcher(settings cfg.Settings) (marketdata.HistoryFetcher, error) {
	switch settings.HistorySource {
	case common.HistorySourceMock, "":
		return marketdata.NewMockHistory(nil, nil), nil
	case common.HistorySourceREST:
		return marketdata.NewRESTHistory(settings.HistoryURL, settings.RESTTimeout), nil
	default:
		return nil, fmt.Errorf("unknown history source %q", settings.HistorySource)
	}
}

// openStore opens the settings database, continuing without persistence on failure.
func openStore(dataPath string) *storage.Store {
	if dataPath == "" {
		dataPath = "."
	}
	store, err := storage.New(dataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		return nil
	}
	return store
}

// Start opens the workspace on the persisted or configured selection.
func (a *App) Start() {
	log.Info().Str("url", a.settings.WsURL).Str("history", a.settings.HistorySource).Msg("Starting charting client")
	if a.Reconnector != nil {
		a.Reconnector.Start()
	}
	a.Workspace.Open(a.settings.Symbol, a.settings.Timeframe)
}

// Close tears everything down in reverse order.
func (a *App) Close() error {
	if a.Reconnector != nil {
		a.Reconnector.Stop()
	}
	a.Workspace.Close()
	a.Manager.Disconnect()
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
