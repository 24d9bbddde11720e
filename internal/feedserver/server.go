// Package feedserver is a development market-data endpoint speaking the same
// WebSocket protocol as the production feed. It serves random-walk quotes for
// whatever symbols its clients subscribe to, plus a bars history endpoint.
package feedserver

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"charty-feed/internal/marketdata"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Metrics is implemented by metrics.MetricsWrapper.
type Metrics interface {
	FeedClientsAdd(delta float64)
}

type noopMetrics struct{}

func (noopMetrics) FeedClientsAdd(float64) {}

// Config controls the server.
type Config struct {
	Addr       string
	Tick       time.Duration // quote frequency per subscribed symbol
	BarMinutes int           // bar size of emitted quotes
	Debug      bool
}

// Server owns the HTTP engine and the hub.
type Server struct {
	cfg     Config
	engine  *gin.Engine
	history marketdata.HistoryFetcher
	metrics Metrics
	rng     *rand.Rand
	now     func() time.Time

	// hub channels; state behind them is owned by the hub goroutine
	register   chan *client
	unregister chan *client
	control    chan controlRequest
	done       chan struct{}

	clients atomic.Int64
}

// New builds a server. history serves the bars endpoint; metrics and rng may be nil.
func New(cfg Config, history marketdata.HistoryFetcher, metrics Metrics, rng *rand.Rand) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.BarMinutes <= 0 {
		cfg.BarMinutes = 1
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if rng == nil {
		rng = marketdata.NewRand()
	}

	s := &Server{
		cfg:        cfg,
		engine:     gin.New(),
		history:    history,
		metrics:    metrics,
		rng:        rng,
		now:        time.Now,
		register:   make(chan *client),
		unregister: make(chan *client),
		control:    make(chan controlRequest, 64),
		done:       make(chan struct{}),
	}

	s.engine.Use(gin.Recovery(), requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.getHealth)
	s.engine.GET("/history/:symbol/bars", s.getBars)
	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler exposes the HTTP engine.
func (s *Server) Handler() http.Handler { return s.engine }

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hub and serves HTTP on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.runHub(ctx)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Msg("Mock feed listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": s.clients.Load()})
}

type barJSON struct {
	Timestamp time.Time `json:"timestamp_utc"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    *float64  `json:"volume"`
}

func (s *Server) getBars(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"detail": "history not available"})
		return
	}

	symbol := c.Param("symbol")
	if unit := c.Query("timeframe_unit"); unit != "MINUTE" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("unsupported timeframe_unit %q", unit)})
		return
	}
	value, err := strconv.Atoi(c.Query("timeframe_value"))
	if err != nil || value <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "timeframe_value must be a positive integer"})
		return
	}

	start, err := parseTimeParam(c.Query("start_time_utc"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "start_time_utc: " + err.Error()})
		return
	}
	end, err := parseTimeParam(c.Query("end_time_utc"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "end_time_utc: " + err.Error()})
		return
	}

	candles, err := s.history.Fetch(c.Request.Context(), symbol, strconv.Itoa(value)+"m")
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("Failed to produce bars")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to retrieve bars"})
		return
	}

	bars := make([]barJSON, 0, len(candles))
	for _, cd := range candles {
		ts := time.Unix(cd.Time, 0).UTC()
		if (!start.IsZero() && ts.Before(start)) || (!end.IsZero() && ts.After(end)) {
			continue
		}
		bars = append(bars, barJSON{Timestamp: ts, Open: cd.Open, High: cd.High, Low: cd.Low, Close: cd.Close})
	}
	c.JSON(http.StatusOK, gin.H{"bars": bars})
}

func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	}
}
