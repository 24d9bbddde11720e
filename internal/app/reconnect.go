package app

import (
	"sync"
	"time"

	"charty-feed/internal/wsconn"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// ReconnectConn is the part of the connection manager the reconnector drives.
type ReconnectConn interface {
	Connect(addr string)
	Status() (wsconn.State, uint64)
	OnOpen(fn func(wsconn.OpenEvent)) func()
	OnClose(fn func(wsconn.CloseEvent)) func()
}

// ReconnectMetrics is implemented by metrics.MetricsWrapper.
type ReconnectMetrics interface {
	ReconnectsInc()
}

// BackoffConfig tunes the delay between reconnect attempts. A zero
// MaxElapsedTime retries forever.
type BackoffConfig struct {
	InitialInterval     time.Duration
	RandomizationFactor float64
	Multiplier          float64
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration
}

// Reconnector re-dials addr with exponential backoff whenever the transport
// to it closes while nothing else has connected. It is opt-in; the
// connection manager itself never retries.
type Reconnector struct {
	conn    ReconnectConn
	addr    string
	metrics ReconnectMetrics

	mu       sync.Mutex
	bo       *backoff.ExponentialBackOff
	timer    *time.Timer
	running  bool
	offOpen  func()
	offClose func()
}

// NewReconnector creates a stopped reconnector for addr. metrics may be nil.
func NewReconnector(conn ReconnectConn, addr string, cfg BackoffConfig, metrics ReconnectMetrics) *Reconnector {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.RandomizationFactor <= 0 {
		cfg.RandomizationFactor = 0.5
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	bo.RandomizationFactor = cfg.RandomizationFactor
	bo.Multiplier = cfg.Multiplier
	bo.MaxInterval = cfg.MaxInterval
	bo.MaxElapsedTime = cfg.MaxElapsedTime
	bo.Reset()

	return &Reconnector{conn: conn, addr: addr, metrics: metrics, bo: bo}
}

// Start begins watching close events. It is a no-op when already running.
func (r *Reconnector) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.offOpen = r.conn.OnOpen(r.onOpen)
	r.offClose = r.conn.OnClose(r.onClose)
}

// Stop cancels any pending attempt and stops watching.
func (r *Reconnector) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	offOpen, offClose := r.offOpen, r.offClose
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()

	// the listeners take r.mu, and unsubscribing waits for a running one
	offOpen()
	offClose()
}

func (r *Reconnector) onOpen(ev wsconn.OpenEvent) {
	if ev.Addr != r.addr {
		return
	}
	r.mu.Lock()
	r.bo.Reset()
	r.mu.Unlock()
}

func (r *Reconnector) onClose(ev wsconn.CloseEvent) {
	if ev.Addr != r.addr {
		return
	}
	// a replacement transport is already on its way
	if state, _ := r.conn.Status(); state != wsconn.Disconnected {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running || r.timer != nil {
		return
	}

	delay := r.bo.NextBackOff()
	if delay == backoff.Stop {
		log.Error().Str("url", r.addr).Msg("Giving up reconnecting")
		return
	}

	log.Warn().Str("url", r.addr).Int("code", ev.Code).Dur("delay", delay).Msg("Connection lost, scheduling reconnect")
	r.timer = time.AfterFunc(delay, r.fire)
}

func (r *Reconnector) fire() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ReconnectsInc()
	}
	log.Info().Str("url", r.addr).Msg("Reconnecting")
	r.conn.Connect(r.addr)
}
