// Package wsconn owns a single WebSocket to a market-data endpoint and fans
// inbound events out to registered listeners.
//
// Connect, Send and Disconnect never block on the network: the dial and the
// read loop run on a per-transport goroutine, and every event of a transport
// (open, messages, close) is dispatched sequentially from that goroutine.
// A replacement transport only starts dialing after the previous transport's
// close event has been delivered.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"charty-feed/internal/protocol"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type transport struct {
	addr   string
	seq    uint64
	state  State           // guarded by Manager.mu
	conn   *websocket.Conn // guarded by Manager.mu, set once dialed
	cancel context.CancelFunc
	done   chan struct{}

	writeMu sync.Mutex
}

// Manager maintains at most one live transport at a time.
type Manager struct {
	cfg     Config
	dialer  *websocket.Dialer
	metrics Metrics

	mu   sync.Mutex
	cur  *transport // nil when disconnected
	last *transport // most recently created transport, possibly finished
	seq  uint64

	messages *listenerSet[protocol.Frame]
	opens    *listenerSet[OpenEvent]
	closes   *listenerSet[CloseEvent]
	errs     *listenerSet[error]
}

// New creates a disconnected manager. A nil metrics disables recording.
func New(cfg Config, metrics Metrics) *Manager {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}

	return &Manager{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		metrics:  metrics,
		messages: newListenerSet[protocol.Frame]("message"),
		opens:    newListenerSet[OpenEvent]("open"),
		closes:   newListenerSet[CloseEvent]("close"),
		errs:     newListenerSet[error]("error"),
	}
}

// OnMessage registers a listener for decoded inbound frames.
func (m *Manager) OnMessage(fn func(protocol.Frame)) (unsubscribe func()) {
	return m.messages.add(fn)
}

// OnOpen registers a listener called every time a transport opens.
func (m *Manager) OnOpen(fn func(OpenEvent)) (unsubscribe func()) {
	return m.opens.add(fn)
}

// OnClose registers a listener called when a transport closes or fails to dial.
func (m *Manager) OnClose(fn func(CloseEvent)) (unsubscribe func()) {
	return m.closes.add(fn)
}

// OnError registers a listener for transport-level errors. An error is always
// followed by a close event for the same transport.
func (m *Manager) OnError(fn func(error)) (unsubscribe func()) {
	return m.errs.add(fn)
}

// Status reports the state and sequence number of the current transport.
func (m *Manager) Status() (State, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return Disconnected, 0
	}
	return m.cur.state, m.cur.seq
}

// Addr returns the address of the current transport, or "" when disconnected.
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return ""
	}
	return m.cur.addr
}

// Connect opens a transport to addr. It is a no-op when a transport to the
// same address is already connecting or open; a transport to any other
// address is torn down first. Failures are reported through the error and
// close listeners, never retried.
func (m *Manager) Connect(addr string) {
	m.mu.Lock()
	var stale *websocket.Conn
	if t := m.cur; t != nil {
		if t.addr == addr && (t.state == Connecting || t.state == Open) {
			m.mu.Unlock()
			log.Debug().Str("url", addr).Str("state", t.state.String()).Msg("WebSocket already connected")
			return
		}
		stale = m.teardownLocked(t)
	}

	m.seq++
	ctx, cancel := context.WithCancel(context.Background())
	t := &transport{
		addr:   addr,
		seq:    m.seq,
		state:  Connecting,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	prev := m.last
	m.cur = t
	m.last = t
	m.mu.Unlock()

	closeConn(stale)
	go m.run(ctx, t, prev)
}

// Disconnect closes the current transport. It is idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	t := m.cur
	if t == nil || t.state == Closing {
		m.mu.Unlock()
		return
	}
	stale := m.teardownLocked(t)
	m.mu.Unlock()

	log.Info().Str("url", t.addr).Msg("Disconnecting WebSocket")
	closeConn(stale)
}

// Send encodes v as JSON and writes it if the transport is open. While not
// open the message is dropped and ErrNotConnected is returned; nothing is queued.
func (m *Manager) Send(v any) error {
	data, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode outbound message")
		return err
	}

	m.mu.Lock()
	t := m.cur
	if t == nil || t.state != Open {
		state := Disconnected
		if t != nil {
			state = t.state
		}
		m.mu.Unlock()
		m.metrics.SendsDroppedInc()
		log.Error().Str("state", state.String()).Msg("WebSocket is not connected, dropping message")
		return ErrNotConnected
	}
	conn := t.conn
	m.mu.Unlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Warn().Err(err).Str("url", t.addr).Msg("WebSocket write failed")
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// teardownLocked marks t as closing and aborts its dial. The returned conn,
// if any, must be closed by the caller after releasing m.mu.
func (m *Manager) teardownLocked(t *transport) *websocket.Conn {
	t.state = Closing
	t.cancel()
	return t.conn
}

func closeConn(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	conn.Close()
}

func (m *Manager) run(ctx context.Context, t *transport, prev *transport) {
	defer close(t.done)

	if prev != nil {
		<-prev.done
	}

	if ctx.Err() != nil {
		m.finish(t, CloseEvent{Addr: t.addr, Seq: t.seq, Code: websocket.CloseNormalClosure, Reason: "closed before dial"})
		return
	}

	log.Info().Str("url", t.addr).Uint64("seq", t.seq).Msg("Establishing WebSocket connection")
	conn, _, err := m.dialer.DialContext(ctx, t.addr, nil)
	if err != nil {
		if ctx.Err() != nil {
			m.finish(t, CloseEvent{Addr: t.addr, Seq: t.seq, Code: websocket.CloseNormalClosure, Reason: "closed during dial"})
			return
		}
		m.metrics.DialFailuresInc()
		log.Warn().Err(err).Str("url", t.addr).Msg("WebSocket dial failed")
		m.finish(t, CloseEvent{
			Addr: t.addr,
			Seq:  t.seq,
			Code: websocket.CloseAbnormalClosure,
			Err:  fmt.Errorf("dial %s: %w", t.addr, err),
		})
		return
	}

	m.mu.Lock()
	if t.state == Closing {
		m.mu.Unlock()
		closeConn(conn)
		m.finish(t, CloseEvent{Addr: t.addr, Seq: t.seq, Code: websocket.CloseNormalClosure, Reason: "closed during dial"})
		return
	}
	t.conn = conn
	t.state = Open
	m.mu.Unlock()

	m.configure(conn)
	m.metrics.ConnectsInc()
	log.Info().Str("url", t.addr).Uint64("seq", t.seq).Msg("WebSocket connection established")

	go m.keepAlive(ctx, t, conn)

	m.opens.dispatch(OpenEvent{Addr: t.addr, Seq: t.seq})

	ev := m.readLoop(t, conn)
	t.cancel()
	conn.Close()
	m.finish(t, ev)
}

func (m *Manager) configure(conn *websocket.Conn) {
	if m.cfg.ReadLimit > 0 {
		conn.SetReadLimit(m.cfg.ReadLimit)
	}
	if wait := m.pongWait(); wait > 0 {
		conn.SetReadDeadline(time.Now().Add(wait))
		conn.SetPongHandler(func(string) error {
			log.Debug().Msg("Received pong from server")
			return conn.SetReadDeadline(time.Now().Add(wait))
		})
	}
}

func (m *Manager) pongWait() time.Duration {
	if m.cfg.PingInterval <= 0 {
		return 0
	}
	return 2*m.cfg.PingInterval + m.cfg.WriteTimeout
}

func (m *Manager) keepAlive(ctx context.Context, t *transport, conn *websocket.Conn) {
	if m.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(m.cfg.WriteTimeout)); err != nil {
				log.Debug().Err(err).Str("url", t.addr).Msg("ping failed")
				return
			}
		}
	}
}

func (m *Manager) readLoop(t *transport, conn *websocket.Conn) CloseEvent {
	wait := m.pongWait()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return m.closeEvent(t, err)
		}
		if wait > 0 {
			conn.SetReadDeadline(time.Now().Add(wait))
		}

		frame, err := protocol.Decode(data)
		if err != nil {
			m.metrics.FramesDroppedInc()
			log.Warn().Err(err).Str("frame", truncate(data, 256)).Msg("Dropping malformed frame")
			continue
		}
		m.metrics.FramesReceivedInc()
		m.messages.dispatch(frame)
	}
}

func (m *Manager) closeEvent(t *transport, err error) CloseEvent {
	ev := CloseEvent{Addr: t.addr, Seq: t.seq, Code: websocket.CloseAbnormalClosure}

	m.mu.Lock()
	local := t.state == Closing
	m.mu.Unlock()

	var ce *websocket.CloseError
	switch {
	case errors.As(err, &ce):
		ev.Code = ce.Code
		ev.Reason = ce.Text
		if ce.Code != websocket.CloseNormalClosure && ce.Code != websocket.CloseGoingAway {
			ev.Err = fmt.Errorf("connection closed: %w", err)
		}
	case local:
		ev.Code = websocket.CloseNormalClosure
	case errors.Is(err, net.ErrClosed):
		ev.Code = websocket.CloseNormalClosure
	default:
		ev.Err = fmt.Errorf("read message: %w", err)
	}

	if ev.Err != nil {
		log.Warn().Err(ev.Err).Str("url", t.addr).Msg("WebSocket connection closed unexpectedly")
	} else {
		log.Info().Int("code", ev.Code).Str("url", t.addr).Msg("WebSocket connection closed")
	}
	return ev
}

// finish resets the manager state for t and delivers its close event.
func (m *Manager) finish(t *transport, ev CloseEvent) {
	m.mu.Lock()
	t.state = Disconnected
	if m.cur == t {
		m.cur = nil
	}
	m.mu.Unlock()

	m.metrics.ClosesInc()
	if ev.Err != nil {
		m.errs.dispatch(ev.Err)
	}
	m.closes.dispatch(ev)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
