package wsconn

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// mockWSServer accepts any number of connections and records what clients send.
type mockWSServer struct {
	server   *httptest.Server
	upgrades atomic.Int32
	received chan []byte
	conns    chan *serverConn
}

type serverConn struct {
	conn   *websocket.Conn
	closed chan struct{}
}

func newMockWSServer(t *testing.T) *mockWSServer {
	t.Helper()
	m := &mockWSServer{
		received: make(chan []byte, 64),
		conns:    make(chan *serverConn, 8),
	}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		m.upgrades.Add(1)

		sc := &serverConn{conn: conn, closed: make(chan struct{})}
		m.conns <- sc
		defer close(sc.closed)
		defer conn.Close()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			m.received <- msg
		}
	}))
	t.Cleanup(m.server.Close)
	return m
}

// stallingURL returns a ws:// address that accepts TCP connections but never
// answers the handshake.
func stallingURL(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var held []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			held = append(held, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range held {
			c.Close()
		}
	})
	return "ws://" + ln.Addr().String() + "/ws"
}

func (m *mockWSServer) url() string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http")
}

func (m *mockWSServer) nextConn(t *testing.T) *serverConn {
	t.Helper()
	select {
	case sc := <-m.conns:
		return sc
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for server connection")
		return nil
	}
}

func (m *mockWSServer) nextReceived(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-m.received:
		return string(msg)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for client message")
		return ""
	}
}

func (sc *serverConn) write(t *testing.T, frame string) {
	t.Helper()
	require.NoError(t, sc.conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func (sc *serverConn) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-sc.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for server side close")
	}
}

// recorder collects event labels in arrival order.
type recorder struct {
	mu     sync.Mutex
	events []string
	ch     chan string
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan string, 128)}
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.ch <- ev
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) waitFor(t *testing.T, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-r.ch:
			if ev == want {
				return
			}
		case <-deadline:
			t.Fatalf("timeout waiting for event %q, got %v", want, r.snapshot())
		}
	}
}

type countingMetrics struct {
	connects, closes, dialFailures atomic.Int64
	received, dropped, sendDrops   atomic.Int64
}

func (c *countingMetrics) ConnectsInc()       { c.connects.Add(1) }
func (c *countingMetrics) ClosesInc()         { c.closes.Add(1) }
func (c *countingMetrics) DialFailuresInc()   { c.dialFailures.Add(1) }
func (c *countingMetrics) FramesReceivedInc() { c.received.Add(1) }
func (c *countingMetrics) FramesDroppedInc()  { c.dropped.Add(1) }
func (c *countingMetrics) SendsDroppedInc()   { c.sendDrops.Add(1) }

func newTestManager(t *testing.T) (*Manager, *countingMetrics) {
	t.Helper()
	metrics := &countingMetrics{}
	m := New(Config{WriteTimeout: time.Second, HandshakeTimeout: time.Second}, metrics)
	t.Cleanup(m.Disconnect)
	return m, metrics
}
