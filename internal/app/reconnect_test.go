package app

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"charty-feed/internal/wsconn"

	"github.com/stretchr/testify/assert"
)

const testAddr = "ws://feed.test/ws"

type fakeReconnConn struct {
	mu       sync.Mutex
	state    wsconn.State
	connects chan string
	opens    map[int]func(wsconn.OpenEvent)
	closes   map[int]func(wsconn.CloseEvent)
	next     int
}

func newFakeReconnConn() *fakeReconnConn {
	return &fakeReconnConn{
		connects: make(chan string, 16),
		opens:    map[int]func(wsconn.OpenEvent){},
		closes:   map[int]func(wsconn.CloseEvent){},
	}
}

func (f *fakeReconnConn) Connect(addr string) {
	f.mu.Lock()
	f.state = wsconn.Connecting
	f.mu.Unlock()
	f.connects <- addr
}

func (f *fakeReconnConn) Status() (wsconn.State, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, 0
}

func (f *fakeReconnConn) OnOpen(fn func(wsconn.OpenEvent)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.opens[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.opens, id)
		f.mu.Unlock()
	}
}

func (f *fakeReconnConn) OnClose(fn func(wsconn.CloseEvent)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.closes[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.closes, id)
		f.mu.Unlock()
	}
}

func (f *fakeReconnConn) open(addr string) {
	f.mu.Lock()
	f.state = wsconn.Open
	fns := make([]func(wsconn.OpenEvent), 0, len(f.opens))
	for _, fn := range f.opens {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(wsconn.OpenEvent{Addr: addr})
	}
}

func (f *fakeReconnConn) close(addr string) {
	f.mu.Lock()
	f.state = wsconn.Disconnected
	fns := make([]func(wsconn.CloseEvent), 0, len(f.closes))
	for _, fn := range f.closes {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(wsconn.CloseEvent{Addr: addr, Code: 1006})
	}
}

func (f *fakeReconnConn) waitConnect(t *testing.T) {
	t.Helper()
	select {
	case addr := <-f.connects:
		assert.Equal(t, testAddr, addr)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reconnect")
	}
}

func (f *fakeReconnConn) assertNoConnect(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case addr := <-f.connects:
		t.Fatalf("unexpected connect to %s", addr)
	case <-time.After(wait):
	}
}

type reconnectCounter struct{ n atomic.Int32 }

func (r *reconnectCounter) ReconnectsInc() { r.n.Add(1) }

var fastBackoff = BackoffConfig{
	InitialInterval:     5 * time.Millisecond,
	RandomizationFactor: 0.01,
	Multiplier:          2,
	MaxInterval:         20 * time.Millisecond,
}

func TestReconnector_ReconnectsAfterClose(t *testing.T) {
	conn := newFakeReconnConn()
	counter := &reconnectCounter{}
	r := NewReconnector(conn, testAddr, fastBackoff, counter)
	r.Start()
	defer r.Stop()

	conn.close(testAddr)
	conn.waitConnect(t)
	assert.Equal(t, int32(1), counter.n.Load())

	// the dial fails again: another attempt follows
	conn.close(testAddr)
	conn.waitConnect(t)
	assert.Equal(t, int32(2), counter.n.Load())
}

func TestReconnector_IgnoresOtherAddressesAndLiveTransports(t *testing.T) {
	conn := newFakeReconnConn()
	r := NewReconnector(conn, testAddr, fastBackoff, nil)
	r.Start()
	defer r.Stop()

	conn.close("ws://elsewhere/ws")
	conn.assertNoConnect(t, 50*time.Millisecond)

	// a caller already connected again before the close was seen
	conn.Connect(testAddr)
	conn.waitConnect(t)
	conn.mu.Lock()
	fns := make([]func(wsconn.CloseEvent), 0, len(conn.closes))
	for _, fn := range conn.closes {
		fns = append(fns, fn)
	}
	conn.mu.Unlock()
	for _, fn := range fns {
		fn(wsconn.CloseEvent{Addr: testAddr, Code: 1006})
	}
	conn.assertNoConnect(t, 50*time.Millisecond)
}

func TestReconnector_StopCancelsPendingAttempt(t *testing.T) {
	conn := newFakeReconnConn()
	r := NewReconnector(conn, testAddr, BackoffConfig{InitialInterval: 100 * time.Millisecond, RandomizationFactor: 0.01}, nil)
	r.Start()

	conn.close(testAddr)
	r.Stop()
	r.Stop()

	conn.assertNoConnect(t, 200*time.Millisecond)
	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.Empty(t, conn.opens)
	assert.Empty(t, conn.closes)
}

func TestReconnector_GivesUpAfterMaxElapsed(t *testing.T) {
	conn := newFakeReconnConn()
	r := NewReconnector(conn, testAddr, BackoffConfig{
		InitialInterval:     30 * time.Millisecond,
		RandomizationFactor: 0.01,
		MaxElapsedTime:      10 * time.Millisecond,
	}, nil)
	r.Start()
	defer r.Stop()

	time.Sleep(20 * time.Millisecond)
	conn.close(testAddr)
	conn.assertNoConnect(t, 100*time.Millisecond)
}

func TestReconnector_OpenResetsBackoff(t *testing.T) {
	conn := newFakeReconnConn()
	r := NewReconnector(conn, testAddr, BackoffConfig{
		InitialInterval:     5 * time.Millisecond,
		RandomizationFactor: 0.01,
		Multiplier:          20,
		MaxInterval:         5 * time.Second,
	}, nil)
	r.Start()
	defer r.Stop()

	// 5ms then 100ms; the next delay would be two seconds
	for range 2 {
		conn.close(testAddr)
		conn.waitConnect(t)
	}
	conn.open(testAddr)

	start := time.Now()
	conn.close(testAddr)
	conn.waitConnect(t)
	assert.Less(t, time.Since(start), time.Second)
}
