package marketdata

import (
	"sync"

	"charty-feed/internal/protocol"
	"charty-feed/internal/wsconn"

	"github.com/rs/zerolog/log"
)

// Conn is the part of the connection manager a Feed relies on.
type Conn interface {
	Connect(addr string)
	Send(v any) error
	OnOpen(fn func(wsconn.OpenEvent)) func()
	OnMessage(fn func(protocol.Frame)) func()
	Status() (wsconn.State, uint64)
}

// Metrics is implemented by metrics.MetricsWrapper.
type Metrics interface {
	TicksDeliveredInc()
	SubscriptionsAdd(delta float64)
}

type noopMetrics struct{}

func (noopMetrics) TicksDeliveredInc()       {}
func (noopMetrics) SubscriptionsAdd(float64) {}

// Feed binds symbols to candle handlers over a shared connection.
type Feed struct {
	conn     Conn
	endpoint string
	metrics  Metrics
}

// NewFeed creates a feed that connects conn to endpoint on demand.
func NewFeed(conn Conn, endpoint string, metrics Metrics) *Feed {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Feed{conn: conn, endpoint: endpoint, metrics: metrics}
}

// Endpoint returns the address the feed connects to.
func (f *Feed) Endpoint() string { return f.endpoint }

// Subscribe streams candles for symbol to handler. Interest is announced every
// time the connection opens, and immediately if it is already open. The
// returned function removes the subscription and announces the loss of
// interest; it never closes the shared connection and may be called more than once.
// With a wsconn.Manager, handler is not invoked again once it returns, including
// when it is called from handler itself.
func (f *Feed) Subscribe(symbol string, handler func(Candle)) (unsubscribe func()) {
	s := &subscription{feed: f, symbol: symbol, handler: handler}

	offOpen := f.conn.OnOpen(func(ev wsconn.OpenEvent) { s.announce(ev.Seq) })
	offMsg := f.conn.OnMessage(s.deliver)
	f.metrics.SubscriptionsAdd(1)

	f.conn.Connect(f.endpoint)
	if state, seq := f.conn.Status(); state == wsconn.Open {
		s.announce(seq)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()

			offOpen()
			offMsg()
			f.metrics.SubscriptionsAdd(-1)

			log.Info().Str("symbol", symbol).Msg("Unsubscribing from market data")
			if err := f.conn.Send(protocol.UnsubscribeMessage(symbol)); err != nil {
				log.Debug().Err(err).Str("symbol", symbol).Msg("unsubscribe not sent")
			}
		})
	}
}

type subscription struct {
	feed    *Feed
	symbol  string
	handler func(Candle)

	mu        sync.Mutex
	announced uint64 // seq of the transport that last received our subscribe
	closed    bool
}

func (s *subscription) announce(seq uint64) {
	s.mu.Lock()
	if s.closed || seq == s.announced {
		s.mu.Unlock()
		return
	}
	s.announced = seq
	s.mu.Unlock()

	log.Info().Str("symbol", s.symbol).Uint64("seq", seq).Msg("Subscribing to market data")
	if err := s.feed.conn.Send(protocol.SubscribeMessage(s.symbol)); err != nil {
		log.Warn().Err(err).Str("symbol", s.symbol).Msg("subscribe not sent")
	}
}

func (s *subscription) deliver(frame protocol.Frame) {
	q, ok := frame.(*protocol.QuoteFrame)
	if !ok || q.Symbol != s.symbol {
		return
	}
	c, ok := candleFromData(q.Data)
	if !ok {
		return
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	s.feed.metrics.TicksDeliveredInc()
	s.handler(c)
}
