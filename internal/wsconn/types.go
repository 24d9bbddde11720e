package wsconn

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected = errors.New("websocket is not connected")
)

// State is the lifecycle state of the manager's transport.
type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// OpenEvent is delivered to open listeners once a transport is usable.
// Seq identifies the transport and increases with every Connect that dials.
type OpenEvent struct {
	Addr string
	Seq  uint64
}

// CloseEvent is delivered to close listeners exactly once per transport,
// whether it failed to dial, was closed by the peer or was torn down locally.
// Err is nil for a locally initiated close.
type CloseEvent struct {
	Addr   string
	Seq    uint64
	Code   int
	Reason string
	Err    error
}

// Metrics is the subset of the metrics wrapper the manager records to.
type Metrics interface {
	ConnectsInc()
	ClosesInc()
	DialFailuresInc()
	FramesReceivedInc()
	FramesDroppedInc()
	SendsDroppedInc()
}

type noopMetrics struct{}

func (noopMetrics) ConnectsInc()       {}
func (noopMetrics) ClosesInc()         {}
func (noopMetrics) DialFailuresInc()   {}
func (noopMetrics) FramesReceivedInc() {}
func (noopMetrics) FramesDroppedInc()  {}
func (noopMetrics) SendsDroppedInc()   {}

// Config tunes the transport.
type Config struct {
	PingInterval     time.Duration // Zero disables keep-alive pings and read deadlines
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	ReadLimit        int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PingInterval:     15 * time.Second,
		WriteTimeout:     10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		ReadLimit:        512 * 1024, // 512KB max message size
	}
}
