package feedserver

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"charty-feed/internal/common"
	"charty-feed/internal/marketdata"
	"charty-feed/internal/protocol"

	"github.com/rs/zerolog/log"
)

type controlRequest struct {
	client *client
	raw    []byte
}

// symbolStream is the live bar of one symbol.
type symbolStream struct {
	walk *marketdata.Walk
	bar  marketdata.Candle
}

// runHub owns the client set, their subscriptions and the symbol streams.
func (s *Server) runHub(ctx context.Context) {
	defer close(s.done)

	clients := make(map[*client]struct{})
	streams := make(map[string]*symbolStream)

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	drop := func(c *client) {
		if _, ok := clients[c]; !ok {
			return
		}
		delete(clients, c)
		close(c.send)
		s.clients.Add(-1)
		s.metrics.FeedClientsAdd(-1)
	}

	for {
		select {
		case <-ctx.Done():
			for c := range clients {
				drop(c)
			}
			return

		case c := <-s.register:
			clients[c] = struct{}{}
			s.clients.Add(1)
			s.metrics.FeedClientsAdd(1)
			log.Info().Str("client", c.id).Int("clients", len(clients)).Msg("Feed client connected")

		case c := <-s.unregister:
			drop(c)
			log.Info().Str("client", c.id).Int("clients", len(clients)).Msg("Feed client disconnected")

		case req := <-s.control:
			if _, ok := clients[req.client]; !ok {
				continue
			}
			if reply := handleControl(req.client, req.raw); reply != nil {
				if !trySend(req.client, reply) {
					drop(req.client)
				}
			}

		case <-ticker.C:
			s.publish(clients, streams, drop)
		}
	}
}

// publish emits one quote per subscribed symbol. Clients that cannot keep up
// are disconnected rather than allowed to block the hub.
func (s *Server) publish(clients map[*client]struct{}, streams map[string]*symbolStream, drop func(*client)) {
	wanted := make(map[string]struct{})
	for c := range clients {
		for sym := range c.subs {
			wanted[sym] = struct{}{}
		}
	}
	for sym := range streams {
		if _, ok := wanted[sym]; !ok {
			delete(streams, sym)
		}
	}

	bucket := s.now().Unix()
	iv := int64(s.cfg.BarMinutes) * 60
	bucket -= bucket % iv

	for sym := range wanted {
		st, ok := streams[sym]
		if !ok {
			st = &symbolStream{walk: marketdata.NewWalk(marketdata.StartPrice(sym), s.cfg.BarMinutes, s.rng)}
			streams[sym] = st
		}
		if st.bar.Time != bucket {
			st.bar = st.walk.Next(bucket)
		} else {
			st.bar = st.walk.Tick(st.bar)
		}

		frame := quoteFrame(sym, st.bar)
		for c := range clients {
			if _, ok := c.subs[sym]; !ok {
				continue
			}
			if !trySend(c, frame) {
				log.Warn().Str("client", c.id).Msg("Feed client too slow, disconnecting")
				drop(c)
			}
		}
	}
}

func trySend(c *client, v any) bool {
	select {
	case c.send <- v:
		return true
	default:
		return false
	}
}

// handleControl applies a control message to c's subscriptions and returns the reply.
func handleControl(c *client, raw []byte) any {
	var msg protocol.ControlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return &protocol.ErrorFrame{EventType: protocol.EventError, Code: "bad_request", Message: "invalid control message"}
	}
	symbols := msg.Params.ProviderContractIDs
	if len(symbols) == 0 && msg.Action != "" {
		return &protocol.ErrorFrame{EventType: protocol.EventError, Code: "bad_request", Message: "provider_contract_ids is required"}
	}

	switch msg.Action {
	case common.ActionSubscribeMarketData:
		if len(msg.Params.DataTypes) > 0 && !slices.Contains(msg.Params.DataTypes, common.DataTypeQuote) {
			return &protocol.ErrorFrame{
				EventType: protocol.EventError,
				Code:      "unsupported_data_type",
				Message:   fmt.Sprintf("unsupported data types %v", msg.Params.DataTypes),
			}
		}
		for _, sym := range symbols {
			c.subs[sym] = struct{}{}
		}
	case common.ActionUnsubscribeMarketData:
		for _, sym := range symbols {
			delete(c.subs, sym)
		}
	default:
		return &protocol.ErrorFrame{
			EventType: protocol.EventError,
			Code:      "unknown_action",
			Message:   fmt.Sprintf("unknown action %q", msg.Action),
		}
	}

	log.Debug().Str("client", c.id).Str("action", msg.Action).Strs("symbols", symbols).Msg("Control message applied")
	return &protocol.AckFrame{EventType: protocol.EventAck, Action: msg.Action, Status: "ok", Symbols: symbols}
}

func quoteFrame(symbol string, c marketdata.Candle) *protocol.QuoteFrame {
	return &protocol.QuoteFrame{
		EventType: protocol.EventQuote,
		Symbol:    symbol,
		Data: &protocol.CandleData{
			Time:  &c.Time,
			Open:  &c.Open,
			High:  &c.High,
			Low:   &c.Low,
			Close: &c.Close,
		},
	}
}
