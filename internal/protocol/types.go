// Package protocol defines the JSON frames exchanged with the market-data
// endpoint: outbound control messages and the tagged inbound frames.
package protocol

import (
	"errors"

	"charty-feed/internal/common"
)

// Errors
var (
	ErrMissingEventType = errors.New("missing event_type")
	ErrUnknownEventType = errors.New("unknown event_type")
)

// Kind tags an inbound frame.
type Kind string

const (
	KindQuote Kind = "quote"
	KindAck   Kind = "ack"
	KindError Kind = "error"
)

// Event types carrying candle data. "candle" is accepted as an alias of "quote".
const (
	EventQuote  = "quote"
	EventCandle = "candle"
	EventAck    = "ack"
	EventError  = "error"
)

// Frame is one decoded inbound message. The concrete type is one of
// *QuoteFrame, *AckFrame or *ErrorFrame.
type Frame interface {
	Kind() Kind
}

// CandleData is the OHLC payload of a quote frame. Fields are pointers so a
// missing field can be told apart from a zero value.
type CandleData struct {
	Time  *int64   `json:"time"`
	Open  *float64 `json:"open"`
	High  *float64 `json:"high"`
	Low   *float64 `json:"low"`
	Close *float64 `json:"close"`
}

// QuoteFrame carries market data for one symbol.
type QuoteFrame struct {
	EventType string      `json:"event_type"`
	Symbol    string      `json:"symbol"`
	Data      *CandleData `json:"data"`
}

func (*QuoteFrame) Kind() Kind { return KindQuote }

// AckFrame confirms a control message.
type AckFrame struct {
	EventType string   `json:"event_type"`
	Action    string   `json:"action"`
	Status    string   `json:"status"`
	Symbols   []string `json:"provider_contract_ids,omitempty"`
}

func (*AckFrame) Kind() Kind { return KindAck }

// ErrorFrame reports a server-side problem.
type ErrorFrame struct {
	EventType string `json:"event_type"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
}

func (*ErrorFrame) Kind() Kind { return KindError }

// ControlParams are the parameters of a control message.
type ControlParams struct {
	ProviderContractIDs []string `json:"provider_contract_ids"`
	DataTypes           []string `json:"data_types,omitempty"`
}

// ControlMessage is an outbound subscribe/unsubscribe request.
type ControlMessage struct {
	Action string        `json:"action"`
	Params ControlParams `json:"params"`
}

// SubscribeMessage builds the subscribe_market_data request for symbol.
func SubscribeMessage(symbol string) ControlMessage {
	return ControlMessage{
		Action: common.ActionSubscribeMarketData,
		Params: ControlParams{
			ProviderContractIDs: []string{symbol},
			DataTypes:           []string{common.DataTypeQuote},
		},
	}
}

// UnsubscribeMessage builds the unsubscribe_market_data request for symbol.
func UnsubscribeMessage(symbol string) ControlMessage {
	return ControlMessage{
		Action: common.ActionUnsubscribeMarketData,
		Params: ControlParams{ProviderContractIDs: []string{symbol}},
	}
}
