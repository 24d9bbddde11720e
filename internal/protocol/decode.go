package protocol

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	EventType string `json:"event_type"`
}

// Decode parses one inbound frame. Frames that are not valid JSON objects or
// whose event_type is missing or unknown are rejected.
func Decode(data []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var frame Frame
	switch env.EventType {
	case "":
		return nil, ErrMissingEventType
	case EventQuote, EventCandle:
		frame = &QuoteFrame{}
	case EventAck:
		frame = &AckFrame{}
	case EventError:
		frame = &ErrorFrame{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.EventType)
	}

	if err := json.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("decode %s frame: %w", env.EventType, err)
	}
	return frame, nil
}

// Encode serialises an outbound frame.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}
