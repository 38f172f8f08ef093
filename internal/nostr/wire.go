package nostr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"nostr-feed/internal/types"
)

// Relay frame types (NIP-01)
const (
	FrameEvent  = "EVENT"
	FrameEOSE   = "EOSE"
	FrameClosed = "CLOSED"
	FrameNotice = "NOTICE"
	FrameOK     = "OK"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownFrame   = errors.New("unknown frame type")
)

// Frame is a decoded relay -> client message
type Frame struct {
	Type    string
	SubID   string
	Event   types.Event
	Message string // CLOSED reason, NOTICE text or OK message
	EventID string // OK only
	OK      bool   // OK only
}

// DecodeFrame parses one inbound relay message. EVENT payloads are fully validated
// (id hash and signature); a bad event makes the whole frame malformed.
func DecodeFrame(data []byte) (Frame, error) {
	var msg []json.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(msg) < 2 {
		return Frame{}, ErrMalformedFrame
	}

	var f Frame
	if err := json.Unmarshal(msg[0], &f.Type); err != nil {
		return Frame{}, ErrMalformedFrame
	}

	switch f.Type {
	case FrameEvent:
		if len(msg) < 3 {
			return Frame{}, ErrMalformedFrame
		}
		if err := json.Unmarshal(msg[1], &f.SubID); err != nil {
			return Frame{}, ErrMalformedFrame
		}
		evt, err := ParseEvent(msg[2])
		if err != nil {
			return Frame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		}
		f.Event = evt

	case FrameEOSE:
		if err := json.Unmarshal(msg[1], &f.SubID); err != nil {
			return Frame{}, ErrMalformedFrame
		}

	case FrameClosed:
		if err := json.Unmarshal(msg[1], &f.SubID); err != nil {
			return Frame{}, ErrMalformedFrame
		}
		if len(msg) >= 3 {
			if err := json.Unmarshal(msg[2], &f.Message); err != nil {
				return Frame{}, ErrMalformedFrame
			}
		}

	case FrameNotice:
		if err := json.Unmarshal(msg[1], &f.Message); err != nil {
			return Frame{}, ErrMalformedFrame
		}

	case FrameOK:
		if len(msg) < 3 {
			return Frame{}, ErrMalformedFrame
		}
		if err := json.Unmarshal(msg[1], &f.EventID); err != nil {
			return Frame{}, ErrMalformedFrame
		}
		if err := json.Unmarshal(msg[2], &f.OK); err != nil {
			return Frame{}, ErrMalformedFrame
		}
		if len(msg) >= 4 {
			if err := json.Unmarshal(msg[3], &f.Message); err != nil {
				return Frame{}, ErrMalformedFrame
			}
		}

	default:
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownFrame, f.Type)
	}

	return f, nil
}

// EncodeReq builds ["REQ", subID, filter...]
func EncodeReq(subID string, filters ...types.Filter) ([]byte, error) {
	msg := make([]interface{}, 0, 2+len(filters))
	msg = append(msg, "REQ", subID)
	for _, f := range filters {
		msg = append(msg, f)
	}
	return marshalUnescaped(msg)
}

// EncodeClose builds ["CLOSE", subID]
func EncodeClose(subID string) []byte {
	b, _ := marshalUnescaped([]interface{}{"CLOSE", subID})
	return b
}

// EncodeEvent builds ["EVENT", event] for publishing
func EncodeEvent(evt types.Event) ([]byte, error) {
	if evt.Tags == nil {
		evt.Tags = [][]string{}
	}
	return marshalUnescaped([]interface{}{"EVENT", evt})
}

// marshalUnescaped encodes without escaping <, >, & so relays see the exact
// bytes the id was computed over.
func marshalUnescaped(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
