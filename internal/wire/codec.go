package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

var DefaultCodec = NewJSONCodec()

// ErrEmptyFrame is returned when a zero-length frame arrives on the socket.
var ErrEmptyFrame = errors.New("wire: empty frame")

type Codec struct {
	Marshal   func(v any) ([]byte, error)
	Unmarshal func(data []byte, v any) error
}

func NewJSONCodec() *Codec {
	return &Codec{
		Marshal:   json.Marshal,
		Unmarshal: json.Unmarshal,
	}
}

func NewCBORCodec() *Codec {
	return &Codec{
		Marshal:   cbor.Marshal,
		Unmarshal: cbor.Unmarshal,
	}
}

// Envelope is the frame every client and server message travels in.
type Envelope struct {
	Type          MessageType     `json:"type"`
	Timestamp     int64           `json:"timestamp"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// Compose builds an outbound frame of the given type around the payload.
// It panics when the payload cannot be marshalled, which only happens for
// programmer errors (channels, funcs) and never for wire input.
func Compose(msgType MessageType, correlationID string, payload any) []byte {
	var raw json.RawMessage
	if payload != nil {
		out, err := DefaultCodec.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("wire: compose %s: %v", msgType, err))
		}
		raw = out
	}

	frame, err := DefaultCodec.Marshal(Envelope{
		Type:          msgType,
		Timestamp:     time.Now().UTC().UnixMilli(),
		CorrelationID: correlationID,
		Payload:       raw,
	})
	if err != nil {
		panic(fmt.Sprintf("wire: compose %s: %v", msgType, err))
	}
	return frame
}

// Decode parses an inbound frame into its envelope. The payload stays raw
// so the router can defer parsing until the type is known.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if len(frame) == 0 {
		return env, ErrEmptyFrame
	}
	if err := DefaultCodec.Unmarshal(frame, &env); err != nil {
		return env, err
	}
	return env, nil
}

// DecodePayload parses the payload of an already-decoded envelope.
func DecodePayload[T any](env Envelope) (T, error) {
	var v T
	if len(env.Payload) == 0 {
		return v, nil
	}
	if err := DefaultCodec.Unmarshal(env.Payload, &v); err != nil {
		return v, err
	}
	return v, nil
}
