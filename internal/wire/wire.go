// Package wire defines the JSON envelope exchanged over the websocket
// transport: one object per message, tagged by Type.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/drawbridge-app/drawbridge/internal/shape"
)

// Type discriminates envelope variants.
type Type string

const (
	TypeJoinRoom  Type = "join_room"
	TypeLeaveRoom Type = "leave_room"
	TypeDraw      Type = "draw"
	TypeUpdate    Type = "update"
	TypeDelete    Type = "delete"

	// TypeError is server→client only: the relay's rejection of a bad
	// request, delivered to the offending sender and nobody else.
	TypeError Type = "error"
)

var (
	ErrUnknownType  = errors.New("unknown envelope type")
	ErrMissingRoom  = errors.New("envelope has no roomId")
	ErrMissingShape = errors.New("envelope has no shape payload")
	ErrMissingID    = errors.New("envelope has no shapeId")
)

// Envelope is one transport message.
//
// Shape rides under the "message" key for draw and update; delete
// carries only the ShapeID. Error is set on TypeError envelopes.
type Envelope struct {
	Type    Type         `json:"type"`
	RoomID  string       `json:"roomId,omitempty"`
	Shape   *shape.Shape `json:"message,omitempty"`
	ShapeID string       `json:"shapeId,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Validate checks the structural requirements for the envelope's type.
// It does not check durable-id requirements for updates; that rejection
// is the router's job because it answers with an error envelope instead
// of dropping the message.
func (e Envelope) Validate() error {
	switch e.Type {
	case TypeJoinRoom, TypeLeaveRoom:
		if e.RoomID == "" {
			return ErrMissingRoom
		}
		return nil
	case TypeDraw, TypeUpdate:
		if e.RoomID == "" {
			return ErrMissingRoom
		}
		if e.Shape == nil {
			return ErrMissingShape
		}
		return e.Shape.Validate()
	case TypeDelete:
		if e.RoomID == "" {
			return ErrMissingRoom
		}
		if e.ShapeID == "" {
			return ErrMissingID
		}
		return nil
	case TypeError:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
}

// Decode parses and validates one inbound message.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return e, nil
}

// ErrorEnvelope builds the rejection sent back to a misbehaving sender.
func ErrorEnvelope(roomID, msg string) Envelope {
	return Envelope{Type: TypeError, RoomID: roomID, Error: msg}
}
