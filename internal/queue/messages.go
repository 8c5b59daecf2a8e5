package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ProductBay/vynce/internal/domain"
)

// EventMessage is the Kafka envelope of one published dialer event.
type EventMessage struct {
	Event      string          `json:"event"`
	Key        string          `json:"key,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// DecodeEvent parses a Kafka message value.
func DecodeEvent(value []byte) (EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return EventMessage{}, fmt.Errorf("queue: decode event: %w", err)
	}
	if msg.Event == "" {
		return EventMessage{}, fmt.Errorf("queue: decode event: missing event name")
	}
	return msg, nil
}

// Call decodes the payload of a callUpdate or callEnded event.
func (m EventMessage) Call() (*domain.Call, error) {
	var call domain.Call
	if err := json.Unmarshal(m.Payload, &call); err != nil {
		return nil, fmt.Errorf("queue: decode %s payload: %w", m.Event, err)
	}
	if call.LocalID == "" {
		return nil, fmt.Errorf("queue: %s payload has no localId", m.Event)
	}
	return &call, nil
}
