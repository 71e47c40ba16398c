package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const envelopeVersion = 1

// Message types carried over the telemetry and control topics.
const (
	TypeCellHeartbeat  = "cell.heartbeat"
	TypeSessionEvent   = "cell.session"
	TypeCommandControl = "cell.control"
)

// Address identifies a message source or destination.
type Address struct {
	Role string `json:"role"` // "cell" or "supervisor"
	Cell string `json:"cell,omitempty"`
}

// Envelope is the wrapper for all messages published or consumed by a cell.
type Envelope struct {
	Version   int             `json:"v"`
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Src       Address         `json:"src"`
	Dst       Address         `json:"dst"`
	Timestamp time.Time       `json:"ts"`
	CorID     string          `json:"cor,omitempty"`
	Payload   json.RawMessage `json:"p"`
}

// NewEnvelope creates an outbound envelope.
func NewEnvelope(msgType string, src, dst Address, payload any) (*Envelope, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Version:   envelopeVersion,
		Type:      msgType,
		ID:        uuid.New().String(),
		Src:       src,
		Dst:       dst,
		Timestamp: time.Now().UTC(),
		Payload:   p,
	}, nil
}

// Encode marshals the envelope to JSON.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses an inbound envelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// DecodePayload unmarshals the raw payload into the given target.
func (e *Envelope) DecodePayload(target any) error {
	return json.Unmarshal(e.Payload, target)
}
