// Package events provides the event envelope and routing infrastructure
// shared by publishers and consumers.
// This is part of the platform layer and contains no business logic.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire form of every domain event.
// EventID is the idempotency key; Version is monotonic per aggregate.
type Envelope struct {
	EventID     uuid.UUID       `json:"eventId"`
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregateId"`
	Version     int64           `json:"version"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Source      string          `json:"source,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// New builds an envelope with a fresh event id around payload.
func New(eventType, aggregateID string, version int64, occurredAt time.Time, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:     uuid.New(),
		Type:        eventType,
		AggregateID: aggregateID,
		Version:     version,
		OccurredAt:  occurredAt.UTC(),
		Payload:     raw,
	}, nil
}

// Validate checks the fields every consumer relies on.
func (e Envelope) Validate() error {
	switch {
	case e.EventID == uuid.Nil:
		return errors.New("event id is required")
	case e.Type == "":
		return errors.New("event type is required")
	case e.AggregateID == "":
		return errors.New("aggregate id is required")
	case e.Version < 1:
		return errors.New("version must be positive")
	case len(e.Payload) == 0:
		return errors.New("payload is required")
	}
	return nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Marshal encodes the envelope for the wire.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes and validates an envelope from the wire.
func Unmarshal(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Publisher hands an envelope to the message bus for topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, env Envelope) error
}

// Handler processes one delivered envelope.
type Handler interface {
	Handle(ctx context.Context, env Envelope) error
}

// HandlerFunc is an adapter to allow ordinary functions to be used as handlers.
type HandlerFunc func(ctx context.Context, env Envelope) error

// Handle calls the underlying function.
func (f HandlerFunc) Handle(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}
