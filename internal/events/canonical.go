package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// DomainEvent is implemented by the versioned payloads this package persists.
type DomainEvent interface {
	EventType() string
}

// Envelope wraps a domain event with the metadata downstream consumers route
// on. The payload schema inside is owned by the event type.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventType     string          `json:"event_type"`
	Aggregate     string          `json:"aggregate"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EnvelopeOption adjusts envelope metadata before it is persisted.
type EnvelopeOption func(*Envelope)

// WithOccurredAt pins the envelope timestamp to the domain time of the event
// instead of the wall clock at append time.
func WithOccurredAt(at time.Time) EnvelopeOption {
	return func(e *Envelope) {
		if !at.IsZero() {
			e.OccurredAt = at.UTC()
		}
	}
}

var (
	errAccountRequired = errors.New("events: account id required")
	errNilEvent        = errors.New("events: domain event required")
)

// Events are partitioned per tenant; the aggregate string is what the outbox
// and its consumers key on.
func accountAggregate(accountID uuid.UUID) string {
	return "account:" + accountID.String()
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AppendCanonicalEvent persists evt to the outbox inside the caller's
// transaction, scoped to the account's aggregate. correlationID carries the
// provider event id when one exists, tying the stored event back to the
// webhook delivery that produced it.
func AppendCanonicalEvent(ctx context.Context, exec execer, accountID uuid.UUID, correlationID string, evt DomainEvent, opts ...EnvelopeOption) (Envelope, error) {
	if exec == nil {
		return Envelope{}, errors.New("events: exec required")
	}
	if accountID == uuid.Nil {
		return Envelope{}, errAccountRequired
	}
	if evt == nil {
		return Envelope{}, errNilEvent
	}
	eventType := strings.TrimSpace(evt.EventType())
	if eventType == "" {
		return Envelope{}, errors.New("events: event type missing")
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal %s payload: %w", eventType, err)
	}
	env := Envelope{
		EventID:       uuid.New(),
		EventType:     eventType,
		Aggregate:     accountAggregate(accountID),
		OccurredAt:    time.Now().UTC(),
		CorrelationID: strings.TrimSpace(correlationID),
		Payload:       payload,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&env)
		}
	}

	data, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal envelope: %w", err)
	}
	query := `
		INSERT INTO outbox (id, aggregate, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := exec.Exec(ctx, query, env.EventID, env.Aggregate, env.EventType, data); err != nil {
		return Envelope{}, fmt.Errorf("events: append %s: %w", eventType, err)
	}
	return env, nil
}
