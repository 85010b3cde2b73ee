package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/mangopay-gateway/pkg/config"
	"github.com/angelmondragon/mangopay-gateway/pkg/db/models"
	"github.com/angelmondragon/mangopay-gateway/pkg/enums"
	"github.com/angelmondragon/mangopay-gateway/pkg/outbox"
	"github.com/angelmondragon/mangopay-gateway/pkg/outbox/payloads"
)

// NonRetryableError marks a row that will fail the same way on every attempt.
// The publisher dead-letters such rows immediately.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

// IsNonRetryable reports whether err or anything it wraps is a NonRetryableError.
func IsNonRetryable(err error) bool {
	var target NonRetryableError
	return errors.As(err, &target)
}

// EventDescriptor is what the publisher needs to know about one event type.
type EventDescriptor struct {
	EventType enums.OutboxEventType
	Topic     string
	decode    func(outbox.PayloadEnvelope) (any, error)
}

// ResolvedEvent is an outbox row with its envelope and typed payload.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

func describe[T any](eventType enums.OutboxEventType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType: eventType,
		Topic:     topic,
		decode: func(env outbox.PayloadEnvelope) (any, error) {
			payload := new(T)
			if err := env.DecodeData(payload); err != nil {
				return nil, err
			}
			return payload, nil
		},
	}
}

// EventRegistry resolves outbox rows by event type.
type EventRegistry struct {
	byType map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry binds every known event type to its Pub/Sub topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.ProcessorEventsTopic)
	if topic == "" {
		return nil, errors.New("processor events topic is required")
	}
	descriptors := []EventDescriptor{
		describe[payloads.ProcessorEvent](enums.EventProcessorWebhookReceived, topic),
	}
	r := &EventRegistry{byType: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, d := range descriptors {
		r.byType[d.EventType] = d
	}
	return r, nil
}

// Resolve checks the row carries a known type and a full platform scope, then
// decodes its payload. Every failure is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.byType[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %q", event.EventType))
	}
	if err := checkRow(event); err != nil {
		return nil, NewNonRetryableError(err)
	}
	env, err := outbox.ParseEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload, err := desc.decode(env)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}

func checkRow(event models.OutboxEvent) error {
	var missing []string
	if event.PlatformID == "" {
		missing = append(missing, "platform_id")
	}
	if event.PlatformEnv == "" {
		missing = append(missing, "platform_env")
	}
	if event.ResourceID == "" {
		missing = append(missing, "resource_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("outbox row %s missing %s", event.ID, strings.Join(missing, ", "))
	}
	return nil
}
