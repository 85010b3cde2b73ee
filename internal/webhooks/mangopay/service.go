// Package mangopaywebhook ingests processor notifications and queues them for
// recording on the platform.
package mangopaywebhook

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	"github.com/angelmondragon/mangopay-gateway/pkg/enums"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/logger"
	"github.com/angelmondragon/mangopay-gateway/pkg/marketplace"
	"github.com/angelmondragon/mangopay-gateway/pkg/metrics"
	"github.com/angelmondragon/mangopay-gateway/pkg/outbox"
	"github.com/angelmondragon/mangopay-gateway/pkg/outbox/payloads"
)

// Result is returned to the processor. Duplicates are accepted so they are
// not redelivered.
type Result struct {
	Accepted  bool   `json:"accepted"`
	Duplicate bool   `json:"duplicate,omitempty"`
	EventID   string `json:"eventId,omitempty"`
	Type      string `json:"type"`
}

type eventFinder interface {
	FindEvents(ctx context.Context, eventType, objectID string, limit int) ([]resources.Event, error)
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type webhookObserver interface {
	Observe(env, outcome string)
}

type ServiceParams struct {
	Events   eventFinder
	Guard    deliveryGuard
	Outbox   outboxEmitter
	TxRunner txRunner
	Metrics  webhookObserver
	Logger   *logger.Logger
	Now      func() time.Time
}

type Service struct {
	events   eventFinder
	guard    deliveryGuard
	outbox   outboxEmitter
	txRunner txRunner
	metrics  webhookObserver
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event finder required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		events:   params.Events,
		guard:    params.Guard,
		outbox:   params.Outbox,
		txRunner: params.TxRunner,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// IngestRequest refuses an unknown routing id before the notification is
// parsed, then ingests the event carried by query or body.
func (s *Service) IngestRequest(ctx context.Context, routingID string, query url.Values, body []byte) (*Result, error) {
	scope, ok := marketplace.ParseRoutingID(routingID)
	if !ok {
		return nil, s.refusePlatform()
	}
	raw, err := ParseRawEvent(query, body)
	if err != nil {
		s.observe(scope.Env, metrics.WebhookRejected)
		return nil, err
	}
	return s.Ingest(ctx, routingID, raw)
}

// Ingest validates the routing id, drops duplicates and queues the event.
func (s *Service) Ingest(ctx context.Context, routingID string, raw RawEvent) (*Result, error) {
	scope, ok := marketplace.ParseRoutingID(routingID)
	if !ok {
		return nil, s.refusePlatform()
	}
	if raw.EventType == "" || raw.ResourceID == "" {
		s.observe(scope.Env, metrics.WebhookRejected)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "processor args not acceptable").
			WithDetails(map[string]any{"reason": "EventType and RessourceId are required"})
	}

	ctx = marketplace.WithScope(ctx, scope)
	eventType := payloads.ProcessorEventPrefix + raw.EventType
	if s.logg != nil {
		ctx = s.logg.WithPlatform(ctx, scope.PlatformID, scope.Env)
		ctx = s.logg.WithFields(ctx, map[string]any{"event_type": eventType, "resource_id": raw.ResourceID})
	}
	result := &Result{Accepted: true, Type: eventType}

	key := DeliveryKey(scope, eventType, raw.ResourceID, raw.Date)
	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, key)
		if err != nil {
			s.observe(scope.Env, metrics.WebhookFailed)
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "webhook guard unavailable")
		}
		if seen {
			return s.duplicate(ctx, scope, result, "delivery already in progress"), nil
		}
	}

	existing, err := s.events.FindEvents(ctx, eventType, raw.ResourceID, 1)
	if err != nil {
		s.release(ctx, key)
		s.observe(scope.Env, metrics.WebhookFailed)
		return nil, err
	}
	if len(existing) > 0 {
		return s.duplicate(ctx, scope, result, "event already recorded"), nil
	}

	envelope := payloads.ProcessorEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		ResourceID:  raw.ResourceID,
		Timestamp:   raw.Date,
		PlatformID:  scope.PlatformID,
		PlatformEnv: scope.Env,
		ReceivedAt:  s.now().UTC(),
	}
	var queued bool
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		inserted, err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:   enums.EventProcessorWebhookReceived,
			PlatformID:  scope.PlatformID,
			PlatformEnv: scope.Env,
			ResourceID:  raw.ResourceID,
			DedupeKey:   key,
			Data:        envelope,
			OccurredAt:  envelope.ReceivedAt,
		})
		queued = inserted
		return err
	})
	if err != nil {
		s.release(ctx, key)
		s.observe(scope.Env, metrics.WebhookFailed)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook event")
	}
	if !queued {
		return s.duplicate(ctx, scope, result, "event already queued"), nil
	}

	result.EventID = envelope.ID
	s.observe(scope.Env, metrics.WebhookAccepted)
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "event_id", envelope.ID), "processor webhook queued")
	}
	return result, nil
}

func (s *Service) refusePlatform() error {
	s.observe("", metrics.WebhookRejected)
	return pkgerrors.New(pkgerrors.CodeForbidden, "invalid platform")
}

func (s *Service) duplicate(ctx context.Context, scope marketplace.Scope, result *Result, reason string) *Result {
	result.Duplicate = true
	s.observe(scope.Env, metrics.WebhookDuplicate)
	if s.logg != nil {
		s.logg.Info(ctx, "processor webhook skipped: "+reason)
	}
	return result
}

func (s *Service) release(ctx context.Context, key string) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Release(ctx, key); err != nil && s.logg != nil {
		s.logg.Error(ctx, "release webhook guard", err)
	}
}

func (s *Service) observe(env, outcome string) {
	if s.metrics != nil {
		s.metrics.Observe(env, outcome)
	}
}
