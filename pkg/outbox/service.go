package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/mangopay-gateway/pkg/db"
	"github.com/angelmondragon/mangopay-gateway/pkg/db/models"
	"github.com/angelmondragon/mangopay-gateway/pkg/enums"
	"github.com/angelmondragon/mangopay-gateway/pkg/logger"
)

const dedupeConstraint = "ux_outbox_events_dedupe_key"

// DomainEvent is a row to queue for out-of-band delivery.
type DomainEvent struct {
	EventType   enums.OutboxEventType
	PlatformID  string
	PlatformEnv string
	ResourceID  string
	DedupeKey   string
	Data        any
	OccurredAt  time.Time
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit writes the event inside tx. It reports false without error when a row
// with the same dedupe key already exists.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	if !event.EventType.IsValid() {
		return false, errors.New("invalid outbox event type")
	}
	if event.DedupeKey == "" {
		return false, errors.New("dedupe key required")
	}
	envelope, err := NewEnvelope(event.Data, event.OccurredAt)
	if err != nil {
		return false, err
	}
	payloadJSON, err := json.Marshal(envelope)
	if err != nil {
		return false, err
	}

	row := &models.OutboxEvent{
		EventType:   event.EventType,
		PlatformID:  event.PlatformID,
		PlatformEnv: event.PlatformEnv,
		ResourceID:  event.ResourceID,
		DedupeKey:   event.DedupeKey,
		Payload:     json.RawMessage(payloadJSON),
	}
	inserted, err := s.repo.Insert(tx, row)
	if err != nil {
		if dbpkg.IsUniqueViolation(err, dedupeConstraint) {
			return false, nil
		}
		return false, err
	}
	if !inserted {
		return false, nil
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"outbox_id":    row.ID.String(),
			"event_id":     envelope.EventID,
			"event_type":   event.EventType,
			"resource_id":  event.ResourceID,
			"platform_id":  event.PlatformID,
			"platform_env": event.PlatformEnv,
		})
		s.logg.Info(logCtx, "outbox event queued")
	}
	return true, nil
}
