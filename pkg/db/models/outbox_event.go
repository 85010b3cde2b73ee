package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/mangopay-gateway/pkg/enums"
)

// OutboxEvent is an append-only record of a processor notification waiting to
// be recorded on the platform and fanned out.
type OutboxEvent struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	EventType    enums.OutboxEventType `gorm:"column:event_type;type:text;not null"`
	PlatformID   string                `gorm:"column:platform_id;type:text;not null"`
	PlatformEnv  string                `gorm:"column:platform_env;type:text;not null"`
	ResourceID   string                `gorm:"column:resource_id;type:text;not null"`
	DedupeKey    string                `gorm:"column:dedupe_key;type:text;not null;uniqueIndex:ux_outbox_events_dedupe_key"`
	Payload      json.RawMessage       `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
	RecordedAt   *time.Time            `gorm:"column:recorded_at"`
	PublishedAt  *time.Time            `gorm:"column:published_at"`
	AttemptCount int                   `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string               `gorm:"column:last_error"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// BeforeCreate assigns the primary key client side so SQLite and Postgres
// behave the same.
func (e *OutboxEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
