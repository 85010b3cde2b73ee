package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/mangopay-gateway/pkg/db/models"
	"github.com/angelmondragon/mangopay-gateway/pkg/enums"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/marketplace"
	"github.com/angelmondragon/mangopay-gateway/pkg/outbox/payloads"
	"github.com/angelmondragon/mangopay-gateway/pkg/outbox/registry"
)

// outcome is what deliver decided for one row. A nil err means delivered.
type outcome struct {
	err      error
	recorded bool
	topic    string
	eventID  string
}

// deliver resolves the row, records it on the marketplace unless a previous
// attempt already did, then publishes it when fan-out is enabled. The error
// return is reserved for bookkeeping failures that abort the batch.
func (s *Service) deliver(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (outcome, error) {
	resolved, err := s.registry.Resolve(row)
	if err != nil {
		return outcome{err: err}, nil
	}
	out := outcome{topic: resolved.Descriptor.Topic, eventID: resolved.Envelope.EventID}

	event, ok := resolved.Payload.(*payloads.ProcessorEvent)
	if !ok {
		out.err = registry.NewNonRetryableError(fmt.Errorf("unexpected payload %T for %s", resolved.Payload, row.EventType))
		return out, nil
	}

	if row.RecordedAt == nil {
		if out.err = s.record(ctx, row, event); out.err != nil {
			return out, nil
		}
		if err := s.repo.MarkRecordedTx(tx, row.ID); err != nil {
			return out, fmt.Errorf("mark recorded %s: %w", row.ID, err)
		}
		out.recorded = true
	}

	if s.publish {
		out.err = s.fanOut(ctx, row, out.eventID)
	}
	return out, nil
}

func (s *Service) record(ctx context.Context, row models.OutboxEvent, event *payloads.ProcessorEvent) error {
	ctx = marketplace.WithScope(ctx, marketplace.Scope{PlatformID: row.PlatformID, Env: row.PlatformEnv})
	ctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()

	_, err := s.recorder.CreateEvent(ctx, event.ToPlatformEvent())
	switch {
	case err == nil:
		return nil
	case rejectedByPlatform(err):
		return registry.NewNonRetryableError(fmt.Errorf("platform rejected event: %w", err))
	default:
		return fmt.Errorf("record platform event: %w", err)
	}
}

// rejectedByPlatform is true for 4xx answers other than timeouts and throttling.
func rejectedByPlatform(err error) bool {
	if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		return true
	}
	apiErr, ok := marketplace.AsAPIError(err)
	if !ok {
		return false
	}
	code := apiErr.StatusCode
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}
	return code >= 400 && code < 500
}

func (s *Service) fanOut(ctx context.Context, row models.OutboxEvent, eventID string) error {
	var pub publisher
	if s.publisher != nil {
		pub = s.publisher()
	}
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for %s", row.EventType))
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	res := pub.Publish(ctx, &gcppubsub.Message{
		Data: row.Payload,
		Attributes: map[string]string{
			"event_id":     eventID,
			"event_type":   string(row.EventType),
			"platform_id":  row.PlatformID,
			"platform_env": row.PlatformEnv,
			"resource_id":  row.ResourceID,
			"created_at":   row.CreatedAt.Format(time.RFC3339Nano),
		},
	})
	if res == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned no result for %s", row.EventType))
	}
	_, err := res.Get(ctx)
	return err
}

// settle writes the row state for an outcome: published, failed for another
// attempt, or moved to the DLQ.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, out outcome) error {
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"platform_id":   row.PlatformID,
		"platform_env":  row.PlatformEnv,
		"resource_id":   row.ResourceID,
		"attempt_count": row.AttemptCount,
	}
	if out.topic != "" {
		fields["topic"] = out.topic
	}
	if out.eventID != "" {
		fields["event_id"] = out.eventID
	}
	if out.recorded {
		fields["recorded"] = true
	}
	logCtx := s.logg.WithFields(ctx, fields)

	if out.err == nil {
		if err := s.repo.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		s.logg.Info(logCtx, "outbox event delivered")
		return nil
	}

	reason := enums.OutboxDLQReasonNonRetryable
	cause := out.err
	if !registry.IsNonRetryable(out.err) {
		attempt := row.AttemptCount + 1
		if attempt < s.maxAttempts {
			s.logg.Warn(s.logg.WithField(logCtx, "attempt", attempt), "outbox delivery failed: "+out.err.Error())
			if err := s.repo.MarkFailedTx(tx, row.ID, out.err); err != nil {
				return fmt.Errorf("mark failed %s: %w", row.ID, err)
			}
			return nil
		}
		reason = enums.OutboxDLQReasonMaxAttempts
		cause = fmt.Errorf("gave up after %d attempts: %w", attempt, out.err)
	}

	s.logg.Warn(s.logg.WithField(logCtx, "dlq_reason", reason), "outbox event dead-lettered: "+cause.Error())
	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:      row.ID,
		EventType:    row.EventType,
		PlatformID:   row.PlatformID,
		PlatformEnv:  row.PlatformEnv,
		ResourceID:   row.ResourceID,
		Payload:      row.Payload,
		ErrorReason:  reason,
		ErrorMessage: &msg,
		AttemptCount: row.AttemptCount,
		FailedAt:     time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, row.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return nil
}
