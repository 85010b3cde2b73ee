package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	"github.com/angelmondragon/mangopay-gateway/pkg/config"
	"github.com/angelmondragon/mangopay-gateway/pkg/db/models"
	"github.com/angelmondragon/mangopay-gateway/pkg/enums"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/logger"
	"github.com/angelmondragon/mangopay-gateway/pkg/marketplace"
	"github.com/angelmondragon/mangopay-gateway/pkg/outbox"
	"github.com/angelmondragon/mangopay-gateway/pkg/outbox/payloads"
	"github.com/angelmondragon/mangopay-gateway/pkg/outbox/registry"
)

// harness is one publisher over in-memory collaborators.
type harness struct {
	svc      *Service
	rows     *memRows
	pub      *scriptedPublisher
	recorder *memRecorder
	dlq      *memDLQ
}

type harnessOpt func(*ServiceParams, *harness)

func withMaxAttempts(n int) harnessOpt {
	return func(p *ServiceParams, _ *harness) { p.Config.Outbox.MaxAttempts = n }
}

func withResolveError(err error) harnessOpt {
	return func(p *ServiceParams, _ *harness) { p.Registry = failingResolver{err: err} }
}

func withRecordError(err error) harnessOpt {
	return func(_ *ServiceParams, h *harness) { h.recorder.err = err }
}

func newHarness(t *testing.T, rows []models.OutboxEvent, publishErrs []error, opts ...harnessOpt) *harness {
	t.Helper()
	h := &harness{
		rows:     &memRows{claim: rows},
		pub:      &scriptedPublisher{errs: publishErrs},
		recorder: &memRecorder{},
		dlq:      &memDLQ{},
	}
	cfg := &config.Config{Outbox: config.OutboxConfig{BatchSize: 10, PollIntervalMS: 100, MaxAttempts: 5}}
	cfg.FeatureFlags.PublishToPubSub = true

	resolver, err := registry.NewEventRegistry(config.PubSubConfig{ProcessorEventsTopic: "processor-events"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	params := ServiceParams{
		Config:           cfg,
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               passthroughDB{},
		PubSub:           idlePubSub{},
		Repository:       h.rows,
		Registry:         resolver,
		Recorder:         h.recorder,
		PublisherFactory: func() publisher { return h.pub },
		DLQRepository:    h.dlq,
	}
	for _, opt := range opts {
		opt(&params, h)
	}
	h.svc, err = NewService(params)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	processed, err := h.svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(h.rows.claim) > 0 && !processed {
		t.Fatal("expected batch to report claimed rows")
	}
}

func TestDeliveryOutcomes(t *testing.T) {
	rejection := pkgerrors.Wrap(pkgerrors.CodeUpstream, &marketplace.APIError{StatusCode: http.StatusUnprocessableEntity}, "event request failed")
	throttled := pkgerrors.Wrap(pkgerrors.CodeUpstream, &marketplace.APIError{StatusCode: http.StatusTooManyRequests}, "event request failed")

	tests := []struct {
		name        string
		attempts    int
		publishErrs []error
		opts        []harnessOpt
		published   int
		failed      int
		recorded    int
		dlqReason   enums.OutboxDLQErrorReason
		publishes   int
	}{
		{name: "delivered", publishErrs: []error{nil}, published: 1, recorded: 1, publishes: 1},
		{name: "publish error retried", publishErrs: []error{errors.New("unavailable")}, failed: 1, recorded: 1, publishes: 1},
		{name: "record error retried before publish", opts: []harnessOpt{withRecordError(errors.New("connection reset"))}, failed: 1},
		{name: "throttled record retried", opts: []harnessOpt{withRecordError(throttled)}, failed: 1},
		{name: "platform rejection dead-lettered", opts: []harnessOpt{withRecordError(rejection)}, failed: 1, dlqReason: enums.OutboxDLQReasonNonRetryable},
		{name: "unresolvable row dead-lettered", opts: []harnessOpt{withResolveError(registry.NewNonRetryableError(errors.New("bad envelope")))}, failed: 1, dlqReason: enums.OutboxDLQReasonNonRetryable},
		{name: "last attempt dead-lettered", attempts: 1, publishErrs: []error{errors.New("unavailable")}, opts: []harnessOpt{withMaxAttempts(2)}, failed: 1, recorded: 1, publishes: 1, dlqReason: enums.OutboxDLQReasonMaxAttempts},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := processorRow(t, "3001")
			row.AttemptCount = tt.attempts
			h := newHarness(t, []models.OutboxEvent{row}, tt.publishErrs, tt.opts...)
			h.run(t)

			if len(h.rows.published) != tt.published || len(h.rows.failed) != tt.failed || len(h.rows.recorded) != tt.recorded {
				t.Fatalf("rows: published=%d failed=%d recorded=%d", len(h.rows.published), len(h.rows.failed), len(h.rows.recorded))
			}
			if h.pub.calls != tt.publishes {
				t.Fatalf("expected %d publishes, got %d", tt.publishes, h.pub.calls)
			}
			if tt.dlqReason == "" {
				if len(h.dlq.entries) != 0 {
					t.Fatalf("unexpected dlq entries %+v", h.dlq.entries)
				}
				return
			}
			if len(h.dlq.entries) != 1 {
				t.Fatalf("expected one dlq entry, got %d", len(h.dlq.entries))
			}
			entry := h.dlq.entries[0]
			if entry.ErrorReason != tt.dlqReason || entry.EventID != row.ID {
				t.Fatalf("unexpected dlq entry %+v", entry)
			}
			if entry.PlatformID != "42" || entry.ResourceID != "3001" || !bytes.Equal(entry.Payload, row.Payload) {
				t.Fatalf("dlq entry lost the row scope: %+v", entry)
			}
		})
	}
}

func TestBatchContinuesPastFailedRow(t *testing.T) {
	first, second := processorRow(t, "3001"), processorRow(t, "3002")
	h := newHarness(t, []models.OutboxEvent{first, second}, []error{errors.New("transient"), nil})
	h.run(t)

	if len(h.rows.failed) != 1 || h.rows.failed[0] != first.ID {
		t.Fatalf("expected first row failed, got %v", h.rows.failed)
	}
	if len(h.rows.published) != 1 || h.rows.published[0] != second.ID {
		t.Fatalf("expected second row published, got %v", h.rows.published)
	}
	if len(h.rows.recorded) != 2 {
		t.Fatalf("expected both rows recorded, got %d", len(h.rows.recorded))
	}
}

func TestRecordingUsesRowScope(t *testing.T) {
	h := newHarness(t, []models.OutboxEvent{processorRow(t, "3001")}, []error{nil})
	h.run(t)

	if len(h.recorder.events) != 1 {
		t.Fatalf("expected one platform event, got %d", len(h.recorder.events))
	}
	got := h.recorder.events[0]
	if got.Type != "mangopay_PAYIN_NORMAL_SUCCEEDED" || got.ObjectID != "3001" || got.EmitterID != payloads.ProcessorEmitterID {
		t.Fatalf("unexpected platform event %+v", got)
	}
	if h.recorder.scopes[0] != (marketplace.Scope{PlatformID: "42", Env: "test"}) {
		t.Fatalf("unexpected scope %+v", h.recorder.scopes[0])
	}
}

func TestAlreadyRecordedRowOnlyPublishes(t *testing.T) {
	row := processorRow(t, "3001")
	at := time.Now().UTC()
	row.RecordedAt = &at
	h := newHarness(t, []models.OutboxEvent{row}, []error{nil})
	h.run(t)

	if len(h.recorder.events) != 0 || len(h.rows.recorded) != 0 {
		t.Fatal("expected no second platform record")
	}
	if len(h.rows.published) != 1 || h.pub.calls != 1 {
		t.Fatalf("expected publish only, published=%d calls=%d", len(h.rows.published), h.pub.calls)
	}
}

func TestPublishingDisabledStillRecords(t *testing.T) {
	h := newHarness(t, []models.OutboxEvent{processorRow(t, "3001")}, nil)
	h.svc.publish = false
	h.run(t)

	if h.pub.calls != 0 {
		t.Fatalf("expected no publish calls, got %d", h.pub.calls)
	}
	if len(h.rows.recorded) != 1 || len(h.rows.published) != 1 {
		t.Fatal("expected row recorded and marked delivered")
	}
}

func TestNewServiceRequiresPublisherWhenPublishing(t *testing.T) {
	cfg := &config.Config{}
	cfg.FeatureFlags.PublishToPubSub = true
	_, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:            passthroughDB{},
		Repository:    &memRows{},
		Registry:      failingResolver{},
		Recorder:      &memRecorder{},
		DLQRepository: &memDLQ{},
	})
	if err == nil {
		t.Fatal("expected error without a pubsub client")
	}
}

func TestNextBackoffCaps(t *testing.T) {
	if got := nextBackoff(0, time.Second, 10*time.Second); got != 2*time.Second {
		t.Fatalf("unexpected first backoff %s", got)
	}
	if got := nextBackoff(8*time.Second, time.Second, 10*time.Second); got != 10*time.Second {
		t.Fatalf("expected cap, got %s", got)
	}
}

func processorRow(tb testing.TB, resourceID string) models.OutboxEvent {
	tb.Helper()
	event := payloads.ProcessorEvent{
		ID:          uuid.NewString(),
		Type:        payloads.ProcessorEventPrefix + "PAYIN_NORMAL_SUCCEEDED",
		ResourceID:  resourceID,
		Timestamp:   1772366400,
		PlatformID:  "42",
		PlatformEnv: "test",
		ReceivedAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		tb.Fatalf("marshal event: %v", err)
	}
	payload, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: event.ID, OccurredAt: event.ReceivedAt, Data: data})
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:          uuid.New(),
		EventType:   enums.EventProcessorWebhookReceived,
		PlatformID:  event.PlatformID,
		PlatformEnv: event.PlatformEnv,
		ResourceID:  resourceID,
		DedupeKey:   event.ID,
		Payload:     payload,
		CreatedAt:   event.ReceivedAt,
	}
}

type memRows struct {
	claim     []models.OutboxEvent
	recorded  []uuid.UUID
	published []uuid.UUID
	failed    []uuid.UUID
}

func (m *memRows) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return m.claim, nil
}

func (m *memRows) MarkRecordedTx(_ *gorm.DB, id uuid.UUID) error {
	m.recorded = append(m.recorded, id)
	return nil
}

func (m *memRows) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	m.published = append(m.published, id)
	return nil
}

func (m *memRows) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	m.failed = append(m.failed, id)
	return nil
}

func (m *memRows) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	m.failed = append(m.failed, id)
	return nil
}

type memDLQ struct{ entries []models.OutboxDLQ }

func (m *memDLQ) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	m.entries = append(m.entries, entry)
	return nil
}

type passthroughDB struct{}

func (passthroughDB) Ping(context.Context) error { return nil }

func (passthroughDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type idlePubSub struct{}

func (idlePubSub) Ping(context.Context) error { return nil }

func (idlePubSub) ProcessorEventsPublisher() *gcppubsub.Publisher { return nil }

// scriptedPublisher fails the nth publish with errs[n]; calls past the
// script succeed.
type scriptedPublisher struct {
	errs  []error
	calls int
}

func (p *scriptedPublisher) Publish(context.Context, *gcppubsub.Message) publishResult {
	var err error
	if p.calls < len(p.errs) {
		err = p.errs[p.calls]
	}
	p.calls++
	return settledResult{err: err}
}

type settledResult struct{ err error }

func (r settledResult) Get(context.Context) (string, error) { return "msg-1", r.err }

type memRecorder struct {
	events []payloads.PlatformEvent
	scopes []marketplace.Scope
	err    error
}

func (m *memRecorder) CreateEvent(ctx context.Context, event payloads.PlatformEvent) (*resources.Event, error) {
	scope, _ := marketplace.ScopeFromContext(ctx)
	m.scopes = append(m.scopes, scope)
	if m.err != nil {
		return nil, m.err
	}
	m.events = append(m.events, event)
	return &resources.Event{ID: "evt_1", Type: event.Type, ObjectID: event.ObjectID}, nil
}

type failingResolver struct{ err error }

func (f failingResolver) Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error) {
	return nil, f.err
}
