package mangopaywebhook

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/marketplace"
	"github.com/angelmondragon/mangopay-gateway/pkg/metrics"
	"github.com/angelmondragon/mangopay-gateway/pkg/outbox"
	"github.com/angelmondragon/mangopay-gateway/pkg/outbox/payloads"
)

type memoryStore struct {
	keys map[string]bool
	err  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]bool{}}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	if m.keys[key] {
		return "1", nil
	}
	return "", nil
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

func (m *memoryStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

type stubEvents struct {
	events  []resources.Event
	queries []string
	err     error
}

func (s *stubEvents) FindEvents(ctx context.Context, eventType, objectID string, limit int) ([]resources.Event, error) {
	s.queries = append(s.queries, eventType+"/"+objectID)
	if s.err != nil {
		return nil, s.err
	}
	if _, ok := marketplace.ScopeFromContext(ctx); !ok {
		return nil, errors.New("scope missing")
	}
	return s.events, nil
}

type stubEmitter struct {
	emitted  []outbox.DomainEvent
	inserted bool
	err      error
}

func (s *stubEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.emitted = append(s.emitted, event)
	return s.inserted, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubObserver struct {
	outcomes []string
}

func (s *stubObserver) Observe(env, outcome string) {
	s.outcomes = append(s.outcomes, env+":"+outcome)
}

type ingestHarness struct {
	service  *Service
	store    *memoryStore
	events   *stubEvents
	emitter  *stubEmitter
	observed *stubObserver
}

func newIngestHarness(t *testing.T) *ingestHarness {
	t.Helper()
	store := newMemoryStore()
	guard, err := NewDeliveryGuard(store, time.Hour)
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	h := &ingestHarness{
		store:    store,
		events:   &stubEvents{},
		emitter:  &stubEmitter{inserted: true},
		observed: &stubObserver{},
	}
	h.service, err = NewService(ServiceParams{
		Events:   h.events,
		Guard:    guard,
		Outbox:   h.emitter,
		TxRunner: stubTxRunner{},
		Metrics:  h.observed,
		Now:      func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return h
}

var payInSucceeded = RawEvent{EventType: "PAYIN_NORMAL_SUCCEEDED", ResourceID: "3001", Date: 1772366400}

func TestIngestQueuesEvent(t *testing.T) {
	h := newIngestHarness(t)

	result, err := h.service.Ingest(context.Background(), "e42_live", payInSucceeded)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !result.Accepted || result.Duplicate || result.EventID == "" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Type != "mangopay_PAYIN_NORMAL_SUCCEEDED" {
		t.Fatalf("unexpected type %s", result.Type)
	}
	if len(h.emitter.emitted) != 1 {
		t.Fatalf("expected one outbox row, got %d", len(h.emitter.emitted))
	}
	row := h.emitter.emitted[0]
	if row.PlatformID != "42" || row.PlatformEnv != "live" || row.ResourceID != "3001" {
		t.Fatalf("unexpected scope on row %+v", row)
	}
	envelope, ok := row.Data.(payloads.ProcessorEvent)
	if !ok {
		t.Fatalf("unexpected payload %T", row.Data)
	}
	if envelope.ID != result.EventID || envelope.Timestamp != payInSucceeded.Date {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
	if h.events.queries[0] != "mangopay_PAYIN_NORMAL_SUCCEEDED/3001" {
		t.Fatalf("unexpected lookup %v", h.events.queries)
	}
	if h.observed.outcomes[0] != "live:"+metrics.WebhookAccepted {
		t.Fatalf("unexpected outcome %v", h.observed.outcomes)
	}
}

func TestIngestRejectsInvalidRoutingID(t *testing.T) {
	h := newIngestHarness(t)
	for _, routing := range []string{"", "42_live", "e42_prod", "eabc_test"} {
		_, err := h.service.Ingest(context.Background(), routing, payInSucceeded)
		if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
			t.Fatalf("%q: expected forbidden, got %v", routing, err)
		}
	}
	if len(h.events.queries) != 0 {
		t.Fatalf("lookup must not run for invalid platforms")
	}
}

func TestIngestRequestChecksPlatformBeforeNotification(t *testing.T) {
	h := newIngestHarness(t)

	_, err := h.service.IngestRequest(context.Background(), "not-a-routing-id", url.Values{"Date": {"abc"}}, []byte(`{`))
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	_, err = h.service.IngestRequest(context.Background(), "e42_test", url.Values{"Date": {"abc"}}, nil)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	want := []string{":" + metrics.WebhookRejected, "test:" + metrics.WebhookRejected}
	if len(h.observed.outcomes) != 2 || h.observed.outcomes[0] != want[0] || h.observed.outcomes[1] != want[1] {
		t.Fatalf("unexpected outcomes %v", h.observed.outcomes)
	}

	query := url.Values{"EventType": {"PAYIN_NORMAL_SUCCEEDED"}, "RessourceId": {"3001"}}
	result, err := h.service.IngestRequest(context.Background(), "e42_test", query, nil)
	if err != nil || !result.Accepted || result.Duplicate {
		t.Fatalf("expected queued event, got %+v %v", result, err)
	}
}

func TestIngestRejectsEmptyEvent(t *testing.T) {
	h := newIngestHarness(t)
	_, err := h.service.Ingest(context.Background(), "e42_test", RawEvent{EventType: "PAYIN_NORMAL_SUCCEEDED"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIngestSkipsRepeatedDelivery(t *testing.T) {
	h := newIngestHarness(t)
	if _, err := h.service.Ingest(context.Background(), "e42_test", payInSucceeded); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	result, err := h.service.Ingest(context.Background(), "e42_test", payInSucceeded)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if !result.Duplicate || !result.Accepted {
		t.Fatalf("expected accepted duplicate, got %+v", result)
	}
	if len(h.emitter.emitted) != 1 {
		t.Fatalf("expected a single outbox row, got %d", len(h.emitter.emitted))
	}
}

func TestIngestSkipsRecordedEvent(t *testing.T) {
	h := newIngestHarness(t)
	h.events.events = []resources.Event{{ID: "evt_1", Type: "mangopay_PAYIN_NORMAL_SUCCEEDED", ObjectID: "3001"}}

	result, err := h.service.Ingest(context.Background(), "e42_test", payInSucceeded)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !result.Duplicate {
		t.Fatalf("expected duplicate")
	}
	if len(h.emitter.emitted) != 0 {
		t.Fatalf("duplicate must not be queued")
	}
}

func TestIngestReleasesGuardWhenOutboxFails(t *testing.T) {
	h := newIngestHarness(t)
	h.emitter.err = errors.New("db down")

	_, err := h.service.Ingest(context.Background(), "e42_test", payInSucceeded)
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if len(h.store.keys) != 0 {
		t.Fatalf("guard must be released, still holding %v", h.store.keys)
	}

	h.emitter.err = nil
	result, err := h.service.Ingest(context.Background(), "e42_test", payInSucceeded)
	if err != nil || result.Duplicate {
		t.Fatalf("retry should be queued, got %+v %v", result, err)
	}
}

func TestIngestGuardUnavailable(t *testing.T) {
	h := newIngestHarness(t)
	h.store.err = errors.New("redis down")

	_, err := h.service.Ingest(context.Background(), "e42_test", payInSucceeded)
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestParseRawEvent(t *testing.T) {
	query := url.Values{"EventType": {"TRANSFER_NORMAL_FAILED"}, "RessourceId": {"77"}, "Date": {"1772366400"}}
	event, err := ParseRawEvent(query, nil)
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	if event.EventType != "TRANSFER_NORMAL_FAILED" || event.ResourceID != "77" || event.Date != 1772366400 {
		t.Fatalf("unexpected event %+v", event)
	}

	event, err = ParseRawEvent(url.Values{}, []byte(`{"EventType":"PAYOUT_NORMAL_SUCCEEDED","RessourceId":88,"Date":1}`))
	if err != nil {
		t.Fatalf("parse body: %v", err)
	}
	if event.ResourceID != "88" || event.Date != 1 {
		t.Fatalf("unexpected event %+v", event)
	}

	if _, err := ParseRawEvent(url.Values{}, nil); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ParseRawEvent(url.Values{"EventType": {"X"}, "RessourceId": {"1"}, "Date": {"soon"}}, nil); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for date, got %v", err)
	}
}
