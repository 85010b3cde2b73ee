// Package resourcestest provides an in-memory marketplace for tests.
package resourcestest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/outbox/payloads"
	"github.com/angelmondragon/mangopay-gateway/pkg/types"
)

// Store implements resources.Service over maps. Updates are deep-merged the
// way the marketplace merges platformData and metadata.
type Store struct {
	mu sync.Mutex

	Users        map[string]map[string]any
	Assets       map[string]map[string]any
	Transactions map[string]map[string]any
	Orders       map[string]*resources.Order
	Entries      []*resources.Entry
	Tasks        []resources.TaskInput
	Events       []resources.Event
	Created      []payloads.PlatformEvent

	PrivateConfig resources.PrivateConfig
	PublicConfig  resources.PublicConfig
	Rate          int64
	RateRequests  []resources.RateRequest

	// Errs injects a failure per operation name, e.g. "UpdateAsset:ast_1".
	Errs map[string]error
}

func NewStore() *Store {
	return &Store{
		Users:        map[string]map[string]any{},
		Assets:       map[string]map[string]any{},
		Transactions: map[string]map[string]any{},
		Orders:       map[string]*resources.Order{},
		Errs:         map[string]error{},
	}
}

// PutUser stores any JSON-shaped value as a user document.
func (s *Store) PutUser(id string, doc any) {
	s.put(s.Users, id, doc)
}

func (s *Store) PutAsset(id string, doc any) {
	s.put(s.Assets, id, doc)
}

func (s *Store) PutTransaction(id string, doc any) {
	s.put(s.Transactions, id, doc)
}

func (s *Store) put(into map[string]map[string]any, id string, doc any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := toMap(doc)
	m["id"] = id
	into[id] = m
}

func toMap(doc any) map[string]any {
	raw, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		panic(err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m
}

func decode[T any](doc map[string]any) (*T, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func merge(dst, src map[string]any) {
	for key, value := range src {
		srcMap, srcIsMap := value.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			merge(dstMap, srcMap)
			continue
		}
		dst[key] = value
	}
}

func (s *Store) injected(op, id string) error {
	if err, ok := s.Errs[op+":"+id]; ok {
		return err
	}
	return s.Errs[op]
}

func (s *Store) read(kind string, from map[string]map[string]any, id string) (map[string]any, error) {
	doc, ok := from[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, kind+" not found")
	}
	return doc, nil
}

func (s *Store) update(kind string, from map[string]map[string]any, id string, patch types.Patch) (map[string]any, error) {
	doc, err := s.read(kind, from, id)
	if err != nil {
		return nil, err
	}
	merge(doc, toMap(patch))
	return doc, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*resources.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("GetUser", id); err != nil {
		return nil, err
	}
	doc, err := s.read("user", s.Users, id)
	if err != nil {
		return nil, err
	}
	return decode[resources.User](doc)
}

func (s *Store) UpdateUser(ctx context.Context, id string, patch types.Patch) (*resources.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("UpdateUser", id); err != nil {
		return nil, err
	}
	doc, err := s.update("user", s.Users, id, patch)
	if err != nil {
		return nil, err
	}
	return decode[resources.User](doc)
}

func (s *Store) GetAsset(ctx context.Context, id string) (*resources.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("GetAsset", id); err != nil {
		return nil, err
	}
	doc, err := s.read("asset", s.Assets, id)
	if err != nil {
		return nil, err
	}
	return decode[resources.Asset](doc)
}

func (s *Store) UpdateAsset(ctx context.Context, id string, patch types.Patch) (*resources.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("UpdateAsset", id); err != nil {
		return nil, err
	}
	doc, err := s.update("asset", s.Assets, id, patch)
	if err != nil {
		return nil, err
	}
	return decode[resources.Asset](doc)
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*resources.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("GetTransaction", id); err != nil {
		return nil, err
	}
	doc, err := s.read("transaction", s.Transactions, id)
	if err != nil {
		return nil, err
	}
	return decode[resources.Transaction](doc)
}

func (s *Store) UpdateTransaction(ctx context.Context, id string, patch types.Patch) (*resources.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("UpdateTransaction", id); err != nil {
		return nil, err
	}
	doc, err := s.update("transaction", s.Transactions, id, patch)
	if err != nil {
		return nil, err
	}
	return decode[resources.Transaction](doc)
}

func (s *Store) FindTransactionOrder(ctx context.Context, transactionID string) (*resources.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Orders[transactionID], nil
}

func (s *Store) FindEntry(ctx context.Context, q resources.EntryQuery) (*resources.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.Entries) - 1; i >= 0; i-- {
		entry := s.Entries[i]
		if entry.Collection == q.Collection && entry.Name == q.Name {
			copied := *entry
			copied.Fields.Home = append([]string(nil), entry.Fields.Home...)
			return &copied, nil
		}
	}
	return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "entry %s/%s not found", q.Collection, q.Name)
}

func (s *Store) UpdateEntryFields(ctx context.Context, entryID string, fields resources.EntryFields) (*resources.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.Entries {
		if entry.ID == entryID {
			entry.Fields.Home = append([]string(nil), fields.Home...)
			copied := *entry
			return &copied, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "entry not found")
}

func (s *Store) CreateTask(ctx context.Context, input resources.TaskInput) (*resources.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateTask", ""); err != nil {
		return nil, err
	}
	s.Tasks = append(s.Tasks, input)
	return &resources.Task{
		ID:            fmt.Sprintf("task_%d", len(s.Tasks)),
		ExecutionDate: input.ExecutionDate,
		EventType:     input.EventType,
		EventMetadata: input.EventMetadata,
	}, nil
}

func (s *Store) FindEvents(ctx context.Context, eventType, objectID string, limit int) ([]resources.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("FindEvents", ""); err != nil {
		return nil, err
	}
	var out []resources.Event
	for i := len(s.Events) - 1; i >= 0 && len(out) < limit; i-- {
		event := s.Events[i]
		if event.Type == eventType && (objectID == "" || event.ObjectID == objectID) {
			out = append(out, event)
		}
	}
	return out, nil
}

func (s *Store) CreateEvent(ctx context.Context, event payloads.PlatformEvent) (*resources.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateEvent", ""); err != nil {
		return nil, err
	}
	s.Created = append(s.Created, event)
	created := resources.Event{
		ID:       fmt.Sprintf("evt_%d", len(s.Created)),
		Type:     event.Type,
		ObjectID: event.ObjectID,
		Metadata: event.Metadata,
	}
	s.Events = append(s.Events, created)
	return &created, nil
}

func (s *Store) ShippingRate(ctx context.Context, req resources.RateRequest) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("ShippingRate", ""); err != nil {
		return 0, err
	}
	s.RateRequests = append(s.RateRequests, req)
	return s.Rate, nil
}

func (s *Store) Config() resources.ConfigRequester {
	return configView{store: s}
}

type configView struct {
	store *Store
}

func (c configView) Private(context.Context) (*resources.PrivateConfig, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	cfg := c.store.PrivateConfig
	return &cfg, nil
}

func (c configView) Public(context.Context) (*resources.PublicConfig, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	cfg := c.store.PublicConfig
	return &cfg, nil
}

// Raw returns a copy of the stored document for assertions.
func (s *Store) Raw(kind, id string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var from map[string]map[string]any
	switch kind {
	case "user":
		from = s.Users
	case "asset":
		from = s.Assets
	case "transaction":
		from = s.Transactions
	}
	doc, ok := from[id]
	if !ok {
		return nil
	}
	return toMap(doc)
}

var _ resources.Service = (*Store)(nil)
