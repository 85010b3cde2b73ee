package resources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/outbox/payloads"
	"github.com/angelmondragon/mangopay-gateway/pkg/types"
	"github.com/shopspring/decimal"
)

const shippingRatePath = "/integrations/shippypro/request"

// Service is the typed view over the marketplace requesters used by the
// gateway workflows.
type Service interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	UpdateUser(ctx context.Context, userID string, patch types.Patch) (*User, error)
	GetAsset(ctx context.Context, assetID string) (*Asset, error)
	UpdateAsset(ctx context.Context, assetID string, patch types.Patch) (*Asset, error)
	GetTransaction(ctx context.Context, transactionID string) (*Transaction, error)
	UpdateTransaction(ctx context.Context, transactionID string, patch types.Patch) (*Transaction, error)
	FindTransactionOrder(ctx context.Context, transactionID string) (*Order, error)
	FindEntry(ctx context.Context, query EntryQuery) (*Entry, error)
	UpdateEntryFields(ctx context.Context, entryID string, fields EntryFields) (*Entry, error)
	CreateTask(ctx context.Context, input TaskInput) (*Task, error)
	FindEvents(ctx context.Context, eventType, objectID string, limit int) ([]Event, error)
	CreateEvent(ctx context.Context, event payloads.PlatformEvent) (*Event, error)
	ShippingRate(ctx context.Context, req RateRequest) (int64, error)
	Config() ConfigRequester
}

// Requesters groups the per-resource requesters.
type Requesters struct {
	Users        Requester
	Assets       Requester
	Transactions Requester
	Orders       Requester
	Entries      Requester
	Tasks        Requester
	Events       Requester
	Config       ConfigRequester
}

// NewRequesters wires every collection over one marketplace transport.
func NewRequesters(transport Transport) (Requesters, error) {
	if transport == nil {
		return Requesters{}, fmt.Errorf("marketplace transport required")
	}
	build := func(collection, label string) Requester {
		r, _ := NewRequester(transport, collection, label)
		return r
	}
	return Requesters{
		Users:        build("users", "user"),
		Assets:       build("assets", "asset"),
		Transactions: build("transactions", "transaction"),
		Orders:       build("orders", "order"),
		Entries:      build("entries", "entry"),
		Tasks:        build("tasks", "task"),
		Events:       build("events", "event"),
		Config:       NewConfigRequester(transport),
	}, nil
}

type ServiceParams struct {
	Requesters Requesters
	Transport  Transport
}

type service struct {
	req       Requesters
	transport Transport
}

func NewService(params ServiceParams) (Service, error) {
	r := params.Requesters
	if r.Users == nil || r.Assets == nil || r.Transactions == nil || r.Orders == nil ||
		r.Entries == nil || r.Tasks == nil || r.Events == nil || r.Config == nil {
		return nil, fmt.Errorf("all resource requesters are required")
	}
	if params.Transport == nil {
		return nil, fmt.Errorf("marketplace transport required")
	}
	return &service{req: r, transport: params.Transport}, nil
}

func (s *service) Config() ConfigRequester {
	return s.req.Config
}

func (s *service) GetUser(ctx context.Context, userID string) (*User, error) {
	var user User
	if err := s.req.Users.Communicate(ctx, Payload{Type: PayloadRead, ID: userID}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *service) UpdateUser(ctx context.Context, userID string, patch types.Patch) (*User, error) {
	var user User
	if err := s.req.Users.Communicate(ctx, Payload{Type: PayloadUpdate, ID: userID, Body: patch}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *service) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	var asset Asset
	if err := s.req.Assets.Communicate(ctx, Payload{Type: PayloadRead, ID: assetID}, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

func (s *service) UpdateAsset(ctx context.Context, assetID string, patch types.Patch) (*Asset, error) {
	var asset Asset
	if err := s.req.Assets.Communicate(ctx, Payload{Type: PayloadUpdate, ID: assetID, Body: patch}, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

func (s *service) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	var tx Transaction
	if err := s.req.Transactions.Communicate(ctx, Payload{Type: PayloadRead, ID: transactionID}, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *service) UpdateTransaction(ctx context.Context, transactionID string, patch types.Patch) (*Transaction, error) {
	var tx Transaction
	if err := s.req.Transactions.Communicate(ctx, Payload{Type: PayloadUpdate, ID: transactionID, Body: patch}, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// FindTransactionOrder returns the most recent order for a transaction, or
// nil when the platform has none.
func (s *service) FindTransactionOrder(ctx context.Context, transactionID string) (*Order, error) {
	query := latestQuery(1)
	query.Set("transactionId", transactionID)
	var list ListResult[Order]
	if err := s.req.Orders.Communicate(ctx, Payload{Type: PayloadList, Query: query}, &list); err != nil {
		return nil, err
	}
	if len(list.Results) == 0 {
		return nil, nil
	}
	return &list.Results[0], nil
}

// EntryQuery selects the latest entry of a collection and name.
type EntryQuery struct {
	Collection string
	Name       string
	Locale     string
}

func (s *service) FindEntry(ctx context.Context, q EntryQuery) (*Entry, error) {
	query := latestQuery(1)
	query.Set("collection", q.Collection)
	query.Set("name", q.Name)
	if q.Locale != "" {
		query.Set("locale", q.Locale)
	}
	var list ListResult[Entry]
	if err := s.req.Entries.Communicate(ctx, Payload{Type: PayloadList, Query: query}, &list); err != nil {
		return nil, err
	}
	if len(list.Results) == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "entry %s/%s not found", q.Collection, q.Name)
	}
	return &list.Results[0], nil
}

func (s *service) UpdateEntryFields(ctx context.Context, entryID string, fields EntryFields) (*Entry, error) {
	if fields.Home == nil {
		fields.Home = []string{}
	}
	body := map[string]any{"fields": fields}
	var entry Entry
	if err := s.req.Entries.Communicate(ctx, Payload{Type: PayloadUpdate, ID: entryID, Body: body}, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *service) CreateTask(ctx context.Context, input TaskInput) (*Task, error) {
	var task Task
	if err := s.req.Tasks.Communicate(ctx, Payload{Type: PayloadCreate, Body: input}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *service) FindEvents(ctx context.Context, eventType, objectID string, limit int) ([]Event, error) {
	query := latestQuery(limit)
	query.Set("type", eventType)
	if objectID != "" {
		query.Set("objectId", objectID)
	}
	var list ListResult[Event]
	if err := s.req.Events.Communicate(ctx, Payload{Type: PayloadList, Query: query}, &list); err != nil {
		return nil, err
	}
	return list.Results, nil
}

func (s *service) CreateEvent(ctx context.Context, event payloads.PlatformEvent) (*Event, error) {
	var created Event
	if err := s.req.Events.Communicate(ctx, Payload{Type: PayloadCreate, Body: event}, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// RateRequest asks the shipping integration for a carrier quote.
type RateRequest struct {
	Carrier   string           `json:"carrier"`
	Asset     AssetSnapshot    `json:"asset"`
	ToAddress *ShippingAddress `json:"toAddress,omitempty"`
}

type rateResponse struct {
	Rate decimal.Decimal `json:"rate"`
}

// ShippingRate returns the quoted rate converted to minor units.
func (s *service) ShippingRate(ctx context.Context, req RateRequest) (int64, error) {
	if strings.TrimSpace(req.Carrier) == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "shipping carrier is required")
	}
	body := map[string]any{
		"method": "GetRates",
		"args":   []RateRequest{req},
	}
	var resp rateResponse
	if err := s.transport.Do(ctx, http.MethodPost, shippingRatePath, nil, body, &resp); err != nil {
		return 0, mapError("shipping rate", err)
	}
	if resp.Rate.IsNegative() {
		return 0, pkgerrors.New(pkgerrors.CodeUpstream, "shipping rate is negative")
	}
	return ToMinorUnits(resp.Rate), nil
}

// ToMinorUnits converts a decimal major-unit amount to rounded cents.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func latestQuery(limit int) url.Values {
	if limit <= 0 {
		limit = 1
	}
	query := url.Values{}
	query.Set("page", "1")
	query.Set("nbResultsPerPage", strconv.Itoa(limit))
	query.Set("orderBy", "createdDate")
	query.Set("order", "desc")
	return query
}
