// Package processortest provides an in-memory processor client for tests.
package processortest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"

	"github.com/angelmondragon/mangopay-gateway/pkg/mangopay"
)

// RawCall records one generic Do invocation.
type RawCall struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// RefundCall records one refund request.
type RefundCall struct {
	PayInID mangopay.ID
	Refund  mangopay.Refund
}

// FakeClient keeps processor objects in maps. Errs injects a failure per
// method name, e.g. "CreateTransfer". POSTs carrying an idempotency key
// replay the object first created under that key.
type FakeClient struct {
	mu     sync.Mutex
	nextID int64
	byKey  map[string]any

	Users       map[mangopay.ID]*mangopay.User
	Wallets     map[mangopay.ID]*mangopay.Wallet
	UserWallets map[mangopay.ID][]mangopay.Wallet
	Cards       map[mangopay.ID]*mangopay.Card
	PayIns      map[mangopay.ID]*mangopay.PayIn
	PreAuths    map[mangopay.ID]*mangopay.PreAuthorization

	// PayInStatus and PreAuthStatus default to SUCCEEDED.
	PayInStatus   string
	PreAuthStatus string
	// TransferCredited overrides the credited amount of created transfers.
	TransferCredited func(in mangopay.Transfer) int64
	TransferStatus   string

	RawResponses map[string]any
	Errs         map[string]error

	Calls           []string
	Keys            []string
	Raw             []RawCall
	NaturalUsers    []mangopay.NaturalUser
	LegalUsers      []mangopay.LegalUser
	CreatedWallets  []mangopay.Wallet
	CardPayIns      []mangopay.CardDirectPayIn
	PreauthPayIns   []mangopay.PreauthorizedPayIn
	PreauthRequests []mangopay.PreAuthorization
	Transfers       []mangopay.Transfer
	Refunds         []RefundCall
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		nextID:       1000,
		byKey:        map[string]any{},
		Users:        map[mangopay.ID]*mangopay.User{},
		Wallets:      map[mangopay.ID]*mangopay.Wallet{},
		UserWallets:  map[mangopay.ID][]mangopay.Wallet{},
		Cards:        map[mangopay.ID]*mangopay.Card{},
		PayIns:       map[mangopay.ID]*mangopay.PayIn{},
		PreAuths:     map[mangopay.ID]*mangopay.PreAuthorization{},
		RawResponses: map[string]any{},
		Errs:         map[string]error{},
	}
}

// Count returns how many times a method was called.
func (f *FakeClient) Count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.Calls {
		if call == method {
			n++
		}
	}
	return n
}

func (f *FakeClient) begin(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, method)
	return f.Errs[method]
}

// replayed returns the object created earlier under ctx's idempotency key.
func replayed[T any](f *FakeClient, ctx context.Context) (T, bool) {
	var zero T
	key := mangopay.IdempotencyKey(ctx)
	if key == "" {
		return zero, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Keys = append(f.Keys, key)
	prior, ok := f.byKey[key].(T)
	if !ok {
		return zero, false
	}
	return prior, true
}

func (f *FakeClient) remember(ctx context.Context, v any) {
	if key := mangopay.IdempotencyKey(ctx); key != "" {
		f.mu.Lock()
		f.byKey[key] = v
		f.mu.Unlock()
	}
}

func (f *FakeClient) newID() mangopay.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return mangopay.ID(f.nextID)
}

func notFound() error {
	return &mangopay.APIError{StatusCode: http.StatusNotFound, Message: "not found", Type: "ressource_not_found"}
}

func statusOr(value string) string {
	if value == "" {
		return mangopay.StatusSucceeded
	}
	return value
}

func (f *FakeClient) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := f.begin("Do"); err != nil {
		return err
	}
	f.mu.Lock()
	f.Raw = append(f.Raw, RawCall{Method: method, Path: path, Query: query, Body: body})
	resp, ok := f.RawResponses[method+" "+path]
	f.mu.Unlock()
	if !ok {
		resp = map[string]any{"ok": true}
	}
	if err, isErr := resp.(error); isErr {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *FakeClient) GetUser(ctx context.Context, id mangopay.ID) (*mangopay.User, error) {
	if err := f.begin("GetUser"); err != nil {
		return nil, err
	}
	if user, ok := f.Users[id]; ok {
		return user, nil
	}
	return nil, notFound()
}

func (f *FakeClient) CreateNaturalUser(ctx context.Context, in mangopay.NaturalUser) (*mangopay.User, error) {
	if err := f.begin("CreateNaturalUser"); err != nil {
		return nil, err
	}
	user := &mangopay.User{ID: f.newID(), PersonType: mangopay.PersonNatural, Email: in.Email, Tag: in.Tag, UserCategory: in.UserCategory}
	f.mu.Lock()
	f.NaturalUsers = append(f.NaturalUsers, in)
	f.Users[user.ID] = user
	f.mu.Unlock()
	return user, nil
}

func (f *FakeClient) CreateLegalUser(ctx context.Context, in mangopay.LegalUser) (*mangopay.User, error) {
	if err := f.begin("CreateLegalUser"); err != nil {
		return nil, err
	}
	user := &mangopay.User{ID: f.newID(), PersonType: mangopay.PersonLegal, Email: in.Email, Name: in.Name, Tag: in.Tag, UserCategory: in.UserCategory}
	f.mu.Lock()
	f.LegalUsers = append(f.LegalUsers, in)
	f.Users[user.ID] = user
	f.mu.Unlock()
	return user, nil
}

func (f *FakeClient) GetUserWallets(ctx context.Context, userID mangopay.ID) ([]mangopay.Wallet, error) {
	if err := f.begin("GetUserWallets"); err != nil {
		return nil, err
	}
	return f.UserWallets[userID], nil
}

func (f *FakeClient) CreateWallet(ctx context.Context, in mangopay.Wallet) (*mangopay.Wallet, error) {
	if err := f.begin("CreateWallet"); err != nil {
		return nil, err
	}
	wallet := in
	wallet.ID = f.newID()
	f.mu.Lock()
	f.CreatedWallets = append(f.CreatedWallets, in)
	f.Wallets[wallet.ID] = &wallet
	f.mu.Unlock()
	return &wallet, nil
}

func (f *FakeClient) GetWallet(ctx context.Context, id mangopay.ID) (*mangopay.Wallet, error) {
	if err := f.begin("GetWallet"); err != nil {
		return nil, err
	}
	if wallet, ok := f.Wallets[id]; ok {
		return wallet, nil
	}
	return nil, notFound()
}

func (f *FakeClient) GetCard(ctx context.Context, id mangopay.ID) (*mangopay.Card, error) {
	if err := f.begin("GetCard"); err != nil {
		return nil, err
	}
	if card, ok := f.Cards[id]; ok {
		return card, nil
	}
	return nil, notFound()
}

func (f *FakeClient) GetPayIn(ctx context.Context, id mangopay.ID) (*mangopay.PayIn, error) {
	if err := f.begin("GetPayIn"); err != nil {
		return nil, err
	}
	if payIn, ok := f.PayIns[id]; ok {
		return payIn, nil
	}
	return nil, notFound()
}

func (f *FakeClient) CreateCardDirectPayIn(ctx context.Context, in mangopay.CardDirectPayIn) (*mangopay.PayIn, error) {
	if err := f.begin("CreateCardDirectPayIn"); err != nil {
		return nil, err
	}
	if prior, ok := replayed[*mangopay.PayIn](f, ctx); ok {
		return prior, nil
	}
	payIn := &mangopay.PayIn{
		ID:               f.newID(),
		AuthorID:         in.AuthorID,
		CreditedWalletID: in.CreditedWalletID,
		DebitedFunds:     in.DebitedFunds,
		CreditedFunds:    mangopay.Money{Currency: in.DebitedFunds.Currency, Amount: in.DebitedFunds.Amount - in.Fees.Amount},
		Fees:             in.Fees,
		Status:           statusOr(f.PayInStatus),
		PaymentType:      "CARD",
		ExecutionType:    "DIRECT",
		Tag:              in.Tag,
	}
	f.mu.Lock()
	f.CardPayIns = append(f.CardPayIns, in)
	f.PayIns[payIn.ID] = payIn
	f.mu.Unlock()
	f.remember(ctx, payIn)
	return payIn, nil
}

func (f *FakeClient) CreatePreauthorizedPayIn(ctx context.Context, in mangopay.PreauthorizedPayIn) (*mangopay.PayIn, error) {
	if err := f.begin("CreatePreauthorizedPayIn"); err != nil {
		return nil, err
	}
	if prior, ok := replayed[*mangopay.PayIn](f, ctx); ok {
		return prior, nil
	}
	payIn := &mangopay.PayIn{
		ID:               f.newID(),
		AuthorID:         in.AuthorID,
		CreditedWalletID: in.CreditedWalletID,
		DebitedFunds:     in.DebitedFunds,
		CreditedFunds:    mangopay.Money{Currency: in.DebitedFunds.Currency, Amount: in.DebitedFunds.Amount - in.Fees.Amount},
		Fees:             in.Fees,
		Status:           statusOr(f.PayInStatus),
		PaymentType:      "PREAUTHORIZED",
		ExecutionType:    "DIRECT",
		Tag:              in.Tag,
	}
	f.mu.Lock()
	f.PreauthPayIns = append(f.PreauthPayIns, in)
	f.PayIns[payIn.ID] = payIn
	f.mu.Unlock()
	f.remember(ctx, payIn)
	return payIn, nil
}

func (f *FakeClient) CreatePayInRefund(ctx context.Context, payInID mangopay.ID, in mangopay.Refund) (*mangopay.Refund, error) {
	if err := f.begin("CreatePayInRefund"); err != nil {
		return nil, err
	}
	refund := in
	refund.ID = f.newID()
	refund.InitialTransactionID = payInID
	refund.Status = mangopay.StatusSucceeded
	f.mu.Lock()
	f.Refunds = append(f.Refunds, RefundCall{PayInID: payInID, Refund: in})
	f.mu.Unlock()
	return &refund, nil
}

func (f *FakeClient) GetPreAuthorization(ctx context.Context, id mangopay.ID) (*mangopay.PreAuthorization, error) {
	if err := f.begin("GetPreAuthorization"); err != nil {
		return nil, err
	}
	if preauth, ok := f.PreAuths[id]; ok {
		return preauth, nil
	}
	return nil, notFound()
}

func (f *FakeClient) CreateCardPreAuthorization(ctx context.Context, in mangopay.PreAuthorization) (*mangopay.PreAuthorization, error) {
	if err := f.begin("CreateCardPreAuthorization"); err != nil {
		return nil, err
	}
	if prior, ok := replayed[*mangopay.PreAuthorization](f, ctx); ok {
		return prior, nil
	}
	preauth := in
	preauth.ID = f.newID()
	preauth.Status = statusOr(f.PreAuthStatus)
	f.mu.Lock()
	f.PreauthRequests = append(f.PreauthRequests, in)
	f.PreAuths[preauth.ID] = &preauth
	f.mu.Unlock()
	f.remember(ctx, &preauth)
	return &preauth, nil
}

func (f *FakeClient) CreateTransfer(ctx context.Context, in mangopay.Transfer) (*mangopay.Transfer, error) {
	if err := f.begin("CreateTransfer"); err != nil {
		return nil, err
	}
	if prior, ok := replayed[*mangopay.Transfer](f, ctx); ok {
		return prior, nil
	}
	credited := in.DebitedFunds.Amount - in.Fees.Amount
	if f.TransferCredited != nil {
		credited = f.TransferCredited(in)
	}
	transfer := in
	transfer.ID = f.newID()
	transfer.Status = statusOr(f.TransferStatus)
	transfer.CreditedFunds = &mangopay.Money{Currency: in.DebitedFunds.Currency, Amount: credited}
	f.mu.Lock()
	f.Transfers = append(f.Transfers, in)
	f.mu.Unlock()
	f.remember(ctx, &transfer)
	return &transfer, nil
}
