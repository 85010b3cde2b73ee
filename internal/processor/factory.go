package processor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/mangopay"
	"github.com/angelmondragon/mangopay-gateway/pkg/marketplace"
)

// Client is the subset of the processor API the gateway relies on.
type Client interface {
	Do(ctx context.Context, method, path string, query url.Values, body, out any) error

	GetUser(ctx context.Context, id mangopay.ID) (*mangopay.User, error)
	CreateNaturalUser(ctx context.Context, in mangopay.NaturalUser) (*mangopay.User, error)
	CreateLegalUser(ctx context.Context, in mangopay.LegalUser) (*mangopay.User, error)
	GetUserWallets(ctx context.Context, userID mangopay.ID) ([]mangopay.Wallet, error)
	CreateWallet(ctx context.Context, in mangopay.Wallet) (*mangopay.Wallet, error)
	GetWallet(ctx context.Context, id mangopay.ID) (*mangopay.Wallet, error)
	GetCard(ctx context.Context, id mangopay.ID) (*mangopay.Card, error)
	GetPayIn(ctx context.Context, id mangopay.ID) (*mangopay.PayIn, error)
	CreateCardDirectPayIn(ctx context.Context, in mangopay.CardDirectPayIn) (*mangopay.PayIn, error)
	CreatePreauthorizedPayIn(ctx context.Context, in mangopay.PreauthorizedPayIn) (*mangopay.PayIn, error)
	CreatePayInRefund(ctx context.Context, payInID mangopay.ID, in mangopay.Refund) (*mangopay.Refund, error)
	GetPreAuthorization(ctx context.Context, id mangopay.ID) (*mangopay.PreAuthorization, error)
	CreateCardPreAuthorization(ctx context.Context, in mangopay.PreAuthorization) (*mangopay.PreAuthorization, error)
	CreateTransfer(ctx context.Context, in mangopay.Transfer) (*mangopay.Transfer, error)
}

// Handle is an authenticated client bound to one platform request. Redact
// is set for live traffic on a production deployment.
type Handle struct {
	Client       Client
	EscrowUserID mangopay.ID
	Scope        marketplace.Scope
	Redact       bool
}

// Factory builds a processor handle from the live private config.
type Factory interface {
	Build(ctx context.Context) (*Handle, error)
}

type FactoryParams struct {
	Config     resources.ConfigRequester
	Observer   mangopay.Observer
	HTTPClient *http.Client
	Timeout    time.Duration
	Production bool
}

type factory struct {
	config     resources.ConfigRequester
	observer   mangopay.Observer
	httpClient *http.Client
	timeout    time.Duration
	production bool
}

func NewFactory(params FactoryParams) (Factory, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config requester required")
	}
	return &factory{
		config:     params.Config,
		observer:   params.Observer,
		httpClient: params.HTTPClient,
		timeout:    params.Timeout,
		production: params.Production,
	}, nil
}

func (f *factory) Build(ctx context.Context) (*Handle, error) {
	scope, ok := marketplace.ScopeFromContext(ctx)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "platform scope missing")
	}

	private, err := f.config.Private(ctx)
	if err != nil {
		return nil, err
	}
	creds := private.Stelace.Integrations.Mangopay
	if strings.TrimSpace(creds.Key) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "processor secret key not configured")
	}

	opts := []mangopay.Option{mangopay.WithTimeout(f.timeout)}
	if f.httpClient != nil {
		opts = append(opts, mangopay.WithHTTPClient(f.httpClient))
	}
	if f.observer != nil {
		opts = append(opts, mangopay.WithObserver(f.observer))
	}
	client, err := mangopay.NewClient(mangopay.Credentials{
		ClientID: creds.ClientID,
		APIKey:   creds.Key,
		BaseURL:  creds.URI,
	}, opts...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "processor credentials incomplete")
	}

	return &Handle{
		Client:       client,
		EscrowUserID: creds.EscrowUser,
		Scope:        scope,
		Redact:       f.production && scope.IsLive(),
	}, nil
}
