package processor

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/angelmondragon/mangopay-gateway/internal/processor/processortest"
	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/mangopay"
	"github.com/angelmondragon/mangopay-gateway/pkg/marketplace"
)

type stubConfig struct {
	private resources.PrivateConfig
	err     error
}

func (s stubConfig) Private(context.Context) (*resources.PrivateConfig, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &s.private, nil
}

func (s stubConfig) Public(context.Context) (*resources.PublicConfig, error) {
	return &resources.PublicConfig{}, nil
}

func configWith(creds resources.ProcessorCredentials) stubConfig {
	var cfg resources.PrivateConfig
	cfg.Stelace.Integrations.Mangopay = creds
	return stubConfig{private: cfg}
}

func scoped(env string) context.Context {
	return marketplace.WithScope(context.Background(), marketplace.Scope{PlatformID: "1", Env: env})
}

func TestFactoryRequiresSecretKey(t *testing.T) {
	f, err := NewFactory(FactoryParams{Config: configWith(resources.ProcessorCredentials{ClientID: "c"})})
	if err != nil {
		t.Fatalf("new factory: %v", err)
	}
	_, err = f.Build(scoped(marketplace.EnvTest))
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden || typed.Message() != "processor secret key not configured" {
		t.Fatalf("expected forbidden missing key error, got %v", err)
	}
}

func TestFactoryRequiresScope(t *testing.T) {
	f, _ := NewFactory(FactoryParams{Config: configWith(resources.ProcessorCredentials{Key: "k", ClientID: "c"})})
	if _, err := f.Build(context.Background()); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestFactoryRedactsOnlyLiveProduction(t *testing.T) {
	creds := resources.ProcessorCredentials{Key: "k", ClientID: "c", EscrowUser: 55}
	prod, _ := NewFactory(FactoryParams{Config: configWith(creds), Production: true})

	live, err := prod.Build(scoped(marketplace.EnvLive))
	if err != nil {
		t.Fatalf("build live: %v", err)
	}
	if !live.Redact || live.EscrowUserID != 55 {
		t.Fatalf("unexpected live handle %+v", live)
	}

	test, err := prod.Build(scoped(marketplace.EnvTest))
	if err != nil {
		t.Fatalf("build test: %v", err)
	}
	if test.Redact {
		t.Fatalf("test env must not redact")
	}

	dev, _ := NewFactory(FactoryParams{Config: configWith(creds)})
	h, _ := dev.Build(scoped(marketplace.EnvLive))
	if h.Redact {
		t.Fatalf("non-production deployments must not redact")
	}
}

func TestWrapPassesStatusAndRedacts(t *testing.T) {
	apiErr := &mangopay.APIError{StatusCode: http.StatusBadRequest, Message: "bad card", Type: "param_error"}

	err := Wrap("Cards.get", apiErr, false)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeProcessor || typed.HTTPStatus() != http.StatusBadRequest {
		t.Fatalf("unexpected wrapped error %v", err)
	}
	details := typed.Details().(map[string]any)
	if details["method"] != "Cards.get" || details["processor"] == nil {
		t.Fatalf("unexpected details %v", details)
	}

	redacted := pkgerrors.As(Wrap("Cards.get", apiErr, true))
	if redacted.Details() != nil {
		t.Fatalf("redacted error must not carry details")
	}

	transport := pkgerrors.As(Wrap("Cards.get", errors.New("dial tcp"), false))
	if transport.HTTPStatus() != http.StatusBadGateway {
		t.Fatalf("expected 502 for transport errors, got %d", transport.HTTPStatus())
	}

	already := pkgerrors.New(pkgerrors.CodeNotFound, "gone")
	if Wrap("x", already, false) != error(already) {
		t.Fatalf("typed errors must pass through")
	}
}

func TestResolveWalletsByLabel(t *testing.T) {
	fake := processortest.NewFakeClient()
	fake.UserWallets[9] = []mangopay.Wallet{
		{ID: 1, Description: "Escrow EUR"},
		{ID: 2, Description: "Shipping fees"},
		{ID: 3, Description: "ADV wallet"},
	}
	h := &Handle{Client: fake, EscrowUserID: 9}

	wallets, err := ResolveWallets(context.Background(), h, resources.CustomConfig{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if wallets.Escrow.ID != 1 || wallets.Shipping.ID != 2 || wallets.Adv.ID != 3 {
		t.Fatalf("unexpected wallets %+v", wallets)
	}

	fake.UserWallets[9] = fake.UserWallets[9][:1]
	wallets, err = ResolveWallets(context.Background(), h, resources.CustomConfig{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := wallets.Require("adv"); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error for missing adv wallet, got %v", err)
	}
}

func TestResolveWalletsRequiresOperator(t *testing.T) {
	_, err := ResolveWallets(context.Background(), &Handle{Client: processortest.NewFakeClient()}, resources.CustomConfig{})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}
