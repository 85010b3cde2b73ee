package workflows

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/mangopay-gateway/internal/caller"
	"github.com/angelmondragon/mangopay-gateway/internal/processor"
	"github.com/angelmondragon/mangopay-gateway/internal/processor/processortest"
	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	"github.com/angelmondragon/mangopay-gateway/internal/resources/resourcestest"
	"github.com/angelmondragon/mangopay-gateway/internal/rpc"
	"github.com/angelmondragon/mangopay-gateway/internal/workflows/counters"
	"github.com/angelmondragon/mangopay-gateway/pkg/auth"
	"github.com/angelmondragon/mangopay-gateway/pkg/bigquery"
	"github.com/angelmondragon/mangopay-gateway/pkg/enums"
	"github.com/angelmondragon/mangopay-gateway/pkg/mangopay"
	"github.com/stretchr/testify/require"
)

const (
	escrowUser     mangopay.ID = 900
	escrowWallet   mangopay.ID = 901
	shippingWallet mangopay.ID = 902
	advWallet      mangopay.ID = 903
)

type factRecorder struct {
	mu    sync.Mutex
	facts []bigquery.SponsorshipFact
	err   error
}

func (f *factRecorder) WriteFacts(ctx context.Context, facts []bigquery.SponsorshipFact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.facts = append(f.facts, facts...)
	return f.err
}

type fixture struct {
	engine *Engine
	store  *resourcestest.Store
	fake   *processortest.FakeClient
	facts  *factRecorder
	handle *processor.Handle
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := resourcestest.NewStore()
	custom := resources.CustomConfig{DefaultCarrier: "brt"}
	custom.Shipping.Prices = map[string]map[string]int64{"brt": {"small": 700}}
	custom.Adv.Products = map[string][]resources.AdvPrice{
		"home":     {{Timings: resources.AdvTimings{Days: 7}, Price: 500}, {Timings: resources.AdvTimings{Days: 30}, Price: 1500}},
		"category": {{Timings: resources.AdvTimings{Days: 7}, Price: 300}},
	}
	custom.Adv.Profile.Private = []resources.AdvPrice{{Timings: resources.AdvTimings{Days: 30}, Price: 900}}
	custom.Adv.Profile.Pro = []resources.AdvPrice{{Timings: resources.AdvTimings{Days: 30}, Price: 2900}}
	custom.AdditionalPricing.TakerFeesFixed = 50
	store.PublicConfig = resources.PublicConfig{Custom: custom}

	fake := processortest.NewFakeClient()
	fake.UserWallets[escrowUser] = []mangopay.Wallet{
		{ID: escrowWallet, Description: "Escrow wallet", Currency: "EUR"},
		{ID: shippingWallet, Description: "Shipping fees", Currency: "EUR"},
		{ID: advWallet, Description: "ADV wallet", Currency: "EUR"},
	}

	facts := &factRecorder{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine, err := NewEngine(Params{
		Resources: store,
		Counters:  counters.NewAdjuster(counters.Params{}),
		Facts:     facts,
		Now:       func() time.Time { return now },
	})
	require.NoError(t, err)

	return &fixture{
		engine: engine,
		store:  store,
		fake:   fake,
		facts:  facts,
		handle: &processor.Handle{Client: fake, EscrowUserID: escrowUser},
		now:    now,
	}
}

func (f *fixture) custom(mutate func(*resources.CustomConfig)) {
	mutate(&f.store.PublicConfig.Custom)
}

func (f *fixture) buyer() Session {
	user := &resources.User{ID: "usr_buyer", Email: "buyer@example.test"}
	user.PlatformData.Private.MangoPay.Payer = resources.ProcessorAccount{ID: 11, WalletID: 12}
	user.Metadata.Private.PaymentMethods = []resources.PaymentMethod{{ID: "556"}}
	return Session{
		Identity: caller.Identity{
			UserID:     user.ID,
			PlatformID: "1",
			Env:        "test",
			Headers:    caller.Headers{Accept: "text/html", UserAgent: "Mozilla/5.0", AcceptLanguage: "it-IT"},
		},
		User:      user,
		Processor: f.handle,
	}
}

func (f *fixture) operator() Session {
	return Session{
		Identity:  caller.Identity{Permissions: []string{auth.PermissionMangopay}, PlatformID: "1", Env: "test"},
		Processor: f.handle,
	}
}

func (f *fixture) run(s Session, method string, arg string) (any, error) {
	return f.engine.Run(context.Background(), s, method, rpc.Args{json.RawMessage(arg)})
}

func (f *fixture) transaction(t *testing.T, id string) *resources.Transaction {
	t.Helper()
	tx, err := f.store.GetTransaction(context.Background(), id)
	require.NoError(t, err)
	return tx
}

func intp(v int) *int { return &v }

func draftTransaction(id string) resources.Transaction {
	tx := resources.Transaction{
		ID:             id,
		Status:         enums.TransactionStatusDraft,
		AssetID:        "ast_1",
		TakerID:        "usr_buyer",
		OwnerID:        "usr_seller",
		TakerAmount:    10000,
		OwnerAmount:    8000,
		PlatformAmount: 1000,
		Currency:       "EUR",
	}
	tx.AssetSnapshot.ID = "ast_1"
	tx.AssetSnapshot.Metadata.PackagingSize = "small"
	tx.Metadata = resources.TransactionMetadata{
		IP:            "10.0.0.1",
		BrowserData:   &resources.BrowserData{ColorDepth: intp(24), ScreenWidth: intp(1280), ScreenHeight: intp(800)},
		PaymentMethod: "555",
		FirstName:     "Ada",
		LastName:      "Lovelace",
		Address:       &resources.ShippingAddress{Address: "Via Roma", StreetNumber: "1", City: "Milano", PostalCode: "20100", Country: "IT"},
	}
	return tx
}

func seller() *resources.User {
	user := &resources.User{ID: "usr_seller", Email: "seller@example.test"}
	user.PlatformData.Private.MangoPay.Owner = resources.ProcessorAccount{ID: 21, WalletID: 22}
	user.PlatformData.Private.Balance.Pending = 8000
	return user
}
