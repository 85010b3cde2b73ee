package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/mangopay-gateway/internal/access"
	"github.com/angelmondragon/mangopay-gateway/internal/caller"
	"github.com/angelmondragon/mangopay-gateway/internal/dispatch"
	"github.com/angelmondragon/mangopay-gateway/internal/processor"
	"github.com/angelmondragon/mangopay-gateway/internal/processor/processortest"
	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	"github.com/angelmondragon/mangopay-gateway/internal/resources/resourcestest"
	"github.com/angelmondragon/mangopay-gateway/internal/workflows"
	"github.com/angelmondragon/mangopay-gateway/internal/workflows/counters"
	"github.com/angelmondragon/mangopay-gateway/pkg/auth"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/metrics"
	"github.com/stretchr/testify/require"
)

type stubFactory struct {
	handle *processor.Handle
	err    error
	builds int
}

func (f *stubFactory) Build(ctx context.Context) (*processor.Handle, error) {
	f.builds++
	if f.err != nil {
		return nil, f.err
	}
	return f.handle, nil
}

type recordedRPC struct {
	method  string
	outcome string
}

type rpcRecorder struct {
	mu    sync.Mutex
	calls []recordedRPC
}

func (r *rpcRecorder) ObserveRPC(method, outcome string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedRPC{method: method, outcome: outcome})
}

type harness struct {
	svc      Service
	store    *resourcestest.Store
	fake     *processortest.FakeClient
	factory  *stubFactory
	observed *rpcRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := resourcestest.NewStore()
	fake := processortest.NewFakeClient()
	factory := &stubFactory{handle: &processor.Handle{Client: fake, EscrowUserID: 900}}
	observed := &rpcRecorder{}
	adjuster := counters.NewAdjuster(counters.Params{})

	policy, err := access.NewPolicy(access.PolicyParams{Resources: store, Counters: adjuster})
	require.NoError(t, err)
	engine, err := workflows.NewEngine(workflows.Params{Resources: store, Counters: adjuster})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Resources:  store,
		Factory:    factory,
		Policy:     policy,
		Workflows:  engine,
		Dispatcher: dispatch.New(dispatch.Params{Observer: observed}),
		Observer:   observed,
	})
	require.NoError(t, err)
	return &harness{svc: svc, store: store, fake: fake, factory: factory, observed: observed}
}

func as(identity caller.Identity) context.Context {
	return caller.WithIdentity(context.Background(), identity)
}

func operator() caller.Identity {
	return caller.Identity{Permissions: []string{auth.PermissionMangopay}, PlatformID: "1", Env: "test"}
}

func seller() (caller.Identity, *resources.User) {
	user := &resources.User{ID: "usr_1"}
	user.PlatformData.Private.MangoPay.Owner = resources.ProcessorAccount{ID: 21, WalletID: 22}
	user.PlatformData.Private.Balance.InTransfer = 100
	return caller.Identity{UserID: "usr_1", PlatformID: "1", Env: "test"}, user
}

func TestHandleRequiresIdentity(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Handle(context.Background(), "Users.get", json.RawMessage(`["1"]`))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestHandleRejectsUnknownMethodBeforeBuildingClient(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Handle(as(operator()), "Users.delete", nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Zero(t, h.factory.builds)
}

func TestHandlePrivilegedPassThrough(t *testing.T) {
	h := newHarness(t)
	h.fake.RawResponses["GET /users/999"] = map[string]any{"Id": "999", "PersonType": "NATURAL"}

	out, err := h.svc.Handle(as(operator()), "Users.get", json.RawMessage(`["999"]`))
	require.NoError(t, err)
	require.JSONEq(t, `{"Id":"999","PersonType":"NATURAL"}`, string(out.(json.RawMessage)))
	require.Len(t, h.observed.calls, 1)
	require.Equal(t, metrics.OutcomeSuccess, h.observed.calls[0].outcome)
}

func TestHandleRejectsUnlinkedCaller(t *testing.T) {
	h := newHarness(t)
	h.store.PutUser("usr_2", &resources.User{ID: "usr_2"})

	_, err := h.svc.Handle(as(caller.Identity{UserID: "usr_2", PlatformID: "1", Env: "test"}), "Wallets.get", json.RawMessage(`["22"]`))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	require.Empty(t, h.fake.Calls)
}

func TestHandleUnknownCallerUserIsUnlinked(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Handle(as(caller.Identity{UserID: "usr_gone", PlatformID: "1", Env: "test"}), "Users.getEMoney", json.RawMessage(`["21"]`))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestHandlePayoutRunsHookAfterDispatch(t *testing.T) {
	h := newHarness(t)
	identity, user := seller()
	h.store.PutUser(user.ID, user)

	_, err := h.svc.Handle(as(identity), "PayOuts.create",
		json.RawMessage(`[{"AuthorId":"21","DebitedWalletId":"22","DebitedFunds":{"Currency":"EUR","Amount":500},"Fees":{"Currency":"EUR","Amount":0},"BankAccountId":"31"}]`))
	require.NoError(t, err)
	require.Len(t, h.fake.Raw, 1)

	stored, err := h.store.GetUser(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(600), stored.PlatformData.Private.Balance.InTransfer)
}

func TestHandlePayoutFailureSkipsHook(t *testing.T) {
	h := newHarness(t)
	identity, user := seller()
	h.store.PutUser(user.ID, user)
	h.fake.Errs["Do"] = pkgerrors.New(pkgerrors.CodeProcessor, "payment processor error")

	_, err := h.svc.Handle(as(identity), "PayOuts.create",
		json.RawMessage(`[{"AuthorId":"21","DebitedWalletId":"22","DebitedFunds":{"Currency":"EUR","Amount":500}}]`))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeProcessor))

	stored, err := h.store.GetUser(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(100), stored.PlatformData.Private.Balance.InTransfer)
}

func TestHandleRunsWorkflowAndObservesOutcome(t *testing.T) {
	h := newHarness(t)
	identity, user := seller()
	h.store.PutUser(user.ID, user)

	_, err := h.svc.Handle(as(identity), "Custom.stopAdv", json.RawMessage(`{"userId":"usr_1"}`))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = h.svc.Handle(as(operator()), "Custom.stopAdv", json.RawMessage(`{"userId":"usr_1"}`))
	require.NoError(t, err)
	require.Equal(t, []recordedRPC{{method: "Custom.stopAdv", outcome: metrics.OutcomeSuccess}}, h.observed.calls)
}

func TestHandlePropagatesFactoryFailure(t *testing.T) {
	h := newHarness(t)
	h.factory.err = pkgerrors.New(pkgerrors.CodeForbidden, "processor secret key not configured")

	_, err := h.svc.Handle(as(operator()), "Users.get", json.RawMessage(`["1"]`))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	require.Empty(t, h.fake.Calls)
}

func TestMethodsListsBothRegistries(t *testing.T) {
	h := newHarness(t)
	methods := h.svc.Methods()
	require.Contains(t, methods, "Custom.payIn")
	require.Contains(t, methods, "PayOuts.create")
	require.Contains(t, methods, "Events.getAll")
}
