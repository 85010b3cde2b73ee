package access

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/angelmondragon/mangopay-gateway/internal/caller"
	"github.com/angelmondragon/mangopay-gateway/internal/processor"
	"github.com/angelmondragon/mangopay-gateway/internal/processor/processortest"
	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	"github.com/angelmondragon/mangopay-gateway/internal/resources/resourcestest"
	"github.com/angelmondragon/mangopay-gateway/internal/rpc"
	"github.com/angelmondragon/mangopay-gateway/internal/workflows/counters"
	"github.com/angelmondragon/mangopay-gateway/pkg/auth"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/mangopay"
	"github.com/stretchr/testify/require"
)

func args(values ...string) rpc.Args {
	out := make(rpc.Args, 0, len(values))
	for _, v := range values {
		out = append(out, json.RawMessage(v))
	}
	return out
}

func linkedUser() *resources.User {
	user := &resources.User{ID: "usr_1"}
	user.PlatformData.Private.MangoPay = resources.LinkedAccounts{
		Payer: resources.ProcessorAccount{ID: 11, WalletID: 12},
		Owner: resources.ProcessorAccount{ID: 21, WalletID: 22},
	}
	return user
}

func newPolicy(t *testing.T, store *resourcestest.Store) *Policy {
	t.Helper()
	policy, err := NewPolicy(PolicyParams{
		Resources: store,
		Counters:  counters.NewAdjuster(counters.Params{}),
	})
	require.NoError(t, err)
	return policy
}

func endUser() caller.Identity {
	return caller.Identity{UserID: "usr_1", PlatformID: "1", Env: "test"}
}

func TestPrivilegedCallerSkipsChecks(t *testing.T) {
	policy := newPolicy(t, resourcestest.NewStore())
	decision, err := policy.Authorize(context.Background(), Request{
		Identity: caller.Identity{Permissions: []string{auth.PermissionMangopay}},
		Method:   "Users.get",
		Args:     args(`"999"`),
	})
	require.NoError(t, err)
	require.True(t, decision.Privileged)
	require.Nil(t, decision.After)
}

func TestUnlinkedUserForbidden(t *testing.T) {
	policy := newPolicy(t, resourcestest.NewStore())
	_, err := policy.Authorize(context.Background(), Request{
		Identity: endUser(),
		User:     &resources.User{ID: "usr_1"},
		Method:   "Users.getEMoney",
		Args:     args(`"11"`),
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestMethodOutsideAllowListForbidden(t *testing.T) {
	policy := newPolicy(t, resourcestest.NewStore())
	for _, method := range []string{"Users.get", "Transfers.create", "Custom.stopAdv"} {
		_, err := policy.Authorize(context.Background(), Request{
			Identity: endUser(),
			User:     linkedUser(),
			Method:   method,
			Args:     args(`"11"`),
		})
		require.Truef(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "method %s", method)
	}
}

func TestFirstArgAccount(t *testing.T) {
	policy := newPolicy(t, resourcestest.NewStore())
	req := Request{Identity: endUser(), User: linkedUser(), Method: "Users.getBankAccount"}

	req.Args = args(`"21"`, `"b_1"`)
	decision, err := policy.Authorize(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "firstArgAccount", decision.Check)

	req.Args = args(`"99"`)
	_, err = policy.Authorize(context.Background(), req)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCardRegistrationCheck(t *testing.T) {
	policy := newPolicy(t, resourcestest.NewStore())
	req := Request{Identity: endUser(), User: linkedUser(), Method: "CardRegistrations.create"}

	req.Args = args(`{"UserId":"11","Currency":"EUR"}`)
	_, err := policy.Authorize(context.Background(), req)
	require.NoError(t, err)

	req.Args = args(`{"Currency":"EUR"}`)
	_, err = policy.Authorize(context.Background(), req)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	req.Args = args(`{"UserId":"77"}`)
	_, err = policy.Authorize(context.Background(), req)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestFetchedObjectChecks(t *testing.T) {
	fake := processortest.NewFakeClient()
	fake.Cards[501] = &mangopay.Card{ID: 501, UserID: 11}
	fake.Cards[502] = &mangopay.Card{ID: 502, UserID: 77}
	fake.Wallets[601] = &mangopay.Wallet{ID: 601, Owners: []mangopay.ID{77}}
	fake.PayIns[701] = &mangopay.PayIn{ID: 701, AuthorID: 11}
	fake.PreAuths[801] = &mangopay.PreAuthorization{ID: 801, AuthorID: 77}
	handle := &processor.Handle{Client: fake}
	policy := newPolicy(t, resourcestest.NewStore())

	cases := []struct {
		name   string
		method string
		args   rpc.Args
		code   pkgerrors.Code
	}{
		{"own card by id", "Cards.get", args(`"501"`), ""},
		{"own card by object", "Cards.update", args(`{"Id":"501","Active":false}`), ""},
		{"foreign card", "Cards.get", args(`"502"`), pkgerrors.CodeForbidden},
		{"foreign wallet", "Wallets.get", args(`"601"`), pkgerrors.CodeNotFound},
		{"own payin", "PayIns.get", args(`"701"`), ""},
		{"foreign preauth", "CardPreAuthorizations.get", args(`"801"`), pkgerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := policy.Authorize(context.Background(), Request{
				Identity:  endUser(),
				User:      linkedUser(),
				Method:    tc.method,
				Args:      tc.args,
				Processor: handle,
			})
			if tc.code == "" {
				require.NoError(t, err)
				return
			}
			require.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}
}

func TestFetchedObjectProcessorFailureWrapped(t *testing.T) {
	fake := processortest.NewFakeClient()
	policy := newPolicy(t, resourcestest.NewStore())
	_, err := policy.Authorize(context.Background(), Request{
		Identity:  endUser(),
		User:      linkedUser(),
		Method:    "Wallets.get",
		Args:      args(`"404"`),
		Processor: &processor.Handle{Client: fake},
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeProcessor))
	require.Equal(t, 404, pkgerrors.As(err).HTTPStatus())
}

func TestPayoutIncrementsInTransferAfterSuccess(t *testing.T) {
	store := resourcestest.NewStore()
	user := linkedUser()
	user.PlatformData.Private.Balance.InTransfer = 500
	store.PutUser("usr_1", user)
	policy := newPolicy(t, store)

	decision, err := policy.Authorize(context.Background(), Request{
		Identity: endUser(),
		User:     user,
		Method:   "PayOuts.create",
		Args:     args(`{"AuthorId":"21","DebitedWalletId":"22","DebitedFunds":{"Currency":"EUR","Amount":1200}}`),
	})
	require.NoError(t, err)
	require.NotNil(t, decision.After)

	require.NoError(t, decision.After(context.Background()))
	updated, err := store.GetUser(context.Background(), "usr_1")
	require.NoError(t, err)
	require.Equal(t, int64(1700), updated.PlatformData.Private.Balance.InTransfer)
}

func TestPayoutFromForeignWalletForbidden(t *testing.T) {
	policy := newPolicy(t, resourcestest.NewStore())
	_, err := policy.Authorize(context.Background(), Request{
		Identity: endUser(),
		User:     linkedUser(),
		Method:   "PayOuts.create",
		Args:     args(`{"AuthorId":"21","DebitedWalletId":"12","DebitedFunds":{"Amount":10}}`),
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestDelegatedWorkflowsAllowedForLinkedUsers(t *testing.T) {
	policy := newPolicy(t, resourcestest.NewStore())
	decision, err := policy.Authorize(context.Background(), Request{
		Identity: endUser(),
		User:     linkedUser(),
		Method:   "Custom.payIn",
		Args:     args(`{"transactionId":"trn_1"}`),
	})
	require.NoError(t, err)
	require.Equal(t, "delegated", decision.Check)
}
