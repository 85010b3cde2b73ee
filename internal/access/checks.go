package access

import (
	"context"

	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	"github.com/angelmondragon/mangopay-gateway/internal/rpc"
	"github.com/angelmondragon/mangopay-gateway/internal/workflows/counters"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/mangopay"
	"github.com/angelmondragon/mangopay-gateway/pkg/types"
)

// OwnershipCheck verifies the caller owns what the call targets. It may
// return a hook that runs once the call succeeded.
type OwnershipCheck interface {
	Name() string
	Check(ctx context.Context, req Request) (Hook, error)
}

func forbidden() error {
	return pkgerrors.New(pkgerrors.CodeForbidden, "not allowed")
}

func notFound(what string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
}

func processorUnavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "processor client missing for ownership check")
}

// firstArgAccount requires args[0] to be one of the caller's account ids.
type firstArgAccount struct{}

func (firstArgAccount) Name() string { return "firstArgAccount" }

func (firstArgAccount) Check(ctx context.Context, req Request) (Hook, error) {
	id, err := req.Args.ID(0)
	if err != nil {
		return nil, err
	}
	if !req.Linked().Owns(id) {
		return nil, notFound("user")
	}
	return nil, nil
}

// cardRegistration requires args[0].UserId to be one of the caller's accounts.
type cardRegistration struct{}

func (cardRegistration) Name() string { return "cardRegistration" }

func (cardRegistration) Check(ctx context.Context, req Request) (Hook, error) {
	var body struct {
		UserID mangopay.ID `json:"UserId"`
	}
	if err := req.Args.Object(0, &body); err != nil {
		return nil, err
	}
	if body.UserID.IsZero() {
		return nil, rpc.BadArgs("UserId is required")
	}
	if !req.Linked().Owns(body.UserID) {
		return nil, forbidden()
	}
	return nil, nil
}

// fetchedCard loads the card and compares its bound user.
type fetchedCard struct{}

func (fetchedCard) Name() string { return "fetchedCard" }

func (fetchedCard) Check(ctx context.Context, req Request) (Hook, error) {
	cardID, err := req.Args.ID(0)
	if err != nil {
		var body struct {
			ID mangopay.ID `json:"Id"`
		}
		if objErr := req.Args.Object(0, &body); objErr != nil || body.ID.IsZero() {
			return nil, rpc.BadArgs("card id is required")
		}
		cardID = body.ID
	}
	if req.Processor == nil {
		return nil, processorUnavailable()
	}
	card, err := req.Processor.Client.GetCard(ctx, cardID)
	if err != nil {
		return nil, req.Processor.Wrap("Cards.get", err)
	}
	if !req.Linked().Owns(card.UserID) {
		return nil, forbidden()
	}
	return nil, nil
}

// fetchedPreauth hides preauthorizations of other users as not found.
type fetchedPreauth struct{}

func (fetchedPreauth) Name() string { return "fetchedPreauth" }

func (fetchedPreauth) Check(ctx context.Context, req Request) (Hook, error) {
	id, err := req.Args.ID(0)
	if err != nil {
		return nil, err
	}
	if req.Processor == nil {
		return nil, processorUnavailable()
	}
	preauth, err := req.Processor.Client.GetPreAuthorization(ctx, id)
	if err != nil {
		return nil, req.Processor.Wrap("CardPreAuthorizations.get", err)
	}
	if !req.Linked().Owns(preauth.AuthorID) {
		return nil, notFound("preauthorization")
	}
	return nil, nil
}

// fetchedWallet compares the first listed owner.
type fetchedWallet struct{}

func (fetchedWallet) Name() string { return "fetchedWallet" }

func (fetchedWallet) Check(ctx context.Context, req Request) (Hook, error) {
	id, err := req.Args.ID(0)
	if err != nil {
		return nil, err
	}
	if req.Processor == nil {
		return nil, processorUnavailable()
	}
	wallet, err := req.Processor.Client.GetWallet(ctx, id)
	if err != nil {
		return nil, req.Processor.Wrap("Wallets.get", err)
	}
	if !req.Linked().Owns(wallet.Owner()) {
		return nil, notFound("wallet")
	}
	return nil, nil
}

type fetchedPayIn struct{}

func (fetchedPayIn) Name() string { return "fetchedPayIn" }

func (fetchedPayIn) Check(ctx context.Context, req Request) (Hook, error) {
	id, err := req.Args.ID(0)
	if err != nil {
		return nil, err
	}
	if req.Processor == nil {
		return nil, processorUnavailable()
	}
	payIn, err := req.Processor.Client.GetPayIn(ctx, id)
	if err != nil {
		return nil, req.Processor.Wrap("PayIns.get", err)
	}
	if !req.Linked().Owns(payIn.AuthorID) {
		return nil, notFound("pay-in")
	}
	return nil, nil
}

// payout allows payouts from the caller's own owner wallet only and bumps
// the in-transfer balance once the payout was created.
type payout struct {
	resources resources.Service
	counters  *counters.Adjuster
}

func (payout) Name() string { return "payout" }

func (p payout) Check(ctx context.Context, req Request) (Hook, error) {
	var body struct {
		AuthorID        mangopay.ID `json:"AuthorId"`
		DebitedWalletID mangopay.ID `json:"DebitedWalletId"`
		DebitedFunds    struct {
			Amount int64 `json:"Amount"`
		} `json:"DebitedFunds"`
	}
	if err := req.Args.Object(0, &body); err != nil {
		return nil, err
	}
	if body.AuthorID.IsZero() {
		return nil, rpc.BadArgs("AuthorId is required")
	}
	owner := req.Linked().Owner
	if owner.ID.IsZero() || body.AuthorID != owner.ID || body.DebitedWalletID != owner.WalletID {
		return nil, forbidden()
	}

	userID := req.User.ID
	platformID := req.Identity.PlatformID
	amount := body.DebitedFunds.Amount
	hook := func(ctx context.Context) error {
		return p.counters.With(ctx, platformID, "user", userID, func(ctx context.Context) error {
			user, err := p.resources.GetUser(ctx, userID)
			if err != nil {
				return err
			}
			next := user.PlatformData.Private.Balance.InTransfer + amount
			_, err = p.resources.UpdateUser(ctx, userID, types.Patch{}.Set("platformData._private.balance.inTransfer", next))
			return err
		})
	}
	return hook, nil
}

// delegated marks workflows that run their own ownership checks.
type delegated struct{}

func (delegated) Name() string { return "delegated" }

func (delegated) Check(context.Context, Request) (Hook, error) {
	return nil, nil
}
