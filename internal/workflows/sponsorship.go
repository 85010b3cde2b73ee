package workflows

import (
	"context"
	"encoding/json"

	"github.com/angelmondragon/mangopay-gateway/internal/processor"
	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	"github.com/angelmondragon/mangopay-gateway/internal/rpc"
	"github.com/angelmondragon/mangopay-gateway/pkg/enums"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/mangopay"
	"golang.org/x/sync/errgroup"
)

const (
	advCollection = "adv"
	advProfile    = "profile"
	advLocale     = "it-IT"

	maxConcurrentReads = 8
)

// AdvProduct is the requested sponsorship per placement.
type AdvProduct struct {
	Home     *resources.AdvPrice `json:"home,omitempty"`
	Category *resources.AdvPrice `json:"category,omitempty"`
}

type placementRequest struct {
	placement enums.AdPlacement
	request   resources.AdvPrice
}

// Placements lists the requested placements in processing order.
func (p AdvProduct) Placements() []placementRequest {
	var out []placementRequest
	for _, placement := range enums.AdPlacements {
		var req *resources.AdvPrice
		switch placement {
		case enums.AdPlacementHome:
			req = p.Home
		case enums.AdPlacementCategory:
			req = p.Category
		}
		if req != nil {
			out = append(out, placementRequest{placement: placement, request: *req})
		}
	}
	return out
}

// AdvProfile is the requested profile sponsorship.
type AdvProfile struct {
	Timings resources.AdvTimings `json:"timings"`
}

// SponsorArgs are shared by both sponsorship purchases.
type SponsorArgs struct {
	Payment       PaymentArgs            `json:"payment"`
	BrowserData   *resources.BrowserData `json:"browserData"`
	IP            string                 `json:"ip"`
	PaymentMethod string                 `json:"paymentMethod"`
}

type SponsorProductArgs struct {
	SponsorArgs
	AssetIDs   []string    `json:"assetIds" validate:"required,min=1,dive,required"`
	AdvProduct *AdvProduct `json:"advProduct" validate:"required"`
}

type SponsorProfileArgs struct {
	SponsorArgs
	UserID  string                `json:"userId" validate:"required"`
	Timings *resources.AdvTimings `json:"timings" validate:"required"`
}

// sponsorshipTag is stored on the pay-in so activation can recover the intent.
type sponsorshipTag struct {
	Assets     []string    `json:"assets,omitempty"`
	AdvProduct *AdvProduct `json:"advProduct,omitempty"`
	UserID     string      `json:"userId,omitempty"`
	AdvProfile *AdvProfile `json:"advProfile,omitempty"`
}

func (t sponsorshipTag) encode() string {
	raw, _ := json.Marshal(t)
	return string(raw)
}

func parseSponsorshipTag(tag string) (sponsorshipTag, bool) {
	var out sponsorshipTag
	if tag == "" || json.Unmarshal([]byte(tag), &out) != nil {
		return sponsorshipTag{}, false
	}
	return out, true
}

// sponsorshipFees keeps one minor unit on the adv wallet.
func sponsorshipFees(price int64) int64 {
	if price <= 1 {
		return 0
	}
	return price - 1
}

func (e *Engine) fetchAssets(ctx context.Context, ids []string) ([]*resources.Asset, error) {
	assets := make([]*resources.Asset, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	for i, id := range ids {
		g.Go(func() error {
			asset, err := e.resources.GetAsset(gctx, id)
			if err != nil {
				return err
			}
			assets[i] = asset
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return assets, nil
}

func (e *Engine) sponsorProduct(ctx context.Context, s Session, args rpc.Args) (any, error) {
	var in SponsorProductArgs
	if err := args.Decode(0, &in); err != nil {
		return nil, err
	}
	placements := in.AdvProduct.Placements()
	if len(placements) == 0 {
		return nil, missingArgs("advProduct needs home or category")
	}
	for _, p := range placements {
		if p.request.Timings.Days <= 0 {
			return nil, missingArgs("advProduct timings.days is required")
		}
	}

	in.AssetIDs = distinct(in.AssetIDs)
	if len(in.AssetIDs) == 0 {
		return nil, missingArgs("assetIds is required")
	}
	assets, err := e.fetchAssets(ctx, in.AssetIDs)
	if err != nil {
		return nil, err
	}
	if !s.Privileged() {
		for _, asset := range assets {
			if asset.OwnerID != s.Identity.UserID {
				return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot sponsor listings of other users")
			}
		}
	}

	cfg, err := e.customConfig(ctx)
	if err != nil {
		return nil, err
	}
	var price int64
	for _, p := range placements {
		offer, ok := resources.FindAdvPrice(cfg.Adv.Products[p.placement.String()], p.request.Timings)
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sponsorship offer not found").WithDetails(map[string]any{"placement": p.placement})
		}
		price += offer.Price * int64(len(assets))
	}

	payer, err := payerAccount(s)
	if err != nil {
		return nil, err
	}
	card, err := paymentMethod(in.PaymentMethod, s.User)
	if err != nil {
		return nil, err
	}
	wallets, err := processor.ResolveWallets(ctx, s.Processor, cfg)
	if err != nil {
		return nil, err
	}
	adv, err := wallets.Require("adv")
	if err != nil {
		return nil, err
	}

	tag := sponsorshipTag{Assets: in.AssetIDs, AdvProduct: in.AdvProduct, UserID: s.Identity.UserID}
	return e.chargeSponsorship(ctx, s, cfg, payer.ID, adv.ID, card, price, tag, in.SponsorArgs)
}

func (e *Engine) sponsorProfile(ctx context.Context, s Session, args rpc.Args) (any, error) {
	var in SponsorProfileArgs
	if err := args.Decode(0, &in); err != nil {
		return nil, err
	}
	if in.Timings.Days <= 0 {
		return nil, missingArgs("timings.days is required")
	}
	if in.UserID != s.Identity.UserID && !s.Privileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot sponsor profiles of other users")
	}

	user, err := e.resources.GetUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	entry, err := e.profileEntry(ctx)
	if err != nil {
		return nil, err
	}
	if entry.HasHome(user.ID) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "user already sponsored")
	}

	cfg, err := e.customConfig(ctx)
	if err != nil {
		return nil, err
	}
	offers := cfg.Adv.Profile.Private
	if user.IsBusiness() {
		offers = cfg.Adv.Profile.Pro
	}
	offer, ok := resources.FindAdvPrice(offers, *in.Timings)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sponsorship offer not found")
	}

	payer, err := payerAccount(s)
	if err != nil {
		return nil, err
	}
	card, err := paymentMethod(in.PaymentMethod, user)
	if err != nil {
		return nil, err
	}
	wallets, err := processor.ResolveWallets(ctx, s.Processor, cfg)
	if err != nil {
		return nil, err
	}
	adv, err := wallets.Require("adv")
	if err != nil {
		return nil, err
	}

	tag := sponsorshipTag{UserID: user.ID, AdvProfile: &AdvProfile{Timings: *in.Timings}}
	return e.chargeSponsorship(ctx, s, cfg, payer.ID, adv.ID, card, offer.Price, tag, in.SponsorArgs)
}

func (e *Engine) chargeSponsorship(ctx context.Context, s Session, cfg resources.CustomConfig, payer, wallet, card mangopay.ID, price int64, tag sponsorshipTag, in SponsorArgs) (*mangopay.PayIn, error) {
	currency := cfg.Currency()
	payIn, err := s.Processor.Client.CreateCardDirectPayIn(ctx, mangopay.CardDirectPayIn{
		AuthorID:            payer,
		CreditedWalletID:    wallet,
		DebitedFunds:        money(currency, price),
		Fees:                money(currency, sponsorshipFees(price)),
		CardID:              card,
		SecureModeReturnURL: in.Payment.SecureModeReturnURL,
		IPAddress:           in.IP,
		BrowserInfo:         browserInfo(s.Identity.Headers, in.BrowserData),
		Culture:             cfg.Culture(),
		Tag:                 tag.encode(),
	})
	if err != nil {
		return nil, s.Processor.Wrap("PayIns.create", err)
	}
	return payIn, nil
}

// profileEntry loads the sponsored profiles entry. A missing entry counts as
// an empty list.
func (e *Engine) profileEntry(ctx context.Context) (*resources.Entry, error) {
	entry, err := e.resources.FindEntry(ctx, resources.EntryQuery{Collection: advCollection, Name: advProfile, Locale: advLocale})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}
