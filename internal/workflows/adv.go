package workflows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	"github.com/angelmondragon/mangopay-gateway/internal/rpc"
	"github.com/angelmondragon/mangopay-gateway/pkg/bigquery"
	"github.com/angelmondragon/mangopay-gateway/pkg/enums"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/mangopay"
	"github.com/angelmondragon/mangopay-gateway/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	stopAdvEvent = "stop_adv"
	// Expiry tasks fire slightly after the sponsorship ends.
	stopGrace = 100 * time.Second
	day       = 24 * time.Hour

	msgStopped = "Due and stopped: "
	msgNotDue  = "Not due yet or not sponsored"
)

const isoMillis = "2006-01-02T15:04:05.000Z"

type ActivateArgs struct {
	PayInID    string      `json:"payinId" validate:"required"`
	AssetIDs   []string    `json:"assetIds"`
	AdvProduct *AdvProduct `json:"advProduct"`
	UserID     string      `json:"userId"`
	AdvProfile *AdvProfile `json:"advProfile"`
}

// ListingFailure is one listing the activation could not update.
type ListingFailure struct {
	AssetID string     `json:"assetId,omitempty"`
	Step    string     `json:"step"`
	Error   *ItemError `json:"error"`
}

type ActivationResult struct {
	Assets        []string              `json:"assets"`
	Ads           []resources.AdvEntry  `json:"ads"`
	AssetExcluded []string              `json:"assetExcluded"`
	Tasks         []*resources.Task     `json:"tasks"`
	Failures      []ListingFailure      `json:"failures"`
	User          *resources.User       `json:"user,omitempty"`
	Profile       *resources.ProfileAdv `json:"profile,omitempty"`
}

func (e *Engine) activateSponsorship(ctx context.Context, s Session, args rpc.Args) (any, error) {
	if err := requirePrivileged(s); err != nil {
		return nil, err
	}
	var in ActivateArgs
	if err := args.Decode(0, &in); err != nil {
		return nil, err
	}
	payInID, err := mangopay.ParseID(in.PayInID)
	if err != nil {
		return nil, rpc.BadArgs("payinId must be a processor id")
	}
	payIn, err := s.Processor.Client.GetPayIn(ctx, payInID)
	if err != nil {
		return nil, s.Processor.Wrap("PayIns.get", err)
	}
	if payIn.Status != mangopay.StatusSucceeded {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "pay-in not succeeded").WithDetails(map[string]any{"status": payIn.Status})
	}

	if tag, ok := parseSponsorshipTag(payIn.Tag); ok {
		if len(in.AssetIDs) == 0 && in.UserID == "" {
			in.AssetIDs = tag.Assets
			if len(tag.Assets) == 0 {
				in.UserID = tag.UserID
			}
		}
		if in.AdvProduct == nil {
			in.AdvProduct = tag.AdvProduct
		}
		if in.AdvProfile == nil {
			in.AdvProfile = tag.AdvProfile
		}
	}

	assetIDs := compact(in.AssetIDs)
	switch {
	case len(assetIDs) > 0:
		if in.AdvProduct == nil {
			return nil, missingArgs("advProduct is required")
		}
		return e.activateListings(ctx, s, payIn, assetIDs, *in.AdvProduct)
	case in.UserID != "":
		if in.AdvProfile == nil || in.AdvProfile.Timings.Days <= 0 {
			return nil, missingArgs("advProfile timings.days is required")
		}
		return e.activateProfile(ctx, s, payIn, in.UserID, *in.AdvProfile)
	default:
		return nil, missingArgs("assetIds or userId required")
	}
}

func (e *Engine) activateListings(ctx context.Context, s Session, payIn *mangopay.PayIn, assetIDs []string, product AdvProduct) (*ActivationResult, error) {
	now := e.now()
	var ads []resources.AdvEntry
	for _, p := range product.Placements() {
		if p.request.Timings.Days <= 0 {
			continue
		}
		ads = append(ads, resources.AdvEntry{
			Placement:   p.placement.String(),
			Active:      true,
			LastPayinID: payIn.ID,
			Timings:     p.request.Timings,
			From:        now.UnixMilli(),
			To:          now.Add(time.Duration(p.request.Timings.Days) * day).UnixMilli(),
			UnitAmount:  payIn.DebitedFunds.Amount,
		})
	}
	if len(ads) == 0 {
		return nil, missingArgs("advProduct timings.days is required")
	}

	type fetched struct {
		asset *resources.Asset
		err   error
	}
	reads := make([]fetched, len(assetIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	for i, id := range assetIDs {
		g.Go(func() error {
			asset, err := e.resources.GetAsset(gctx, id)
			reads[i] = fetched{asset: asset, err: err}
			return nil
		})
	}
	_ = g.Wait()

	result := &ActivationResult{
		Assets:        []string{},
		Ads:           ads,
		AssetExcluded: []string{},
		Tasks:         []*resources.Task{},
		Failures:      []ListingFailure{},
	}
	var failures error
	var facts []bigquery.SponsorshipFact
	for i, read := range reads {
		id := assetIDs[i]
		if read.err != nil {
			result.Failures = append(result.Failures, ListingFailure{AssetID: id, Step: "read", Error: itemError(read.err)})
			failures = multierr.Append(failures, read.err)
			continue
		}
		merged := mergeAdv(read.asset.PlatformData.Adv, ads)
		patch := types.Patch{}.
			Set("platformData.adv", merged).
			Set("customAttributes.sponsoredHome", placementActive(merged, enums.AdPlacementHome)).
			Set("customAttributes.sponsoredCategory", placementActive(merged, enums.AdPlacementCategory))
		if _, err := e.resources.UpdateAsset(ctx, id, patch); err != nil {
			result.Failures = append(result.Failures, ListingFailure{AssetID: id, Step: "update", Error: itemError(err)})
			failures = multierr.Append(failures, err)
			continue
		}
		if read.asset.PlatformData.Admin.Validated {
			result.Assets = append(result.Assets, id)
		} else {
			result.AssetExcluded = append(result.AssetExcluded, id)
		}
		for _, ad := range ads {
			facts = append(facts, e.fact(s, enums.SponsorshipFactActivated, id, "", ad, payIn.DebitedFunds.Currency))
		}
	}

	if len(result.Assets) > 0 {
		for _, ad := range ads {
			task, err := e.scheduleStop(ctx, ad.To, map[string]any{"assetIds": result.Assets})
			if err != nil {
				result.Failures = append(result.Failures, ListingFailure{Step: "task", Error: itemError(err)})
				failures = multierr.Append(failures, err)
				continue
			}
			result.Tasks = append(result.Tasks, task)
		}
	}

	if failures != nil {
		e.warn(ctx, "sponsorship activation partially failed", failures)
	}
	e.writeFacts(ctx, facts)
	return result, nil
}

func (e *Engine) activateProfile(ctx context.Context, s Session, payIn *mangopay.PayIn, userID string, profile AdvProfile) (*ActivationResult, error) {
	now := e.now()
	ad := resources.ProfileAdv{
		Active:      true,
		Placement:   enums.AdPlacementHome.String(),
		LastPayinID: payIn.ID,
		Timings:     &profile.Timings,
		From:        now.UnixMilli(),
		To:          now.Add(time.Duration(profile.Timings.Days) * day).UnixMilli(),
		UnitAmount:  payIn.DebitedFunds.Amount,
	}

	user, err := e.resources.UpdateUser(ctx, userID, types.Patch{}.Set("platformData.adv", ad))
	if err != nil {
		return nil, err
	}

	entry, err := e.profileEntry(ctx)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		e.warn(ctx, "sponsored profiles entry missing", pkgerrors.New(pkgerrors.CodeNotFound, "entry adv/profile not found"))
	} else if !entry.HasHome(userID) {
		fields := entry.Fields
		fields.Home = append(append([]string(nil), fields.Home...), userID)
		if _, err := e.resources.UpdateEntryFields(ctx, entry.ID, fields); err != nil {
			return nil, err
		}
	}

	result := &ActivationResult{
		Assets:        []string{},
		Ads:           []resources.AdvEntry{},
		AssetExcluded: []string{},
		Tasks:         []*resources.Task{},
		Failures:      []ListingFailure{},
		User:          user,
		Profile:       &ad,
	}
	task, err := e.scheduleStop(ctx, ad.To, map[string]any{"userId": userID})
	if err != nil {
		e.warn(ctx, "profile sponsorship stop task not scheduled", err)
		result.Failures = append(result.Failures, ListingFailure{Step: "task", Error: itemError(err)})
	} else {
		result.Tasks = append(result.Tasks, task)
	}

	e.writeFacts(ctx, []bigquery.SponsorshipFact{e.fact(s, enums.SponsorshipFactActivated, "", userID, resources.AdvEntry{
		Placement:   ad.Placement,
		LastPayinID: ad.LastPayinID,
		From:        ad.From,
		To:          ad.To,
		UnitAmount:  ad.UnitAmount,
	}, payIn.DebitedFunds.Currency)})
	return result, nil
}

// mergeAdv replaces entries of the same placement and keeps the others.
func mergeAdv(existing, incoming []resources.AdvEntry) []resources.AdvEntry {
	replaced := map[string]bool{}
	for _, ad := range incoming {
		replaced[ad.Placement] = true
	}
	out := make([]resources.AdvEntry, 0, len(existing)+len(incoming))
	for _, ad := range existing {
		if !replaced[ad.Placement] {
			out = append(out, ad)
		}
	}
	return append(out, incoming...)
}

func placementActive(ads []resources.AdvEntry, placement enums.AdPlacement) bool {
	for _, ad := range ads {
		if ad.Active && ad.Placement == placement.String() {
			return true
		}
	}
	return false
}

func (e *Engine) scheduleStop(ctx context.Context, toMillis int64, metadata map[string]any) (*resources.Task, error) {
	execution := time.UnixMilli(toMillis).Add(stopGrace).UTC()
	return e.resources.CreateTask(ctx, resources.TaskInput{
		ExecutionDate: execution.Format(isoMillis),
		EventType:     stopAdvEvent,
		EventMetadata: metadata,
	})
}

type StopArgs struct {
	AssetIDs []string `json:"assetIds"`
	UserID   string   `json:"userId"`
}

type ListingStop struct {
	AssetID string     `json:"assetId"`
	Stopped []string   `json:"stopped"`
	NotDue  []string   `json:"notDue"`
	Error   *ItemError `json:"error,omitempty"`
}

type StopResult struct {
	Listings []ListingStop   `json:"listings,omitempty"`
	User     *resources.User `json:"user,omitempty"`
	Stopped  bool            `json:"stopped"`
	Message  string          `json:"message"`
}

func (e *Engine) stopSponsorship(ctx context.Context, s Session, args rpc.Args) (any, error) {
	if err := requirePrivileged(s); err != nil {
		return nil, err
	}
	var in StopArgs
	if err := args.Decode(0, &in); err != nil {
		return nil, err
	}
	assetIDs := compact(in.AssetIDs)
	switch {
	case len(assetIDs) > 0 && in.UserID != "":
		return nil, rpc.BadArgs("assetIds and userId are exclusive")
	case len(assetIDs) > 0:
		return e.stopListings(ctx, s, assetIDs)
	case in.UserID != "":
		return e.stopProfile(ctx, s, in.UserID)
	default:
		return nil, missingArgs("assetIds or userId required")
	}
}

func (e *Engine) stopListings(ctx context.Context, s Session, assetIDs []string) (*StopResult, error) {
	now := e.now().UnixMilli()
	result := &StopResult{Listings: make([]ListingStop, 0, len(assetIDs))}
	var stoppedPlacements []string
	var facts []bigquery.SponsorshipFact
	var failures error

	for _, id := range assetIDs {
		listing := ListingStop{AssetID: id, Stopped: []string{}, NotDue: []string{}}
		asset, err := e.resources.GetAsset(ctx, id)
		if err != nil {
			listing.Error = itemError(err)
			failures = multierr.Append(failures, err)
			result.Listings = append(result.Listings, listing)
			continue
		}

		var kept []resources.AdvEntry
		attributes := map[string]any{}
		for _, ad := range asset.PlatformData.Adv {
			if ad.To != 0 && ad.To > now {
				kept = append(kept, ad)
				listing.NotDue = append(listing.NotDue, ad.Placement)
				continue
			}
			listing.Stopped = append(listing.Stopped, ad.Placement)
			switch ad.Placement {
			case enums.AdPlacementHome.String():
				attributes["sponsoredHome"] = false
			case enums.AdPlacementCategory.String():
				attributes["sponsoredCategory"] = false
			}
			facts = append(facts, e.fact(s, enums.SponsorshipFactStopped, id, "", ad, ""))
		}

		if len(listing.Stopped) > 0 {
			patch := types.Patch{}
			if len(kept) == 0 {
				patch.Set("platformData.adv", nil)
			} else {
				patch.Set("platformData.adv", kept)
			}
			if len(attributes) > 0 {
				patch.Set("customAttributes", attributes)
			}
			if _, err := e.resources.UpdateAsset(ctx, id, patch); err != nil {
				listing.Error = itemError(err)
				failures = multierr.Append(failures, err)
				result.Listings = append(result.Listings, listing)
				continue
			}
			result.Stopped = true
			stoppedPlacements = append(stoppedPlacements, listing.Stopped...)
		}
		result.Listings = append(result.Listings, listing)
	}

	result.Message = stopMessage(stoppedPlacements)
	if failures != nil {
		e.warn(ctx, "sponsorship stop partially failed", failures)
	}
	e.writeFacts(ctx, facts)
	return result, nil
}

func (e *Engine) stopProfile(ctx context.Context, s Session, userID string) (*StopResult, error) {
	user, err := e.resources.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	adv := user.PlatformData.Adv
	now := e.now().UnixMilli()
	if adv == nil || !adv.Active || (adv.To != 0 && adv.To > now) {
		return &StopResult{User: user, Message: msgNotDue}, nil
	}

	stopped := map[string]any{
		"active":      false,
		"placement":   nil,
		"lastPayinId": adv.LastPayinID,
		"from":        adv.From,
		"to":          adv.To,
		"unitAmount":  0,
	}
	updated, err := e.resources.UpdateUser(ctx, userID, types.Patch{}.Set("platformData.adv", stopped))
	if err != nil {
		return nil, err
	}

	entry, err := e.profileEntry(ctx)
	if err != nil {
		return nil, err
	}
	if entry != nil && entry.HasHome(userID) {
		fields := entry.Fields
		fields.Home = without(fields.Home, userID)
		if _, err := e.resources.UpdateEntryFields(ctx, entry.ID, fields); err != nil {
			return nil, err
		}
	}

	e.writeFacts(ctx, []bigquery.SponsorshipFact{e.fact(s, enums.SponsorshipFactStopped, "", userID, resources.AdvEntry{
		Placement:   adv.Placement,
		LastPayinID: adv.LastPayinID,
		From:        adv.From,
		To:          adv.To,
		UnitAmount:  adv.UnitAmount,
	}, "")})
	return &StopResult{
		User:    updated,
		Stopped: true,
		Message: stopMessage([]string{enums.AdPlacementHome.String()}),
	}, nil
}

func stopMessage(placements []string) string {
	if len(placements) == 0 {
		return msgNotDue
	}
	return msgStopped + strings.Join(placements, ", ")
}

func (e *Engine) fact(s Session, kind enums.SponsorshipFactType, assetID, userID string, ad resources.AdvEntry, currency string) bigquery.SponsorshipFact {
	fact := bigquery.SponsorshipFact{
		FactID:      uuid.NewString(),
		Type:        string(kind),
		PlatformID:  s.Identity.PlatformID,
		PlatformEnv: s.Identity.Env,
		AssetID:     assetID,
		UserID:      userID,
		Placement:   ad.Placement,
		UnitAmount:  ad.UnitAmount,
		Currency:    currency,
		ActiveFrom:  time.UnixMilli(ad.From).UTC(),
		OccurredAt:  e.now().UTC(),
	}
	if !ad.LastPayinID.IsZero() {
		fact.PayInID = ad.LastPayinID.String()
	}
	if ad.To != 0 {
		fact.ActiveTo = time.UnixMilli(ad.To).UTC()
	}
	return fact
}

// writeFacts is best effort: a sink failure never fails the workflow.
func (e *Engine) writeFacts(ctx context.Context, facts []bigquery.SponsorshipFact) {
	if e.facts == nil || len(facts) == 0 {
		return
	}
	if err := e.facts.WriteFacts(ctx, facts); err != nil {
		e.warn(ctx, fmt.Sprintf("sponsorship facts not written (%d rows)", len(facts)), err)
	}
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// distinct is compact that also drops repeated values, keeping first-seen order.
func distinct(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range compact(values) {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func without(values []string, drop string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != drop {
			out = append(out, v)
		}
	}
	return out
}
