package workflows

import (
	"context"
	"strings"

	"github.com/angelmondragon/mangopay-gateway/internal/caller"
	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	"github.com/angelmondragon/mangopay-gateway/internal/rpc"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/mangopay"
)

// PaymentArgs is the 3DS return block shared by card workflows.
type PaymentArgs struct {
	SecureModeReturnURL string `json:"secureModeReturnUrl" validate:"required"`
}

// browserInfo builds the 3DS2 device block from request headers, overridden
// by whatever the buyer's device reported.
func browserInfo(headers caller.Headers, device *resources.BrowserData) *mangopay.BrowserInfo {
	info := &mangopay.BrowserInfo{
		AcceptHeader:      headers.Accept,
		JavaEnabled:       false,
		JavascriptEnabled: true,
		UserAgent:         headers.UserAgent,
		Language:          headers.Language(),
	}
	if device == nil {
		return info
	}
	if device.AcceptHeader != "" {
		info.AcceptHeader = device.AcceptHeader
	}
	if device.JavaEnabled != nil {
		info.JavaEnabled = *device.JavaEnabled
	}
	if device.JavascriptEnabled != nil {
		info.JavascriptEnabled = *device.JavascriptEnabled
	}
	if device.Language != "" {
		info.Language = device.Language
	}
	if device.ColorDepth != nil {
		info.ColorDepth = *device.ColorDepth
	}
	if device.ScreenHeight != nil {
		info.ScreenHeight = *device.ScreenHeight
	}
	if device.ScreenWidth != nil {
		info.ScreenWidth = *device.ScreenWidth
	}
	if device.TimeZoneOffset != nil {
		info.TimeZoneOffset = *device.TimeZoneOffset
	}
	if device.UserAgent != "" {
		info.UserAgent = device.UserAgent
	}
	return info
}

func parseCard(value string) (mangopay.ID, error) {
	id, err := mangopay.ParseID(value)
	if err != nil {
		return 0, rpc.BadArgs("payment method must be a card id")
	}
	return id, nil
}

// paymentMethod picks the explicit card or the user's first saved one.
func paymentMethod(explicit string, user *resources.User) (mangopay.ID, error) {
	if strings.TrimSpace(explicit) != "" {
		return parseCard(explicit)
	}
	saved, ok := user.DefaultPaymentMethod()
	if !ok {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "no payment method found for the current user")
	}
	return parseCard(saved)
}

func payerAccount(s Session) (resources.ProcessorAccount, error) {
	payer := s.Linked().Payer
	if payer.ID.IsZero() {
		return resources.ProcessorAccount{}, pkgerrors.New(pkgerrors.CodeForbidden, "payer account not linked")
	}
	return payer, nil
}

// shippingFare returns the fare for a transaction and whether it still has
// to be persisted. A fare recorded by an earlier attempt is reused.
func (e *Engine) shippingFare(ctx context.Context, tx *resources.Transaction, carrier string, cfg resources.CustomConfig) (int64, bool, error) {
	if tx.PlatformData.ShippingFare != nil {
		return *tx.PlatformData.ShippingFare, false, nil
	}
	size := tx.AssetSnapshot.PackagingSize()
	if size == resources.DefaultPackaging {
		return 0, true, nil
	}

	carrier = firstNonEmpty(carrier, tx.Metadata.Carrier, cfg.DefaultCarrier)
	if price, ok := cfg.ShippingPrice(carrier, size); ok {
		return price, true, nil
	}
	rate, err := e.resources.ShippingRate(ctx, resources.RateRequest{
		Carrier:   carrier,
		Asset:     tx.AssetSnapshot,
		ToAddress: tx.Metadata.Address,
	})
	if err != nil {
		return 0, false, err
	}
	return rate, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func shippingBlock(tx *resources.Transaction) *mangopay.Shipping {
	if tx.Metadata.Address == nil && tx.Metadata.FirstName == "" && tx.Metadata.LastName == "" {
		return nil
	}
	return &mangopay.Shipping{
		FirstName: tx.Metadata.FirstName,
		LastName:  tx.Metadata.LastName,
		Address:   tx.Metadata.Address.ToProcessor(),
	}
}

func money(currency string, amount int64) mangopay.Money {
	return mangopay.Money{Currency: currency, Amount: amount}
}

func transactionCurrency(tx *resources.Transaction, cfg resources.CustomConfig) string {
	if tx.Currency != "" {
		return strings.ToUpper(tx.Currency)
	}
	return cfg.Currency()
}
