package resources

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/mangopay-gateway/pkg/enums"
	"github.com/angelmondragon/mangopay-gateway/pkg/mangopay"
)

const (
	CreditTargetEscrow = "escrow"
	CreditTargetOwner  = "owner"

	RefundAuthorPayer  = "payer"
	RefundAuthorEscrow = "escrow"

	defaultCulture       = "IT"
	defaultEscrowLabel   = "escrow"
	defaultShippingLabel = "shipping"
	defaultAdvLabel      = "adv"
)

// ProcessorCredentials is the private stelace.integrations.mangopay block.
type ProcessorCredentials struct {
	Key        string      `json:"KEY"`
	ClientID   string      `json:"CLIENT_ID"`
	URI        string      `json:"URI"`
	EscrowUser mangopay.ID `json:"ESCROW_USER"`
}

type PrivateConfig struct {
	Stelace struct {
		Integrations struct {
			Mangopay ProcessorCredentials `json:"mangopay"`
		} `json:"integrations"`
	} `json:"stelace"`
}

// AdvPrice is one purchasable sponsorship duration.
type AdvPrice struct {
	Label   string     `json:"label,omitempty"`
	Timings AdvTimings `json:"timings"`
	Price   int64      `json:"price"`
	Type    string     `json:"type,omitempty"`
}

// FindAdvPrice returns the price whose timings match exactly.
func FindAdvPrice(prices []AdvPrice, timings AdvTimings) (AdvPrice, bool) {
	for _, price := range prices {
		if price.Timings == timings {
			return price, true
		}
	}
	return AdvPrice{}, false
}

type CustomConfig struct {
	DefaultCarrier string `json:"defaultCarrier,omitempty"`
	Shipping       struct {
		Prices map[string]map[string]int64 `json:"prices"`
	} `json:"shipping"`
	Adv struct {
		Products map[string][]AdvPrice `json:"products"`
		Profile  struct {
			Pro     []AdvPrice `json:"pro"`
			Private []AdvPrice `json:"private"`
		} `json:"profile"`
	} `json:"adv"`
	AdditionalPricing struct {
		TakerFeesFixed int64 `json:"takerFeesFixed"`
	} `json:"additionalPricing"`
	Payments struct {
		CreditTarget string `json:"creditTarget,omitempty"`
		RefundAuthor string `json:"refundAuthor,omitempty"`
		Culture      string `json:"culture,omitempty"`
		Currency     string `json:"currency,omitempty"`
	} `json:"payments"`
	Wallets struct {
		EscrowLabel   string `json:"escrowLabel,omitempty"`
		ShippingLabel string `json:"shippingLabel,omitempty"`
		AdvLabel      string `json:"advLabel,omitempty"`
	} `json:"wallets"`
}

type PublicConfig struct {
	Custom CustomConfig `json:"custom"`
}

// Currency falls back to EUR when the configured value is missing or unknown.
func (c CustomConfig) Currency() string {
	parsed, err := enums.ParseCurrency(c.Payments.Currency)
	if err != nil {
		return enums.DefaultCurrency.String()
	}
	return parsed.String()
}

func (c CustomConfig) Culture() string {
	if culture := strings.TrimSpace(c.Payments.Culture); culture != "" {
		return strings.ToUpper(culture)
	}
	return defaultCulture
}

func (c CustomConfig) CreditsOwner() bool {
	return strings.EqualFold(c.Payments.CreditTarget, CreditTargetOwner)
}

func (c CustomConfig) RefundsFromEscrow() bool {
	return strings.EqualFold(c.Payments.RefundAuthor, RefundAuthorEscrow)
}

// ShippingPrice looks up the configured fare for a carrier and packaging size.
func (c CustomConfig) ShippingPrice(carrier, size string) (int64, bool) {
	bySize, ok := c.Shipping.Prices[carrier]
	if !ok {
		return 0, false
	}
	price, ok := bySize[size]
	return price, ok
}

// WalletLabels returns the escrow, shipping and adv description labels.
func (c CustomConfig) WalletLabels() (string, string, string) {
	return labelOr(c.Wallets.EscrowLabel, defaultEscrowLabel),
		labelOr(c.Wallets.ShippingLabel, defaultShippingLabel),
		labelOr(c.Wallets.AdvLabel, defaultAdvLabel)
}

func labelOr(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return strings.ToLower(trimmed)
	}
	return fallback
}

// ConfigRequester reads platform configuration. It is the only owner of
// processor credentials.
type ConfigRequester interface {
	Private(ctx context.Context) (*PrivateConfig, error)
	Public(ctx context.Context) (*PublicConfig, error)
}

type configRequester struct {
	transport Transport
}

func NewConfigRequester(transport Transport) ConfigRequester {
	return &configRequester{transport: transport}
}

func (c *configRequester) Private(ctx context.Context) (*PrivateConfig, error) {
	var cfg PrivateConfig
	if err := c.transport.Do(ctx, http.MethodGet, "/config/private", nil, nil, &cfg); err != nil {
		return nil, mapError("private config", err)
	}
	return &cfg, nil
}

func (c *configRequester) Public(ctx context.Context) (*PublicConfig, error) {
	var cfg PublicConfig
	if err := c.transport.Do(ctx, http.MethodGet, "/config", nil, nil, &cfg); err != nil {
		return nil, mapError("config", err)
	}
	return &cfg, nil
}
