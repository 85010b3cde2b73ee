package resources

import (
	"github.com/angelmondragon/mangopay-gateway/pkg/enums"
	"github.com/angelmondragon/mangopay-gateway/pkg/mangopay"
)

// ListResult is the paginated envelope of marketplace list routes.
type ListResult[T any] struct {
	Results   []T `json:"results"`
	NbResults int `json:"nbResults"`
}

// ProcessorAccount is one linked processor role of a marketplace user.
type ProcessorAccount struct {
	ID       mangopay.ID `json:"id,omitempty"`
	WalletID mangopay.ID `json:"walletId,omitempty"`
}

// LinkedAccounts are the payer and owner accounts stored under
// platformData._private.mangoPay.
type LinkedAccounts struct {
	Payer ProcessorAccount `json:"payer"`
	Owner ProcessorAccount `json:"owner"`
}

func (l LinkedAccounts) Any() bool {
	return !l.Payer.ID.IsZero() || !l.Owner.ID.IsZero()
}

// Owns reports whether id is the payer or owner account.
func (l LinkedAccounts) Owns(id mangopay.ID) bool {
	return id.Matches(l.Payer.ID, l.Owner.ID)
}

type Balance struct {
	Pending    int64 `json:"pending"`
	InTransfer int64 `json:"inTransfer"`
}

type UserPrivateData struct {
	MangoPay LinkedAccounts `json:"mangoPay"`
	Balance  Balance        `json:"balance"`
}

// ProfileAdv is the sponsorship state of a user profile.
type ProfileAdv struct {
	Active      bool        `json:"active"`
	Placement   string      `json:"placement,omitempty"`
	LastPayinID mangopay.ID `json:"lastPayinId,omitempty"`
	Timings     *AdvTimings `json:"timings,omitempty"`
	From        int64       `json:"from,omitempty"`
	To          int64       `json:"to,omitempty"`
	UnitAmount  int64       `json:"unitAmount"`
}

type UserPlatformData struct {
	UserType string          `json:"userType,omitempty"`
	CanSell  bool            `json:"canSell,omitempty"`
	Adv      *ProfileAdv     `json:"adv,omitempty"`
	Private  UserPrivateData `json:"_private"`
}

type PaymentMethod struct {
	ID string `json:"id"`
}

type CompanyInfo struct {
	BusinessName string `json:"businessName,omitempty"`
	VATNumber    string `json:"vatNumber,omitempty"`
}

type UserMetadata struct {
	CompanyInfo CompanyInfo `json:"companyInfo"`
	Private     struct {
		PaymentMethods []PaymentMethod `json:"paymentMethods"`
	} `json:"_private"`
}

type User struct {
	ID           string           `json:"id"`
	Email        string           `json:"email"`
	FirstName    string           `json:"firstname"`
	LastName     string           `json:"lastname"`
	Metadata     UserMetadata     `json:"metadata"`
	PlatformData UserPlatformData `json:"platformData"`
}

func (u *User) Linked() LinkedAccounts {
	if u == nil {
		return LinkedAccounts{}
	}
	return u.PlatformData.Private.MangoPay
}

func (u *User) IsBusiness() bool {
	return u != nil && u.PlatformData.UserType == "business"
}

// DefaultPaymentMethod returns the first saved card id, if any.
func (u *User) DefaultPaymentMethod() (string, bool) {
	if u == nil || len(u.Metadata.Private.PaymentMethods) == 0 {
		return "", false
	}
	id := u.Metadata.Private.PaymentMethods[0].ID
	return id, id != ""
}

// BrowserData is the buyer device fingerprint captured at checkout.
type BrowserData struct {
	AcceptHeader      string `json:"AcceptHeader,omitempty"`
	JavaEnabled       *bool  `json:"JavaEnabled,omitempty"`
	JavascriptEnabled *bool  `json:"JavascriptEnabled,omitempty"`
	Language          string `json:"Language,omitempty"`
	ColorDepth        *int   `json:"ColorDepth,omitempty"`
	ScreenHeight      *int   `json:"ScreenHeight,omitempty"`
	ScreenWidth       *int   `json:"ScreenWidth,omitempty"`
	TimeZoneOffset    *int   `json:"TimeZoneOffset,omitempty"`
	UserAgent         string `json:"UserAgent,omitempty"`
}

// Complete reports whether the fields the processor requires are present.
func (b *BrowserData) Complete() bool {
	return b != nil && b.ColorDepth != nil && b.ScreenWidth != nil && b.ScreenHeight != nil
}

type ShippingAddress struct {
	Address      string `json:"address,omitempty"`
	StreetNumber string `json:"streetNumber,omitempty"`
	City         string `json:"city,omitempty"`
	Region       string `json:"region,omitempty"`
	PostalCode   string `json:"postalCode,omitempty"`
	Zip          string `json:"zip,omitempty"`
	Country      string `json:"country,omitempty"`
}

// ToProcessor converts to the processor address block.
func (a *ShippingAddress) ToProcessor() *mangopay.Address {
	if a == nil {
		return nil
	}
	line := a.Address
	if a.StreetNumber != "" {
		line = a.Address + " " + a.StreetNumber
	}
	postal := a.PostalCode
	if postal == "" {
		postal = a.Zip
	}
	return &mangopay.Address{
		AddressLine1: line,
		City:         a.City,
		Region:       a.Region,
		PostalCode:   postal,
		Country:      a.Country,
	}
}

type TransactionMetadata struct {
	IP            string           `json:"ip,omitempty"`
	BrowserData   *BrowserData     `json:"browserData,omitempty"`
	PaymentMethod string           `json:"paymentMethod,omitempty"`
	FirstName     string           `json:"firstName,omitempty"`
	LastName      string           `json:"lastName,omitempty"`
	Address       *ShippingAddress `json:"address,omitempty"`
	Carrier       string           `json:"carrier,omitempty"`
}

// TransactionProgress is the workflow state persisted on platformData.
type TransactionProgress struct {
	ShippingFare          *int64      `json:"shippingFare,omitempty"`
	ChargedAmount         int64       `json:"chargedAmount,omitempty"`
	PayInID               mangopay.ID `json:"payInId,omitempty"`
	PreauthorizationID    mangopay.ID `json:"preauthorizationId,omitempty"`
	CapturedPayInID       mangopay.ID `json:"capturedPayInId,omitempty"`
	TransferredToShipping int64       `json:"transferredToShipping,omitempty"`
	TransferredToOwner    int64       `json:"transferredToOwner,omitempty"`
	CompletedTransfer     bool        `json:"completedTransfer,omitempty"`

	// FailedAttempts holds the last failed processor object per step.
	FailedAttempts map[string]mangopay.ID `json:"failedAttempts,omitempty"`
}

type AssetSnapshot struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Metadata struct {
		PackagingSize string `json:"packagingSize,omitempty"`
	} `json:"metadata"`
}

// PackagingSize returns the declared size or "default" when none is set.
func (s AssetSnapshot) PackagingSize() string {
	if s.Metadata.PackagingSize == "" {
		return DefaultPackaging
	}
	return s.Metadata.PackagingSize
}

const DefaultPackaging = "default"

type Transaction struct {
	ID             string                  `json:"id"`
	Status         enums.TransactionStatus `json:"status"`
	AssetID        string                  `json:"assetId"`
	TakerID        string                  `json:"takerId"`
	OwnerID        string                  `json:"ownerId"`
	TakerAmount    int64                   `json:"takerAmount"`
	OwnerAmount    int64                   `json:"ownerAmount"`
	PlatformAmount int64                   `json:"platformAmount"`
	Currency       string                  `json:"currency"`
	AssetSnapshot  AssetSnapshot           `json:"assetSnapshot"`
	Metadata       TransactionMetadata     `json:"metadata"`
	PlatformData   TransactionProgress     `json:"platformData"`
}

type AdvTimings struct {
	Days int `json:"days"`
}

// AdvEntry is one placement-keyed sponsorship on a listing. From and To are
// unix milliseconds; a zero To means no end.
type AdvEntry struct {
	Placement   string      `json:"placement"`
	Active      bool        `json:"active"`
	LastPayinID mangopay.ID `json:"lastPayinId,omitempty"`
	Timings     AdvTimings  `json:"timings"`
	From        int64       `json:"from"`
	To          int64       `json:"to,omitempty"`
	UnitAmount  int64       `json:"unitAmount"`
}

type AssetPlatformData struct {
	Adv   []AdvEntry `json:"adv"`
	Admin struct {
		Validated bool `json:"validated"`
	} `json:"admin"`
}

type Asset struct {
	ID               string            `json:"id"`
	OwnerID          string            `json:"ownerId"`
	CustomAttributes map[string]any    `json:"customAttributes,omitempty"`
	PlatformData     AssetPlatformData `json:"platformData"`
}

type OrderLine struct {
	ID            string `json:"id"`
	TransactionID string `json:"transactionId,omitempty"`
	PayerAmount   int64  `json:"payerAmount"`
	Metadata      struct {
		Kind string `json:"kind,omitempty"`
	} `json:"metadata"`
}

type Order struct {
	ID    string      `json:"id"`
	Lines []OrderLine `json:"lines"`
}

// ShippingLine returns the amount of the first line of kind "shipping".
func (o *Order) ShippingLine() (int64, bool) {
	if o == nil {
		return 0, false
	}
	for _, line := range o.Lines {
		if line.Metadata.Kind == "shipping" {
			return line.PayerAmount, true
		}
	}
	return 0, false
}

type EntryFields struct {
	Home []string `json:"home"`
}

type Entry struct {
	ID         string      `json:"id"`
	Collection string      `json:"collection"`
	Name       string      `json:"name"`
	Locale     string      `json:"locale"`
	Fields     EntryFields `json:"fields"`
}

func (e *Entry) HasHome(id string) bool {
	if e == nil {
		return false
	}
	for _, existing := range e.Fields.Home {
		if existing == id {
			return true
		}
	}
	return false
}

// TaskInput schedules a future platform event.
type TaskInput struct {
	ExecutionDate string         `json:"executionDate"`
	EventType     string         `json:"eventType"`
	EventMetadata map[string]any `json:"eventMetadata,omitempty"`
}

type Task struct {
	ID            string         `json:"id"`
	ExecutionDate string         `json:"executionDate"`
	EventType     string         `json:"eventType"`
	EventMetadata map[string]any `json:"eventMetadata,omitempty"`
}

type Event struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	ObjectID string         `json:"objectId"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
