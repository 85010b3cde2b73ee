package mangopay

// Transaction and object statuses reported by the processor.
const (
	StatusCreated   = "CREATED"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

const (
	PersonNatural = "NATURAL"
	PersonLegal   = "LEGAL"

	UserCategoryOwner = "OWNER"
	UserCategoryPayer = "PAYER"

	LegalPersonBusiness = "BUSINESS"
)

// Money is an amount in minor currency units.
type Money struct {
	Currency string
	Amount   int64
}

type Address struct {
	AddressLine1 string `json:",omitempty"`
	AddressLine2 string `json:",omitempty"`
	City         string `json:",omitempty"`
	Region       string `json:",omitempty"`
	PostalCode   string `json:",omitempty"`
	Country      string `json:",omitempty"`
}

// User is the common subset of natural and legal users.
type User struct {
	ID           ID `json:"Id,omitempty"`
	PersonType   string
	Email        string `json:",omitempty"`
	FirstName    string `json:",omitempty"`
	LastName     string `json:",omitempty"`
	Name         string `json:",omitempty"`
	UserCategory string `json:",omitempty"`
	KYCLevel     string `json:",omitempty"`
	Tag          string `json:",omitempty"`
}

type NaturalUser struct {
	Email                      string
	FirstName                  string
	LastName                   string
	Address                    *Address `json:",omitempty"`
	Birthday                   int64
	Nationality                string
	CountryOfResidence         string
	PhoneNumber                string `json:",omitempty"`
	UserCategory               string
	TermsAndConditionsAccepted bool
	Tag                        string `json:",omitempty"`
}

type LegalUser struct {
	Email                                 string
	Name                                  string
	LegalPersonType                       string
	HeadquartersAddress                   *Address `json:",omitempty"`
	LegalRepresentativeFirstName          string
	LegalRepresentativeLastName           string
	LegalRepresentativeEmail              string   `json:",omitempty"`
	LegalRepresentativeBirthday           int64
	LegalRepresentativeNationality        string
	LegalRepresentativeCountryOfResidence string
	LegalRepresentativeAddress            *Address `json:",omitempty"`
	CompanyNumber                         string   `json:",omitempty"`
	UserCategory                          string
	TermsAndConditionsAccepted            bool
	Tag                                   string `json:",omitempty"`
}

type Wallet struct {
	ID          ID     `json:"Id,omitempty"`
	Owners      []ID   `json:",omitempty"`
	Description string `json:",omitempty"`
	Currency    string `json:",omitempty"`
	Balance     *Money `json:",omitempty"`
	Tag         string `json:",omitempty"`
}

// Owner returns the first listed owner, the one ownership checks use.
func (w Wallet) Owner() ID {
	if len(w.Owners) == 0 {
		return 0
	}
	return w.Owners[0]
}

type Card struct {
	ID             ID `json:"Id"`
	UserID         ID `json:"UserId"`
	Alias          string
	CardType       string
	Currency       string
	Active         bool
	Validity       string
	ExpirationDate string
}

// BrowserInfo is the 3DS2 device block required on card operations.
type BrowserInfo struct {
	AcceptHeader      string
	JavaEnabled       bool
	JavascriptEnabled bool
	Language          string
	ColorDepth        int
	ScreenHeight      int
	ScreenWidth       int
	TimeZoneOffset    int
	UserAgent         string
}

type Shipping struct {
	FirstName string   `json:",omitempty"`
	LastName  string   `json:",omitempty"`
	Address   *Address `json:",omitempty"`
}

// CardDirectPayIn is the request body of POST /payins/card/direct.
type CardDirectPayIn struct {
	AuthorID            ID `json:"AuthorId"`
	CreditedWalletID    ID `json:"CreditedWalletId"`
	DebitedFunds        Money
	Fees                Money
	CardID              ID `json:"CardId"`
	SecureModeReturnURL string
	IPAddress           string       `json:"IpAddress,omitempty"`
	BrowserInfo         *BrowserInfo `json:",omitempty"`
	Shipping            *Shipping    `json:",omitempty"`
	Culture             string       `json:",omitempty"`
	Tag                 string       `json:",omitempty"`
}

// PreauthorizedPayIn is the request body of POST /payins/preauthorized/direct.
type PreauthorizedPayIn struct {
	AuthorID           ID `json:"AuthorId"`
	CreditedWalletID   ID `json:"CreditedWalletId"`
	DebitedFunds       Money
	Fees               Money
	PreauthorizationID ID     `json:"PreauthorizationId"`
	Tag                string `json:",omitempty"`
}

type PayIn struct {
	ID                    ID `json:"Id"`
	AuthorID              ID `json:"AuthorId"`
	CreditedUserID        ID `json:"CreditedUserId,omitempty"`
	CreditedWalletID      ID `json:"CreditedWalletId"`
	DebitedFunds          Money
	CreditedFunds         Money
	Fees                  Money
	Status                string
	ResultCode            string
	ResultMessage         string
	PaymentType           string
	ExecutionType         string
	SecureModeRedirectURL string `json:",omitempty"`
	Tag                   string
	CreationDate          int64
}

type PreAuthorization struct {
	ID                    ID `json:"Id,omitempty"`
	AuthorID              ID `json:"AuthorId"`
	DebitedFunds          Money
	CardID                ID           `json:"CardId"`
	Status                string       `json:",omitempty"`
	PaymentStatus         string       `json:",omitempty"`
	ResultCode            string       `json:",omitempty"`
	ResultMessage         string       `json:",omitempty"`
	SecureModeReturnURL   string       `json:",omitempty"`
	SecureModeRedirectURL string       `json:",omitempty"`
	IPAddress             string       `json:"IpAddress,omitempty"`
	BrowserInfo           *BrowserInfo `json:",omitempty"`
	Shipping              *Shipping    `json:",omitempty"`
	Culture               string       `json:",omitempty"`
	Tag                   string       `json:",omitempty"`
	ExpirationDate        int64        `json:",omitempty"`
}

type Transfer struct {
	ID               ID `json:"Id,omitempty"`
	AuthorID         ID `json:"AuthorId"`
	CreditedUserID   ID `json:"CreditedUserId,omitempty"`
	DebitedFunds     Money
	CreditedFunds    *Money `json:",omitempty"`
	Fees             Money
	DebitedWalletID  ID     `json:"DebitedWalletId"`
	CreditedWalletID ID     `json:"CreditedWalletId"`
	Status           string `json:",omitempty"`
	ResultCode       string `json:",omitempty"`
	ResultMessage    string `json:",omitempty"`
	Tag              string `json:",omitempty"`
}

// Credited returns the amount that reached the credited wallet.
func (t Transfer) Credited() int64 {
	if t.CreditedFunds != nil {
		return t.CreditedFunds.Amount
	}
	return t.DebitedFunds.Amount - t.Fees.Amount
}

type Refund struct {
	ID                   ID     `json:"Id,omitempty"`
	AuthorID             ID     `json:"AuthorId"`
	DebitedFunds         *Money `json:",omitempty"`
	Fees                 *Money `json:",omitempty"`
	CreditedFunds        *Money `json:",omitempty"`
	InitialTransactionID ID     `json:"InitialTransactionId,omitempty"`
	Status               string `json:",omitempty"`
	ResultCode           string `json:",omitempty"`
	ResultMessage        string `json:",omitempty"`
	Tag                  string `json:",omitempty"`
}
