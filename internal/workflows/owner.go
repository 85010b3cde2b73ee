package workflows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	"github.com/angelmondragon/mangopay-gateway/internal/rpc"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/mangopay"
	"github.com/angelmondragon/mangopay-gateway/pkg/types"
)

type OwnerAddress struct {
	Address      string `json:"address" validate:"required"`
	StreetNumber string `json:"streetNumber" validate:"required"`
	City         string `json:"city" validate:"required"`
	PostalCode   string `json:"postalCode" validate:"required"`
	Country      string `json:"country" validate:"required,len=2"`
}

type OwnerArgs struct {
	UserID      string       `json:"userId" validate:"required"`
	Address     OwnerAddress `json:"address"`
	Nationality string       `json:"nationality" validate:"required,len=2"`
	Residence   string       `json:"residence" validate:"required,len=2"`
	BirthDate   string       `json:"birthDate" validate:"required"`
	Phone       string       `json:"phone" validate:"required"`
	VATNumber   string       `json:"vatNumber"`
}

type OwnerResult struct {
	ID     mangopay.ID `json:"Id"`
	Wallet mangopay.ID `json:"Wallet"`
}

func (a OwnerAddress) processor() *mangopay.Address {
	return &mangopay.Address{
		AddressLine1: strings.TrimSpace(a.Address + " " + a.StreetNumber),
		City:         a.City,
		PostalCode:   a.PostalCode,
		Country:      strings.ToUpper(a.Country),
	}
}

// parseBirthDate accepts a calendar date or an RFC 3339 timestamp and returns
// unix seconds.
func parseBirthDate(value string) (int64, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC().Unix(), nil
		}
	}
	return 0, rpc.BadArgs("birthDate must be YYYY-MM-DD")
}

func (e *Engine) createOwnerUser(ctx context.Context, s Session, args rpc.Args) (any, error) {
	var in OwnerArgs
	if err := args.Decode(0, &in); err != nil {
		return nil, err
	}
	if !s.Privileged() && in.UserID != s.Identity.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed")
	}
	birthday, err := parseBirthDate(in.BirthDate)
	if err != nil {
		return nil, err
	}

	user, err := e.resources.GetUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	business := user.IsBusiness()
	if business && strings.TrimSpace(in.VATNumber) == "" {
		return nil, missingArgs("vatNumber is required for business users")
	}
	cfg, err := e.customConfig(ctx)
	if err != nil {
		return nil, err
	}

	owner := user.Linked().Owner
	if owner.ID.IsZero() {
		created, err := e.createProcessorOwner(ctx, s, user, in, birthday, business)
		if err != nil {
			return nil, err
		}
		owner.ID = created.ID
		if _, err := e.resources.UpdateUser(ctx, user.ID, types.Patch{}.Set("platformData._private.mangoPay.owner.id", owner.ID)); err != nil {
			return nil, err
		}
	}

	if owner.WalletID.IsZero() {
		wallet, err := s.Processor.Client.CreateWallet(ctx, mangopay.Wallet{
			Owners:      []mangopay.ID{owner.ID},
			Description: fmt.Sprintf("Wallet of %s . USER ID: %s", user.Email, user.ID),
			Currency:    cfg.Currency(),
			Tag:         user.ID,
		})
		if err != nil {
			return nil, s.Processor.Wrap("Wallets.create", err)
		}
		owner.WalletID = wallet.ID
		if _, err := e.resources.UpdateUser(ctx, user.ID, types.Patch{}.Set("platformData._private.mangoPay.owner.walletId", owner.WalletID)); err != nil {
			return nil, err
		}
	}

	_, err = e.resources.UpdateUser(ctx, user.ID, types.Patch{}.
		Set("platformData.canSell", true).
		Set("platformData._private.kyc.info", true))
	if err != nil {
		return nil, err
	}
	return OwnerResult{ID: owner.ID, Wallet: owner.WalletID}, nil
}

func (e *Engine) createProcessorOwner(ctx context.Context, s Session, user *resources.User, in OwnerArgs, birthday int64, business bool) (*mangopay.User, error) {
	address := in.Address.processor()
	if business {
		name := strings.TrimSpace(user.Metadata.CompanyInfo.BusinessName)
		if name == "" {
			name = strings.TrimSpace(user.FirstName + " " + user.LastName)
		}
		created, err := s.Processor.Client.CreateLegalUser(ctx, mangopay.LegalUser{
			Email:                                 user.Email,
			Name:                                  name,
			LegalPersonType:                       mangopay.LegalPersonBusiness,
			HeadquartersAddress:                   address,
			LegalRepresentativeFirstName:          user.FirstName,
			LegalRepresentativeLastName:           user.LastName,
			LegalRepresentativeEmail:              user.Email,
			LegalRepresentativeBirthday:           birthday,
			LegalRepresentativeNationality:        strings.ToUpper(in.Nationality),
			LegalRepresentativeCountryOfResidence: strings.ToUpper(in.Residence),
			LegalRepresentativeAddress:            address,
			CompanyNumber:                         in.VATNumber,
			UserCategory:                          mangopay.UserCategoryOwner,
			TermsAndConditionsAccepted:            true,
			Tag:                                   user.ID,
		})
		if err != nil {
			return nil, s.Processor.Wrap("Users.create", err)
		}
		return created, nil
	}

	created, err := s.Processor.Client.CreateNaturalUser(ctx, mangopay.NaturalUser{
		Email:                      user.Email,
		FirstName:                  user.FirstName,
		LastName:                   user.LastName,
		Address:                    address,
		Birthday:                   birthday,
		Nationality:                strings.ToUpper(in.Nationality),
		CountryOfResidence:         strings.ToUpper(in.Residence),
		PhoneNumber:                in.Phone,
		UserCategory:               mangopay.UserCategoryOwner,
		TermsAndConditionsAccepted: true,
		Tag:                        user.ID,
	})
	if err != nil {
		return nil, s.Processor.Wrap("Users.create", err)
	}
	return created, nil
}
