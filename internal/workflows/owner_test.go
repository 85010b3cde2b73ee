package workflows

import (
	"testing"
	"time"

	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/mangopay"
	"github.com/stretchr/testify/require"
)

const ownerArgs = `{"userId":"usr_new","address":{"address":"Via Verdi","streetNumber":"3","city":"Torino","postalCode":"10121","country":"it"},` +
	`"nationality":"it","residence":"it","birthDate":"1990-05-01","phone":"+39 333 1234567"%s}`

func newSellerUser(userType string) *resources.User {
	user := &resources.User{ID: "usr_new", Email: "new@example.test", FirstName: "Grace", LastName: "Hopper"}
	user.PlatformData.UserType = userType
	user.Metadata.CompanyInfo.BusinessName = "Hopper Srl"
	return user
}

func (f *fixture) owner(userID string) Session {
	s := f.buyer()
	s.Identity.UserID = userID
	s.User = &resources.User{ID: userID}
	return s
}

func TestCreateOwnerUserNatural(t *testing.T) {
	f := newFixture(t)
	f.store.PutUser("usr_new", newSellerUser(""))

	out, err := f.run(f.owner("usr_new"), "Custom.createOwnerUser", fmtArgs(ownerArgs, ""))
	require.NoError(t, err)
	result := out.(OwnerResult)

	require.Len(t, f.fake.NaturalUsers, 1)
	natural := f.fake.NaturalUsers[0]
	require.Equal(t, "new@example.test", natural.Email)
	require.Equal(t, "Via Verdi 3", natural.Address.AddressLine1)
	require.Equal(t, "IT", natural.Address.Country)
	require.Equal(t, "IT", natural.Nationality)
	require.Equal(t, "+39 333 1234567", natural.PhoneNumber)
	require.Equal(t, time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC).Unix(), natural.Birthday)
	require.Equal(t, mangopay.UserCategoryOwner, natural.UserCategory)
	require.True(t, natural.TermsAndConditionsAccepted)

	require.Len(t, f.fake.CreatedWallets, 1)
	wallet := f.fake.CreatedWallets[0]
	require.Equal(t, []mangopay.ID{result.ID}, wallet.Owners)
	require.Equal(t, "Wallet of new@example.test . USER ID: usr_new", wallet.Description)
	require.Equal(t, "EUR", wallet.Currency)

	user, err := f.store.GetUser(t.Context(), "usr_new")
	require.NoError(t, err)
	require.Equal(t, result.ID, user.Linked().Owner.ID)
	require.Equal(t, result.Wallet, user.Linked().Owner.WalletID)
	require.True(t, user.PlatformData.CanSell)

	raw := f.store.Raw("user", "usr_new")
	kyc := raw["platformData"].(map[string]any)["_private"].(map[string]any)["kyc"].(map[string]any)
	require.Equal(t, true, kyc["info"])
}

func TestCreateOwnerUserLegal(t *testing.T) {
	f := newFixture(t)
	f.store.PutUser("usr_new", newSellerUser("business"))

	_, err := f.run(f.owner("usr_new"), "Custom.createOwnerUser", fmtArgs(ownerArgs, ""))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Empty(t, f.fake.Calls)

	_, err = f.run(f.owner("usr_new"), "Custom.createOwnerUser", fmtArgs(ownerArgs, `,"vatNumber":"IT01234567890"`))
	require.NoError(t, err)
	require.Len(t, f.fake.LegalUsers, 1)
	legal := f.fake.LegalUsers[0]
	require.Equal(t, "Hopper Srl", legal.Name)
	require.Equal(t, mangopay.LegalPersonBusiness, legal.LegalPersonType)
	require.Equal(t, "IT01234567890", legal.CompanyNumber)
	require.Equal(t, "Grace", legal.LegalRepresentativeFirstName)
	require.Empty(t, f.fake.NaturalUsers)
}

func TestCreateOwnerUserSkipsLinkedAccounts(t *testing.T) {
	f := newFixture(t)
	existing := newSellerUser("")
	existing.PlatformData.Private.MangoPay.Owner = resources.ProcessorAccount{ID: 21}
	f.store.PutUser("usr_new", existing)

	out, err := f.run(f.owner("usr_new"), "Custom.createOwnerUser", fmtArgs(ownerArgs, ""))
	require.NoError(t, err)
	result := out.(OwnerResult)
	require.Equal(t, mangopay.ID(21), result.ID)
	require.Empty(t, f.fake.NaturalUsers)
	require.Len(t, f.fake.CreatedWallets, 1)

	_, err = f.run(f.owner("usr_new"), "Custom.createOwnerUser", fmtArgs(ownerArgs, ""))
	require.NoError(t, err)
	require.Len(t, f.fake.CreatedWallets, 1)
}

func TestCreateOwnerUserRejects(t *testing.T) {
	f := newFixture(t)
	f.store.PutUser("usr_new", newSellerUser(""))

	_, err := f.run(f.buyer(), "Custom.createOwnerUser", fmtArgs(ownerArgs, ""))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.run(f.owner("usr_new"), "Custom.createOwnerUser",
		`{"userId":"usr_new","address":{"address":"Via Verdi","streetNumber":"3","city":"Torino","postalCode":"10121","country":"ITA"},"nationality":"it","residence":"it","birthDate":"1990-05-01","phone":"1"}`)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.run(f.owner("usr_new"), "Custom.createOwnerUser",
		`{"userId":"usr_new","address":{"address":"Via Verdi","streetNumber":"3","city":"Torino","postalCode":"10121","country":"it"},"nationality":"it","residence":"it","birthDate":"01/05/1990","phone":"1"}`)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Empty(t, f.fake.Calls)
}

func TestParseBirthDate(t *testing.T) {
	seconds, err := parseBirthDate("1990-05-01T00:00:00Z")
	require.NoError(t, err)
	require.Equal(t, int64(641520000), seconds)
}
