package enums

import "strings"

// Currency is an ISO 4217 code Mangopay wallets accept.
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyUSD Currency = "USD"
	CurrencyCHF Currency = "CHF"
	CurrencyPLN Currency = "PLN"

	DefaultCurrency = CurrencyEUR
)

var currencies = []Currency{CurrencyEUR, CurrencyGBP, CurrencyUSD, CurrencyCHF, CurrencyPLN}

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool { return member(currencies, c) }

// ParseCurrency is case- and space-insensitive.
func ParseCurrency(raw string) (Currency, error) {
	return parse(currencies, strings.ToUpper(strings.TrimSpace(raw)), "currency")
}
