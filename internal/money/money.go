// Package money handles minor-unit amounts.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// zero-decimal currencies per ISO 4217
var zeroDecimal = map[string]bool{
	"JPY": true, "KRW": true, "VND": true, "CLP": true, "ISK": true, "UGX": true, "XAF": true, "XOF": true,
}

// Exponent returns the number of minor-unit digits of currency.
func Exponent(currency string) int32 {
	if zeroDecimal[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// ToDecimal converts a minor-unit amount to major units.
func ToDecimal(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -Exponent(currency))
}

// Format renders an amount for humans, e.g. "USD 47.50".
func Format(amount int64, currency string) string {
	currency = strings.ToUpper(currency)
	return currency + " " + ToDecimal(amount, currency).StringFixed(Exponent(currency))
}

// SplitFee computes floor(gross*percent/100) as the fee and the remainder as net.
func SplitFee(gross, percent int64) (fee, net int64) {
	fee = gross * percent / 100
	return fee, gross - fee
}
