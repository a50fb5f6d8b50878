package saferpay

import (
	"math"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ISO 4217 currencies whose minor unit is not 1/100.
var currencyExponents = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0, "KRW": 0,
	"PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

// CurrencyExponent returns the number of decimal places of the currency minor unit.
func CurrencyExponent(currency string) int32 {
	if exp, ok := currencyExponents[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// MinorUnits converts amount to the integer minor unit value Saferpay expects
// (CHF 1.00 => 100). Precision beyond the minor unit is truncated.
func MinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	if amount.IsNegative() {
		return 0, errors.Wrapf(ErrInvalidPayment, "negative amount %s", amount)
	}
	minor := amount.Shift(CurrencyExponent(currency)).Truncate(0)
	if minor.GreaterThan(maxMinorUnits) {
		return 0, errors.Wrapf(ErrInvalidPayment, "amount %s %s out of range", amount, currency)
	}
	return minor.IntPart(), nil
}

// FromMinorUnits is the inverse of MinorUnits.
func FromMinorUnits(value int64, currency string) decimal.Decimal {
	return decimal.New(value, -CurrencyExponent(currency))
}
