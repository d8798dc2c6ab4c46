// Package money normalizes currency codes and amounts, and resolves
// cross-currency conversion rates for the holdings and snapshot calculators.
package money

import "strings"

// minorUnit describes a registered minor currency unit: amounts denominated
// in it must be divided by Factor and rewritten to MajorCode.
type minorUnit struct {
	MajorCode string
	Factor    float64
}

// minorUnits is the registered minor-unit table. GBp (British pence) is the
// case spelled out explicitly; the others are the same convention applied to
// the other major markets that quote in minor units.
var minorUnits = map[string]minorUnit{
	"GBp": {MajorCode: "GBP", Factor: 100},
	"ZAc": {MajorCode: "ZAR", Factor: 100},
	"ILA": {MajorCode: "ILS", Factor: 100},
	"GBX": {MajorCode: "GBP", Factor: 100},
}

// IsMinorUnit reports whether code is a registered minor unit.
func IsMinorUnit(code string) bool {
	_, ok := minorUnits[code]
	return ok
}

// NormalizeAmounts divides unitPrice, amount, and fee by the minor unit's
// factor and returns the major currency code, when currency is a registered
// minor unit. Otherwise it returns the inputs unchanged.
func NormalizeAmounts(currency string, unitPrice, amount, fee *float64) (majorCurrency string, normUnitPrice, normAmount, normFee *float64) {
	unit, ok := minorUnits[currency]
	if !ok {
		return currency, unitPrice, amount, fee
	}

	divide := func(v *float64) *float64 {
		if v == nil {
			return nil
		}
		result := *v / unit.Factor
		return &result
	}

	return unit.MajorCode, divide(unitPrice), divide(amount), divide(fee)
}

// MajorCode returns the major currency code for a currency string, passing
// non-minor codes through unchanged.
func MajorCode(currency string) string {
	if unit, ok := minorUnits[currency]; ok {
		return unit.MajorCode
	}
	return currency
}

// Canonical upper-cases a currency code for comparisons, without touching
// minor-unit codes (which are case-sensitive, e.g. GBp vs GBP).
func Canonical(currency string) string {
	if IsMinorUnit(currency) {
		return currency
	}
	return strings.ToUpper(currency)
}
