// Package money provides the currency table and exact-decimal helpers used by
// the settlement engine. Amounts are shopspring decimals throughout; nothing
// here touches binary floating point.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is a fixed ISO 4217 code plus the number of digits in its minor unit.
type Currency struct {
	Code       string
	MinorUnits int32
}

var currencies = map[string]Currency{
	"USD": {Code: "USD", MinorUnits: 2},
	"EUR": {Code: "EUR", MinorUnits: 2},
	"GBP": {Code: "GBP", MinorUnits: 2},
	"AUD": {Code: "AUD", MinorUnits: 2},
	"CAD": {Code: "CAD", MinorUnits: 2},
	"SGD": {Code: "SGD", MinorUnits: 2},
	"THB": {Code: "THB", MinorUnits: 2},
	"MYR": {Code: "MYR", MinorUnits: 2},
	"CNY": {Code: "CNY", MinorUnits: 2},
	"INR": {Code: "INR", MinorUnits: 2},
	"JPY": {Code: "JPY", MinorUnits: 0},
	"KRW": {Code: "KRW", MinorUnits: 0},
	"VND": {Code: "VND", MinorUnits: 0},
	"IDR": {Code: "IDR", MinorUnits: 0},
	"BHD": {Code: "BHD", MinorUnits: 3},
	"KWD": {Code: "KWD", MinorUnits: 3},
}

// Lookup returns the currency for a code. Codes are case-insensitive.
func Lookup(code string) (Currency, error) {
	c, ok := currencies[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Currency{}, fmt.Errorf("unsupported currency %q", code)
	}
	return c, nil
}

// MustLookup is Lookup for compile-time known codes. It panics on unknown codes.
func MustLookup(code string) Currency {
	c, err := Lookup(code)
	if err != nil {
		panic(err)
	}
	return c
}

// Unit is the smallest representable amount (0.01 for USD, 1 for VND).
func (c Currency) Unit() decimal.Decimal {
	return decimal.New(1, -c.MinorUnits)
}

// Round rounds half away from zero to the minor unit.
func (c Currency) Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(c.MinorUnits)
}

// IsExact reports whether d needs no rounding in this currency.
func (c Currency) IsExact(d decimal.Decimal) bool {
	return d.Equal(d.Round(c.MinorUnits))
}

// ToMinor converts an exact amount into an integer count of minor units.
func (c Currency) ToMinor(d decimal.Decimal) (int64, error) {
	if !c.IsExact(d) {
		return 0, fmt.Errorf("amount %s has more than %d decimal places for %s", d, c.MinorUnits, c.Code)
	}
	return d.Shift(c.MinorUnits).IntPart(), nil
}

// FromMinor converts a count of minor units back to a decimal amount.
func (c Currency) FromMinor(units int64) decimal.Decimal {
	return decimal.New(units, -c.MinorUnits)
}

func (c Currency) String() string {
	return c.Code
}
