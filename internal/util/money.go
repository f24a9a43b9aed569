package util

import (
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

var currencySymbols = map[string]string{
	"NGN": "₦",
	"GHS": "GH₵",
	"KES": "KSh",
	"ZAR": "R",
	"USD": "$",
	"GBP": "£",
	"EUR": "€",
}

// FormatMoney renders an amount with its currency symbol and thousands separators.
// Whole amounts drop the fractional part.
func FormatMoney(amount decimal.Decimal, currency string) string {
	currency = strings.ToUpper(currency)

	var num string
	if amount.Equal(amount.Truncate(0)) {
		num = humanize.Comma(amount.IntPart())
	} else {
		f, _ := amount.Round(2).Float64()
		num = humanize.FormatFloat("#,###.##", f)
	}

	if sym, ok := currencySymbols[currency]; ok {
		return sym + num
	}
	if currency == "" {
		return num
	}
	return currency + " " + num
}

// ToMinorUnits converts a major-unit amount to the gateway's minor units (kobo, cents)
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts minor units back to a major-unit amount
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
