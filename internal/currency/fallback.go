package currency

import (
	"maps"
	"slices"

	"github.com/shopspring/decimal"
)

// fallbackRates are approximate units of each currency per one USD. They are used
// only when neither the cache nor the live source has a quote.
var fallbackRates = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(1),
	"EUR": decimal.RequireFromString("0.95"),
	"JPY": decimal.NewFromInt(160),
	"GBP": decimal.RequireFromString("0.83"),
	"CAD": decimal.RequireFromString("1.45"),
	"INR": decimal.NewFromInt(88),
	"AUD": decimal.RequireFromString("1.65"),
	"BRL": decimal.RequireFromString("6.2"),
	"MXN": decimal.NewFromInt(21),
}

// FallbackRates returns a copy of the static table, keyed by currency code.
func FallbackRates() map[string]decimal.Decimal {
	return maps.Clone(fallbackRates)
}

// FallbackCurrencies lists the codes of the static table in sorted order.
func FallbackCurrencies() []string {
	return slices.Sorted(maps.Keys(fallbackRates))
}

// FallbackRate returns the static rate that converts one unit of from into to.
func FallbackRate(from, to string) (decimal.Decimal, bool) {
	f, ok := fallbackRates[from]
	if !ok {
		return decimal.Zero, false
	}
	t, ok := fallbackRates[to]
	if !ok {
		return decimal.Zero, false
	}
	return t.Div(f), true
}
