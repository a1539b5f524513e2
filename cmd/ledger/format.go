package main

import (
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/listenupapp/ledger-server/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func formatMoneyPtr(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return formatMoney(*d)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func i64toa(n int64) string {
	return strconv.FormatInt(n, 10)
}

// formatBuckets renders a currency map as "EUR 5.00, USD 3.00" in code order.
func formatBuckets(buckets map[string]decimal.Decimal) string {
	if len(buckets) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(buckets))
	for _, code := range slices.Sorted(maps.Keys(buckets)) {
		parts = append(parts, code+" "+formatMoney(buckets[code]))
	}
	return strings.Join(parts, ", ")
}

func identifierOf(rec *domain.SalesRecord) string {
	if rec.ASIN != "" {
		return rec.ASIN
	}
	return orDash(rec.ISBN)
}
