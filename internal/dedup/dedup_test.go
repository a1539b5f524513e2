package dedup

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/listenupapp/ledger-server/internal/domain"
)

func record(asin, isbn, royalty, date, marketplace string) *domain.SalesRecord {
	return &domain.SalesRecord{
		ASIN:            asin,
		ISBN:            isbn,
		Royalty:         decimal.RequireFromString(royalty),
		RoyaltyDate:     date,
		Marketplace:     marketplace,
		RoyaltyType:     "70%",
		TransactionType: "Standard",
		Format:          domain.FormatEbook,
	}
}

func TestFingerprint_OrderIndependent(t *testing.T) {
	a := record("B001", "", "2.50", "2024-01-05", "Amazon.com")
	b := record("B002", "", "1.00", "2024-01-06", "Amazon.de")

	assert.Equal(t, Fingerprint([]*domain.SalesRecord{a, b}), Fingerprint([]*domain.SalesRecord{b, a}))
}

func TestFingerprint_Multiset(t *testing.T) {
	a := record("B001", "", "2.50", "2024-01-05", "Amazon.com")

	once := Fingerprint([]*domain.SalesRecord{a})
	twice := Fingerprint([]*domain.SalesRecord{a, a})
	assert.NotEqual(t, once, twice)
}

func TestFingerprint_CanonicalValues(t *testing.T) {
	a := record("B001", "", "2.50", "2024-01-05", "Amazon.com")
	b := record("b001", "", "2.5", "2024-01-05", " amazon.com ")
	b.Format = domain.FormatUnknown

	assert.Equal(t, Fingerprint([]*domain.SalesRecord{a}), Fingerprint([]*domain.SalesRecord{b}))
}

func TestFingerprint_SensitiveToAmounts(t *testing.T) {
	a := record("B001", "", "2.50", "2024-01-05", "Amazon.com")
	b := record("B001", "", "2.51", "2024-01-05", "Amazon.com")

	assert.NotEqual(t, Fingerprint([]*domain.SalesRecord{a}), Fingerprint([]*domain.SalesRecord{b}))
}

func TestFingerprint_OnlyASINRecords(t *testing.T) {
	printOnly := record("", "9781234567897", "3.00", "2024-01-05", "Amazon.com")
	assert.Empty(t, Fingerprint([]*domain.SalesRecord{printOnly}))
	assert.Empty(t, Fingerprint(nil))

	a := record("B001", "", "2.50", "2024-01-05", "Amazon.com")
	assert.Equal(t, Fingerprint([]*domain.SalesRecord{a}), Fingerprint([]*domain.SalesRecord{a, printOnly}))
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		fp       string
		previous []string
		want     bool
	}{
		{name: "match", fp: "abc", previous: []string{"x", "abc"}, want: true},
		{name: "no match", fp: "abc", previous: []string{"x"}, want: false},
		{name: "no history", fp: "abc", want: false},
		{name: "empty never matches", fp: "", previous: []string{""}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.fp, tt.previous))
		})
	}
}

func TestRecordKey_IgnoresAmounts(t *testing.T) {
	a := record("B001", "", "2.50", "2024-01-05", "Amazon.com")
	b := record("B001", "", "9.99", "2024-01-05", "Amazon.com")
	b.UnitsSold = 7

	assert.Equal(t, RecordKey(a), RecordKey(b))
	assert.Len(t, RecordKey(a), 64)
}

func TestRecordKey_Fields(t *testing.T) {
	base := record("B001", "", "2.50", "2024-01-05", "Amazon.com")

	tests := []struct {
		name   string
		mutate func(r *domain.SalesRecord)
	}{
		{"date", func(r *domain.SalesRecord) { r.RoyaltyDate = "2024-01-06" }},
		{"identifier", func(r *domain.SalesRecord) { r.ASIN = "B002" }},
		{"marketplace", func(r *domain.SalesRecord) { r.Marketplace = "Amazon.de" }},
		{"royalty type", func(r *domain.SalesRecord) { r.RoyaltyType = "35%" }},
		{"transaction type", func(r *domain.SalesRecord) { r.TransactionType = "Free - Promotion" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := *base
			tt.mutate(&other)
			assert.NotEqual(t, RecordKey(base), RecordKey(&other))
		})
	}
}

func TestRecordKey_PrefersISBN(t *testing.T) {
	// Paperback and hardcover can share an ASIN; their ISBNs tell them apart.
	paperback := record("B001", "9780000000001", "1.00", "2024-01-05", "Amazon.com")
	hardcover := record("B001", "9780000000002", "1.00", "2024-01-05", "Amazon.com")

	assert.NotEqual(t, RecordKey(paperback), RecordKey(hardcover))
}

func TestSyntheticIdentifier(t *testing.T) {
	id := SyntheticIdentifier("Amazon.com", "USD", decimal.RequireFromString("1.50"))

	assert.True(t, strings.HasPrefix(id, SyntheticPrefix))
	assert.True(t, IsSynthetic(id))
	assert.False(t, IsSynthetic("B001"))
	assert.Equal(t, id, SyntheticIdentifier("amazon.com", "usd", decimal.RequireFromString("1.5")))
	assert.NotEqual(t, id, SyntheticIdentifier("Amazon.com", "EUR", decimal.RequireFromString("1.50")))
}
