// Package dedup computes the identity keys used to recognise data that was already
// ingested: a whole-import fingerprint and a per-record composite key.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/listenupapp/ledger-server/internal/domain"
)

// SyntheticPrefix marks identifiers made up for rows without a catalog identifier.
const SyntheticPrefix = "syn-"

// syntheticNamespace scopes the name-based UUIDs of SyntheticIdentifier.
var syntheticNamespace = uuid.MustParse("6f1c2a4e-8a63-5b1e-9d2f-3c7b0e5a9f41")

// Fingerprint returns an order-independent hash of the (asin, royalty, date,
// marketplace, format) tuples of every record carrying an ASIN. Repeated tuples
// count, so the input is treated as a multiset. No eligible records yields "".
func Fingerprint(records []*domain.SalesRecord) string {
	tuples := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.ASIN == "" {
			continue
		}
		tuples = append(tuples, canonical(
			"asin", rec.ASIN,
			"royalty", rec.Royalty.String(),
			"date", rec.RoyaltyDate,
			"marketplace", rec.Marketplace,
			"format", string(rec.Format.OrDefault()),
		))
	}
	if len(tuples) == 0 {
		return ""
	}
	sort.Strings(tuples)
	return hash(strings.Join(tuples, "\n"))
}

// Matches reports whether fp equals any previous fingerprint. The empty
// fingerprint never matches.
func Matches(fp string, previous []string) bool {
	if fp == "" {
		return false
	}
	for _, p := range previous {
		if p == fp {
			return true
		}
	}
	return false
}

// RecordKey identifies one logical transaction for a user: royalty date, primary
// identifier, marketplace, royalty type and transaction type. Amounts are not part
// of the key, so a corrected re-export overwrites the earlier row.
func RecordKey(rec *domain.SalesRecord) string {
	return hash(canonical(
		"date", rec.RoyaltyDate,
		"id", rec.PrimaryIdentifier(),
		"marketplace", rec.Marketplace,
		"royalty_type", rec.RoyaltyType,
		"transaction_type", rec.TransactionType,
	))
}

// SyntheticIdentifier derives a stable identifier from marketplace, currency and
// royalty for rows that carry no catalog identifier.
func SyntheticIdentifier(marketplace, currency string, royalty decimal.Decimal) string {
	name := canonical(
		"marketplace", marketplace,
		"currency", currency,
		"royalty", royalty.String(),
	)
	return SyntheticPrefix + uuid.NewSHA1(syntheticNamespace, []byte(name)).String()
}

// IsSynthetic reports whether identifier was made by SyntheticIdentifier.
func IsSynthetic(identifier string) bool {
	return strings.HasPrefix(identifier, SyntheticPrefix)
}

// canonical renders field/value pairs as "field:value|field:value" with values
// trimmed and lower-cased.
func canonical(pairs ...string) string {
	parts := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, pairs[i]+":"+strings.ToLower(strings.TrimSpace(pairs[i+1])))
	}
	return strings.Join(parts, "|")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
