package normalize

import "github.com/listenupapp/ledger-server/internal/domain"

// promotionalCategories are the transaction categories the combined-sales sheet
// reports and every other sheet leaves out.
var promotionalCategories = map[string]bool{
	"Free - Promotion":               true,
	"Expanded Distribution Channels": true,
}

// IsPromotional reports whether category is in the combined-sales allow-list.
func IsPromotional(category string) bool {
	return promotionalCategories[category]
}

// Keep decides whether a row of the named sheet is persisted.
//
// The combined-sales sheet keeps only promotional and expanded-distribution rows.
// Every other sheet keeps only rows with a non-empty category outside that list.
// The two sides are complementary so no transaction is counted on two sheets.
func Keep(sheetName, category string) bool {
	if Fold(sheetName) == Fold(domain.SheetNameCombinedSales) {
		return IsPromotional(category)
	}
	return category != "" && !IsPromotional(category)
}
