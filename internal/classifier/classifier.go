// Package classifier decides which structural dialect a sales workbook follows and
// which row variant each of its sheets uses.
package classifier

import (
	"strings"

	"github.com/listenupapp/ledger-server/internal/domain"
	"github.com/listenupapp/ledger-server/internal/normalize"
	"github.com/listenupapp/ledger-server/internal/workbook"
)

// royaltySheets are the sheet names whose headers identify the royalties estimator.
var royaltySheets = []string{
	domain.SheetNameEbookRoyalty,
	domain.SheetNamePaperbackRoyalty,
	domain.SheetNameHardcoverRoyalty,
}

// legacyKeyword maps a name fragment to a legacy dialect. Order matters: the first
// matching entry wins.
type legacyKeyword struct {
	fragment string
	dialect  domain.Dialect
}

var legacyKeywords = []legacyKeyword{
	{"payment", domain.DialectPayments},
	{"prior", domain.DialectPriorMonthRoyalties},
	{"royalt", domain.DialectPriorMonthRoyalties},
	{"earning", domain.DialectPriorMonthRoyalties},
	{"kenp", domain.DialectKENPRead},
	{"page read", domain.DialectKENPRead},
	{"dashboard", domain.DialectDashboard},
	{"order", domain.DialectOrders},
}

// Classify returns the dialect of wb. It never fails: an unrecognised layout is
// DialectUnknown.
//
// Classification rules:
//   - Modern: a royalty sheet (eBook/Paperback/Hardcover Royalty) whose header has
//     both a royalty date and a transaction type column.
//   - Legacy: keyword match on the first sheet name, then on the file name.
//   - Unknown: everything else.
func Classify(wb *workbook.Workbook) domain.Dialect {
	if wb == nil || len(wb.Sheets) == 0 {
		return domain.DialectUnknown
	}

	for _, name := range royaltySheets {
		sheet, ok := wb.Sheet(name)
		if !ok {
			continue
		}
		if hasHeader(sheet.Header, "royalty date") && hasHeader(sheet.Header, "transaction type") {
			return domain.DialectRoyaltiesEstimator
		}
	}

	if d, ok := matchKeyword(wb.Sheets[0].Name); ok {
		return d
	}
	if d, ok := matchKeyword(wb.Name); ok {
		return d
	}
	return domain.DialectUnknown
}

// ClassifySheet returns the row variant for a sheet of a workbook in the given dialect.
// Sheets of a modern workbook that do not carry a known name are parsed as legacy rows,
// so no row is rejected only because its layout is ambiguous.
func ClassifySheet(dialect domain.Dialect, sheetName string) domain.SheetKind {
	if dialect != domain.DialectRoyaltiesEstimator {
		return domain.SheetLegacy
	}

	switch normalize.Fold(sheetName) {
	case normalize.Fold(domain.SheetNameCombinedSales):
		return domain.SheetCombinedSales
	case normalize.Fold(domain.SheetNameEbookRoyalty):
		return domain.SheetEbookRoyalty
	case normalize.Fold(domain.SheetNamePaperbackRoyalty):
		return domain.SheetPaperbackRoyalty
	case normalize.Fold(domain.SheetNameHardcoverRoyalty):
		return domain.SheetHardcoverRoyalty
	case normalize.Fold(domain.SheetNameKENPRead):
		return domain.SheetKENPRead
	case normalize.Fold(domain.SheetNameEbookOrders):
		return domain.SheetEbookOrders
	default:
		return domain.SheetLegacy
	}
}

func hasHeader(header []string, want string) bool {
	for _, h := range header {
		if strings.Contains(normalize.Fold(h), want) {
			return true
		}
	}
	return false
}

func matchKeyword(name string) (domain.Dialect, bool) {
	folded := strings.ReplaceAll(normalize.Fold(name), "_", " ")
	if folded == "" {
		return "", false
	}
	for _, kw := range legacyKeywords {
		if strings.Contains(folded, kw.fragment) {
			return kw.dialect, true
		}
	}
	return "", false
}
