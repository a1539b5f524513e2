// Package domain defines the ledger entities: import jobs, sales records and master books.
package domain

import "strings"

// Dialect is the structural layout convention a sales workbook follows.
type Dialect string

const (
	DialectRoyaltiesEstimator  Dialect = "royalties_estimator" // Modern multi-sheet export
	DialectPayments            Dialect = "payments"
	DialectPriorMonthRoyalties Dialect = "prior_month_royalties"
	DialectKENPRead            Dialect = "kenp_read"
	DialectDashboard           Dialect = "dashboard"
	DialectOrders              Dialect = "orders"
	DialectUnknown             Dialect = "unknown"
)

// IsLegacy reports whether d is one of the single-purpose legacy dialects.
func (d Dialect) IsLegacy() bool {
	switch d {
	case DialectPayments, DialectPriorMonthRoyalties, DialectKENPRead, DialectDashboard, DialectOrders:
		return true
	default:
		return false
	}
}

// SheetKind names the tagged row variant used to parse one sheet.
type SheetKind string

const (
	SheetCombinedSales    SheetKind = "combined_sales"
	SheetEbookRoyalty     SheetKind = "ebook_royalty"
	SheetPaperbackRoyalty SheetKind = "paperback_royalty"
	SheetHardcoverRoyalty SheetKind = "hardcover_royalty"
	SheetKENPRead         SheetKind = "kenp_read"
	SheetEbookOrders      SheetKind = "ebook_orders"
	SheetLegacy           SheetKind = "legacy"
)

// Canonical sheet names of the royalties estimator export.
const (
	SheetNameCombinedSales    = "Combined Sales"
	SheetNameEbookRoyalty     = "eBook Royalty"
	SheetNamePaperbackRoyalty = "Paperback Royalty"
	SheetNameHardcoverRoyalty = "Hardcover Royalty"
	SheetNameKENPRead         = "KENP Read"
	SheetNameEbookOrders      = "eBook Orders Placed"
)

// Format is a publication format.
type Format string

const (
	FormatEbook     Format = "ebook"
	FormatPaperback Format = "paperback"
	FormatHardcover Format = "hardcover"
	FormatUnknown   Format = "unknown"
)

// OrDefault maps an empty or unknown format to ebook.
func (f Format) OrDefault() Format {
	switch Format(strings.ToLower(string(f))) {
	case FormatPaperback:
		return FormatPaperback
	case FormatHardcover:
		return FormatHardcover
	default:
		return FormatEbook
	}
}
