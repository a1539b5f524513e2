package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/listenupapp/ledger-server/internal/domain"
)

// Row is one parsed spreadsheet row. Each sheet layout has its own variant; the
// set is closed and dispatched by ParserFor.
type Row interface {
	Kind() domain.SheetKind
	Base() *Common
	apply(rec *domain.SalesRecord)
}

// Common holds the fields every layout can carry.
type Common struct {
	RoyaltyDate     string
	Title           string
	Author          string
	ASIN            string
	ISBN            string
	Marketplace     string
	RoyaltyType     string
	TransactionType string
	Currency        string
	UnitsSold       int64
	UnitsRefunded   int64
	NetUnitsSold    int64
	Royalty         decimal.Decimal
	ListPrice       *decimal.Decimal
	OfferPrice      *decimal.Decimal
}

// Base returns the shared fields.
func (c *Common) Base() *Common { return c }

func (c *Common) applyCommon(rec *domain.SalesRecord) {
	rec.RoyaltyDate = c.RoyaltyDate
	rec.Title = c.Title
	rec.Author = c.Author
	rec.ASIN = c.ASIN
	rec.ISBN = c.ISBN
	rec.Marketplace = c.Marketplace
	rec.RoyaltyType = c.RoyaltyType
	rec.TransactionType = c.TransactionType
	rec.Currency = strings.ToUpper(c.Currency)
	rec.UnitsSold = c.UnitsSold
	rec.UnitsRefunded = c.UnitsRefunded
	rec.NetUnitsSold = c.NetUnitsSold
	rec.Royalty = c.Royalty
	rec.ListPrice = c.ListPrice
	rec.OfferPrice = c.OfferPrice
}

// CombinedSalesRow is a row of the "Combined Sales" sheet. Its product identifier
// column is labelled "ASIN/ISBN" and carries the platform identifier.
type CombinedSalesRow struct {
	Common
	DeliveryOrManufacturingCost *decimal.Decimal
}

func (r *CombinedSalesRow) Kind() domain.SheetKind { return domain.SheetCombinedSales }

func (r *CombinedSalesRow) apply(rec *domain.SalesRecord) {
	r.applyCommon(rec)
	rec.Format = formatFromRoyaltyType(r.RoyaltyType)
	if rec.Format == domain.FormatEbook {
		rec.DeliveryCost = r.DeliveryOrManufacturingCost
	} else {
		rec.ManufacturingCost = r.DeliveryOrManufacturingCost
	}
}

// EbookRoyaltyRow is a row of the "eBook Royalty" sheet.
type EbookRoyaltyRow struct {
	Common
	FileSizeMB   *decimal.Decimal
	DeliveryCost *decimal.Decimal
}

func (r *EbookRoyaltyRow) Kind() domain.SheetKind { return domain.SheetEbookRoyalty }

func (r *EbookRoyaltyRow) apply(rec *domain.SalesRecord) {
	r.applyCommon(rec)
	rec.Format = domain.FormatEbook
	rec.FileSizeMB = r.FileSizeMB
	rec.DeliveryCost = r.DeliveryCost
}

// PrintRoyaltyRow is a row of the "Paperback Royalty" or "Hardcover Royalty" sheet.
// Physical formats expose both identifiers.
type PrintRoyaltyRow struct {
	Common
	Format                   domain.Format
	OrderDate                *string
	ManufacturingCost        *decimal.Decimal
	PrintingCost             *decimal.Decimal
	ExpandedDistributionCost *decimal.Decimal
}

func (r *PrintRoyaltyRow) Kind() domain.SheetKind {
	if r.Format == domain.FormatHardcover {
		return domain.SheetHardcoverRoyalty
	}
	return domain.SheetPaperbackRoyalty
}

func (r *PrintRoyaltyRow) apply(rec *domain.SalesRecord) {
	r.applyCommon(rec)
	rec.Format = r.Format
	rec.OrderDate = r.OrderDate
	rec.ManufacturingCost = r.ManufacturingCost
	rec.PrintingCost = r.PrintingCost
	rec.ExpandedDistributionCost = r.ExpandedDistributionCost
}

// KENPReadRow is a row of the "KENP Read" sheet: page reads, no sales.
type KENPReadRow struct {
	Common
	KENPRead int64
}

func (r *KENPReadRow) Kind() domain.SheetKind { return domain.SheetKENPRead }

func (r *KENPReadRow) apply(rec *domain.SalesRecord) {
	r.applyCommon(rec)
	rec.Format = domain.FormatEbook
	rec.KENPRead = &r.KENPRead
}

// OrdersRow is a row of the "eBook Orders Placed" sheet.
type OrdersRow struct {
	Common
	PaidUnits int64
	FreeUnits int64
}

func (r *OrdersRow) Kind() domain.SheetKind { return domain.SheetEbookOrders }

func (r *OrdersRow) apply(rec *domain.SalesRecord) {
	r.applyCommon(rec)
	rec.Format = domain.FormatEbook
	rec.PaidUnits = &r.PaidUnits
	rec.FreeUnits = &r.FreeUnits
	if rec.UnitsSold == 0 {
		rec.UnitsSold = r.PaidUnits
		rec.NetUnitsSold = r.PaidUnits
	}
}

// LegacyRow is a row of a legacy dialect, or of a sheet whose layout is not known.
// Every optional field stays nil unless its column exists.
type LegacyRow struct {
	Common
	OrderDate         *string
	KENPRead          *int64
	FileSizeMB        *decimal.Decimal
	DeliveryCost      *decimal.Decimal
	ManufacturingCost *decimal.Decimal
}

func (r *LegacyRow) Kind() domain.SheetKind { return domain.SheetLegacy }

func (r *LegacyRow) apply(rec *domain.SalesRecord) {
	r.applyCommon(rec)
	rec.OrderDate = r.OrderDate
	rec.KENPRead = r.KENPRead
	rec.FileSizeMB = r.FileSizeMB
	rec.DeliveryCost = r.DeliveryCost
	rec.ManufacturingCost = r.ManufacturingCost
	rec.Format = r.inferFormat()
}

var hardcoverThreshold = decimal.NewFromInt(5)

// inferFormat guesses the format from which cost columns a legacy row carries.
func (r *LegacyRow) inferFormat() domain.Format {
	switch {
	case (r.KENPRead != nil && *r.KENPRead > 0) || r.FileSizeMB != nil:
		return domain.FormatEbook
	case r.ManufacturingCost != nil && r.ManufacturingCost.GreaterThan(hardcoverThreshold):
		return domain.FormatHardcover
	case r.ManufacturingCost != nil:
		return domain.FormatPaperback
	default:
		return formatFromRoyaltyType(r.RoyaltyType)
	}
}

func formatFromRoyaltyType(royaltyType string) domain.Format {
	t := Fold(royaltyType)
	switch {
	case strings.Contains(t, "hardcover"):
		return domain.FormatHardcover
	case strings.Contains(t, "paperback"):
		return domain.FormatPaperback
	case strings.Contains(t, "ebook"), strings.Contains(t, "kindle"), strings.Contains(t, "%"):
		return domain.FormatEbook
	default:
		return domain.FormatUnknown
	}
}

// cellReader reads typed cells from one row, keeping the first error per column.
type cellReader struct {
	cols Columns
	row  []string
	errs []error
}

func (c *cellReader) raw(f Field) (string, bool) {
	i, ok := c.cols[f]
	if !ok || i >= len(c.row) {
		return "", ok
	}
	return c.row[i], true
}

func (c *cellReader) text(f Field) string {
	s, _ := c.raw(f)
	return Text(s)
}

func (c *cellReader) decimal(f Field) decimal.Decimal {
	s, _ := c.raw(f)
	d, err := Decimal(s)
	if err != nil {
		c.errs = append(c.errs, err)
	}
	return d
}

// optDecimal is nil when the sheet has no such column.
func (c *cellReader) optDecimal(f Field) *decimal.Decimal {
	if !c.cols.Has(f) {
		return nil
	}
	d := c.decimal(f)
	return &d
}

func (c *cellReader) int(f Field) int64 {
	s, _ := c.raw(f)
	n, err := Int(s)
	if err != nil {
		c.errs = append(c.errs, err)
	}
	return n
}

func (c *cellReader) optInt(f Field) *int64 {
	if !c.cols.Has(f) {
		return nil
	}
	n := c.int(f)
	return &n
}

func (c *cellReader) date(f Field) string {
	s, _ := c.raw(f)
	d, err := Date(s)
	if err != nil {
		c.errs = append(c.errs, err)
	}
	return d
}

func (c *cellReader) optDate(f Field) *string {
	if !c.cols.Has(f) {
		return nil
	}
	s, _ := c.raw(f)
	if isPlaceholder(s) {
		return nil
	}
	d := c.date(f)
	return &d
}

func (c *cellReader) common() Common {
	return Common{
		RoyaltyDate:     c.date(FieldRoyaltyDate),
		Title:           c.text(FieldTitle),
		Author:          c.text(FieldAuthor),
		ASIN:            c.text(FieldASIN),
		ISBN:            c.text(FieldISBN),
		Marketplace:     c.text(FieldMarketplace),
		RoyaltyType:     c.text(FieldRoyaltyType),
		TransactionType: c.text(FieldTransactionType),
		Currency:        c.text(FieldCurrency),
		UnitsSold:       c.int(FieldUnitsSold),
		UnitsRefunded:   c.int(FieldUnitsRefunded),
		NetUnitsSold:    c.int(FieldNetUnitsSold),
		Royalty:         c.decimal(FieldRoyalty),
		ListPrice:       c.optDecimal(FieldListPrice),
		OfferPrice:      c.optDecimal(FieldOfferPrice),
	}
}

func (c *cellReader) err() error {
	return errors.Join(c.errs...)
}

// Parser parses the rows of one sheet layout.
type Parser struct {
	kind  domain.SheetKind
	specs []ColumnSpec
	parse func(c *cellReader) Row
}

// Kind returns the sheet layout this parser handles.
func (p *Parser) Kind() domain.SheetKind { return p.kind }

// Columns resolves the parser's fields against a sheet header.
func (p *Parser) Columns(header []string) Columns {
	return ResolveColumns(header, p.specs)
}

// Parse reads one row. A malformed cell fails the row with every bad cell named.
func (p *Parser) Parse(cols Columns, cells []string) (Row, error) {
	c := &cellReader{cols: cols, row: cells}
	row := p.parse(c)
	if err := c.err(); err != nil {
		return nil, fmt.Errorf("parse %s row: %w", p.kind, err)
	}
	return row, nil
}

var (
	specRoyaltyDate = ColumnSpec{Field: FieldRoyaltyDate, Exact: []string{"royalty date", "date"}, Partial: []string{"royalty date"}}
	specTitle       = ColumnSpec{Field: FieldTitle, Exact: []string{"title"}, Partial: []string{"title"}}
	specAuthor      = ColumnSpec{Field: FieldAuthor, Exact: []string{"author name", "author"}, Partial: []string{"author"}}
	specMarketplace = ColumnSpec{Field: FieldMarketplace, Exact: []string{"marketplace"}, Partial: []string{"marketplace"}}
	specRoyaltyType = ColumnSpec{Field: FieldRoyaltyType, Exact: []string{"royalty type"}, Partial: []string{"royalty type"}}
	specTxnType     = ColumnSpec{Field: FieldTransactionType, Exact: []string{"transaction type"}, Partial: []string{"transaction type"}}
	specNetUnits    = ColumnSpec{Field: FieldNetUnitsSold, Exact: []string{"net units sold"}, Partial: []string{"net units"}}
	specUnitsSold   = ColumnSpec{Field: FieldUnitsSold, Exact: []string{"units sold"}, Partial: []string{"units sold"}}
	specUnitsRefund = ColumnSpec{Field: FieldUnitsRefunded, Exact: []string{"units refunded"}, Partial: []string{"refund"}}
	specListPrice   = ColumnSpec{Field: FieldListPrice, Exact: []string{"avg. list price without tax"}, Partial: []string{"avg. list price", "list price"}}
	specOfferPrice  = ColumnSpec{Field: FieldOfferPrice, Exact: []string{"avg. offer price without tax"}, Partial: []string{"avg. offer price", "offer price"}}
	specRoyalty     = ColumnSpec{Field: FieldRoyalty, Exact: []string{"royalty"}, Partial: []string{"royalty"}}
	specCurrency    = ColumnSpec{Field: FieldCurrency, Exact: []string{"currency"}, Partial: []string{"currency"}}
	specASIN        = ColumnSpec{Field: FieldASIN, Exact: []string{"asin"}, Partial: []string{"asin"}}
	specISBN        = ColumnSpec{Field: FieldISBN, Exact: []string{"isbn"}, Partial: []string{"isbn"}}
)

// salesSpecs are the columns shared by the four royalty-bearing layouts.
func salesSpecs(extra ...ColumnSpec) []ColumnSpec {
	specs := []ColumnSpec{
		specRoyaltyDate, specTitle, specAuthor, specMarketplace, specRoyaltyType, specTxnType,
		specNetUnits, specUnitsSold, specUnitsRefund, specListPrice, specOfferPrice,
	}
	specs = append(specs, extra...)
	return append(specs, specRoyalty, specCurrency)
}

var parsers = map[domain.SheetKind]*Parser{
	domain.SheetCombinedSales: {
		kind: domain.SheetCombinedSales,
		specs: salesSpecs(
			ColumnSpec{Field: FieldASIN, Exact: []string{"asin/isbn", "asin"}, Partial: []string{"asin"}},
			ColumnSpec{Field: FieldDeliveryOrManufacturingCost, Exact: []string{"avg. delivery/manufacturing cost"}, Partial: []string{"delivery/manufacturing"}},
		),
		parse: func(c *cellReader) Row {
			return &CombinedSalesRow{
				Common:                      c.common(),
				DeliveryOrManufacturingCost: c.optDecimal(FieldDeliveryOrManufacturingCost),
			}
		},
	},
	domain.SheetEbookRoyalty: {
		kind: domain.SheetEbookRoyalty,
		specs: salesSpecs(
			specASIN,
			ColumnSpec{Field: FieldFileSize, Exact: []string{"avg. file size (mb)"}, Partial: []string{"file size"}},
			ColumnSpec{Field: FieldDeliveryCost, Exact: []string{"avg. delivery cost"}, Partial: []string{"delivery cost"}},
		),
		parse: func(c *cellReader) Row {
			return &EbookRoyaltyRow{
				Common:       c.common(),
				FileSizeMB:   c.optDecimal(FieldFileSize),
				DeliveryCost: c.optDecimal(FieldDeliveryCost),
			}
		},
	},
	domain.SheetPaperbackRoyalty: printParser(domain.SheetPaperbackRoyalty, domain.FormatPaperback),
	domain.SheetHardcoverRoyalty: printParser(domain.SheetHardcoverRoyalty, domain.FormatHardcover),
	domain.SheetKENPRead: {
		kind: domain.SheetKENPRead,
		specs: []ColumnSpec{
			specRoyaltyDate, specTitle, specAuthor, specASIN, specMarketplace, specRoyalty, specCurrency,
			{Field: FieldKENPRead, Exact: []string{"kindle edition normalized page (kenp) read"}, Partial: []string{"kenp", "normalized page"}},
		},
		parse: func(c *cellReader) Row {
			return &KENPReadRow{Common: c.common(), KENPRead: c.int(FieldKENPRead)}
		},
	},
	domain.SheetEbookOrders: {
		kind: domain.SheetEbookOrders,
		specs: []ColumnSpec{
			specRoyaltyDate, specTitle, specAuthor, specASIN, specMarketplace,
			{Field: FieldPaidUnits, Exact: []string{"paid units"}, Partial: []string{"paid units"}},
			{Field: FieldFreeUnits, Exact: []string{"free units"}, Partial: []string{"free units"}},
		},
		parse: func(c *cellReader) Row {
			return &OrdersRow{Common: c.common(), PaidUnits: c.int(FieldPaidUnits), FreeUnits: c.int(FieldFreeUnits)}
		},
	},
	domain.SheetLegacy: {
		kind: domain.SheetLegacy,
		specs: salesSpecs(
			ColumnSpec{Field: FieldASIN, Exact: []string{"asin", "asin/isbn"}, Partial: []string{"asin"}},
			specISBN,
			ColumnSpec{Field: FieldOrderDate, Exact: []string{"order date"}, Partial: []string{"order date"}},
			ColumnSpec{Field: FieldKENPRead, Exact: []string{"kenp read"}, Partial: []string{"kenp", "normalized page"}},
			ColumnSpec{Field: FieldFileSize, Exact: []string{"file size"}, Partial: []string{"file size"}},
			ColumnSpec{Field: FieldDeliveryCost, Exact: []string{"delivery cost"}, Partial: []string{"delivery cost"}},
			ColumnSpec{Field: FieldManufacturingCost, Exact: []string{"manufacturing cost"}, Partial: []string{"manufacturing", "printing cost"}},
			ColumnSpec{Field: FieldRoyaltyDate, Partial: []string{"sales date", "period", "date"}},
		),
		parse: func(c *cellReader) Row {
			return &LegacyRow{
				Common:            c.common(),
				OrderDate:         c.optDate(FieldOrderDate),
				KENPRead:          c.optInt(FieldKENPRead),
				FileSizeMB:        c.optDecimal(FieldFileSize),
				DeliveryCost:      c.optDecimal(FieldDeliveryCost),
				ManufacturingCost: c.optDecimal(FieldManufacturingCost),
			}
		},
	},
}

func printParser(kind domain.SheetKind, format domain.Format) *Parser {
	return &Parser{
		kind: kind,
		specs: salesSpecs(
			specISBN,
			specASIN,
			ColumnSpec{Field: FieldOrderDate, Exact: []string{"order date"}, Partial: []string{"order date"}},
			ColumnSpec{Field: FieldManufacturingCost, Exact: []string{"avg. delivery/manufacturing cost", "avg. manufacturing cost"}, Partial: []string{"manufacturing"}},
			ColumnSpec{Field: FieldPrintingCost, Exact: []string{"printing cost"}, Partial: []string{"printing"}},
			ColumnSpec{Field: FieldExpandedDistributionCost, Exact: []string{"expanded distribution cost"}, Partial: []string{"expanded distribution"}},
		),
		parse: func(c *cellReader) Row {
			return &PrintRoyaltyRow{
				Common:                   c.common(),
				Format:                   format,
				OrderDate:                c.optDate(FieldOrderDate),
				ManufacturingCost:        c.optDecimal(FieldManufacturingCost),
				PrintingCost:             c.optDecimal(FieldPrintingCost),
				ExpandedDistributionCost: c.optDecimal(FieldExpandedDistributionCost),
			}
		},
	}
}

// ParserFor returns the parser for a sheet layout. Unknown kinds use the legacy parser.
func ParserFor(kind domain.SheetKind) *Parser {
	if p, ok := parsers[kind]; ok {
		return p
	}
	return parsers[domain.SheetLegacy]
}
