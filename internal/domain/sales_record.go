package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SalesRecord is one normalized spreadsheet row.
//
// Format-specific fields are pointers: nil means the sheet layout does not carry the
// field, which aggregation treats differently from an observed zero.
type SalesRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id" validate:"required"`
	ImportID  string    `json:"import_id" validate:"required"`
	SheetName string    `json:"sheet_name" validate:"required"`
	SheetKind SheetKind `json:"sheet_kind"`
	RowIndex  int       `json:"row_index"` // Spreadsheet row, header is row 1

	ASIN string `json:"asin,omitempty" validate:"required_without=ISBN"`
	ISBN string `json:"isbn,omitempty"`

	Title           string  `json:"title"`
	Author          string  `json:"author"`
	Marketplace     string  `json:"marketplace"`
	RoyaltyType     string  `json:"royalty_type,omitempty"`
	TransactionType string  `json:"transaction_type,omitempty"`
	RoyaltyDate     string  `json:"royalty_date"` // YYYY-MM-DD
	OrderDate       *string `json:"order_date,omitempty"`
	Format          Format  `json:"format"`

	UnitsSold     int64  `json:"units_sold"`
	UnitsRefunded int64  `json:"units_refunded"`
	NetUnitsSold  int64  `json:"net_units_sold"`
	KENPRead      *int64 `json:"kenp_read,omitempty"`
	PaidUnits     *int64 `json:"paid_units,omitempty"`
	FreeUnits     *int64 `json:"free_units,omitempty"`

	Currency string          `json:"currency"`
	Royalty  decimal.Decimal `json:"royalty"`

	ListPrice                *decimal.Decimal `json:"list_price,omitempty"`
	OfferPrice               *decimal.Decimal `json:"offer_price,omitempty"`
	DeliveryCost             *decimal.Decimal `json:"delivery_cost,omitempty"`
	ManufacturingCost        *decimal.Decimal `json:"manufacturing_cost,omitempty"`
	PrintingCost             *decimal.Decimal `json:"printing_cost,omitempty"`
	ExpandedDistributionCost *decimal.Decimal `json:"expanded_distribution_cost,omitempty"`
	FileSizeMB               *decimal.Decimal `json:"file_size_mb,omitempty"`

	USD USDAmounts `json:"usd"`

	DedupKey  string     `json:"dedup_key"`
	MergedAt  *time.Time `json:"merged_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// USDAmounts holds the USD equivalent of every monetary field of a record.
// A value is zero when the source currency had no resolvable rate.
type USDAmounts struct {
	Royalty                  decimal.Decimal  `json:"royalty"`
	ListPrice                *decimal.Decimal `json:"list_price,omitempty"`
	OfferPrice               *decimal.Decimal `json:"offer_price,omitempty"`
	DeliveryCost             *decimal.Decimal `json:"delivery_cost,omitempty"`
	ManufacturingCost        *decimal.Decimal `json:"manufacturing_cost,omitempty"`
	PrintingCost             *decimal.Decimal `json:"printing_cost,omitempty"`
	ExpandedDistributionCost *decimal.Decimal `json:"expanded_distribution_cost,omitempty"`
}

// PrimaryIdentifier prefers the universal book number, so two formats that share one
// platform identifier stay distinguishable.
func (r *SalesRecord) PrimaryIdentifier() string {
	if r.ISBN != "" {
		return r.ISBN
	}
	return r.ASIN
}

// CatalogIdentifier prefers the platform identifier, the key of master book records.
func (r *SalesRecord) CatalogIdentifier() string {
	if r.ASIN != "" {
		return r.ASIN
	}
	return r.ISBN
}

// HasIdentifier reports whether the record carries at least one product identifier.
func (r *SalesRecord) HasIdentifier() bool {
	return r.ASIN != "" || r.ISBN != ""
}

// IsPageRead reports whether the row is subscription page-read consumption.
func (r *SalesRecord) IsPageRead() bool {
	return r.SheetKind == SheetKENPRead || (r.KENPRead != nil && *r.KENPRead > 0)
}

// CopyValuesFrom overwrites r's row-derived values with those of src, keeping r's
// identity, owning import, creation time and merge marker. Used for in-place upserts.
func (r *SalesRecord) CopyValuesFrom(src *SalesRecord) {
	id, importID, created, merged := r.ID, r.ImportID, r.CreatedAt, r.MergedAt
	*r = *src
	r.ID, r.ImportID, r.CreatedAt, r.MergedAt = id, importID, created, merged
}
