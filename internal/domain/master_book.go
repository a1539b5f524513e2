package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// MarketplaceStats is the per-marketplace partial aggregate of a master book.
type MarketplaceStats struct {
	UnitsSold int64           `json:"unitsSold"`
	Royalties decimal.Decimal `json:"royalties"`
	Currency  string          `json:"currency"`
}

// SalesBreakdown separates ordinary sales from subscription page-read royalties,
// each keyed by currency.
type SalesBreakdown struct {
	BookSales map[string]decimal.Decimal `json:"book_sales"`
	KENPReads map[string]decimal.Decimal `json:"kenp_reads"`
}

// MasterBook is the durable cross-import aggregate for one (identifier, format) pair.
type MasterBook struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Identifier string `json:"identifier"`
	Format     Format `json:"format"`
	Synthetic  bool   `json:"synthetic"` // Identifier derived from marketplace/currency/royalty

	Title  string `json:"title"`
	Author string `json:"author"`
	ISBN   string `json:"isbn,omitempty"`

	// MetadataDate is the royalty date of the row Title and Author were taken from.
	MetadataDate string `json:"metadata_date,omitempty"`

	FirstSaleDate string `json:"first_sale_date"`
	LastSaleDate  string `json:"last_sale_date"`

	UnitsSold     int64 `json:"units_sold"`
	UnitsRefunded int64 `json:"units_refunded"`
	NetUnitsSold  int64 `json:"net_units_sold"`
	KENPRead      int64 `json:"kenp_read"`

	RoyaltiesByCurrency map[string]decimal.Decimal  `json:"total_royalties_original"`
	TotalRoyaltiesUSD   decimal.Decimal             `json:"total_royalties_usd"`
	Marketplaces        map[string]MarketplaceStats `json:"marketplace_breakdown"`
	SalesBreakdown      SalesBreakdown              `json:"sales_breakdown"`

	ListPrice     *decimal.Decimal `json:"current_list_price,omitempty"`
	OfferPrice    *decimal.Decimal `json:"current_offer_price,omitempty"`
	PriceCurrency string           `json:"price_currency,omitempty"`
	PriceDate     string           `json:"price_date,omitempty"`

	SourceImportIDs []string `json:"source_import_ids"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewMasterBook returns an empty aggregate for the given key.
func NewMasterBook(id, userID, identifier string, format Format, now time.Time) *MasterBook {
	return &MasterBook{
		ID:                  id,
		UserID:              userID,
		Identifier:          identifier,
		Format:              format,
		RoyaltiesByCurrency: map[string]decimal.Decimal{},
		Marketplaces:        map[string]MarketplaceStats{},
		SalesBreakdown: SalesBreakdown{
			BookSales: map[string]decimal.Decimal{},
			KENPReads: map[string]decimal.Decimal{},
		},
		SourceImportIDs: []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// HasImport reports whether the import has already been folded into this record.
func (m *MasterBook) HasImport(importID string) bool {
	return slices.Contains(m.SourceImportIDs, importID)
}
