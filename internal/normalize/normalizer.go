package normalize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/listenupapp/ledger-server/internal/domain"
	"github.com/listenupapp/ledger-server/internal/validation"
)

// ErrNoIdentifier marks a row without any product identifier. Such rows are dropped,
// not stored and not counted as failures.
var ErrNoIdentifier = errors.New("row has no product identifier")

// Converter converts an amount to USD. ok is false when no rate exists, in which case
// the returned amount is zero.
type Converter interface {
	ConvertToUSD(ctx context.Context, amount decimal.Decimal, from string) (usd decimal.Decimal, ok bool)
}

// Input is one raw row and where it came from.
type Input struct {
	Parser    *Parser
	Columns   Columns
	Cells     []string
	SheetName string
	RowIndex  int
	ImportID  string
	UserID    string
}

// Normalizer maps raw rows to sales records.
type Normalizer struct {
	rates     Converter
	validator *validation.Validator
	logger    *slog.Logger
}

// New creates a normalizer.
func New(rates Converter, validator *validation.Validator, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if validator == nil {
		validator = validation.New()
	}
	return &Normalizer{rates: rates, validator: validator, logger: logger}
}

// Build parses a row into a record without touching currency rates.
// It returns ErrNoIdentifier for rows with neither identifier.
func (n *Normalizer) Build(in Input) (*domain.SalesRecord, error) {
	row, err := in.Parser.Parse(in.Columns, in.Cells)
	if err != nil {
		return nil, err
	}

	rec := &domain.SalesRecord{
		UserID:    in.UserID,
		ImportID:  in.ImportID,
		SheetName: in.SheetName,
		SheetKind: row.Kind(),
		RowIndex:  in.RowIndex,
	}
	row.apply(rec)

	if !rec.HasIdentifier() {
		return nil, ErrNoIdentifier
	}
	if err := n.validator.Validate(rec); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}
	return rec, nil
}

// ConvertAmounts fills the USD block of rec. A missing rate or a negative source
// amount leaves the USD value at zero; it never fails the row. The source amounts
// keep their sign.
func (n *Normalizer) ConvertAmounts(ctx context.Context, rec *domain.SalesRecord) {
	rec.USD = domain.USDAmounts{
		Royalty:                  n.usd(ctx, rec.Royalty, rec.Currency),
		ListPrice:                n.optUSD(ctx, rec.ListPrice, rec.Currency),
		OfferPrice:               n.optUSD(ctx, rec.OfferPrice, rec.Currency),
		DeliveryCost:             n.optUSD(ctx, rec.DeliveryCost, rec.Currency),
		ManufacturingCost:        n.optUSD(ctx, rec.ManufacturingCost, rec.Currency),
		PrintingCost:             n.optUSD(ctx, rec.PrintingCost, rec.Currency),
		ExpandedDistributionCost: n.optUSD(ctx, rec.ExpandedDistributionCost, rec.Currency),
	}
}

// Normalize builds the record and converts its amounts.
func (n *Normalizer) Normalize(ctx context.Context, in Input) (*domain.SalesRecord, error) {
	rec, err := n.Build(in)
	if err != nil {
		return nil, err
	}
	n.ConvertAmounts(ctx, rec)
	return rec, nil
}

func (n *Normalizer) usd(ctx context.Context, amount decimal.Decimal, currency string) decimal.Decimal {
	if amount.IsZero() || n.rates == nil {
		return decimal.Zero
	}
	usd, ok := n.rates.ConvertToUSD(ctx, amount, currency)
	if !ok {
		n.logger.Warn("no exchange rate, USD amount set to zero",
			"currency", currency,
			"amount", amount.String(),
		)
		return decimal.Zero
	}
	if usd.IsNegative() {
		n.logger.Warn("negative amount, USD amount set to zero",
			"currency", currency,
			"amount", amount.String(),
		)
		return decimal.Zero
	}
	return usd
}

func (n *Normalizer) optUSD(ctx context.Context, amount *decimal.Decimal, currency string) *decimal.Decimal {
	if amount == nil {
		return nil
	}
	usd := n.usd(ctx, *amount, currency)
	return &usd
}

// Warnings lists suspicious but storable values in rec.
func Warnings(rec *domain.SalesRecord) []string {
	var out []string
	if rec.Royalty.IsNegative() {
		out = append(out, fmt.Sprintf("negative royalty %s %s", rec.Royalty.String(), rec.Currency))
	}
	if rec.UnitsSold < 0 || rec.NetUnitsSold < 0 {
		out = append(out, fmt.Sprintf("negative units (sold %d, net %d)", rec.UnitsSold, rec.NetUnitsSold))
	}
	return out
}
