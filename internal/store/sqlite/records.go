package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/listenupapp/ledger-server/internal/domain"
	"github.com/listenupapp/ledger-server/internal/store"
)

// recordColumns is the ordered list of columns selected in record queries.
// Must match the scan order in scanRecord.
const recordColumns = `id, user_id, import_id, dedup_key, sheet_name, sheet_kind, row_index,
	asin, isbn, title, author, marketplace, royalty_type, transaction_type, royalty_date,
	format, units_sold, units_refunded, net_units_sold, currency, royalty, royalty_usd,
	details, merged_at, created_at, updated_at`

// recordDetails holds the layout-specific fields of a record, stored as one JSON
// column since no query filters on them.
type recordDetails struct {
	OrderDate                *string          `json:"order_date,omitempty"`
	KENPRead                 *int64           `json:"kenp_read,omitempty"`
	PaidUnits                *int64           `json:"paid_units,omitempty"`
	FreeUnits                *int64           `json:"free_units,omitempty"`
	ListPrice                *decimal.Decimal `json:"list_price,omitempty"`
	OfferPrice               *decimal.Decimal `json:"offer_price,omitempty"`
	DeliveryCost             *decimal.Decimal `json:"delivery_cost,omitempty"`
	ManufacturingCost        *decimal.Decimal `json:"manufacturing_cost,omitempty"`
	PrintingCost             *decimal.Decimal `json:"printing_cost,omitempty"`
	ExpandedDistributionCost *decimal.Decimal `json:"expanded_distribution_cost,omitempty"`
	FileSizeMB               *decimal.Decimal `json:"file_size_mb,omitempty"`

	USDListPrice                *decimal.Decimal `json:"usd_list_price,omitempty"`
	USDOfferPrice               *decimal.Decimal `json:"usd_offer_price,omitempty"`
	USDDeliveryCost             *decimal.Decimal `json:"usd_delivery_cost,omitempty"`
	USDManufacturingCost        *decimal.Decimal `json:"usd_manufacturing_cost,omitempty"`
	USDPrintingCost             *decimal.Decimal `json:"usd_printing_cost,omitempty"`
	USDExpandedDistributionCost *decimal.Decimal `json:"usd_expanded_distribution_cost,omitempty"`
}

func detailsOf(rec *domain.SalesRecord) recordDetails {
	return recordDetails{
		OrderDate:                   rec.OrderDate,
		KENPRead:                    rec.KENPRead,
		PaidUnits:                   rec.PaidUnits,
		FreeUnits:                   rec.FreeUnits,
		ListPrice:                   rec.ListPrice,
		OfferPrice:                  rec.OfferPrice,
		DeliveryCost:                rec.DeliveryCost,
		ManufacturingCost:           rec.ManufacturingCost,
		PrintingCost:                rec.PrintingCost,
		ExpandedDistributionCost:    rec.ExpandedDistributionCost,
		FileSizeMB:                  rec.FileSizeMB,
		USDListPrice:                rec.USD.ListPrice,
		USDOfferPrice:               rec.USD.OfferPrice,
		USDDeliveryCost:             rec.USD.DeliveryCost,
		USDManufacturingCost:        rec.USD.ManufacturingCost,
		USDPrintingCost:             rec.USD.PrintingCost,
		USDExpandedDistributionCost: rec.USD.ExpandedDistributionCost,
	}
}

func (d recordDetails) applyTo(rec *domain.SalesRecord) {
	rec.OrderDate = d.OrderDate
	rec.KENPRead = d.KENPRead
	rec.PaidUnits = d.PaidUnits
	rec.FreeUnits = d.FreeUnits
	rec.ListPrice = d.ListPrice
	rec.OfferPrice = d.OfferPrice
	rec.DeliveryCost = d.DeliveryCost
	rec.ManufacturingCost = d.ManufacturingCost
	rec.PrintingCost = d.PrintingCost
	rec.ExpandedDistributionCost = d.ExpandedDistributionCost
	rec.FileSizeMB = d.FileSizeMB
	rec.USD.ListPrice = d.USDListPrice
	rec.USD.OfferPrice = d.USDOfferPrice
	rec.USD.DeliveryCost = d.USDDeliveryCost
	rec.USD.ManufacturingCost = d.USDManufacturingCost
	rec.USD.PrintingCost = d.USDPrintingCost
	rec.USD.ExpandedDistributionCost = d.USDExpandedDistributionCost
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*domain.SalesRecord, error) {
	var rec domain.SalesRecord

	var (
		sheetKind  string
		format     string
		royalty    string
		royaltyUSD string
		details    string
		mergedAt   sql.NullString
		createdAt  string
		updatedAt  string
	)

	err := scanner.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.ImportID,
		&rec.DedupKey,
		&rec.SheetName,
		&sheetKind,
		&rec.RowIndex,
		&rec.ASIN,
		&rec.ISBN,
		&rec.Title,
		&rec.Author,
		&rec.Marketplace,
		&rec.RoyaltyType,
		&rec.TransactionType,
		&rec.RoyaltyDate,
		&format,
		&rec.UnitsSold,
		&rec.UnitsRefunded,
		&rec.NetUnitsSold,
		&rec.Currency,
		&royalty,
		&royaltyUSD,
		&details,
		&mergedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.SheetKind = domain.SheetKind(sheetKind)
	rec.Format = domain.Format(format)

	if rec.Royalty, err = decimal.NewFromString(royalty); err != nil {
		return nil, fmt.Errorf("decode royalty: %w", err)
	}
	if rec.USD.Royalty, err = decimal.NewFromString(royaltyUSD); err != nil {
		return nil, fmt.Errorf("decode royalty_usd: %w", err)
	}

	var d recordDetails
	if err := json.Unmarshal([]byte(details), &d); err != nil {
		return nil, fmt.Errorf("decode details: %w", err)
	}
	d.applyTo(&rec)

	if rec.MergedAt, err = parseNullableTime(mergedAt); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// recordValues returns every column but id, in recordColumns order.
func recordValues(rec *domain.SalesRecord) ([]any, error) {
	details, err := json.Marshal(detailsOf(rec))
	if err != nil {
		return nil, err
	}
	return []any{
		rec.UserID,
		rec.ImportID,
		rec.DedupKey,
		rec.SheetName,
		string(rec.SheetKind),
		rec.RowIndex,
		rec.ASIN,
		rec.ISBN,
		rec.Title,
		rec.Author,
		rec.Marketplace,
		rec.RoyaltyType,
		rec.TransactionType,
		rec.RoyaltyDate,
		string(rec.Format),
		rec.UnitsSold,
		rec.UnitsRefunded,
		rec.NetUnitsSold,
		rec.Currency,
		rec.Royalty.String(),
		rec.USD.Royalty.String(),
		string(details),
		nullTimeString(rec.MergedAt),
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
	}, nil
}

// UpsertRecord inserts rec or, when the user already has a record with the same
// dedup key, overwrites that record's values in place. On update rec is rewritten
// to the stored state, keeping the existing ID, ImportID, CreatedAt and MergedAt.
func (s *Store) UpsertRecord(ctx context.Context, rec *domain.SalesRecord) (bool, error) {
	if rec.UserID == "" || rec.DedupKey == "" {
		return false, store.ErrInvalidInput.WithMessage("record needs a user and a dedup key")
	}

	var inserted bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+recordColumns+` FROM sales_records WHERE user_id = ? AND dedup_key = ?`,
			rec.UserID, rec.DedupKey)
		existing, err := scanRecord(row)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			values, err := recordValues(rec)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO sales_records (`+recordColumns+`) VALUES (?, `+placeholders(len(values))+`)`,
				append([]any{rec.ID}, values...)...)
			if err != nil {
				return err
			}
			inserted = true
			return nil

		case err != nil:
			return err
		}

		existing.CopyValuesFrom(rec)
		values, err := recordValues(existing)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE sales_records SET
				user_id = ?, import_id = ?, dedup_key = ?, sheet_name = ?, sheet_kind = ?, row_index = ?,
				asin = ?, isbn = ?, title = ?, author = ?, marketplace = ?, royalty_type = ?,
				transaction_type = ?, royalty_date = ?, format = ?, units_sold = ?, units_refunded = ?,
				net_units_sold = ?, currency = ?, royalty = ?, royalty_usd = ?, details = ?,
				merged_at = ?, created_at = ?, updated_at = ?
			WHERE id = ?`,
			append(values, existing.ID)...)
		if err != nil {
			return err
		}
		*rec = *existing
		inserted = false
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("upsert record: %w", err)
	}
	return inserted, nil
}

// GetRecordByKey finds a user's record by its dedup key.
// Returns store.ErrNotFound if there is none.
func (s *Store) GetRecordByKey(ctx context.Context, userID, dedupKey string) (*domain.SalesRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM sales_records WHERE user_id = ? AND dedup_key = ?`, userID, dedupKey)

	rec, err := scanRecord(row)
	if err != nil {
		return nil, notFound(err, "record %s not found", dedupKey)
	}
	return rec, nil
}

// ListRecordsByImport returns the records currently attributed to an import, in
// sheet and row order.
func (s *Store) ListRecordsByImport(ctx context.Context, importID string) ([]*domain.SalesRecord, error) {
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM sales_records WHERE import_id = ? ORDER BY sheet_name, row_index, id`, importID)
}

// ListUnmergedRecords returns the import's records not yet folded into a master book.
func (s *Store) ListUnmergedRecords(ctx context.Context, importID string) ([]*domain.SalesRecord, error) {
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM sales_records WHERE import_id = ? AND merged_at IS NULL ORDER BY sheet_name, row_index, id`, importID)
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]*domain.SalesRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.SalesRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// MarkRecordsMerged sets merged_at on the given records.
func (s *Store) MarkRecordsMerged(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE sales_records SET merged_at = ?, updated_at = ? WHERE id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		ts := formatTime(at)
		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, ts, ts, id); err != nil {
				return fmt.Errorf("mark record %s merged: %w", id, err)
			}
		}
		return nil
	})
}
