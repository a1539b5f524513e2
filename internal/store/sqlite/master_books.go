package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/listenupapp/ledger-server/internal/domain"
	"github.com/listenupapp/ledger-server/internal/store"
)

// masterBookColumns is the ordered list of columns selected in master book queries.
// Must match the scan order in scanMasterBook.
const masterBookColumns = `id, user_id, identifier, format, synthetic, title, author, isbn,
	metadata_date, first_sale_date, last_sale_date, units_sold, units_refunded, net_units_sold, kenp_read,
	royalties_by_currency, total_royalties_usd, marketplaces, sales_breakdown,
	list_price, offer_price, price_currency, price_date, source_import_ids,
	created_at, updated_at`

func scanMasterBook(scanner interface{ Scan(dest ...any) error }) (*domain.MasterBook, error) {
	var book domain.MasterBook

	var (
		format       string
		synthetic    int
		byCurrency   string
		totalUSD     string
		marketplaces string
		breakdown    string
		listPrice    sql.NullString
		offerPrice   sql.NullString
		sources      string
		createdAt    string
		updatedAt    string
	)

	err := scanner.Scan(
		&book.ID,
		&book.UserID,
		&book.Identifier,
		&format,
		&synthetic,
		&book.Title,
		&book.Author,
		&book.ISBN,
		&book.MetadataDate,
		&book.FirstSaleDate,
		&book.LastSaleDate,
		&book.UnitsSold,
		&book.UnitsRefunded,
		&book.NetUnitsSold,
		&book.KENPRead,
		&byCurrency,
		&totalUSD,
		&marketplaces,
		&breakdown,
		&listPrice,
		&offerPrice,
		&book.PriceCurrency,
		&book.PriceDate,
		&sources,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	book.Format = domain.Format(format)
	book.Synthetic = synthetic != 0

	// JSON fields.
	if err := json.Unmarshal([]byte(byCurrency), &book.RoyaltiesByCurrency); err != nil {
		return nil, fmt.Errorf("decode royalties: %w", err)
	}
	if err := json.Unmarshal([]byte(marketplaces), &book.Marketplaces); err != nil {
		return nil, fmt.Errorf("decode marketplaces: %w", err)
	}
	if err := json.Unmarshal([]byte(breakdown), &book.SalesBreakdown); err != nil {
		return nil, fmt.Errorf("decode sales breakdown: %w", err)
	}
	if err := json.Unmarshal([]byte(sources), &book.SourceImportIDs); err != nil {
		return nil, fmt.Errorf("decode source imports: %w", err)
	}
	ensureMaps(&book)

	if book.TotalRoyaltiesUSD, err = decimal.NewFromString(totalUSD); err != nil {
		return nil, fmt.Errorf("decode total_royalties_usd: %w", err)
	}
	if book.ListPrice, err = parseNullableDecimal(listPrice); err != nil {
		return nil, err
	}
	if book.OfferPrice, err = parseNullableDecimal(offerPrice); err != nil {
		return nil, err
	}

	if book.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if book.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &book, nil
}

func ensureMaps(book *domain.MasterBook) {
	if book.RoyaltiesByCurrency == nil {
		book.RoyaltiesByCurrency = map[string]decimal.Decimal{}
	}
	if book.Marketplaces == nil {
		book.Marketplaces = map[string]domain.MarketplaceStats{}
	}
	if book.SalesBreakdown.BookSales == nil {
		book.SalesBreakdown.BookSales = map[string]decimal.Decimal{}
	}
	if book.SalesBreakdown.KENPReads == nil {
		book.SalesBreakdown.KENPReads = map[string]decimal.Decimal{}
	}
	if book.SourceImportIDs == nil {
		book.SourceImportIDs = []string{}
	}
}

func masterBookValues(book *domain.MasterBook) ([]any, error) {
	ensureMaps(book)

	byCurrency, err := json.Marshal(book.RoyaltiesByCurrency)
	if err != nil {
		return nil, err
	}
	marketplaces, err := json.Marshal(book.Marketplaces)
	if err != nil {
		return nil, err
	}
	breakdown, err := json.Marshal(book.SalesBreakdown)
	if err != nil {
		return nil, err
	}
	sources, err := json.Marshal(book.SourceImportIDs)
	if err != nil {
		return nil, err
	}

	return []any{
		book.UserID,
		book.Identifier,
		string(book.Format),
		boolToInt(book.Synthetic),
		book.Title,
		book.Author,
		book.ISBN,
		book.MetadataDate,
		book.FirstSaleDate,
		book.LastSaleDate,
		book.UnitsSold,
		book.UnitsRefunded,
		book.NetUnitsSold,
		book.KENPRead,
		string(byCurrency),
		book.TotalRoyaltiesUSD.String(),
		string(marketplaces),
		string(breakdown),
		nullDecimal(book.ListPrice),
		nullDecimal(book.OfferPrice),
		book.PriceCurrency,
		book.PriceDate,
		string(sources),
		formatTime(book.CreatedAt),
		formatTime(book.UpdatedAt),
	}, nil
}

// GetMasterBook retrieves the user's book for an (identifier, format) pair.
// Returns store.ErrNotFound if there is none.
func (s *Store) GetMasterBook(ctx context.Context, userID, identifier string, format domain.Format) (*domain.MasterBook, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+masterBookColumns+` FROM master_books WHERE user_id = ? AND identifier = ? AND format = ?`,
		userID, identifier, string(format))

	book, err := scanMasterBook(row)
	if err != nil {
		return nil, notFound(err, "master book %s/%s not found", identifier, format)
	}
	return book, nil
}

// FindMasterBooks returns the user's books whose identifier or ISBN equals
// identifier, most recently updated first.
func (s *Store) FindMasterBooks(ctx context.Context, userID, identifier string) ([]*domain.MasterBook, error) {
	return s.queryMasterBooks(ctx, `
		SELECT `+masterBookColumns+` FROM master_books
		WHERE user_id = ? AND (identifier = ? OR isbn = ?)
		ORDER BY updated_at DESC, id ASC`,
		userID, identifier, identifier)
}

// ListMasterBooks returns all of a user's books, highest USD royalties first.
func (s *Store) ListMasterBooks(ctx context.Context, userID string) ([]*domain.MasterBook, error) {
	return s.queryMasterBooks(ctx, `
		SELECT `+masterBookColumns+` FROM master_books
		WHERE user_id = ?
		ORDER BY CAST(total_royalties_usd AS REAL) DESC, identifier ASC, format ASC`,
		userID)
}

func (s *Store) queryMasterBooks(ctx context.Context, query string, args ...any) ([]*domain.MasterBook, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []*domain.MasterBook
	for rows.Next() {
		book, err := scanMasterBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return books, nil
}

// SaveMasterBook inserts book or fully updates the row with its ID.
// Returns store.ErrAlreadyExists when a different row already owns the
// (user, identifier, format) key.
func (s *Store) SaveMasterBook(ctx context.Context, book *domain.MasterBook) error {
	values, err := masterBookValues(book)
	if err != nil {
		return err
	}

	_, err = s.execWithRetry(ctx, `
		INSERT INTO master_books (`+masterBookColumns+`) VALUES (?, `+placeholders(len(values))+`)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			identifier = excluded.identifier,
			format = excluded.format,
			synthetic = excluded.synthetic,
			title = excluded.title,
			author = excluded.author,
			isbn = excluded.isbn,
			metadata_date = excluded.metadata_date,
			first_sale_date = excluded.first_sale_date,
			last_sale_date = excluded.last_sale_date,
			units_sold = excluded.units_sold,
			units_refunded = excluded.units_refunded,
			net_units_sold = excluded.net_units_sold,
			kenp_read = excluded.kenp_read,
			royalties_by_currency = excluded.royalties_by_currency,
			total_royalties_usd = excluded.total_royalties_usd,
			marketplaces = excluded.marketplaces,
			sales_breakdown = excluded.sales_breakdown,
			list_price = excluded.list_price,
			offer_price = excluded.offer_price,
			price_currency = excluded.price_currency,
			price_date = excluded.price_date,
			source_import_ids = excluded.source_import_ids,
			updated_at = excluded.updated_at`,
		append([]any{book.ID}, values...)...)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists.WithMessage(
			fmt.Sprintf("master book %s/%s already exists", book.Identifier, book.Format))
	}
	return err
}
