package masterbook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/ledger-server/internal/dedup"
	"github.com/listenupapp/ledger-server/internal/domain"
	"github.com/listenupapp/ledger-server/internal/store/sqlite"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// tableRates converts through units-per-USD values.
type tableRates map[string]decimal.Decimal

func (r tableRates) Convert(_ context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, bool) {
	f, ok := r[from]
	if !ok {
		return decimal.Zero, false
	}
	t, ok := r[to]
	if !ok {
		return decimal.Zero, false
	}
	return amount.Mul(t).Div(f), true
}

var testRates = tableRates{"USD": dec("1"), "EUR": dec("0.95"), "GBP": dec("0.79")}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "ledger.db"), discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newAggregator(s *sqlite.Store) *Aggregator {
	a := New(s, s, testRates, discard())
	a.now = func() time.Time { return testTime }
	return a
}

type recordOpt func(*domain.SalesRecord)

func record(id, asin, currency, royalty string, opts ...recordOpt) *domain.SalesRecord {
	rec := &domain.SalesRecord{
		ID:           id,
		UserID:       "user-1",
		SheetName:    "eBook Royalty",
		SheetKind:    domain.SheetEbookRoyalty,
		RowIndex:     2,
		ASIN:         asin,
		Title:        "Night Train",
		Author:       "A. Writer",
		Marketplace:  "Amazon.com",
		RoyaltyDate:  "2024-01-05",
		Format:       domain.FormatEbook,
		UnitsSold:    1,
		NetUnitsSold: 1,
		Currency:     currency,
		Royalty:      dec(royalty),
		DedupKey:     "key-" + id,
		CreatedAt:    testTime,
		UpdatedAt:    testTime,
	}
	for _, opt := range opts {
		opt(rec)
	}
	return rec
}

func seedImport(t *testing.T, s *sqlite.Store, importID string, records ...*domain.SalesRecord) *domain.ImportJob {
	t.Helper()
	ctx := context.Background()
	job := domain.NewImportJob(importID, "user-1", importID+".xlsx", testTime)
	require.NoError(t, s.CreateImport(ctx, job))
	for _, rec := range records {
		rec.ImportID = importID
		_, err := s.UpsertRecord(ctx, rec)
		require.NoError(t, err)
	}
	return job
}

func TestKeyOf(t *testing.T) {
	rec := record("r1", "B001", "USD", "1")
	rec.Format = ""
	assert.Equal(t, Key{Identifier: "B001", Format: domain.FormatEbook}, KeyOf(rec))

	rec.ASIN = ""
	rec.ISBN = "9780000000001"
	rec.Format = domain.FormatPaperback
	assert.Equal(t, Key{Identifier: "9780000000001", Format: domain.FormatPaperback}, KeyOf(rec))

	rec.ISBN = ""
	key := KeyOf(rec)
	assert.True(t, key.Synthetic)
	assert.True(t, dedup.IsSynthetic(key.Identifier))
	assert.Equal(t, dedup.SyntheticIdentifier("Amazon.com", "USD", dec("1")), key.Identifier)
}

func TestGroup_SortedKeys(t *testing.T) {
	keys, groups := Group([]*domain.SalesRecord{
		record("r1", "B002", "USD", "1"),
		record("r2", "B001", "USD", "1", func(r *domain.SalesRecord) { r.Format = domain.FormatPaperback }),
		record("r3", "B001", "USD", "1"),
		record("r4", "B002", "USD", "2"),
	})

	require.Len(t, keys, 3)
	assert.Equal(t, Key{Identifier: "B001", Format: domain.FormatEbook}, keys[0])
	assert.Equal(t, Key{Identifier: "B001", Format: domain.FormatPaperback}, keys[1])
	assert.Equal(t, Key{Identifier: "B002", Format: domain.FormatEbook}, keys[2])
	assert.Len(t, groups[keys[2]], 2)
}

func TestFold(t *testing.T) {
	kenp := int64(300)
	records := []*domain.SalesRecord{
		record("r1", "B001", "USD", "2.50", func(r *domain.SalesRecord) {
			r.RoyaltyDate = "2024-01-10"
			r.ListPrice = decPtr("4.99")
		}),
		record("r2", "B001", "EUR", "1.20", func(r *domain.SalesRecord) {
			r.Marketplace = "Amazon.de"
			r.RoyaltyDate = "2024-02-01"
			r.Title = "Night Train (2nd ed.)"
			r.ListPrice = decPtr("3.99")
			r.UnitsSold = 2
			r.UnitsRefunded = 1
			r.NetUnitsSold = 1
		}),
		record("r3", "B001", "USD", "0.75", func(r *domain.SalesRecord) {
			r.SheetKind = domain.SheetKENPRead
			r.KENPRead = &kenp
			r.UnitsSold = 0
			r.NetUnitsSold = 0
			r.RoyaltyDate = "2023-12-31"
			r.ISBN = "9780000000001"
		}),
	}

	s := Fold(records)

	assert.Equal(t, int64(3), s.UnitsSold)
	assert.Equal(t, int64(1), s.UnitsRefunded)
	assert.Equal(t, int64(2), s.NetUnitsSold)
	assert.Equal(t, int64(300), s.KENPRead)
	assert.Equal(t, "2023-12-31", s.FirstSaleDate)
	assert.Equal(t, "2024-02-01", s.LastSaleDate)
	assert.Equal(t, "9780000000001", s.ISBN)

	assert.Equal(t, "3.25", s.Royalties["USD"].String())
	assert.Equal(t, "1.2", s.Royalties["EUR"].String())
	assert.Equal(t, "2.5", s.BookSales["USD"].String())
	assert.Equal(t, "0.75", s.KENPReads["USD"].String())

	com := s.Marketplaces["Amazon.com"]
	assert.Equal(t, int64(1), com.UnitsSold)
	assert.Equal(t, "3.25", com.Royalties.String())
	assert.Equal(t, "USD", com.Currency)

	book := domain.NewMasterBook("mb-1", "user-1", "B001", domain.FormatEbook, testTime)
	s.ApplyTo(book)
	assert.Equal(t, "Night Train (2nd ed.)", book.Title)
	assert.Equal(t, "2024-02-01", book.MetadataDate)
	require.NotNil(t, book.ListPrice)
	assert.Equal(t, "3.99", book.ListPrice.String())
	assert.Equal(t, "EUR", book.PriceCurrency)
}

func TestFold_ZeroRoyaltyHasNoBucket(t *testing.T) {
	s := Fold([]*domain.SalesRecord{record("r1", "B001", "USD", "0")})
	assert.NotContains(t, s.Royalties, "USD")
}

func TestApplyTo_OrderIndependent(t *testing.T) {
	first := []*domain.SalesRecord{
		record("r1", "B001", "USD", "2.50", func(r *domain.SalesRecord) { r.ListPrice = decPtr("4.99") }),
		record("r2", "B001", "GBP", "1.10", func(r *domain.SalesRecord) { r.Marketplace = "Amazon.co.uk" }),
	}
	second := []*domain.SalesRecord{
		record("r3", "B001", "EUR", "3.00", func(r *domain.SalesRecord) {
			r.RoyaltyDate = "2024-02-10"
			r.Title = "Night Train: Revised"
			r.OfferPrice = decPtr("2.99")
			r.Marketplace = "Amazon.de"
		}),
		record("r4", "B001", "USD", "1.00", func(r *domain.SalesRecord) { r.RoyaltyDate = "2023-11-02" }),
	}

	ab := domain.NewMasterBook("mb-1", "user-1", "B001", domain.FormatEbook, testTime)
	Fold(first).ApplyTo(ab)
	Fold(second).ApplyTo(ab)

	ba := domain.NewMasterBook("mb-1", "user-1", "B001", domain.FormatEbook, testTime)
	Fold(second).ApplyTo(ba)
	Fold(first).ApplyTo(ba)

	abJSON, err := json.Marshal(ab)
	require.NoError(t, err)
	baJSON, err := json.Marshal(ba)
	require.NoError(t, err)
	assert.JSONEq(t, string(abJSON), string(baJSON))
	assert.Equal(t, "Night Train: Revised", ab.Title)
	assert.Equal(t, "2023-11-02", ab.FirstSaleDate)
	assert.Equal(t, "2024-02-10", ab.LastSaleDate)
	assert.Equal(t, "3.5", ab.RoyaltiesByCurrency["USD"].String())
}

func TestAggregate_CreatesBook(t *testing.T) {
	s := newStore(t)
	agg := newAggregator(s)
	ctx := context.Background()

	job := seedImport(t, s, "imp-1", record("r1", "B001", "USD", "2.50"))

	result, err := agg.Aggregate(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Groups)
	assert.Equal(t, 1, result.Created)
	assert.Empty(t, result.Failures)

	book, err := s.GetMasterBook(ctx, "user-1", "B001", domain.FormatEbook)
	require.NoError(t, err)
	assert.Equal(t, "2.5", book.TotalRoyaltiesUSD.String())
	assert.Equal(t, []string{"imp-1"}, book.SourceImportIDs)
	assert.Equal(t, "Night Train", book.Title)

	unmerged, err := s.ListUnmergedRecords(ctx, "imp-1")
	require.NoError(t, err)
	assert.Empty(t, unmerged)
}

func TestAggregate_MergesAcrossImports(t *testing.T) {
	s := newStore(t)
	agg := newAggregator(s)
	ctx := context.Background()

	job1 := seedImport(t, s, "imp-1", record("r1", "B001", "EUR", "5"))
	_, err := agg.Aggregate(ctx, job1)
	require.NoError(t, err)

	job2 := seedImport(t, s, "imp-2", record("r2", "B001", "USD", "3"))
	result, err := agg.Aggregate(ctx, job2)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Merged)

	book, err := s.GetMasterBook(ctx, "user-1", "B001", domain.FormatEbook)
	require.NoError(t, err)
	assert.Equal(t, "5", book.RoyaltiesByCurrency["EUR"].String())
	assert.Equal(t, "3", book.RoyaltiesByCurrency["USD"].String())
	assert.Equal(t, []string{"imp-1", "imp-2"}, book.SourceImportIDs)
	assert.Equal(t, int64(2), book.UnitsSold)

	want := dec("5").Div(dec("0.95")).Add(dec("3"))
	assert.Equal(t, want.Round(2).String(), book.TotalRoyaltiesUSD.Round(2).String())
	assert.Equal(t, "8.26", book.TotalRoyaltiesUSD.Round(2).String())
}

func TestAggregate_Idempotent(t *testing.T) {
	s := newStore(t)
	agg := newAggregator(s)
	ctx := context.Background()

	job := seedImport(t, s, "imp-1",
		record("r1", "B001", "USD", "2.50"),
		record("r2", "B002", "USD", "1.00"),
	)

	_, err := agg.Aggregate(ctx, job)
	require.NoError(t, err)

	result, err := agg.Aggregate(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Groups)

	book, err := s.GetMasterBook(ctx, "user-1", "B001", domain.FormatEbook)
	require.NoError(t, err)
	assert.Equal(t, "2.5", book.TotalRoyaltiesUSD.String())
	assert.Len(t, book.SourceImportIDs, 1)
}

func TestAggregate_BookAlreadyListsImport(t *testing.T) {
	s := newStore(t)
	agg := newAggregator(s)
	ctx := context.Background()

	job := seedImport(t, s, "imp-1", record("r1", "B001", "USD", "2.50"))

	// A previous run saved the book but never marked the records.
	book := domain.NewMasterBook("mb-1", "user-1", "B001", domain.FormatEbook, testTime)
	book.RoyaltiesByCurrency["USD"] = dec("2.50")
	book.TotalRoyaltiesUSD = dec("2.50")
	book.SourceImportIDs = []string{"imp-1"}
	require.NoError(t, s.SaveMasterBook(ctx, book))

	result, err := agg.Aggregate(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 1, result.AlreadyMerged)

	got, err := s.GetMasterBook(ctx, "user-1", "B001", domain.FormatEbook)
	require.NoError(t, err)
	assert.Equal(t, "2.5", got.TotalRoyaltiesUSD.String())

	unmerged, err := s.ListUnmergedRecords(ctx, "imp-1")
	require.NoError(t, err)
	assert.Empty(t, unmerged)
}

func TestAggregate_MissingRateContributesNothing(t *testing.T) {
	s := newStore(t)
	agg := newAggregator(s)
	ctx := context.Background()

	job := seedImport(t, s, "imp-1",
		record("r1", "B001", "USD", "2"),
		record("r2", "B001", "XYZ", "100"),
	)
	_, err := agg.Aggregate(ctx, job)
	require.NoError(t, err)

	book, err := s.GetMasterBook(ctx, "user-1", "B001", domain.FormatEbook)
	require.NoError(t, err)
	assert.Equal(t, "2", book.TotalRoyaltiesUSD.String())
	assert.Equal(t, "100", book.RoyaltiesByCurrency["XYZ"].String())
}

// failingBooks fails saves for one identifier.
type failingBooks struct {
	*sqlite.Store
	identifier string
}

func (f failingBooks) SaveMasterBook(ctx context.Context, book *domain.MasterBook) error {
	if book.Identifier == f.identifier {
		return errors.New("disk full")
	}
	return f.Store.SaveMasterBook(ctx, book)
}

func TestAggregate_GroupFailureIsIsolated(t *testing.T) {
	s := newStore(t)
	agg := New(s, failingBooks{Store: s, identifier: "B002"}, testRates, discard())
	ctx := context.Background()

	job := seedImport(t, s, "imp-1",
		record("r1", "B001", "USD", "1"),
		record("r2", "B002", "USD", "1"),
		record("r3", "B003", "USD", "1"),
	)

	result, err := agg.Aggregate(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "aggregation (B002/ebook): save master book: disk full", result.Failures[0].Message())

	unmerged, err := s.ListUnmergedRecords(ctx, "imp-1")
	require.NoError(t, err)
	require.Len(t, unmerged, 1)
	assert.Equal(t, "r2", unmerged[0].ID)
}
