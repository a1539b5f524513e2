package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/ledger-server/internal/domain"
	"github.com/listenupapp/ledger-server/internal/store"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func testRecord(id, importID, key, royalty string) *domain.SalesRecord {
	kenp := int64(120)
	return &domain.SalesRecord{
		ID:              id,
		UserID:          "user-1",
		ImportID:        importID,
		SheetName:       "eBook Royalty",
		SheetKind:       domain.SheetEbookRoyalty,
		RowIndex:        2,
		ASIN:            "B001",
		Title:           "My Book",
		Marketplace:     "Amazon.de",
		RoyaltyType:     "70%",
		TransactionType: "Standard",
		RoyaltyDate:     "2024-01-05",
		Format:          domain.FormatEbook,
		UnitsSold:       3,
		NetUnitsSold:    3,
		KENPRead:        &kenp,
		Currency:        "EUR",
		Royalty:         dec(royalty),
		ListPrice:       decPtr("4.99"),
		DeliveryCost:    decPtr("0.15"),
		USD: domain.USDAmounts{
			Royalty:      dec(royalty).Mul(dec("1.1")),
			ListPrice:    decPtr("5.489"),
			DeliveryCost: decPtr("0.165"),
		},
		DedupKey:  key,
		CreatedAt: fixedTime,
		UpdatedAt: fixedTime,
	}
}

func TestUpsertRecord_InsertAndRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestImport(t, s, "imp-1", "user-1", fixedTime)

	inserted, err := s.UpsertRecord(ctx, testRecord("rec-1", "imp-1", "key-1", "2.50"))
	require.NoError(t, err)
	assert.True(t, inserted)

	got, err := s.GetRecordByKey(ctx, "user-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", got.ID)
	assert.Equal(t, domain.SheetEbookRoyalty, got.SheetKind)
	assert.Equal(t, "2.5", got.Royalty.String())
	assert.Equal(t, "2.75", got.USD.Royalty.String())
	require.NotNil(t, got.KENPRead)
	assert.Equal(t, int64(120), *got.KENPRead)
	require.NotNil(t, got.ListPrice)
	assert.Equal(t, "4.99", got.ListPrice.String())
	require.NotNil(t, got.USD.DeliveryCost)
	assert.Equal(t, "0.165", got.USD.DeliveryCost.String())
	assert.Nil(t, got.ManufacturingCost)
	assert.Nil(t, got.OrderDate)
	assert.Nil(t, got.MergedAt)
}

func TestUpsertRecord_UpdatesInPlace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestImport(t, s, "imp-1", "user-1", fixedTime)
	createTestImport(t, s, "imp-2", "user-1", fixedTime)

	_, err := s.UpsertRecord(ctx, testRecord("rec-1", "imp-1", "key-1", "2.50"))
	require.NoError(t, err)
	require.NoError(t, s.MarkRecordsMerged(ctx, []string{"rec-1"}, fixedTime.Add(time.Minute)))

	corrected := testRecord("rec-new", "imp-2", "key-1", "3.10")
	corrected.CreatedAt = fixedTime.Add(time.Hour)
	inserted, err := s.UpsertRecord(ctx, corrected)
	require.NoError(t, err)
	assert.False(t, inserted)

	// The caller's record now reflects the stored row.
	assert.Equal(t, "rec-1", corrected.ID)
	require.NotNil(t, corrected.MergedAt)

	got, err := s.GetRecordByKey(ctx, "user-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", got.ID)
	assert.Equal(t, "imp-1", got.ImportID)
	assert.Equal(t, "3.1", got.Royalty.String())
	assert.True(t, got.CreatedAt.Equal(fixedTime))
	require.NotNil(t, got.MergedAt)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM sales_records`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestUpsertRecord_KeysAreScopedPerUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestImport(t, s, "imp-1", "user-1", fixedTime)
	createTestImport(t, s, "imp-2", "user-2", fixedTime)

	_, err := s.UpsertRecord(ctx, testRecord("rec-1", "imp-1", "key-1", "2.50"))
	require.NoError(t, err)

	other := testRecord("rec-2", "imp-2", "key-1", "2.50")
	other.UserID = "user-2"
	inserted, err := s.UpsertRecord(ctx, other)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestUpsertRecord_InvalidInput(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpsertRecord(context.Background(), testRecord("rec-1", "imp-1", "", "1"))
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestUpsertRecord_UnknownImport(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpsertRecord(context.Background(), testRecord("rec-1", "missing", "key-1", "1"))
	assert.Error(t, err)
}

func TestGetRecordByKey_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRecordByKey(context.Background(), "user-1", "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListRecordsAndMarkMerged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestImport(t, s, "imp-1", "user-1", fixedTime)

	for i, key := range []string{"key-1", "key-2", "key-3"} {
		rec := testRecord("rec-"+key, "imp-1", key, "1.00")
		rec.RowIndex = i + 2
		_, err := s.UpsertRecord(ctx, rec)
		require.NoError(t, err)
	}

	all, err := s.ListRecordsByImport(ctx, "imp-1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 2, all[0].RowIndex)

	require.NoError(t, s.MarkRecordsMerged(ctx, []string{"rec-key-1", "rec-key-3"}, fixedTime))
	require.NoError(t, s.MarkRecordsMerged(ctx, nil, fixedTime))

	unmerged, err := s.ListUnmergedRecords(ctx, "imp-1")
	require.NoError(t, err)
	require.Len(t, unmerged, 1)
	assert.Equal(t, "rec-key-2", unmerged[0].ID)
}
