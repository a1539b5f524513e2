package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/ledger-server/internal/domain"
	"github.com/listenupapp/ledger-server/internal/store"
)

func testMasterBook(id, identifier string, format domain.Format, at time.Time) *domain.MasterBook {
	book := domain.NewMasterBook(id, "user-1", identifier, format, at)
	book.Title = "My Book"
	book.UnitsSold = 4
	book.RoyaltiesByCurrency["EUR"] = dec("5")
	book.RoyaltiesByCurrency["USD"] = dec("3")
	book.TotalRoyaltiesUSD = dec("8.26")
	book.Marketplaces["Amazon.de"] = domain.MarketplaceStats{UnitsSold: 2, Royalties: dec("5"), Currency: "EUR"}
	book.SalesBreakdown.BookSales["EUR"] = dec("5")
	book.SalesBreakdown.KENPReads["USD"] = dec("3")
	book.ListPrice = decPtr("4.99")
	book.PriceCurrency = "EUR"
	book.SourceImportIDs = []string{"imp-1"}
	return book
}

func TestSaveAndGetMasterBook(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMasterBook(ctx, testMasterBook("mb-1", "B001", domain.FormatEbook, fixedTime)))

	got, err := s.GetMasterBook(ctx, "user-1", "B001", domain.FormatEbook)
	require.NoError(t, err)
	assert.Equal(t, "mb-1", got.ID)
	assert.Equal(t, "5", got.RoyaltiesByCurrency["EUR"].String())
	assert.Equal(t, "8.26", got.TotalRoyaltiesUSD.String())
	assert.Equal(t, int64(2), got.Marketplaces["Amazon.de"].UnitsSold)
	assert.Equal(t, "3", got.SalesBreakdown.KENPReads["USD"].String())
	require.NotNil(t, got.ListPrice)
	assert.Equal(t, "4.99", got.ListPrice.String())
	assert.Nil(t, got.OfferPrice)
	assert.Equal(t, []string{"imp-1"}, got.SourceImportIDs)

	_, err = s.GetMasterBook(ctx, "user-1", "B001", domain.FormatPaperback)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaveMasterBook_Updates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	book := testMasterBook("mb-1", "B001", domain.FormatEbook, fixedTime)
	require.NoError(t, s.SaveMasterBook(ctx, book))

	book.UnitsSold = 10
	book.SourceImportIDs = append(book.SourceImportIDs, "imp-2")
	book.UpdatedAt = fixedTime.Add(time.Hour)
	require.NoError(t, s.SaveMasterBook(ctx, book))

	got, err := s.GetMasterBook(ctx, "user-1", "B001", domain.FormatEbook)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.UnitsSold)
	assert.Equal(t, []string{"imp-1", "imp-2"}, got.SourceImportIDs)
	assert.True(t, got.CreatedAt.Equal(fixedTime))
}

func TestSaveMasterBook_KeyConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveMasterBook(ctx, testMasterBook("mb-1", "B001", domain.FormatEbook, fixedTime)))

	err := s.SaveMasterBook(ctx, testMasterBook("mb-2", "B001", domain.FormatEbook, fixedTime))
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestFindMasterBooks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ebook := testMasterBook("mb-1", "B001", domain.FormatEbook, fixedTime)
	paperback := testMasterBook("mb-2", "B001", domain.FormatPaperback, fixedTime.Add(time.Hour))
	paperback.ISBN = "9781234567897"
	other := testMasterBook("mb-3", "B999", domain.FormatEbook, fixedTime)
	for _, b := range []*domain.MasterBook{ebook, paperback, other} {
		require.NoError(t, s.SaveMasterBook(ctx, b))
	}

	byASIN, err := s.FindMasterBooks(ctx, "user-1", "B001")
	require.NoError(t, err)
	require.Len(t, byASIN, 2)
	assert.Equal(t, "mb-2", byASIN[0].ID, "most recently updated first")

	byISBN, err := s.FindMasterBooks(ctx, "user-1", "9781234567897")
	require.NoError(t, err)
	require.Len(t, byISBN, 1)
	assert.Equal(t, domain.FormatPaperback, byISBN[0].Format)

	none, err := s.FindMasterBooks(ctx, "user-2", "B001")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListMasterBooks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	small := testMasterBook("mb-1", "B001", domain.FormatEbook, fixedTime)
	small.TotalRoyaltiesUSD = dec("9.5")
	large := testMasterBook("mb-2", "B002", domain.FormatEbook, fixedTime)
	large.TotalRoyaltiesUSD = dec("10.25")
	require.NoError(t, s.SaveMasterBook(ctx, small))
	require.NoError(t, s.SaveMasterBook(ctx, large))

	books, err := s.ListMasterBooks(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "mb-2", books[0].ID)
	assert.Equal(t, "mb-1", books[1].ID)
}
