package masterbook

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/listenupapp/ledger-server/internal/domain"
)

// Summary is the fold of one group of records. Applying summaries to a book is
// commutative, so the final book does not depend on import order.
type Summary struct {
	UnitsSold     int64
	UnitsRefunded int64
	NetUnitsSold  int64
	KENPRead      int64

	FirstSaleDate string
	LastSaleDate  string

	Royalties    map[string]decimal.Decimal
	Marketplaces map[string]domain.MarketplaceStats
	BookSales    map[string]decimal.Decimal
	KENPReads    map[string]decimal.Decimal

	ISBN string

	metadata *metadata
	price    *price
}

type metadata struct {
	date, title, author string
}

func (m metadata) after(o metadata) bool {
	if m.date != o.date {
		return m.date > o.date
	}
	if m.title != o.title {
		return m.title > o.title
	}
	return m.author > o.author
}

type price struct {
	date     string
	currency string
	list     *decimal.Decimal
	offer    *decimal.Decimal
}

func (p price) after(o price) bool {
	if p.date != o.date {
		return p.date > o.date
	}
	if p.currency != o.currency {
		return p.currency > o.currency
	}
	if c := compareOpt(p.list, o.list); c != 0 {
		return c > 0
	}
	return compareOpt(p.offer, o.offer) > 0
}

// compareOpt orders nil before any value.
func compareOpt(a, b *decimal.Decimal) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return a.Cmp(*b)
	}
}

// Fold sums a group of records.
func Fold(records []*domain.SalesRecord) *Summary {
	s := &Summary{
		Royalties:    map[string]decimal.Decimal{},
		Marketplaces: map[string]domain.MarketplaceStats{},
		BookSales:    map[string]decimal.Decimal{},
		KENPReads:    map[string]decimal.Decimal{},
	}

	for _, rec := range records {
		s.UnitsSold += rec.UnitsSold
		s.UnitsRefunded += rec.UnitsRefunded
		s.NetUnitsSold += rec.NetUnitsSold
		if rec.KENPRead != nil {
			s.KENPRead += *rec.KENPRead
		}

		s.FirstSaleDate = minDate(s.FirstSaleDate, rec.RoyaltyDate)
		s.LastSaleDate = maxDate(s.LastSaleDate, rec.RoyaltyDate)
		s.ISBN = minISBN(s.ISBN, rec.ISBN)

		if rec.Currency != "" {
			if !rec.Royalty.IsZero() {
				s.Royalties[rec.Currency] = s.Royalties[rec.Currency].Add(rec.Royalty)
			}
			if rec.IsPageRead() {
				s.KENPReads[rec.Currency] = s.KENPReads[rec.Currency].Add(rec.Royalty)
			} else {
				s.BookSales[rec.Currency] = s.BookSales[rec.Currency].Add(rec.Royalty)
			}
		}

		if rec.Marketplace != "" {
			s.Marketplaces[rec.Marketplace] = addMarketplace(s.Marketplaces[rec.Marketplace], domain.MarketplaceStats{
				UnitsSold: rec.UnitsSold,
				Royalties: rec.Royalty,
				Currency:  rec.Currency,
			})
		}

		if rec.Title != "" || rec.Author != "" {
			m := metadata{date: rec.RoyaltyDate, title: rec.Title, author: rec.Author}
			if s.metadata == nil || m.after(*s.metadata) {
				s.metadata = &m
			}
		}

		if rec.ListPrice != nil || rec.OfferPrice != nil {
			p := price{date: rec.RoyaltyDate, currency: rec.Currency, list: rec.ListPrice, offer: rec.OfferPrice}
			if s.price == nil || p.after(*s.price) {
				s.price = &p
			}
		}
	}
	return s
}

// ApplyTo adds the summary into book. TotalRoyaltiesUSD is left to the caller.
func (s *Summary) ApplyTo(book *domain.MasterBook) {
	book.UnitsSold += s.UnitsSold
	book.UnitsRefunded += s.UnitsRefunded
	book.NetUnitsSold += s.NetUnitsSold
	book.KENPRead += s.KENPRead

	book.FirstSaleDate = minDate(book.FirstSaleDate, s.FirstSaleDate)
	book.LastSaleDate = maxDate(book.LastSaleDate, s.LastSaleDate)
	book.ISBN = minISBN(book.ISBN, s.ISBN)

	if book.RoyaltiesByCurrency == nil {
		book.RoyaltiesByCurrency = map[string]decimal.Decimal{}
	}
	addBuckets(book.RoyaltiesByCurrency, s.Royalties)

	if book.SalesBreakdown.BookSales == nil {
		book.SalesBreakdown.BookSales = map[string]decimal.Decimal{}
	}
	if book.SalesBreakdown.KENPReads == nil {
		book.SalesBreakdown.KENPReads = map[string]decimal.Decimal{}
	}
	addBuckets(book.SalesBreakdown.BookSales, s.BookSales)
	addBuckets(book.SalesBreakdown.KENPReads, s.KENPReads)

	if book.Marketplaces == nil {
		book.Marketplaces = map[string]domain.MarketplaceStats{}
	}
	for name, stats := range s.Marketplaces {
		book.Marketplaces[name] = addMarketplace(book.Marketplaces[name], stats)
	}

	if s.metadata != nil {
		current := metadata{date: book.MetadataDate, title: book.Title, author: book.Author}
		if (book.Title == "" && book.Author == "") || s.metadata.after(current) {
			book.Title = s.metadata.title
			book.Author = s.metadata.author
			book.MetadataDate = s.metadata.date
		}
	}

	if s.price != nil {
		current := price{date: book.PriceDate, currency: book.PriceCurrency, list: book.ListPrice, offer: book.OfferPrice}
		if (book.ListPrice == nil && book.OfferPrice == nil) || s.price.after(current) {
			book.ListPrice = s.price.list
			book.OfferPrice = s.price.offer
			book.PriceCurrency = s.price.currency
			book.PriceDate = s.price.date
		}
	}
}

func addBuckets(dst, src map[string]decimal.Decimal) {
	for cur, amount := range src {
		dst[cur] = dst[cur].Add(amount)
	}
}

// addMarketplace sums two partials. The smallest non-empty currency code is kept.
func addMarketplace(a, b domain.MarketplaceStats) domain.MarketplaceStats {
	out := domain.MarketplaceStats{
		UnitsSold: a.UnitsSold + b.UnitsSold,
		Royalties: a.Royalties.Add(b.Royalties),
		Currency:  a.Currency,
	}
	if out.Currency == "" || (b.Currency != "" && b.Currency < out.Currency) {
		out.Currency = b.Currency
	}
	return out
}

func minDate(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return min(a, b)
	}
}

func maxDate(a, b string) string {
	return max(a, b)
}

func minISBN(a, b string) string {
	return minDate(a, b)
}

// currencies returns the bucket keys in order.
func currencies(buckets map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
