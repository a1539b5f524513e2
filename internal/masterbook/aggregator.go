// Package masterbook folds an import's sales records into durable per-book aggregates.
package masterbook

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/listenupapp/ledger-server/internal/currency"
	"github.com/listenupapp/ledger-server/internal/dedup"
	"github.com/listenupapp/ledger-server/internal/domain"
	"github.com/listenupapp/ledger-server/internal/id"
	"github.com/listenupapp/ledger-server/internal/store"
)

// Key identifies a master book within a user's catalog.
type Key struct {
	Identifier string
	Format     domain.Format
	Synthetic  bool
}

func (k Key) String() string {
	return k.Identifier + "/" + string(k.Format)
}

func compareKeys(a, b Key) int {
	if c := cmp.Compare(a.Identifier, b.Identifier); c != 0 {
		return c
	}
	return cmp.Compare(a.Format, b.Format)
}

// KeyOf returns the master book key of a record. Records without an identifier get
// a synthetic one derived from marketplace, currency and royalty.
func KeyOf(rec *domain.SalesRecord) Key {
	format := rec.Format.OrDefault()
	if ident := rec.CatalogIdentifier(); ident != "" {
		return Key{Identifier: ident, Format: format}
	}
	return Key{
		Identifier: dedup.SyntheticIdentifier(rec.Marketplace, rec.Currency, rec.Royalty),
		Format:     format,
		Synthetic:  true,
	}
}

// Group buckets records by master book key. Keys come back sorted.
func Group(records []*domain.SalesRecord) ([]Key, map[Key][]*domain.SalesRecord) {
	groups := make(map[Key][]*domain.SalesRecord)
	for _, rec := range records {
		k := KeyOf(rec)
		groups[k] = append(groups[k], rec)
	}

	keys := make([]Key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys, groups
}

// GroupFailure is one group that could not be merged.
type GroupFailure struct {
	Key Key
	Err error
}

// Message is the job error log entry for the failure.
func (f GroupFailure) Message() string {
	return fmt.Sprintf("aggregation (%s): %v", f.Key, f.Err)
}

// Result reports what one aggregation run did.
type Result struct {
	Groups        int
	Created       int
	Merged        int
	AlreadyMerged int
	Failures      []GroupFailure
}

// Aggregator merges import records into master books.
type Aggregator struct {
	records store.RecordStore
	books   store.MasterBookStore
	rates   currency.Converter
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an aggregator.
func New(records store.RecordStore, books store.MasterBookStore, rates currency.Converter, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		records: records,
		books:   books,
		rates:   rates,
		logger:  logger,
		now:     time.Now,
	}
}

// Aggregate folds the job's unmerged records into the user's master books.
//
// A group whose book already lists the job is not folded again. A failing group is
// reported in Result.Failures and does not stop the others; only failing to read the
// records returns an error.
func (a *Aggregator) Aggregate(ctx context.Context, job *domain.ImportJob) (*Result, error) {
	records, err := a.records.ListUnmergedRecords(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("list unmerged records: %w", err)
	}

	keys, groups := Group(records)
	result := &Result{Groups: len(keys)}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		created, folded, err := a.mergeGroup(ctx, job, key, groups[key])
		if err != nil {
			a.logger.Error("aggregation group failed",
				"import_id", job.ID,
				"identifier", key.Identifier,
				"format", key.Format,
				"error", err,
			)
			result.Failures = append(result.Failures, GroupFailure{Key: key, Err: err})
			continue
		}

		switch {
		case !folded:
			result.AlreadyMerged++
		case created:
			result.Created++
		default:
			result.Merged++
		}
	}

	a.logger.Info("aggregation finished",
		"import_id", job.ID,
		"groups", result.Groups,
		"created", result.Created,
		"merged", result.Merged,
		"already_merged", result.AlreadyMerged,
		"failures", len(result.Failures),
	)
	return result, nil
}

func (a *Aggregator) mergeGroup(ctx context.Context, job *domain.ImportJob, key Key, records []*domain.SalesRecord) (created, folded bool, err error) {
	book, err := a.books.GetMasterBook(ctx, job.UserID, key.Identifier, key.Format)
	switch {
	case errors.Is(err, store.ErrNotFound):
		bookID, genErr := id.Generate(id.PrefixMasterBook)
		if genErr != nil {
			return false, false, genErr
		}
		book = domain.NewMasterBook(bookID, job.UserID, key.Identifier, key.Format, a.now())
		book.Synthetic = key.Synthetic
		created = true
	case err != nil:
		return false, false, fmt.Errorf("load master book: %w", err)
	}

	now := a.now()
	if book.HasImport(job.ID) {
		// Saved by an earlier run that stopped before marking its records.
		return false, false, a.markMerged(ctx, records, now)
	}

	Fold(records).ApplyTo(book)
	book.TotalRoyaltiesUSD = a.totalUSD(ctx, book)
	book.SourceImportIDs = append(book.SourceImportIDs, job.ID)
	book.UpdatedAt = now

	if err := a.books.SaveMasterBook(ctx, book); err != nil {
		return false, false, fmt.Errorf("save master book: %w", err)
	}
	if err := a.markMerged(ctx, records, now); err != nil {
		return false, false, err
	}
	return created, true, nil
}

func (a *Aggregator) markMerged(ctx context.Context, records []*domain.SalesRecord, at time.Time) error {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	if err := a.records.MarkRecordsMerged(ctx, ids, at); err != nil {
		return fmt.Errorf("mark records merged: %w", err)
	}
	return nil
}

// totalUSD converts every currency bucket with current rates. Buckets without a
// rate contribute nothing.
func (a *Aggregator) totalUSD(ctx context.Context, book *domain.MasterBook) decimal.Decimal {
	total := decimal.Zero
	for _, cur := range currencies(book.RoyaltiesByCurrency) {
		amount := book.RoyaltiesByCurrency[cur]
		if a.rates == nil {
			if cur == currency.USD {
				total = total.Add(amount)
			}
			continue
		}
		usd, ok := a.rates.Convert(ctx, amount, cur, currency.USD)
		if !ok {
			a.logger.Warn("no exchange rate for royalty bucket",
				"identifier", book.Identifier,
				"currency", cur,
				"amount", amount.String(),
			)
			continue
		}
		total = total.Add(usd)
	}
	return total
}
