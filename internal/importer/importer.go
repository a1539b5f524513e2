// Package importer runs import jobs: it walks a workbook's sheets, normalizes and
// filters each row, stores the kept records and hands the job to aggregation.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/listenupapp/ledger-server/internal/classifier"
	"github.com/listenupapp/ledger-server/internal/dedup"
	"github.com/listenupapp/ledger-server/internal/domain"
	"github.com/listenupapp/ledger-server/internal/id"
	"github.com/listenupapp/ledger-server/internal/masterbook"
	"github.com/listenupapp/ledger-server/internal/normalize"
	"github.com/listenupapp/ledger-server/internal/store"
	"github.com/listenupapp/ledger-server/internal/workbook"
)

// Aggregator folds a completed job into master books.
type Aggregator interface {
	Aggregate(ctx context.Context, job *domain.ImportJob) (*masterbook.Result, error)
}

// Config holds importer settings.
type Config struct {
	// ProgressEvery is how many rows pass between persisted progress updates.
	ProgressEvery int
}

// Importer processes import jobs.
type Importer struct {
	imports    store.ImportStore
	records    store.RecordStore
	normalizer *normalize.Normalizer
	aggregator Aggregator
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// New creates an importer.
func New(imports store.ImportStore, records store.RecordStore, normalizer *normalize.Normalizer, aggregator Aggregator, cfg Config, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultProgressEvery
	}
	return &Importer{
		imports:    imports,
		records:    records,
		normalizer: normalizer,
		aggregator: aggregator,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Process runs a pending job over wb to a terminal state.
//
// A job that fails is not an error: its status and error log say why. Process
// returns an error only when the job could not be moved or persisted.
func (im *Importer) Process(ctx context.Context, job *domain.ImportJob, wb *workbook.Workbook) (err error) {
	t := NewTracker(job, im.imports, im.cfg.ProgressEvery, im.logger)
	t.now = im.now

	if err := t.Start(ctx, wb.TotalRows()); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("import panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = t.Fail(ctx, fmt.Errorf("internal error: %v", r))
		}
	}()

	kept, err := im.ingest(ctx, t, wb)
	if err != nil {
		return t.Fail(ctx, err)
	}

	fingerprint := dedup.Fingerprint(kept)
	previous, err := im.imports.ListCompletedFingerprints(ctx, job.UserID, job.ID)
	if err != nil {
		return t.Fail(ctx, fmt.Errorf("load previous imports: %w", err))
	}
	job.Fingerprint = fingerprint
	job.AggregationSkipped = dedup.Matches(fingerprint, previous)

	if err := t.Complete(ctx); err != nil {
		return err
	}

	if job.AggregationSkipped {
		t.logger.Info("identical import already completed, aggregation skipped")
		return nil
	}
	im.aggregate(ctx, t)
	return nil
}

// ingest stores every kept row of wb and returns the kept records.
func (im *Importer) ingest(ctx context.Context, t *Tracker, wb *workbook.Workbook) ([]*domain.SalesRecord, error) {
	job := t.Job()
	if len(wb.Sheets) == 0 {
		return nil, workbook.ErrEmptyWorkbook
	}

	job.Dialect = classifier.Classify(wb)
	if job.Sheets == nil {
		job.Sheets = map[string]domain.SheetSummary{}
	}
	for _, se := range wb.SheetErrors {
		t.SheetFailed(se.Sheet, se.Err)
	}

	var kept []*domain.SalesRecord
	processed := 0
	for i := range wb.Sheets {
		sheet := &wb.Sheets[i]
		kind := classifier.ClassifySheet(job.Dialect, sheet.Name)
		parser := normalize.ParserFor(kind)
		cols := parser.Columns(sheet.Header)
		// Only rows that carry a category can be filtered on it.
		filtered := cols.Has(normalize.FieldTransactionType)
		summary := domain.SheetSummary{Kind: kind, Rows: len(sheet.Rows)}

		for r, cells := range sheet.Rows {
			if err := ctx.Err(); err != nil {
				job.Sheets[sheet.Name] = summary
				return nil, fmt.Errorf("import cancelled: %w", err)
			}

			row := sheet.RowNumber(r)
			rec, err := im.normalizer.Build(normalize.Input{
				Parser:    parser,
				Columns:   cols,
				Cells:     cells,
				SheetName: sheet.Name,
				RowIndex:  row,
				ImportID:  job.ID,
				UserID:    job.UserID,
			})

			switch {
			case errors.Is(err, normalize.ErrNoIdentifier):
				summary.Dropped++
			case err != nil:
				summary.Failed++
				t.RowFailed(sheet.Name, row, err)
			case filtered && !normalize.Keep(sheet.Name, rec.TransactionType):
				summary.Filtered++
			default:
				if err := im.storeRecord(ctx, t, rec); err != nil {
					job.Sheets[sheet.Name] = summary
					return nil, err
				}
				summary.Kept++
				kept = append(kept, rec)
			}

			processed++
			if err := t.Advance(ctx, processed); err != nil {
				return nil, err
			}
		}

		job.Sheets[sheet.Name] = summary
		t.logger.Debug("sheet processed",
			"sheet", sheet.Name,
			"kind", kind,
			"rows", summary.Rows,
			"kept", summary.Kept,
			"filtered", summary.Filtered,
			"dropped", summary.Dropped,
			"failed", summary.Failed,
		)
	}
	return kept, nil
}

func (im *Importer) storeRecord(ctx context.Context, t *Tracker, rec *domain.SalesRecord) error {
	job := t.Job()

	im.normalizer.ConvertAmounts(ctx, rec)
	for _, w := range normalize.Warnings(rec) {
		t.Warn(rec.SheetName, rec.RowIndex, w)
	}

	recID, err := id.Generate(id.PrefixRecord)
	if err != nil {
		return err
	}
	now := im.now()
	rec.ID = recID
	rec.DedupKey = dedup.RecordKey(rec)
	rec.CreatedAt = now
	rec.UpdatedAt = now

	inserted, err := im.records.UpsertRecord(ctx, rec)
	if err != nil {
		return fmt.Errorf("store row %d in sheet %q: %w", rec.RowIndex, rec.SheetName, err)
	}
	if inserted {
		job.NewRecords++
	} else {
		job.DuplicateRecords++
	}
	return nil
}

// aggregate runs the master book fold. Failures are noted on the completed job.
func (im *Importer) aggregate(ctx context.Context, t *Tracker) {
	if im.aggregator == nil {
		return
	}
	job := t.Job()

	result, err := im.aggregator.Aggregate(ctx, job)
	if err != nil {
		t.logger.WithError(err).Error("aggregation failed")
		t.Note(fmt.Sprintf("aggregation: %v", err))
	}
	if result != nil {
		for _, f := range result.Failures {
			t.Note(f.Message())
		}
	}
	if err == nil && (result == nil || len(result.Failures) == 0) {
		return
	}
	if err := t.Save(ctx); err != nil {
		t.logger.WithError(err).Error("failed to record aggregation errors")
	}
}
