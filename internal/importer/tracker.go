package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/listenupapp/ledger-server/internal/domain"
	"github.com/listenupapp/ledger-server/internal/logger"
	"github.com/listenupapp/ledger-server/internal/store"
)

// DefaultProgressEvery is how many rows pass between persisted progress updates.
const DefaultProgressEvery = 10

// Tracker owns the lifecycle of one import job and persists it as it moves.
// It is not safe for concurrent use; one job is processed by one goroutine.
type Tracker struct {
	job     *domain.ImportJob
	imports store.ImportStore
	logger  *logger.Logger
	sampler *logger.ProgressSampler
	every   int
	now     func() time.Time

	lastSaved int
}

// NewTracker creates a tracker for job. every <= 0 uses DefaultProgressEvery.
func NewTracker(job *domain.ImportJob, imports store.ImportStore, every int, log *slog.Logger) *Tracker {
	if every <= 0 {
		every = DefaultProgressEvery
	}
	return &Tracker{
		job:     job,
		imports: imports,
		logger:  logger.Wrap(log).WithImport(job.ID, job.UserID),
		sampler: logger.NewProgressSampler(25),
		every:   every,
		now:     time.Now,
	}
}

// Job returns the tracked job.
func (t *Tracker) Job() *domain.ImportJob {
	return t.job
}

// Start moves the job to processing with total rows to go. The transition is
// persisted even if ctx is already cancelled.
func (t *Tracker) Start(ctx context.Context, total int) error {
	if err := t.job.Start(t.now()); err != nil {
		return err
	}
	t.job.TotalRecords = total
	t.lastSaved = 0
	t.sampler.Reset()
	t.logger.Info("import started", "file", t.job.FileName, "rows", total)
	return t.save(context.WithoutCancel(ctx))
}

// Advance records that processed rows are done. Progress is persisted every
// few rows and always on the last one.
func (t *Tracker) Advance(ctx context.Context, processed int) error {
	if err := t.job.SetProgress(processed, t.job.TotalRecords, t.now()); err != nil {
		return err
	}
	if processed-t.lastSaved < t.every && processed < t.job.TotalRecords {
		return nil
	}
	t.lastSaved = processed
	if t.sampler.ShouldLog(t.job.Progress, "rows") {
		t.logger.Info("import progress",
			"progress", t.job.Progress,
			"processed", processed,
			"total", t.job.TotalRecords,
		)
	}
	return t.save(ctx)
}

// RowFailed counts a failed row and logs it against the job.
func (t *Tracker) RowFailed(sheet string, row int, err error) {
	t.job.ErrorRecords++
	t.job.AppendError(fmt.Sprintf("row %d in sheet %q: %v", row, sheet, err))
	t.logger.WithError(err).Debug("row failed", "sheet", sheet, "row", row)
}

// SheetFailed logs an error that affected a whole sheet.
func (t *Tracker) SheetFailed(sheet string, err error) {
	t.job.AppendError(fmt.Sprintf("sheet %q: %v", sheet, err))
	t.logger.WithError(err).Warn("sheet failed", "sheet", sheet)
}

// Warn logs a suspicious but stored row.
func (t *Tracker) Warn(sheet string, row int, msg string) {
	t.logger.Warn(msg, "sheet", sheet, "row", row)
}

// Note appends an informational entry to the job's error log.
func (t *Tracker) Note(msg string) {
	t.job.AppendError(msg)
}

// Complete marks the job completed and persists it even if ctx is cancelled.
func (t *Tracker) Complete(ctx context.Context) error {
	if err := t.job.Complete(t.now()); err != nil {
		return err
	}
	t.logger.Info("import completed",
		"new", t.job.NewRecords,
		"duplicates", t.job.DuplicateRecords,
		"errors", t.job.ErrorRecords,
		"aggregation_skipped", t.job.AggregationSkipped,
	)
	return t.save(context.WithoutCancel(ctx))
}

// Fail marks the job failed with cause and persists it even if ctx is cancelled.
func (t *Tracker) Fail(ctx context.Context, cause error) error {
	if err := t.job.Fail(cause.Error(), t.now()); err != nil {
		return err
	}
	t.logger.WithError(cause).Error("import failed")
	return t.save(context.WithoutCancel(ctx))
}

// Save persists the job as it is.
func (t *Tracker) Save(ctx context.Context) error {
	return t.save(context.WithoutCancel(ctx))
}

func (t *Tracker) save(ctx context.Context) error {
	if err := t.imports.UpdateImport(ctx, t.job); err != nil {
		return fmt.Errorf("save import %s: %w", t.job.ID, err)
	}
	return nil
}
