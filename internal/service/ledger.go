// Package service exposes the ledger's outward operations: classifying and importing
// workbooks, and reading back jobs, records and master books.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/listenupapp/ledger-server/internal/classifier"
	"github.com/listenupapp/ledger-server/internal/domain"
	"github.com/listenupapp/ledger-server/internal/errors"
	"github.com/listenupapp/ledger-server/internal/id"
	"github.com/listenupapp/ledger-server/internal/importer"
	"github.com/listenupapp/ledger-server/internal/store"
	"github.com/listenupapp/ledger-server/internal/validation"
	"github.com/listenupapp/ledger-server/internal/workbook"
)

// ImportRequest is the validated input of an import.
type ImportRequest struct {
	UserID   string `json:"user_id" validate:"required,max=128"`
	FileName string `json:"file_name" validate:"required,max=255"`
}

// LedgerService orchestrates imports and read access to their results.
type LedgerService struct {
	store     store.Store
	queue     *importer.Queue
	validator *validation.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(st store.Store, queue *importer.Queue, validator *validation.Validator, logger *slog.Logger) *LedgerService {
	if validator == nil {
		validator = validation.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{
		store:     st,
		queue:     queue,
		validator: validator,
		logger:    logger,
		now:       time.Now,
	}
}

// Classify reports which export dialect wb is.
func (s *LedgerService) Classify(wb *workbook.Workbook) domain.Dialect {
	return classifier.Classify(wb)
}

// ProcessImport creates a pending job for wb and queues it. It returns as soon as
// the job is queued; poll GetImport for progress.
func (s *LedgerService) ProcessImport(ctx context.Context, wb *workbook.Workbook, fileName, userID string) (*domain.ImportJob, error) {
	if wb == nil {
		return nil, errors.Validation("workbook is required")
	}
	job, err := s.createJob(ctx, fileName, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.enqueue(ctx, job, wb); err != nil {
		return nil, err
	}
	return job, nil
}

// ProcessImportSync is ProcessImport that waits for the job to finish and returns
// its final state.
func (s *LedgerService) ProcessImportSync(ctx context.Context, wb *workbook.Workbook, fileName, userID string) (*domain.ImportJob, error) {
	if wb == nil {
		return nil, errors.Validation("workbook is required")
	}
	job, err := s.createJob(ctx, fileName, userID)
	if err != nil {
		return nil, err
	}
	done, err := s.enqueue(ctx, job, wb)
	if err != nil {
		return nil, err
	}
	return s.wait(ctx, job, done)
}

// ProcessImportFile records a pending job for the upload in r before reading it.
// An upload that is not a readable workbook fails that job, which is returned
// without an error. Otherwise the job is queued like ProcessImport.
func (s *LedgerService) ProcessImportFile(ctx context.Context, r io.Reader, fileName, userID string) (*domain.ImportJob, error) {
	job, wb, err := s.openUpload(ctx, r, fileName, userID)
	if err != nil || wb == nil {
		return job, err
	}
	if _, err := s.enqueue(ctx, job, wb); err != nil {
		return nil, err
	}
	return job, nil
}

// ProcessImportFileSync is ProcessImportFile that waits for the job to finish.
func (s *LedgerService) ProcessImportFileSync(ctx context.Context, r io.Reader, fileName, userID string) (*domain.ImportJob, error) {
	job, wb, err := s.openUpload(ctx, r, fileName, userID)
	if err != nil || wb == nil {
		return job, err
	}
	done, err := s.enqueue(ctx, job, wb)
	if err != nil {
		return nil, err
	}
	return s.wait(ctx, job, done)
}

// openUpload creates the job and reads r. A nil workbook with a nil error means
// the job was failed and saved.
func (s *LedgerService) openUpload(ctx context.Context, r io.Reader, fileName, userID string) (*domain.ImportJob, *workbook.Workbook, error) {
	if r == nil {
		return nil, nil, errors.Validation("upload is required")
	}
	job, err := s.createJob(ctx, fileName, userID)
	if err != nil {
		return nil, nil, err
	}

	wb, err := workbook.Read(r, fileName)
	if err == nil {
		return job, wb, nil
	}

	s.logger.Warn("unreadable upload", "import_id", job.ID, "file", fileName, "error", err)
	if err := s.failJob(ctx, job, err.Error()); err != nil {
		return nil, nil, err
	}
	return job, nil, nil
}

func (s *LedgerService) createJob(ctx context.Context, fileName, userID string) (*domain.ImportJob, error) {
	if err := s.validator.Validate(ImportRequest{UserID: userID, FileName: fileName}); err != nil {
		return nil, err
	}

	jobID, err := id.Generate(id.PrefixImport)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "generate import id")
	}
	job := domain.NewImportJob(jobID, userID, fileName, s.now())
	if err := s.store.CreateImport(ctx, job); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "create import")
	}
	return job, nil
}

// failJob moves a job that never ran to failed and saves it.
func (s *LedgerService) failJob(ctx context.Context, job *domain.ImportJob, msg string) error {
	if err := job.Fail(msg, s.now()); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "fail import")
	}
	if err := s.store.UpdateImport(context.WithoutCancel(ctx), job); err != nil {
		return errors.Wrapf(err, errors.CodeInternal, "save failed import %s", job.ID)
	}
	return nil
}

func (s *LedgerService) enqueue(ctx context.Context, job *domain.ImportJob, wb *workbook.Workbook) (<-chan error, error) {
	done, err := s.queue.Submit(job.Clone(), wb)
	if err != nil {
		if failErr := s.failJob(ctx, job, fmt.Sprintf("not queued: %v", err)); failErr != nil {
			s.logger.Error("failed to mark unqueued import", "import_id", job.ID, "error", failErr)
		}
		return nil, errors.Wrap(err, errors.CodeUnavailable, "import not queued")
	}

	s.logger.Info("import queued",
		"import_id", job.ID,
		"user_id", job.UserID,
		"file", job.FileName,
		"sheets", len(wb.Sheets),
	)
	return done, nil
}

func (s *LedgerService) wait(ctx context.Context, job *domain.ImportJob, done <-chan error) (*domain.ImportJob, error) {
	select {
	case err := <-done:
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeInternal, "import %s", job.ID)
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.GetImport(ctx, job.ID)
}

// GetImport returns a job by ID.
func (s *LedgerService) GetImport(ctx context.Context, importID string) (*domain.ImportJob, error) {
	if err := s.validator.Var("import_id", importID, "required"); err != nil {
		return nil, err
	}
	job, err := s.store.GetImport(ctx, importID)
	if err != nil {
		return nil, storeError(err, "import %s", importID)
	}
	return job, nil
}

// ListImports returns a user's jobs, newest first.
func (s *LedgerService) ListImports(ctx context.Context, userID string) ([]*domain.ImportJob, error) {
	if err := s.validator.Var("user_id", userID, "required"); err != nil {
		return nil, err
	}
	jobs, err := s.store.ListImports(ctx, userID)
	if err != nil {
		return nil, storeError(err, "imports of %s", userID)
	}
	return jobs, nil
}

// GetImportRecords returns the records currently attributed to an import.
func (s *LedgerService) GetImportRecords(ctx context.Context, importID string) ([]*domain.SalesRecord, error) {
	if _, err := s.GetImport(ctx, importID); err != nil {
		return nil, err
	}
	records, err := s.store.ListRecordsByImport(ctx, importID)
	if err != nil {
		return nil, storeError(err, "records of %s", importID)
	}
	return records, nil
}

// GetMasterBooks returns all of a user's master books.
func (s *LedgerService) GetMasterBooks(ctx context.Context, userID string) ([]*domain.MasterBook, error) {
	if err := s.validator.Var("user_id", userID, "required"); err != nil {
		return nil, err
	}
	books, err := s.store.ListMasterBooks(ctx, userID)
	if err != nil {
		return nil, storeError(err, "master books of %s", userID)
	}
	return books, nil
}

// GetMasterBook looks a book up by platform identifier or ISBN. When several formats
// match, the most recently updated wins. A missing book is (nil, nil).
func (s *LedgerService) GetMasterBook(ctx context.Context, userID, identifier string) (*domain.MasterBook, error) {
	if err := s.validator.Var("user_id", userID, "required"); err != nil {
		return nil, err
	}
	if err := s.validator.Var("identifier", identifier, "required"); err != nil {
		return nil, err
	}

	books, err := s.store.FindMasterBooks(ctx, userID, identifier)
	if err != nil {
		return nil, storeError(err, "master book %s", identifier)
	}
	if len(books) == 0 {
		return nil, nil
	}
	return books[0], nil
}

// storeError maps a storage error to a coded ledger error.
func storeError(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errors.Wrap(err, errors.CodeNotFound, what+" not found")
	case errors.Is(err, store.ErrInvalidInput):
		return errors.Wrap(err, errors.CodeValidation, "invalid "+what)
	default:
		return errors.Wrap(err, errors.CodeInternal, "load "+what)
	}
}
