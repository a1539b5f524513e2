package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/listenupapp/ledger-server/internal/domain"
	"github.com/listenupapp/ledger-server/internal/store"
)

// importColumns is the ordered list of columns selected in import queries.
// Must match the scan order in scanImport.
const importColumns = `id, user_id, file_name, dialect, status, progress,
	total_records, processed_records, error_records, duplicate_records, new_records,
	error_log, error_log_overflow, sheets, fingerprint, aggregation_skipped,
	created_at, updated_at, started_at, completed_at`

func scanImport(scanner interface{ Scan(dest ...any) error }) (*domain.ImportJob, error) {
	var job domain.ImportJob

	var (
		dialect     string
		status      string
		errorLog    string
		sheets      string
		skipped     int
		createdAt   string
		updatedAt   string
		startedAt   sql.NullString
		completedAt sql.NullString
	)

	err := scanner.Scan(
		&job.ID,
		&job.UserID,
		&job.FileName,
		&dialect,
		&status,
		&job.Progress,
		&job.TotalRecords,
		&job.ProcessedRecords,
		&job.ErrorRecords,
		&job.DuplicateRecords,
		&job.NewRecords,
		&errorLog,
		&job.ErrorLogOverflow,
		&sheets,
		&job.Fingerprint,
		&skipped,
		&createdAt,
		&updatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Dialect = domain.Dialect(dialect)
	job.Status = domain.ImportStatus(status)
	job.AggregationSkipped = skipped != 0

	if err := json.Unmarshal([]byte(errorLog), &job.ErrorLog); err != nil {
		return nil, fmt.Errorf("decode error log: %w", err)
	}
	if err := json.Unmarshal([]byte(sheets), &job.Sheets); err != nil {
		return nil, fmt.Errorf("decode sheets: %w", err)
	}
	if job.ErrorLog == nil {
		job.ErrorLog = []string{}
	}
	if job.Sheets == nil {
		job.Sheets = map[string]domain.SheetSummary{}
	}

	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if job.StartedAt, err = parseNullableTime(startedAt); err != nil {
		return nil, err
	}
	if job.CompletedAt, err = parseNullableTime(completedAt); err != nil {
		return nil, err
	}
	return &job, nil
}

func importArgs(job *domain.ImportJob) ([]any, error) {
	errorLog := job.ErrorLog
	if errorLog == nil {
		errorLog = []string{}
	}
	errorLogJSON, err := json.Marshal(errorLog)
	if err != nil {
		return nil, err
	}
	sheets := job.Sheets
	if sheets == nil {
		sheets = map[string]domain.SheetSummary{}
	}
	sheetsJSON, err := json.Marshal(sheets)
	if err != nil {
		return nil, err
	}

	return []any{
		job.UserID,
		job.FileName,
		string(job.Dialect),
		string(job.Status),
		job.Progress,
		job.TotalRecords,
		job.ProcessedRecords,
		job.ErrorRecords,
		job.DuplicateRecords,
		job.NewRecords,
		string(errorLogJSON),
		job.ErrorLogOverflow,
		string(sheetsJSON),
		job.Fingerprint,
		boolToInt(job.AggregationSkipped),
		formatTime(job.CreatedAt),
		formatTime(job.UpdatedAt),
		nullTimeString(job.StartedAt),
		nullTimeString(job.CompletedAt),
	}, nil
}

// CreateImport inserts a new import job.
// Returns store.ErrAlreadyExists on duplicate ID.
func (s *Store) CreateImport(ctx context.Context, job *domain.ImportJob) error {
	args, err := importArgs(job)
	if err != nil {
		return err
	}

	_, err = s.execWithRetry(ctx, `
		INSERT INTO imports (
			id, user_id, file_name, dialect, status, progress,
			total_records, processed_records, error_records, duplicate_records, new_records,
			error_log, error_log_overflow, sheets, fingerprint, aggregation_skipped,
			created_at, updated_at, started_at, completed_at
		) VALUES (?, `+placeholders(len(args))+`)`,
		append([]any{job.ID}, args...)...,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists.WithMessage(fmt.Sprintf("import %s already exists", job.ID))
	}
	return err
}

// GetImport retrieves an import job by ID.
// Returns store.ErrNotFound if the job does not exist.
func (s *Store) GetImport(ctx context.Context, id string) (*domain.ImportJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+importColumns+` FROM imports WHERE id = ?`, id)

	job, err := scanImport(row)
	if err != nil {
		return nil, notFound(err, "import %s not found", id)
	}
	return job, nil
}

// UpdateImport performs a full row update on an existing import job.
// Returns store.ErrNotFound if the job does not exist.
func (s *Store) UpdateImport(ctx context.Context, job *domain.ImportJob) error {
	args, err := importArgs(job)
	if err != nil {
		return err
	}

	result, err := s.execWithRetry(ctx, `
		UPDATE imports SET
			user_id = ?, file_name = ?, dialect = ?, status = ?, progress = ?,
			total_records = ?, processed_records = ?, error_records = ?,
			duplicate_records = ?, new_records = ?,
			error_log = ?, error_log_overflow = ?, sheets = ?, fingerprint = ?,
			aggregation_skipped = ?,
			created_at = ?, updated_at = ?, started_at = ?, completed_at = ?
		WHERE id = ?`,
		append(args, job.ID)...,
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound.WithMessage(fmt.Sprintf("import %s not found", job.ID))
	}
	return nil
}

// ListImports returns a user's import jobs, newest first.
func (s *Store) ListImports(ctx context.Context, userID string) ([]*domain.ImportJob, error) {
	return s.queryImports(ctx,
		`SELECT `+importColumns+` FROM imports WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
}

// ListImportsByStatus returns every job in the given status, least recently updated first.
func (s *Store) ListImportsByStatus(ctx context.Context, status domain.ImportStatus) ([]*domain.ImportJob, error) {
	return s.queryImports(ctx,
		`SELECT `+importColumns+` FROM imports WHERE status = ? ORDER BY updated_at ASC, id ASC`, string(status))
}

func (s *Store) queryImports(ctx context.Context, query string, args ...any) ([]*domain.ImportJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.ImportJob
	for rows.Next() {
		job, err := scanImport(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListCompletedFingerprints returns the non-empty fingerprints of the user's
// completed jobs, excluding excludeID.
func (s *Store) ListCompletedFingerprints(ctx context.Context, userID, excludeID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint FROM imports
		WHERE user_id = ? AND status = ? AND fingerprint != '' AND id != ?
		ORDER BY created_at ASC`,
		userID, string(domain.ImportStatusCompleted), excludeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fingerprints []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, err
		}
		fingerprints = append(fingerprints, fp)
	}
	return fingerprints, rows.Err()
}
