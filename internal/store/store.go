// Package store defines the persistence boundary of the ledger: import jobs, sales
// records and master books. The sqlite subpackage implements it.
package store

import (
	"context"
	"time"

	"github.com/listenupapp/ledger-server/internal/domain"
)

// ImportStore persists import jobs.
type ImportStore interface {
	CreateImport(ctx context.Context, job *domain.ImportJob) error
	GetImport(ctx context.Context, id string) (*domain.ImportJob, error)
	UpdateImport(ctx context.Context, job *domain.ImportJob) error
	ListImports(ctx context.Context, userID string) ([]*domain.ImportJob, error)
	ListImportsByStatus(ctx context.Context, status domain.ImportStatus) ([]*domain.ImportJob, error)

	// ListCompletedFingerprints returns the non-empty fingerprints of the user's
	// completed jobs other than excludeID.
	ListCompletedFingerprints(ctx context.Context, userID, excludeID string) ([]string, error)
}

// RecordStore persists sales records.
type RecordStore interface {
	// UpsertRecord inserts rec, or updates the user's record with the same dedup key
	// in place. On update rec takes the stored record's ID, ImportID, CreatedAt and MergedAt.
	UpsertRecord(ctx context.Context, rec *domain.SalesRecord) (inserted bool, err error)
	GetRecordByKey(ctx context.Context, userID, dedupKey string) (*domain.SalesRecord, error)
	ListRecordsByImport(ctx context.Context, importID string) ([]*domain.SalesRecord, error)
	ListUnmergedRecords(ctx context.Context, importID string) ([]*domain.SalesRecord, error)
	MarkRecordsMerged(ctx context.Context, ids []string, at time.Time) error
}

// MasterBookStore persists master book aggregates.
type MasterBookStore interface {
	GetMasterBook(ctx context.Context, userID, identifier string, format domain.Format) (*domain.MasterBook, error)

	// FindMasterBooks returns the user's books whose identifier or ISBN equals
	// identifier, most recently updated first.
	FindMasterBooks(ctx context.Context, userID, identifier string) ([]*domain.MasterBook, error)

	// SaveMasterBook inserts or fully updates a book keyed by its ID.
	SaveMasterBook(ctx context.Context, book *domain.MasterBook) error
	ListMasterBooks(ctx context.Context, userID string) ([]*domain.MasterBook, error)
}

// Store is the full persistence surface.
type Store interface {
	ImportStore
	RecordStore
	MasterBookStore
	Close() error
}
