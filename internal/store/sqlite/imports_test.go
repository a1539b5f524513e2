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

func createTestImport(t *testing.T, s *Store, id, userID string, at time.Time) *domain.ImportJob {
	t.Helper()
	job := domain.NewImportJob(id, userID, id+".xlsx", at)
	require.NoError(t, s.CreateImport(context.Background(), job))
	return job
}

func TestCreateAndGetImport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := domain.NewImportJob("imp-1", "user-1", "KDP_Royalties.xlsx", fixedTime)
	require.NoError(t, s.CreateImport(ctx, job))

	got, err := s.GetImport(ctx, "imp-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "KDP_Royalties.xlsx", got.FileName)
	assert.Equal(t, domain.ImportStatusPending, got.Status)
	assert.Equal(t, domain.DialectUnknown, got.Dialect)
	assert.Empty(t, got.ErrorLog)
	assert.NotNil(t, got.Sheets)
	assert.Nil(t, got.StartedAt)
	assert.True(t, got.CreatedAt.Equal(fixedTime))
}

func TestCreateImport_Duplicate(t *testing.T) {
	s := newTestStore(t)
	createTestImport(t, s, "imp-1", "user-1", fixedTime)

	err := s.CreateImport(context.Background(), domain.NewImportJob("imp-1", "user-1", "x.xlsx", fixedTime))
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestGetImport_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetImport(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateImport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job := createTestImport(t, s, "imp-1", "user-1", fixedTime)

	require.NoError(t, job.Start(fixedTime.Add(time.Second)))
	job.Dialect = domain.DialectRoyaltiesEstimator
	job.TotalRecords = 20
	require.NoError(t, job.SetProgress(10, 20, fixedTime.Add(2*time.Second)))
	job.AppendError(`row 4 in sheet "eBook Royalty": invalid date "soon"`)
	job.Sheets["eBook Royalty"] = domain.SheetSummary{Kind: domain.SheetEbookRoyalty, Rows: 20, Kept: 19, Failed: 1}
	job.Fingerprint = "abc"
	job.AggregationSkipped = true
	require.NoError(t, s.UpdateImport(ctx, job))

	got, err := s.GetImport(ctx, "imp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ImportStatusProcessing, got.Status)
	assert.Equal(t, 50, got.Progress)
	assert.Equal(t, 10, got.ProcessedRecords)
	assert.Equal(t, []string{`row 4 in sheet "eBook Royalty": invalid date "soon"`}, got.ErrorLog)
	assert.Equal(t, 19, got.Sheets["eBook Royalty"].Kept)
	assert.Equal(t, "abc", got.Fingerprint)
	assert.True(t, got.AggregationSkipped)
	require.NotNil(t, got.StartedAt)
}

func TestUpdateImport_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateImport(context.Background(), domain.NewImportJob("missing", "user-1", "x.xlsx", fixedTime))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListImports(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestImport(t, s, "imp-1", "user-1", fixedTime)
	createTestImport(t, s, "imp-2", "user-1", fixedTime.Add(time.Hour))
	createTestImport(t, s, "imp-3", "user-2", fixedTime)

	jobs, err := s.ListImports(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "imp-2", jobs[0].ID)
	assert.Equal(t, "imp-1", jobs[1].ID)

	pending, err := s.ListImportsByStatus(ctx, domain.ImportStatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestListCompletedFingerprints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	complete := func(id, userID, fp string) {
		job := createTestImport(t, s, id, userID, fixedTime)
		require.NoError(t, job.Start(fixedTime))
		require.NoError(t, job.Complete(fixedTime))
		job.Fingerprint = fp
		require.NoError(t, s.UpdateImport(ctx, job))
	}
	complete("imp-1", "user-1", "fp-a")
	complete("imp-2", "user-1", "")
	complete("imp-3", "user-2", "fp-b")
	complete("imp-4", "user-1", "fp-c")

	failed := createTestImport(t, s, "imp-5", "user-1", fixedTime)
	require.NoError(t, failed.Fail("boom", fixedTime))
	failed.Fingerprint = "fp-d"
	require.NoError(t, s.UpdateImport(ctx, failed))

	fps, err := s.ListCompletedFingerprints(ctx, "user-1", "imp-4")
	require.NoError(t, err)
	assert.Equal(t, []string{"fp-a"}, fps)
}
