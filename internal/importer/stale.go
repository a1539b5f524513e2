package importer

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/listenupapp/ledger-server/internal/domain"
	"github.com/listenupapp/ledger-server/internal/logger"
)

// StaleJobs lists jobs still pending or processing whose last update is older
// than olderThan. Such jobs were abandoned by a process that stopped mid-import.
func (im *Importer) StaleJobs(ctx context.Context, olderThan time.Duration) ([]*domain.ImportJob, error) {
	cutoff := im.now().Add(-olderThan)

	var stale []*domain.ImportJob
	for _, status := range []domain.ImportStatus{domain.ImportStatusPending, domain.ImportStatusProcessing} {
		jobs, err := im.imports.ListImportsByStatus(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("list %s imports: %w", status, err)
		}
		for _, job := range jobs {
			if job.UpdatedAt.Before(cutoff) {
				stale = append(stale, job)
			}
		}
	}

	slices.SortFunc(stale, func(a, b *domain.ImportJob) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})
	return stale, nil
}

// FailStale marks every stale job failed and returns them.
func (im *Importer) FailStale(ctx context.Context, olderThan time.Duration) ([]*domain.ImportJob, error) {
	jobs, err := im.StaleJobs(ctx, olderThan)
	if err != nil {
		return nil, err
	}

	now := im.now()
	for _, job := range jobs {
		msg := fmt.Sprintf("abandoned: no progress since %s", job.UpdatedAt.UTC().Format(time.RFC3339))
		if err := job.Fail(msg, now); err != nil {
			return nil, err
		}
		if err := im.imports.UpdateImport(ctx, job); err != nil {
			return nil, fmt.Errorf("fail stale import %s: %w", job.ID, err)
		}
		logger.Wrap(im.logger).WithImport(job.ID, job.UserID).Warn("stale import failed")
	}
	return jobs, nil
}
