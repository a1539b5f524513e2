package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/ledger-server/internal/di/providers"
	"github.com/listenupapp/ledger-server/internal/domain"
	"github.com/listenupapp/ledger-server/internal/watcher"
	"github.com/listenupapp/ledger-server/internal/workbook"
)

type stubRunner struct {
	status domain.ImportStatus
	err    error
	calls  []string
}

func (r *stubRunner) ProcessImportFileSync(ctx context.Context, upload io.Reader, fileName, userID string) (*domain.ImportJob, error) {
	r.calls = append(r.calls, fileName+"@"+userID)
	if r.err != nil {
		return nil, r.err
	}
	job := domain.NewImportJob("imp-1", userID, fileName, time.Now())
	if _, err := workbook.Read(upload, fileName); err != nil {
		if failErr := job.Fail(err.Error(), time.Now()); failErr != nil {
			return nil, failErr
		}
		return job, nil
	}
	job.Status = r.status
	if r.status == domain.ImportStatusFailed {
		job.AppendError("no recognizable sheets")
	}
	return job, nil
}

func newTestInbox(t *testing.T, runner importRunner) *inbox {
	t.Helper()
	return &inbox{
		runner: runner,
		dir:    t.TempDir(),
		userID: "user-1",
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestInbox_CompletedGoesToProcessed(t *testing.T) {
	runner := &stubRunner{status: domain.ImportStatusCompleted}
	in := newTestInbox(t, runner)
	path := writeRoyaltyWorkbook(t, in.dir, "KDP.xlsx", royaltyRow("B001", "Amazon.com", "2.50", "USD"))

	dest, err := in.handle(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, providers.ProcessedDir, dest)
	assert.Equal(t, []string{"KDP.xlsx@user-1"}, runner.calls)
	assert.NoFileExists(t, path)
	assert.FileExists(t, filepath.Join(in.dir, providers.ProcessedDir, "KDP.xlsx"))
}

func TestInbox_FailedJobGoesToFailed(t *testing.T) {
	in := newTestInbox(t, &stubRunner{status: domain.ImportStatusFailed})
	path := writeRoyaltyWorkbook(t, in.dir, "KDP.xlsx", royaltyRow("B001", "Amazon.com", "2.50", "USD"))

	dest, err := in.handle(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, providers.FailedDir, dest)
	assert.FileExists(t, filepath.Join(in.dir, providers.FailedDir, "KDP.xlsx"))
}

func TestInbox_UnreadableWorkbookGoesToFailed(t *testing.T) {
	runner := &stubRunner{status: domain.ImportStatusCompleted}
	in := newTestInbox(t, runner)
	path := filepath.Join(in.dir, "broken.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	dest, err := in.handle(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, providers.FailedDir, dest)
	assert.Equal(t, []string{"broken.xlsx@user-1"}, runner.calls)
	assert.FileExists(t, filepath.Join(in.dir, providers.FailedDir, "broken.xlsx"))
}

func TestInbox_InterruptedImportStaysInInbox(t *testing.T) {
	in := newTestInbox(t, &stubRunner{err: context.Canceled})
	path := writeRoyaltyWorkbook(t, in.dir, "KDP.xlsx", royaltyRow("B001", "Amazon.com", "2.50", "USD"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest, err := in.handle(ctx, path)
	require.NoError(t, err)
	assert.Empty(t, dest)
	assert.FileExists(t, path)
}

func TestInbox_RunnerErrorGoesToFailed(t *testing.T) {
	in := newTestInbox(t, &stubRunner{err: errors.New("queue closed")})
	path := writeRoyaltyWorkbook(t, in.dir, "KDP.xlsx", royaltyRow("B001", "Amazon.com", "2.50", "USD"))

	dest, err := in.handle(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, providers.FailedDir, dest)
}

func TestInbox_MoveKeepsExistingFile(t *testing.T) {
	in := newTestInbox(t, &stubRunner{status: domain.ImportStatusCompleted})
	processed := filepath.Join(in.dir, providers.ProcessedDir)
	require.NoError(t, os.MkdirAll(processed, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(processed, "KDP.xlsx"), []byte("earlier"), 0o644))

	path := filepath.Join(in.dir, "KDP.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("later"), 0o644))

	target, err := in.move(path, providers.ProcessedDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(processed, "KDP-20240301T120000.000.xlsx"), target)

	earlier, err := os.ReadFile(filepath.Join(processed, "KDP.xlsx"))
	require.NoError(t, err)
	assert.Equal(t, "earlier", string(earlier))
}

func TestWatchLoop_StopsOnCancel(t *testing.T) {
	runner := &stubRunner{status: domain.ImportStatusCompleted}
	in := newTestInbox(t, runner)
	path := writeRoyaltyWorkbook(t, in.dir, "KDP.xlsx", royaltyRow("B001", "Amazon.com", "2.50", "USD"))

	events := make(chan watcher.Event, 1)
	errs := make(chan error, 1)
	events <- watcher.Event{Path: path}
	errs <- errors.New("overflow")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watchLoop(ctx, events, errs, in) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(in.dir, providers.ProcessedDir, "KDP.xlsx"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop did not stop")
	}
}
