package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/ledger-server/internal/domain"
	"github.com/listenupapp/ledger-server/internal/errors"
)

func TestImportThenQuery(t *testing.T) {
	env := newCLIEnv(t)
	file := writeRoyaltyWorkbook(t, env.home, "KDP_Royalties.xlsx",
		royaltyRow("B001", "Amazon.com", "2.50", "USD"),
		royaltyRow("B001", "Amazon.de", "5.00", "EUR"),
	)

	out, err := env.run(t, "--json", "import", "--user", "user-1", file)
	require.NoError(t, err)

	var jobs []domain.ImportJob
	require.NoError(t, json.Unmarshal([]byte(out), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.ImportStatusCompleted, jobs[0].Status)
	assert.Equal(t, "KDP_Royalties.xlsx", jobs[0].FileName)
	assert.Equal(t, 2, jobs[0].NewRecords)

	out, err = env.run(t, "--json", "records", jobs[0].ID)
	require.NoError(t, err)
	var records []domain.SalesRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	assert.Len(t, records, 2)

	out, err = env.run(t, "--json", "book", "--user", "user-1", "B001")
	require.NoError(t, err)
	var book domain.MasterBook
	require.NoError(t, json.Unmarshal([]byte(out), &book))
	assert.Equal(t, "B001", book.Identifier)
	assert.Equal(t, int64(2), book.NetUnitsSold)
	assert.Equal(t, "5", book.RoyaltiesByCurrency["EUR"].String())

	out, err = env.run(t, "books", "--user", "user-1")
	require.NoError(t, err)
	assert.Contains(t, out, "B001")
	assert.Contains(t, out, "Night Train")

	out, err = env.run(t, "jobs", "--user", "user-1")
	require.NoError(t, err)
	assert.Contains(t, out, jobs[0].ID)
	assert.Contains(t, out, "completed")

	out, err = env.run(t, "job", jobs[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, domain.SheetNameEbookRoyalty)
}

func TestImport_ReuploadCountsDuplicates(t *testing.T) {
	env := newCLIEnv(t)
	file := writeRoyaltyWorkbook(t, env.home, "KDP.xlsx", royaltyRow("B001", "Amazon.com", "2.50", "USD"))

	_, err := env.run(t, "import", file)
	require.NoError(t, err)

	out, err := env.run(t, "--json", "import", file)
	require.NoError(t, err)

	var jobs []domain.ImportJob
	require.NoError(t, json.Unmarshal([]byte(out), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, 0, jobs[0].NewRecords)
	assert.Equal(t, 1, jobs[0].DuplicateRecords)
	assert.True(t, jobs[0].AggregationSkipped)
}

func TestImport_MissingFile(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "import", "/nonexistent/KDP.xlsx")
	assert.Error(t, err)
}

func TestImport_UnreadableFileLeavesFailedJob(t *testing.T) {
	env := newCLIEnv(t)
	file := filepath.Join(env.home, "broken.xlsx")
	require.NoError(t, os.WriteFile(file, []byte("not a zip"), 0o644))

	_, err := env.run(t, "import", "--user", "user-1", file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.xlsx failed")

	out, err := env.run(t, "--json", "jobs", "--user", "user-1")
	require.NoError(t, err)
	var jobs []domain.ImportJob
	require.NoError(t, json.Unmarshal([]byte(out), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "broken.xlsx", jobs[0].FileName)
	assert.Equal(t, domain.ImportStatusFailed, jobs[0].Status)
	assert.NotEmpty(t, jobs[0].ErrorLog)
}

func TestBook_NotFound(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "book", "B404")
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))
}

func TestJob_NotFound(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "job", "imp-missing")
	assert.Error(t, err)
}

func TestRates_Offline(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "--json", "rates", "usd", "EUR", "XXX")
	require.NoError(t, err)

	var rows []rateRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 3)

	assert.Equal(t, "USD", rows[0].From)
	assert.Equal(t, "1", rows[0].Rate)
	assert.True(t, rows[1].Found)
	assert.Equal(t, "USD", rows[1].To)
	assert.False(t, rows[2].Found)
}

func TestStale_NoneFound(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "stale", "--older-than", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "No stale imports")
}

func TestInvalidConfigFails(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "--env", "nowhere", "jobs")
	assert.Error(t, err)
}
