package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/listenupapp/ledger-server/internal/domain"
)

var royaltyHeader = []any{
	"Royalty Date", "Title", "Author Name", "ASIN", "Marketplace", "Royalty Type", "Transaction Type",
	"Units Sold", "Units Refunded", "Net Units Sold", "Avg. List Price without tax",
	"Avg. Offer Price without tax", "Avg. File Size (MB)", "Avg. Delivery Cost", "Royalty", "Currency",
}

func royaltyRow(asin, marketplace, royalty, cur string) []any {
	return []any{"2024-01-05", "Night Train", "A. Writer", asin, marketplace, "70%", "Standard",
		"1", "0", "1", "4.99", "4.99", "1.2", "0.15", royalty, cur}
}

// writeRoyaltyWorkbook saves a KDP royalty report with one eBook Royalty sheet.
func writeRoyaltyWorkbook(t *testing.T, dir, name string, rows ...[]any) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := domain.SheetNameEbookRoyalty
	require.NoError(t, f.SetSheetName("Sheet1", sheet))
	all := append([][]any{royaltyHeader}, rows...)
	for r, row := range all {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	path := filepath.Join(dir, name)
	require.NoError(t, f.SaveAs(path))
	return path
}

type cliEnv struct {
	home string
	data string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{"LEDGER_CONFIG", "LEDGER_DATA_PATH", "LEDGER_USER_ID", "LEDGER_ENV", "LEDGER_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	return &cliEnv{home: home, data: filepath.Join(home, "data")}
}

// run executes one CLI invocation with its own container.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	base := []string{
		"--data", e.data,
		"--env-file", filepath.Join(e.home, "missing.env"),
		"--log-level", "error",
		"--offline",
	}

	cc := newCommandContext()
	cmd := newRootCommand(cc)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(base, args...))

	err := cmd.ExecuteContext(context.Background())
	cc.shutdown()
	return out.String(), err
}
