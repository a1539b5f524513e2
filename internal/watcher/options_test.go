package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptions_Defaults(t *testing.T) {
	opts := Options{}
	opts.setDefaults()

	assert.True(t, opts.IgnoreHidden, "Should ignore hidden files by default")
	assert.Equal(t, DefaultSettleDelay, opts.SettleDelay)
	assert.Equal(t, []string{".xlsx"}, opts.Extensions)
	assert.Contains(t, opts.IgnorePatterns, "~$*", "Should ignore Excel lock files by default")
	assert.Contains(t, opts.IgnorePatterns, "*.tmp", "Should ignore *.tmp by default")
}

func TestOptions_CustomValues(t *testing.T) {
	opts := Options{
		IgnoreHidden:   false,
		SettleDelay:    200 * time.Millisecond,
		IgnorePatterns: []string{"*.bak"},
		Extensions:     []string{".xlsx", ".xlsm"},
	}
	opts.setDefaults()

	assert.False(t, opts.IgnoreHidden, "Custom ignore hidden should be preserved")
	assert.Equal(t, 200*time.Millisecond, opts.SettleDelay, "Custom settle delay should be preserved")
	assert.Equal(t, []string{"*.bak"}, opts.IgnorePatterns)
	assert.Len(t, opts.Extensions, 2)
}

func TestOptions_Accepts(t *testing.T) {
	opts := Options{}
	opts.setDefaults()

	tests := []struct {
		name   string
		path   string
		expect bool
	}{
		{"workbook", "/inbox/KDP_Royalties.xlsx", true},
		{"upper-case extension", "/inbox/REPORT.XLSX", true},
		{"hidden file", "/inbox/.KDP.xlsx", false},
		{"excel lock file", "/inbox/~$KDP_Royalties.xlsx", false},
		{"partial download", "/inbox/KDP.xlsx.part", false},
		{"csv", "/inbox/KDP.csv", false},
		{"legacy excel", "/inbox/KDP.xls", false},
		{"no extension", "/inbox/README", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, opts.accepts(tt.path))
		})
	}
}

func TestOptions_ShouldIgnore_NoIgnoreHidden(t *testing.T) {
	opts := Options{
		IgnoreHidden:   false,
		IgnorePatterns: []string{},
	}
	opts.setDefaults()

	assert.False(t, opts.shouldIgnore("/inbox/.hidden.xlsx"), "Should not ignore hidden when disabled")
	assert.True(t, opts.accepts("/inbox/.hidden.xlsx"))
}
