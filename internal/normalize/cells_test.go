package normalize

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	assert.Equal(t, "", Text(""))
	assert.Equal(t, "", Text("N/A"))
	assert.Equal(t, "", Text(" null "))
	assert.Equal(t, "Amazon.com", Text(" Amazon.com "))
}

func TestDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "0"},
		{"N/A", "0"},
		{"n/a", "0"},
		{"null", "0"},
		{"2.50", "2.5"},
		{"$1,234.56", "1234.56"},
		{"(1.50)", "-1.5"},
		{" 3 ", "3"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Decimal(tt.in)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}

	_, err := Decimal("abc")
	assert.Error(t, err)
}

func TestInt(t *testing.T) {
	n, err := Int("12.0")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	n, err = Int("N/A")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = Int("twelve")
	assert.Error(t, err)
}

func TestDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-01-05", "2024-01-05"},
		{"2024-1-5", "2024-01-05"},
		{"2024-01-05T10:00:00Z", "2024-01-05"},
		{"01/05/2024", "2024-01-05"},
		{"2024-03", "2024-03-01"},
		{"45296", "2024-01-05"},
		{"45296.5", "2024-01-05"},
		{"", ""},
		{"N/A", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Date(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDate_Invalid(t *testing.T) {
	for _, in := range []string{"yesterday", "2024-13-01", "02/30/2024", "0"} {
		t.Run(in, func(t *testing.T) {
			_, err := Date(in)
			assert.Error(t, err)
		})
	}
}
