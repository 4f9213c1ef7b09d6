package helpers

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRow struct {
	Name    string    `header:"NAME"`
	Value   float64   `header:"VALUE"`
	When    time.Time `header:"WHEN"`
	Private string
}

func TestNewFormatter(t *testing.T) {
	for _, f := range []OutputFormat{FormatTable, FormatJSON, FormatCSV} {
		got, err := NewFormatter(f)
		require.NoError(t, err)
		assert.NotNil(t, got)
	}
	_, err := NewFormatter("yaml")
	assert.Error(t, err)
}

func TestTableFormatter(t *testing.T) {
	rows := []testRow{
		{Name: "bench-1", Value: 1.5, When: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), Private: "x"},
		{Name: "bench-22", Value: 10},
	}

	var buf bytes.Buffer
	require.NoError(t, TableFormatter{}.Format(rows, &buf))

	want := "NAME       VALUE   WHEN\n" +
		"bench-1    1.50    2024-01-15T10:00:00Z\n" +
		"bench-22   10.00   -\n"
	assert.Equal(t, want, buf.String())
}

func TestCSVFormatter(t *testing.T) {
	rows := []*testRow{{Name: "a,b", Value: 2}}

	var buf bytes.Buffer
	require.NoError(t, CSVFormatter{}.Format(rows, &buf))
	assert.Equal(t, "NAME,VALUE,WHEN\n\"a,b\",2.00,-\n", buf.String())
}

func TestFormatters_EmptyAndInvalid(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TableFormatter{}.Format([]testRow{}, &buf))
	assert.Empty(t, buf.String())

	assert.Error(t, TableFormatter{}.Format(testRow{}, &buf))
	assert.Error(t, CSVFormatter{}.Format([]int{1}, &buf))
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSONFormatter{}.Format([]testRow{{Name: "x"}}, &buf))

	var back []testRow
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "x", back[0].Name)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "500µs", FormatDuration(500*time.Microsecond))
	assert.Equal(t, "12.5ms", FormatDuration(12500*time.Microsecond))
	assert.Equal(t, "1.50s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m5s", FormatDuration(125*time.Second))
}

func TestValidateFormat(t *testing.T) {
	supported := []OutputFormat{FormatTable, FormatJSON}
	assert.NoError(t, ValidateFormat("json", supported))
	err := ValidateFormat("csv", supported)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table, json")
}
