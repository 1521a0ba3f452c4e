package exchange

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"": FormatCSV, "CSV": FormatCSV, "tsv": FormatTSV, " xlsx ": FormatXLSX}
	for in, want := range cases {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("json")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestWriteDelimitedUsesFixedColumns(t *testing.T) {
	cost := decimal.RequireFromString("42.5")
	rows := []Row{{
		Name:          "Don Julio Anejo",
		Measure:       "Volume",
		ReportingUnit: "6/750ml",
		ItemNumber:    "DJ6",
		Vendor:        "vendor-1",
		LastCost:      &cost,
		Occurrences:   3,
	}}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatTSV, rows))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(Columns, "\t"), lines[0])
	assert.Equal(t, "Don Julio Anejo\tVolume\t6/750ml\t\tDJ6\t\t\t\t\tN\tvendor-1\t42.50\t3", lines[1])

	buf.Reset()
	require.NoError(t, Write(&buf, FormatCSV, rows))
	assert.True(t, strings.HasPrefix(buf.String(), "Name,Measure,Reporting Unit,Category,Item Number,"))
}

func TestReadMatchesHeadersLoosely(t *testing.T) {
	sheet := "reporting unit,NAME,Key Item,last cost,occurrences\n" +
		"6 x 750ml,Don Julio Anejo,y,\"$1,200.00\",4\n" +
		",,,,\n" +
		"each,Romaine Hearts,,,\n" +
		"each,,,,\n" +
		"each,Limes,maybe,,\n"

	rows, rowErrs, err := Read(strings.NewReader(sheet), FormatCSV)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, "Don Julio Anejo", rows[0].Name)
	assert.Equal(t, "6 x 750ml", rows[0].ReportingUnit)
	assert.True(t, rows[0].KeyItem)
	require.NotNil(t, rows[0].LastCost)
	assert.True(t, rows[0].LastCost.Equal(decimal.NewFromInt(1200)))
	assert.Equal(t, 4, rows[0].Occurrences)

	assert.Equal(t, 4, rows[1].Line)
	assert.Nil(t, rows[1].LastCost)

	require.Len(t, rowErrs, 2)
	assert.Equal(t, 5, rowErrs[0].Line)
	assert.Equal(t, "name is required", rowErrs[0].Message)
	assert.Equal(t, 6, rowErrs[1].Line)
}

func TestReadStripsByteOrderMark(t *testing.T) {
	sheet := "\ufeffName,Category\nRomaine Hearts,food\n"
	rows, rowErrs, err := Read(strings.NewReader(sheet), FormatCSV)
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, rows, 1)
	assert.Equal(t, "Romaine Hearts", rows[0].Name)
	assert.Equal(t, "food", rows[0].Category)
}

func TestReadRequiresNameColumn(t *testing.T) {
	_, _, err := Read(strings.NewReader("Measure\tCategory\nEach\tfood\n"), FormatTSV)
	assert.Error(t, err)

	_, _, err = Read(strings.NewReader(""), FormatCSV)
	assert.Error(t, err)
}

func TestXLSXRoundTrip(t *testing.T) {
	rows := []Row{
		{Name: "Mystery Widget", Measure: "Each", ReportingUnit: "12ct", Occurrences: 2},
		{Name: "Romaine Hearts", KeyItem: true},
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, rows))

	got, rowErrs, err := Read(bytes.NewReader(buf.Bytes()), FormatXLSX)
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, got, 2)
	assert.Equal(t, "Mystery Widget", got[0].Name)
	assert.Equal(t, "12ct", got[0].ReportingUnit)
	assert.Equal(t, 2, got[0].Occurrences)
	assert.True(t, got[1].KeyItem)
}
