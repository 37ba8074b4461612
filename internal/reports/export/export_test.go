package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func ledger() Table {
	at := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	buyer := "u-2"
	return Table{
		Title:   "Transactions",
		Columns: []string{"id", "type", "to_user_id", "amount", "price", "created_at"},
		Labels:  []string{"ID", "Type", "To", "Amount", "Price", "Created"},
		Rows: [][]any{
			{"tx-1", "minting", (*string)(nil), 150.0, 17.5, at},
			{"tx-2", "purchase", &buyer, 150.0, 17.5, &at},
		},
		Summary: []SummaryItem{{Label: "Transactions", Value: 2}},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		err  bool
	}{
		{"", FormatCSV, false},
		{"CSV", FormatCSV, false},
		{"excel", FormatExcel, false},
		{" xlsx ", FormatExcel, false},
		{"pdf", FormatPDF, false},
		{"docx", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "application/pdf", FormatPDF.ContentType())
	assert.Equal(t, "text/csv", FormatCSV.ContentType())
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, ledger()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"ID", "Type", "To", "Amount", "Price", "Created"}, records[0])
	assert.Equal(t, []string{"tx-1", "minting", "", "150", "17.5", "2025-03-01T10:30:00Z"}, records[1])
	assert.Equal(t, "u-2", records[2][2])
	assert.Equal(t, "2025-03-01T10:30:00Z", records[2][5])
}

func TestWriteCSVFallsBackToColumnNames(t *testing.T) {
	table := ledger()
	table.Labels = []string{"only one"}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, table))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, table.Columns, records[0])
}

func TestWriteExcel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatExcel, ledger()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Transactions"}, f.GetSheetList())

	header, err := f.GetCellValue("Transactions", "A1")
	require.NoError(t, err)
	assert.Equal(t, "ID", header)

	id, err := f.GetCellValue("Transactions", "A3")
	require.NoError(t, err)
	assert.Equal(t, "tx-2", id)

	to, err := f.GetCellValue("Transactions", "C2")
	require.NoError(t, err)
	assert.Empty(t, to)

	rows, err := f.GetRows("Transactions")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatPDF, ledger()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}

func TestWritePDFPaginatesLongTables(t *testing.T) {
	table := ledger()
	for i := 0; i < 200; i++ {
		table.Rows = append(table.Rows, table.Rows[0])
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatPDF, table))
	assert.Greater(t, bytes.Count(buf.Bytes(), []byte("/Type /Page\n")), 1)
}

func TestWriteRejectsUnknownFormat(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, Format("docx"), ledger()))
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "Credits (2025) Q1", sheetName("Credits [2025] Q1"))
	assert.Len(t, sheetName("A very long ledger title that will not fit"), 31)
}
