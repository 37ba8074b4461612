// Package export renders tabular registry data as CSV, Excel or PDF.
package export

import (
	"fmt"
	"io"
	"strings"
)

// Format identifies an export file format
type Format string

const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "xlsx"
	FormatPDF   Format = "pdf"
)

// ParseFormat accepts the format names used in query strings
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatExcel, nil
	case "pdf":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type for the format
func (f Format) ContentType() string {
	switch f {
	case FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv"
	}
}

// Table is a titled grid of values. Columns are machine names; Labels, when
// set, are shown in headers instead. Summary is only rendered in PDF.
type Table struct {
	Title   string
	Columns []string
	Labels  []string
	Rows    [][]any
	Summary []SummaryItem
}

func (t Table) headers() []string {
	if len(t.Labels) == len(t.Columns) {
		return t.Labels
	}
	return t.Columns
}

// Write renders the table in the requested format
func Write(w io.Writer, format Format, table Table) error {
	switch format {
	case FormatCSV:
		e := NewCSVExporter(w, DefaultCSVOptions())
		if err := e.WriteHeader(table.headers()); err != nil {
			return err
		}
		if err := e.WriteRows(table.Rows); err != nil {
			return err
		}
		return e.Flush()

	case FormatExcel:
		opts := DefaultExcelOptions()
		if table.Title != "" {
			opts.SheetName = sheetName(table.Title)
		}
		e := NewExcelExporter(opts)
		defer e.Close()
		if err := e.WriteHeader(table.headers()); err != nil {
			return err
		}
		if err := e.WriteRows(table.Rows); err != nil {
			return err
		}
		return e.WriteTo(w)

	case FormatPDF:
		opts := DefaultPDFOptions()
		opts.Title = table.Title
		g := NewPDFGenerator(opts)
		if err := g.GenerateReport(table.headers(), table.Rows, table.Summary...); err != nil {
			return err
		}
		return g.WriteTo(w)

	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// sheetName trims a title to Excel's 31 character sheet name limit
func sheetName(title string) string {
	title = strings.NewReplacer("/", " ", "\\", " ", "?", "", "*", "", "[", "(", "]", ")", ":", " ").Replace(title)
	if len(title) > 31 {
		title = title[:31]
	}
	return title
}
