package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExcelExporter exports data to a single-sheet workbook
type ExcelExporter struct {
	file    *excelize.File
	options ExcelOptions
	columns int
}

// ExcelOptions configures Excel export behavior
type ExcelOptions struct {
	SheetName      string            `json:"sheet_name"`
	FreezeHeader   bool              `json:"freeze_header"`
	AutoFilter     bool              `json:"auto_filter"`
	AutoWidth      bool              `json:"auto_width"`
	NumberFormat   string            `json:"number_format"`
	DateTimeFormat string            `json:"date_time_format"`
	HeaderStyle    *ExcelStyleConfig `json:"header_style,omitempty"`
}

// ExcelStyleConfig defines style for cells
type ExcelStyleConfig struct {
	FontBold  bool   `json:"font_bold"`
	FontSize  int    `json:"font_size"`
	FontColor string `json:"font_color"`
	FillColor string `json:"fill_color"`
	Alignment string `json:"alignment"`
	Border    bool   `json:"border"`
}

// DefaultExcelOptions returns default Excel export options
func DefaultExcelOptions() ExcelOptions {
	return ExcelOptions{
		SheetName:      "Report",
		FreezeHeader:   true,
		AutoFilter:     true,
		AutoWidth:      true,
		NumberFormat:   "#,##0.00",
		DateTimeFormat: "yyyy-mm-dd hh:mm:ss",
		HeaderStyle: &ExcelStyleConfig{
			FontBold:  true,
			FontSize:  11,
			FillColor: "4472C4",
			FontColor: "FFFFFF",
			Alignment: "center",
			Border:    true,
		},
	}
}

// NewExcelExporter creates a new Excel exporter
func NewExcelExporter(options ExcelOptions) *ExcelExporter {
	file := excelize.NewFile()
	// Rename the default sheet
	file.SetSheetName("Sheet1", options.SheetName)

	return &ExcelExporter{
		file:    file,
		options: options,
	}
}

// WriteHeader writes the styled header row
func (e *ExcelExporter) WriteHeader(columns []string) error {
	sheet := e.options.SheetName
	e.columns = len(columns)

	styleID := 0
	if e.options.HeaderStyle != nil {
		id, err := e.createStyle(e.options.HeaderStyle)
		if err != nil {
			return fmt.Errorf("failed to create header style: %w", err)
		}
		styleID = id
	}

	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := e.file.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
		if styleID > 0 {
			if err := e.file.SetCellStyle(sheet, cell, cell, styleID); err != nil {
				return err
			}
		}
	}

	if e.options.FreezeHeader {
		return e.file.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		})
	}
	return nil
}

// WriteRows writes data rows below the header
func (e *ExcelExporter) WriteRows(rows [][]any) error {
	sheet := e.options.SheetName

	numberStyle, err := e.file.NewStyle(&excelize.Style{CustomNumFmt: &e.options.NumberFormat})
	if err != nil {
		return fmt.Errorf("failed to create number style: %w", err)
	}
	timeStyle, err := e.file.NewStyle(&excelize.Style{CustomNumFmt: &e.options.DateTimeFormat})
	if err != nil {
		return fmt.Errorf("failed to create date style: %w", err)
	}

	widths := make(map[int]float64)
	for r, row := range rows {
		for c, val := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			style, err := e.setCellValue(sheet, cell, val)
			if err != nil {
				return fmt.Errorf("failed to set cell value: %w", err)
			}
			switch style {
			case cellNumber:
				err = e.file.SetCellStyle(sheet, cell, cell, numberStyle)
			case cellTime:
				err = e.file.SetCellStyle(sheet, cell, cell, timeStyle)
			}
			if err != nil {
				return err
			}
			if w := float64(len(fmt.Sprint(deref(val)))) * 1.2; w > widths[c] {
				widths[c] = w
			}
		}
	}

	if e.options.AutoFilter && e.columns > 0 {
		lastCol, _ := excelize.CoordinatesToCellName(e.columns, 1)
		if err := e.file.AutoFilter(sheet, "A1:"+lastCol, nil); err != nil {
			return err
		}
	}

	if e.options.AutoWidth {
		for c, width := range widths {
			col, _ := excelize.ColumnNumberToName(c + 1)
			// Min width 10, max width 50
			width = min(max(width, 10), 50)
			if err := e.file.SetColWidth(sheet, col, col, width); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteTo writes the workbook to a writer
func (e *ExcelExporter) WriteTo(w io.Writer) error {
	return e.file.Write(w)
}

// Close closes the Excel file
func (e *ExcelExporter) Close() error {
	return e.file.Close()
}

func (e *ExcelExporter) createStyle(config *ExcelStyleConfig) (int, error) {
	style := &excelize.Style{
		Font: &excelize.Font{
			Bold:  config.FontBold,
			Size:  float64(config.FontSize),
			Color: config.FontColor,
		},
	}
	if config.FillColor != "" {
		style.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{config.FillColor}}
	}
	if config.Alignment != "" {
		style.Alignment = &excelize.Alignment{Horizontal: config.Alignment}
	}
	if config.Border {
		style.Border = []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		}
	}
	return e.file.NewStyle(style)
}

type cellKind int

const (
	cellPlain cellKind = iota
	cellNumber
	cellTime
)

func (e *ExcelExporter) setCellValue(sheet, cell string, val any) (cellKind, error) {
	switch v := deref(val).(type) {
	case nil:
		return cellPlain, e.file.SetCellValue(sheet, cell, "")
	case time.Time:
		if v.IsZero() {
			return cellPlain, e.file.SetCellValue(sheet, cell, "")
		}
		return cellTime, e.file.SetCellValue(sheet, cell, v)
	case float64:
		return cellNumber, e.file.SetCellValue(sheet, cell, v)
	default:
		return cellPlain, e.file.SetCellValue(sheet, cell, v)
	}
}

// deref unwraps the nullable pointer fields used by registry records
func deref(val any) any {
	switch v := val.(type) {
	case *string:
		if v == nil {
			return nil
		}
		return *v
	case *float64:
		if v == nil {
			return nil
		}
		return *v
	case *time.Time:
		if v == nil {
			return nil
		}
		return *v
	default:
		return val
	}
}
