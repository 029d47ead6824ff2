package handovers

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExportFormat selects the file type of an export.
type ExportFormat string

const (
	FormatXLSX ExportFormat = "xlsx"
	FormatCSV  ExportFormat = "csv"
)

func (f ExportFormat) Valid() bool {
	return f == FormatXLSX || f == FormatCSV
}

func (f ExportFormat) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// ExportOptions configures the handover export
type ExportOptions struct {
	SheetName       string
	FreezeHeader    bool
	AutoFilter      bool
	TimestampFormat string
	HeaderFill      string
	HeaderFont      string
	CSVDelimiter    rune
}

func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		SheetName:       "Handovers",
		FreezeHeader:    true,
		AutoFilter:      true,
		TimestampFormat: "2006-01-02 15:04",
		HeaderFill:      "4472C4",
		HeaderFont:      "FFFFFF",
		CSVDelimiter:    ',',
	}
}

var exportColumns = []struct {
	title string
	width float64
	value func(h *Handover, o ExportOptions) interface{}
}{
	{"Handover ID", 38, func(h *Handover, _ ExportOptions) interface{} { return h.ID.String() }},
	{"Unit ID", 38, func(h *Handover, _ ExportOptions) interface{} { return h.UnitID.String() }},
	{"Owner ID", 38, func(h *Handover, _ ExportOptions) interface{} { return h.OwnerID.String() }},
	{"Status", 16, func(h *Handover, _ ExportOptions) interface{} { return string(h.Status) }},
	{"Progress %", 11, func(h *Handover, _ ExportOptions) interface{} { return Progress(h.Status) }},
	{"Items", 8, func(h *Handover, _ ExportOptions) interface{} { return len(h.Items) }},
	{"Not OK", 8, func(h *Handover, _ ExportOptions) interface{} { return countNotOK(h.Items) }},
	{"Scheduled", 18, func(h *Handover, o ExportOptions) interface{} { return formatTime(h.ScheduledAt, o) }},
	{"Sent", 18, func(h *Handover, o ExportOptions) interface{} { return formatTime(h.SentAt, o) }},
	{"Handed Over", 18, func(h *Handover, o ExportOptions) interface{} { return formatTime(h.HandoverAt, o) }},
	{"Cancelled", 18, func(h *Handover, o ExportOptions) interface{} { return formatTime(h.CancelledAt, o) }},
	{"Cancel Reason", 30, func(h *Handover, _ ExportOptions) interface{} { return h.CancelReason }},
	{"Certificate", 40, func(h *Handover, _ ExportOptions) interface{} {
		if h.PDFURL == nil {
			return ""
		}
		return *h.PDFURL
	}},
}

func countNotOK(items []HandoverItem) int {
	n := 0
	for _, it := range items {
		if it.Status == ItemNotOK {
			n++
		}
	}
	return n
}

func formatTime(t *time.Time, o ExportOptions) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(o.TimestampFormat)
}

// Exporter renders handover lists as spreadsheets
type Exporter struct {
	options ExportOptions
}

func NewExporter(options ExportOptions) *Exporter {
	return &Exporter{options: options}
}

// Export writes one header row and one row per handover.
func (e *Exporter) Export(ctx context.Context, rows []Handover, format ExportFormat) ([]byte, error) {
	switch format {
	case FormatXLSX:
		return e.exportXLSX(ctx, rows)
	case FormatCSV:
		return e.exportCSV(ctx, rows)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

func (e *Exporter) exportCSV(ctx context.Context, rows []Handover) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = e.options.CSVDelimiter

	record := make([]string, len(exportColumns))
	for i, col := range exportColumns {
		record[i] = col.title
	}
	if err := w.Write(record); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	for r := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for c, col := range exportColumns {
			record[c] = fmt.Sprint(col.value(&rows[r], e.options))
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", r, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Exporter) exportXLSX(ctx context.Context, rows []Handover) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	sheet := e.options.SheetName
	if err := file.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: e.options.HeaderFont},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{e.options.HeaderFill}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, col := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := file.SetCellValue(sheet, cell, col.title); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
		name, _ := excelize.ColumnNumberToName(i + 1)
		if err := file.SetColWidth(sheet, name, name, col.width); err != nil {
			return nil, fmt.Errorf("failed to size column: %w", err)
		}
	}
	first, _ := excelize.CoordinatesToCellName(1, 1)
	last, _ := excelize.CoordinatesToCellName(len(exportColumns), 1)
	if err := file.SetCellStyle(sheet, first, last, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	for r := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for c, col := range exportColumns {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := file.SetCellValue(sheet, cell, col.value(&rows[r], e.options)); err != nil {
				return nil, fmt.Errorf("failed to set cell value: %w", err)
			}
		}
	}

	if e.options.FreezeHeader {
		err := file.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to freeze header: %w", err)
		}
	}
	if e.options.AutoFilter && len(rows) > 0 {
		if err := file.AutoFilter(sheet, first+":"+last, nil); err != nil {
			return nil, fmt.Errorf("failed to add filter: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
