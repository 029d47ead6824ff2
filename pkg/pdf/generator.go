package pdf

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Field is a label/value line in a document header block.
type Field struct {
	Label string
	Value string
}

// Table is a bordered grid rendered after the fields.
type Table struct {
	Headers []string
	Widths  []float64 // mm, must match Headers
	Rows    [][]string
}

// Document describes a single-section PDF.
type Document struct {
	Title      string
	Subtitle   string
	Author     string
	Fields     []Field
	Table      *Table
	Paragraphs []string
	Footer     string
	CreatedAt  time.Time
}

type Generator interface {
	Render(ctx context.Context, doc Document) ([]byte, error)
}

// Options configures page layout.
type Options struct {
	PageSize   string
	FontFamily string
	FontSize   float64
	Margin     float64
	HeaderFill [3]int
}

func DefaultOptions() Options {
	return Options{
		PageSize:   "A4",
		FontFamily: "Arial",
		FontSize:   10,
		Margin:     15,
		HeaderFill: [3]int{68, 114, 196},
	}
}

type fpdfGenerator struct {
	options Options
}

func NewGenerator(options Options) Generator {
	return &fpdfGenerator{options: options}
}

func (g *fpdfGenerator) Render(ctx context.Context, doc Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o := g.options
	pdf := gofpdf.New("P", "mm", o.PageSize, "")
	pdf.SetMargins(o.Margin, o.Margin, o.Margin)
	pdf.SetAutoPageBreak(true, o.Margin)
	pdf.AliasNbPages("")

	// Core fonts are cp1252; translate UTF-8 input.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetTitle(doc.Title, true)
	if doc.Author != "" {
		pdf.SetAuthor(doc.Author, true)
	}
	if !doc.CreatedAt.IsZero() {
		pdf.SetCreationDate(doc.CreatedAt)
	}

	footer := doc.Footer
	pdf.SetFooterFunc(func() {
		pdf.SetY(-o.Margin)
		pdf.SetFont(o.FontFamily, "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, tr(footer), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()

	pdf.SetFont(o.FontFamily, "B", 16)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 10, tr(doc.Title), "", 1, "C", false, 0, "")
	if doc.Subtitle != "" {
		pdf.SetFont(o.FontFamily, "", 12)
		pdf.SetTextColor(90, 90, 90)
		pdf.CellFormat(0, 8, tr(doc.Subtitle), "", 1, "C", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetTextColor(0, 0, 0)
	for _, f := range doc.Fields {
		pdf.SetFont(o.FontFamily, "B", o.FontSize)
		pdf.CellFormat(50, 6, tr(f.Label), "", 0, "L", false, 0, "")
		pdf.SetFont(o.FontFamily, "", o.FontSize)
		pdf.MultiCell(0, 6, tr(f.Value), "", "L", false)
	}

	if doc.Table != nil {
		pdf.Ln(4)
		renderTable(pdf, o, doc.Table, tr)
	}

	if len(doc.Paragraphs) > 0 {
		pdf.Ln(6)
		pdf.SetFont(o.FontFamily, "", o.FontSize)
		for _, p := range doc.Paragraphs {
			pdf.MultiCell(0, 5, tr(p), "", "L", false)
			pdf.Ln(2)
		}
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func renderTable(pdf *gofpdf.Fpdf, o Options, t *Table, tr func(string) string) {
	pdf.SetFont(o.FontFamily, "B", o.FontSize)
	pdf.SetFillColor(o.HeaderFill[0], o.HeaderFill[1], o.HeaderFill[2])
	pdf.SetTextColor(255, 255, 255)
	for i, h := range t.Headers {
		pdf.CellFormat(t.Widths[i], 7, tr(h), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(o.FontFamily, "", o.FontSize-1)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFillColor(242, 242, 242)
	for r, row := range t.Rows {
		fill := r%2 == 1
		for i := range t.Headers {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			pdf.CellFormat(t.Widths[i], 6, tr(truncate(cell, t.Widths[i])), "1", 0, "L", fill, 0, "")
		}
		pdf.Ln(-1)
	}
}

// truncate keeps a cell on one line, assuming ~2mm per character.
func truncate(s string, width float64) string {
	max := int(width / 2)
	r := []rune(s)
	if max < 4 || len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
