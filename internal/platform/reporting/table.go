package reporting

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
)

// Column describes one table column. Weight is the share of the printable
// width the column takes in PDF output.
type Column struct {
	Title  string
	Weight float64
	// Align is an fpdf alignment string: "L", "C" or "R". Empty means "L".
	Align string
}

// Table is a titled grid of text cells rendered to CSV or PDF.
type Table struct {
	Title    string
	Subtitle []string
	Columns  []Column
	Rows     [][]string
	// Footer is an optional totals row, rendered bold after the body.
	Footer []string
	// Note is printed at the foot of every PDF page next to the page number.
	Note string
}

func (t *Table) check() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("table has no columns")
	}
	for i, r := range t.Rows {
		if len(r) != len(t.Columns) {
			return fmt.Errorf("row %d has %d cells, want %d", i+1, len(r), len(t.Columns))
		}
	}
	if t.Footer != nil && len(t.Footer) != len(t.Columns) {
		return fmt.Errorf("footer has %d cells, want %d", len(t.Footer), len(t.Columns))
	}
	return nil
}

// WriteCSV writes the header, body and footer rows as CSV.
func (t *Table) WriteCSV(w io.Writer) error {
	if err := t.check(); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	header := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c.Title
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	if t.Footer != nil {
		if err := cw.Write(t.Footer); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

const (
	pdfRowHeight    = 7.0
	pdfHeaderHeight = 8.0
)

// WritePDF renders the table on landscape A4 pages, repeating the header row
// on every page.
func (t *Table) WritePDF(w io.Writer) error {
	if err := t.check(); err != nil {
		return err
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(t.Title, true)
	pdf.SetAutoPageBreak(false, 20)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 1, "R", false, 0, "")
		if t.Note != "" {
			pdf.CellFormat(0, 5, tr(t.Note), "", 0, "C", false, 0, "")
		}
		pdf.SetTextColor(0, 0, 0)
	})

	pageW, pageH := pdf.GetPageSize()
	left, _, right, bottom := pdf.GetMargins()
	widths := t.columnWidths(pageW - left - right)

	header := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(220, 220, 220)
		for i, c := range t.Columns {
			pdf.CellFormat(widths[i], pdfHeaderHeight, tr(c.Title), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
	}
	row := func(cells []string) {
		if pdf.GetY()+pdfRowHeight > pageH-bottom {
			pdf.AddPage()
			header()
		}
		for i, cell := range cells {
			text := fitText(pdf, tr(cell), widths[i]-2)
			pdf.CellFormat(widths[i], pdfRowHeight, text, "1", 0, align(t.Columns[i].Align), false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 9, tr(t.Title), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	for _, s := range t.Subtitle {
		pdf.CellFormat(0, 6, tr(s), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	header()
	for _, r := range t.Rows {
		row(r)
	}
	if t.Footer != nil {
		pdf.SetFont("Helvetica", "B", 9)
		row(t.Footer)
	}

	return pdf.Output(w)
}

func (t *Table) columnWidths(total float64) []float64 {
	var sum float64
	for _, c := range t.Columns {
		sum += weightOf(c)
	}
	out := make([]float64, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = total * weightOf(c) / sum
	}
	return out
}

func weightOf(c Column) float64 {
	if c.Weight <= 0 {
		return 1
	}
	return c.Weight
}

func align(a string) string {
	if a == "" {
		return "L"
	}
	return a
}

// fitText truncates s with an ellipsis so it fits in width mm. s is already
// translated to the single-byte core font encoding.
func fitText(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width {
		s = s[:len(s)-1]
	}
	return s + "..."
}
