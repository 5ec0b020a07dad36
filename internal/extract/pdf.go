// Package extract pulls transaction tables and plain text out of
// Clipper statement PDFs and CSV exports. It produces untyped string
// grids; interpretation of the cells belongs to the normalize package.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	defaultRowTolerance = 15
	defaultCellGap      = 7
)

// Options control statement table extraction.
type Options struct {
	// FirstPageArea bounds the transaction table on page 1, which
	// carries the account summary block above the table. Nil reads
	// the whole page.
	FirstPageArea *Area

	// OtherPagesArea bounds the table on pages 2 onward, where the
	// table starts higher up.
	OtherPagesArea *Area

	// RowTolerance is the maximum baseline distance, in points,
	// between spans of the same printed line. Zero means 15, wide
	// enough to absorb line-wrapped header labels.
	RowTolerance float64

	// CellGap is the smallest horizontal gap, in points, treated as
	// a column boundary. Zero means 7.
	CellGap float64
}

func (o Options) rowTolerance() float64 {
	if o.RowTolerance > 0 {
		return o.RowTolerance
	}
	return defaultRowTolerance
}

func (o Options) cellGap() float64 {
	if o.CellGap > 0 {
		return o.CellGap
	}
	return defaultCellGap
}

// Statement extracts the transaction table from a statement PDF on
// disk. Page 1 and the remaining pages are read as separate sections,
// each tried with its configured area first and the full page as
// fallback. A PDF with no recognizable transaction table yields an
// empty table, not an error; only unreadable files error.
func Statement(path string, opts Options) (t RawTable, err error) {
	defer func() {
		if p := recover(); p != nil {
			t, err = RawTable{}, fmt.Errorf("extract %s: pdf library panic: %v", path, p)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return RawTable{}, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	return statementTable(r, opts), nil
}

// StatementBytes is Statement for an in-memory PDF, as downloaded
// from the card site.
func StatementBytes(data []byte, opts Options) (t RawTable, err error) {
	defer func() {
		if p := recover(); p != nil {
			t, err = RawTable{}, fmt.Errorf("extract pdf: library panic: %v", p)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return RawTable{}, fmt.Errorf("read pdf: %w", err)
	}

	return statementTable(r, opts), nil
}

func statementTable(r *pdf.Reader, opts Options) RawTable {
	n := r.NumPage()
	if n == 0 {
		return RawTable{}
	}

	table := section(r, 1, 1, opts.FirstPageArea, opts)
	if n > 1 {
		rest := section(r, 2, n, opts.OtherPagesArea, opts)
		table.Merge(rest)
	}
	return table
}

// section reads one page range. The configured area goes first; if it
// yields an empty or header-mismatched table, the range is retried
// with no area at all before giving up on the section.
func section(r *pdf.Reader, first, last int, area *Area, opts Options) RawTable {
	attempts := []*Area{area, nil}
	if area == nil {
		attempts = attempts[1:]
	}
	for _, a := range attempts {
		t, err := sectionAttempt(r, first, last, a, opts)
		if err != nil {
			continue
		}
		if !t.Empty() && t.Valid() {
			return t
		}
	}
	return RawTable{}
}

func sectionAttempt(r *pdf.Reader, first, last int, area *Area, opts Options) (t RawTable, err error) {
	defer func() {
		if p := recover(); p != nil {
			t, err = RawTable{}, fmt.Errorf("pdf library panic: %v", p)
		}
	}()

	for i := first; i <= last; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		t.Merge(pageTable(page, area, opts))
	}
	return t, nil
}

func pageTable(page pdf.Page, area *Area, opts Options) RawTable {
	content := page.Content()
	spans := make([]span, 0, len(content.Text))
	for _, txt := range content.Text {
		if strings.TrimSpace(txt.S) == "" {
			continue
		}
		if area != nil && !area.contains(txt.X, txt.Y) {
			continue
		}
		spans = append(spans, span{x: txt.X, y: txt.Y, end: spanEnd(txt), text: txt.S})
	}
	return buildTable(spans, opts.rowTolerance(), opts.cellGap())
}

// spanEnd estimates the right edge of a span. Some generators omit
// glyph widths; fall back to an advance derived from the font size.
func spanEnd(t pdf.Text) float64 {
	if t.W > 0 {
		return t.X + t.W
	}
	return t.X + 0.5*t.FontSize*float64(len([]rune(t.S)))
}
