package extract

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Area is a rectangular region of a PDF page, in PDF points with the
// origin at the bottom-left corner of the page.
type Area struct {
	Left   float64
	Top    float64
	Right  float64
	Bottom float64
}

// ParseArea parses a "left,top,right,bottom" string such as
// "0,500,800,100" into an Area.
func ParseArea(s string) (Area, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Area{}, fmt.Errorf("parse area %q: want left,top,right,bottom", s)
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Area{}, fmt.Errorf("parse area %q: %w", s, err)
		}
		vals[i] = v
	}
	a := Area{Left: vals[0], Top: vals[1], Right: vals[2], Bottom: vals[3]}
	if a.Top <= a.Bottom {
		return Area{}, fmt.Errorf("parse area %q: top must be above bottom", s)
	}
	if a.Right <= a.Left {
		return Area{}, fmt.Errorf("parse area %q: right must be right of left", s)
	}
	return a, nil
}

func (a Area) contains(x, y float64) bool {
	return x >= a.Left && x <= a.Right && y >= a.Bottom && y <= a.Top
}

// RawTable is a rectangular grid of cell text extracted from one or
// more statement pages. Header holds the column labels exactly as they
// appear in the source; Records holds one row per printed line, with
// empty strings where a column has no value.
type RawTable struct {
	Header  []string
	Records [][]string
}

// Empty reports whether the table has no data rows.
func (t RawTable) Empty() bool {
	return len(t.Header) == 0 || len(t.Records) == 0
}

// Valid reports whether the header row looks like a transaction table.
func (t RawTable) Valid() bool {
	for _, h := range t.Header {
		l := strings.ToLower(h)
		if strings.Contains(l, "transaction") || strings.Contains(l, "txn") {
			return true
		}
	}
	return false
}

// Merge appends the records of other onto t, aligning columns by
// header label. Labels present only in other extend t's header, and
// earlier records are backfilled with empty cells.
func (t *RawTable) Merge(other RawTable) {
	if other.Empty() {
		return
	}
	if len(t.Header) == 0 {
		t.Header = append(t.Header, other.Header...)
		t.Records = append(t.Records, other.Records...)
		return
	}

	index := make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		key := foldLabel(h)
		if _, ok := index[key]; !ok {
			index[key] = i
		}
	}

	mapping := make([]int, len(other.Header))
	for i, h := range other.Header {
		key := foldLabel(h)
		col, ok := index[key]
		if !ok {
			col = len(t.Header)
			t.Header = append(t.Header, h)
			index[key] = col
			for j := range t.Records {
				t.Records[j] = append(t.Records[j], "")
			}
		}
		mapping[i] = col
	}

	for _, rec := range other.Records {
		row := make([]string, len(t.Header))
		for i, v := range rec {
			if i >= len(mapping) || v == "" {
				continue
			}
			col := mapping[i]
			if row[col] != "" {
				row[col] += " "
			}
			row[col] = row[col] + v
		}
		t.Records = append(t.Records, row)
	}
}

func foldLabel(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// span is one positioned piece of page text. Most PDF generators emit
// a span per glyph, so spans are merged into cells by proximity.
type span struct {
	x, y, end float64
	text      string
}

// cell is a horizontal run of spans with its x extent on the page.
type cell struct {
	start, end float64
	text       string
}

type textLine struct {
	y     float64
	cells []cell
}

// clusterLines groups spans into printed lines. Spans whose baselines
// differ by no more than tol belong to the same line, matching the
// generous row tolerance needed for wrapped header labels.
func clusterLines(spans []span, tol, cellGap float64) []textLine {
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].y != spans[j].y {
			return spans[i].y > spans[j].y
		}
		return spans[i].x < spans[j].x
	})

	var lines []textLine
	group := []span{spans[0]}
	lastY := spans[0].y
	flush := func() {
		cells := mergeCells(group, cellGap)
		if len(cells) > 0 {
			lines = append(lines, textLine{y: group[0].y, cells: cells})
		}
	}
	for _, s := range spans[1:] {
		if lastY-s.y > tol {
			flush()
			group = group[:0]
		}
		group = append(group, s)
		lastY = s.y
	}
	flush()
	return lines
}

// mergeCells joins adjacent spans on one line into cells. A horizontal
// gap wider than cellGap starts a new cell; a smaller but non-glyph
// gap is a word break. Strongly negative gaps happen when a wrapped
// label's second line lands in the same cluster, so those get a word
// break too instead of running the words together.
func mergeCells(group []span, cellGap float64) []cell {
	sorted := make([]span, len(group))
	copy(sorted, group)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].x != sorted[j].x {
			return sorted[i].x < sorted[j].x
		}
		// Wrapped label lines share an x; keep the upper line first.
		return sorted[i].y > sorted[j].y
	})

	var cells []cell
	for _, s := range sorted {
		if n := len(cells); n > 0 {
			last := &cells[n-1]
			gap := s.x - last.end
			if gap <= cellGap {
				if gap > 1.2 || gap < -1.2 {
					last.text += " "
				}
				last.text += s.text
				if s.end > last.end {
					last.end = s.end
				}
				continue
			}
		}
		cells = append(cells, cell{start: s.x, end: s.end, text: s.text})
	}

	out := cells[:0]
	for _, c := range cells {
		c.text = strings.TrimSpace(c.text)
		if c.text != "" {
			out = append(out, c)
		}
	}
	return out
}

// Column labels that identify the transaction table's header line.
// The transaction/txn token alone is not enough: statement title lines
// also contain it, so two supporting labels are required.
var headerLabels = []string{"date", "location", "route", "product", "debit", "credit", "balance", "value"}

func isHeaderLine(cells []cell) bool {
	var b strings.Builder
	for _, c := range cells {
		b.WriteString(strings.ToLower(c.text))
		b.WriteByte(' ')
	}
	joined := b.String()
	if !strings.Contains(joined, "transaction") && !strings.Contains(joined, "txn") {
		return false
	}
	n := 0
	for _, label := range headerLabels {
		if strings.Contains(joined, label) {
			n++
		}
	}
	return n >= 2
}

// buildTable assembles spans into a RawTable. The first line that
// looks like a transaction header anchors the table; lines above it
// are discarded. Column bands come from the union of cell extents
// across the header and data lines together, so right-aligned amounts
// land under their short left-aligned labels. Stray lines below the
// table pass through and are dropped later when their date fails to
// parse.
func buildTable(spans []span, rowTol, cellGap float64) RawTable {
	lines := clusterLines(spans, rowTol, cellGap)

	headerIdx := -1
	for i, line := range lines {
		if isHeaderLine(line.cells) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return RawTable{}
	}

	kept := lines[headerIdx:]
	bands := columnBands(kept)

	grid := make([][]string, 0, len(kept))
	for _, line := range kept {
		row := make([]string, len(bands))
		for _, c := range line.cells {
			idx := bandIndex(c, bands)
			if row[idx] != "" {
				row[idx] += " "
			}
			row[idx] += c.text
		}
		grid = append(grid, row)
	}
	return RawTable{Header: grid[0], Records: grid[1:]}
}

// columnBands merges the x intervals of every cell into maximal
// non-overlapping column extents, left to right. Each column's band
// covers its widest member, whether that is the header label or a
// data value.
func columnBands(lines []textLine) []cell {
	var intervals []cell
	for _, line := range lines {
		intervals = append(intervals, line.cells...)
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].start < intervals[j].start })

	var bands []cell
	for _, iv := range intervals {
		if n := len(bands); n > 0 && iv.start <= bands[n-1].end+0.5 {
			if iv.end > bands[n-1].end {
				bands[n-1].end = iv.end
			}
			continue
		}
		bands = append(bands, cell{start: iv.start, end: iv.end})
	}
	return bands
}

// bandIndex finds the band containing the cell's center. Bands are
// built from the same cells, so containment always holds; nearest
// band is a safety net only.
func bandIndex(c cell, bands []cell) int {
	center := (c.start + c.end) / 2
	for i, b := range bands {
		if center >= b.start && center <= b.end {
			return i
		}
	}
	best, bestDist := 0, math.Inf(1)
	for i, b := range bands {
		dist := math.Abs((b.start+b.end)/2 - center)
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}
