// Package normalize maps raw statement tables onto typed transaction
// records. Statement vintages disagree on header labels ("Txn Date
// Time", "Transaction Date", line-wrapped variants), so labels are
// folded onto canonical names before any cell is interpreted.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kavwad/clippertv/internal/extract"
	"github.com/kavwad/clippertv/internal/models"
)

// Canonical column names after alias folding.
const (
	ColDate     = "Transaction Date"
	ColType     = "Transaction Type"
	ColCategory = "Category"
	ColLocation = "Location"
	ColRoute    = "Route"
	ColProduct  = "Product"
	ColDebit    = "Debit"
	ColCredit   = "Credit"
	ColBalance  = "Balance"
)

// Header aliases seen across statement vintages, applied after
// whitespace collapsing and title-casing.
var headerAliases = map[string]string{
	"Transaction Date Time": ColDate,
	"Txn Date Time":         ColDate,
	"Txn Date":              ColDate,
	"Txn Type":              ColType,
	"Txn Value":             ColDebit,
	"Remaining Value":       ColBalance,
}

// DateLayout matches statement timestamps like "01-15-2025 9:41 AM".
// Exports are written with the same layout so they re-import cleanly.
const DateLayout = "01-02-2006 3:04 PM"

// Result carries the typed rows plus everything that did not survive
// normalization. Warnings are for the caller to log; normalization
// itself never fails a batch.
type Result struct {
	Transactions []models.Transaction
	Warnings     []string
	Dropped      int
}

// Table converts a raw statement table into transaction records.
// Rows with no parsable date are dropped with a warning; unparsable
// amounts null out the single field. A table with no date column
// yields an empty result, not an error.
func Table(raw extract.RawTable) Result {
	var res Result
	if raw.Empty() {
		return res
	}

	cols := make(map[string]int, len(raw.Header))
	for i, label := range raw.Header {
		canonical := CanonicalLabel(label)
		if _, ok := cols[canonical]; !ok {
			cols[canonical] = i
		}
	}
	if _, ok := cols[ColDate]; !ok {
		res.Warnings = append(res.Warnings, "no transaction date column after header mapping")
		return res
	}

	cellAt := func(rec []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[idx])
	}

	for i, rec := range raw.Records {
		rawDate := collapseSpace(cellAt(rec, ColDate))
		if rawDate == "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("row %d: missing date", i+1))
			res.Dropped++
			continue
		}
		date, err := time.Parse(DateLayout, strings.ToUpper(rawDate))
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("row %d: unparsable date %q", i+1, rawDate))
			res.Dropped++
			continue
		}

		// Category survives only on re-imported exports; statements
		// leave it for the categorizer.
		txn := models.Transaction{
			Date:     date,
			Type:     cellAt(rec, ColType),
			Category: cellAt(rec, ColCategory),
			Location: cellAt(rec, ColLocation),
			Route:    cellAt(rec, ColRoute),
			Product:  cellAt(rec, ColProduct),
		}
		for _, amt := range []struct {
			col  string
			dest **float64
		}{
			{ColDebit, &txn.Debit},
			{ColCredit, &txn.Credit},
			{ColBalance, &txn.Balance},
		} {
			v, ok := parseMoney(cellAt(rec, amt.col))
			if !ok {
				res.Warnings = append(res.Warnings, fmt.Sprintf("row %d: unparsable %s %q", i+1, strings.ToLower(amt.col), cellAt(rec, amt.col)))
				continue
			}
			*amt.dest = v
		}

		res.Transactions = append(res.Transactions, txn)
	}
	return res
}

// CanonicalLabel folds a raw header label onto its canonical column
// name: collapse whitespace, title-case, then apply the alias table.
func CanonicalLabel(label string) string {
	folded := titleCase(collapseSpace(label))
	if canonical, ok := headerAliases[folded]; ok {
		return canonical
	}
	return folded
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// parseMoney strips currency formatting and parses the remainder.
// Empty cells are valid nulls; non-numeric leftovers are not.
func parseMoney(s string) (*float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(s, "$", ""), ",", ""))
	if s == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, false
	}
	return &v, true
}
