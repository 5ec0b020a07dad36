package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/kavwad/clippertv/internal/categorize"
	"github.com/kavwad/clippertv/internal/config"
	"github.com/kavwad/clippertv/internal/extract"
	"github.com/kavwad/clippertv/internal/ingest"
	"github.com/kavwad/clippertv/internal/models"
	"github.com/kavwad/clippertv/internal/normalize"
	"github.com/kavwad/clippertv/internal/stats"
)

// parsetest runs a statement PDF through extraction, normalization, and
// categorization without touching the database. Useful when a new
// statement layout or an unseen transaction type breaks ingestion.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: parsetest <path-to-pdf>")
		os.Exit(1)
	}
	path := os.Args[1]

	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	opts, err := ingest.ExtractOptions(cfg)
	if err != nil {
		fmt.Printf("Error in extract config: %v\n", err)
		os.Exit(1)
	}

	raw, err := extract.Statement(path, opts)
	if err != nil {
		fmt.Printf("Error extracting statement: %v\n", err)
		os.Exit(1)
	}

	if serial, err := extract.CardSerial(path); err == nil && serial != "" {
		if rider, ok := cfg.RiderForCard(serial); ok {
			fmt.Printf("Card: %s (rider %s)\n", serial, rider)
		} else {
			fmt.Printf("Card: %s (no rider assigned)\n", serial)
		}
	}

	norm := normalize.Table(raw)
	txns := norm.Transactions
	fmt.Printf("Rows extracted: %d\n", len(raw.Records))
	fmt.Printf("Transactions: %d (%d dropped)\n\n", len(txns), norm.Dropped)

	var uncat *categorize.UncategorizedError
	if err := categorize.Default().Apply(txns); err != nil && !errors.As(err, &uncat) {
		fmt.Printf("Error categorizing: %v\n", err)
		os.Exit(1)
	}

	// Tally by assigned category
	counts := make(map[string]int)
	spent := make(map[string]float64)
	for _, t := range txns {
		counts[t.Category]++
		spent[t.Category] += t.DebitAmount() - t.CreditAmount()
	}
	categories := make([]string, 0, len(counts))
	for c := range counts {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	fmt.Println("Summary by Category:")
	fmt.Println("--------------------")
	for _, c := range categories {
		name := c
		if name == "" {
			name = "(uncategorized)"
		}
		fmt.Printf("  %-18s: %3d transactions, net: $%8.2f\n", name, counts[c], spent[c])
	}
	fmt.Printf("  Free transfers    : %3d\n", stats.FreeTransfers(txns))

	fmt.Println("\nAll Transactions:")
	fmt.Println("-----------------")
	for _, t := range txns {
		fmt.Printf("  %-19s | %-18s | %-26s | %8s | %8s | %8s\n",
			t.Date.Format(normalize.DateLayout),
			truncate(t.Category, 18),
			truncate(t.Location, 26),
			money(t.Debit),
			money(t.Credit),
			money(t.Balance),
		)
	}

	if uncat != nil {
		fmt.Println("\nUncategorized Rows:")
		fmt.Println("-------------------")
		for _, i := range uncat.Rows {
			t := txns[i]
			fmt.Printf("  row %3d: %s | type %q | location %q\n",
				i, t.Date.Format(normalize.DateLayout), t.Type, t.Location)
		}
	}

	if len(norm.Warnings) > 0 {
		fmt.Println("\nWarnings:")
		fmt.Println("---------")
		for _, w := range norm.Warnings {
			fmt.Printf("  %s\n", w)
		}
	}

	printBalanceCheck(txns)

	if uncat != nil {
		os.Exit(1)
	}
}

// printBalanceCheck replays the statement oldest-to-newest and checks
// that each printed balance follows from the previous one. Statements
// list newest first, so the walk runs back-to-front.
func printBalanceCheck(txns []models.Transaction) {
	fmt.Println("\nBalance Check:")
	fmt.Println("--------------")

	var prev *models.Transaction
	gaps := 0
	var debits, credits float64
	var oldest, newest *float64
	for i := len(txns) - 1; i >= 0; i-- {
		t := &txns[i]
		if t.Balance == nil {
			prev = nil
			continue
		}
		if oldest == nil {
			oldest = t.Balance
		} else {
			debits += t.DebitAmount()
			credits += t.CreditAmount()
		}
		newest = t.Balance
		if prev != nil {
			expected := *prev.Balance - t.DebitAmount() + t.CreditAmount()
			if math.Abs(expected-*t.Balance) > 0.005 {
				fmt.Printf("  gap at %s: statement says %.2f, running total says %.2f\n",
					t.Date.Format(normalize.DateLayout), *t.Balance, expected)
				gaps++
			}
		}
		prev = t
	}

	if oldest == nil {
		fmt.Println("  No balances on statement.")
		return
	}
	fmt.Printf("  Oldest balance:     $%8.2f\n", *oldest)
	fmt.Printf("  Total debits:       $%8.2f\n", debits)
	fmt.Printf("  Total credits:      $%8.2f\n", credits)
	fmt.Printf("  Calculated newest:  $%8.2f\n", *oldest-debits+credits)
	fmt.Printf("  Statement newest:   $%8.2f\n", *newest)
	if gaps == 0 {
		fmt.Println("  Balances are continuous.")
	} else {
		fmt.Printf("  %d discontinuities (statement may start mid-history).\n", gaps)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func money(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *v)
}
