package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/kavwad/clippertv/internal/extract"
)

func TestCanonicalLabel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"TRANSACTION DATE", "Transaction Date"},
		{"Transaction  Date ", "Transaction Date"},
		{"Txn Date \nTime", "Transaction Date"},
		{"TXN DATE TIME", "Transaction Date"},
		{"Txn Date", "Transaction Date"},
		{"TRANSACTION DATE TIME", "Transaction Date"},
		{"Txn Type", "Transaction Type"},
		{"TXN  TYPE", "Transaction Type"},
		{"TXN VALUE", "Debit"},
		{"Txn \nValue", "Debit"},
		{"Remaining value", "Balance"},
		{"REMAINING  VALUE", "Balance"},
		{"LOCATION", "Location"},
		{"ROUTE", "Route"},
		{"Ride Count", "Ride Count"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := CanonicalLabel(tt.input); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTable(t *testing.T) {
	raw := extract.RawTable{
		Header: []string{"TRANSACTION DATE", "TRANSACTION TYPE", "LOCATION", "ROUTE", "PRODUCT", "DEBIT", "CREDIT", "BALANCE"},
		Records: [][]string{
			{"01-15-2025 9:41 AM", "Dual-tag entry transaction, maximum fare deducted (purse debit)", "Hillsdale", "", "Clipper Cash", "$15.40", "", "$120.15"},
			{"01-15-2025 10:02 AM", "Dual-tag exit transaction, fare adjustment (purse rebate)", "San Francisco", "", "Clipper Cash", "", "$7.70", "$127.85"},
			{"01-20-2025 6:30 PM", "Threshold auto-load at a TransLink Device", "", "", "Clipper Cash", "", "$1,250.00", "$152.85"},
			{"", "", "Page 1 of 2", "", "", "", "", ""},
			{"not a date", "Single-tag fare payment", "SFM bus", "14", "Clipper Cash", "$2.50", "", "$125.35"},
		},
	}

	res := Table(raw)

	if len(res.Transactions) != 3 {
		t.Fatalf("transactions: got %d, want 3", len(res.Transactions))
	}
	if res.Dropped != 2 {
		t.Errorf("dropped: got %d, want 2", res.Dropped)
	}
	if len(res.Warnings) != 2 {
		t.Errorf("warnings: got %d, want 2: %v", len(res.Warnings), res.Warnings)
	}

	first := res.Transactions[0]
	wantDate := time.Date(2025, 1, 15, 9, 41, 0, 0, time.UTC)
	if !first.Date.Equal(wantDate) {
		t.Errorf("date: got %v, want %v", first.Date, wantDate)
	}
	if first.Type != "Dual-tag entry transaction, maximum fare deducted (purse debit)" {
		t.Errorf("type: got %q", first.Type)
	}
	if first.Location != "Hillsdale" {
		t.Errorf("location: got %q", first.Location)
	}
	if first.Route != "" {
		t.Errorf("route: got %q, want empty", first.Route)
	}
	if first.Debit == nil || *first.Debit != 15.40 {
		t.Errorf("debit: got %v, want 15.40", first.Debit)
	}
	if first.Credit != nil {
		t.Errorf("credit: got %v, want nil", first.Credit)
	}
	if first.Balance == nil || *first.Balance != 120.15 {
		t.Errorf("balance: got %v, want 120.15", first.Balance)
	}

	reload := res.Transactions[2]
	if reload.Credit == nil || *reload.Credit != 1250.00 {
		t.Errorf("thousands credit: got %v, want 1250.00", reload.Credit)
	}

	for _, w := range res.Warnings {
		if !strings.Contains(w, "date") {
			t.Errorf("warning %q does not mention the date", w)
		}
	}
}

func TestTableCompactVintage(t *testing.T) {
	raw := extract.RawTable{
		Header: []string{"Txn Date Time", "Txn Type", "Location", "Route", "Txn Value", "Remaining Value"},
		Records: [][]string{
			{"02-01-2025 7:12 pm", "Single-tag fare payment", "ACT bus", "51B", "$2.75", "$91.15"},
		},
	}

	res := Table(raw)
	if len(res.Transactions) != 1 {
		t.Fatalf("transactions: got %d, want 1, warnings %v", len(res.Transactions), res.Warnings)
	}

	txn := res.Transactions[0]
	wantDate := time.Date(2025, 2, 1, 19, 12, 0, 0, time.UTC)
	if !txn.Date.Equal(wantDate) {
		t.Errorf("date: got %v, want %v", txn.Date, wantDate)
	}
	if txn.Debit == nil || *txn.Debit != 2.75 {
		t.Errorf("txn value column should land in debit, got %v", txn.Debit)
	}
	if txn.Balance == nil || *txn.Balance != 91.15 {
		t.Errorf("remaining value column should land in balance, got %v", txn.Balance)
	}
}

func TestTableNoDateColumn(t *testing.T) {
	raw := extract.RawTable{
		Header:  []string{"Name", "Amount"},
		Records: [][]string{{"coffee", "$4.00"}},
	}

	res := Table(raw)
	if len(res.Transactions) != 0 {
		t.Fatalf("transactions: got %d, want 0", len(res.Transactions))
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("warnings: got %v, want one", res.Warnings)
	}
}

func TestTableEmpty(t *testing.T) {
	res := Table(extract.RawTable{})
	if len(res.Transactions) != 0 || len(res.Warnings) != 0 {
		t.Errorf("empty input should normalize to an empty result, got %+v", res)
	}
}

func TestTableUnparsableAmount(t *testing.T) {
	raw := extract.RawTable{
		Header: []string{"Transaction Date", "Transaction Type", "Debit"},
		Records: [][]string{
			{"03-02-2025 8:00 AM", "Single-tag fare payment", "$2.5O"},
		},
	}

	res := Table(raw)
	if len(res.Transactions) != 1 {
		t.Fatalf("row should survive a bad amount, got %d rows", len(res.Transactions))
	}
	if res.Transactions[0].Debit != nil {
		t.Errorf("debit: got %v, want nil", res.Transactions[0].Debit)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("warnings: got %v, want one", res.Warnings)
	}
}

// Re-imported exports carry a Category column; it must survive so
// those rows skip categorization.
func TestTableKeepsCategory(t *testing.T) {
	raw := extract.RawTable{
		Header: []string{"Transaction Date", "Transaction Type", "Category"},
		Records: [][]string{
			{"03-02-2025 8:00 AM", "entry", "Muni Bus"},
			{"03-02-2025 9:00 AM", "Dual-tag entry transaction, no fare deduction", ""},
		},
	}

	res := Table(raw)
	if len(res.Transactions) != 2 {
		t.Fatalf("got %d rows, want 2", len(res.Transactions))
	}
	if got := res.Transactions[0].Category; got != "Muni Bus" {
		t.Errorf("category: got %q, want \"Muni Bus\"", got)
	}
	if got := res.Transactions[1].Category; got != "" {
		t.Errorf("empty category: got %q, want \"\"", got)
	}
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantNil bool
		wantOK  bool
	}{
		{"$2.50", 2.50, false, true},
		{"$1,234.56", 1234.56, false, true},
		{" $7.70 ", 7.70, false, true},
		{"184.80", 184.80, false, true},
		{"", 0, true, true},
		{"  ", 0, true, true},
		{"$", 0, true, true},
		{"abc", 0, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := parseMoney(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if tt.wantNil {
				if got != nil {
					t.Errorf("got %v, want nil", *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
