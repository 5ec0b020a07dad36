package stats

import (
	"math"
	"testing"
	"time"

	"github.com/kavwad/clippertv/internal/models"
)

func money(v float64) *float64 { return &v }

func ride(day string, category string, debit, credit *float64) models.Transaction {
	d, err := time.Parse("2006-01-02 15:04", day)
	if err != nil {
		panic(err)
	}
	return models.Transaction{
		RiderID:  "kaveh",
		Date:     d,
		Type:     "entry",
		Category: category,
		Debit:    debit,
		Credit:   credit,
	}
}

func TestTripsByMonth(t *testing.T) {
	txns := []models.Transaction{
		ride("2024-03-01 08:00", "Muni Metro", money(2.50), nil),
		ride("2024-03-01 17:30", "Muni Metro", money(2.50), nil),
		ride("2024-03-02 09:00", "BART Entrance", nil, nil),
		ride("2024-02-12 08:00", "Cable Car", money(8.00), nil),
		ride("2024-02-12 10:00", "Reload", nil, money(50.00)),
	}

	pivot := TripsByMonth(txns)

	wantColumns := []string{
		"Muni Bus", "Muni Metro", "BART", "Cable Car",
		"Caltrain", "Ferry", "AC Transit", "SamTrans",
	}
	if len(pivot.Columns) != len(wantColumns) {
		t.Fatalf("Columns = %v, want %v", pivot.Columns, wantColumns)
	}
	for i, c := range wantColumns {
		if pivot.Columns[i] != c {
			t.Errorf("Columns[%d] = %q, want %q", i, pivot.Columns[i], c)
		}
	}

	if len(pivot.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(pivot.Rows))
	}
	if pivot.Rows[0].Period != "2024-03" || pivot.Rows[1].Period != "2024-02" {
		t.Errorf("periods = %q, %q, want newest first", pivot.Rows[0].Period, pivot.Rows[1].Period)
	}

	march := pivot.Rows[0]
	if got := march.Counts[1]; got != 2 {
		t.Errorf("March Muni Metro = %d, want 2", got)
	}
	if got := march.Counts[2]; got != 1 {
		t.Errorf("March BART = %d, want 1", got)
	}
	if got := march.Total(); got != 3 {
		t.Errorf("March total = %d, want 3", got)
	}

	// The reload is not a trip and must not count anywhere.
	if got := pivot.Rows[1].Total(); got != 1 {
		t.Errorf("February total = %d, want 1", got)
	}
}

func TestTripsByYear(t *testing.T) {
	txns := []models.Transaction{
		ride("2023-11-05 08:00", "SamTrans", money(2.25), nil),
		ride("2024-01-09 08:00", "SamTrans", money(2.25), nil),
	}

	pivot := TripsByYear(txns)
	if len(pivot.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(pivot.Rows))
	}
	if pivot.Rows[0].Period != "2024" || pivot.Rows[1].Period != "2023" {
		t.Errorf("periods = %q, %q, want 2024 then 2023", pivot.Rows[0].Period, pivot.Rows[1].Period)
	}
}

// A fare-adjusted Caltrain round trip nets to the actual ride cost:
// the entrance holds the maximum fare and the exit rebates the
// difference.
func TestCostsByMonthCaltrainNet(t *testing.T) {
	txns := []models.Transaction{
		ride("2024-03-04 07:45", "Caltrain Entrance", money(15.40), nil),
		ride("2024-03-04 08:40", "Caltrain Exit", nil, money(7.70)),
	}

	pivot := CostsByMonth(txns)
	if len(pivot.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(pivot.Rows))
	}

	got := costFor(t, pivot, 0, "Caltrain")
	if math.Abs(got-7.70) > 1e-9 {
		t.Errorf("Caltrain net = %.2f, want 7.70", got)
	}
}

func TestCostsByMonthFerryNet(t *testing.T) {
	txns := []models.Transaction{
		ride("2024-05-10 08:00", "Ferry Entrance", money(14.00), nil),
		ride("2024-05-10 08:35", "Ferry Exit", money(1.00), money(5.00)),
	}

	pivot := CostsByMonth(txns)
	got := costFor(t, pivot, 0, "Ferry")
	if math.Abs(got-10.00) > 1e-9 {
		t.Errorf("Ferry net = %.2f, want 10.00", got)
	}
}

func TestCostsByMonthBARTRidesOnExit(t *testing.T) {
	txns := []models.Transaction{
		ride("2024-06-03 08:00", "BART Entrance", nil, nil),
		ride("2024-06-03 08:30", "BART Exit", money(4.65), nil),
	}

	pivot := CostsByMonth(txns)
	got := costFor(t, pivot, 0, "BART")
	if math.Abs(got-4.65) > 1e-9 {
		t.Errorf("BART cost = %.2f, want 4.65", got)
	}
}

// A pass bought at the end of February and first used in March should
// cost March, not February.
func TestPassCostAttributedToFirstUse(t *testing.T) {
	purchase := ride("2024-02-01 12:00", "Reload", nil, money(184.80))
	purchase.Product = models.MonthlyPassProduct

	coveredRide := ride("2024-03-03 08:40", "Caltrain Exit", nil, nil)
	coveredRide.Product = models.MonthlyPassProduct
	coveredRide.Type = "exit"

	txns := []models.Transaction{
		purchase,
		coveredRide,
		ride("2024-02-05 08:00", "Muni Bus", money(2.50), nil),
	}

	pivot := CostsByMonth(txns)
	if len(pivot.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(pivot.Rows))
	}

	if got := costFor(t, pivot, 0, "Caltrain"); math.Abs(got-184.80) > 1e-9 {
		t.Errorf("March Caltrain = %.2f, want 184.80", got)
	}
	if got := costFor(t, pivot, 1, "Caltrain"); math.Abs(got) > 1e-9 {
		t.Errorf("February Caltrain = %.2f, want 0", got)
	}
}

// With no covered rides at all, the cost stays in the purchase month.
func TestPassCostFallsBackToPurchaseMonth(t *testing.T) {
	purchase := ride("2024-02-01 12:00", "Reload", nil, money(184.80))
	purchase.Product = models.MonthlyPassProduct

	txns := []models.Transaction{
		purchase,
		ride("2024-03-05 08:00", "Muni Bus", money(2.50), nil),
	}

	pivot := CostsByMonth(txns)
	if got := costFor(t, pivot, 1, "Caltrain"); math.Abs(got-184.80) > 1e-9 {
		t.Errorf("February Caltrain = %.2f, want 184.80", got)
	}
}

// Rides covered by a pass bought earlier must not pull the cost of a
// later purchase backwards.
func TestPassCostIgnoresRidesBeforePurchase(t *testing.T) {
	early := ride("2024-01-15 08:40", "Caltrain Exit", nil, nil)
	early.Product = models.MonthlyPassProduct
	early.Type = "exit"

	purchase := ride("2024-02-01 12:00", "Reload", nil, money(184.80))
	purchase.Product = models.MonthlyPassProduct

	late := ride("2024-02-20 08:40", "Caltrain Exit", nil, nil)
	late.Product = models.MonthlyPassProduct
	late.Type = "exit"

	pivot := CostsByMonth([]models.Transaction{early, purchase, late})
	if got := costFor(t, pivot, 0, "Caltrain"); math.Abs(got-184.80) > 1e-9 {
		t.Errorf("February Caltrain = %.2f, want 184.80", got)
	}
	if got := costFor(t, pivot, 1, "Caltrain"); math.Abs(got) > 1e-9 {
		t.Errorf("January Caltrain = %.2f, want 0", got)
	}
}

func TestFreeTransfers(t *testing.T) {
	paid := models.Transaction{Type: "Single-tag fare payment", Debit: money(2.50)}
	free := models.Transaction{Type: "Single-tag fare payment"}
	entry := models.Transaction{Type: "Dual-tag entry transaction, maximum fare deducted (purse debit)"}

	if got := FreeTransfers([]models.Transaction{paid, free, free, entry}); got != 2 {
		t.Errorf("FreeTransfers = %d, want 2", got)
	}
}

func TestSummarize(t *testing.T) {
	txns := []models.Transaction{
		ride("2024-03-01 08:00", "Muni Metro", money(2.50), nil),
		ride("2024-03-02 08:00", "Muni Metro", money(2.50), nil),
		ride("2024-03-02 17:00", "Muni Bus", money(2.50), nil),
		ride("2024-02-05 08:00", "Muni Metro", money(2.50), nil),
		ride("2024-02-06 08:00", "Cable Car", money(8.00), nil),
		ride("2024-02-07 08:00", "Muni Bus", money(2.50), nil),
		ride("2024-02-08 08:00", "Muni Bus", money(2.50), nil),
		ride("2024-02-09 08:00", "Muni Bus", money(2.50), nil),
	}

	summary, err := Summarize(TripsByMonth(txns), CostsByMonth(txns), txns)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if summary.TripsThisMonth != 3 {
		t.Errorf("TripsThisMonth = %d, want 3", summary.TripsThisMonth)
	}
	if summary.CostThisMonth != 8 {
		t.Errorf("CostThisMonth = %d, want 8", summary.CostThisMonth)
	}
	if summary.TripDiff != 2 || summary.TripDiffText != "fewer" {
		t.Errorf("trip diff = %d %q, want 2 \"fewer\"", summary.TripDiff, summary.TripDiffText)
	}
	if summary.CostDiff != 10 || summary.CostDiffText != "less" {
		t.Errorf("cost diff = %d %q, want 10 \"less\"", summary.CostDiff, summary.CostDiffText)
	}
	if summary.MostUsedMode != "Muni Metro" {
		t.Errorf("MostUsedMode = %q, want \"Muni Metro\"", summary.MostUsedMode)
	}
	want := time.Date(2024, 3, 2, 17, 0, 0, 0, time.UTC)
	if !summary.MostRecentDate.Equal(want) {
		t.Errorf("MostRecentDate = %v, want %v", summary.MostRecentDate, want)
	}
	if summary.PassUpshot != nil {
		t.Errorf("PassUpshot = %d, want nil", *summary.PassUpshot)
	}
}

// A table spanning one month has nothing to compare against, so the
// diffs stay zero instead of erroring.
func TestSummarizeSingleMonth(t *testing.T) {
	txns := []models.Transaction{
		ride("2024-03-01 08:00", "Muni Metro", money(2.50), nil),
		ride("2024-03-02 08:00", "Muni Bus", money(2.50), nil),
	}

	summary, err := Summarize(TripsByMonth(txns), CostsByMonth(txns), txns)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.TripDiff != 0 {
		t.Errorf("TripDiff = %d, want 0", summary.TripDiff)
	}
	if summary.CostDiff != 0 {
		t.Errorf("CostDiff = %d, want 0", summary.CostDiff)
	}
	if summary.TripDiffText != "fewer" || summary.CostDiffText != "less" {
		t.Errorf("diff texts = %q, %q, want \"fewer\", \"less\"", summary.TripDiffText, summary.CostDiffText)
	}
}

func TestSummarizeMoreTripsThisMonth(t *testing.T) {
	txns := []models.Transaction{
		ride("2024-03-01 08:00", "Muni Metro", money(2.75), nil),
		ride("2024-03-02 08:00", "Muni Metro", money(3.00), nil),
		ride("2024-02-05 08:00", "Muni Metro", money(3.00), nil),
	}

	summary, err := Summarize(TripsByMonth(txns), CostsByMonth(txns), txns)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.TripDiff != -1 || summary.TripDiffText != "more" {
		t.Errorf("trip diff = %d %q, want -1 \"more\"", summary.TripDiff, summary.TripDiffText)
	}
	if summary.CostDiff != -3 || summary.CostDiffText != "more" {
		t.Errorf("cost diff = %d %q, want -3 \"more\"", summary.CostDiff, summary.CostDiffText)
	}
}

func TestSummarizeNoData(t *testing.T) {
	_, err := Summarize(TripPivot{}, CostPivot{}, nil)
	if err == nil {
		t.Fatal("expected an error for empty pivots")
	}
}

func TestSummarizePassUpshot(t *testing.T) {
	purchase := ride("2024-03-01 12:00", "Reload", nil, money(184.80))
	purchase.Product = models.MonthlyPassProduct

	manual := ride("2024-03-04 08:00", "Caltrain Entrance", nil, nil)
	manual.Type = models.ManualEntryType
	manual.Product = models.MonthlyPassProduct

	manual2 := ride("2024-03-05 08:00", "Caltrain Entrance", nil, nil)
	manual2.Type = models.ManualEntryType
	manual2.Product = models.MonthlyPassProduct

	extra := ride("2024-03-09 18:00", "Caltrain Entrance", money(5.00), nil)

	txns := []models.Transaction{purchase, manual, manual2, extra}
	summary, err := Summarize(TripsByMonth(txns), CostsByMonth(txns), txns)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.PassUpshot == nil {
		t.Fatal("PassUpshot = nil, want a value")
	}
	// -2*7.70 + 184.80 + 5.00 = 174.40, rounded half to even.
	if got := *summary.PassUpshot; got != 174 {
		t.Errorf("PassUpshot = %d, want 174", got)
	}
}

func TestSummarizePassUpshotRequiresPassThisMonth(t *testing.T) {
	purchase := ride("2024-02-01 12:00", "Reload", nil, money(184.80))
	purchase.Product = models.MonthlyPassProduct

	txns := []models.Transaction{
		purchase,
		ride("2024-03-05 08:00", "Muni Bus", money(2.50), nil),
	}
	summary, err := Summarize(TripsByMonth(txns), CostsByMonth(txns), txns)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.PassUpshot != nil {
		t.Errorf("PassUpshot = %d, want nil when the pass is last month's", *summary.PassUpshot)
	}
}

func costFor(t *testing.T, pivot CostPivot, row int, column string) float64 {
	t.Helper()
	if row >= len(pivot.Rows) {
		t.Fatalf("row %d out of range (%d rows)", row, len(pivot.Rows))
	}
	for i, c := range pivot.Columns {
		if c == column {
			return pivot.Rows[row].Costs[i]
		}
	}
	t.Fatalf("column %q not in %v", column, pivot.Columns)
	return 0
}
