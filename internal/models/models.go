package models

import (
	"strings"
	"time"
)

// TripTableCategories is the column order for trip-count pivot tables.
// Dual-tap modes are counted by their entrance leg.
var TripTableCategories = []string{
	"Muni Bus",
	"Muni Metro",
	"BART Entrance",
	"Cable Car",
	"Caltrain Entrance",
	"Ferry Entrance",
	"AC Transit",
	"SamTrans",
}

// CostTableCategories is the column order for cost pivot tables.
// BART cost rides on the exit leg; Caltrain and Ferry are net columns
// computed from both legs.
var CostTableCategories = []string{
	"Muni Bus",
	"Muni Metro",
	"BART Exit",
	"Cable Car",
	"Caltrain",
	"Ferry",
	"AC Transit",
	"SamTrans",
}

// DisplayCategories is the mode vocabulary shown to users.
var DisplayCategories = []string{
	"Muni Bus", "Muni Metro", "BART", "Cable Car",
	"Caltrain", "Ferry", "AC Transit", "SamTrans",
}

// SubmitCategories maps a display mode to the category recorded for a
// manually entered ride.
var SubmitCategories = map[string]string{
	"Muni Bus":   "Muni Bus",
	"Muni Metro": "Muni Metro",
	"BART":       "BART Entrance",
	"Cable Car":  "Cable Car",
	"Caltrain":   "Caltrain Entrance",
	"Ferry":      "Ferry Entrance",
	"AC Transit": "AC Transit",
	"SamTrans":   "SamTrans",
}

// ColorMap assigns each transit mode its chart color.
var ColorMap = map[string]string{
	"Muni Bus":   "#BA0C2F",
	"Muni Metro": "#FDB813",
	"BART":       "#0099CC",
	"Cable Car":  "#8B4513",
	"Caltrain":   "#6C6C6C",
	"AC Transit": "#00A55E",
	"Ferry":      "#4DD0E1",
	"SamTrans":   "#D3D3D3",
}

// DualTapModes require both an entry and an exit tap; the fare is only
// final at exit.
var DualTapModes = map[string]bool{
	"BART":     true,
	"Caltrain": true,
	"Ferry":    true,
}

// Monthly pass constants for the single pass product in circulation.
const (
	MonthlyPassProduct = "Caltrain Adult 3 Zone Monthly Pass"
	MonthlyPassCost    = 184.80
	MonthlyPassFare    = 7.70 // per-ride fare the pass replaces
)

// ManualEntryType marks transactions added by hand rather than extracted
// from a statement.
const ManualEntryType = "Manual entry"

// Transaction is one tap, payment, or manual adjustment on a card.
// String fields use "" for null; money fields use nil.
type Transaction struct {
	ID       int64
	RiderID  string
	Date     time.Time // ordering key, minute-or-second precision
	Type     string    // statement wording, or entry/exit once stored
	Category string    // derived mode-and-direction label, "" until categorized
	Location string
	Route    string
	Debit    *float64
	Credit   *float64
	Balance  *float64
	Product  string

	ContentHash string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Categorized reports whether a category has been assigned.
func (t Transaction) Categorized() bool {
	return t.Category != ""
}

// Mode returns the transit mode portion of the category, with any
// Entrance/Exit suffix removed. Reload and uncategorized rows return the
// category as-is.
func (t Transaction) Mode() string {
	if m, ok := strings.CutSuffix(t.Category, " Entrance"); ok {
		return m
	}
	if m, ok := strings.CutSuffix(t.Category, " Exit"); ok {
		return m
	}
	return t.Category
}

// IsReload reports whether the transaction adds value or a pass rather
// than recording a trip.
func (t Transaction) IsReload() bool {
	return t.Category == "Reload"
}

// DebitAmount returns the debit, or 0 when null.
func (t Transaction) DebitAmount() float64 {
	if t.Debit == nil {
		return 0
	}
	return *t.Debit
}

// CreditAmount returns the credit, or 0 when null.
func (t Transaction) CreditAmount() float64 {
	if t.Credit == nil {
		return 0
	}
	return *t.Credit
}

// NetAmount is debit minus credit with nulls as zero.
func (t Transaction) NetAmount() float64 {
	return t.DebitAmount() - t.CreditAmount()
}

// IsPassPurchase reports whether the row is a monthly-pass reload: a
// Reload-category row for a Caltrain pass product with a credit large
// enough to be a pass rather than a fare refund.
func (t Transaction) IsPassPurchase() bool {
	return t.Category == "Reload" &&
		strings.Contains(t.Product, "Caltrain") &&
		strings.Contains(t.Product, "Pass") &&
		t.Credit != nil && *t.Credit > 100
}

// IsPassCoveredRide reports whether the row is a Caltrain exit traveling
// on a pass product.
func (t Transaction) IsPassCoveredRide() bool {
	return strings.Contains(t.Product, "Caltrain") &&
		strings.Contains(t.Product, "Pass") &&
		strings.Contains(t.Category, "Caltrain") &&
		t.Type == "exit"
}

// Rider is one card holder; all transactions are scoped to a rider.
type Rider struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransitMode is a row of the mode vocabulary table.
type TransitMode struct {
	ID          int64
	Name        string
	DisplayName string
	Color       string
}

// MergeStatus is the terminal persistence state of an incoming row.
type MergeStatus int

const (
	MergeNew MergeStatus = iota
	MergeDuplicate
	MergeUpdated
	MergeSkipped // row that cannot be persisted (null date)
)

func (s MergeStatus) String() string {
	switch s {
	case MergeNew:
		return "new"
	case MergeDuplicate:
		return "duplicate"
	case MergeUpdated:
		return "updated"
	case MergeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MergeResult accounts for every row of a persisted batch.
type MergeResult struct {
	Incoming   int
	New        int
	Duplicates int
	Updated    int
	Skipped    int
}

// Job is a queued background task.
type Job struct {
	ID          int64
	JobType     string
	Payload     string // JSON payload
	Status      string // pending, running, completed, failed
	Progress    int    // 0-100
	Result      string // JSON result or error message
	Attempts    int
	MaxAttempts int
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Card is a Clipper card registered on a clippercard.com account.
type Card struct {
	Serial   string
	Nickname string
}
