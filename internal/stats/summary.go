package stats

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/kavwad/clippertv/internal/models"
)

// Summary is the dashboard headline for a rider's latest month.
type Summary struct {
	TripsThisMonth int       `json:"trips_this_month"`
	CostThisMonth  int       `json:"cost_this_month"`
	TripDiff       int       `json:"trip_diff"`
	TripDiffText   string    `json:"trip_diff_text"`
	CostDiff       int       `json:"cost_diff"`
	CostDiffText   string    `json:"cost_diff_text"`
	MostRecentDate time.Time `json:"most_recent_date"`
	PassUpshot     *int      `json:"pass_upshot"`
	MostUsedMode   string    `json:"most_used_mode"`
}

// ErrNoData means the pivots hold no periods to summarize.
var ErrNoData = errors.New("no monthly data to summarize")

// Summarize compares the newest month against the one before it. A
// table spanning a single month reports zero diffs rather than
// failing. The month-over-month texts read as "N fewer/more trips"
// and "$N less/more".
func Summarize(trips TripPivot, costs CostPivot, txns []models.Transaction) (Summary, error) {
	if len(trips.Rows) == 0 || len(costs.Rows) == 0 {
		return Summary{}, ErrNoData
	}

	current := trips.Rows[0]
	tripsThisMonth := current.Total()
	costThisMonth := int(math.RoundToEven(costs.Rows[0].Total()))

	prevTrips, prevCost := tripsThisMonth, costThisMonth
	if len(trips.Rows) > 1 {
		prevTrips = trips.Rows[1].Total()
	}
	if len(costs.Rows) > 1 {
		prevCost = int(math.RoundToEven(costs.Rows[1].Total()))
	}

	s := Summary{
		TripsThisMonth: tripsThisMonth,
		CostThisMonth:  costThisMonth,
		TripDiff:       prevTrips - tripsThisMonth,
		CostDiff:       prevCost - costThisMonth,
		MostUsedMode:   mostUsedMode(trips.Columns, current.Counts),
	}
	s.TripDiffText = "fewer"
	if s.TripDiff < 0 {
		s.TripDiffText = "more"
	}
	s.CostDiffText = "less"
	if s.CostDiff < 0 {
		s.CostDiffText = "more"
	}

	mostRecent := mostRecentDate(txns)
	s.MostRecentDate = mostRecent
	s.PassUpshot = passUpshot(txns, mostRecent)
	return s, nil
}

func mostRecentDate(txns []models.Transaction) time.Time {
	var max time.Time
	for _, t := range txns {
		if t.Date.After(max) {
			max = t.Date
		}
	}
	return max
}

// mostUsedMode returns the first column holding the row maximum.
func mostUsedMode(columns []string, counts []int) string {
	if len(columns) == 0 {
		return ""
	}
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return columns[best]
}

// passUpshot estimates what the current month's monthly pass saved
// (negative) or cost (positive) versus paying per ride: the pass
// price, minus the per-ride fare for each manually logged Caltrain
// ride, plus any Caltrain amounts paid on top of the pass. Nil when
// the month has no pass product at all.
func passUpshot(txns []models.Transaction, mostRecent time.Time) *int {
	year, month := mostRecent.Year(), mostRecent.Month()
	inMonth := func(t models.Transaction) bool {
		return t.Date.Year() == year && t.Date.Month() == month
	}

	hasPass := false
	manualRides := 0
	var caltrainDebit, caltrainCredit float64
	for _, t := range txns {
		if !inMonth(t) {
			continue
		}
		if t.Product == models.MonthlyPassProduct {
			hasPass = true
		}
		if strings.Contains(t.Category, "Caltrain") {
			if t.Type == models.ManualEntryType {
				manualRides++
			}
			caltrainDebit += t.DebitAmount()
			caltrainCredit += t.CreditAmount()
		}
	}
	if !hasPass {
		return nil
	}

	upshot := int(math.RoundToEven(
		-float64(manualRides)*models.MonthlyPassFare +
			models.MonthlyPassCost +
			(caltrainDebit - caltrainCredit)))
	return &upshot
}
