// Package stats builds the trip-count and cost pivot tables and the
// dashboard summary from categorized transactions.
package stats

import (
	"sort"
	"strings"
	"time"

	"github.com/kavwad/clippertv/internal/models"
)

// TripPivot counts trips per period and transit mode. Rows are sorted
// newest period first; Columns hold display labels in canonical order
// with the "Entrance" suffix stripped, since the entrance leg stands
// in for the whole ride.
type TripPivot struct {
	Columns []string
	Rows    []TripRow
}

// TripRow is one period's counts, aligned with the pivot's Columns.
type TripRow struct {
	Period string
	Counts []int
}

// Total sums the row's counts.
func (r TripRow) Total() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}

// CostPivot holds net cost per period and transit mode. Caltrain and
// Ferry are net columns computed from both tap legs; BART cost rides
// on its exit leg alone, displayed as "BART".
type CostPivot struct {
	Columns []string
	Rows    []CostRow
}

// CostRow is one period's costs, aligned with the pivot's Columns.
type CostRow struct {
	Period string
	Costs  []float64
}

// Total sums the row's costs.
func (r CostRow) Total() float64 {
	var sum float64
	for _, c := range r.Costs {
		sum += c
	}
	return sum
}

func yearKey(t time.Time) string  { return t.Format("2006") }
func monthKey(t time.Time) string { return t.Format("2006-01") }

// TripsByYear pivots trip counts by calendar year.
func TripsByYear(txns []models.Transaction) TripPivot {
	return tripPivot(txns, yearKey)
}

// TripsByMonth pivots trip counts by calendar month.
func TripsByMonth(txns []models.Transaction) TripPivot {
	return tripPivot(txns, monthKey)
}

func tripPivot(txns []models.Transaction, key func(time.Time) string) TripPivot {
	counts := make(map[string]map[string]int)
	for _, t := range txns {
		p := key(t.Date)
		if counts[p] == nil {
			counts[p] = make(map[string]int)
		}
		counts[p][t.Category]++
	}

	columns := make([]string, len(models.TripTableCategories))
	for i, c := range models.TripTableCategories {
		columns[i] = strings.Replace(c, " Entrance", "", 1)
	}

	pivot := TripPivot{Columns: columns}
	for _, p := range sortedPeriodsDesc(counts) {
		row := TripRow{Period: p, Counts: make([]int, len(models.TripTableCategories))}
		for i, c := range models.TripTableCategories {
			row.Counts[i] = counts[p][c]
		}
		pivot.Rows = append(pivot.Rows, row)
	}
	return pivot
}

// CostsByYear pivots net costs by calendar year.
func CostsByYear(txns []models.Transaction) CostPivot {
	return costPivot(txns, yearKey)
}

// CostsByMonth pivots net costs by calendar month.
func CostsByMonth(txns []models.Transaction) CostPivot {
	return costPivot(txns, monthKey)
}

func costPivot(txns []models.Transaction, key func(time.Time) string) CostPivot {
	type sums struct{ debit, credit float64 }
	agg := make(map[string]map[string]*sums)
	for _, t := range txns {
		p := key(t.Date)
		if agg[p] == nil {
			agg[p] = make(map[string]*sums)
		}
		s := agg[p][t.Category]
		if s == nil {
			s = &sums{}
			agg[p][t.Category] = s
		}
		s.debit += t.DebitAmount()
		s.credit += t.CreditAmount()
	}

	// Pass purchases land in the period of first covered use, which
	// always holds either the covered exit or the purchase itself,
	// so the period is already present.
	passByPeriod := make(map[string]float64)
	for _, pc := range attributePassCosts(txns) {
		passByPeriod[key(pc.date)] += pc.cost
	}

	columns := make([]string, len(models.CostTableCategories))
	for i, c := range models.CostTableCategories {
		if c == "BART Exit" {
			c = "BART"
		}
		columns[i] = c
	}

	pivot := CostPivot{Columns: columns}
	for _, p := range sortedPeriodsDesc(agg) {
		byCat := agg[p]
		debit := func(c string) float64 {
			if s := byCat[c]; s != nil {
				return s.debit
			}
			return 0
		}
		credit := func(c string) float64 {
			if s := byCat[c]; s != nil {
				return s.credit
			}
			return 0
		}

		row := CostRow{Period: p, Costs: make([]float64, len(models.CostTableCategories))}
		for i, c := range models.CostTableCategories {
			switch c {
			case "Caltrain":
				row.Costs[i] = debit("Caltrain Entrance") + passByPeriod[p] - credit("Caltrain Exit")
			case "Ferry":
				row.Costs[i] = debit("Ferry Entrance") + debit("Ferry Exit") - credit("Ferry Exit")
			default:
				row.Costs[i] = debit(c)
			}
		}
		pivot.Rows = append(pivot.Rows, row)
	}
	return pivot
}

type passCost struct {
	date time.Time
	cost float64
}

// attributePassCosts assigns each monthly-pass purchase to the date
// of the first pass-covered ride on or after the purchase, falling
// back to the purchase date when no covered ride exists. A rider who
// buys a pass mid-month for the next month would otherwise have that
// month's cost overstated and the next month's understated.
func attributePassCosts(txns []models.Transaction) []passCost {
	var rides []time.Time
	for _, t := range txns {
		if t.IsPassCoveredRide() {
			rides = append(rides, t.Date)
		}
	}
	sort.Slice(rides, func(i, j int) bool { return rides[i].Before(rides[j]) })

	var out []passCost
	for _, t := range txns {
		if !t.IsPassPurchase() {
			continue
		}
		attributed := t.Date
		for _, ride := range rides {
			if !ride.Before(t.Date) {
				attributed = ride
				break
			}
		}
		out = append(out, passCost{date: attributed, cost: t.CreditAmount()})
	}
	return out
}

// FreeTransfers counts single-tag taps with no fare deducted. Useful
// on freshly extracted statements, where the raw tap type is still
// present.
func FreeTransfers(txns []models.Transaction) int {
	n := 0
	for _, t := range txns {
		if t.Type == "Single-tag fare payment" && t.Debit == nil {
			n++
		}
	}
	return n
}

func sortedPeriodsDesc[V any](m map[string]V) []string {
	periods := make([]string, 0, len(m))
	for p := range m {
		periods = append(periods, p)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(periods)))
	return periods
}
