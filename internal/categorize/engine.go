package categorize

import (
	"fmt"
	"sort"

	"github.com/kavwad/clippertv/internal/models"
)

// Engine evaluates a rule set against transactions, highest
// precedence first.
type Engine struct {
	rules []Rule
}

// NewEngine builds an engine from the given rules. The rules are
// copied and sorted by descending precedence; declaration order
// breaks ties.
func NewEngine(rules []Rule) *Engine {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Precedence > sorted[j].Precedence
	})
	return &Engine{rules: sorted}
}

// Default returns an engine over the default rule table.
func Default() *Engine {
	return NewEngine(Rules)
}

// Categorize returns the category of the first matching rule.
func (e *Engine) Categorize(t models.Transaction) (string, bool) {
	for _, r := range e.rules {
		if r.Matches(t) {
			return r.Category, true
		}
	}
	return "", false
}

// Apply assigns a category to every uncategorized transaction, in
// place. Rows that already carry a category (manual entries) are left
// alone. A row no rule matches is a rule-set gap, reported through
// UncategorizedError so the caller can halt persistence rather than
// store rows that would corrupt aggregation.
func (e *Engine) Apply(txns []models.Transaction) error {
	var unmatched *UncategorizedError
	for i := range txns {
		if txns[i].Categorized() {
			continue
		}
		category, ok := e.Categorize(txns[i])
		if !ok {
			if unmatched == nil {
				unmatched = &UncategorizedError{}
			}
			unmatched.Rows = append(unmatched.Rows, i)
			continue
		}
		txns[i].Category = category
	}
	if unmatched != nil {
		return unmatched
	}
	return nil
}

// UncategorizedError reports batch rows no rule matched.
type UncategorizedError struct {
	// Rows holds the indexes of the unmatched transactions within
	// the batch passed to Apply.
	Rows []int
}

func (e *UncategorizedError) Error() string {
	if len(e.Rows) == 1 {
		return fmt.Sprintf("1 transaction matched no categorization rule (row %d)", e.Rows[0])
	}
	return fmt.Sprintf("%d transactions matched no categorization rule (first at row %d)", len(e.Rows), e.Rows[0])
}
