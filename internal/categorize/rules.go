// Package categorize assigns transit-mode categories to transactions
// using a declarative rule table. Rules are data: each one pairs a
// category with a predicate set and a precedence, and a single engine
// evaluates them. Extending coverage to a new operator means adding a
// rule, not touching the engine.
package categorize

import (
	"regexp"
	"strings"

	"github.com/kavwad/clippertv/internal/models"
)

// Field names the transaction field a condition inspects.
type Field int

const (
	FieldType Field = iota
	FieldLocation
	FieldRoute
)

func (f Field) String() string {
	switch f {
	case FieldType:
		return "transaction type"
	case FieldLocation:
		return "location"
	case FieldRoute:
		return "route"
	}
	return "unknown"
}

// Condition is a single field-level predicate. Zero-valued checks are
// inactive; the active ones combine with AND. The empty string is the
// null value for statement fields, which is what IsNull tests.
type Condition struct {
	Field    Field
	Equals   string
	Regex    *regexp.Regexp
	EndsWith string
	IsIn     []string
	IsNull   bool
	NotNull  bool
}

func (c Condition) value(t models.Transaction) string {
	switch c.Field {
	case FieldLocation:
		return t.Location
	case FieldRoute:
		return t.Route
	default:
		return t.Type
	}
}

func (c Condition) matches(t models.Transaction) bool {
	v := c.value(t)
	if c.Equals != "" && v != c.Equals {
		return false
	}
	if c.Regex != nil && !c.Regex.MatchString(v) {
		return false
	}
	if c.EndsWith != "" && !strings.HasSuffix(v, c.EndsWith) {
		return false
	}
	if len(c.IsIn) > 0 {
		found := false
		for _, s := range c.IsIn {
			if v == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if c.IsNull && v != "" {
		return false
	}
	if c.NotNull && v == "" {
		return false
	}
	return true
}

// Rule maps a predicate set to a category. Higher precedence wins;
// among the defaults every precedence is distinct, so evaluation
// order is total.
type Rule struct {
	Category   string
	Precedence int
	Conditions []Condition
}

// Matches reports whether every condition holds for the transaction.
func (r Rule) Matches(t models.Transaction) bool {
	for _, c := range r.Conditions {
		if !c.matches(t) {
			return false
		}
	}
	return true
}

// Rules is the default categorization table.
//
// Precedence resolves ambiguous signals: a maximum-fare entry tap
// reads as Caltrain when Route is null but as Ferry when Route says
// FERRY, and a Golden Gate Ferry location identifies a ferry entry
// regardless of transaction type. Reload sits below every transit
// rule so a reload-shaped row can never shadow a trip.
var Rules = []Rule{
	{
		Category:   "Caltrain Entrance",
		Precedence: 100,
		Conditions: []Condition{
			{Field: FieldType, Regex: regexp.MustCompile(`Dual-tag entry transaction.*purse debit`)},
			{Field: FieldRoute, IsNull: true},
		},
	},
	{
		Category:   "Caltrain Exit",
		Precedence: 95,
		Conditions: []Condition{
			{Field: FieldType, Regex: regexp.MustCompile(`Dual-tag exit transaction.*fare adjustment`)},
			{Field: FieldRoute, IsNull: true},
		},
	},
	{
		Category:   "Ferry Entrance",
		Precedence: 90,
		Conditions: []Condition{
			{Field: FieldType, Regex: regexp.MustCompile(`Dual-tag entry transaction.*purse debit`)},
			{Field: FieldRoute, Equals: "FERRY"},
		},
	},
	{
		Category:   "Ferry Entrance",
		Precedence: 85,
		Conditions: []Condition{
			{Field: FieldLocation, EndsWith: "(GGF)"},
		},
	},
	{
		Category:   "Ferry Exit",
		Precedence: 80,
		Conditions: []Condition{
			{Field: FieldType, Regex: regexp.MustCompile(`Dual-tag exit transaction.*fare adjustment`)},
			{Field: FieldRoute, Equals: "FERRY"},
		},
	},
	{
		Category:   "BART Entrance",
		Precedence: 70,
		Conditions: []Condition{
			{Field: FieldType, Regex: regexp.MustCompile(`Dual-tag entry transaction, no fare deduction`)},
		},
	},
	{
		Category:   "BART Exit",
		Precedence: 65,
		Conditions: []Condition{
			{Field: FieldType, Regex: regexp.MustCompile(`Dual-tag exit transaction, fare payment`)},
		},
	},
	{
		Category:   "Cable Car",
		Precedence: 60,
		Conditions: []Condition{
			{Field: FieldRoute, Equals: "CC60"},
		},
	},
	{
		Category:   "AC Transit",
		Precedence: 55,
		Conditions: []Condition{
			{Field: FieldLocation, Equals: "ACT bus"},
		},
	},
	{
		Category:   "Muni Bus",
		Precedence: 50,
		Conditions: []Condition{
			{Field: FieldLocation, Equals: "SFM bus"},
		},
	},
	{
		Category:   "Muni Metro",
		Precedence: 45,
		Conditions: []Condition{
			{Field: FieldRoute, Equals: "NONE"},
		},
	},
	{
		Category:   "SamTrans",
		Precedence: 40,
		Conditions: []Condition{
			{Field: FieldLocation, Equals: "SAM bus"},
		},
	},
	{
		Category:   "Reload",
		Precedence: 30,
		Conditions: []Condition{
			{Field: FieldType, IsIn: []string{
				"Threshold auto-load at a TransLink Device",
				"Add value at TOT or TVM",
				"Remote create of new pass",
			}},
		},
	},
}
