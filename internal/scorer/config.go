// Package scorer computes the 0-100 composite RFQ score from six
// independently capped categories and maps it to a recommendation.
package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// ValueStep awards Points when the estimated value is at least Min.
type ValueStep struct {
	Min    decimal.Decimal
	Points int
}

// CompetitionStep awards Points when the bidder count is below Below.
type CompetitionStep struct {
	Below  int
	Points int
}

// Table holds the scoring breakpoints. Steps are checked in order and the
// first match wins.
type Table struct {
	ValueSteps []ValueStep
	ValueFloor int // awarded when no step matches, including unknown value

	CriticalCustomer int
	HighCustomer     int

	CompetitionSteps []CompetitionStep

	HighTech   int
	MediumTech int

	AuthorizedOEM int
	Renewal       int
}

// DefaultTable returns the standard scoring table. Category maxima are
// 40/25/15/10/10/10; the total is clamped to 100.
func DefaultTable() Table {
	return Table{
		ValueSteps: []ValueStep{
			{Min: decimal.NewFromInt(1_000_000), Points: 40},
			{Min: decimal.NewFromInt(200_000), Points: 30},
			{Min: decimal.NewFromInt(20_000), Points: 20},
		},
		ValueFloor: 10,

		CriticalCustomer: 25,
		HighCustomer:     15,

		CompetitionSteps: []CompetitionStep{
			{Below: 20, Points: 15},
			{Below: 50, Points: 10},
			{Below: 100, Points: 5},
		},

		HighTech:   10,
		MediumTech: 5,

		AuthorizedOEM: 10,
		Renewal:       10,
	}
}

// MaxPoints returns the sum of every category's maximum before clamping.
func (t Table) MaxPoints() int {
	maxValue := t.ValueFloor
	for _, s := range t.ValueSteps {
		maxValue = max(maxValue, s.Points)
	}
	maxComp := 0
	for _, s := range t.CompetitionSteps {
		maxComp = max(maxComp, s.Points)
	}
	return maxValue + max(t.CriticalCustomer, t.HighCustomer) + maxComp +
		max(t.HighTech, t.MediumTech) + t.AuthorizedOEM + t.Renewal
}

// ValidateTable checks that a Table is internally consistent.
func ValidateTable(t Table) error {
	var errs []string

	points := map[string]int{
		"value_floor":       t.ValueFloor,
		"critical_customer": t.CriticalCustomer,
		"high_customer":     t.HighCustomer,
		"high_tech":         t.HighTech,
		"medium_tech":       t.MediumTech,
		"authorized_oem":    t.AuthorizedOEM,
		"renewal":           t.Renewal,
	}
	for name, p := range points {
		if p < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	// Value steps descend so the first match is the highest tier.
	for i, s := range t.ValueSteps {
		if s.Points < 0 {
			errs = append(errs, fmt.Sprintf("value step %d points must be >= 0", i))
		}
		if s.Min.IsNegative() {
			errs = append(errs, fmt.Sprintf("value step %d min must be >= 0", i))
		}
		if i > 0 && !s.Min.LessThan(t.ValueSteps[i-1].Min) {
			errs = append(errs, fmt.Sprintf("value step %d min must be below step %d", i, i-1))
		}
	}

	// Competition steps ascend so the first match is the fewest bidders.
	for i, s := range t.CompetitionSteps {
		if s.Points < 0 {
			errs = append(errs, fmt.Sprintf("competition step %d points must be >= 0", i))
		}
		if i > 0 && s.Below <= t.CompetitionSteps[i-1].Below {
			errs = append(errs, fmt.Sprintf("competition step %d must be above step %d", i, i-1))
		}
	}

	if t.MaxPoints() <= 0 {
		errs = append(errs, "table must be able to award points")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: table validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
