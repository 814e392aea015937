// Package rules holds the fixed, ordered rule catalog and the evaluator that
// applies it to an RFQ attribute record.
package rules

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sells-group/rfq-cli/internal/lookup"
	"github.com/sells-group/rfq-cli/internal/model"
)

// Attribute names a rule may require.
const (
	AttrEstimatedValue   = "estimated_value"
	AttrCompetitionLevel = "competition_level"
	AttrDeadline         = "deadline"
	AttrCustomer         = "customer"
	AttrTechVertical     = "tech_vertical"
	AttrRFQType          = "rfq_type"
)

// Outcome tags.
const (
	TagExecutiveNotification    = "executive-notification"
	TagSalesTeamAlert           = "sales-team-alert"
	TagStrategic                = "strategic"
	TagLowCompetitionHighValue  = "low-competition-high-value"
	TagPriorityTechnology       = "priority-technology"
	TagRenewal                  = "renewal"
	TagConsolidatedNotice       = "consolidated-notice"
	TagHighCompetitionLowValue  = "high-competition-low-value"
	TagUltraLowValue            = "ultra-low-value"
	TagInsufficientResponseTime = "insufficient-time"
)

// Thresholds used by the catalog.
var (
	HighCompetitionBidders   = 125
	HighCompetitionMaxValue  = decimal.NewFromInt(15_000)
	UltraLowValue            = decimal.NewFromInt(2_000)
	ExecutiveValue           = decimal.NewFromInt(1_000_000)
	SalesAlertValue          = decimal.NewFromInt(200_000)
	LowCompetitionBidders    = 20
	LowCompetitionValueFloor = decimal.NewFromInt(20_000)
)

// Env carries everything besides the record that a rule may consult.
type Env struct {
	Now    time.Time
	Tables *lookup.Tables

	// LicenseRenewalFloor is the value below which a single-quantity renewal
	// is declined.
	LicenseRenewalFloor decimal.Decimal

	// InsufficientTimeDays is the largest number of days before the deadline
	// at which a complex RFQ is declined.
	InsufficientTimeDays int
}

// DefaultEnv returns an Env with the standard thresholds and tables.
func DefaultEnv(now time.Time) Env {
	return Env{
		Now:                  now,
		Tables:               lookup.Default(),
		LicenseRenewalFloor:  decimal.NewFromInt(5_000),
		InsufficientTimeDays: 2,
	}
}

// Match describes why a rule triggered.
type Match struct {
	Tag    string
	Reason string
}

// Rule is one catalog entry: a pure predicate plus the action it demands.
type Rule struct {
	ID       string
	Name     string
	Action   model.Action
	Requires []string
	Check    func(r *model.RFQ, env Env) (Match, bool)
}

var catalog = []Rule{
	{
		ID:       "R001",
		Name:     "consolidated-notice",
		Action:   model.ActionAutoDecline,
		Requires: []string{AttrRFQType},
		Check: func(r *model.RFQ, _ Env) (Match, bool) {
			if r.RFQType != model.RFQTypeConsolidatedNotice {
				return Match{}, false
			}
			return Match{TagConsolidatedNotice, "consolidated notice, not an actionable RFQ"}, true
		},
	},
	{
		ID:       "R002",
		Name:     "high-competition-low-value-renewal",
		Action:   model.ActionAutoDecline,
		Requires: []string{AttrCompetitionLevel, AttrEstimatedValue},
		Check: func(r *model.RFQ, _ Env) (Match, bool) {
			if *r.CompetitionLevel < HighCompetitionBidders ||
				!r.EstimatedValue.LessThan(HighCompetitionMaxValue) ||
				!r.HasPreviousContract {
				return Match{}, false
			}
			return Match{
				TagHighCompetitionLowValue,
				fmt.Sprintf("%d bidders on a %s renewal", *r.CompetitionLevel, money(*r.EstimatedValue)),
			}, true
		},
	},
	{
		ID:       "R003",
		Name:     "ultra-low-value",
		Action:   model.ActionAutoDecline,
		Requires: []string{AttrEstimatedValue},
		Check: func(r *model.RFQ, env Env) (Match, bool) {
			v := *r.EstimatedValue
			if v.LessThan(UltraLowValue) {
				return Match{TagUltraLowValue, fmt.Sprintf("value %s below %s", money(v), money(UltraLowValue))}, true
			}
			if r.Quantity == 1 && r.RFQType == model.RFQTypeRenewal && v.LessThan(env.LicenseRenewalFloor) {
				return Match{
					TagUltraLowValue,
					fmt.Sprintf("single license renewal %s below %s", money(v), money(env.LicenseRenewalFloor)),
				}, true
			}
			return Match{}, false
		},
	},
	{
		ID:       "R004",
		Name:     "insufficient-time",
		Action:   model.ActionAutoDecline,
		Requires: []string{AttrDeadline},
		Check: func(r *model.RFQ, env Env) (Match, bool) {
			days := daysUntil(env.Now, *r.Deadline)
			if days > env.InsufficientTimeDays || len(r.ComplexityFlags) == 0 {
				return Match{}, false
			}
			return Match{
				TagInsufficientResponseTime,
				fmt.Sprintf("%d day(s) to deadline with %d complexity flag(s)", days, len(r.ComplexityFlags)),
			}, true
		},
	},
	{
		ID:       "R005",
		Name:     "high-value",
		Action:   model.ActionFlag,
		Requires: []string{AttrEstimatedValue},
		Check: func(r *model.RFQ, _ Env) (Match, bool) {
			v := *r.EstimatedValue
			switch {
			case v.GreaterThanOrEqual(ExecutiveValue):
				return Match{TagExecutiveNotification, fmt.Sprintf("value %s at or above %s", money(v), money(ExecutiveValue))}, true
			case v.GreaterThanOrEqual(SalesAlertValue):
				return Match{TagSalesTeamAlert, fmt.Sprintf("value %s at or above %s", money(v), money(SalesAlertValue))}, true
			}
			return Match{}, false
		},
	},
	{
		ID:       "R006",
		Name:     "strategic-customer",
		Action:   model.ActionFlag,
		Requires: []string{AttrCustomer},
		Check: func(r *model.RFQ, env Env) (Match, bool) {
			tier := env.Tables.CustomerTier(r.Customer)
			if !tier.Strategic() {
				return Match{}, false
			}
			return Match{TagStrategic, fmt.Sprintf("%s is a %s tier customer", r.Customer, tier)}, true
		},
	},
	{
		ID:       "R007",
		Name:     "low-competition-high-value",
		Action:   model.ActionFlag,
		Requires: []string{AttrCompetitionLevel, AttrEstimatedValue},
		Check: func(r *model.RFQ, _ Env) (Match, bool) {
			if *r.CompetitionLevel >= LowCompetitionBidders || r.EstimatedValue.LessThan(LowCompetitionValueFloor) {
				return Match{}, false
			}
			return Match{
				TagLowCompetitionHighValue,
				fmt.Sprintf("%d bidders on %s", *r.CompetitionLevel, money(*r.EstimatedValue)),
			}, true
		},
	},
	{
		ID:       "R008",
		Name:     "priority-technology",
		Action:   model.ActionFlag,
		Requires: []string{AttrTechVertical},
		Check: func(r *model.RFQ, env Env) (Match, bool) {
			if env.Tables.TechPriority(r.TechVertical) != lookup.PriorityHigh {
				return Match{}, false
			}
			return Match{TagPriorityTechnology, fmt.Sprintf("%s is a high-priority vertical", r.TechVertical)}, true
		},
	},
	{
		ID:     "R009",
		Name:   "existing-customer-renewal",
		Action: model.ActionFlag,
		Check: func(r *model.RFQ, _ Env) (Match, bool) {
			if !r.HasPreviousContract {
				return Match{}, false
			}
			return Match{TagRenewal, "renewal of an existing contract"}, true
		},
	},
}

// Catalog returns the rules in evaluation order. The returned slice is a copy.
func Catalog() []Rule {
	out := make([]Rule, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the rule with the given id.
func Lookup(id string) (Rule, bool) {
	for _, r := range catalog {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

// daysUntil counts whole calendar days from now to deadline in UTC.
// Past deadlines yield negative values.
func daysUntil(now, deadline time.Time) int {
	y1, m1, d1 := now.UTC().Date()
	y2, m2, d2 := deadline.UTC().Date()
	from := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	to := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(0)
}
