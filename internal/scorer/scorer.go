package scorer

import (
	"github.com/sells-group/rfq-cli/internal/lookup"
	"github.com/sells-group/rfq-cli/internal/model"
)

// Recommendation labels, highest first.
const (
	RecommendGoHigh         = "GO – High Priority"
	RecommendGoConsider     = "GO – Consider Pursuit"
	RecommendReviewGo       = "REVIEW – Conditional GO"
	RecommendReviewLikelyNo = "REVIEW – Likely NO-GO"
	RecommendNoGo           = "NO-GO – Auto-Decline"
)

// Scorer is a pure function of an attribute record and its lookup tables.
type Scorer struct {
	table  Table
	tables *lookup.Tables
}

// New returns a Scorer. A nil tables falls back to lookup.Default.
func New(table Table, tables *lookup.Tables) *Scorer {
	if tables == nil {
		tables = lookup.Default()
	}
	return &Scorer{table: table, tables: tables}
}

// Score computes the per-category breakdown and the clamped total. Unknown
// inputs contribute the category's lowest tier.
func (s *Scorer) Score(r *model.RFQ) model.ScoreBreakdown {
	b := model.ScoreBreakdown{
		Value:       s.scoreValue(r),
		Customer:    s.scoreCustomer(r.Customer),
		Competition: s.scoreCompetition(r.CompetitionLevel),
		Technology:  s.scoreTechnology(r.TechVertical),
		OEM:         s.scoreOEM(r.OEM),
		Renewal:     s.scoreRenewal(r.HasPreviousContract),
	}
	total := b.Value + b.Customer + b.Competition + b.Technology + b.OEM + b.Renewal
	b.Total = clamp(total, 0, 100)
	return b
}

func (s *Scorer) scoreValue(r *model.RFQ) int {
	if r.EstimatedValue == nil {
		return s.table.ValueFloor
	}
	for _, step := range s.table.ValueSteps {
		if r.EstimatedValue.GreaterThanOrEqual(step.Min) {
			return step.Points
		}
	}
	return s.table.ValueFloor
}

func (s *Scorer) scoreCustomer(customer string) int {
	switch s.tables.CustomerTier(customer) {
	case lookup.TierCritical:
		return s.table.CriticalCustomer
	case lookup.TierHigh:
		return s.table.HighCustomer
	default:
		return 0
	}
}

func (s *Scorer) scoreCompetition(level *int) int {
	if level == nil {
		return 0
	}
	for _, step := range s.table.CompetitionSteps {
		if *level < step.Below {
			return step.Points
		}
	}
	return 0
}

func (s *Scorer) scoreTechnology(vertical string) int {
	switch s.tables.TechPriority(vertical) {
	case lookup.PriorityHigh:
		return s.table.HighTech
	case lookup.PriorityMedium:
		return s.table.MediumTech
	default:
		return 0
	}
}

func (s *Scorer) scoreOEM(oem string) int {
	if s.tables.AuthorizedOEM(oem) {
		return s.table.AuthorizedOEM
	}
	return 0
}

func (s *Scorer) scoreRenewal(previous bool) int {
	if previous {
		return s.table.Renewal
	}
	return 0
}

// Recommend maps a score onto the contiguous recommendation bands.
func Recommend(score int) string {
	switch {
	case score >= 75:
		return RecommendGoHigh
	case score >= 60:
		return RecommendGoConsider
	case score >= 45:
		return RecommendReviewGo
	case score >= 30:
		return RecommendReviewLikelyNo
	default:
		return RecommendNoGo
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
