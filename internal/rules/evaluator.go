package rules

import (
	"strings"

	"github.com/sells-group/rfq-cli/internal/model"
)

// Evaluate runs every catalog rule against r and returns one outcome per rule
// in catalog order. It never short-circuits, so flags are still reported
// alongside an earlier auto-decline. A rule whose required attributes are
// missing reports PASS with the missing fields in its reason. r is not
// modified.
func Evaluate(r *model.RFQ, env Env) []model.RuleOutcome {
	return EvaluateRules(catalog, r, env)
}

// EvaluateRules is Evaluate over an arbitrary rule list.
func EvaluateRules(list []Rule, r *model.RFQ, env Env) []model.RuleOutcome {
	rec := r.Clone()
	outcomes := make([]model.RuleOutcome, 0, len(list))
	for _, rule := range list {
		outcomes = append(outcomes, apply(rule, rec, env))
	}
	return outcomes
}

func apply(rule Rule, r *model.RFQ, env Env) model.RuleOutcome {
	if missing := missingAttrs(r, env, rule.Requires); len(missing) > 0 {
		return model.RuleOutcome{
			RuleID: rule.ID,
			Action: model.ActionPass,
			Reason: "skipped: missing " + strings.Join(missing, ", "),
		}
	}

	m, ok := rule.Check(r, env)
	if !ok {
		return model.RuleOutcome{
			RuleID: rule.ID,
			Action: model.ActionPass,
			Reason: "not triggered",
		}
	}
	return model.RuleOutcome{
		RuleID: rule.ID,
		Action: rule.Action,
		Tag:    m.Tag,
		Reason: m.Reason,
	}
}

func missingAttrs(r *model.RFQ, env Env, required []string) []string {
	var missing []string
	for _, attr := range required {
		var absent bool
		switch attr {
		case AttrEstimatedValue:
			absent = r.EstimatedValue == nil
		case AttrCompetitionLevel:
			absent = r.CompetitionLevel == nil
		case AttrDeadline:
			absent = r.Deadline == nil
		case AttrCustomer:
			absent = r.Customer == "" || env.Tables == nil
		case AttrTechVertical:
			absent = r.TechVertical == "" || env.Tables == nil
		case AttrRFQType:
			absent = r.RFQType == ""
		}
		if absent {
			missing = append(missing, attr)
		}
	}
	return missing
}
