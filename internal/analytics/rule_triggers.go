package analytics

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/rfq-cli/internal/model"
)

// RuleTriggerTotals aggregates counts across all rules.
type RuleTriggerTotals struct {
	Events                int `json:"events"`
	Outcomes              int `json:"outcomes"`
	Passes                int `json:"passes"`
	Flags                 int `json:"flags"`
	AutoDeclineCandidates int `json:"auto_decline_candidates"`
	AutoDeclineEvents     int `json:"auto_decline_events"` // evaluations with at least one candidate
	DecisionsRecorded     int `json:"decisions_recorded"`
	Skipped               int `json:"skipped_events"`
}

// RuleTriggerSummary is the result of FoldRuleTriggers.
type RuleTriggerSummary struct {
	Start             time.Time                       `json:"start,omitempty"`
	End               time.Time                       `json:"end,omitempty"`
	ByRule            map[string]map[model.Action]int `json:"by_rule"`
	AutoDeclineByRule map[string]int                  `json:"auto_decline_by_rule"`
	Totals            RuleTriggerTotals               `json:"totals"`
}

// AutoDeclineRate is the share of evaluations that produced at least one
// auto-decline candidate. It is zero when there were no evaluations.
func (s RuleTriggerSummary) AutoDeclineRate() float64 {
	if s.Totals.Events == 0 {
		return 0
	}
	return float64(s.Totals.AutoDeclineEvents) / float64(s.Totals.Events)
}

// FoldRuleTriggers groups rule outcomes of evaluation events by rule id and
// action. A zero start or end leaves that side of the range open; both
// bounds are inclusive. Malformed events are skipped and counted.
func FoldRuleTriggers(events []model.AuditEvent, start, end time.Time) RuleTriggerSummary {
	out := RuleTriggerSummary{
		Start:             start,
		End:               end,
		ByRule:            make(map[string]map[model.Action]int),
		AutoDeclineByRule: make(map[string]int),
	}

	for _, ev := range events {
		if ev.Kind != model.EventEvaluation {
			continue
		}
		if !start.IsZero() && ev.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && ev.Timestamp.After(end) {
			continue
		}
		eval, err := ev.ParseEvaluation()
		if err != nil {
			out.Totals.Skipped++
			zap.L().Warn("analytics: skipping malformed audit event",
				zap.String("event_id", ev.ID),
				zap.Error(err),
			)
			continue
		}

		out.Totals.Events++
		if eval.DecisionRecorded {
			out.Totals.DecisionsRecorded++
		}
		declined := false
		for _, o := range eval.RuleOutcomes {
			actions, ok := out.ByRule[o.RuleID]
			if !ok {
				actions = make(map[model.Action]int)
				out.ByRule[o.RuleID] = actions
			}
			actions[o.Action]++
			out.Totals.Outcomes++

			switch o.Action {
			case model.ActionPass:
				out.Totals.Passes++
			case model.ActionFlag:
				out.Totals.Flags++
			case model.ActionAutoDecline:
				out.Totals.AutoDeclineCandidates++
				out.AutoDeclineByRule[o.RuleID]++
				declined = true
			}
		}
		if declined {
			out.Totals.AutoDeclineEvents++
		}
	}
	return out
}
