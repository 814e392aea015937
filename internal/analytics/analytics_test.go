package analytics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rfq-cli/internal/model"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(d int) time.Time {
	return now.Add(-time.Duration(d) * 24 * time.Hour)
}

func occ(t *testing.T, oem string, value int64, ts time.Time) model.AuditEvent {
	t.Helper()
	ev, err := model.NewOEMOccurrenceEvent("", ts, model.OEMOccurrence{OEM: oem, EstimatedValue: decimal.NewFromInt(value)})
	require.NoError(t, err)
	return ev
}

func evaluation(t *testing.T, ts time.Time, recorded bool, outcomes ...model.RuleOutcome) model.AuditEvent {
	t.Helper()
	if outcomes == nil {
		outcomes = []model.RuleOutcome{}
	}
	ev, err := model.NewEvaluationEvent("rfq", ts, model.Evaluation{RuleOutcomes: outcomes, DecisionRecorded: recorded})
	require.NoError(t, err)
	return ev
}

func malformed(kind model.EventKind, ts time.Time, payload string) model.AuditEvent {
	return model.AuditEvent{ID: "bad-" + string(kind), Kind: kind, Timestamp: ts, Payload: json.RawMessage(payload)}
}

func TestFoldBusinessCase_MinOccurrencesAndWindow(t *testing.T) {
	var events []model.AuditEvent
	// Cisco: 5 in window, 3 outside.
	for i := 0; i < 5; i++ {
		events = append(events, occ(t, "Cisco", 100_000, daysAgo(10+i)))
	}
	for i := 0; i < 3; i++ {
		events = append(events, occ(t, "Cisco", 100_000, daysAgo(91+i)))
	}
	// Dell: 4 in window, 10 outside; would qualify only if old events counted.
	for i := 0; i < 4; i++ {
		events = append(events, occ(t, "Dell", 50_000, daysAgo(i)))
	}
	for i := 0; i < 10; i++ {
		events = append(events, occ(t, "Dell", 50_000, daysAgo(120)))
	}

	got := FoldBusinessCase(events, BusinessCaseQuery{MinOccurrences: 5, Now: now})
	require.Len(t, got.Vendors, 1)
	assert.Equal(t, "Cisco", got.Vendors[0].OEM)
	assert.Equal(t, 5, got.Vendors[0].OccurrenceCount)
	assert.True(t, got.Vendors[0].TotalValue.Equal(decimal.NewFromInt(500_000)))
	assert.True(t, got.Vendors[0].FirstSeen.Equal(daysAgo(14)))
	assert.True(t, got.Vendors[0].LastSeen.Equal(daysAgo(10)))
	assert.True(t, got.WindowStart.Equal(daysAgo(90)))
	assert.True(t, got.WindowEnd.Equal(now))
	assert.Zero(t, got.Skipped)
}

func TestFoldBusinessCase_WindowIsInclusive(t *testing.T) {
	events := []model.AuditEvent{
		occ(t, "HPE", 1, daysAgo(90)),
		occ(t, "HPE", 1, now),
		occ(t, "HPE", 1, now.Add(time.Second)),
	}
	got := FoldBusinessCase(events, BusinessCaseQuery{Now: now})
	require.Len(t, got.Vendors, 1)
	assert.Equal(t, 2, got.Vendors[0].OccurrenceCount)
}

func TestFoldBusinessCase_MinTotalValue(t *testing.T) {
	events := []model.AuditEvent{
		occ(t, "Cisco", 300_000, daysAgo(1)),
		occ(t, "Dell", 100_000, daysAgo(1)),
		occ(t, "Dell", 100_000, daysAgo(2)),
	}
	got := FoldBusinessCase(events, BusinessCaseQuery{MinTotalValue: decimal.NewFromInt(250_000), Now: now})
	require.Len(t, got.Vendors, 1)
	assert.Equal(t, "Cisco", got.Vendors[0].OEM)
}

func TestFoldBusinessCase_GroupsCaseInsensitively(t *testing.T) {
	events := []model.AuditEvent{
		occ(t, "Palo Alto Networks", 10, daysAgo(1)),
		occ(t, "palo alto  networks", 20, daysAgo(2)),
		occ(t, "PALO ALTO NETWORKS", 30, daysAgo(3)),
	}
	got := FoldBusinessCase(events, BusinessCaseQuery{Now: now})
	require.Len(t, got.Vendors, 1)
	assert.Equal(t, "Palo Alto Networks", got.Vendors[0].OEM)
	assert.Equal(t, 3, got.Vendors[0].OccurrenceCount)
	assert.True(t, got.Vendors[0].TotalValue.Equal(decimal.NewFromInt(60)))
}

func TestFoldBusinessCase_Ordering(t *testing.T) {
	events := []model.AuditEvent{
		occ(t, "Beta", 10, daysAgo(1)),
		occ(t, "Alpha", 10, daysAgo(1)),
		occ(t, "Gamma", 500, daysAgo(1)),
		occ(t, "Delta", 1, daysAgo(1)),
		occ(t, "Delta", 1, daysAgo(2)),
	}
	got := FoldBusinessCase(events, BusinessCaseQuery{Now: now})
	var names []string
	for _, v := range got.Vendors {
		names = append(names, v.OEM)
	}
	assert.Equal(t, []string{"Delta", "Gamma", "Alpha", "Beta"}, names)
}

func TestFoldBusinessCase_IgnoresEvaluationsAndSkipsMalformed(t *testing.T) {
	events := []model.AuditEvent{
		occ(t, "Cisco", 10, daysAgo(1)),
		evaluation(t, daysAgo(1), false),
		malformed(model.EventOEMOccurrence, daysAgo(1), `{"oem":""}`),
		malformed(model.EventOEMOccurrence, daysAgo(1), `not json`),
		malformed(model.EventOEMOccurrence, daysAgo(200), `not json`),
	}
	got := FoldBusinessCase(events, BusinessCaseQuery{Now: now})
	require.Len(t, got.Vendors, 1)
	assert.Equal(t, 1, got.Vendors[0].OccurrenceCount)
	assert.Equal(t, 2, got.Skipped)
}

func TestFoldBusinessCase_Empty(t *testing.T) {
	got := FoldBusinessCase(nil, BusinessCaseQuery{Now: now, Window: 7 * 24 * time.Hour})
	assert.NotNil(t, got.Vendors)
	assert.Empty(t, got.Vendors)
	assert.True(t, got.WindowStart.Equal(daysAgo(7)))
}

func TestFoldRuleTriggers_AutoDeclineCandidates(t *testing.T) {
	const n = 7
	var events []model.AuditEvent
	for i := 0; i < n; i++ {
		events = append(events, evaluation(t, daysAgo(i), false,
			model.RuleOutcome{RuleID: "R005", Action: model.ActionAutoDecline, Reason: "seeded"},
		))
	}
	got := FoldRuleTriggers(events, time.Time{}, time.Time{})
	assert.Equal(t, n, got.AutoDeclineByRule["R005"])
	assert.Equal(t, n, got.Totals.AutoDeclineCandidates)
	assert.Equal(t, n, got.Totals.AutoDeclineEvents)
	assert.Equal(t, n, got.ByRule["R005"][model.ActionAutoDecline])
	assert.Equal(t, n, got.Totals.Events)
	assert.InDelta(t, 1.0, got.AutoDeclineRate(), 1e-9)
}

func TestFoldRuleTriggers_GroupsByRuleAndAction(t *testing.T) {
	events := []model.AuditEvent{
		evaluation(t, daysAgo(1), true,
			model.RuleOutcome{RuleID: "R003", Action: model.ActionAutoDecline},
			model.RuleOutcome{RuleID: "R006", Action: model.ActionFlag},
			model.RuleOutcome{RuleID: "R001", Action: model.ActionPass},
		),
		evaluation(t, daysAgo(2), false,
			model.RuleOutcome{RuleID: "R003", Action: model.ActionPass},
			model.RuleOutcome{RuleID: "R006", Action: model.ActionFlag},
			model.RuleOutcome{RuleID: "R001", Action: model.ActionPass},
		),
		occ(t, "Cisco", 1, daysAgo(1)),
	}
	got := FoldRuleTriggers(events, time.Time{}, time.Time{})

	assert.Equal(t, 1, got.ByRule["R003"][model.ActionAutoDecline])
	assert.Equal(t, 1, got.ByRule["R003"][model.ActionPass])
	assert.Equal(t, 2, got.ByRule["R006"][model.ActionFlag])
	assert.Equal(t, 2, got.ByRule["R001"][model.ActionPass])
	assert.Equal(t, RuleTriggerTotals{
		Events:                2,
		Outcomes:              6,
		Passes:                3,
		Flags:                 2,
		AutoDeclineCandidates: 1,
		AutoDeclineEvents:     1,
		DecisionsRecorded:     1,
	}, got.Totals)
	assert.InDelta(t, 0.5, got.AutoDeclineRate(), 1e-9)
}

func TestFoldRuleTriggers_DateRange(t *testing.T) {
	events := []model.AuditEvent{
		evaluation(t, daysAgo(30), false, model.RuleOutcome{RuleID: "R001", Action: model.ActionAutoDecline}),
		evaluation(t, daysAgo(10), false, model.RuleOutcome{RuleID: "R001", Action: model.ActionAutoDecline}),
		evaluation(t, daysAgo(5), false, model.RuleOutcome{RuleID: "R001", Action: model.ActionAutoDecline}),
		evaluation(t, now, false, model.RuleOutcome{RuleID: "R001", Action: model.ActionAutoDecline}),
	}

	got := FoldRuleTriggers(events, daysAgo(10), daysAgo(5))
	assert.Equal(t, 2, got.AutoDeclineByRule["R001"])

	open := FoldRuleTriggers(events, daysAgo(10), time.Time{})
	assert.Equal(t, 3, open.AutoDeclineByRule["R001"])
}

func TestFoldRuleTriggers_SkipsMalformed(t *testing.T) {
	events := []model.AuditEvent{
		evaluation(t, daysAgo(1), false, model.RuleOutcome{RuleID: "R002", Action: model.ActionAutoDecline}),
		malformed(model.EventEvaluation, daysAgo(1), `{"score": 10}`),
		malformed(model.EventEvaluation, daysAgo(1), `{"rule_outcomes":[{"rule_id":"R001","action":"EXPLODE"}]}`),
		malformed(model.EventEvaluation, daysAgo(1), `[`),
	}
	got := FoldRuleTriggers(events, time.Time{}, time.Time{})
	assert.Equal(t, 3, got.Totals.Skipped)
	assert.Equal(t, 1, got.Totals.Events)
	assert.Equal(t, 1, got.AutoDeclineByRule["R002"])
}

func TestRuleTriggerSummary_EmptyRate(t *testing.T) {
	got := FoldRuleTriggers(nil, time.Time{}, time.Time{})
	assert.Zero(t, got.AutoDeclineRate())
	assert.NotNil(t, got.ByRule)
	assert.NotNil(t, got.AutoDeclineByRule)
}
