package rules

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rfq-cli/internal/model"
)

var testNow = time.Date(2026, 4, 10, 15, 0, 0, 0, time.UTC)

func ptrDecimal(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func ptrInt(v int) *int { return &v }

func ptrTime(t time.Time) *time.Time { return &t }

func outcomeFor(t *testing.T, outcomes []model.RuleOutcome, id string) model.RuleOutcome {
	t.Helper()
	for _, o := range outcomes {
		if o.RuleID == id {
			return o
		}
	}
	t.Fatalf("no outcome for rule %s", id)
	return model.RuleOutcome{}
}

func declines(outcomes []model.RuleOutcome) []string {
	var ids []string
	for _, o := range outcomes {
		if o.Action == model.ActionAutoDecline {
			ids = append(ids, o.RuleID)
		}
	}
	return ids
}

func TestCatalog_OrderAndIDs(t *testing.T) {
	cat := Catalog()
	require.Len(t, cat, 9)
	for i, want := range []string{"R001", "R002", "R003", "R004", "R005", "R006", "R007", "R008", "R009"} {
		assert.Equal(t, want, cat[i].ID)
		assert.NotEmpty(t, cat[i].Name)
		assert.True(t, cat[i].Action.Valid())
	}

	// Mutating the copy leaves the catalog intact.
	cat[0].ID = "X"
	r, ok := Lookup("R001")
	require.True(t, ok)
	assert.Equal(t, "consolidated-notice", r.Name)

	_, ok = Lookup("R999")
	assert.False(t, ok)
}

func TestEvaluate_OneOutcomePerRule(t *testing.T) {
	outcomes := Evaluate(&model.RFQ{ID: "r", Quantity: 1}, DefaultEnv(testNow))
	assert.Len(t, outcomes, len(Catalog()))
}

func TestEvaluate_EmptyRecordDegradesToPass(t *testing.T) {
	outcomes := Evaluate(&model.RFQ{ID: "r", Quantity: 1}, DefaultEnv(testNow))
	for _, o := range outcomes {
		assert.Equal(t, model.ActionPass, o.Action, o.RuleID)
	}
	assert.Contains(t, outcomeFor(t, outcomes, "R003").Reason, "missing estimated_value")
	assert.Contains(t, outcomeFor(t, outcomes, "R002").Reason, "competition_level")
	assert.Contains(t, outcomeFor(t, outcomes, "R004").Reason, "missing deadline")
	assert.Equal(t, "not triggered", outcomeFor(t, outcomes, "R009").Reason)
}

func TestEvaluate_DoesNotMutateInput(t *testing.T) {
	r := &model.RFQ{
		ID:               "r",
		EstimatedValue:   ptrDecimal(1_500),
		RFQType:          model.RFQTypeRenewal,
		Quantity:         1,
		ComplexityFlags:  []string{"attachments"},
		CompetitionLevel: ptrInt(3),
	}
	before := *r.Clone()
	_ = Evaluate(r, DefaultEnv(testNow))
	assert.Equal(t, before, *r)
}

func TestR001_ConsolidatedNotice(t *testing.T) {
	r := &model.RFQ{RFQType: model.RFQTypeConsolidatedNotice, Quantity: 1}
	o := outcomeFor(t, Evaluate(r, DefaultEnv(testNow)), "R001")
	assert.Equal(t, model.ActionAutoDecline, o.Action)
	assert.Equal(t, TagConsolidatedNotice, o.Tag)
}

func TestR002_HighCompetitionLowValueRenewal(t *testing.T) {
	tests := []struct {
		name        string
		competition int
		value       int64
		previous    bool
		want        model.Action
	}{
		{"fires", 130, 12_000, true, model.ActionAutoDecline},
		{"at threshold", 125, 14_999, true, model.ActionAutoDecline},
		{"not a renewal", 130, 12_000, false, model.ActionPass},
		{"value at cap", 130, 15_000, true, model.ActionPass},
		{"fewer bidders", 124, 12_000, true, model.ActionPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &model.RFQ{
				CompetitionLevel:    ptrInt(tt.competition),
				EstimatedValue:      ptrDecimal(tt.value),
				HasPreviousContract: tt.previous,
				Quantity:            1,
			}
			assert.Equal(t, tt.want, outcomeFor(t, Evaluate(r, DefaultEnv(testNow)), "R002").Action)
		})
	}
}

func TestR002_ScenarioOnlyDecliningRule(t *testing.T) {
	r := &model.RFQ{
		CompetitionLevel:    ptrInt(130),
		EstimatedValue:      ptrDecimal(12_000),
		HasPreviousContract: true,
		Quantity:            1,
	}
	outcomes := Evaluate(r, DefaultEnv(testNow))
	assert.Equal(t, []string{"R002"}, declines(outcomes))
	// The renewal flag still reports next to the decline.
	assert.Equal(t, model.ActionFlag, outcomeFor(t, outcomes, "R009").Action)
}

func TestR003_UltraLowValue(t *testing.T) {
	tests := []struct {
		name     string
		value    int64
		rfqType  string
		quantity int
		want     model.Action
	}{
		{"below absolute floor", 1_999, model.RFQTypeNew, 5, model.ActionAutoDecline},
		{"single license renewal below floor", 4_000, model.RFQTypeRenewal, 1, model.ActionAutoDecline},
		{"renewal multi quantity", 4_000, model.RFQTypeRenewal, 2, model.ActionPass},
		{"new single quantity", 4_000, model.RFQTypeNew, 1, model.ActionPass},
		{"renewal above floor", 5_000, model.RFQTypeRenewal, 1, model.ActionPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &model.RFQ{EstimatedValue: ptrDecimal(tt.value), RFQType: tt.rfqType, Quantity: tt.quantity}
			assert.Equal(t, tt.want, outcomeFor(t, Evaluate(r, DefaultEnv(testNow)), "R003").Action)
		})
	}
}

func TestR003_Scenario1500Renewal(t *testing.T) {
	r := &model.RFQ{EstimatedValue: ptrDecimal(1_500), RFQType: model.RFQTypeRenewal, Quantity: 1}
	outcomes := Evaluate(r, DefaultEnv(testNow))
	assert.Equal(t, []string{"R003"}, declines(outcomes))
}

func TestR004_InsufficientTime(t *testing.T) {
	tests := []struct {
		name     string
		deadline time.Time
		flags    []string
		want     model.Action
	}{
		{"two days with attachments", testNow.Add(48 * time.Hour), []string{"attachments"}, model.ActionAutoDecline},
		{"same day", testNow.Add(2 * time.Hour), []string{"site-visit"}, model.ActionAutoDecline},
		{"already passed", testNow.Add(-72 * time.Hour), []string{"attachments"}, model.ActionAutoDecline},
		{"three days", testNow.Add(72 * time.Hour), []string{"attachments"}, model.ActionPass},
		{"no complexity", testNow.Add(24 * time.Hour), nil, model.ActionPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &model.RFQ{Deadline: ptrTime(tt.deadline), ComplexityFlags: tt.flags, Quantity: 1}
			assert.Equal(t, tt.want, outcomeFor(t, Evaluate(r, DefaultEnv(testNow)), "R004").Action)
		})
	}
}

func TestR004_ConfigurableWindow(t *testing.T) {
	env := DefaultEnv(testNow)
	env.InsufficientTimeDays = 5
	r := &model.RFQ{Deadline: ptrTime(testNow.Add(96 * time.Hour)), ComplexityFlags: []string{"x"}, Quantity: 1}
	assert.Equal(t, model.ActionAutoDecline, outcomeFor(t, Evaluate(r, env), "R004").Action)
}

func TestR005_HighValueTags(t *testing.T) {
	tests := []struct {
		value int64
		want  model.Action
		tag   string
	}{
		{1_000_000, model.ActionFlag, TagExecutiveNotification},
		{999_999, model.ActionFlag, TagSalesTeamAlert},
		{200_000, model.ActionFlag, TagSalesTeamAlert},
		{199_999, model.ActionPass, ""},
	}
	for _, tt := range tests {
		r := &model.RFQ{EstimatedValue: ptrDecimal(tt.value), Quantity: 1}
		o := outcomeFor(t, Evaluate(r, DefaultEnv(testNow)), "R005")
		assert.Equal(t, tt.want, o.Action, tt.value)
		assert.Equal(t, tt.tag, o.Tag, tt.value)
	}
}

func TestR006_StrategicCustomer(t *testing.T) {
	env := DefaultEnv(testNow)
	for customer, want := range map[string]model.Action{
		"Space Force": model.ActionFlag,
		"NASA":        model.ActionFlag,
		"Acme Corp":   model.ActionPass,
	} {
		r := &model.RFQ{Customer: customer, Quantity: 1}
		o := outcomeFor(t, Evaluate(r, env), "R006")
		assert.Equal(t, want, o.Action, customer)
	}
}

func TestR007_LowCompetitionHighValue(t *testing.T) {
	env := DefaultEnv(testNow)
	fire := &model.RFQ{CompetitionLevel: ptrInt(19), EstimatedValue: ptrDecimal(20_000), Quantity: 1}
	assert.Equal(t, model.ActionFlag, outcomeFor(t, Evaluate(fire, env), "R007").Action)

	crowded := &model.RFQ{CompetitionLevel: ptrInt(20), EstimatedValue: ptrDecimal(90_000), Quantity: 1}
	assert.Equal(t, model.ActionPass, outcomeFor(t, Evaluate(crowded, env), "R007").Action)

	small := &model.RFQ{CompetitionLevel: ptrInt(2), EstimatedValue: ptrDecimal(19_999), Quantity: 1}
	assert.Equal(t, model.ActionPass, outcomeFor(t, Evaluate(small, env), "R007").Action)
}

func TestR008_PriorityTechnologyIgnoresValue(t *testing.T) {
	r := &model.RFQ{TechVertical: "Zero Trust", EstimatedValue: ptrDecimal(100), Quantity: 1}
	o := outcomeFor(t, Evaluate(r, DefaultEnv(testNow)), "R008")
	assert.Equal(t, model.ActionFlag, o.Action)

	r.TechVertical = "Data Center"
	assert.Equal(t, model.ActionPass, outcomeFor(t, Evaluate(r, DefaultEnv(testNow)), "R008").Action)
}

func TestEvaluate_MultipleDeclinesRetained(t *testing.T) {
	r := &model.RFQ{
		RFQType:        model.RFQTypeConsolidatedNotice,
		EstimatedValue: ptrDecimal(500),
		Quantity:       1,
	}
	outcomes := Evaluate(r, DefaultEnv(testNow))
	assert.Equal(t, []string{"R001", "R003"}, declines(outcomes))
	assert.True(t, model.HasAutoDecline(outcomes))
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 1, 1, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, 1, daysUntil(now, time.Date(2026, 1, 2, 0, 1, 0, 0, time.UTC)))
	assert.Equal(t, 0, daysUntil(now, now))
	assert.Equal(t, -1, daysUntil(now, time.Date(2025, 12, 31, 12, 0, 0, 0, time.UTC)))
}
