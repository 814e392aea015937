package model

// Action is what a rule asks for when it evaluates against a record.
type Action string

const (
	ActionPass        Action = "PASS"
	ActionFlag        Action = "FLAG"
	ActionAutoDecline Action = "AUTO_DECLINE"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionPass, ActionFlag, ActionAutoDecline:
		return true
	default:
		return false
	}
}

// RuleOutcome is the result of one rule against one record.
type RuleOutcome struct {
	RuleID string `json:"rule_id"`
	Action Action `json:"action"`
	Tag    string `json:"tag,omitempty"`
	Reason string `json:"reason"`
}

// HasAutoDecline reports whether any outcome demands an auto-decline.
// Several declining rules collapse into a single signal.
func HasAutoDecline(outcomes []RuleOutcome) bool {
	for _, o := range outcomes {
		if o.Action == ActionAutoDecline {
			return true
		}
	}
	return false
}

// ScoreBreakdown holds the per-category contributions to a composite score.
type ScoreBreakdown struct {
	Value       int `json:"value"`
	Customer    int `json:"customer"`
	Competition int `json:"competition"`
	Technology  int `json:"technology"`
	OEM         int `json:"oem"`
	Renewal     int `json:"renewal"`
	Total       int `json:"total"`
}
