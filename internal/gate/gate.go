// Package gate merges rule outcomes and the composite score into a
// recommendation and decides whether an automatic NO-GO may be recorded.
package gate

import (
	"sync/atomic"

	"github.com/sells-group/rfq-cli/internal/model"
	"github.com/sells-group/rfq-cli/internal/scorer"
)

// Input is everything the gate looks at. The switch value is read once by
// the caller and passed in, so Decide stays a pure function.
type Input struct {
	Outcomes           []model.RuleOutcome
	Score              int
	AutoDeclineEnabled bool
	PriorDecision      model.Decision
}

// Verdict is the gate's output.
type Verdict struct {
	Recommendation string
	Decision       model.Decision

	// DecisionRecorded is true only when this run moved the decision from
	// unset to NO-GO.
	DecisionRecorded bool

	// AutoDeclineCandidate is true when at least one rule asked for an
	// auto-decline, whether or not the switch allowed it.
	AutoDeclineCandidate bool
}

// Decide applies the gate. An auto-decline outcome forces the NO-GO
// recommendation. The decision only ever moves from unset to NO-GO, and only
// with the switch enabled; an existing decision is returned untouched.
func Decide(in Input) Verdict {
	v := Verdict{
		Recommendation:       scorer.Recommend(in.Score),
		Decision:             in.PriorDecision,
		AutoDeclineCandidate: model.HasAutoDecline(in.Outcomes),
	}
	if !v.AutoDeclineCandidate {
		return v
	}

	v.Recommendation = scorer.RecommendNoGo
	if in.AutoDeclineEnabled && in.PriorDecision == model.DecisionNone {
		v.Decision = model.DecisionNoGo
		v.DecisionRecorded = true
	}
	return v
}

// AutoDeclineSwitch is the process-wide enable flag for automated NO-GO
// decisions. Reads never block; a flip applies to evaluations that read the
// switch afterwards. The zero value and a nil switch are disabled.
type AutoDeclineSwitch struct {
	enabled atomic.Bool
}

// NewAutoDeclineSwitch returns a switch with the given initial state.
func NewAutoDeclineSwitch(enabled bool) *AutoDeclineSwitch {
	s := &AutoDeclineSwitch{}
	s.enabled.Store(enabled)
	return s
}

// Enabled reports the current state.
func (s *AutoDeclineSwitch) Enabled() bool {
	if s == nil {
		return false
	}
	return s.enabled.Load()
}

// Set changes the state and returns the previous one. On a nil switch it is
// a no-op that reports disabled.
func (s *AutoDeclineSwitch) Set(enabled bool) bool {
	if s == nil {
		return false
	}
	return s.enabled.Swap(enabled)
}
