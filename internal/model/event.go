package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// EventKind distinguishes the entries of the audit log.
type EventKind string

const (
	EventEvaluation    EventKind = "evaluation"
	EventOEMOccurrence EventKind = "oem_occurrence"
)

// AuditEvent is one immutable entry of the append-only audit log. Payload is
// kept as raw JSON so that read-side projections decide how to parse it.
type AuditEvent struct {
	ID        string          `json:"id"`
	RFQID     string          `json:"rfq_id,omitempty"`
	Kind      EventKind       `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Snapshot captures the attributes an evaluation saw.
type Snapshot struct {
	EstimatedValue      *decimal.Decimal `json:"estimated_value"`
	CompetitionLevel    *int             `json:"competition_level"`
	TechVertical        string           `json:"tech_vertical,omitempty"`
	OEM                 string           `json:"oem,omitempty"`
	HasPreviousContract bool             `json:"has_previous_contract"`
	Customer            string           `json:"customer,omitempty"`
	RFQType             string           `json:"rfq_type,omitempty"`
	Quantity            int              `json:"quantity"`
}

// SnapshotOf copies the rule- and score-relevant attributes of r.
func SnapshotOf(r *RFQ) Snapshot {
	c := r.Clone()
	return Snapshot{
		EstimatedValue:      c.EstimatedValue,
		CompetitionLevel:    c.CompetitionLevel,
		TechVertical:        c.TechVertical,
		OEM:                 c.OEM,
		HasPreviousContract: c.HasPreviousContract,
		Customer:            c.Customer,
		RFQType:             c.RFQType,
		Quantity:            c.Quantity,
	}
}

// Evaluation is the payload of an evaluation event.
type Evaluation struct {
	RuleOutcomes     []RuleOutcome  `json:"rule_outcomes"`
	Score            int            `json:"score"`
	Breakdown        ScoreBreakdown `json:"breakdown"`
	Recommendation   string         `json:"recommendation"`
	Decision         Decision       `json:"decision,omitempty"`
	DecisionRecorded bool           `json:"decision_recorded"`
	AutoDeclineArmed bool           `json:"auto_decline_enabled"`
	Snapshot         Snapshot       `json:"snapshot"`
}

// OEMOccurrence is the payload of an OEM occurrence event.
type OEMOccurrence struct {
	OEM            string          `json:"oem"`
	EstimatedValue decimal.Decimal `json:"estimated_value"`
}

// NewEvaluationEvent builds an evaluation event for rfqID.
func NewEvaluationEvent(rfqID string, ts time.Time, ev Evaluation) (AuditEvent, error) {
	return newEvent(rfqID, EventEvaluation, ts, ev)
}

// NewOEMOccurrenceEvent builds an occurrence event. rfqID may be empty when
// the occurrence is recorded outside an evaluation.
func NewOEMOccurrenceEvent(rfqID string, ts time.Time, occ OEMOccurrence) (AuditEvent, error) {
	return newEvent(rfqID, EventOEMOccurrence, ts, occ)
}

func newEvent(rfqID string, kind EventKind, ts time.Time, payload any) (AuditEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return AuditEvent{}, eris.Wrapf(err, "model: marshal %s payload", kind)
	}
	return AuditEvent{
		ID:        uuid.New().String(),
		RFQID:     rfqID,
		Kind:      kind,
		Timestamp: ts.UTC(),
		Payload:   data,
	}, nil
}

// ParseEvaluation decodes and checks an evaluation payload.
func (e AuditEvent) ParseEvaluation() (*Evaluation, error) {
	if e.Kind != EventEvaluation {
		return nil, eris.Wrapf(ErrMalformedAuditEvent, "event %s: kind %q is not %q", e.ID, e.Kind, EventEvaluation)
	}
	var ev Evaluation
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return nil, eris.Wrapf(ErrMalformedAuditEvent, "event %s: %v", e.ID, err)
	}
	if ev.RuleOutcomes == nil {
		return nil, eris.Wrapf(ErrMalformedAuditEvent, "event %s: missing rule_outcomes", e.ID)
	}
	for i, o := range ev.RuleOutcomes {
		if o.RuleID == "" {
			return nil, eris.Wrapf(ErrMalformedAuditEvent, "event %s: outcome %d has no rule_id", e.ID, i)
		}
		if !o.Action.Valid() {
			return nil, eris.Wrapf(ErrMalformedAuditEvent, "event %s: outcome %d has action %q", e.ID, i, o.Action)
		}
	}
	return &ev, nil
}

// ParseOEMOccurrence decodes and checks an occurrence payload.
func (e AuditEvent) ParseOEMOccurrence() (*OEMOccurrence, error) {
	if e.Kind != EventOEMOccurrence {
		return nil, eris.Wrapf(ErrMalformedAuditEvent, "event %s: kind %q is not %q", e.ID, e.Kind, EventOEMOccurrence)
	}
	var occ OEMOccurrence
	if err := json.Unmarshal(e.Payload, &occ); err != nil {
		return nil, eris.Wrapf(ErrMalformedAuditEvent, "event %s: %v", e.ID, err)
	}
	if strings.TrimSpace(occ.OEM) == "" {
		return nil, eris.Wrapf(ErrMalformedAuditEvent, "event %s: missing oem", e.ID)
	}
	if occ.EstimatedValue.IsNegative() {
		return nil, eris.Wrapf(ErrMalformedAuditEvent, "event %s: negative estimated_value", e.ID)
	}
	return &occ, nil
}
