package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Decision is the explicit GO / NO-GO call recorded on an RFQ.
// The zero value means no decision has been made.
type Decision string

const (
	DecisionNone Decision = ""
	DecisionGo   Decision = "GO"
	DecisionNoGo Decision = "NO-GO"
)

// Valid reports whether d is a decision a caller may record.
func (d Decision) Valid() bool {
	return d == DecisionGo || d == DecisionNoGo
}

// Known RFQ types. Other values are accepted and simply match no type-specific rule.
const (
	RFQTypeNew                = "new"
	RFQTypeRenewal            = "renewal"
	RFQTypeConsolidatedNotice = "consolidated_notice"
)

// RFQ is the canonical attribute record for one inbound opportunity.
// Score and Recommendation are caches of the last evaluation; Decision is
// only ever set explicitly or by an enabled auto-decline.
type RFQ struct {
	ID                  string           `json:"id"`
	EstimatedValue      *decimal.Decimal `json:"estimated_value"`
	CompetitionLevel    *int             `json:"competition_level"`
	TechVertical        string           `json:"tech_vertical,omitempty"`
	OEM                 string           `json:"oem,omitempty"`
	HasPreviousContract bool             `json:"has_previous_contract"`
	Deadline            *time.Time       `json:"deadline"`
	Customer            string           `json:"customer,omitempty"`
	RFQType             string           `json:"rfq_type,omitempty"`
	Quantity            int              `json:"quantity"`
	ComplexityFlags     []string         `json:"complexity_flags,omitempty"`

	Score          *int       `json:"score"`
	Recommendation string     `json:"recommendation,omitempty"`
	Decision       Decision   `json:"decision,omitempty"`
	EvaluatedAt    *time.Time `json:"evaluated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Version counts committed writes. Stores only accept an update whose
	// Version matches the stored one.
	Version int64 `json:"version"`
}

// Normalize trims free-text fields and applies defaults. It is applied on
// create and after every patch.
func (r *RFQ) Normalize() {
	r.ID = strings.TrimSpace(r.ID)
	r.TechVertical = strings.TrimSpace(r.TechVertical)
	r.OEM = strings.TrimSpace(r.OEM)
	r.Customer = strings.TrimSpace(r.Customer)
	r.RFQType = strings.ToLower(strings.TrimSpace(r.RFQType))
	if r.Quantity == 0 {
		r.Quantity = 1
	}
}

// Validate checks basic type and range constraints on the attribute fields.
func (r *RFQ) Validate() error {
	if r.EstimatedValue != nil && r.EstimatedValue.IsNegative() {
		return NewAttributeError("estimated_value", "must be >= 0")
	}
	if r.CompetitionLevel != nil && *r.CompetitionLevel < 0 {
		return NewAttributeError("competition_level", "must be >= 0")
	}
	if r.Quantity < 1 {
		return NewAttributeError("quantity", "must be >= 1")
	}
	if r.Decision != DecisionNone && !r.Decision.Valid() {
		return NewAttributeError("decision", "must be GO or NO-GO")
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (r *RFQ) Clone() *RFQ {
	c := *r
	if r.EstimatedValue != nil {
		v := *r.EstimatedValue
		c.EstimatedValue = &v
	}
	if r.CompetitionLevel != nil {
		v := *r.CompetitionLevel
		c.CompetitionLevel = &v
	}
	if r.Deadline != nil {
		v := *r.Deadline
		c.Deadline = &v
	}
	if r.Score != nil {
		v := *r.Score
		c.Score = &v
	}
	if r.EvaluatedAt != nil {
		v := *r.EvaluatedAt
		c.EvaluatedAt = &v
	}
	if r.ComplexityFlags != nil {
		c.ComplexityFlags = append([]string(nil), r.ComplexityFlags...)
	}
	return &c
}

// Patch is a partial attribute update. Nil fields are left untouched.
// Derived fields (score, recommendation, decision) cannot be patched.
type Patch struct {
	EstimatedValue      *decimal.Decimal `json:"estimated_value,omitempty"`
	CompetitionLevel    *int             `json:"competition_level,omitempty"`
	TechVertical        *string          `json:"tech_vertical,omitempty"`
	OEM                 *string          `json:"oem,omitempty"`
	HasPreviousContract *bool            `json:"has_previous_contract,omitempty"`
	Deadline            *time.Time       `json:"deadline,omitempty"`
	Customer            *string          `json:"customer,omitempty"`
	RFQType             *string          `json:"rfq_type,omitempty"`
	Quantity            *int             `json:"quantity,omitempty"`
	ComplexityFlags     []string         `json:"complexity_flags,omitempty"`
}

// IsEmpty reports whether the patch sets no field.
func (p Patch) IsEmpty() bool {
	return p.EstimatedValue == nil && p.CompetitionLevel == nil &&
		p.TechVertical == nil && p.OEM == nil && p.HasPreviousContract == nil &&
		p.Deadline == nil && p.Customer == nil && p.RFQType == nil &&
		p.Quantity == nil && p.ComplexityFlags == nil
}

// Validate rejects out-of-range values before anything is merged.
func (p Patch) Validate() error {
	if p.EstimatedValue != nil && p.EstimatedValue.IsNegative() {
		return NewAttributeError("estimated_value", "must be >= 0")
	}
	if p.CompetitionLevel != nil && *p.CompetitionLevel < 0 {
		return NewAttributeError("competition_level", "must be >= 0")
	}
	if p.Quantity != nil && *p.Quantity < 1 {
		return NewAttributeError("quantity", "must be >= 1")
	}
	return nil
}

// Apply merges the patch into r.
func (p Patch) Apply(r *RFQ) {
	if p.EstimatedValue != nil {
		v := *p.EstimatedValue
		r.EstimatedValue = &v
	}
	if p.CompetitionLevel != nil {
		v := *p.CompetitionLevel
		r.CompetitionLevel = &v
	}
	if p.TechVertical != nil {
		r.TechVertical = *p.TechVertical
	}
	if p.OEM != nil {
		r.OEM = *p.OEM
	}
	if p.HasPreviousContract != nil {
		r.HasPreviousContract = *p.HasPreviousContract
	}
	if p.Deadline != nil {
		v := *p.Deadline
		r.Deadline = &v
	}
	if p.Customer != nil {
		r.Customer = *p.Customer
	}
	if p.RFQType != nil {
		r.RFQType = *p.RFQType
	}
	if p.Quantity != nil {
		r.Quantity = *p.Quantity
	}
	if p.ComplexityFlags != nil {
		r.ComplexityFlags = append([]string(nil), p.ComplexityFlags...)
	}
	r.Normalize()
}
