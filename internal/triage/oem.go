package triage

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/rfq-cli/internal/model"
	"github.com/sells-group/rfq-cli/internal/store"
)

// OEMTracker records vendor occurrences as audit events. It only appends;
// counts are derived by folding the log.
type OEMTracker struct {
	store store.Store
}

// NewOEMTracker returns a tracker writing to st.
func NewOEMTracker(st store.Store) *OEMTracker {
	return &OEMTracker{store: st}
}

// Record appends one occurrence. rfqID may be empty for occurrences reported
// outside an evaluation.
func (t *OEMTracker) Record(ctx context.Context, rfqID, oem string, value decimal.Decimal, ts time.Time) (model.AuditEvent, error) {
	ev, err := newOccurrence(rfqID, oem, value, ts)
	if err != nil {
		return model.AuditEvent{}, err
	}
	if err := t.store.AppendEvents(ctx, ev); err != nil {
		return model.AuditEvent{}, eris.Wrap(err, "triage: record oem occurrence")
	}
	zap.L().Debug("oem occurrence recorded",
		zap.String("oem", strings.TrimSpace(oem)),
		zap.String("rfq_id", rfqID),
		zap.String("event_id", ev.ID),
	)
	return ev, nil
}

// occurrenceFor builds the occurrence that accompanies an evaluation of r.
// It reports false when r names no vendor.
func (t *OEMTracker) occurrenceFor(r *model.RFQ, ts time.Time) (model.AuditEvent, bool, error) {
	if strings.TrimSpace(r.OEM) == "" {
		return model.AuditEvent{}, false, nil
	}
	value := decimal.Zero
	if r.EstimatedValue != nil {
		value = *r.EstimatedValue
	}
	ev, err := newOccurrence(r.ID, r.OEM, value, ts)
	if err != nil {
		return model.AuditEvent{}, false, err
	}
	return ev, true, nil
}

func newOccurrence(rfqID, oem string, value decimal.Decimal, ts time.Time) (model.AuditEvent, error) {
	oem = strings.TrimSpace(oem)
	if oem == "" {
		return model.AuditEvent{}, model.NewAttributeError("oem", "must not be empty")
	}
	if value.IsNegative() {
		return model.AuditEvent{}, model.NewAttributeError("estimated_value", "must be >= 0")
	}
	return model.NewOEMOccurrenceEvent(rfqID, ts, model.OEMOccurrence{OEM: oem, EstimatedValue: value})
}
