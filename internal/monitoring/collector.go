package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rfq-cli/internal/analytics"
)

// MetricsSnapshot holds a point-in-time view of evaluation health.
type MetricsSnapshot struct {
	// Evaluation metrics (within lookback window).
	Evaluations       int     `json:"evaluations"`
	AutoDeclineEvents int     `json:"auto_decline_events"`
	Candidates        int     `json:"auto_decline_candidates"`
	AutoDeclineRate   float64 `json:"auto_decline_rate"`
	DecisionsRecorded int     `json:"decisions_recorded"`
	Flags             int     `json:"flags"`

	// Audit log integrity.
	SkippedEvents int `json:"skipped_events"`

	AutoDeclineEnabled bool `json:"auto_decline_enabled"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Source is the read side the collector folds over.
type Source interface {
	RuleTriggerSummary(ctx context.Context, start, end time.Time) (analytics.RuleTriggerSummary, error)
	AutoDeclineEnabled() bool
}

// Collector gathers metrics from the audit log rollups.
type Collector struct {
	source Source
	now    func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(src Source) *Collector {
	return &Collector{source: src, now: time.Now}
}

// Collect gathers a snapshot of evaluation metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours:      lookbackHours,
		CollectedAt:        now,
		AutoDeclineEnabled: c.source.AutoDeclineEnabled(),
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	sum, err := c.source.RuleTriggerSummary(ctx, cutoff, now)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: rule trigger summary")
	}

	snap.Evaluations = sum.Totals.Events
	snap.AutoDeclineEvents = sum.Totals.AutoDeclineEvents
	snap.Candidates = sum.Totals.AutoDeclineCandidates
	snap.AutoDeclineRate = sum.AutoDeclineRate()
	snap.DecisionsRecorded = sum.Totals.DecisionsRecorded
	snap.Flags = sum.Totals.Flags
	snap.SkippedEvents = sum.Totals.Skipped
	return snap, nil
}
