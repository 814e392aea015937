// Package analytics folds the audit log into read-only rollups. Every
// projection is recomputed from events on each call; nothing here keeps a
// running counter.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/rfq-cli/internal/lookup"
	"github.com/sells-group/rfq-cli/internal/model"
)

// DefaultBusinessCaseWindow is the trailing window of the OEM business case.
const DefaultBusinessCaseWindow = 90 * 24 * time.Hour

// BusinessCaseQuery filters the OEM business case.
type BusinessCaseQuery struct {
	MinOccurrences int
	MinTotalValue  decimal.Decimal
	Window         time.Duration
	Now            time.Time
}

// VendorCase is one OEM's accumulated evidence within the window.
type VendorCase struct {
	OEM             string          `json:"oem"`
	OccurrenceCount int             `json:"occurrence_count"`
	TotalValue      decimal.Decimal `json:"total_value"`
	FirstSeen       time.Time       `json:"first_seen"`
	LastSeen        time.Time       `json:"last_seen"`
}

// BusinessCase is the result of FoldBusinessCase.
type BusinessCase struct {
	Vendors     []VendorCase `json:"vendors"`
	WindowStart time.Time    `json:"window_start"`
	WindowEnd   time.Time    `json:"window_end"`
	Skipped     int          `json:"skipped_events"`
}

// WindowBounds returns the inclusive [start, end] range the query covers.
func (q BusinessCaseQuery) WindowBounds() (time.Time, time.Time) {
	window := q.Window
	if window <= 0 {
		window = DefaultBusinessCaseWindow
	}
	end := q.Now.UTC()
	if end.IsZero() {
		end = time.Now().UTC()
	}
	return end.Add(-window), end
}

// FoldBusinessCase groups OEM occurrence events inside the trailing window by
// vendor. Evaluation events are ignored so an evaluated RFQ is not counted
// twice. Vendor names are grouped case-insensitively; the first spelling seen
// is reported.
func FoldBusinessCase(events []model.AuditEvent, q BusinessCaseQuery) BusinessCase {
	start, end := q.WindowBounds()
	out := BusinessCase{WindowStart: start, WindowEnd: end, Vendors: []VendorCase{}}

	byKey := make(map[string]*VendorCase)
	var order []string
	for _, ev := range events {
		if ev.Kind != model.EventOEMOccurrence {
			continue
		}
		if ev.Timestamp.Before(start) || ev.Timestamp.After(end) {
			continue
		}
		occ, err := ev.ParseOEMOccurrence()
		if err != nil {
			out.Skipped++
			zap.L().Warn("analytics: skipping malformed audit event",
				zap.String("event_id", ev.ID),
				zap.Error(err),
			)
			continue
		}

		key := lookup.Fold(occ.OEM)
		vc, ok := byKey[key]
		if !ok {
			vc = &VendorCase{OEM: occ.OEM, TotalValue: decimal.Zero, FirstSeen: ev.Timestamp, LastSeen: ev.Timestamp}
			byKey[key] = vc
			order = append(order, key)
		}
		vc.OccurrenceCount++
		vc.TotalValue = vc.TotalValue.Add(occ.EstimatedValue)
		if ev.Timestamp.Before(vc.FirstSeen) {
			vc.FirstSeen = ev.Timestamp
		}
		if ev.Timestamp.After(vc.LastSeen) {
			vc.LastSeen = ev.Timestamp
		}
	}

	for _, key := range order {
		vc := byKey[key]
		if vc.OccurrenceCount < q.MinOccurrences {
			continue
		}
		if vc.TotalValue.LessThan(q.MinTotalValue) {
			continue
		}
		out.Vendors = append(out.Vendors, *vc)
	}

	sort.SliceStable(out.Vendors, func(i, j int) bool {
		a, b := out.Vendors[i], out.Vendors[j]
		if a.OccurrenceCount != b.OccurrenceCount {
			return a.OccurrenceCount > b.OccurrenceCount
		}
		if c := a.TotalValue.Cmp(b.TotalValue); c != 0 {
			return c > 0
		}
		return lookup.Fold(a.OEM) < lookup.Fold(b.OEM)
	})
	return out
}
