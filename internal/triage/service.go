// Package triage runs RFQ evaluations end to end: rule catalog, scorer,
// decision gate and the audit log commit, plus the read-side rollups.
package triage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/rfq-cli/internal/analytics"
	"github.com/sells-group/rfq-cli/internal/gate"
	"github.com/sells-group/rfq-cli/internal/lookup"
	"github.com/sells-group/rfq-cli/internal/model"
	"github.com/sells-group/rfq-cli/internal/resilience"
	"github.com/sells-group/rfq-cli/internal/rules"
	"github.com/sells-group/rfq-cli/internal/scorer"
	"github.com/sells-group/rfq-cli/internal/store"
)

const defaultBatchConcurrency = 5

// Options tunes the thresholds the service hands to rules and rollups.
type Options struct {
	// LicenseRenewalFloor is nil for the default of 5000. Zero disables the
	// low-value renewal branch of R001.
	LicenseRenewalFloor  *decimal.Decimal
	InsufficientTimeDays int
	BusinessCaseWindow   time.Duration
	ScoreTable           scorer.Table
	Now                  func() time.Time
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	floor := decimal.NewFromInt(5_000)
	return Options{
		LicenseRenewalFloor:  &floor,
		InsufficientTimeDays: 2,
		BusinessCaseWindow:   analytics.DefaultBusinessCaseWindow,
		ScoreTable:           scorer.DefaultTable(),
		Now:                  time.Now,
	}
}

// Service implements the RFQ triage operations on top of a Store.
type Service struct {
	store       store.Store
	tables      *lookup.Tables
	scorer      *scorer.Scorer
	tracker     *OEMTracker
	autoDecline *gate.AutoDeclineSwitch
	opts        Options
	locks       *keyedMutex
}

// New wires a Service. A nil tables uses lookup.Default; a nil switch leaves
// auto-decline disabled. Zero-valued options fall back to DefaultOptions.
func New(st store.Store, tables *lookup.Tables, sw *gate.AutoDeclineSwitch, opts Options) *Service {
	def := DefaultOptions()
	if opts.InsufficientTimeDays <= 0 {
		opts.InsufficientTimeDays = def.InsufficientTimeDays
	}
	if opts.LicenseRenewalFloor == nil {
		opts.LicenseRenewalFloor = def.LicenseRenewalFloor
	} else {
		floor := *opts.LicenseRenewalFloor
		opts.LicenseRenewalFloor = &floor
	}
	if opts.BusinessCaseWindow <= 0 {
		opts.BusinessCaseWindow = def.BusinessCaseWindow
	}
	if opts.ScoreTable.MaxPoints() == 0 {
		opts.ScoreTable = def.ScoreTable
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	if tables == nil {
		tables = lookup.Default()
	}
	if sw == nil {
		sw = gate.NewAutoDeclineSwitch(false)
	}
	return &Service{
		store:       st,
		tables:      tables,
		scorer:      scorer.New(opts.ScoreTable, tables),
		tracker:     NewOEMTracker(st),
		autoDecline: sw,
		opts:        opts,
		locks:       newKeyedMutex(),
	}
}

// Result is what one evaluation produced.
type Result struct {
	RFQID                string               `json:"rfq_id"`
	Score                int                  `json:"score"`
	Breakdown            model.ScoreBreakdown `json:"breakdown"`
	Recommendation       string               `json:"recommendation"`
	RuleOutcomes         []model.RuleOutcome  `json:"rule_outcomes"`
	Decision             model.Decision       `json:"decision,omitempty"`
	DecisionRecorded     bool                 `json:"decision_recorded"`
	AutoDeclineCandidate bool                 `json:"auto_decline_candidate"`
	EvaluatedAt          time.Time            `json:"evaluated_at"`
	EventID              string               `json:"event_id"`
}

// BatchResult is one entry of EvaluateMany.
type BatchResult struct {
	RFQID  string
	Result *Result
	Err    error
}

// writePolicy retries a whole read-compute-write when another writer got to
// the record first, or when the store reports a transient failure.
func writePolicy(op string) resilience.Policy {
	p := resilience.StorePolicy()
	p.Attempts = 5
	p.BaseDelay = 10 * time.Millisecond
	p.MaxDelay = 500 * time.Millisecond
	p.Retryable = func(err error) bool {
		return errors.Is(err, model.ErrConflict) || resilience.IsTransient(err)
	}
	p.OnRetry = resilience.LogRetry("triage", op)
	return p
}

func (s *Service) now() time.Time {
	return s.opts.Now().UTC()
}

func (s *Service) env(now time.Time) rules.Env {
	return rules.Env{
		Now:                  now,
		Tables:               s.tables,
		LicenseRenewalFloor:  *s.opts.LicenseRenewalFloor,
		InsufficientTimeDays: s.opts.InsufficientTimeDays,
	}
}

// CreateRFQ stores a new attribute record. An empty id is generated. Derived
// fields on the input are ignored.
func (s *Service) CreateRFQ(ctx context.Context, r *model.RFQ) (*model.RFQ, error) {
	rec := r.Clone()
	rec.Normalize()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	rec.Score = nil
	rec.Recommendation = ""
	rec.Decision = model.DecisionNone
	rec.EvaluatedAt = nil
	now := s.now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if err := s.store.CreateRFQ(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "triage: create rfq")
	}
	zap.L().Info("rfq created", zap.String("rfq_id", rec.ID))
	return rec, nil
}

// GetRFQ returns the current record.
func (s *Service) GetRFQ(ctx context.Context, id string) (*model.RFQ, error) {
	r, err := s.store.GetRFQ(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "triage: get rfq")
	}
	return r, nil
}

// ListRFQs returns records newest first.
func (s *Service) ListRFQs(ctx context.Context, limit, offset int) ([]model.RFQ, error) {
	out, err := s.store.ListRFQs(ctx, limit, offset)
	if err != nil {
		return nil, eris.Wrap(err, "triage: list rfqs")
	}
	return out, nil
}

// SetAttributes merges a partial update into the record. Fields absent from
// the patch are left untouched. Invalid values are rejected before anything
// is written.
func (s *Service) SetAttributes(ctx context.Context, id string, p model.Patch) (*model.RFQ, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	return resilience.DoVal(ctx, writePolicy("set_attributes"), func(ctx context.Context) (*model.RFQ, error) {
		current, err := s.store.GetRFQ(ctx, id)
		if err != nil {
			return nil, eris.Wrap(err, "triage: set attributes")
		}
		if p.IsEmpty() {
			return current, nil
		}

		updated := current.Clone()
		p.Apply(updated)
		if err := updated.Validate(); err != nil {
			return nil, err
		}
		updated.UpdatedAt = s.now()
		if err := s.store.UpdateRFQ(ctx, updated); err != nil {
			return nil, eris.Wrap(err, "triage: set attributes")
		}
		zap.L().Debug("rfq attributes updated", zap.String("rfq_id", id))
		return updated, nil
	})
}

// Evaluate runs the rule catalog, the scorer and the decision gate for one
// record, then commits the refreshed record together with its audit event
// and OEM occurrence. Nothing is updated if the commit fails. If the record
// changed after it was read, the evaluation starts over from a fresh read.
func (s *Service) Evaluate(ctx context.Context, id string) (*Result, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	return resilience.DoVal(ctx, writePolicy("evaluate"), func(ctx context.Context) (*Result, error) {
		return s.evaluate(ctx, id)
	})
}

func (s *Service) evaluate(ctx context.Context, id string) (*Result, error) {
	current, err := s.store.GetRFQ(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "triage: evaluate")
	}

	now := s.now()
	armed := s.autoDecline.Enabled()
	outcomes := rules.Evaluate(current, s.env(now))
	breakdown := s.scorer.Score(current)
	verdict := gate.Decide(gate.Input{
		Outcomes:           outcomes,
		Score:              breakdown.Total,
		AutoDeclineEnabled: armed,
		PriorDecision:      current.Decision,
	})

	evalEvent, err := model.NewEvaluationEvent(id, now, model.Evaluation{
		RuleOutcomes:     outcomes,
		Score:            breakdown.Total,
		Breakdown:        breakdown,
		Recommendation:   verdict.Recommendation,
		Decision:         verdict.Decision,
		DecisionRecorded: verdict.DecisionRecorded,
		AutoDeclineArmed: armed,
		Snapshot:         model.SnapshotOf(current),
	})
	if err != nil {
		return nil, eris.Wrap(err, "triage: evaluate")
	}
	events := []model.AuditEvent{evalEvent}

	occ, ok, err := s.tracker.occurrenceFor(current, now)
	if err != nil {
		return nil, eris.Wrap(err, "triage: evaluate")
	}
	if ok {
		events = append(events, occ)
	}

	updated := current.Clone()
	score := breakdown.Total
	updated.Score = &score
	updated.Recommendation = verdict.Recommendation
	updated.Decision = verdict.Decision
	updated.EvaluatedAt = &now
	updated.UpdatedAt = now

	if err := s.store.CommitEvaluation(ctx, updated, events); err != nil {
		return nil, eris.Wrap(err, "triage: commit evaluation")
	}

	zap.L().Info("rfq evaluated",
		zap.String("rfq_id", id),
		zap.Int("score", score),
		zap.String("recommendation", verdict.Recommendation),
		zap.Bool("auto_decline_candidate", verdict.AutoDeclineCandidate),
		zap.Bool("decision_recorded", verdict.DecisionRecorded),
	)

	return &Result{
		RFQID:                id,
		Score:                score,
		Breakdown:            breakdown,
		Recommendation:       verdict.Recommendation,
		RuleOutcomes:         outcomes,
		Decision:             verdict.Decision,
		DecisionRecorded:     verdict.DecisionRecorded,
		AutoDeclineCandidate: verdict.AutoDeclineCandidate,
		EvaluatedAt:          now,
		EventID:              evalEvent.ID,
	}, nil
}

// EvaluateMany evaluates ids with bounded concurrency. A failing id does not
// stop the others; results keep the input order.
func (s *Service) EvaluateMany(ctx context.Context, ids []string, concurrency int) []BatchResult {
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}
	results := make([]BatchResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, id := range ids {
		g.Go(func() error {
			res, err := s.Evaluate(gctx, id)
			results[i] = BatchResult{RFQID: id, Result: res, Err: err}
			if err != nil {
				zap.L().Warn("batch evaluation failed", zap.String("rfq_id", id), zap.Error(err))
			}
			return nil // don't fail the group
		})
	}
	_ = g.Wait()
	return results
}

// RecordDecision sets a human decision, overwriting any previous one. Later
// evaluations never change it.
func (s *Service) RecordDecision(ctx context.Context, id string, d model.Decision) (*model.RFQ, error) {
	if !d.Valid() {
		return nil, model.NewAttributeError("decision", "must be GO or NO-GO")
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	return resilience.DoVal(ctx, writePolicy("record_decision"), func(ctx context.Context) (*model.RFQ, error) {
		current, err := s.store.GetRFQ(ctx, id)
		if err != nil {
			return nil, eris.Wrap(err, "triage: record decision")
		}
		updated := current.Clone()
		updated.Decision = d
		updated.UpdatedAt = s.now()
		if err := s.store.UpdateRFQ(ctx, updated); err != nil {
			return nil, eris.Wrap(err, "triage: record decision")
		}
		zap.L().Info("decision recorded",
			zap.String("rfq_id", id),
			zap.String("decision", string(d)),
			zap.String("previous", string(current.Decision)),
		)
		return updated, nil
	})
}

// TrackOEMOccurrence records a vendor occurrence outside an evaluation. A
// zero ts means now.
func (s *Service) TrackOEMOccurrence(ctx context.Context, oem string, value decimal.Decimal, ts time.Time) (model.AuditEvent, error) {
	if ts.IsZero() {
		ts = s.now()
	}
	return s.tracker.Record(ctx, "", oem, value, ts)
}

// BusinessCase folds OEM occurrences over the trailing window.
func (s *Service) BusinessCase(ctx context.Context, minOccurrences int, minTotalValue decimal.Decimal) (analytics.BusinessCase, error) {
	q := analytics.BusinessCaseQuery{
		MinOccurrences: minOccurrences,
		MinTotalValue:  minTotalValue,
		Window:         s.opts.BusinessCaseWindow,
		Now:            s.now(),
	}
	start, end := q.WindowBounds()
	events, err := s.store.ListEvents(ctx, store.EventFilter{
		Kind:  model.EventOEMOccurrence,
		Since: start,
		Until: end,
	})
	if err != nil {
		return analytics.BusinessCase{}, eris.Wrap(err, "triage: business case")
	}
	return analytics.FoldBusinessCase(events, q), nil
}

// RuleTriggerSummary folds evaluation events between start and end. Zero
// bounds are open.
func (s *Service) RuleTriggerSummary(ctx context.Context, start, end time.Time) (analytics.RuleTriggerSummary, error) {
	events, err := s.store.ListEvents(ctx, store.EventFilter{
		Kind:  model.EventEvaluation,
		Since: start,
		Until: end,
	})
	if err != nil {
		return analytics.RuleTriggerSummary{}, eris.Wrap(err, "triage: rule trigger summary")
	}
	return analytics.FoldRuleTriggers(events, start, end), nil
}

// ListEvents returns the audit trail of one RFQ in append order.
func (s *Service) ListEvents(ctx context.Context, rfqID string, limit int) ([]model.AuditEvent, error) {
	if _, err := s.store.GetRFQ(ctx, rfqID); err != nil {
		return nil, eris.Wrap(err, "triage: list events")
	}
	events, err := s.store.ListEvents(ctx, store.EventFilter{RFQID: rfqID, Limit: limit})
	if err != nil {
		return nil, eris.Wrap(err, "triage: list events")
	}
	return events, nil
}

// AutoDeclineEnabled reports the current switch value.
func (s *Service) AutoDeclineEnabled() bool {
	return s.autoDecline.Enabled()
}

// SetAutoDecline flips the switch for subsequent evaluations and returns the
// previous value.
func (s *Service) SetAutoDecline(enabled bool) bool {
	prev := s.autoDecline.Set(enabled)
	if prev != enabled {
		zap.L().Warn("auto-decline switch changed", zap.Bool("enabled", enabled))
	}
	return prev
}

// Catalog lists the rules in evaluation order.
func (s *Service) Catalog() []rules.Rule {
	return rules.Catalog()
}
