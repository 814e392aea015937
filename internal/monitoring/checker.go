package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/rfq-cli/internal/config"
)

// CheckResult is the outcome of one monitoring pass.
type CheckResult struct {
	Snapshot *MetricsSnapshot `json:"snapshot"`
	Alerts   []Alert          `json:"alerts"`
	Sent     int              `json:"sent"`
}

// Checker folds the audit log on an interval and delivers alerts. Inside Run
// an alert type is only delivered when it starts firing; it is delivered
// again after a pass in which it cleared.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int

	mu     sync.Mutex
	firing map[AlertType]bool
	last   *CheckResult
}

// NewChecker creates a Checker. A non-positive check interval means 5 minutes.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		lookback:  cfg.LookbackWindowHours,
		firing:    make(map[AlertType]bool),
	}
}

// Run checks once immediately and then on every tick until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	if ctx.Err() != nil {
		return
	}
	log.Info("rfq monitor started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	c.tick(ctx, log)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("rfq monitor stopped")
			return
		case <-ticker.C:
			c.tick(ctx, log)
		}
	}
}

// CheckOnce runs a single pass and delivers every alert that fires,
// regardless of what earlier passes sent.
func (c *Checker) CheckOnce(ctx context.Context) (*CheckResult, error) {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		return nil, err
	}
	alerts := c.alerter.Evaluate(snap)
	res := &CheckResult{
		Snapshot: snap,
		Alerts:   alerts,
		Sent:     c.alerter.SendAlerts(ctx, alerts),
	}
	c.mu.Lock()
	c.last = res
	c.mu.Unlock()
	return res, nil
}

// Last returns the most recent pass, or nil before the first one.
func (c *Checker) Last() *CheckResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Checker) tick(ctx context.Context, log *zap.Logger) {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		log.Error("monitoring: collect rule triggers", zap.Error(err))
		return
	}

	alerts := c.alerter.Evaluate(snap)
	fresh := c.transition(alerts, log)
	res := &CheckResult{
		Snapshot: snap,
		Alerts:   alerts,
		Sent:     c.alerter.SendAlerts(ctx, fresh),
	}

	c.mu.Lock()
	c.last = res
	c.mu.Unlock()

	log.Debug("monitoring: check complete",
		zap.Int("evaluations", snap.Evaluations),
		zap.Float64("auto_decline_rate", snap.AutoDeclineRate),
		zap.Int("skipped_events", snap.SkippedEvents),
		zap.Int("firing", len(alerts)),
		zap.Int("sent", res.Sent),
	)
}

// transition records which alert types fire now and returns the alerts whose
// type was not firing on the previous pass.
func (c *Checker) transition(alerts []Alert, log *zap.Logger) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := make(map[AlertType]bool, len(alerts))
	var fresh []Alert
	for _, a := range alerts {
		now[a.Type] = true
		if !c.firing[a.Type] {
			fresh = append(fresh, a)
		}
	}
	for t := range c.firing {
		if !now[t] {
			log.Info("monitoring: alert resolved", zap.String("type", string(t)))
		}
	}
	c.firing = now
	return fresh
}
