package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rfq-cli/internal/config"
	"github.com/sells-group/rfq-cli/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertMalformedEvents AlertType = "malformed_audit_events"
	AlertAutoDeclineRate AlertType = "auto_decline_rate"
)

// Severity ranks alerts for the receiver.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Key identifies one firing of an alert. Retried deliveries reuse it.
func (a Alert) Key() string {
	return fmt.Sprintf("rfq-%s-%d", a.Type, a.Timestamp.Unix())
}

// webhookPayload carries a one-line "text" for chat receivers alongside the
// structured alert.
type webhookPayload struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Alert  Alert  `json:"alert"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	policy resilience.Policy
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		policy: resilience.WebhookPolicy(),
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.SkippedEvents > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertMalformedEvents,
			Severity: SeverityHigh,
			Message: fmt.Sprintf(
				"%d malformed audit event(s) skipped in last %dh",
				snap.SkippedEvents, snap.LookbackHours,
			),
			Details: map[string]any{
				"skipped":     snap.SkippedEvents,
				"evaluations": snap.Evaluations,
			},
			Timestamp: now,
		})
	}

	minEvals := a.cfg.MinEvaluations
	if minEvals <= 0 {
		minEvals = 5
	}
	if a.cfg.AutoDeclineRateThreshold > 0 &&
		snap.Evaluations >= minEvals &&
		snap.AutoDeclineRate > a.cfg.AutoDeclineRateThreshold {
		severity := SeverityMedium
		if snap.AutoDeclineEnabled {
			severity = SeverityHigh
		}
		alerts = append(alerts, Alert{
			Type:     AlertAutoDeclineRate,
			Severity: severity,
			Message: fmt.Sprintf(
				"Auto-decline candidate rate %.1f%% exceeds threshold %.1f%% (%d of %d evaluations in last %dh)",
				snap.AutoDeclineRate*100, a.cfg.AutoDeclineRateThreshold*100,
				snap.AutoDeclineEvents, snap.Evaluations, snap.LookbackHours,
			),
			Details: map[string]any{
				"rate":                 snap.AutoDeclineRate,
				"threshold":            a.cfg.AutoDeclineRateThreshold,
				"auto_decline_events":  snap.AutoDeclineEvents,
				"evaluations":          snap.Evaluations,
				"auto_decline_enabled": snap.AutoDeclineEnabled,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		err := resilience.Do(ctx, a.policy, func(ctx context.Context) error {
			return a.sendWebhook(ctx, alert)
		})
		if err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", string(alert.Severity)),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(webhookPayload{
		Text:   fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Message),
		Source: "rfq-cli",
		Alert:  alert,
	})
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", alert.Key())

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	return resilience.StatusError("monitoring: webhook", resp.StatusCode)
}
