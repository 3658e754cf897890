package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/custard-cli/internal/config"
	"github.com/sells-group/custard-cli/internal/model"
	"github.com/sells-group/custard-cli/internal/resilience"
	"github.com/sells-group/custard-cli/internal/telemetry"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertStoreDegraded    AlertType = "store_degraded"
	AlertUnreliableShare  AlertType = "unreliable_share"
	minScoredForShareRule           = 5
)

// Alert represents a single alert to be sent.
type Alert struct {
	ID        string         `json:"id"`
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot and posts alerts to the ops webhook. Sends
// are paced by a rate limiter, retried on transient failures, and guarded
// by a circuit breaker.
type Alerter struct {
	cfg     config.MonitoringConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	metrics *telemetry.Metrics
	log     *zap.Logger
}

// NewAlerter creates an Alerter. breaker and metrics may be nil.
func NewAlerter(cfg config.MonitoringConfig, retry resilience.RetryConfig, breaker *resilience.CircuitBreaker, metrics *telemetry.Metrics) *Alerter {
	timeout := time.Duration(cfg.AlertTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	perMinute := cfg.AlertsPerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	if retry.ShouldRetry == nil {
		retry.ShouldRetry = resilience.IsTransient
	}
	return &Alerter{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute),
		breaker: breaker,
		retry:   retry,
		metrics: metrics,
		log:     zap.L().With(zap.String("component", "monitoring.alerter")),
	}
}

// tierRank orders tiers from best to worst.
func tierRank(t model.ReliabilityTier) int {
	switch t {
	case model.ReliabilityConfirmed:
		return 1
	case model.ReliabilityWatch:
		return 2
	case model.ReliabilityUnreliable:
		return 3
	default:
		return 0
	}
}

// Evaluate returns the alerts a snapshot triggers: one per store whose
// tier got worse, and one when too many scored stores are unreliable.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	for _, ch := range snap.Changes {
		from, to := tierRank(ch.From), tierRank(ch.To)
		if from == 0 || to <= from {
			continue
		}
		severity := "medium"
		if ch.To == model.ReliabilityUnreliable {
			severity = "high"
		}
		alerts = append(alerts, Alert{
			ID:       uuid.NewString(),
			Type:     AlertStoreDegraded,
			Severity: severity,
			Message:  fmt.Sprintf("Store %s schedule reliability dropped from %s to %s", ch.StoreID, ch.From, ch.To),
			Details: map[string]any{
				"store_id": ch.StoreID,
				"from":     string(ch.From),
				"to":       string(ch.To),
			},
			Timestamp: now,
		})
	}

	threshold := a.cfg.UnreliableShareThreshold
	if threshold > 0 && snap.Scored() >= minScoredForShareRule && snap.UnreliableShare > threshold {
		alerts = append(alerts, Alert{
			ID:       uuid.NewString(),
			Type:     AlertUnreliableShare,
			Severity: "high",
			Message: fmt.Sprintf(
				"%.1f%% of scored stores are unreliable, above threshold %.1f%% (%d of %d)",
				snap.UnreliableShare*100, threshold*100, snap.Unreliable, snap.Scored(),
			),
			Details: map[string]any{
				"unreliable_share": snap.UnreliableShare,
				"threshold":        threshold,
				"unreliable":       snap.Unreliable,
				"scored":           snap.Scored(),
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
		if err := a.limiter.Wait(ctx); err != nil {
			a.log.Warn("alert dropped, rate limiter wait aborted",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			a.metrics.AlertSent(string(alert.Type), "dropped")
			continue
		}
		if err := a.deliver(ctx, alert); err != nil {
			a.log.Error("failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
			a.metrics.AlertSent(string(alert.Type), "failed")
			continue
		}
		a.log.Info("alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		a.metrics.AlertSent(string(alert.Type), "sent")
		sent++
	}
	return sent
}

func (a *Alerter) deliver(ctx context.Context, alert Alert) error {
	send := func(ctx context.Context) error {
		return resilience.Do(ctx, a.retry, func(ctx context.Context) error {
			return a.sendWebhook(ctx, alert)
		})
	}
	if a.breaker == nil {
		return send(ctx)
	}
	return a.breaker.Execute(ctx, send)
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(
			eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
