package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/custard-cli/internal/config"
	"github.com/sells-group/custard-cli/internal/events"
	"github.com/sells-group/custard-cli/internal/telemetry"
)

// Checker refreshes reliability on an interval, publishes the result, and
// raises alerts.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	publisher events.Publisher
	metrics   *telemetry.Metrics
	cfg       config.MonitoringConfig
}

// NewChecker creates a background refresh checker. publisher and metrics
// may be nil.
func NewChecker(collector *Collector, alerter *Alerter, publisher events.Publisher, metrics *telemetry.Metrics, cfg config.MonitoringConfig) *Checker {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		publisher: publisher,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.IntervalMins) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting reliability checker", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("reliability checker stopped")
			return
		case <-ticker.C:
			if _, err := c.RunOnce(ctx); err != nil {
				log.Error("reliability check failed", zap.Error(err))
			}
		}
	}
}

// Report is the outcome of one check.
type Report struct {
	Snapshot     *Snapshot     `json:"snapshot"`
	Published    bool          `json:"published"`
	AlertsRaised int           `json:"alerts_raised"`
	AlertsSent   int           `json:"alerts_sent"`
	Duration     time.Duration `json:"duration_ns"`
}

// RunOnce refreshes reliability, publishes the refresh event, and sends
// any alerts. Publish and alert failures are logged, not returned.
func (c *Checker) RunOnce(ctx context.Context) (*Report, error) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	start := time.Now()

	snap, err := c.collector.Collect(ctx)
	if err != nil {
		c.metrics.RefreshRun("failed")
		return nil, err
	}
	c.metrics.RefreshRun("ok")

	report := &Report{Snapshot: snap}
	if err := c.publisher.PublishRefresh(ctx, snap.Event()); err != nil {
		log.Warn("publish refresh event failed", zap.Error(err))
	} else {
		report.Published = true
	}

	if c.alerter != nil {
		alerts := c.alerter.Evaluate(snap)
		report.AlertsRaised = len(alerts)
		if len(alerts) > 0 {
			report.AlertsSent = c.alerter.SendAlerts(ctx, alerts)
		}
	}

	report.Duration = time.Since(start)
	log.Info("reliability check complete",
		zap.Int("stores", snap.Stores),
		zap.Int("unreliable", snap.Unreliable),
		zap.Int("alerts_raised", report.AlertsRaised),
		zap.Int("alerts_sent", report.AlertsSent),
	)
	return report, nil
}
