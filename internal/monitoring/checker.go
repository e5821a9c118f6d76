package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/regionstat/internal/config"
)

// Checker runs periodic alert checks in the background. An alert with the
// same key is not resent until the lookback window has passed.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	now       func() time.Time

	mu   sync.Mutex
	sent map[string]time.Time
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		now:       time.Now,
		sent:      make(map[string]time.Time),
	}
}

// Run checks once, then on every interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	if ctx.Err() == nil {
		c.Check(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check collects one snapshot and sends the alerts it triggers that were not
// already sent within the lookback window. It returns the number sent.
func (c *Checker) Check(ctx context.Context) int {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return 0
	}

	alerts := c.fresh(c.alerter.Evaluate(snap))
	if len(alerts) == 0 {
		log.Debug("monitoring: no new alerts")
		return 0
	}

	sent := 0
	for _, a := range alerts {
		if c.alerter.SendAlerts(ctx, []Alert{a}) == 1 {
			c.mark(a.Key)
			sent++
		}
	}
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return sent
}

func (c *Checker) fresh(alerts []Alert) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	cooldown := time.Duration(c.cfg.LookbackWindowHours) * time.Hour
	now := c.now()
	out := alerts[:0]
	for _, a := range alerts {
		if at, ok := c.sent[a.Key]; ok && now.Sub(at) < cooldown {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (c *Checker) mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent[key] = c.now()
}
