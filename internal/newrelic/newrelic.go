// Package newrelic provides New Relic APM integration, adapted from
// share/block telemetry to round/score telemetry.
package newrelic

import (
	"context"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/tos-network/subtensor-validator/internal/config"
	"github.com/tos-network/subtensor-validator/internal/orchestrator"
	"github.com/tos-network/subtensor-validator/internal/util"
)

// Agent wraps New Relic APM functionality.
type Agent struct {
	cfg *config.NewRelicConfig
	mu  sync.RWMutex
	app *newrelic.Application
}

// NewAgent creates a new New Relic agent.
func NewAgent(cfg *config.NewRelicConfig) *Agent {
	return &Agent{cfg: cfg}
}

// Start initializes the New Relic agent.
func (a *Agent) Start() error {
	if !a.cfg.Enabled {
		util.Info("New Relic APM disabled")
		return nil
	}
	if a.cfg.LicenseKey == "" {
		util.Warn("New Relic license key not configured, APM disabled")
		return nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(a.cfg.AppName),
		newrelic.ConfigLicense(a.cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		return err
	}

	if err := app.WaitForConnection(5 * time.Second); err != nil {
		util.Warnf("New Relic connection timeout: %v (will retry in background)", err)
	}

	a.mu.Lock()
	a.app = app
	a.mu.Unlock()

	util.Infof("New Relic APM enabled for app: %s", a.cfg.AppName)
	return nil
}

// Stop shuts down the New Relic agent.
func (a *Agent) Stop() {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app != nil {
		util.Info("Shutting down New Relic agent")
		app.Shutdown(10 * time.Second)
	}
}

// IsEnabled returns true once Start has created the New Relic
// application, whether or not its initial connection wait succeeded.
func (a *Agent) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.app != nil
}

func (a *Agent) recordCustomEvent(eventType string, params map[string]interface{}) {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()
	if app != nil {
		app.RecordCustomEvent(eventType, params)
	}
}

func (a *Agent) recordCustomMetric(name string, value float64) {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()
	if app != nil {
		app.RecordCustomMetric(name, value)
	}
}

// NewContext adds a transaction to a context.
func (a *Agent) NewContext(ctx context.Context, txn *newrelic.Transaction) context.Context {
	if txn == nil {
		return ctx
	}
	return newrelic.NewContext(ctx, txn)
}

// Publish implements orchestrator.RoundSink: it records the round as a
// custom event and updates per-round gauges, the direct analogue of the
// teacher's RecordBlockFound/UpdatePoolMetrics pair.
func (a *Agent) Publish(ctx context.Context, e orchestrator.RoundEvent) {
	a.recordCustomEvent("ChallengeRound", map[string]interface{}{
		"round_id":    e.RoundID,
		"block":       e.Block,
		"miner_count": len(e.UIDs),
		"elapsed_ms":  e.Elapsed.Milliseconds(),
	})

	a.recordCustomMetric("Custom/Round/MinerCount", float64(len(e.UIDs)))
	a.recordCustomMetric("Custom/Round/ElapsedMillis", float64(e.Elapsed.Milliseconds()))

	if len(e.Composite) == 0 {
		return
	}
	sum := 0.0
	for _, v := range e.Composite {
		sum += v
	}
	a.recordCustomMetric("Custom/Round/MeanScore", sum/float64(len(e.Composite)))
}
