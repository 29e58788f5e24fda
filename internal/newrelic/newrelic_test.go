package newrelic

import (
	"context"
	"testing"

	"github.com/tos-network/subtensor-validator/internal/config"
	"github.com/tos-network/subtensor-validator/internal/orchestrator"
)

func TestNewAgent(t *testing.T) {
	cfg := &config.NewRelicConfig{Enabled: true, AppName: "Test Validator", LicenseKey: "test_key"}

	agent := NewAgent(cfg)
	if agent == nil {
		t.Fatal("NewAgent returned nil")
	}
	if agent.cfg != cfg {
		t.Error("Agent.cfg not set correctly")
	}
	if agent.app != nil {
		t.Error("Agent.app should be nil before Start()")
	}
}

func TestStartDisabled(t *testing.T) {
	agent := NewAgent(&config.NewRelicConfig{Enabled: false})

	if err := agent.Start(); err != nil {
		t.Errorf("Start() returned error when disabled: %v", err)
	}
	if agent.app != nil {
		t.Error("Agent.app should be nil when disabled")
	}
}

func TestStartNoLicenseKey(t *testing.T) {
	agent := NewAgent(&config.NewRelicConfig{Enabled: true, AppName: "Test Validator"})

	if err := agent.Start(); err != nil {
		t.Errorf("Start() returned error with empty license key: %v", err)
	}
	if agent.app != nil {
		t.Error("Agent.app should be nil with empty license key")
	}
}

func TestStopNotStarted(t *testing.T) {
	agent := NewAgent(&config.NewRelicConfig{Enabled: false})
	agent.Stop()
}

func TestIsEnabledNotStarted(t *testing.T) {
	agent := NewAgent(&config.NewRelicConfig{Enabled: false})
	if agent.IsEnabled() {
		t.Error("IsEnabled() should return false when not started")
	}
}

func TestRecordCustomEventNotStarted(t *testing.T) {
	agent := NewAgent(&config.NewRelicConfig{Enabled: false})
	agent.recordCustomEvent("TestEvent", map[string]interface{}{"key": "value"})
}

func TestRecordCustomMetricNotStarted(t *testing.T) {
	agent := NewAgent(&config.NewRelicConfig{Enabled: false})
	agent.recordCustomMetric("Custom/Test", 123.45)
}

func TestNewContextNilTransaction(t *testing.T) {
	agent := NewAgent(&config.NewRelicConfig{Enabled: false})
	ctx := context.Background()

	if result := agent.NewContext(ctx, nil); result != ctx {
		t.Error("NewContext should return original context when txn is nil")
	}
}

func TestPublishNotStarted(t *testing.T) {
	agent := NewAgent(&config.NewRelicConfig{Enabled: false})

	// Should not panic when the underlying application was never started.
	agent.Publish(context.Background(), orchestrator.RoundEvent{
		RoundID:   1,
		Block:     100,
		UIDs:      []uint16{1, 2},
		Composite: map[uint16]float64{1: 0.5, 2: 0.8},
	})
}

func TestConcurrentAccess(t *testing.T) {
	agent := NewAgent(&config.NewRelicConfig{Enabled: false})

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			agent.IsEnabled()
			agent.recordCustomEvent("test", nil)
			agent.recordCustomMetric("test", 1.0)
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
