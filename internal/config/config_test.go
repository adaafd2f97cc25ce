package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestLoad_Defaults tests the tuned defaults with a clean environment
func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 5*time.Second, cfg.Loop.MonitorInterval)
	assert.Equal(t, time.Second, cfg.Loop.RapidLossInterval)
	assert.Equal(t, 10*time.Second, cfg.Loop.ExogenousInterval)

	assert.Equal(t, 0.95, cfg.Estimator.ConfidenceLevel)
	assert.Equal(t, 0.001, cfg.Estimator.MinVolatility)

	assert.Equal(t, 0.015, cfg.Breaker.LossThresholdL1)
	assert.Equal(t, 0.025, cfg.Breaker.LossThresholdL2)
	assert.Equal(t, 0.04, cfg.Breaker.LossThresholdL3)
	assert.Equal(t, 0.10, cfg.Breaker.MaxDrawdown)
	assert.Equal(t, 15*time.Minute, cfg.Breaker.CoolingL1)
	assert.Equal(t, 30*time.Minute, cfg.Breaker.CoolingL2)
	assert.Equal(t, time.Hour, cfg.Breaker.CoolingL3)

	assert.Equal(t, 0.25, cfg.Executor.ReductionL1)
	assert.Equal(t, 0.50, cfg.Executor.ReductionL2)

	assert.Equal(t, 10.0, cfg.Sizing.MinOrderSize)
	assert.Equal(t, 250000.0, cfg.Sizing.MaxOrderSize)
	assert.Equal(t, 1.618, cfg.Sizing.RewardRiskRatio)
}

// TestLoad_EnvOverrides tests environment-variable overrides
func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MONITOR_INTERVAL", "2s")
	t.Setenv("BREAKER_LOSS_L1", "0.02")
	t.Setenv("BREAKER_MAX_DAILY_TRADES", "25")
	t.Setenv("ACCOUNT_LABEL", "paper-1")

	cfg := Load()

	assert.Equal(t, 2*time.Second, cfg.Loop.MonitorInterval)
	assert.Equal(t, 0.02, cfg.Breaker.LossThresholdL1)
	assert.Equal(t, 25, cfg.Breaker.MaxDailyTrades)
	assert.Equal(t, "paper-1", cfg.Account)
}

// TestLoad_MalformedEnvFallsBack tests that unparseable values keep defaults
func TestLoad_MalformedEnvFallsBack(t *testing.T) {
	t.Setenv("MONITOR_INTERVAL", "soon")
	t.Setenv("BREAKER_LOSS_L1", "lots")
	t.Setenv("BREAKER_MAX_DAILY_TRADES", "many")

	cfg := Load()

	assert.Equal(t, 5*time.Second, cfg.Loop.MonitorInterval)
	assert.Equal(t, 0.015, cfg.Breaker.LossThresholdL1)
	assert.Equal(t, 50, cfg.Breaker.MaxDailyTrades)
}
