package estimator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/risk-guard/internal/portfolio"
)

// TestEstimateDistribution_NoMutation tests that stress runs never touch the
// input snapshot
func TestEstimateDistribution_NoMutation(t *testing.T) {
	est := New(DefaultConfig())
	snap := testSnapshot(
		portfolio.Position{Symbol: "BTCUSDT", Quantity: 1.0, MarkPrice: 50000, Volatility: 0.04},
		portfolio.Position{Symbol: "ETHUSDT", Quantity: -5, MarkPrice: 2500, Volatility: 0.05},
	)
	before := *snap
	beforePositions := make([]portfolio.Position, len(snap.Positions))
	copy(beforePositions, snap.Positions)

	est.EstimateDistributionSeeded(snap, 500, 42)

	assert.Equal(t, before.TotalBalance, snap.TotalBalance)
	assert.Equal(t, before.UnrealizedPnL, snap.UnrealizedPnL)
	assert.Equal(t, beforePositions, snap.Positions)
}

// TestEstimateDistribution_TailOrdering tests the tail statistics ordering
func TestEstimateDistribution_TailOrdering(t *testing.T) {
	est := New(DefaultConfig())
	snap := testSnapshot(
		portfolio.Position{Symbol: "BTCUSDT", Quantity: 1.0, MarkPrice: 50000, Volatility: 0.04},
	)

	result := est.EstimateDistributionSeeded(snap, 2000, 7)

	require.Equal(t, 2000, result.Scenarios)
	assert.GreaterOrEqual(t, result.Loss99, result.Loss95)
	assert.GreaterOrEqual(t, result.WorstLoss, result.Loss99)
	assert.GreaterOrEqual(t, result.ExpectedShortfall, result.Loss95)
	assert.GreaterOrEqual(t, result.Loss95, 0.0)
	assert.GreaterOrEqual(t, result.MeanLoss, 0.0)
}

// TestEstimateDistribution_Deterministic tests seed reproducibility
func TestEstimateDistribution_Deterministic(t *testing.T) {
	est := New(DefaultConfig())
	snap := testSnapshot(
		portfolio.Position{Symbol: "BTCUSDT", Quantity: 1.0, MarkPrice: 50000, Volatility: 0.04},
	)

	a := est.EstimateDistributionSeeded(snap, 500, 99)
	b := est.EstimateDistributionSeeded(snap, 500, 99)

	assert.Equal(t, a, b)
}

// TestEstimateDistribution_EmptyPortfolio tests that an empty book produces a
// zero-loss distribution without panicking
func TestEstimateDistribution_EmptyPortfolio(t *testing.T) {
	est := New(DefaultConfig())
	result := est.EstimateDistributionSeeded(testSnapshot(), 100, 1)

	assert.Equal(t, 0.0, result.WorstLoss)
	assert.Equal(t, 0.0, result.MeanLoss)
}
