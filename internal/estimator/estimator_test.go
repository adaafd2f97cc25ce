package estimator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ducminhle1904/risk-guard/internal/portfolio"
)

func testSnapshot(positions ...portfolio.Position) *portfolio.Snapshot {
	snap := &portfolio.Snapshot{
		TotalBalance: 100000,
		Positions:    positions,
	}
	for _, p := range positions {
		snap.UnrealizedPnL += p.UnrealizedPnL
		snap.TotalNotional += p.Notional()
	}
	return snap
}

// TestEstimate_EmptyPortfolioFloor tests that an empty valued portfolio yields
// exactly the floor score, not zero
func TestEstimate_EmptyPortfolioFloor(t *testing.T) {
	est := New(DefaultConfig())
	snap := testSnapshot()

	score := est.Estimate(snap, CorrelationMatrix{})

	floor := snap.Value() * DefaultConfig().MinVolatility * est.ZScore()
	assert.InDelta(t, floor, score.Value, 1e-9)
	assert.Greater(t, score.Value, 0.0)
}

// TestEstimate_ZeroValuePortfolio tests that a worthless portfolio scores zero
func TestEstimate_ZeroValuePortfolio(t *testing.T) {
	est := New(DefaultConfig())
	snap := &portfolio.Snapshot{TotalBalance: 0}

	score := est.Estimate(snap, CorrelationMatrix{})

	assert.Equal(t, 0.0, score.Value)
	assert.Equal(t, 0.0, score.Fraction)
}

// TestEstimate_SinglePosition tests the single-position volatility path
func TestEstimate_SinglePosition(t *testing.T) {
	est := New(DefaultConfig())
	snap := testSnapshot(portfolio.Position{
		Symbol:     "BTCUSDT",
		Quantity:   1.0,
		MarkPrice:  50000,
		Volatility: 0.04,
	})

	score := est.Estimate(snap, CorrelationMatrix{})

	// weight 0.5, vol 0.04 -> portfolio vol 0.02
	assert.InDelta(t, 0.02, score.Volatility, 1e-9)
	assert.Greater(t, score.Value, 0.0)
}

// TestEstimate_CorrelationCrossTerm tests that positive pairwise correlation
// raises the risk score relative to uncorrelated positions
func TestEstimate_CorrelationCrossTerm(t *testing.T) {
	est := New(DefaultConfig())
	snap := testSnapshot(
		portfolio.Position{Symbol: "BTCUSDT", Quantity: 0.5, MarkPrice: 50000, Volatility: 0.04},
		portfolio.Position{Symbol: "ETHUSDT", Quantity: 10, MarkPrice: 2500, Volatility: 0.05},
	)

	uncorrelated := est.Estimate(snap, CorrelationMatrix{})
	correlated := est.Estimate(snap, CorrelationMatrix{
		"BTCUSDT": {"ETHUSDT": 0.9},
	})

	assert.Greater(t, correlated.Value, uncorrelated.Value)
}

// TestCorrelationMatrix_Get tests symmetric lookup and defaults
func TestCorrelationMatrix_Get(t *testing.T) {
	m := CorrelationMatrix{"BTCUSDT": {"ETHUSDT": 0.8}}

	assert.Equal(t, 1.0, m.Get("BTCUSDT", "BTCUSDT"))
	assert.Equal(t, 0.8, m.Get("BTCUSDT", "ETHUSDT"))
	assert.Equal(t, 0.8, m.Get("ETHUSDT", "BTCUSDT"))
	assert.Equal(t, 0.0, m.Get("BTCUSDT", "SOLUSDT"))
}

// TestEstimate_MalformedVolatility tests that NaN position volatility falls
// back to the floor instead of propagating
func TestEstimate_MalformedVolatility(t *testing.T) {
	est := New(DefaultConfig())
	snap := testSnapshot(portfolio.Position{
		Symbol:     "BTCUSDT",
		Quantity:   1.0,
		MarkPrice:  50000,
		Volatility: math.NaN(),
	})

	score := est.Estimate(snap, CorrelationMatrix{})

	assert.False(t, math.IsNaN(score.Value))
	assert.GreaterOrEqual(t, score.Value, 0.0)
}

// TestEntropyFactor_RaisesRisk tests that higher entropy inflates the score
func TestEntropyFactor_RaisesRisk(t *testing.T) {
	snap := testSnapshot(portfolio.Position{
		Symbol: "BTCUSDT", Quantity: 1.0, MarkPrice: 50000, Volatility: 0.04,
	})

	low := New(DefaultConfig())
	low.UpdateFactors(0.5, 0.0, 0.5)
	high := New(DefaultConfig())
	high.UpdateFactors(0.5, 1.0, 0.5)

	assert.Greater(t, high.Estimate(snap, nil).Value, low.Estimate(snap, nil).Value)
}

// TestCoherenceFactor_LowersRisk tests that higher coherence deflates the score
func TestCoherenceFactor_LowersRisk(t *testing.T) {
	snap := testSnapshot(portfolio.Position{
		Symbol: "BTCUSDT", Quantity: 1.0, MarkPrice: 50000, Volatility: 0.04,
	})

	low := New(DefaultConfig())
	low.UpdateFactors(0.5, 0.5, 0.0)
	high := New(DefaultConfig())
	high.UpdateFactors(0.5, 0.5, 1.0)

	assert.Less(t, high.Estimate(snap, nil).Value, low.Estimate(snap, nil).Value)
}

// TestUpdateFactors_ClampsAndSanitizes tests out-of-range and NaN handling
func TestUpdateFactors_ClampsAndSanitizes(t *testing.T) {
	est := New(DefaultConfig())

	f := est.UpdateFactors(1.7, -0.3, math.NaN())

	assert.Equal(t, 1.0, f.Consciousness)
	assert.Equal(t, 0.0, f.Entropy)
	assert.Equal(t, 0.5, f.Coherence)
}

// TestDailyMax_Monotone tests that the daily maximum only ratchets up within
// a day and resets on the boundary
func TestDailyMax_Monotone(t *testing.T) {
	est := New(DefaultConfig())
	big := testSnapshot(portfolio.Position{
		Symbol: "BTCUSDT", Quantity: 2.0, MarkPrice: 50000, Volatility: 0.05,
	})
	small := testSnapshot()

	first := est.Estimate(big, nil)
	assert.InDelta(t, first.Value, est.DailyMax(), 1e-9)

	est.Estimate(small, nil)
	assert.InDelta(t, first.Value, est.DailyMax(), 1e-9, "smaller score must not lower the daily max")

	est.ResetDaily(time.Now().UTC())
	assert.Equal(t, 0.0, est.DailyMax())
}

// TestNormalQuantile tests the quantile approximation at known points
func TestNormalQuantile(t *testing.T) {
	assert.InDelta(t, 1.6449, normalQuantile(0.95), 0.001)
	assert.InDelta(t, 2.3263, normalQuantile(0.99), 0.001)
	assert.InDelta(t, 1.2816, normalQuantile(0.90), 0.001)
	// out-of-range confidence falls back to 95%
	assert.InDelta(t, 1.6449, normalQuantile(1.5), 0.001)
	assert.InDelta(t, 1.6449, normalQuantile(math.NaN()), 0.001)
}

// TestEstimate_HighConfidenceFloor tests that confidence levels in the upper
// quantile tail still produce a positive score at or above the floor
func TestEstimate_HighConfidenceFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfidenceLevel = 0.99
	est := New(cfg)
	snap := &portfolio.Snapshot{TotalBalance: 10000}

	score := est.Estimate(snap, CorrelationMatrix{})

	assert.Greater(t, est.ZScore(), 2.0)
	floor := snap.Value() * cfg.MinVolatility * est.ZScore()
	assert.GreaterOrEqual(t, score.Value, floor)
	assert.Greater(t, score.Value, 0.0)
}
