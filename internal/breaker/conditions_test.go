package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/risk-guard/internal/portfolio"
)

func snapshotWithValue(balance float64, positions ...portfolio.Position) *portfolio.Snapshot {
	snap := &portfolio.Snapshot{TotalBalance: balance, Positions: positions}
	for _, p := range positions {
		snap.UnrealizedPnL += p.UnrealizedPnL
		snap.TotalNotional += p.Notional()
	}
	return snap
}

// TestScanConditions_LossLevels tests the ascending loss thresholds against
// the daily baseline
func TestScanConditions_LossLevels(t *testing.T) {
	cases := []struct {
		name     string
		value    float64
		expected Level
	}{
		{"no loss", 100000, LevelNormal},
		{"below warning", 99000, LevelNormal}, // 1.0%
		{"warning", 98400, Level1Warning},     // 1.6%
		{"caution", 97000, Level2Caution},     // 3.0%
		{"emergency", 95500, Level3Emergency}, // 4.5%
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestBreaker()
			now := time.Now()
			b.ObserveValue(now, 100000) // establishes the daily baseline

			conditions := b.ScanConditions(snapshotWithValue(tc.value))

			if tc.expected == LevelNormal {
				assert.Empty(t, conditions)
				return
			}
			require.Len(t, conditions, 1)
			assert.Equal(t, tc.expected, conditions[0].Level)
		})
	}
}

// TestScanConditions_DrawdownLevels tests the drawdown cap and its 70% band
func TestScanConditions_DrawdownLevels(t *testing.T) {
	b := newTestBreaker()
	now := time.Now()

	b.ObserveValue(now, 100000)
	b.ObserveValue(now.Add(time.Second), 92000) // 8% drawdown, above 70% of the 10% cap

	conditions := b.ScanConditions(snapshotWithValue(100000))
	found := false
	for _, c := range conditions {
		if c.Level == Level2Caution {
			found = true
		}
	}
	assert.True(t, found, "8%% drawdown should raise Level2")

	b.ObserveValue(now.Add(2*time.Second), 89000) // 11%, past the cap
	conditions = b.ScanConditions(snapshotWithValue(100000))
	found = false
	for _, c := range conditions {
		if c.Level == Level3Emergency {
			found = true
		}
	}
	assert.True(t, found, "11%% drawdown should raise Level3")
	assert.InDelta(t, 0.11, b.MaxDrawdown(), 0.001)
}

// TestScanConditions_Leverage tests the leverage cap condition
func TestScanConditions_Leverage(t *testing.T) {
	b := newTestBreaker()
	b.ObserveValue(time.Now(), 100000)

	snap := snapshotWithValue(100000, portfolio.Position{
		Symbol: "BTCUSDT", Quantity: 22, MarkPrice: 50000, Leverage: 20,
	})

	conditions := b.ScanConditions(snap)

	var levels []Level
	for _, c := range conditions {
		levels = append(levels, c.Level)
	}
	assert.Contains(t, levels, Level2Caution)
}

// TestScanConditions_DailyTrades tests the trade-count cap
func TestScanConditions_DailyTrades(t *testing.T) {
	b := newTestBreaker()
	b.ObserveValue(time.Now(), 100000)
	for i := 0; i < 51; i++ {
		b.RecordTrade()
	}

	conditions := b.ScanConditions(snapshotWithValue(100000))

	require.Len(t, conditions, 1)
	assert.Equal(t, Level2Caution, conditions[0].Level)
	assert.Equal(t, 51.0, conditions[0].Observed)
}

// TestScanConditions_PositionNotional tests the per-position concentration cap
func TestScanConditions_PositionNotional(t *testing.T) {
	b := newTestBreaker()
	b.ObserveValue(time.Now(), 100000)

	snap := snapshotWithValue(100000,
		portfolio.Position{Symbol: "BTCUSDT", Quantity: 0.5, MarkPrice: 50000}, // 25% of equity
		portfolio.Position{Symbol: "ETHUSDT", Quantity: 2, MarkPrice: 2500},    // 5%
	)

	conditions := b.ScanConditions(snap)

	require.Len(t, conditions, 1)
	assert.Equal(t, Level1Warning, conditions[0].Level)
	assert.Contains(t, conditions[0].Reason, "BTCUSDT")
}

// TestRapidLossCondition tests the rolling-window rapid loss trigger
func TestRapidLossCondition(t *testing.T) {
	b := newTestBreaker()
	now := time.Now()

	b.ObserveValue(now, 100000)
	assert.Nil(t, b.RapidLossCondition(), "single sample cannot establish a loss")

	b.ObserveValue(now.Add(30*time.Second), 99000) // 1%, below threshold
	assert.Nil(t, b.RapidLossCondition())

	b.ObserveValue(now.Add(time.Minute), 97500) // 2.5% inside the window
	cond := b.RapidLossCondition()
	require.NotNil(t, cond)
	assert.Equal(t, Level3Emergency, cond.Level)
	assert.InDelta(t, 0.025, cond.Observed, 0.001)
}

// TestRapidLossCondition_WindowExpiry tests that old samples age out
func TestRapidLossCondition_WindowExpiry(t *testing.T) {
	b := newTestBreaker()
	now := time.Now()

	b.ObserveValue(now, 100000)
	// slow bleed: each sample lands after the previous has left the window
	b.ObserveValue(now.Add(3*time.Minute), 98000)
	b.ObserveValue(now.Add(6*time.Minute), 96000)

	assert.Nil(t, b.RapidLossCondition(), "losses spread across windows must not trip")
}

// TestDailyReset_ClearsTrackerState tests baseline, drawdown and window reset
func TestDailyReset_ClearsTrackerState(t *testing.T) {
	b := newTestBreaker()
	now := time.Now()
	b.ObserveValue(now, 100000)
	b.ObserveValue(now.Add(time.Second), 90000)
	require.Greater(t, b.MaxDrawdown(), 0.0)

	b.DailyReset(now.Add(24*time.Hour), 90000)

	assert.Equal(t, 0.0, b.MaxDrawdown())
	assert.Nil(t, b.RapidLossCondition())
	// new baseline: no loss conditions at the reset value
	assert.Empty(t, b.ScanConditions(snapshotWithValue(90000)))
}
