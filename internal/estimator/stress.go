package estimator

import (
	"math"
	"math/rand"
	"sort"

	"github.com/ducminhle1904/risk-guard/internal/portfolio"
)

// StressResult summarizes a simulated loss distribution
type StressResult struct {
	Scenarios         int
	Loss95            float64 // 95th percentile loss
	Loss99            float64 // 99th percentile loss
	ExpectedShortfall float64 // mean of the worst 5%
	WorstLoss         float64
	MeanLoss          float64
}

// StressScenario describes one perturbation applied to a snapshot copy
type StressScenario struct {
	MarketShock    float64 // relative price move applied against each position
	VolMultiplier  float64
	CorrMultiplier float64
}

// EstimateDistribution runs scenarioCount independent perturbations against a
// copy of the snapshot and reports tail statistics of the resulting losses.
// The input snapshot is never mutated; each scenario simulates and discards.
func (e *Estimator) EstimateDistribution(snap *portfolio.Snapshot, scenarioCount int) StressResult {
	return e.EstimateDistributionSeeded(snap, scenarioCount, rand.Int63())
}

// EstimateDistributionSeeded is EstimateDistribution with a fixed seed, for
// reproducible runs
func (e *Estimator) EstimateDistributionSeeded(snap *portfolio.Snapshot, scenarioCount int, seed int64) StressResult {
	if scenarioCount <= 0 {
		scenarioCount = 1000
	}
	rng := rand.New(rand.NewSource(seed))

	losses := make([]float64, 0, scenarioCount)
	for i := 0; i < scenarioCount; i++ {
		scenario := StressScenario{
			// shocks up to ±10%, skewed treatment happens in the loss calc
			MarketShock:    (rng.Float64() - 0.5) * 0.20,
			VolMultiplier:  0.5 + rng.Float64()*2.5,
			CorrMultiplier: 0.8 + rng.Float64()*0.4,
		}
		losses = append(losses, e.scenarioLoss(snap, scenario, rng))
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(losses)))

	result := StressResult{Scenarios: scenarioCount}
	result.WorstLoss = losses[0]
	result.Loss95 = percentileDesc(losses, 0.95)
	result.Loss99 = percentileDesc(losses, 0.99)

	var sum float64
	for _, l := range losses {
		sum += l
	}
	result.MeanLoss = sum / float64(len(losses))

	tail := len(losses) / 20
	if tail == 0 {
		tail = 1
	}
	var tailSum float64
	for _, l := range losses[:tail] {
		tailSum += l
	}
	result.ExpectedShortfall = tailSum / float64(tail)

	return result
}

// scenarioLoss computes the portfolio loss for one scenario against copied
// position values; the snapshot itself is read-only here
func (e *Estimator) scenarioLoss(snap *portfolio.Snapshot, scenario StressScenario, rng *rand.Rand) float64 {
	var loss float64
	for _, p := range snap.Positions {
		vol := sanitize(p.Volatility, e.config.MinVolatility) * scenario.VolMultiplier
		if vol < e.config.MinVolatility {
			vol = e.config.MinVolatility
		}
		// per-position move: common shock plus an idiosyncratic draw scaled
		// by the stressed volatility
		move := scenario.MarketShock + rng.NormFloat64()*vol*scenario.CorrMultiplier

		// a long loses when price falls, a short when it rises
		pnl := p.Quantity * p.MarkPrice * move
		if pnl < 0 {
			loss += -pnl
		}
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0
	}
	return loss
}

// percentileDesc reads the q-th percentile from a descending-sorted slice
func percentileDesc(desc []float64, q float64) float64 {
	if len(desc) == 0 {
		return 0
	}
	idx := int(float64(len(desc)) * (1 - q))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(desc) {
		idx = len(desc) - 1
	}
	return desc[idx]
}
