package breaker

import (
	"fmt"
	"time"

	"github.com/ducminhle1904/risk-guard/internal/portfolio"
)

// Limits are the threshold tunables for the per-tick condition scan
type Limits struct {
	LossThresholdL1     float64 // portfolio loss fraction, ascending
	LossThresholdL2     float64
	LossThresholdL3     float64
	MaxDrawdown         float64 // hard cap; Level2 warns at 70% of it
	MaxLeverage         float64
	MaxDailyTrades      int
	MaxPositionNotional float64 // fraction of portfolio value
	RapidLossThreshold  float64 // loss fraction inside the window
	RapidLossWindow     time.Duration
}

// DefaultLimits returns the tuned condition thresholds
func DefaultLimits() Limits {
	return Limits{
		LossThresholdL1:     0.015,
		LossThresholdL2:     0.025,
		LossThresholdL3:     0.04,
		MaxDrawdown:         0.10,
		MaxLeverage:         10.0,
		MaxDailyTrades:      50,
		MaxPositionNotional: 0.20,
		RapidLossThreshold:  0.02,
		RapidLossWindow:     2 * time.Minute,
	}
}

type lossSample struct {
	at    time.Time
	value float64 // portfolio value at sample time
}

// tracker carries the cross-tick observations the condition scan needs:
// the daily baseline, peak value for drawdown, trade count and the rolling
// value window for rapid-loss detection. Guarded by the breaker mutex.
type tracker struct {
	limits        Limits
	dailyBaseline float64 // portfolio value at day start, 0 until first observation
	peakValue     float64
	maxDrawdown   float64 // fraction of peak
	dailyTrades   int
	window        []lossSample
}

func newTracker(limits Limits) *tracker {
	if limits.RapidLossWindow <= 0 {
		limits.RapidLossWindow = DefaultLimits().RapidLossWindow
	}
	return &tracker{limits: limits}
}

func (t *tracker) observe(now time.Time, value float64) {
	if value <= 0 {
		return
	}
	if t.dailyBaseline == 0 {
		t.dailyBaseline = value
	}
	if value > t.peakValue {
		t.peakValue = value
	}
	if t.peakValue > 0 {
		dd := (t.peakValue - value) / t.peakValue
		if dd > t.maxDrawdown {
			t.maxDrawdown = dd
		}
	}

	t.window = append(t.window, lossSample{at: now, value: value})
	cutoff := now.Add(-t.limits.RapidLossWindow)
	for len(t.window) > 0 && t.window[0].at.Before(cutoff) {
		t.window = t.window[1:]
	}
}

// rapidLossFraction returns the loss over the rolling window as a fraction of
// the window-start value
func (t *tracker) rapidLossFraction() float64 {
	if len(t.window) < 2 {
		return 0
	}
	first := t.window[0].value
	last := t.window[len(t.window)-1].value
	if first <= 0 || last >= first {
		return 0
	}
	return (first - last) / first
}

func (t *tracker) resetDaily(now time.Time, value float64) {
	t.dailyTrades = 0
	t.dailyBaseline = value
	t.maxDrawdown = 0
	t.peakValue = value
	t.window = t.window[:0]
	if value > 0 {
		t.window = append(t.window, lossSample{at: now, value: value})
	}
}

// ObserveValue feeds a portfolio value into the drawdown and rolling-loss
// tracking. Called by both the main and rapid-loss ticks.
func (b *Breaker) ObserveValue(now time.Time, value float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tracker.observe(now, value)
}

// RecordTrade increments the daily trade counter
func (b *Breaker) RecordTrade() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tracker.dailyTrades++
}

// DailyTrades returns the current daily trade count
func (b *Breaker) DailyTrades() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tracker.dailyTrades
}

// ScanConditions evaluates every main-tick trigger condition against the
// snapshot. Rapid loss is deliberately excluded; the fine-cadence tick scans
// it via RapidLossCondition.
func (b *Breaker) ScanConditions(snap *portfolio.Snapshot) []Condition {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.tracker
	var conditions []Condition
	value := snap.Value()

	// (a) portfolio loss fraction vs ascending thresholds
	if t.dailyBaseline > 0 && value > 0 {
		lossFraction := (t.dailyBaseline - value) / t.dailyBaseline
		switch {
		case lossFraction >= t.limits.LossThresholdL3:
			conditions = append(conditions, Condition{
				Level:    Level3Emergency,
				Reason:   fmt.Sprintf("portfolio loss %.2f%% breached emergency threshold %.2f%%", lossFraction*100, t.limits.LossThresholdL3*100),
				Observed: lossFraction,
			})
		case lossFraction >= t.limits.LossThresholdL2:
			conditions = append(conditions, Condition{
				Level:    Level2Caution,
				Reason:   fmt.Sprintf("portfolio loss %.2f%% breached caution threshold %.2f%%", lossFraction*100, t.limits.LossThresholdL2*100),
				Observed: lossFraction,
			})
		case lossFraction >= t.limits.LossThresholdL1:
			conditions = append(conditions, Condition{
				Level:    Level1Warning,
				Reason:   fmt.Sprintf("portfolio loss %.2f%% breached warning threshold %.2f%%", lossFraction*100, t.limits.LossThresholdL1*100),
				Observed: lossFraction,
			})
		}
	}

	// (b) max drawdown vs hard cap and 70% of the cap
	if t.limits.MaxDrawdown > 0 {
		switch {
		case t.maxDrawdown >= t.limits.MaxDrawdown:
			conditions = append(conditions, Condition{
				Level:    Level3Emergency,
				Reason:   fmt.Sprintf("drawdown %.2f%% breached cap %.2f%%", t.maxDrawdown*100, t.limits.MaxDrawdown*100),
				Observed: t.maxDrawdown,
			})
		case t.maxDrawdown >= t.limits.MaxDrawdown*0.7:
			conditions = append(conditions, Condition{
				Level:    Level2Caution,
				Reason:   fmt.Sprintf("drawdown %.2f%% above 70%% of cap %.2f%%", t.maxDrawdown*100, t.limits.MaxDrawdown*100),
				Observed: t.maxDrawdown,
			})
		}
	}

	// (c) total leverage ratio vs cap
	if t.limits.MaxLeverage > 0 {
		if lev := snap.LeverageRatio(); lev > t.limits.MaxLeverage {
			conditions = append(conditions, Condition{
				Level:    Level2Caution,
				Reason:   fmt.Sprintf("leverage %.2fx above cap %.2fx", lev, t.limits.MaxLeverage),
				Observed: lev,
			})
		}
	}

	// (d) trade count vs daily cap
	if t.limits.MaxDailyTrades > 0 && t.dailyTrades > t.limits.MaxDailyTrades {
		conditions = append(conditions, Condition{
			Level:    Level2Caution,
			Reason:   fmt.Sprintf("daily trade count %d above cap %d", t.dailyTrades, t.limits.MaxDailyTrades),
			Observed: float64(t.dailyTrades),
		})
	}

	// (e) individual position notional vs cap
	if t.limits.MaxPositionNotional > 0 && value > 0 {
		for _, p := range snap.Positions {
			if frac := p.Notional() / value; frac > t.limits.MaxPositionNotional {
				conditions = append(conditions, Condition{
					Level:    Level1Warning,
					Reason:   fmt.Sprintf("%s notional %.2f%% of equity above cap %.2f%%", p.Symbol, frac*100, t.limits.MaxPositionNotional*100),
					Observed: frac,
				})
			}
		}
	}

	return conditions
}

// RapidLossCondition scans only the rolling-loss window. It runs on the
// fine-cadence tick and may trip Level3 independently of the main loop,
// under the same suppression rule.
func (b *Breaker) RapidLossCondition() *Condition {
	b.mu.Lock()
	defer b.mu.Unlock()

	frac := b.tracker.rapidLossFraction()
	if b.tracker.limits.RapidLossThreshold <= 0 || frac < b.tracker.limits.RapidLossThreshold {
		return nil
	}
	return &Condition{
		Level: Level3Emergency,
		Reason: fmt.Sprintf("rapid loss %.2f%% within %s above threshold %.2f%%",
			frac*100, b.tracker.limits.RapidLossWindow, b.tracker.limits.RapidLossThreshold*100),
		Observed: frac,
	}
}

// MaxDrawdown returns the tracked peak-to-trough drawdown fraction
func (b *Breaker) MaxDrawdown() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tracker.maxDrawdown
}
