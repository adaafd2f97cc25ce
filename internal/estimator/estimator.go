package estimator

import (
	"math"
	"sync"
	"time"

	"github.com/ducminhle1904/risk-guard/internal/portfolio"
)

// Config holds the estimator tunables
type Config struct {
	ConfidenceLevel    float64 // one-tailed, e.g. 0.95
	MinVolatility      float64 // volatility floor, fraction
	EntropyFactorMin   float64
	EntropyFactorMax   float64
	CoherenceFactorMin float64
	CoherenceFactorMax float64
}

// DefaultConfig returns the tuned estimator defaults
func DefaultConfig() Config {
	return Config{
		ConfidenceLevel:    0.95,
		MinVolatility:      0.001,
		EntropyFactorMin:   0.8,
		EntropyFactorMax:   1.5,
		CoherenceFactorMin: 0.6,
		CoherenceFactorMax: 1.0,
	}
}

// CorrelationMatrix maps symbol pairs to correlation coefficients.
// Missing pairs are treated as uncorrelated.
type CorrelationMatrix map[string]map[string]float64

// Get returns the correlation between two symbols
func (m CorrelationMatrix) Get(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if row, ok := m[a]; ok {
		if c, ok := row[b]; ok {
			return c
		}
	}
	if row, ok := m[b]; ok {
		if c, ok := row[a]; ok {
			return c
		}
	}
	return 0.0
}

// Factors holds the exogenous risk-modulation inputs. These are plain bounded
// dispersion/agreement statistics; out-of-range updates are clamped, not
// rejected.
type Factors struct {
	Consciousness float64 // [0,1]
	Entropy       float64 // [0,1], higher disorder raises assumed risk
	Coherence     float64 // [0,1], higher agreement lowers assumed risk
}

// Score is a point-in-time risk estimate
type Score struct {
	Timestamp       time.Time
	Value           float64 // expected loss in quote units, >= 0
	Fraction        float64 // Value / portfolio value
	Volatility      float64 // weighted portfolio volatility after flooring
	PortfolioValue  float64
	EntropyFactor   float64
	CoherenceFactor float64
}

// Estimator computes risk scores and carries the rolling daily maximum.
// Factors are written by the exogenous tick only; everything shared is
// guarded by the mutex.
type Estimator struct {
	mu        sync.Mutex
	config    Config
	z         float64
	factors   Factors
	dailyMax  float64
	dayAnchor time.Time
}

// New creates an estimator with the given configuration
func New(config Config) *Estimator {
	if config.MinVolatility <= 0 {
		config.MinVolatility = 0.001
	}
	return &Estimator{
		config:    config,
		z:         normalQuantile(config.ConfidenceLevel),
		factors:   Factors{Consciousness: 0.5, Entropy: 0.5, Coherence: 0.5},
		dayAnchor: time.Now().UTC().Truncate(24 * time.Hour),
	}
}

// UpdateFactors installs new exogenous inputs, clamping each to [0,1]
func (e *Estimator) UpdateFactors(consciousness, entropy, coherence float64) Factors {
	f := Factors{
		Consciousness: clamp(sanitize(consciousness, 0.5), 0, 1),
		Entropy:       clamp(sanitize(entropy, 0.5), 0, 1),
		Coherence:     clamp(sanitize(coherence, 0.5), 0, 1),
	}
	e.mu.Lock()
	e.factors = f
	e.mu.Unlock()
	return f
}

// CurrentFactors returns the factors the next estimate will use
func (e *Estimator) CurrentFactors() Factors {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.factors
}

// Estimate computes the risk score for the snapshot. Degenerate input never
// produces an error: an empty portfolio yields the floor score so the breaker
// always has a defined value to work with.
func (e *Estimator) Estimate(snap *portfolio.Snapshot, corr CorrelationMatrix) Score {
	e.mu.Lock()
	factors := e.factors
	e.mu.Unlock()

	value := snap.Value()
	if value <= 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		value = 0
	}

	vol := e.portfolioVolatility(snap, corr, value)

	entropyFactor := lerp(e.config.EntropyFactorMin, e.config.EntropyFactorMax, factors.Entropy)
	coherenceFactor := lerp(e.config.CoherenceFactorMax, e.config.CoherenceFactorMin, factors.Coherence)

	raw := value * vol * e.z * entropyFactor * coherenceFactor
	if raw < 0 || math.IsNaN(raw) || math.IsInf(raw, 0) {
		raw = 0
	}
	// never below the volatility floor on a valued portfolio
	floor := value * e.config.MinVolatility * e.z
	if raw < floor {
		raw = floor
	}

	score := Score{
		Timestamp:       time.Now(),
		Value:           raw,
		Volatility:      vol,
		PortfolioValue:  value,
		EntropyFactor:   entropyFactor,
		CoherenceFactor: coherenceFactor,
	}
	if value > 0 {
		score.Fraction = raw / value
	}

	e.recordDailyMax(score)
	return score
}

// portfolioVolatility computes the weighted volatility with pairwise cross
// terms, floored at the configured minimum
func (e *Estimator) portfolioVolatility(snap *portfolio.Snapshot, corr CorrelationMatrix, value float64) float64 {
	if value <= 0 || len(snap.Positions) == 0 {
		return e.config.MinVolatility
	}

	n := len(snap.Positions)
	weights := make([]float64, n)
	vols := make([]float64, n)
	for i, p := range snap.Positions {
		weights[i] = p.Notional() / value
		vols[i] = sanitize(p.Volatility, e.config.MinVolatility)
		if vols[i] < 0 {
			vols[i] = e.config.MinVolatility
		}
	}

	var variance float64
	for i := 0; i < n; i++ {
		variance += weights[i] * weights[i] * vols[i] * vols[i]
		for j := i + 1; j < n; j++ {
			rho := corr.Get(snap.Positions[i].Symbol, snap.Positions[j].Symbol)
			variance += 2 * weights[i] * weights[j] * rho * vols[i] * vols[j]
		}
	}
	if variance < 0 {
		variance = 0
	}

	vol := math.Sqrt(variance)
	if vol < e.config.MinVolatility {
		vol = e.config.MinVolatility
	}
	return vol
}

func (e *Estimator) recordDailyMax(score Score) {
	e.mu.Lock()
	defer e.mu.Unlock()

	day := score.Timestamp.UTC().Truncate(24 * time.Hour)
	if day.After(e.dayAnchor) {
		e.dayAnchor = day
		e.dailyMax = 0
	}
	if score.Value > e.dailyMax {
		e.dailyMax = score.Value
	}
}

// DailyMax returns the rolling daily maximum risk score
func (e *Estimator) DailyMax() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dailyMax
}

// ResetDaily clears the daily maximum at the trading-day boundary
func (e *Estimator) ResetDaily(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dayAnchor = now.UTC().Truncate(24 * time.Hour)
	e.dailyMax = 0
}

// ZScore returns the configured confidence quantile
func (e *Estimator) ZScore() float64 {
	return e.z
}

// normalQuantile returns the one-tailed standard normal quantile for the
// confidence level, using the Beasley-Springer-Moro approximation. Out-of-range
// confidence falls back to 95%.
func normalQuantile(confidence float64) float64 {
	if confidence <= 0.5 || confidence >= 1 || math.IsNaN(confidence) {
		confidence = 0.95
	}

	a := []float64{-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02,
		1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00}
	b := []float64{-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02,
		6.680131188771972e+01, -1.328068155288572e+01}
	c := []float64{-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00,
		-2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00}
	d := []float64{7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00,
		3.754408661907416e+00}

	p := confidence
	if p > 0.97575 {
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	}
	q := p - 0.5
	r := q * q
	return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
		(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// lerp interpolates between a and b by t in [0,1]
func lerp(a, b, t float64) float64 {
	return a + (b-a)*clamp(t, 0, 1)
}

// sanitize replaces NaN/Inf values with the fallback
func sanitize(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
