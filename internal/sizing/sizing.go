package sizing

import (
	"fmt"
	"math"

	"github.com/ducminhle1904/risk-guard/internal/breaker"
	"github.com/ducminhle1904/risk-guard/internal/logger"
)

// Side is the direction of a proposed trade
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType selects between resting and aggressive execution
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// TimeInForce is the order's lifetime policy
type TimeInForce string

const (
	TIFGoodTillCancel TimeInForce = "GTC"
	TIFImmediate      TimeInForce = "IOC"
)

// Signal is a proposed trade from an upstream strategy
type Signal struct {
	Symbol     string
	Side       Side
	BaseSize   float64 // desired size in quote units before adjustment
	Confidence float64 // [0,1]
	Urgency    float64 // [0,1]
}

// MarketData carries the per-symbol inputs the gate sizes against. Malformed
// values (NaN, Inf, negatives) are tolerated and treated as worst case.
type MarketData struct {
	Price      float64
	Spread     float64
	ATR        float64 // ATR-like volatility measure, absolute price units
	Volatility float64 // fraction
	Liquidity  float64 // [0,1] liquidity score
}

// RiskMetrics carries the portfolio-level inputs from the estimator
type RiskMetrics struct {
	RiskFraction   float64 // risk score over portfolio value
	VaRFraction    float64 // VaR over portfolio value
	Entropy        float64 // [0,1]
	AvgCorrelation float64 // [-1,1] mean pairwise correlation
}

// Adjustments are the named multiplicative factors applied to the base size,
// each clamped to its documented range
type Adjustments struct {
	VaR         float64
	Entropy     float64
	Correlation float64
	Volatility  float64
	Liquidity   float64
	Confidence  float64
}

// Composite returns the product of all factors
func (a Adjustments) Composite() float64 {
	return a.VaR * a.Entropy * a.Correlation * a.Volatility * a.Liquidity * a.Confidence
}

// CandidateOrder is a fully-formed order awaiting validation. It is never
// mutated after validation; a rejected order is discarded and rebuilt.
type CandidateOrder struct {
	Symbol      string
	Side        Side
	Quantity    float64 // base units
	Type        OrderType
	Price       *float64 // nil for market orders
	StopLoss    float64
	TakeProfit  float64
	TimeInForce TimeInForce
}

// SizingResult reports the admissible size for a signal
type SizingResult struct {
	Approved     bool
	RejectReason string
	Size         float64 // quote units, clamped to [MinOrderSize, MaxOrderSize]
	Adjustments  Adjustments
	Order        *CandidateOrder
}

// ValidationResult represents the result of a hard-limit check
type ValidationResult struct {
	Valid   bool
	Message string
	Code    string
}

// Config holds the sizing tunables; factor bounds are configuration defaults,
// not fixed constants
type Config struct {
	MinOrderSize float64 // quote units
	MaxOrderSize float64

	VaRTarget    float64 // VaR-to-value ratio considered comfortable
	VaRFactorMin float64
	VaRFactorMax float64

	EntropyFactorMin float64
	EntropyFactorMax float64

	CorrelationThreshold float64
	CorrelationFactorMin float64

	VolatilityBaseline  float64
	VolatilityFactorMin float64

	LiquidityFactorMin float64

	ConfidenceFactorMin float64

	MaxPriceDistance float64 // limit price distance from market, fraction
	MinStopDistance  float64 // fraction of price
	RewardRiskRatio  float64 // target distance per stop distance, >= 1

	// order type selection
	HighRiskFraction float64 // prefer resting orders above this risk
	LowRiskFraction  float64 // aggressive orders allowed below this risk
	UrgencyThreshold float64
	WideSpreadRatio  float64 // spread/price above this counts as wide
}

// DefaultConfig returns the tuned sizing defaults
func DefaultConfig() Config {
	return Config{
		MinOrderSize:         10.0,
		MaxOrderSize:         250000.0,
		VaRTarget:            0.02,
		VaRFactorMin:         0.25,
		VaRFactorMax:         1.5,
		EntropyFactorMin:     0.5,
		EntropyFactorMax:     1.2,
		CorrelationThreshold: 0.7,
		CorrelationFactorMin: 0.5,
		VolatilityBaseline:   0.02,
		VolatilityFactorMin:  0.3,
		LiquidityFactorMin:   0.4,
		ConfidenceFactorMin:  0.1,
		MaxPriceDistance:     0.05,
		MinStopDistance:      0.005,
		RewardRiskRatio:      1.618,
		HighRiskFraction:     0.03,
		LowRiskFraction:      0.015,
		UrgencyThreshold:     0.7,
		WideSpreadRatio:      0.002,
	}
}

// Gate computes admissible order sizes and validates fully-formed orders
// against hard limits. It consults the breaker's effective level before
// admitting new entries.
type Gate struct {
	config Config
	brk    *breaker.Breaker
	log    *logger.Logger
}

// NewGate creates a sizing gate
func NewGate(config Config, brk *breaker.Breaker, log *logger.Logger) *Gate {
	if config.RewardRiskRatio < 1 {
		config.RewardRiskRatio = 1
	}
	return &Gate{config: config, brk: brk, log: log}
}

// Size computes the admissible order for the signal. It never panics on
// malformed market data: bad inputs degrade to maximal caution. New entries
// are rejected outright at Level2 and above. Each admitted entry counts
// toward the breaker's daily trade cap.
func (g *Gate) Size(signal Signal, metrics RiskMetrics, market MarketData) SizingResult {
	if g.brk != nil && !g.brk.NewEntriesAllowed() {
		return SizingResult{
			Approved:     false,
			RejectReason: fmt.Sprintf("new entries blocked at breaker level %s", g.brk.EffectiveLevel()),
		}
	}

	adjust := g.adjustments(signal, metrics, market)

	base := sanitizeWorst(signal.BaseSize, 0)
	if base < 0 {
		base = 0
	}
	size := clamp(base*adjust.Composite(), g.config.MinOrderSize, g.config.MaxOrderSize)

	result := SizingResult{Approved: true, Size: size, Adjustments: adjust}

	price := market.Price
	if !isUsable(price) {
		// worst case: a size can be reported but no order can be priced
		result.Approved = false
		result.RejectReason = "malformed market data: unusable price"
		return result
	}

	result.Order = g.buildOrder(signal, metrics, market, size)
	if g.brk != nil {
		g.brk.RecordTrade()
	}
	return result
}

// adjustments computes every named factor, each clamped to its documented
// range; malformed inputs land on the cautious end of the range
func (g *Gate) adjustments(signal Signal, metrics RiskMetrics, market MarketData) Adjustments {
	c := g.config
	var a Adjustments

	// VaR factor: shrink as VaR-to-target ratio grows, expand when VaR is
	// comfortably low
	varFrac := sanitizeWorst(metrics.VaRFraction, c.VaRTarget*4)
	if varFrac <= 0 {
		a.VaR = c.VaRFactorMax
	} else {
		a.VaR = clamp(c.VaRTarget/varFrac, c.VaRFactorMin, c.VaRFactorMax)
	}

	// entropy factor: linear interpolation, high disorder shrinks size
	entropy := clamp(sanitizeWorst(metrics.Entropy, 1), 0, 1)
	a.Entropy = c.EntropyFactorMax + (c.EntropyFactorMin-c.EntropyFactorMax)*entropy

	// correlation factor: full size below the threshold, shrinking past it
	corr := clamp(sanitizeWorst(metrics.AvgCorrelation, 1), -1, 1)
	if corr <= c.CorrelationThreshold {
		a.Correlation = 1.0
	} else {
		span := 1 - c.CorrelationThreshold
		t := (corr - c.CorrelationThreshold) / span
		a.Correlation = clamp(1+(c.CorrelationFactorMin-1)*t, c.CorrelationFactorMin, 1)
	}

	// volatility factor: inverse-square-root scaling beyond the baseline
	vol := sanitizeWorst(market.Volatility, 1)
	if vol < 0 {
		vol = 1 // negative volatility is malformed, assume worst
	}
	if vol <= c.VolatilityBaseline {
		a.Volatility = 1.0
	} else {
		a.Volatility = clamp(math.Sqrt(c.VolatilityBaseline/vol), c.VolatilityFactorMin, 1)
	}

	// liquidity factor: linear by liquidity score
	liq := clamp(sanitizeWorst(market.Liquidity, 0), 0, 1)
	a.Liquidity = c.LiquidityFactorMin + (1-c.LiquidityFactorMin)*liq

	// confidence factor straight from the signal
	a.Confidence = clamp(sanitizeWorst(signal.Confidence, c.ConfidenceFactorMin), c.ConfidenceFactorMin, 1)

	return a
}

// buildOrder derives order type, price, stop and target from market state
func (g *Gate) buildOrder(signal Signal, metrics RiskMetrics, market MarketData, size float64) *CandidateOrder {
	c := g.config
	price := market.Price
	spread := sanitizeWorst(market.Spread, price*c.WideSpreadRatio*2)
	if spread < 0 {
		spread = 0
	}

	order := &CandidateOrder{
		Symbol:      signal.Symbol,
		Side:        signal.Side,
		Quantity:    size / price,
		TimeInForce: TIFGoodTillCancel,
	}

	// prefer resting orders whenever risk is elevated, volatility is high or
	// the spread is wide; go aggressive only on urgent, low-risk signals
	riskFrac := sanitizeWorst(metrics.RiskFraction, c.HighRiskFraction*2)
	vol := sanitizeWorst(market.Volatility, 1)
	wideSpread := price > 0 && spread/price > c.WideSpreadRatio
	urgent := clamp(sanitizeWorst(signal.Urgency, 0), 0, 1) >= c.UrgencyThreshold

	if urgent && riskFrac < c.LowRiskFraction && vol < c.VolatilityBaseline*2 && !wideSpread {
		order.Type = OrderTypeMarket
		order.TimeInForce = TIFImmediate
	} else {
		order.Type = OrderTypeLimit
		limit := price - spread/2
		if signal.Side == SideSell {
			limit = price + spread/2
		}
		order.Price = &limit
	}

	stopDistance := math.Max(sanitizeWorst(market.ATR, price*c.MinStopDistance), price*c.MinStopDistance)
	targetDistance := stopDistance * c.RewardRiskRatio
	if signal.Side == SideBuy {
		order.StopLoss = price - stopDistance
		order.TakeProfit = price + targetDistance
	} else {
		order.StopLoss = price + stopDistance
		order.TakeProfit = price - targetDistance
	}
	return order
}

// Validate checks a fully-formed order against hard limits. The order is
// never mutated; callers rebuild on rejection.
func (g *Gate) Validate(order *CandidateOrder, market MarketData) ValidationResult {
	c := g.config

	if order == nil {
		return ValidationResult{Valid: false, Message: "nil order", Code: "ORDER_NIL"}
	}
	if !isUsable(order.Quantity) || order.Quantity <= 0 {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("invalid quantity %.8f for %s", order.Quantity, order.Symbol),
			Code:    "INVALID_QUANTITY",
		}
	}
	if !isUsable(market.Price) || market.Price <= 0 {
		return ValidationResult{Valid: false, Message: "unusable market price", Code: "INVALID_MARKET_PRICE"}
	}

	notional := order.Quantity * market.Price
	if notional < c.MinOrderSize {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("order value %.2f below minimum %.2f", notional, c.MinOrderSize),
			Code:    "ORDER_BELOW_MIN",
		}
	}
	if notional > c.MaxOrderSize {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("order value %.2f above maximum %.2f", notional, c.MaxOrderSize),
			Code:    "ORDER_ABOVE_MAX",
		}
	}

	if order.Type == OrderTypeLimit {
		if order.Price == nil || !isUsable(*order.Price) || *order.Price <= 0 {
			return ValidationResult{Valid: false, Message: "limit order without usable price", Code: "LIMIT_PRICE_MISSING"}
		}
		distance := math.Abs(*order.Price-market.Price) / market.Price
		if distance > c.MaxPriceDistance {
			return ValidationResult{
				Valid:   false,
				Message: fmt.Sprintf("limit price %.2f is %.2f%% from market %.2f, cap %.2f%%", *order.Price, distance*100, market.Price, c.MaxPriceDistance*100),
				Code:    "PRICE_TOO_FAR",
			}
		}
	}

	if order.StopLoss > 0 {
		stopDistance := math.Abs(market.Price-order.StopLoss) / market.Price
		if stopDistance < c.MinStopDistance {
			return ValidationResult{
				Valid:   false,
				Message: fmt.Sprintf("stop distance %.3f%% below minimum %.3f%%", stopDistance*100, c.MinStopDistance*100),
				Code:    "STOP_TOO_TIGHT",
			}
		}
	}

	return ValidationResult{Valid: true}
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

// sanitizeWorst replaces NaN/Inf with the caller's worst-case value
func sanitizeWorst(v, worst float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return worst
	}
	return v
}

func isUsable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
