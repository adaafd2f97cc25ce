package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries every tunable of the risk-control loop. All thresholds and
// factor bounds are configuration, not constants; the defaults below match
// the values the loop was tuned with.
type Config struct {
	Environment string
	LogLevel    string
	Account     string

	Loop struct {
		MonitorInterval   time.Duration // main tick
		RapidLossInterval time.Duration // rapid-loss tick
		ExogenousInterval time.Duration // exogenous-factor tick
		ExchangeTimeout   time.Duration // per exchange call
	}

	Estimator struct {
		ConfidenceLevel    float64 // one-tailed, e.g. 0.95
		MinVolatility      float64 // floor, fraction
		EntropyFactorMin   float64
		EntropyFactorMax   float64
		CoherenceFactorMin float64
		CoherenceFactorMax float64
	}

	Breaker struct {
		LossThresholdL1     float64 // portfolio loss fraction
		LossThresholdL2     float64
		LossThresholdL3     float64
		MaxDrawdown         float64 // hard cap; Level2 at 70% of it
		MaxLeverage         float64
		MaxDailyTrades      int
		MaxPositionNotional float64 // fraction of portfolio value
		RapidLossThreshold  float64 // loss fraction inside the window
		RapidLossWindow     time.Duration
		CoolingL1           time.Duration
		CoolingL2           time.Duration
		CoolingL3           time.Duration
		EventCapacity       int
		ActionCapacity      int
	}

	Executor struct {
		ReductionL1   float64 // position reduction fraction at Level1
		ReductionL2   float64
		StopTighten   float64 // stop distance as fraction of mark price at Level1
		RatePerSecond int     // mitigation call budget
		RateBurst     int
	}

	Sizing struct {
		MinOrderSize         float64 // quote units
		MaxOrderSize         float64
		VaRTarget            float64 // VaR-to-value ratio considered comfortable
		EntropyFactorMin     float64
		EntropyFactorMax     float64
		CorrelationThreshold float64
		CorrelationFactorMin float64
		VolatilityBaseline   float64
		VolatilityFactorMin  float64
		LiquidityFactorMin   float64
		MaxPriceDistance     float64 // limit price distance from market, fraction
		MinStopDistance      float64 // fraction of price
		RewardRiskRatio      float64 // target distance per stop distance
	}

	Monitoring struct {
		PrometheusPort int
		HealthPort     int
	}

	Notifications struct {
		TelegramToken  string
		TelegramChatID string
	}

	Reporting struct {
		OutputDir string
	}
}

// Load builds the configuration from environment variables with defaults
func Load() *Config {
	cfg := &Config{
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Account:     getEnv("ACCOUNT_LABEL", "main"),
	}

	cfg.Loop.MonitorInterval = getEnvDuration("MONITOR_INTERVAL", 5*time.Second)
	cfg.Loop.RapidLossInterval = getEnvDuration("RAPID_LOSS_INTERVAL", 1*time.Second)
	cfg.Loop.ExogenousInterval = getEnvDuration("EXOGENOUS_INTERVAL", 10*time.Second)
	cfg.Loop.ExchangeTimeout = getEnvDuration("EXCHANGE_TIMEOUT", 3*time.Second)

	cfg.Estimator.ConfidenceLevel = getEnvFloat("RISK_CONFIDENCE_LEVEL", 0.95)
	cfg.Estimator.MinVolatility = getEnvFloat("RISK_MIN_VOLATILITY", 0.001)
	cfg.Estimator.EntropyFactorMin = getEnvFloat("RISK_ENTROPY_FACTOR_MIN", 0.8)
	cfg.Estimator.EntropyFactorMax = getEnvFloat("RISK_ENTROPY_FACTOR_MAX", 1.5)
	cfg.Estimator.CoherenceFactorMin = getEnvFloat("RISK_COHERENCE_FACTOR_MIN", 0.6)
	cfg.Estimator.CoherenceFactorMax = getEnvFloat("RISK_COHERENCE_FACTOR_MAX", 1.0)

	cfg.Breaker.LossThresholdL1 = getEnvFloat("BREAKER_LOSS_L1", 0.015)
	cfg.Breaker.LossThresholdL2 = getEnvFloat("BREAKER_LOSS_L2", 0.025)
	cfg.Breaker.LossThresholdL3 = getEnvFloat("BREAKER_LOSS_L3", 0.04)
	cfg.Breaker.MaxDrawdown = getEnvFloat("BREAKER_MAX_DRAWDOWN", 0.10)
	cfg.Breaker.MaxLeverage = getEnvFloat("BREAKER_MAX_LEVERAGE", 10.0)
	cfg.Breaker.MaxDailyTrades = getEnvInt("BREAKER_MAX_DAILY_TRADES", 50)
	cfg.Breaker.MaxPositionNotional = getEnvFloat("BREAKER_MAX_POSITION_NOTIONAL", 0.20)
	cfg.Breaker.RapidLossThreshold = getEnvFloat("BREAKER_RAPID_LOSS", 0.02)
	cfg.Breaker.RapidLossWindow = getEnvDuration("BREAKER_RAPID_LOSS_WINDOW", 2*time.Minute)
	cfg.Breaker.CoolingL1 = getEnvDuration("BREAKER_COOLING_L1", 15*time.Minute)
	cfg.Breaker.CoolingL2 = getEnvDuration("BREAKER_COOLING_L2", 30*time.Minute)
	cfg.Breaker.CoolingL3 = getEnvDuration("BREAKER_COOLING_L3", 60*time.Minute)
	cfg.Breaker.EventCapacity = getEnvInt("BREAKER_EVENT_CAPACITY", 200)
	cfg.Breaker.ActionCapacity = getEnvInt("BREAKER_ACTION_CAPACITY", 100)

	cfg.Executor.ReductionL1 = getEnvFloat("EXECUTOR_REDUCTION_L1", 0.25)
	cfg.Executor.ReductionL2 = getEnvFloat("EXECUTOR_REDUCTION_L2", 0.50)
	cfg.Executor.StopTighten = getEnvFloat("EXECUTOR_STOP_TIGHTEN", 0.01)
	cfg.Executor.RatePerSecond = getEnvInt("EXECUTOR_RATE_PER_SECOND", 5)
	cfg.Executor.RateBurst = getEnvInt("EXECUTOR_RATE_BURST", 10)

	cfg.Sizing.MinOrderSize = getEnvFloat("SIZING_MIN_ORDER", 10.0)
	cfg.Sizing.MaxOrderSize = getEnvFloat("SIZING_MAX_ORDER", 250000.0)
	cfg.Sizing.VaRTarget = getEnvFloat("SIZING_VAR_TARGET", 0.02)
	cfg.Sizing.EntropyFactorMin = getEnvFloat("SIZING_ENTROPY_FACTOR_MIN", 0.5)
	cfg.Sizing.EntropyFactorMax = getEnvFloat("SIZING_ENTROPY_FACTOR_MAX", 1.2)
	cfg.Sizing.CorrelationThreshold = getEnvFloat("SIZING_CORRELATION_THRESHOLD", 0.7)
	cfg.Sizing.CorrelationFactorMin = getEnvFloat("SIZING_CORRELATION_FACTOR_MIN", 0.5)
	cfg.Sizing.VolatilityBaseline = getEnvFloat("SIZING_VOLATILITY_BASELINE", 0.02)
	cfg.Sizing.VolatilityFactorMin = getEnvFloat("SIZING_VOLATILITY_FACTOR_MIN", 0.3)
	cfg.Sizing.LiquidityFactorMin = getEnvFloat("SIZING_LIQUIDITY_FACTOR_MIN", 0.4)
	cfg.Sizing.MaxPriceDistance = getEnvFloat("SIZING_MAX_PRICE_DISTANCE", 0.05)
	cfg.Sizing.MinStopDistance = getEnvFloat("SIZING_MIN_STOP_DISTANCE", 0.005)
	cfg.Sizing.RewardRiskRatio = getEnvFloat("SIZING_REWARD_RISK_RATIO", 1.618)

	cfg.Monitoring.PrometheusPort = getEnvInt("PROMETHEUS_PORT", 9090)
	cfg.Monitoring.HealthPort = getEnvInt("HEALTH_PORT", 8081)

	cfg.Notifications.TelegramToken = getEnv("TELEGRAM_TOKEN", "")
	cfg.Notifications.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", "")

	cfg.Reporting.OutputDir = getEnv("REPORT_OUTPUT_DIR", "results")

	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
