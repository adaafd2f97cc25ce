package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ducminhle1904/risk-guard/internal/breaker"
	"github.com/ducminhle1904/risk-guard/internal/estimator"
)

var (
	// Risk metrics
	riskScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "risk_guard_risk_score",
			Help: "Current portfolio risk score in quote currency",
		},
	)

	riskFraction = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "risk_guard_risk_fraction",
			Help: "Current risk score as a fraction of portfolio value",
		},
	)

	dailyMaxRisk = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "risk_guard_daily_max_risk",
			Help: "Rolling daily maximum of the risk score",
		},
	)

	// Breaker metrics
	effectiveLevel = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "risk_guard_breaker_level",
			Help: "Effective circuit breaker level (0=normal .. 3=emergency)",
		},
	)

	tripsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_guard_trips_total",
			Help: "Total number of breaker trips",
		},
		[]string{"level"},
	)

	suppressionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_guard_suppressions_total",
			Help: "Trigger conditions suppressed by a cooling period",
		},
		[]string{"level"},
	)

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_guard_actions_total",
			Help: "Mitigation actions dispatched per trip",
		},
		[]string{"level", "outcome"},
	)

	// Loop metrics
	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "risk_guard_tick_duration_seconds",
			Help:    "Duration of full evaluation ticks",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_guard_errors_total",
			Help: "Total number of errors by category",
		},
		[]string{"category"},
	)
)

func init() {
	prometheus.MustRegister(riskScore)
	prometheus.MustRegister(riskFraction)
	prometheus.MustRegister(dailyMaxRisk)
	prometheus.MustRegister(effectiveLevel)
	prometheus.MustRegister(tripsTotal)
	prometheus.MustRegister(suppressionsTotal)
	prometheus.MustRegister(actionsTotal)
	prometheus.MustRegister(tickDuration)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler handles the Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// Observer bridges loop telemetry into the Prometheus metrics and, when one
// is attached, the health checker
type Observer struct {
	health *HealthChecker
}

// NewObserver creates the metrics observer. A nil health checker is allowed.
func NewObserver(health *HealthChecker) *Observer {
	return &Observer{health: health}
}

// TickCompleted records a finished evaluation tick
func (o *Observer) TickCompleted(score estimator.Score, effective breaker.Level, duration time.Duration) {
	riskScore.Set(score.Value)
	riskFraction.Set(score.Fraction)
	effectiveLevel.Set(float64(effective))
	tickDuration.Observe(duration.Seconds())
	if o.health != nil {
		o.health.RecordTick()
	}
}

// TransitionApplied records a trip and its mitigation outcomes
func (o *Observer) TransitionApplied(tr breaker.Transition, actions, failed int) {
	tripsTotal.WithLabelValues(tr.Level.String()).Inc()
	if ok := actions - failed; ok > 0 {
		actionsTotal.WithLabelValues(tr.Level.String(), "success").Add(float64(ok))
	}
	if failed > 0 {
		actionsTotal.WithLabelValues(tr.Level.String(), "failure").Add(float64(failed))
	}
}

// ConditionSuppressed records a condition swallowed by a cooling window
func (o *Observer) ConditionSuppressed(level breaker.Level) {
	suppressionsTotal.WithLabelValues(level.String()).Inc()
}

// ErrorRecorded records an error by category
func (o *Observer) ErrorRecorded(category string) {
	errorsTotal.WithLabelValues(category).Inc()
	if o.health != nil {
		o.health.RecordError(category)
	}
}

// UpdateDailyMaxRisk updates the rolling daily maximum gauge
func UpdateDailyMaxRisk(value float64) {
	dailyMaxRisk.Set(value)
}
