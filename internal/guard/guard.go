package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ducminhle1904/risk-guard/internal/breaker"
	"github.com/ducminhle1904/risk-guard/internal/config"
	guarderrors "github.com/ducminhle1904/risk-guard/internal/errors"
	"github.com/ducminhle1904/risk-guard/internal/estimator"
	"github.com/ducminhle1904/risk-guard/internal/exchange"
	"github.com/ducminhle1904/risk-guard/internal/executor"
	"github.com/ducminhle1904/risk-guard/internal/logger"
	"github.com/ducminhle1904/risk-guard/internal/notifications"
	"github.com/ducminhle1904/risk-guard/internal/portfolio"
)

// Observer receives loop telemetry. The prometheus exporter implements it;
// tests use NopObserver.
type Observer interface {
	TickCompleted(score estimator.Score, effective breaker.Level, duration time.Duration)
	TransitionApplied(tr breaker.Transition, actions, failed int)
	ConditionSuppressed(level breaker.Level)
	ErrorRecorded(category string)
}

// NopObserver discards all telemetry
type NopObserver struct{}

func (NopObserver) TickCompleted(estimator.Score, breaker.Level, time.Duration) {}
func (NopObserver) TransitionApplied(breaker.Transition, int, int)              {}
func (NopObserver) ConditionSuppressed(breaker.Level)                           {}
func (NopObserver) ErrorRecorded(string)                                        {}

// Status is the loop-level snapshot exposed to the admin surface and the
// console renderer
type Status struct {
	Timestamp      time.Time         `json:"timestamp"`
	PortfolioValue float64           `json:"portfolio_value"`
	LeverageRatio  float64           `json:"leverage_ratio"`
	Positions      int               `json:"positions"`
	RiskScore      float64           `json:"risk_score"`
	RiskFraction   float64           `json:"risk_fraction"`
	DailyMaxRisk   float64           `json:"daily_max_risk"`
	Factors        estimator.Factors `json:"factors"`
	LastRefresh    time.Time         `json:"last_refresh"`
	FailedTicks    int               `json:"failed_ticks"`
	Breaker        breaker.Status    `json:"breaker"`
}

// Guard runs the periodic risk-control loop: refresh the portfolio snapshot,
// estimate risk, scan breaker conditions and hand transitions to the
// executor. Manual control and status reporting go through the same object.
type Guard struct {
	config   *config.Config
	store    *portfolio.Store
	est      *estimator.Estimator
	brk      *breaker.Breaker
	exec     *executor.Executor
	signals  exchange.SignalSource
	corr     estimator.CorrelationMatrix
	log      *logger.Logger
	notifier notifications.Notifier
	stats    *guarderrors.Stats
	observer Observer

	mu          sync.Mutex
	lastScore   estimator.Score
	failedTicks int
	resetDay    string // UTC day of the last daily reset, "2006-01-02"
}

// New wires the loop together. A nil observer or notifier degrades to no-op.
func New(
	cfg *config.Config,
	store *portfolio.Store,
	est *estimator.Estimator,
	brk *breaker.Breaker,
	exec *executor.Executor,
	signals exchange.SignalSource,
	log *logger.Logger,
	notifier notifications.Notifier,
	stats *guarderrors.Stats,
	observer Observer,
) *Guard {
	if notifier == nil {
		notifier = notifications.NopNotifier{}
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Guard{
		config:   cfg,
		store:    store,
		est:      est,
		brk:      brk,
		exec:     exec,
		signals:  signals,
		corr:     estimator.CorrelationMatrix{},
		log:      log,
		notifier: notifier,
		stats:    stats,
		observer: observer,
	}
}

// SetCorrelations replaces the pairwise correlation matrix used by the
// estimator
func (g *Guard) SetCorrelations(corr estimator.CorrelationMatrix) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.corr = corr
}

// Run drives the three tick cadences and the daily reset until the context is
// cancelled. The main tick does the full scan; the fine-cadence tick only
// watches for rapid loss; the slow tick refreshes exogenous factors.
func (g *Guard) Run(ctx context.Context) error {
	g.log.Status("risk guard loop starting: monitor=%s rapid=%s exogenous=%s",
		g.config.Loop.MonitorInterval, g.config.Loop.RapidLossInterval, g.config.Loop.ExogenousInterval)

	g.mu.Lock()
	g.resetDay = time.Now().UTC().Format("2006-01-02")
	g.mu.Unlock()

	g.refreshFactors(ctx)
	g.Tick(ctx)

	mainTicker := time.NewTicker(g.config.Loop.MonitorInterval)
	rapidTicker := time.NewTicker(g.config.Loop.RapidLossInterval)
	exoTicker := time.NewTicker(g.config.Loop.ExogenousInterval)
	defer mainTicker.Stop()
	defer rapidTicker.Stop()
	defer exoTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.log.Status("risk guard loop stopping: %v", ctx.Err())
			return ctx.Err()
		case now := <-mainTicker.C:
			g.maybeDailyReset(now.UTC())
			g.Tick(ctx)
		case <-rapidTicker.C:
			g.rapidTick(ctx)
		case <-exoTicker.C:
			g.refreshFactors(ctx)
		}
	}
}

// Tick runs one full evaluation: refresh, observe, estimate, scan, evaluate,
// act. A failed exchange refresh counts as a failed tick and skips the rest;
// the previous snapshot is never reused for trigger decisions.
func (g *Guard) Tick(ctx context.Context) {
	start := time.Now()

	rctx, cancel := context.WithTimeout(ctx, g.config.Loop.ExchangeTimeout)
	err := g.store.Refresh(rctx)
	cancel()
	if err != nil {
		g.recordFailure("portfolio", "refresh", err)
		return
	}

	snap := g.store.Snapshot()
	now := time.Now()
	g.brk.ObserveValue(now, snap.Value())

	score := g.est.Estimate(snap, g.correlations())

	conditions := g.brk.ScanConditions(snap)
	transitions := g.brk.Evaluate(now, conditions)
	g.countSuppressions(conditions, transitions)
	g.applyTransitions(ctx, transitions, snap)

	g.mu.Lock()
	g.lastScore = score
	g.mu.Unlock()

	g.observer.TickCompleted(score, g.brk.EffectiveLevelAt(now), time.Since(start))
}

// rapidTick refreshes the snapshot at fine cadence and scans only the
// rolling-loss window
func (g *Guard) rapidTick(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, g.config.Loop.ExchangeTimeout)
	err := g.store.Refresh(rctx)
	cancel()
	if err != nil {
		g.recordFailure("portfolio", "rapid_refresh", err)
		return
	}

	snap := g.store.Snapshot()
	now := time.Now()
	g.brk.ObserveValue(now, snap.Value())

	cond := g.brk.RapidLossCondition()
	if cond == nil {
		return
	}
	transitions := g.brk.Evaluate(now, []breaker.Condition{*cond})
	g.countSuppressions([]breaker.Condition{*cond}, transitions)
	g.applyTransitions(ctx, transitions, snap)
}

// refreshFactors pulls the exogenous signal factors. On failure the previous
// factors stay in effect; the estimator already biases unknown factors toward
// caution.
func (g *Guard) refreshFactors(ctx context.Context) {
	if g.signals == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, g.config.Loop.ExchangeTimeout)
	consciousness, entropy, coherence, err := g.signals.GetFactors(rctx)
	cancel()
	if err != nil {
		g.recordFailure("signals", "get_factors", err)
		return
	}
	g.est.UpdateFactors(consciousness, entropy, coherence)
}

func (g *Guard) applyTransitions(ctx context.Context, transitions []breaker.Transition, snap *portfolio.Snapshot) {
	for _, tr := range transitions {
		results := g.exec.Apply(ctx, tr, snap.Positions)
		failed := 0
		for _, r := range results {
			if !r.Success {
				failed++
			}
		}
		g.observer.TransitionApplied(tr, len(results), failed)
	}
}

// countSuppressions reports conditions that produced no transition because
// their level was inside its cooling window
func (g *Guard) countSuppressions(conditions []breaker.Condition, transitions []breaker.Transition) {
	tripped := make(map[breaker.Level]bool, len(transitions))
	for _, tr := range transitions {
		tripped[tr.Level] = true
	}
	for _, c := range conditions {
		if c.Level != breaker.LevelNormal && !tripped[c.Level] {
			g.observer.ConditionSuppressed(c.Level)
		}
	}
}

// maybeDailyReset fires once per UTC day boundary. It clears the daily
// counters and the estimator's rolling daily max. Emergency mode survives the
// boundary.
func (g *Guard) maybeDailyReset(nowUTC time.Time) {
	day := nowUTC.Format("2006-01-02")

	g.mu.Lock()
	if day == g.resetDay {
		g.mu.Unlock()
		return
	}
	g.resetDay = day
	g.mu.Unlock()

	snap := g.store.Snapshot()
	g.brk.DailyReset(nowUTC, snap.Value())
	g.est.ResetDaily(nowUTC)
	g.log.Status("daily reset at %s UTC, baseline %.2f", day, snap.Value())
}

func (g *Guard) recordFailure(component, operation string, err error) {
	gerr := guarderrors.Categorize(err, component, operation)
	if g.stats != nil {
		g.stats.Record(gerr)
	}
	g.brk.RecordError(component, err)
	g.log.LogError(component+"."+operation, gerr)
	g.observer.ErrorRecorded(string(gerr.Category))

	g.mu.Lock()
	g.failedTicks++
	g.mu.Unlock()
}

func (g *Guard) correlations() estimator.CorrelationMatrix {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.corr
}

// Status builds the loop-level snapshot
func (g *Guard) Status() Status {
	snap := g.store.Snapshot()

	g.mu.Lock()
	score := g.lastScore
	failed := g.failedTicks
	g.mu.Unlock()

	return Status{
		Timestamp:      time.Now(),
		PortfolioValue: snap.Value(),
		LeverageRatio:  snap.LeverageRatio(),
		Positions:      len(snap.Positions),
		RiskScore:      score.Value,
		RiskFraction:   score.Fraction,
		DailyMaxRisk:   g.est.DailyMax(),
		Factors:        g.est.CurrentFactors(),
		LastRefresh:    g.store.LastRefresh(),
		FailedTicks:    failed,
		Breaker:        g.brk.Status(),
	}
}

// StatusPayload serializes the status snapshot for the admin surface
func (g *Guard) StatusPayload() ([]byte, error) {
	return json.MarshalIndent(g.Status(), "", "  ")
}

// TriggerLevel trips a breaker level by name from the admin surface. A
// successful trip runs the level's mitigation actions against the current
// snapshot.
func (g *Guard) TriggerLevel(levelName, reason string) error {
	level, err := parseLevel(levelName)
	if err != nil {
		return err
	}
	tr, err := g.brk.ManualTrigger(level, reason)
	if err != nil {
		return err
	}
	g.log.Action("manual trigger %s: %s", level, reason)

	snap := g.store.Snapshot()
	g.applyTransitions(context.Background(), []breaker.Transition{*tr}, snap)
	return nil
}

// Reset clears the breaker triggers and emergency mode. Trading stays stopped
// until Resume.
func (g *Guard) Reset() {
	g.brk.ManualReset()
	g.log.Action("manual breaker reset")
	if err := g.notifier.SendAlert("INFO", "breaker manually reset"); err != nil {
		g.log.LogError("notify.reset", err)
	}
}

// Resume re-enables order flow; refused while emergency mode is latched
func (g *Guard) Resume() error {
	if err := g.brk.ResumeTrading(); err != nil {
		return err
	}
	g.log.Action("trading resumed")
	return nil
}

func parseLevel(name string) (breaker.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "LEVEL1", "LEVEL1_WARNING", "1":
		return breaker.Level1Warning, nil
	case "LEVEL2", "LEVEL2_CAUTION", "2":
		return breaker.Level2Caution, nil
	case "LEVEL3", "LEVEL3_EMERGENCY", "3":
		return breaker.Level3Emergency, nil
	default:
		return breaker.LevelNormal, fmt.Errorf("unknown breaker level %q", name)
	}
}
