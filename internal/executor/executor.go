package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/ducminhle1904/risk-guard/internal/breaker"
	guarderrors "github.com/ducminhle1904/risk-guard/internal/errors"
	"github.com/ducminhle1904/risk-guard/internal/exchange"
	"github.com/ducminhle1904/risk-guard/internal/logger"
	"github.com/ducminhle1904/risk-guard/internal/notifications"
	"github.com/ducminhle1904/risk-guard/internal/portfolio"
	"github.com/ducminhle1904/risk-guard/internal/safety"
)

// Config holds the mitigation tunables
type Config struct {
	ReductionL1   float64 // position reduction fraction at Level1
	ReductionL2   float64
	StopTighten   float64 // stop distance as a fraction of mark price
	CallTimeout   time.Duration
	RatePerSecond int
	RateBurst     int
}

// DefaultConfig returns the tuned executor defaults
func DefaultConfig() Config {
	return Config{
		ReductionL1:   0.25,
		ReductionL2:   0.50,
		StopTighten:   0.01,
		CallTimeout:   3 * time.Second,
		RatePerSecond: 5,
		RateBurst:     10,
	}
}

// ActionResult reports one mitigation attempt against the exchange
type ActionResult struct {
	Action  string
	Target  string // symbol, or "*" for book-wide actions
	Success bool
	Err     error
}

// Executor performs the prescribed mitigation for a breaker transition. All
// exchange side effects of the risk loop are confined to this component;
// every call carries a timeout and failures are collected per position, never
// aborting the remaining calls.
type Executor struct {
	exch     exchange.Exchange
	brk      *breaker.Breaker
	log      *logger.Logger
	notifier notifications.Notifier
	limiter  *safety.RateLimiter
	stats    *guarderrors.Stats
	config   Config
}

// New creates an executor bound to the exchange collaborator
func New(exch exchange.Exchange, brk *breaker.Breaker, log *logger.Logger, notifier notifications.Notifier, stats *guarderrors.Stats, config Config) *Executor {
	if config.CallTimeout <= 0 {
		config.CallTimeout = 3 * time.Second
	}
	return &Executor{
		exch:     exch,
		brk:      brk,
		log:      log,
		notifier: notifier,
		limiter:  safety.NewRateLimiter("mitigation", config.RateBurst, config.RatePerSecond),
		stats:    stats,
		config:   config,
	}
}

// Apply runs the mitigation prescribed for the transition's level, once per
// transition. It returns every attempted action with its outcome.
func (e *Executor) Apply(ctx context.Context, tr breaker.Transition, positions []portfolio.Position) []ActionResult {
	var results []ActionResult

	switch tr.Level {
	case breaker.Level1Warning:
		results = e.applyLevel1(ctx, positions)
		e.notify("warning", fmt.Sprintf("Risk warning: %s. Positions reduced by %.0f%%, stops tightened.", tr.Reason, e.config.ReductionL1*100))
	case breaker.Level2Caution:
		results = e.applyLevel2(ctx, positions)
		e.notify("warning", fmt.Sprintf("Risk caution: %s. Positions reduced by %.0f%%, resting orders cancelled, new entries disabled.", tr.Reason, e.config.ReductionL2*100))
	case breaker.Level3Emergency:
		results = e.applyLevel3(ctx, positions)
		e.notify("error", fmt.Sprintf("EMERGENCY: %s. All positions flattened, trading halted.", tr.Reason))
	default:
		return nil
	}

	for _, r := range results {
		detail := ""
		if r.Err != nil {
			detail = r.Err.Error()
		}
		e.brk.RecordAction(breaker.ActionRecord{
			Timestamp: time.Now(),
			Level:     tr.Level,
			Action:    r.Action,
			Target:    r.Target,
			Success:   r.Success,
			Detail:    detail,
		})
	}
	e.log.LogBreakerTrip(tr.Level.String(), tr.Reason, tr.Observed, len(results))
	return results
}

// applyLevel1 reduces every position by the configured fraction and tightens
// stop distances around the current mark price
func (e *Executor) applyLevel1(ctx context.Context, positions []portfolio.Position) []ActionResult {
	results := e.reduceAll(ctx, positions, e.config.ReductionL1)
	for _, pos := range positions {
		pos := pos
		stop := pos.MarkPrice * (1 - e.config.StopTighten)
		if pos.Quantity < 0 {
			stop = pos.MarkPrice * (1 + e.config.StopTighten)
		}
		err := e.call(ctx, "tighten_stop", func(cctx context.Context) error {
			return e.exch.UpdateStopLoss(cctx, pos.Symbol, stop)
		})
		results = append(results, ActionResult{Action: "tighten_stop", Target: pos.Symbol, Success: err == nil, Err: err})
	}
	return results
}

// applyLevel2 reduces harder and cancels resting orders; the breaker has
// already disabled new entries
func (e *Executor) applyLevel2(ctx context.Context, positions []portfolio.Position) []ActionResult {
	results := e.reduceAll(ctx, positions, e.config.ReductionL2)
	err := e.call(ctx, "cancel_orders", e.exch.CancelAllOrders)
	results = append(results, ActionResult{Action: "cancel_orders", Target: "*", Success: err == nil, Err: err})
	return results
}

// applyLevel3 flattens all positions: best-effort per-position close first,
// bulk close fallback for anything that failed. Trading is halted regardless
// of flatten success; halting is independent of confirming zero exposure.
func (e *Executor) applyLevel3(ctx context.Context, positions []portfolio.Position) []ActionResult {
	e.brk.HaltTrading()

	var results []ActionResult
	anyFailed := false
	for _, pos := range positions {
		sym := pos.Symbol
		err := e.call(ctx, "close_position", func(cctx context.Context) error {
			return e.exch.ClosePosition(cctx, sym)
		})
		if err != nil {
			anyFailed = true
		}
		results = append(results, ActionResult{Action: "close_position", Target: sym, Success: err == nil, Err: err})
	}

	if anyFailed || len(positions) == 0 {
		err := e.call(ctx, "close_all", e.exch.CloseAllPositions)
		results = append(results, ActionResult{Action: "close_all", Target: "*", Success: err == nil, Err: err})
		if err != nil {
			// flatten failure must never disappear into the generic error path
			flattenErr := guarderrors.NewFlattenError("executor", err)
			e.stats.Record(flattenErr)
			e.brk.RecordError("executor", flattenErr)
			e.log.Error("EMERGENCY FLATTEN FAILED: %v", flattenErr)
			e.notify("error", "EMERGENCY FLATTEN FAILED: open exposure may remain, operator attention required")
		}
	}

	err := e.call(ctx, "cancel_orders", e.exch.CancelAllOrders)
	results = append(results, ActionResult{Action: "cancel_orders", Target: "*", Success: err == nil, Err: err})
	return results
}

// reduceAll applies the reduction fraction to every position, collecting
// errors instead of aborting
func (e *Executor) reduceAll(ctx context.Context, positions []portfolio.Position, fraction float64) []ActionResult {
	results := make([]ActionResult, 0, len(positions))
	for _, pos := range positions {
		sym := pos.Symbol
		err := e.call(ctx, "reduce_position", func(cctx context.Context) error {
			return e.exch.ReducePosition(cctx, sym, fraction)
		})
		results = append(results, ActionResult{Action: "reduce_position", Target: sym, Success: err == nil, Err: err})
	}
	return results
}

// call wraps one exchange operation with the rate limiter, a per-call timeout
// and error accounting
func (e *Executor) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return guarderrors.Wrap(err, guarderrors.ErrorCategoryTimeout, "executor", op)
	}
	cctx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	if err := fn(cctx); err != nil {
		ge := guarderrors.Categorize(err, "executor", op)
		e.stats.Record(ge)
		e.brk.RecordError("executor", ge)
		e.log.LogError("executor "+op, ge)
		return ge
	}
	e.log.Action("%s completed", op)
	return nil
}

func (e *Executor) notify(level, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.SendAlert(level, message); err != nil {
		e.log.LogError("notifier", err)
	}
}
