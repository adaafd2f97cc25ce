package exchange

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// PaperExchange is an in-memory exchange used by tests and the demo binary.
// It applies mitigation actions to its own position book so the risk loop
// sees the effect of its decisions on the next refresh.
type PaperExchange struct {
	mu        sync.Mutex
	name      string
	balance   float64
	positions map[string]PositionInfo

	// Failure injection: calls listed here return an error once, then succeed.
	failOnce map[string]error

	openOrders int
}

// NewPaperExchange creates a paper exchange seeded with the given balance
func NewPaperExchange(balance float64) *PaperExchange {
	return &PaperExchange{
		name:      "paper",
		balance:   balance,
		positions: make(map[string]PositionInfo),
		failOnce:  make(map[string]error),
	}
}

func (p *PaperExchange) GetName() string { return p.name }

// SetPosition installs or replaces a position in the book
func (p *PaperExchange) SetPosition(pos PositionInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions[pos.Symbol] = pos
}

// SetOpenOrders sets the count of resting orders (only tracked, not modeled)
func (p *PaperExchange) SetOpenOrders(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openOrders = n
}

// OpenOrders returns the count of resting orders
func (p *PaperExchange) OpenOrders() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openOrders
}

// FailNext makes the named operation ("ClosePosition", "GetPositions", ...)
// fail once with the given error
func (p *PaperExchange) FailNext(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failOnce[op] = err
}

func (p *PaperExchange) takeFailure(op string) error {
	if err, ok := p.failOnce[op]; ok {
		delete(p.failOnce, op)
		return err
	}
	return nil
}

func (p *PaperExchange) GetPositions(ctx context.Context) ([]PositionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure("GetPositions"); err != nil {
		return nil, err
	}
	out := make([]PositionInfo, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	return out, nil
}

func (p *PaperExchange) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure("GetAccountInfo"); err != nil {
		return nil, err
	}
	var pnl, used float64
	for _, pos := range p.positions {
		pnl += pos.UnrealizedPnL
		lev := pos.Leverage
		if lev <= 0 {
			lev = 1
		}
		used += math.Abs(pos.Quantity) * pos.MarkPrice / lev
	}
	return &AccountInfo{
		Balance:         p.balance,
		AvailableMargin: p.balance - used,
		UsedMargin:      used,
		UnrealizedPnL:   pnl,
	}, nil
}

func (p *PaperExchange) ClosePosition(ctx context.Context, symbol string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure("ClosePosition"); err != nil {
		return err
	}
	pos, ok := p.positions[symbol]
	if !ok {
		return fmt.Errorf("no open position for %s", symbol)
	}
	p.balance += pos.UnrealizedPnL
	delete(p.positions, symbol)
	return nil
}

func (p *PaperExchange) CloseAllPositions(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure("CloseAllPositions"); err != nil {
		return err
	}
	for sym, pos := range p.positions {
		p.balance += pos.UnrealizedPnL
		delete(p.positions, sym)
	}
	return nil
}

func (p *PaperExchange) ReducePosition(ctx context.Context, symbol string, fraction float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if fraction <= 0 || fraction > 1 {
		return fmt.Errorf("invalid reduce fraction %.4f for %s", fraction, symbol)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure("ReducePosition"); err != nil {
		return err
	}
	pos, ok := p.positions[symbol]
	if !ok {
		return fmt.Errorf("no open position for %s", symbol)
	}
	p.balance += pos.UnrealizedPnL * fraction
	pos.Quantity *= 1 - fraction
	pos.UnrealizedPnL *= 1 - fraction
	p.positions[symbol] = pos
	return nil
}

func (p *PaperExchange) CancelAllOrders(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure("CancelAllOrders"); err != nil {
		return err
	}
	p.openOrders = 0
	return nil
}

func (p *PaperExchange) UpdateStopLoss(ctx context.Context, symbol string, stopPrice float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure("UpdateStopLoss"); err != nil {
		return err
	}
	if _, ok := p.positions[symbol]; !ok {
		return fmt.Errorf("no open position for %s", symbol)
	}
	return nil
}

// StaticSignalSource returns fixed exogenous factors. Useful for tests and
// for running the loop without an external signal service.
type StaticSignalSource struct {
	Consciousness float64
	Entropy       float64
	Coherence     float64
}

// NewStaticSignalSource creates a signal source with fixed factors
func NewStaticSignalSource(consciousness, entropy, coherence float64) *StaticSignalSource {
	return &StaticSignalSource{Consciousness: consciousness, Entropy: entropy, Coherence: coherence}
}

func (s *StaticSignalSource) GetFactors(ctx context.Context) (float64, float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, 0, err
	}
	return s.Consciousness, s.Entropy, s.Coherence, nil
}
