package portfolio

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/ducminhle1904/risk-guard/internal/exchange"
)

// Position represents a single open position tracked by the store
type Position struct {
	Symbol        string
	Quantity      float64 // signed: positive long, negative short
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnL float64
	Volatility    float64 // per-symbol volatility estimate, fraction
	Leverage      float64
}

// Notional returns the absolute notional value of the position
func (p Position) Notional() float64 {
	return math.Abs(p.Quantity) * p.MarkPrice
}

// Snapshot is the derived, immutable portfolio view published per tick
type Snapshot struct {
	Timestamp       time.Time
	TotalBalance    float64
	AvailableMargin float64
	UsedMargin      float64
	UnrealizedPnL   float64
	TotalNotional   float64
	PositionCount   int
	Positions       []Position
}

// Value returns the portfolio value the risk estimator works against
func (s *Snapshot) Value() float64 {
	return s.TotalBalance + s.UnrealizedPnL
}

// LeverageRatio returns total notional over portfolio value
func (s *Snapshot) LeverageRatio() float64 {
	v := s.Value()
	if v <= 0 {
		return 0
	}
	return s.TotalNotional / v
}

// Store owns the current portfolio state. It is mutated only by Refresh;
// positions are replaced wholesale on each refresh so readers never observe
// a torn update.
type Store struct {
	mu         sync.RWMutex
	exch       exchange.Exchange
	positions  []Position
	account    exchange.AccountInfo
	volatility map[string]float64 // fallback vols by symbol
	defaultVol float64
	lastOK     time.Time
}

// NewStore creates a portfolio store backed by the given exchange collaborator
func NewStore(exch exchange.Exchange, defaultVol float64) *Store {
	if defaultVol <= 0 {
		defaultVol = 0.02
	}
	return &Store{
		exch:       exch,
		volatility: make(map[string]float64),
		defaultVol: defaultVol,
	}
}

// SetVolatility installs a per-symbol volatility estimate used on refresh
func (s *Store) SetVolatility(symbol string, vol float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volatility[symbol] = vol
}

// Refresh pulls positions and account info from the exchange. On any failure
// the previous state is kept unchanged and the error is returned; the caller
// treats it as a failed tick.
func (s *Store) Refresh(ctx context.Context) error {
	raw, err := s.exch.GetPositions(ctx)
	if err != nil {
		return err
	}
	account, err := s.exch.GetAccountInfo(ctx)
	if err != nil {
		return err
	}

	positions := make([]Position, 0, len(raw))
	for _, r := range raw {
		positions = append(positions, Position{
			Symbol:        r.Symbol,
			Quantity:      r.Quantity,
			EntryPrice:    r.EntryPrice,
			MarkPrice:     r.MarkPrice,
			UnrealizedPnL: r.UnrealizedPnL,
			Leverage:      r.Leverage,
			Volatility:    s.volatilityFor(r.Symbol),
		})
	}

	s.mu.Lock()
	s.positions = positions
	s.account = *account
	s.lastOK = time.Now()
	s.mu.Unlock()
	return nil
}

func (s *Store) volatilityFor(symbol string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.volatility[symbol]; ok && v > 0 {
		return v
	}
	return s.defaultVol
}

// Snapshot derives the current portfolio snapshot under the read lock
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Timestamp:       time.Now(),
		TotalBalance:    s.account.Balance,
		AvailableMargin: s.account.AvailableMargin,
		UsedMargin:      s.account.UsedMargin,
		PositionCount:   len(s.positions),
		Positions:       make([]Position, len(s.positions)),
	}
	copy(snap.Positions, s.positions)

	for _, p := range s.positions {
		snap.UnrealizedPnL += p.UnrealizedPnL
		snap.TotalNotional += p.Notional()
	}
	return snap
}

// LastRefresh reports when the store last refreshed successfully
func (s *Store) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastOK
}

// ExchangeName names the backing exchange
func (s *Store) ExchangeName() string {
	return s.exch.GetName()
}
