package exchange

import (
	"context"
)

// PositionInfo represents an open position as reported by the exchange
type PositionInfo struct {
	Symbol        string
	Quantity      float64 // signed: positive long, negative short
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnL float64
	Leverage      float64
}

// AccountInfo represents the account state as reported by the exchange
type AccountInfo struct {
	Balance         float64
	AvailableMargin float64
	UsedMargin      float64
	UnrealizedPnL   float64
}

// Exchange is the collaborator contract consumed by the risk-control loop.
// Implementations live outside the core; every call may fail and failures
// are reported per call, never as a process-ending fault.
type Exchange interface {
	GetName() string

	// Account and position feed
	GetPositions(ctx context.Context) ([]PositionInfo, error)
	GetAccountInfo(ctx context.Context) (*AccountInfo, error)

	// Mitigation actions
	ClosePosition(ctx context.Context, symbol string) error
	CloseAllPositions(ctx context.Context) error
	ReducePosition(ctx context.Context, symbol string, fraction float64) error
	CancelAllOrders(ctx context.Context) error
	UpdateStopLoss(ctx context.Context, symbol string, stopPrice float64) error
}

// SignalSource provides the exogenous risk-modulation inputs. Out-of-range
// values are clamped by the consumer, not rejected here.
type SignalSource interface {
	// GetFactors returns the current {consciousness, entropy, coherence} tuple.
	GetFactors(ctx context.Context) (consciousness, entropy, coherence float64, err error)
}
