package breaker

import (
	"fmt"
	"sync"
	"time"
)

// Level is a discrete risk-state tier. Levels are totally ordered; the
// effective level reported to the rest of the system is the maximum of all
// currently-triggered, non-expired levels.
type Level int

const (
	LevelNormal Level = iota
	Level1Warning
	Level2Caution
	Level3Emergency
)

// String returns the string representation of the breaker level
func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "NORMAL"
	case Level1Warning:
		return "LEVEL1_WARNING"
	case Level2Caution:
		return "LEVEL2_CAUTION"
	case Level3Emergency:
		return "LEVEL3_EMERGENCY"
	default:
		return "UNKNOWN"
	}
}

// Condition is one trigger observation fed into Evaluate
type Condition struct {
	Level    Level
	Reason   string
	Observed float64
}

// EventType classifies breaker log records
type EventType string

const (
	EventTrip       EventType = "TRIP"
	EventSuppressed EventType = "SUPPRESSED"
	EventRecovered  EventType = "RECOVERED"
	EventManual     EventType = "MANUAL"
	EventError      EventType = "ERROR"
)

// Event is an immutable, append-only breaker log record kept in a capped ring
type Event struct {
	Timestamp time.Time
	Type      EventType
	Level     Level
	Reason    string
	Observed  float64
	Actions   []string
}

// Transition reports a level that was newly tripped this evaluation. Actions
// run exactly once per transition, not once per tick.
type Transition struct {
	Level    Level
	Reason   string
	Observed float64
	At       time.Time
}

// Config holds the state machine tunables
type Config struct {
	CoolingPeriods map[Level]time.Duration
	EventCapacity  int
	ActionCapacity int
}

// DefaultConfig returns the tuned breaker defaults
func DefaultConfig() Config {
	return Config{
		CoolingPeriods: map[Level]time.Duration{
			Level1Warning:   15 * time.Minute,
			Level2Caution:   30 * time.Minute,
			Level3Emergency: 60 * time.Minute,
		},
		EventCapacity:  200,
		ActionCapacity: 100,
	}
}

type levelState struct {
	triggered    bool
	triggeredAt  time.Time
	triggerCount int
	cooling      time.Duration
}

func (s *levelState) inCooling(now time.Time) bool {
	return !s.triggeredAt.IsZero() && now.Sub(s.triggeredAt) < s.cooling
}

// ActionRecord is one mitigation outcome kept in the recent-actions ring
type ActionRecord struct {
	Timestamp time.Time
	Level     Level
	Action    string
	Target    string
	Success   bool
	Detail    string
}

// Breaker is the circuit breaker state machine. It never calls the exchange
// itself; the guard loop feeds it conditions and hands the returned
// transitions to the action executor.
type Breaker struct {
	mu     sync.Mutex
	config Config

	levels map[Level]*levelState

	tradingStopped     bool
	emergencyMode      bool
	newEntriesDisabled bool

	events  []Event
	actions []ActionRecord

	listeners []func(Transition)

	tracker *tracker // drawdown, daily baseline, trade count, rolling loss
}

// New creates a breaker with the given configuration
func New(config Config, limits Limits) *Breaker {
	if config.EventCapacity <= 0 {
		config.EventCapacity = 200
	}
	if config.ActionCapacity <= 0 {
		config.ActionCapacity = 100
	}
	b := &Breaker{
		config:  config,
		levels:  make(map[Level]*levelState),
		tracker: newTracker(limits),
	}
	for _, lvl := range []Level{Level1Warning, Level2Caution, Level3Emergency} {
		cooling, ok := config.CoolingPeriods[lvl]
		if !ok {
			cooling = DefaultConfig().CoolingPeriods[lvl]
		}
		b.levels[lvl] = &levelState{cooling: cooling}
	}
	return b
}

// AddListener registers a callback invoked on every trip. Delivery runs on a
// separate goroutine per listener; ordering across listeners is unspecified.
func (b *Breaker) AddListener(fn func(Transition)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Evaluate applies the recovery rule, then trips every condition level not
// suppressed by its own cooling period. It returns the transitions that
// occurred this call, for the executor to act on exactly once.
func (b *Breaker) Evaluate(now time.Time, conditions []Condition) []Transition {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.recoverExpiredLocked(now)

	var transitions []Transition
	for _, c := range conditions {
		if c.Level == LevelNormal {
			continue
		}
		state, ok := b.levels[c.Level]
		if !ok {
			continue
		}
		if state.inCooling(now) {
			// trigger storm guard: re-trips inside the cooling window never
			// touch triggeredAt or triggerCount
			b.appendEventLocked(Event{
				Timestamp: now,
				Type:      EventSuppressed,
				Level:     c.Level,
				Reason:    c.Reason,
				Observed:  c.Observed,
			})
			continue
		}

		state.triggered = true
		state.triggeredAt = now
		state.triggerCount++

		if c.Level >= Level2Caution {
			b.newEntriesDisabled = true
		}
		if c.Level == Level3Emergency {
			b.tradingStopped = true
			b.emergencyMode = true
		}

		tr := Transition{Level: c.Level, Reason: c.Reason, Observed: c.Observed, At: now}
		transitions = append(transitions, tr)
		b.appendEventLocked(Event{
			Timestamp: now,
			Type:      EventTrip,
			Level:     c.Level,
			Reason:    c.Reason,
			Observed:  c.Observed,
		})
		for _, fn := range b.listeners {
			go fn(tr)
		}
	}
	return transitions
}

// recoverExpiredLocked clears every level whose cooling period has elapsed
func (b *Breaker) recoverExpiredLocked(now time.Time) {
	for lvl, state := range b.levels {
		if state.triggered && !state.inCooling(now) {
			state.triggered = false
			b.appendEventLocked(Event{
				Timestamp: now,
				Type:      EventRecovered,
				Level:     lvl,
				Reason:    "cooling period elapsed",
			})
			if lvl >= Level2Caution && !b.anyTriggeredAtOrAboveLocked(Level2Caution) {
				b.newEntriesDisabled = false
			}
		}
	}
}

func (b *Breaker) anyTriggeredAtOrAboveLocked(min Level) bool {
	for lvl, state := range b.levels {
		if lvl >= min && state.triggered {
			return true
		}
	}
	return false
}

// EffectiveLevel returns the maximum of the currently-triggered, non-expired
// levels
func (b *Breaker) EffectiveLevel() Level {
	return b.EffectiveLevelAt(time.Now())
}

// EffectiveLevelAt is EffectiveLevel against an explicit clock
func (b *Breaker) EffectiveLevelAt(now time.Time) Level {
	b.mu.Lock()
	defer b.mu.Unlock()

	effective := LevelNormal
	for lvl, state := range b.levels {
		if state.triggered && state.inCooling(now) && lvl > effective {
			effective = lvl
		}
	}
	return effective
}

// TradingAllowed reports whether order flow may leave the system
func (b *Breaker) TradingAllowed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.tradingStopped
}

// NewEntriesAllowed reports whether the sizing gate may admit new entries
func (b *Breaker) NewEntriesAllowed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.newEntriesDisabled && !b.tradingStopped
}

// EmergencyMode reports whether Level3 emergency mode is latched
func (b *Breaker) EmergencyMode() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.emergencyMode
}

// ManualTrigger trips a level bypassing the condition scan. Cooling-period
// suppression still applies.
func (b *Breaker) ManualTrigger(level Level, reason string) (*Transition, error) {
	if level == LevelNormal {
		return nil, fmt.Errorf("cannot manually trigger %s", level)
	}
	now := time.Now()

	b.mu.Lock()
	state, ok := b.levels[level]
	if !ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("unknown breaker level %d", level)
	}
	if state.inCooling(now) {
		b.appendEventLocked(Event{
			Timestamp: now,
			Type:      EventSuppressed,
			Level:     level,
			Reason:    "manual: " + reason,
		})
		b.mu.Unlock()
		return nil, fmt.Errorf("level %s is inside its cooling period", level)
	}

	state.triggered = true
	state.triggeredAt = now
	state.triggerCount++
	if level >= Level2Caution {
		b.newEntriesDisabled = true
	}
	if level == Level3Emergency {
		b.tradingStopped = true
		b.emergencyMode = true
	}
	tr := Transition{Level: level, Reason: "manual: " + reason, At: now}
	b.appendEventLocked(Event{
		Timestamp: now,
		Type:      EventManual,
		Level:     level,
		Reason:    "manual trigger: " + reason,
	})
	listeners := b.listeners
	b.mu.Unlock()

	for _, fn := range listeners {
		go fn(tr)
	}
	return &tr, nil
}

// ManualReset clears triggered flags, new-entry blocking and emergency mode.
// tradingStopped is left untouched: resuming trading is a distinct, explicit
// operation.
func (b *Breaker) ManualReset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, state := range b.levels {
		state.triggered = false
		state.triggeredAt = time.Time{}
	}
	b.emergencyMode = false
	b.newEntriesDisabled = false
	b.appendEventLocked(Event{
		Timestamp: time.Now(),
		Type:      EventManual,
		Level:     LevelNormal,
		Reason:    "manual reset",
	})
}

// ResumeTrading re-enables order flow. Refused while emergency mode is set:
// a manual reset must come first.
func (b *Breaker) ResumeTrading() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.emergencyMode {
		return fmt.Errorf("cannot resume trading while emergency mode is set; manual reset required")
	}
	b.tradingStopped = false
	b.appendEventLocked(Event{
		Timestamp: time.Now(),
		Type:      EventManual,
		Level:     LevelNormal,
		Reason:    "trading resumed",
	})
	return nil
}

// HaltTrading stops order flow without changing level state. Used by the
// executor when a Level3 flatten is dispatched.
func (b *Breaker) HaltTrading() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tradingStopped = true
}

// DailyReset clears the trade count, daily P&L baseline, rolling loss window
// and max drawdown at the trading-day boundary. Emergency mode is never
// auto-cleared.
func (b *Breaker) DailyReset(now time.Time, portfolioValue float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tracker.resetDaily(now, portfolioValue)
	b.appendEventLocked(Event{
		Timestamp: now,
		Type:      EventManual,
		Level:     LevelNormal,
		Reason:    "daily reset",
	})
}

// RecordError appends a collaborator failure as an Error-type event
func (b *Breaker) RecordError(component string, err error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appendEventLocked(Event{
		Timestamp: time.Now(),
		Type:      EventError,
		Level:     LevelNormal,
		Reason:    fmt.Sprintf("%s: %v", component, err),
	})
}

// RecordAction appends a mitigation outcome to the recent-actions ring
func (b *Breaker) RecordAction(rec ActionRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.actions = append(b.actions, rec)
	if len(b.actions) > b.config.ActionCapacity {
		b.actions = b.actions[1:]
	}
}

func (b *Breaker) appendEventLocked(ev Event) {
	b.events = append(b.events, ev)
	if len(b.events) > b.config.EventCapacity {
		b.events = b.events[1:]
	}
}

// Events returns a copy of the event ring, oldest first
func (b *Breaker) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Actions returns a copy of the recent-actions ring, oldest first
func (b *Breaker) Actions() []ActionRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ActionRecord, len(b.actions))
	copy(out, b.actions)
	return out
}

// LevelStatus is the per-level view exposed in the status snapshot
type LevelStatus struct {
	Level        Level     `json:"level"`
	Triggered    bool      `json:"triggered"`
	TriggeredAt  time.Time `json:"triggered_at"`
	TriggerCount int       `json:"trigger_count"`
	Cooling      string    `json:"cooling_period"`
}

// Status is the state snapshot exposed to dashboards and admin tooling
type Status struct {
	EffectiveLevel    Level          `json:"effective_level"`
	Levels            []LevelStatus  `json:"levels"`
	TradingEnabled    bool           `json:"trading_enabled"`
	NewEntriesAllowed bool           `json:"new_entries_allowed"`
	EmergencyMode     bool           `json:"emergency_mode"`
	DailyTrades       int            `json:"daily_trades"`
	MaxDrawdown       float64        `json:"max_drawdown"`
	RecentEvents      []Event        `json:"recent_events"`
	RecentActions     []ActionRecord `json:"recent_actions"`
}

// Status builds a consistent snapshot under the lock
func (b *Breaker) Status() Status {
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	st := Status{
		TradingEnabled:    !b.tradingStopped,
		NewEntriesAllowed: !b.newEntriesDisabled && !b.tradingStopped,
		EmergencyMode:     b.emergencyMode,
		DailyTrades:       b.tracker.dailyTrades,
		MaxDrawdown:       b.tracker.maxDrawdown,
	}
	for _, lvl := range []Level{Level1Warning, Level2Caution, Level3Emergency} {
		state := b.levels[lvl]
		st.Levels = append(st.Levels, LevelStatus{
			Level:        lvl,
			Triggered:    state.triggered,
			TriggeredAt:  state.triggeredAt,
			TriggerCount: state.triggerCount,
			Cooling:      state.cooling.String(),
		})
		if state.triggered && state.inCooling(now) && lvl > st.EffectiveLevel {
			st.EffectiveLevel = lvl
		}
	}
	st.RecentEvents = make([]Event, len(b.events))
	copy(st.RecentEvents, b.events)
	st.RecentActions = make([]ActionRecord, len(b.actions))
	copy(st.RecentActions, b.actions)
	return st
}

// TriggerCount returns how many times the level tripped since start
func (b *Breaker) TriggerCount(level Level) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if state, ok := b.levels[level]; ok {
		return state.triggerCount
	}
	return 0
}
