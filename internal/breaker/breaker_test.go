package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker() *Breaker {
	return New(DefaultConfig(), DefaultLimits())
}

// TestEvaluate_TripSetsEffectiveLevel tests the basic trip path
func TestEvaluate_TripSetsEffectiveLevel(t *testing.T) {
	b := newTestBreaker()
	now := time.Now()

	transitions := b.Evaluate(now, []Condition{
		{Level: Level1Warning, Reason: "loss threshold", Observed: 0.016},
	})

	require.Len(t, transitions, 1)
	assert.Equal(t, Level1Warning, transitions[0].Level)
	assert.Equal(t, Level1Warning, b.EffectiveLevelAt(now))
	assert.True(t, b.TradingAllowed())
	assert.True(t, b.NewEntriesAllowed())
}

// TestEvaluate_EffectiveLevelIsMax tests that the effective level is the
// maximum of all triggered non-expired levels
func TestEvaluate_EffectiveLevelIsMax(t *testing.T) {
	b := newTestBreaker()
	now := time.Now()

	b.Evaluate(now, []Condition{
		{Level: Level1Warning, Reason: "loss"},
		{Level: Level2Caution, Reason: "leverage"},
	})

	assert.Equal(t, Level2Caution, b.EffectiveLevelAt(now))
	assert.False(t, b.NewEntriesAllowed())
	assert.True(t, b.TradingAllowed())
}

// TestEvaluate_SuppressionInsideCooling tests that a re-trip inside the
// cooling window changes neither triggeredAt nor the trigger count
func TestEvaluate_SuppressionInsideCooling(t *testing.T) {
	b := newTestBreaker()
	now := time.Now()

	first := b.Evaluate(now, []Condition{{Level: Level1Warning, Reason: "loss"}})
	require.Len(t, first, 1)
	firstAt := b.Status().Levels[0].TriggeredAt

	later := now.Add(5 * time.Minute)
	second := b.Evaluate(later, []Condition{{Level: Level1Warning, Reason: "loss again"}})

	assert.Empty(t, second, "re-trip inside cooling must not produce a transition")
	assert.Equal(t, 1, b.TriggerCount(Level1Warning))
	assert.Equal(t, firstAt, b.Status().Levels[0].TriggeredAt)

	events := b.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, EventSuppressed, events[len(events)-1].Type)
}

// TestEvaluate_IndependentCoolingPerLevel tests that one level's cooling does
// not suppress a different level
func TestEvaluate_IndependentCoolingPerLevel(t *testing.T) {
	b := newTestBreaker()
	now := time.Now()

	b.Evaluate(now, []Condition{{Level: Level1Warning, Reason: "loss"}})
	transitions := b.Evaluate(now.Add(time.Minute), []Condition{{Level: Level2Caution, Reason: "leverage"}})

	require.Len(t, transitions, 1)
	assert.Equal(t, Level2Caution, transitions[0].Level)
}

// TestEvaluate_RecoveryAfterCooling tests expiry-driven recovery and that the
// level can trip again afterwards
func TestEvaluate_RecoveryAfterCooling(t *testing.T) {
	b := newTestBreaker()
	now := time.Now()

	b.Evaluate(now, []Condition{{Level: Level1Warning, Reason: "loss"}})
	after := now.Add(16 * time.Minute)

	assert.Equal(t, LevelNormal, b.EffectiveLevelAt(after))

	transitions := b.Evaluate(after, []Condition{{Level: Level1Warning, Reason: "loss"}})
	require.Len(t, transitions, 1)
	assert.Equal(t, 2, b.TriggerCount(Level1Warning))
}

// TestEvaluate_Level3StopsTrading tests the emergency latch
func TestEvaluate_Level3StopsTrading(t *testing.T) {
	b := newTestBreaker()
	now := time.Now()

	transitions := b.Evaluate(now, []Condition{{Level: Level3Emergency, Reason: "loss threshold", Observed: 0.045}})

	require.Len(t, transitions, 1)
	assert.Equal(t, Level3Emergency, b.EffectiveLevelAt(now))
	assert.False(t, b.TradingAllowed())
	assert.False(t, b.NewEntriesAllowed())
	assert.True(t, b.EmergencyMode())
}

// TestManualReset_LeavesTradingStopped tests that a reset clears triggers and
// emergency mode without re-enabling order flow
func TestManualReset_LeavesTradingStopped(t *testing.T) {
	b := newTestBreaker()
	b.Evaluate(time.Now(), []Condition{{Level: Level3Emergency, Reason: "loss"}})

	b.ManualReset()

	assert.Equal(t, LevelNormal, b.EffectiveLevel())
	assert.False(t, b.EmergencyMode())
	assert.False(t, b.TradingAllowed(), "reset must not resume trading")

	require.NoError(t, b.ResumeTrading())
	assert.True(t, b.TradingAllowed())
}

// TestResumeTrading_RefusedInEmergencyMode tests that resume requires a reset
// first
func TestResumeTrading_RefusedInEmergencyMode(t *testing.T) {
	b := newTestBreaker()
	b.Evaluate(time.Now(), []Condition{{Level: Level3Emergency, Reason: "loss"}})

	err := b.ResumeTrading()

	assert.Error(t, err)
	assert.False(t, b.TradingAllowed())
}

// TestManualTrigger tests the manual path including cooling suppression
func TestManualTrigger(t *testing.T) {
	b := newTestBreaker()

	tr, err := b.ManualTrigger(Level2Caution, "operator drill")
	require.NoError(t, err)
	assert.Equal(t, Level2Caution, tr.Level)
	assert.False(t, b.NewEntriesAllowed())

	_, err = b.ManualTrigger(Level2Caution, "again")
	assert.Error(t, err, "manual trigger inside cooling must be refused")
	assert.Equal(t, 1, b.TriggerCount(Level2Caution))

	_, err = b.ManualTrigger(LevelNormal, "nonsense")
	assert.Error(t, err)
}

// TestDailyReset_KeepsEmergencyMode tests that the day boundary never clears
// the emergency latch
func TestDailyReset_KeepsEmergencyMode(t *testing.T) {
	b := newTestBreaker()
	now := time.Now()
	b.Evaluate(now, []Condition{{Level: Level3Emergency, Reason: "loss"}})
	b.RecordTrade()

	b.DailyReset(now.Add(24*time.Hour), 100000)

	assert.True(t, b.EmergencyMode())
	assert.False(t, b.TradingAllowed())
	assert.Equal(t, 0, b.DailyTrades())
}

// TestEventRing_Capped tests that the event log never grows past its capacity
func TestEventRing_Capped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EventCapacity = 10
	b := New(cfg, DefaultLimits())

	for i := 0; i < 50; i++ {
		b.RecordError("test", assert.AnError)
	}

	assert.Len(t, b.Events(), 10)
}

// TestListener_FiresOnTrip tests trip notification delivery
func TestListener_FiresOnTrip(t *testing.T) {
	b := newTestBreaker()
	got := make(chan Transition, 1)
	b.AddListener(func(tr Transition) { got <- tr })

	b.Evaluate(time.Now(), []Condition{{Level: Level1Warning, Reason: "loss"}})

	select {
	case tr := <-got:
		assert.Equal(t, Level1Warning, tr.Level)
	case <-time.After(time.Second):
		t.Fatal("listener was not invoked")
	}
}

// TestStatus_Snapshot tests the consistency of the exposed status
func TestStatus_Snapshot(t *testing.T) {
	b := newTestBreaker()
	now := time.Now()
	b.Evaluate(now, []Condition{{Level: Level2Caution, Reason: "leverage", Observed: 12}})
	b.RecordAction(ActionRecord{Timestamp: now, Level: Level2Caution, Action: "reduce_position", Target: "BTCUSDT", Success: true})

	st := b.Status()

	assert.Equal(t, Level2Caution, st.EffectiveLevel)
	assert.True(t, st.TradingEnabled)
	assert.False(t, st.NewEntriesAllowed)
	require.Len(t, st.Levels, 3)
	assert.True(t, st.Levels[1].Triggered)
	require.Len(t, st.RecentActions, 1)
	assert.Equal(t, "reduce_position", st.RecentActions[0].Action)
}
