package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCategorize tests heuristic categorization of raw collaborator errors
func TestCategorize(t *testing.T) {
	timeout := Categorize(errors.New("context deadline exceeded"), "exchange", "get_positions")
	assert.Equal(t, ErrorCategoryTimeout, timeout.Category)
	assert.True(t, timeout.IsRetryable())

	network := Categorize(errors.New("connection reset by peer"), "exchange", "close_position")
	assert.Equal(t, ErrorCategoryNetwork, network.Category)

	other := Categorize(errors.New("insufficient margin"), "exchange", "reduce_position")
	assert.Equal(t, ErrorCategoryExchange, other.Category)

	assert.Nil(t, Categorize(nil, "exchange", "noop"))
}

// TestCategorize_PassesThroughGuardErrors tests that wrapped errors keep their
// original category
func TestCategorize_PassesThroughGuardErrors(t *testing.T) {
	orig := New(ErrorCategoryValidation, "sizing", "validate", "quantity below minimum")

	got := Categorize(orig, "other", "other")

	assert.Same(t, orig, got)
}

// TestWrap_Unwrap tests error chain compatibility
func TestWrap_Unwrap(t *testing.T) {
	underlying := errors.New("boom")
	wrapped := Wrap(underlying, ErrorCategoryExchange, "executor", "close_all")

	assert.True(t, errors.Is(wrapped, underlying))
	assert.Contains(t, wrapped.Error(), "EXCHANGE")
	assert.Contains(t, wrapped.Error(), "close_all")

	assert.Nil(t, Wrap(nil, ErrorCategoryExchange, "executor", "close_all"))
}

// TestNewFlattenError tests the distinct flatten failure category
func TestNewFlattenError(t *testing.T) {
	err := NewFlattenError("executor", errors.New("connection reset"))

	assert.Equal(t, ErrorCategoryFlatten, err.Category)
	assert.False(t, err.IsRetryable())
	assert.Contains(t, err.Error(), "exposure may remain")
}

// TestStats tests the counting and the bounded recent ring
func TestStats(t *testing.T) {
	s := NewStats(3)

	for i := 0; i < 5; i++ {
		s.Record(New(ErrorCategoryNetwork, "exchange", "op", "fail"))
	}
	s.Record(New(ErrorCategoryFlatten, "executor", "flatten_all", "fail"))

	assert.Equal(t, 6, s.Total())
	assert.Equal(t, 5, s.CountByCategory(ErrorCategoryNetwork))
	assert.Equal(t, 1, s.CountByCategory(ErrorCategoryFlatten))

	recent := s.Recent()
	require.Len(t, recent, 3, "recent ring is capped")
	assert.Equal(t, ErrorCategoryFlatten, recent[len(recent)-1].Category)

	s.Record(nil)
	assert.Equal(t, 6, s.Total(), "nil records are ignored")
}
