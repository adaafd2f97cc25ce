package errors

import (
	"fmt"
	"strings"
	"sync"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	// Errors that demand operator attention
	ErrorCategoryFatal   ErrorCategory = "FATAL"
	ErrorCategoryFlatten ErrorCategory = "FLATTEN" // Level3 flatten failure, never swallowed

	// Collaborator errors, handled per call
	ErrorCategoryExchange ErrorCategory = "EXCHANGE"
	ErrorCategoryNetwork  ErrorCategory = "NETWORK"
	ErrorCategoryTimeout  ErrorCategory = "TIMEOUT"

	// Input and invariant errors, self-healed by clamping or defaulting
	ErrorCategoryInput     ErrorCategory = "INPUT"
	ErrorCategoryInvariant ErrorCategory = "INVARIANT"

	// Rejections from validation and the sizing gate
	ErrorCategoryValidation ErrorCategory = "VALIDATION"
	ErrorCategoryHalted     ErrorCategory = "HALTED"
)

// GuardError is a categorized error with component/operation context
type GuardError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Retryable  bool
}

// Error implements the error interface
func (e *GuardError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

// Unwrap returns the underlying error for error unwrapping
func (e *GuardError) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether this error can be retried
func (e *GuardError) IsRetryable() bool {
	return e.Retryable
}

// New creates a categorized guard error
func New(category ErrorCategory, component, operation, message string) *GuardError {
	return &GuardError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Retryable: isRetryableCategory(category),
	}
}

// Wrap wraps an existing error with guard error context
func Wrap(err error, category ErrorCategory, component, operation string) *GuardError {
	if err == nil {
		return nil
	}
	return &GuardError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Retryable:  isRetryableCategory(category),
	}
}

func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryNetwork, ErrorCategoryTimeout, ErrorCategoryExchange:
		return true
	default:
		return false
	}
}

// Categorize attempts to categorize a raw collaborator error
func Categorize(err error, component, operation string) *GuardError {
	if err == nil {
		return nil
	}
	if ge, ok := err.(*GuardError); ok {
		return ge
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "context deadline exceeded"):
		return Wrap(err, ErrorCategoryTimeout, component, operation)
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network") || strings.Contains(msg, "dial"):
		return Wrap(err, ErrorCategoryNetwork, component, operation)
	default:
		return Wrap(err, ErrorCategoryExchange, component, operation)
	}
}

// NewFlattenError marks a Level3 flatten failure. This category is surfaced
// distinctly so operators cannot miss it.
func NewFlattenError(component string, err error) *GuardError {
	ge := Wrap(err, ErrorCategoryFlatten, component, "flatten_all")
	ge.Message = "emergency flatten failed, open exposure may remain"
	ge.Retryable = false
	return ge
}

// Stats tracks error statistics with a bounded recent-error ring
type Stats struct {
	mu         sync.Mutex
	total      int
	byCategory map[ErrorCategory]int
	recent     []*GuardError
	maxRecent  int
}

// NewStats creates an error statistics tracker keeping at most maxRecent entries
func NewStats(maxRecent int) *Stats {
	if maxRecent <= 0 {
		maxRecent = 50
	}
	return &Stats{
		byCategory: make(map[ErrorCategory]int),
		recent:     make([]*GuardError, 0, maxRecent),
		maxRecent:  maxRecent,
	}
}

// Record records an error in the statistics
func (s *Stats) Record(err *GuardError) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.byCategory[err.Category]++
	s.recent = append(s.recent, err)
	if len(s.recent) > s.maxRecent {
		s.recent = s.recent[1:]
	}
}

// Total returns the total number of recorded errors
func (s *Stats) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// CountByCategory returns the number of recorded errors in the category
func (s *Stats) CountByCategory(category ErrorCategory) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byCategory[category]
}

// Recent returns a copy of the recent-error ring, oldest first
func (s *Stats) Recent() []*GuardError {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*GuardError, len(s.recent))
	copy(out, s.recent)
	return out
}
