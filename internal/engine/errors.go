// internal/engine/errors.go
package engine

import (
	"errors"
	"fmt"
	"time"
)

// Typed errors let callers classify failures with errors.Is / errors.As
// instead of matching on message text. Each type also matches a sentinel so
// callers that only care about the category can use errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrTimeout          = errors.New("timeout")
	ErrNavigationBounds = errors.New("navigation step budget exceeded")
	ErrValidation       = errors.New("validation failed")
	ErrPostCondition    = errors.New("post-condition mismatch")
)

// NotFoundError reports that no strategy or candidate matched the intent.
type NotFoundError struct {
	Intent string
	// Tried lists the strategies attempted, in order.
	Tried []string
	Err   error
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("no element found for %q", e.Intent)
	if len(e.Tried) > 0 {
		msg += fmt.Sprintf(" (tried %v)", e.Tried)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NotFoundError) Unwrap() error        { return e.Err }
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// TimeoutError reports a wait condition that was not met in time.
type TimeoutError struct {
	Condition string
	Elapsed   time.Duration
	// Err is the last error seen while sampling the condition, if any.
	Err error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %v waiting for %s", e.Elapsed.Round(time.Millisecond), e.Condition)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TimeoutError) Unwrap() error        { return e.Err }
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// NavigationBoundsError reports a bounded step search that ran out of budget.
type NavigationBoundsError struct {
	Target int
	// Last is the range observed on the final sample.
	Last  YearRange
	Steps int
}

func (e *NavigationBoundsError) Error() string {
	return fmt.Sprintf("could not reach year %d within %d steps (last visible %s)", e.Target, e.Steps, e.Last)
}

func (e *NavigationBoundsError) Is(target error) bool { return target == ErrNavigationBounds }

// ValidationError reports input rejected before any interaction took place.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// PostConditionError reports an action whose read-back disagrees with the intended value.
type PostConditionError struct {
	Intent   string
	Expected string
	Observed string
	Err      error
}

func (e *PostConditionError) Error() string {
	msg := fmt.Sprintf("%s: expected %q, observed %q", e.Intent, e.Expected, e.Observed)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PostConditionError) Unwrap() error        { return e.Err }
func (e *PostConditionError) Is(target error) bool { return target == ErrPostCondition }
