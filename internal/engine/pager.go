// internal/engine/pager.go
package engine

import (
	"context"
	"fmt"
	"time"
)

// YearRange is the inclusive span of years a widget currently shows.
type YearRange struct {
	Min, Max int
}

func (r YearRange) Contains(year int) bool { return year >= r.Min && year <= r.Max }

func (r YearRange) String() string {
	if r.Min == r.Max {
		return fmt.Sprintf("%d", r.Min)
	}
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// Direction of a paging step.
type Direction int

const (
	Backward Direction = iota
	Forward
)

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

// YearPager abstracts a widget that shows a window of years and can move it.
// Observe reads the window; Step moves it one page.
type YearPager interface {
	Observe(ctx context.Context) (YearRange, error)
	Step(ctx context.Context, dir Direction) error
}

// RetryBudget bounds a step search.
type RetryBudget struct {
	MaxSteps  int
	StepDelay time.Duration
}

// PageToYear steps pager toward target until its window contains target.
// It returns the number of steps taken. The loop never runs more than
// budget.MaxSteps steps; running out returns a *NavigationBoundsError with
// the last observed window.
func PageToYear(ctx context.Context, pager YearPager, target int, budget RetryBudget) (int, error) {
	var last YearRange
	for step := 0; step <= budget.MaxSteps; step++ {
		r, err := pager.Observe(ctx)
		if err != nil {
			return step, fmt.Errorf("observing year window: %w", err)
		}
		last = r
		if r.Contains(target) {
			return step, nil
		}
		if step == budget.MaxSteps {
			break
		}

		dir := Backward
		if target > r.Max {
			dir = Forward
		}
		if err := pager.Step(ctx, dir); err != nil {
			return step, fmt.Errorf("paging %s from %s: %w", dir, r, err)
		}
		if err := sleep(ctx, budget.StepDelay); err != nil {
			return step + 1, err
		}
	}
	return budget.MaxSteps, &NavigationBoundsError{Target: target, Last: last, Steps: budget.MaxSteps}
}
