// internal/engine/wait.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Condition is something the Waiter can sample against the document.
// Check returns true once satisfied. An error means "not ready yet" and is
// kept as the cause should the wait time out.
type Condition interface {
	Describe() string
	Check(ctx context.Context, drv Driver) (bool, error)
}

type stateCondition struct {
	desc string
	loc  Locator
	test func(ElementState) bool
}

func (c stateCondition) Describe() string { return fmt.Sprintf("%s %s", c.loc, c.desc) }

func (c stateCondition) Check(ctx context.Context, drv Driver) (bool, error) {
	st, err := drv.State(ctx, c.loc)
	if err != nil {
		return false, err
	}
	return c.test(st), nil
}

// Attached is satisfied once loc matches a node.
func Attached(loc Locator) Condition {
	return stateCondition{desc: "to be attached", loc: loc, test: func(s ElementState) bool { return s.Attached }}
}

// Visible is satisfied once loc matches a rendered, non-empty node.
func Visible(loc Locator) Condition {
	return stateCondition{desc: "to be visible", loc: loc, test: func(s ElementState) bool { return s.Attached && s.Visible }}
}

// Detached is satisfied once loc matches nothing.
func Detached(loc Locator) Condition {
	return stateCondition{desc: "to be detached", loc: loc, test: func(s ElementState) bool { return !s.Attached }}
}

// Hidden is satisfied when loc matches nothing or matches a node that is not rendered.
func Hidden(loc Locator) Condition {
	return stateCondition{desc: "to be hidden", loc: loc, test: func(s ElementState) bool { return !s.Attached || !s.Visible }}
}

// TextEquals compares the whitespace-normalized text of the node.
func TextEquals(loc Locator, text string) Condition {
	want := normalize(text)
	return stateCondition{
		desc: fmt.Sprintf("to have text %q", text),
		loc:  loc,
		test: func(s ElementState) bool { return s.Attached && normalize(s.Text) == want },
	}
}

// TextContains matches case-insensitively.
func TextContains(loc Locator, text string) Condition {
	want := strings.ToLower(normalize(text))
	return stateCondition{
		desc: fmt.Sprintf("to contain text %q", text),
		loc:  loc,
		test: func(s ElementState) bool {
			return s.Attached && strings.Contains(strings.ToLower(normalize(s.Text)), want)
		},
	}
}

// ValueEquals is satisfied once a form control holds exactly value.
func ValueEquals(loc Locator, value string) Condition {
	return stateCondition{
		desc: fmt.Sprintf("to have value %q", value),
		loc:  loc,
		test: func(s ElementState) bool { return s.Attached && s.Value == value },
	}
}

type countCondition struct {
	loc     Locator
	n       int
	atLeast bool
}

func (c countCondition) Describe() string {
	if c.atLeast {
		return fmt.Sprintf("%s to match at least %d node(s)", c.loc, c.n)
	}
	return fmt.Sprintf("%s to match exactly %d node(s)", c.loc, c.n)
}

func (c countCondition) Check(ctx context.Context, drv Driver) (bool, error) {
	n, err := drv.Count(ctx, c.loc)
	if err != nil {
		return false, err
	}
	if c.atLeast {
		return n >= c.n, nil
	}
	return n == c.n, nil
}

// CountEquals is satisfied when loc matches exactly n nodes.
func CountEquals(loc Locator, n int) Condition { return countCondition{loc: loc, n: n} }

// CountAtLeast is satisfied when loc matches n or more nodes.
func CountAtLeast(loc Locator, n int) Condition { return countCondition{loc: loc, n: n, atLeast: true} }

type predicateCondition struct {
	desc string
	fn   func(ctx context.Context, drv Driver) (bool, error)
}

func (c predicateCondition) Describe() string { return c.desc }
func (c predicateCondition) Check(ctx context.Context, drv Driver) (bool, error) {
	return c.fn(ctx, drv)
}

// Predicate wraps an arbitrary sampling function.
func Predicate(desc string, fn func(ctx context.Context, drv Driver) (bool, error)) Condition {
	return predicateCondition{desc: desc, fn: fn}
}

// ScriptTrue evaluates a JavaScript expression in the page and is satisfied
// once it returns true.
func ScriptTrue(expr string) Condition {
	return Predicate(fmt.Sprintf("script %q to return true", expr), func(ctx context.Context, drv Driver) (bool, error) {
		var ok bool
		if err := drv.Evaluate(ctx, expr, &ok); err != nil {
			return false, err
		}
		return ok, nil
	})
}

// NetworkIdle is satisfied once the session has seen no in-flight requests
// for the quiet period.
func NetworkIdle(quiet time.Duration) Condition {
	return Predicate(fmt.Sprintf("network to be idle for %v", quiet), func(ctx context.Context, drv Driver) (bool, error) {
		if err := drv.WaitNetworkIdle(ctx, quiet); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Waiter polls Conditions against a Driver. Polling is paced by a token
// bucket so a condition is never sampled more often than once per interval.
type Waiter struct {
	drv            Driver
	logger         *zap.Logger
	defaultTimeout time.Duration
	pollInterval   time.Duration
}

// NewWaiter creates a Waiter. Non-positive durations fall back to 30s / 100ms.
func NewWaiter(drv Driver, logger *zap.Logger, defaultTimeout, pollInterval time.Duration) *Waiter {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	return &Waiter{
		drv:            drv,
		logger:         logger.Named("wait"),
		defaultTimeout: defaultTimeout,
		pollInterval:   pollInterval,
	}
}

// Await blocks until cond is satisfied. A non-positive timeout uses the
// default. Expiry of either deadline, the wait's own or the caller's, returns
// a *TimeoutError; explicit cancellation of ctx returns ctx.Err() unchanged.
func (w *Waiter) Await(ctx context.Context, cond Condition, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = w.defaultTimeout
	}
	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(w.pollInterval), 1)
	var lastErr error
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			// The limiter refuses early when the next token lands past the
			// deadline. Take one last sample while the deadline allows it.
			if waitCtx.Err() == nil {
				if ok, _ := cond.Check(waitCtx, w.drv); ok {
					return nil
				}
			}
			break
		}
		ok, err := cond.Check(waitCtx, w.drv)
		if ok {
			w.logger.Debug("Condition met.", zap.String("condition", cond.Describe()), zap.Duration("elapsed", time.Since(start)))
			return nil
		}
		if err != nil {
			lastErr = err
		}
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return &TimeoutError{Condition: cond.Describe(), Elapsed: time.Since(start), Err: lastErr}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
