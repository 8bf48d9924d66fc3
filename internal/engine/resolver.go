// internal/engine/resolver.go
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Strategy is one named heuristic for turning an intent into a Locator.
// Strategies hold no document state; Locate may fail, which the resolver
// treats as "nothing found".
type Strategy struct {
	Name   string
	Locate func(ctx context.Context) (Locator, error)
}

// Fixed returns a Strategy that always produces loc.
func Fixed(name string, loc Locator) Strategy {
	return Strategy{Name: name, Locate: func(context.Context) (Locator, error) { return loc, nil }}
}

// Resolution records which strategy matched and how many nodes it matched.
type Resolution struct {
	Locator  Locator
	Strategy string
	Matches  int
}

// Resolver evaluates declared strategy lists in order.
type Resolver struct {
	drv    Driver
	logger *zap.Logger
}

func NewResolver(drv Driver, logger *zap.Logger) *Resolver {
	return &Resolver{drv: drv, logger: logger.Named("resolver")}
}

// maxVisibilityScan caps how many matches of one strategy are inspected for visibility.
const maxVisibilityScan = 25

// ResolveFirst tries each strategy in order and returns the first visible
// match of the first strategy that has one. A strategy whose matches are all
// hidden counts as having found nothing. Later strategies are never evaluated
// once one matches. Failures of individual strategies are logged and skipped;
// only cancellation of ctx aborts the search early.
func (r *Resolver) ResolveFirst(ctx context.Context, strategies []Strategy, intent string) (Resolution, error) {
	tried := make([]string, 0, len(strategies))
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}
		tried = append(tried, s.Name)

		loc, err := s.Locate(ctx)
		if err != nil {
			r.logger.Debug("Strategy could not build a locator.", zap.String("intent", intent), zap.String("strategy", s.Name), zap.Error(err))
			continue
		}
		n, err := r.drv.Count(ctx, loc)
		if err != nil {
			if ctx.Err() != nil {
				return Resolution{}, ctx.Err()
			}
			r.logger.Debug("Strategy lookup failed.", zap.String("intent", intent), zap.String("strategy", s.Name), zap.Error(err))
			continue
		}
		if n == 0 {
			r.logger.Debug("Strategy matched nothing.", zap.String("intent", intent), zap.String("strategy", s.Name))
			continue
		}
		match, ok, err := r.firstVisible(ctx, loc, n)
		if err != nil {
			if ctx.Err() != nil {
				return Resolution{}, ctx.Err()
			}
			r.logger.Debug("Strategy visibility check failed.", zap.String("intent", intent), zap.String("strategy", s.Name), zap.Error(err))
			continue
		}
		if !ok {
			r.logger.Debug("Strategy matched only hidden nodes.", zap.String("intent", intent), zap.String("strategy", s.Name), zap.Int("matches", n))
			continue
		}
		if n > 1 {
			r.logger.Warn("Strategy matched several nodes, taking the first visible one.",
				zap.String("intent", intent), zap.String("strategy", s.Name), zap.Int("matches", n))
		}
		r.logger.Debug("Resolved.", zap.String("intent", intent), zap.String("strategy", s.Name), zap.Stringer("locator", match))
		return Resolution{Locator: match, Strategy: s.Name, Matches: n}, nil
	}
	return Resolution{}, &NotFoundError{Intent: intent, Tried: tried}
}

// firstVisible returns the first visible one among the n matches of loc.
func (r *Resolver) firstVisible(ctx context.Context, loc Locator, n int) (Locator, bool, error) {
	candidates := []Locator{loc}
	if _, indexed := loc.Index(); !indexed {
		if n > maxVisibilityScan {
			n = maxVisibilityScan
		}
		candidates = make([]Locator, n)
		for i := range candidates {
			candidates[i] = loc.Nth(i)
		}
	}
	for _, c := range candidates {
		st, err := r.drv.State(ctx, c)
		if err != nil {
			return Locator{}, false, err
		}
		if st.Attached && st.Visible {
			return c, true, nil
		}
	}
	return Locator{}, false, nil
}

// TryMany runs op for each item in order and returns the result of the first
// success. When every attempt fails the last error is returned, wrapped with
// intent. Cancellation of ctx stops the loop immediately.
func TryMany[T, R any](ctx context.Context, items []T, intent string, op func(ctx context.Context, item T) (R, error)) (R, error) {
	var zero R
	if len(items) == 0 {
		return zero, &NotFoundError{Intent: intent, Err: errors.New("no candidates given")}
	}
	var lastErr error
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		res, err := op(ctx, item)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	return zero, fmt.Errorf("%s: all %d candidates failed: %w", intent, len(items), lastErr)
}
