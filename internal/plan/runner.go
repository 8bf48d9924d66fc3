// internal/plan/runner.go
package plan

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/engine"
)

// idleQuietPeriod is how long the network must stay quiet for wait_idle.
const idleQuietPeriod = 500 * time.Millisecond

// Result records the outcome of one step.
type Result struct {
	Step      int           `json:"step"`
	Action    Action        `json:"action"`
	Target    string        `json:"target,omitempty"`
	Committed string        `json:"committed,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
	Error     string        `json:"error,omitempty"`
}

// Runner executes plans against an engine.
type Runner struct {
	eng    *engine.Engine
	logger *zap.Logger
}

// NewRunner creates a runner.
func NewRunner(eng *engine.Engine, logger *zap.Logger) *Runner {
	return &Runner{eng: eng, logger: logger.Named("plan")}
}

// Run executes the steps in order. It stops at the first failing step that is
// not optional and returns the results gathered so far with the error.
func (r *Runner) Run(ctx context.Context, p *Plan) ([]Result, error) {
	results := make([]Result, 0, len(p.Steps))
	for i, s := range p.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		start := time.Now()
		committed, err := r.step(ctx, s)
		res := Result{
			Step:      i + 1,
			Action:    s.Action,
			Target:    s.Target(),
			Committed: committed,
			Elapsed:   time.Since(start),
		}
		log := r.logger.With(zap.Int("step", res.Step), zap.String("action", string(s.Action)), zap.String("target", res.Target))

		if err != nil {
			res.Error = err.Error()
			results = append(results, res)
			if s.Optional && ctx.Err() == nil {
				log.Warn("Optional step failed, continuing.", zap.Error(err))
				continue
			}
			return results, fmt.Errorf("step %d (%s %s): %w", res.Step, s.Action, res.Target, err)
		}
		results = append(results, res)
		log.Debug("Step completed.", zap.String("committed", committed), zap.Duration("elapsed", res.Elapsed))
	}
	return results, nil
}

func (r *Runner) step(ctx context.Context, s Step) (string, error) {
	var opts []engine.CallOption
	if s.Timeout > 0 {
		opts = append(opts, engine.WithTimeout(s.Timeout))
	}

	switch s.Action {
	case ActionRadio:
		return r.eng.CheckRadio(ctx, s.Label, s.Value, opts...)
	case ActionWaitIdle:
		return "", r.eng.Await(ctx, engine.NetworkIdle(idleQuietPeriod), opts...)
	}

	el, err := r.target(ctx, s, opts)
	if err != nil {
		return "", err
	}
	loc := el.Locator()

	switch s.Action {
	case ActionInput:
		if err := el.Fill(ctx, s.Value, opts...); err != nil {
			return "", err
		}
		return el.Value(ctx)
	case ActionSelect:
		fallback := -1
		if s.FallbackIndex != nil {
			fallback = *s.FallbackIndex
		}
		return r.eng.NativeSelect(loc).Select(ctx, s.Value, fallback, opts...)
	case ActionSelectRandom:
		return r.eng.NativeSelect(loc).SelectRandom(ctx, opts...)
	case ActionMenu:
		return r.eng.PopupMenu(engine.DefaultMenuLocators(loc)).Choose(ctx, s.Value, opts...)
	case ActionCheck:
		if err := el.Check(ctx, opts...); err != nil {
			return "", err
		}
		return "checked", nil
	case ActionClick:
		return "", el.Click(ctx, opts...)
	case ActionDate:
		return r.eng.SetDate(ctx, loc, s.Value, opts...)
	case ActionMonthYear:
		return r.eng.SetMonthYear(ctx, loc, s.Month, s.Year, opts...)
	}
	return "", fmt.Errorf("unknown action %q", s.Action)
}

// target finds the step's element: by selector as given, or through the
// label strategies over each caption in turn.
func (r *Runner) target(ctx context.Context, s Step, opts []engine.CallOption) (*engine.Element, error) {
	if s.Selector != "" {
		return r.eng.Locate(engine.CSS(s.Selector)), nil
	}
	labels := s.Labels
	if s.Label != "" {
		labels = append([]string{s.Label}, labels...)
	}
	return r.eng.ResolveInputAny(ctx, labels, opts...)
}
