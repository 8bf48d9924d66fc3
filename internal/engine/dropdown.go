// internal/engine/dropdown.go
package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Chooser is the common capability of the selection widget shapes the engine
// drives. Choose picks option, or a random real option when option is empty,
// and returns the label that ended up selected. The set of implementations is
// closed: NativeSelect and PopupMenu.
type Chooser interface {
	Choose(ctx context.Context, option string, opts ...CallOption) (string, error)
	chooser()
}

// NativeSelect drives a <select> element. It escalates from the conventional
// selection path to direct index mutation when the control refuses input.
type NativeSelect struct {
	eng *Engine
	loc Locator
}

// NativeSelect returns a chooser for the control at loc.
func (e *Engine) NativeSelect(loc Locator) *NativeSelect {
	return &NativeSelect{eng: e, loc: loc}
}

func (*NativeSelect) chooser() {}

func (s *NativeSelect) Choose(ctx context.Context, option string, opts ...CallOption) (string, error) {
	if option == "" {
		return s.SelectRandom(ctx, opts...)
	}
	return s.Select(ctx, option, -1, opts...)
}

// SelectedText reads back the label of the selected option. It is empty when
// nothing is selected.
func (s *NativeSelect) SelectedText(ctx context.Context) (string, error) {
	options, err := s.eng.drv.Options(ctx, s.loc)
	if err != nil {
		return "", err
	}
	for _, o := range options {
		if o.Selected {
			return normalize(o.Label), nil
		}
	}
	return "", nil
}

// Select selects the option labeled text and returns its label.
//
// The conventional path is tried first. If it fails, the option is matched by
// whitespace and case-normalized label and set by index, which dispatches
// "input" and "change" once each. With no label match and fallbackIndex >= 0,
// option fallbackIndex+1 is used, skipping the leading placeholder. A negative
// fallbackIndex disables that step.
//
// The selection is read back afterwards. A read-back that is empty, a
// placeholder, or unchanged from before gets one more attempt after the settle
// delay. If it is still empty or a placeholder the intended label is trusted;
// any other real option is a *PostConditionError.
func (s *NativeSelect) Select(ctx context.Context, text string, fallbackIndex int, opts ...CallOption) (string, error) {
	co := s.eng.options(opts)
	logger := s.eng.logger.With(zap.Stringer("dropdown", s.loc), zap.String("option", text))

	if err := s.eng.ready(ctx, s.loc, co); err != nil {
		return "", err
	}
	before, err := s.SelectedText(ctx)
	if err != nil {
		logger.Debug("Could not read the current selection.", zap.Error(err))
	}

	intended, err := s.attempt(ctx, text, fallbackIndex, co, logger)
	if err != nil {
		return "", err
	}

	observed, err := s.SelectedText(ctx)
	if err != nil {
		return "", fmt.Errorf("reading back selection of %s: %w", s.loc, err)
	}
	if s.matches(observed, intended) {
		logger.Info("Option selected.", zap.String("selected", intended))
		return intended, nil
	}

	suspect := observed == "" || s.eng.isPlaceholder(observed) || observed == before
	if !suspect {
		return "", &PostConditionError{Intent: fmt.Sprintf("select %s", s.loc), Expected: intended, Observed: observed}
	}

	logger.Warn("Selection did not stick, retrying once.", zap.String("observed", observed))
	if err := s.eng.settle(ctx); err != nil {
		return "", err
	}
	if intended, err = s.attempt(ctx, intended, fallbackIndex, co, logger); err != nil {
		return "", err
	}
	if observed, err = s.SelectedText(ctx); err != nil {
		return "", fmt.Errorf("reading back selection of %s: %w", s.loc, err)
	}
	switch {
	case s.matches(observed, intended):
	case observed == "" || s.eng.isPlaceholder(observed):
		logger.Warn("Read-back still shows no real option, trusting the intended value.", zap.String("observed", observed))
	default:
		return "", &PostConditionError{Intent: fmt.Sprintf("select %s", s.loc), Expected: intended, Observed: observed}
	}
	logger.Info("Option selected.", zap.String("selected", intended))
	return intended, nil
}

// attempt runs one pass of the escalation chain and returns the label it set.
func (s *NativeSelect) attempt(ctx context.Context, text string, fallbackIndex int, co callOptions, logger *zap.Logger) (string, error) {
	if err := sleep(ctx, co.slowMo); err != nil {
		return "", err
	}
	if text != "" {
		err := s.eng.drv.SelectOptionByLabel(ctx, s.loc, text)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Warn("Conventional selection failed, mutating the control directly.", zap.Error(err))
	}
	return s.mutate(ctx, text, fallbackIndex)
}

func (s *NativeSelect) mutate(ctx context.Context, text string, fallbackIndex int) (string, error) {
	options, err := s.eng.drv.Options(ctx, s.loc)
	if err != nil {
		return "", fmt.Errorf("listing options of %s: %w", s.loc, err)
	}

	want := strings.ToLower(normalize(text))
	target := -1
	if want != "" {
		for i, o := range options {
			if strings.ToLower(normalize(o.Label)) == want {
				target = i
				break
			}
		}
	}
	if target < 0 && fallbackIndex >= 0 {
		if fallbackIndex+1 < len(options) {
			target = fallbackIndex + 1
		}
	}
	if target < 0 {
		return "", &NotFoundError{
			Intent: fmt.Sprintf("option %q in %s", text, s.loc),
			Err:    fmt.Errorf("%d option(s) available, fallback index %d", len(options), fallbackIndex),
		}
	}

	if err := s.eng.drv.SetSelectedIndex(ctx, s.loc, options[target].Index); err != nil {
		return "", fmt.Errorf("setting selected index %d on %s: %w", options[target].Index, s.loc, err)
	}
	return normalize(options[target].Label), nil
}

// SelectRandom picks uniformly among the enabled options that carry a real
// label, skipping blanks and placeholder prompts.
func (s *NativeSelect) SelectRandom(ctx context.Context, opts ...CallOption) (string, error) {
	co := s.eng.options(opts)
	if err := s.eng.ready(ctx, s.loc, co); err != nil {
		return "", err
	}
	options, err := s.eng.drv.Options(ctx, s.loc)
	if err != nil {
		return "", fmt.Errorf("listing options of %s: %w", s.loc, err)
	}
	var candidates []string
	for _, o := range options {
		if o.Disabled || s.eng.isPlaceholder(o.Label) {
			continue
		}
		candidates = append(candidates, normalize(o.Label))
	}
	if len(candidates) == 0 {
		return "", &NotFoundError{Intent: fmt.Sprintf("random option in %s", s.loc), Err: fmt.Errorf("no selectable options")}
	}
	pick := candidates[s.eng.rng.Intn(len(candidates))]
	s.eng.logger.Debug("Random option picked.", zap.Stringer("dropdown", s.loc), zap.String("option", pick), zap.Int("candidates", len(candidates)))
	return s.Select(ctx, pick, -1, opts...)
}

func (s *NativeSelect) matches(observed, intended string) bool {
	return strings.EqualFold(normalize(observed), normalize(intended))
}
