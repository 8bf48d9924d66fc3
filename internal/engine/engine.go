// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
)

// Engine is the entry point the step layer calls into. It owns no document
// state; every call re-resolves against the Driver. One Engine serves one
// document session and must not be used by two flows at once.
type Engine struct {
	drv      Driver
	cfg      config.EngineConfig
	logger   *zap.Logger
	waiter   *Waiter
	resolver *Resolver

	placeholder *regexp.Regexp
	sentinels   map[string]struct{}
	rng         *rand.Rand
	now         func() time.Time
}

// EngineOption customizes an Engine at construction.
type EngineOption func(*Engine)

// WithRand sets the source used for random option picks.
func WithRand(r *rand.Rand) EngineOption {
	return func(e *Engine) { e.rng = r }
}

// WithClock sets the clock used when SetDate is given no date.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over drv.
func New(drv Driver, cfg config.EngineConfig, logger *zap.Logger, opts ...EngineOption) (*Engine, error) {
	if drv == nil {
		return nil, fmt.Errorf("engine: driver is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("engine")

	placeholder, err := regexp.Compile(cfg.PlaceholderPattern)
	if err != nil {
		return nil, fmt.Errorf("engine: placeholder pattern: %w", err)
	}
	sentinels := make(map[string]struct{}, len(cfg.PlaceholderSentinels))
	for _, s := range cfg.PlaceholderSentinels {
		sentinels[strings.ToLower(normalize(s))] = struct{}{}
	}

	e := &Engine{
		drv:         drv,
		cfg:         cfg,
		logger:      logger,
		waiter:      NewWaiter(drv, logger, cfg.DefaultTimeout, cfg.PollInterval),
		resolver:    NewResolver(drv, logger),
		placeholder: placeholder,
		sentinels:   sentinels,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Driver exposes the underlying driver for callers that need raw access.
func (e *Engine) Driver() Driver { return e.drv }

// CallOption overrides engine defaults for a single call.
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
	slowMo  time.Duration
}

// WithTimeout overrides the readiness timeout for one call.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// WithSlowMo overrides the inter-action delay for one call.
func WithSlowMo(d time.Duration) CallOption {
	return func(o *callOptions) { o.slowMo = d }
}

func (e *Engine) options(opts []CallOption) callOptions {
	co := callOptions{timeout: e.cfg.DefaultTimeout, slowMo: e.cfg.SlowMo}
	for _, opt := range opts {
		opt(&co)
	}
	return co
}

// Await blocks until cond holds, honoring a WithTimeout override.
func (e *Engine) Await(ctx context.Context, cond Condition, opts ...CallOption) error {
	return e.waiter.Await(ctx, cond, e.options(opts).timeout)
}

// Locate wraps loc in an Element handle without touching the document.
func (e *Engine) Locate(loc Locator) *Element {
	return &Element{loc: loc, eng: e}
}

// ResolveFirst exposes the strategy resolver for callers with their own lists.
func (e *Engine) ResolveFirst(ctx context.Context, strategies []Strategy, intent string) (Resolution, error) {
	return e.resolver.ResolveFirst(ctx, strategies, intent)
}

// ResolveInput finds the form field labeled label. The strategy list is
// re-run until one of them yields a visible field or the call times out.
func (e *Engine) ResolveInput(ctx context.Context, label string, opts ...CallOption) (*Element, error) {
	return e.resolveVisible(ctx, fmt.Sprintf("a visible field labeled %q", label), opts,
		func(ctx context.Context) (Resolution, error) {
			return e.resolver.ResolveFirst(ctx, LabelStrategies(label), label)
		})
}

// ResolveInputAny tries several captions for the same logical field, in
// order, on every poll.
func (e *Engine) ResolveInputAny(ctx context.Context, labels []string, opts ...CallOption) (*Element, error) {
	intent := strings.Join(labels, " | ")
	if len(labels) == 0 {
		return nil, &NotFoundError{Intent: intent, Err: errors.New("no labels given")}
	}
	return e.resolveVisible(ctx, fmt.Sprintf("a visible field labeled %s", intent), opts,
		func(ctx context.Context) (Resolution, error) {
			return TryMany(ctx, labels, intent, func(ctx context.Context, label string) (Resolution, error) {
				return e.resolver.ResolveFirst(ctx, LabelStrategies(label), label)
			})
		})
}

// ResolveControl finds a control of the given kind by the visible heading or
// question text near it.
func (e *Engine) ResolveControl(ctx context.Context, heading string, kind ControlKind, opts ...CallOption) (*Element, error) {
	intent := fmt.Sprintf("%s %q", kind, heading)
	return e.resolveVisible(ctx, "a visible "+intent, opts,
		func(ctx context.Context) (Resolution, error) {
			return e.resolver.ResolveFirst(ctx, ControlStrategies(heading, kind), intent)
		})
}

// resolveVisible polls resolve until it succeeds. On expiry the last
// resolution failure, usually a *NotFoundError, is kept as the cause.
func (e *Engine) resolveVisible(ctx context.Context, desc string, opts []CallOption, resolve func(ctx context.Context) (Resolution, error)) (*Element, error) {
	var res Resolution
	cond := Predicate(desc, func(ctx context.Context, _ Driver) (bool, error) {
		r, err := resolve(ctx)
		if err != nil {
			return false, err
		}
		res = r
		return true, nil
	})
	if err := e.waiter.Await(ctx, cond, e.options(opts).timeout); err != nil {
		return nil, err
	}
	return e.Locate(res.Locator), nil
}

// Fill resolves the field labeled label and types value into it.
func (e *Engine) Fill(ctx context.Context, label, value string, opts ...CallOption) (*Element, error) {
	el, err := e.ResolveInput(ctx, label, opts...)
	if err != nil {
		return nil, err
	}
	if err := el.Fill(ctx, value, opts...); err != nil {
		return nil, err
	}
	return el, nil
}

// CheckRadio picks answer inside the radio group for question and returns the
// answer as committed.
func (e *Engine) CheckRadio(ctx context.Context, question, answer string, opts ...CallOption) (string, error) {
	group, err := e.ResolveControl(ctx, question, KindRadioGroup, opts...)
	if err != nil {
		return "", err
	}
	scope := group.Locator().All()
	strategies := []Strategy{
		Fixed("label", scope.Locate(Label(answer, true))),
		Fixed("role", scope.Locate(Role("radio", answer, true))),
		Fixed("value", scope.Locate(CSS(fmt.Sprintf("input[type='radio'][value=%q]", answer)))),
		Fixed("text-following", scope.Locate(XPath(fmt.Sprintf(
			".//*[normalize-space(text())=%s]/preceding::input[@type='radio'][1]", xpathLiteral(answer))))),
	}
	res, err := e.resolver.ResolveFirst(ctx, strategies, fmt.Sprintf("answer %q to %q", answer, question))
	if err != nil {
		return "", err
	}
	radio := e.Locate(res.Locator)
	if err := radio.Check(ctx, opts...); err != nil {
		return "", err
	}
	checked, err := radio.IsChecked(ctx)
	if err != nil {
		return "", err
	}
	if !checked {
		return "", &PostConditionError{Intent: fmt.Sprintf("radio %q", question), Expected: answer, Observed: "unchecked"}
	}
	e.logger.Info("Radio answered.", zap.String("question", question), zap.String("answer", answer))
	return answer, nil
}

// SelectOption selects text in the native selection control at dropdown.
// An empty text picks a random real option.
func (e *Engine) SelectOption(ctx context.Context, dropdown Locator, text string, opts ...CallOption) (string, error) {
	sel := e.NativeSelect(dropdown)
	if text == "" {
		return sel.SelectRandom(ctx, opts...)
	}
	return sel.Select(ctx, text, -1, opts...)
}

// SetDate commits date ("DD/MM/YYYY", or today when empty) through the default
// day-grid calendar attached to field.
func (e *Engine) SetDate(ctx context.Context, field Locator, date string, opts ...CallOption) (string, error) {
	return e.GridCalendar(DefaultGridLocators()).SetDate(ctx, field, date, opts...)
}

// SetMonthYear commits month/year through the default month-year picker
// attached to field and returns "MM/YYYY".
func (e *Engine) SetMonthYear(ctx context.Context, field Locator, month, year int, opts ...CallOption) (string, error) {
	return e.MonthYearPicker(DefaultMonthYearLocators()).SetMonthYear(ctx, field, month, year, opts...)
}

// ready waits for loc to be visible.
func (e *Engine) ready(ctx context.Context, loc Locator, co callOptions) error {
	return e.waiter.Await(ctx, Visible(loc), co.timeout)
}

// act waits for loc, applies the slow-motion delay and runs fn.
func (e *Engine) act(ctx context.Context, loc Locator, co callOptions, fn func(context.Context) error) error {
	if err := e.ready(ctx, loc, co); err != nil {
		return err
	}
	if err := sleep(ctx, co.slowMo); err != nil {
		return err
	}
	return fn(ctx)
}

// settle pauses to let the widget re-render before it is sampled again.
func (e *Engine) settle(ctx context.Context) error {
	return sleep(ctx, e.cfg.SettleDelay)
}

// isPlaceholder reports whether label reads like a "please select" prompt.
func (e *Engine) isPlaceholder(label string) bool {
	norm := normalize(label)
	if norm == "" {
		return true
	}
	if _, ok := e.sentinels[strings.ToLower(norm)]; ok {
		return true
	}
	return e.placeholder.MatchString(norm)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
