// internal/browser/session/driver.go
package session

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/engine"
)

//go:embed resolver.js
var resolverScript string

// tagAttr must match TAG_ATTR in resolver.js.
const tagAttr = "data-formpilot-id"

// untagTimeout bounds the cleanup call made after an action, which runs even
// when the caller's context has already ended.
const untagTimeout = 5 * time.Second

// resolverExpr evaluates to the page's resolver object, installing it on first use.
// A navigation discards window, so the next call reinstalls it.
var resolverExpr = "(window.__formpilot || (window.__formpilot = " + strings.TrimSpace(resolverScript) + "\n))"

// Driver implements engine.Driver on top of a CDP session.
//
// Queries run through the in-page resolver so that every call re-resolves the
// locator against the live document. Input actions tag the resolved node with
// a one-off attribute and hand the resulting CSS selector to chromedp, which
// then dispatches trusted mouse and keyboard events.
type Driver struct {
	exec    ActionExecutor
	monitor *NetworkMonitor
	logger  *zap.Logger
}

var _ engine.Driver = (*Driver)(nil)

// NewDriver creates a driver. monitor may be nil, in which case network idle
// waits fail immediately.
func NewDriver(exec ActionExecutor, monitor *NetworkMonitor, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{exec: exec, monitor: monitor, logger: logger.Named("cdp_driver")}
}

// resolverCall builds the expression invoking method on the in-page resolver.
func resolverCall(method string, args ...interface{}) (string, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode arguments for %s: %w", method, err)
	}
	return fmt.Sprintf("%s.%s.apply(null, %s)", resolverExpr, method, payload), nil
}

func (d *Driver) call(ctx context.Context, out interface{}, method string, args ...interface{}) error {
	expr, err := resolverCall(method, args...)
	if err != nil {
		return err
	}
	var raw []byte
	if err := d.exec.RunActions(ctx, chromedp.Evaluate(expr, &raw)); err != nil {
		return fmt.Errorf("resolver %s: %w", method, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode resolver %s result: %w", method, err)
	}
	return nil
}

// onTarget tags the node loc resolves to and runs the actions built for its
// selector. The tag is removed afterwards.
func (d *Driver) onTarget(ctx context.Context, loc engine.Locator, build func(sel string) chromedp.Action) error {
	token := uuid.New().String()
	var found bool
	if err := d.call(ctx, &found, "tag", loc, token); err != nil {
		return err
	}
	if !found {
		return &engine.NotFoundError{Intent: loc.String()}
	}
	defer d.untag(ctx, token)

	sel := fmt.Sprintf(`[%s="%s"]`, tagAttr, token)
	return d.exec.RunActions(ctx, build(sel))
}

// untag removes the tag set by onTarget. It runs in the background so a
// canceled or expired ctx does not leave the attribute behind.
func (d *Driver) untag(ctx context.Context, token string) {
	expr, err := resolverCall("untag", token)
	if err != nil {
		d.logger.Debug("Failed to encode untag call.", zap.String("token", token), zap.Error(err))
		return
	}
	err = d.exec.RunBackgroundActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		c, cancel := context.WithTimeout(c, untagTimeout)
		defer cancel()
		var removed bool
		return chromedp.Evaluate(expr, &removed).Do(c)
	}))
	if err != nil {
		d.logger.Debug("Failed to remove element tag.", zap.String("token", token), zap.Error(err))
	}
}

func (d *Driver) Count(ctx context.Context, loc engine.Locator) (int, error) {
	var n int
	err := d.call(ctx, &n, "count", loc)
	return n, err
}

func (d *Driver) State(ctx context.Context, loc engine.Locator) (engine.ElementState, error) {
	var st engine.ElementState
	err := d.call(ctx, &st, "state", loc)
	return st, err
}

func (d *Driver) Attribute(ctx context.Context, loc engine.Locator, name string) (string, bool, error) {
	var res struct {
		OK    bool   `json:"ok"`
		Value string `json:"value"`
	}
	if err := d.call(ctx, &res, "attr", loc, name); err != nil {
		return "", false, err
	}
	return res.Value, res.OK, nil
}

func (d *Driver) Texts(ctx context.Context, loc engine.Locator) ([]string, error) {
	var texts []string
	err := d.call(ctx, &texts, "texts", loc)
	return texts, err
}

func (d *Driver) Click(ctx context.Context, loc engine.Locator) error {
	return d.onTarget(ctx, loc, func(sel string) chromedp.Action {
		return chromedp.Click(sel, chromedp.ByQuery)
	})
}

// Fill replaces the control's value by typing, so key handlers and input masks see every character.
func (d *Driver) Fill(ctx context.Context, loc engine.Locator, value string) error {
	if err := d.call(ctx, nil, "clear", loc); err != nil {
		return err
	}
	return d.onTarget(ctx, loc, func(sel string) chromedp.Action {
		return chromedp.Tasks{
			chromedp.Focus(sel, chromedp.ByQuery),
			chromedp.SendKeys(sel, value, chromedp.ByQuery),
		}
	})
}

// Check clicks the control unless it already reports checked.
func (d *Driver) Check(ctx context.Context, loc engine.Locator) error {
	st, err := d.State(ctx, loc)
	if err != nil {
		return err
	}
	if !st.Attached {
		return &engine.NotFoundError{Intent: loc.String()}
	}
	if st.Checked {
		return nil
	}
	if err := d.Click(ctx, loc); err != nil {
		return err
	}
	if st, err = d.State(ctx, loc); err != nil {
		return err
	}
	if !st.Checked {
		return errors.New("control did not become checked after click")
	}
	return nil
}

func (d *Driver) ScrollIntoView(ctx context.Context, loc engine.Locator) error {
	return d.onTarget(ctx, loc, func(sel string) chromedp.Action {
		return chromedp.ScrollIntoView(sel, chromedp.ByQuery)
	})
}

func (d *Driver) Blur(ctx context.Context, loc engine.Locator) error {
	var found bool
	if err := d.call(ctx, &found, "blur", loc); err != nil {
		return err
	}
	if !found {
		return &engine.NotFoundError{Intent: loc.String()}
	}
	return nil
}

func (d *Driver) SelectOptionByLabel(ctx context.Context, loc engine.Locator, label string) error {
	return d.call(ctx, nil, "selectByLabel", loc, label)
}

func (d *Driver) Options(ctx context.Context, loc engine.Locator) ([]engine.Option, error) {
	var opts []engine.Option
	err := d.call(ctx, &opts, "options", loc)
	return opts, err
}

func (d *Driver) SetSelectedIndex(ctx context.Context, loc engine.Locator, index int) error {
	return d.call(ctx, nil, "setSelectedIndex", loc, index)
}

// Evaluate runs an arbitrary expression and decodes its value into out.
func (d *Driver) Evaluate(ctx context.Context, script string, out interface{}) error {
	return d.exec.RunActions(ctx, chromedp.Evaluate(script, out))
}

func (d *Driver) WaitNetworkIdle(ctx context.Context, quiet time.Duration) error {
	if d.monitor == nil {
		return errors.New("network monitoring is not enabled for this session")
	}
	return d.monitor.WaitNetworkIdle(ctx, quiet)
}
