// internal/engine/element.go
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Element is a handle to whatever node its Locator matches at call time.
// Queries read a fresh snapshot; actions wait for visibility, apply the
// slow-motion delay, then act.
type Element struct {
	loc Locator
	eng *Engine
}

func (el *Element) Locator() Locator { return el.loc }
func (el *Element) String() string   { return el.loc.String() }

// Locate scopes child under this element.
func (el *Element) Locate(child Locator) *Element {
	return el.eng.Locate(el.loc.Locate(child))
}

// State returns a fresh snapshot of the node.
func (el *Element) State(ctx context.Context) (ElementState, error) {
	return el.eng.drv.State(ctx, el.loc)
}

func (el *Element) IsVisible(ctx context.Context) (bool, error) {
	st, err := el.State(ctx)
	return st.Attached && st.Visible, err
}

func (el *Element) IsEnabled(ctx context.Context) (bool, error) {
	st, err := el.State(ctx)
	return st.Attached && st.Enabled, err
}

func (el *Element) IsChecked(ctx context.Context) (bool, error) {
	st, err := el.State(ctx)
	return st.Attached && st.Checked, err
}

// Text returns the normalized text of the node. A detached node is an error.
func (el *Element) Text(ctx context.Context) (string, error) {
	st, err := el.attachedState(ctx)
	return st.Text, err
}

// Value returns the current form value of the node.
func (el *Element) Value(ctx context.Context) (string, error) {
	st, err := el.attachedState(ctx)
	return st.Value, err
}

func (el *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	return el.eng.drv.Attribute(ctx, el.loc, name)
}

func (el *Element) Count(ctx context.Context) (int, error) {
	return el.eng.drv.Count(ctx, el.loc)
}

func (el *Element) Click(ctx context.Context, opts ...CallOption) error {
	return el.eng.act(ctx, el.loc, el.eng.options(opts), func(ctx context.Context) error {
		el.eng.logger.Debug("Click.", zap.Stringer("locator", el.loc))
		return el.eng.drv.Click(ctx, el.loc)
	})
}

func (el *Element) Fill(ctx context.Context, value string, opts ...CallOption) error {
	return el.eng.act(ctx, el.loc, el.eng.options(opts), func(ctx context.Context) error {
		el.eng.logger.Debug("Fill.", zap.Stringer("locator", el.loc), zap.Int("length", len(value)))
		return el.eng.drv.Fill(ctx, el.loc, value)
	})
}

// Check ticks a checkbox or radio. Already checked nodes are left alone.
func (el *Element) Check(ctx context.Context, opts ...CallOption) error {
	return el.eng.act(ctx, el.loc, el.eng.options(opts), func(ctx context.Context) error {
		return el.eng.drv.Check(ctx, el.loc)
	})
}

func (el *Element) ScrollIntoView(ctx context.Context) error {
	return el.eng.drv.ScrollIntoView(ctx, el.loc)
}

func (el *Element) Blur(ctx context.Context) error {
	return el.eng.drv.Blur(ctx, el.loc)
}

// Select runs the native selection fallback chain against this element.
func (el *Element) Select(ctx context.Context, text string, opts ...CallOption) (string, error) {
	return el.eng.NativeSelect(el.loc).Select(ctx, text, -1, opts...)
}

func (el *Element) attachedState(ctx context.Context) (ElementState, error) {
	st, err := el.State(ctx)
	if err != nil {
		return st, err
	}
	if !st.Attached {
		return st, &NotFoundError{Intent: el.loc.String(), Err: fmt.Errorf("node is not attached")}
	}
	return st, nil
}
