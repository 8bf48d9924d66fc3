// internal/engine/driver.go
package engine

import (
	"context"
	"time"
)

// ElementState is a snapshot of one node, taken at query time.
// A Locator that matches nothing yields Attached == false and no error.
type ElementState struct {
	Attached bool   `json:"attached"`
	Visible  bool   `json:"visible"`
	Enabled  bool   `json:"enabled"`
	Editable bool   `json:"editable"`
	Checked  bool   `json:"checked"`
	Tag      string `json:"tag"`
	Text     string `json:"text"`
	Value    string `json:"value"`
}

// Option is one entry of a native selection control.
type Option struct {
	Index    int    `json:"index"`
	Label    string `json:"label"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled"`
	Selected bool   `json:"selected"`
}

// Driver is the automation boundary: the minimal set of primitives the engine
// needs from the remote document. Every call re-resolves its Locator. Queries
// address the first match unless the Locator carries an index; Texts covers
// every match.
//
// The browser session provides the production implementation over CDP.
type Driver interface {
	Count(ctx context.Context, loc Locator) (int, error)
	State(ctx context.Context, loc Locator) (ElementState, error)
	Attribute(ctx context.Context, loc Locator, name string) (string, bool, error)
	Texts(ctx context.Context, loc Locator) ([]string, error)

	Click(ctx context.Context, loc Locator) error
	Fill(ctx context.Context, loc Locator, value string) error
	Check(ctx context.Context, loc Locator) error
	ScrollIntoView(ctx context.Context, loc Locator) error
	Blur(ctx context.Context, loc Locator) error

	// SelectOptionByLabel is the conventional selection path. It fails when the
	// control is disabled, read-only, hidden, covered, or lacks the label.
	SelectOptionByLabel(ctx context.Context, loc Locator, label string) error
	Options(ctx context.Context, loc Locator) ([]Option, error)
	// SetSelectedIndex mutates the control directly and dispatches exactly one
	// "input" and one "change" event.
	SetSelectedIndex(ctx context.Context, loc Locator, index int) error

	Evaluate(ctx context.Context, script string, out interface{}) error
	WaitNetworkIdle(ctx context.Context, quiet time.Duration) error
}
