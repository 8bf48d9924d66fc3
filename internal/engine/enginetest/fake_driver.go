// internal/engine/enginetest/fake_driver.go
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/formpilot/internal/engine"
)

// Node is a programmable stand-in for whatever a Locator matches. A Node
// registered under a locator answers for every index of that locator; Count
// and Texts describe how many matches there are.
type Node struct {
	// Count overrides the match count. Zero means len(Texts), or 1 when Texts is empty.
	Count  int
	Hidden bool
	// HiddenAt hides individual matches by index.
	HiddenAt map[int]bool
	Disabled bool
	ReadOnly bool
	Checked  bool
	Tag      string
	Text     string
	// Texts gives per-match text when the locator matches several nodes.
	Texts   []string
	Value   string
	Attrs   map[string]string
	Options []engine.Option

	// SelectErr makes the conventional selection path fail.
	SelectErr error
	// ClickErr makes clicks fail.
	ClickErr error

	// OnClick runs after a successful click on match index.
	OnClick func(f *FakeDriver, index int)
	// OnBlur runs after the node loses focus.
	OnBlur func(f *FakeDriver)
}

func (n *Node) count() int {
	switch {
	case n.Count > 0:
		return n.Count
	case len(n.Texts) > 0:
		return len(n.Texts)
	default:
		return 1
	}
}

func (n *Node) text(i int) string {
	if i < len(n.Texts) {
		return n.Texts[i]
	}
	return n.Text
}

// Call is one recorded driver invocation.
type Call struct {
	Op      string
	Locator string
	Arg     string
}

// FakeDriver is an in-memory engine.Driver. Nodes are keyed by the locator's
// string form with any index stripped, so the engine and the test can build
// locators independently as long as they build them the same way.
type FakeDriver struct {
	mu       sync.Mutex
	nodes    map[string]*Node
	calls    []Call
	events   map[string][]string
	countErr map[string]error

	// EvaluateFunc answers Evaluate. Nil makes Evaluate fail.
	EvaluateFunc func(script string, out interface{}) error
	// NetworkIdleErr is returned by WaitNetworkIdle.
	NetworkIdleErr error
}

// New creates an empty FakeDriver.
func New() *FakeDriver {
	return &FakeDriver{
		nodes:    make(map[string]*Node),
		events:   make(map[string][]string),
		countErr: make(map[string]error),
	}
}

var _ engine.Driver = (*FakeDriver)(nil)

func key(loc engine.Locator) string { return loc.All().String() }

// Set registers n under loc, replacing any previous node.
func (f *FakeDriver) Set(loc engine.Locator, n *Node) *Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[key(loc)] = n
	return n
}

// Remove detaches whatever is registered under loc.
func (f *FakeDriver) Remove(loc engine.Locator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.nodes, key(loc))
}

// Node returns the node registered under loc, or nil.
func (f *FakeDriver) Node(loc engine.Locator) *Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodes[key(loc)]
}

// Update runs fn on the node under loc while holding the driver lock.
func (f *FakeDriver) Update(loc engine.Locator, fn func(n *Node)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := f.nodes[key(loc)]; n != nil {
		fn(n)
	}
}

// FailCount makes Count on loc return err.
func (f *FakeDriver) FailCount(loc engine.Locator, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countErr[key(loc)] = err
}

// Calls returns a copy of the call log.
func (f *FakeDriver) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns the logged calls for op, optionally restricted to loc.
func (f *FakeDriver) CallsOf(op string, loc *engine.Locator) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op != op {
			continue
		}
		if loc != nil && c.Locator != loc.String() {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Events returns the DOM events dispatched on loc, in order.
func (f *FakeDriver) Events(loc engine.Locator) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events[key(loc)]...)
}

func (f *FakeDriver) record(op string, loc engine.Locator, arg string) {
	f.calls = append(f.calls, Call{Op: op, Locator: loc.String(), Arg: arg})
}

// lookup returns the node and match index loc addresses. The lock must be held.
func (f *FakeDriver) lookup(loc engine.Locator) (*Node, int, bool) {
	n := f.nodes[key(loc)]
	if n == nil {
		return nil, 0, false
	}
	idx, _ := loc.Index()
	if idx >= n.count() {
		return nil, 0, false
	}
	return n, idx, true
}

func (f *FakeDriver) Count(ctx context.Context, loc engine.Locator) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("count", loc, "")
	if err := f.countErr[key(loc)]; err != nil {
		return 0, err
	}
	n := f.nodes[key(loc)]
	if n == nil {
		return 0, nil
	}
	if idx, ok := loc.Index(); ok {
		if idx < n.count() {
			return 1, nil
		}
		return 0, nil
	}
	return n.count(), nil
}

func (f *FakeDriver) State(ctx context.Context, loc engine.Locator) (engine.ElementState, error) {
	if err := ctx.Err(); err != nil {
		return engine.ElementState{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, idx, ok := f.lookup(loc)
	if !ok {
		return engine.ElementState{}, nil
	}
	return engine.ElementState{
		Attached: true,
		Visible:  !n.Hidden && !n.HiddenAt[idx],
		Enabled:  !n.Disabled,
		Editable: !n.Disabled && !n.ReadOnly,
		Checked:  n.Checked,
		Tag:      n.Tag,
		Text:     n.text(idx),
		Value:    n.Value,
	}, nil
}

func (f *FakeDriver) Attribute(ctx context.Context, loc engine.Locator, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _, ok := f.lookup(loc)
	if !ok {
		return "", false, notFound(loc)
	}
	v, found := n.Attrs[name]
	return v, found, nil
}

func (f *FakeDriver) Texts(ctx context.Context, loc engine.Locator) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.nodes[key(loc)]
	if n == nil {
		return nil, nil
	}
	if idx, ok := loc.Index(); ok {
		if idx >= n.count() {
			return nil, nil
		}
		return []string{n.text(idx)}, nil
	}
	out := make([]string, n.count())
	for i := range out {
		out[i] = n.text(i)
	}
	return out, nil
}

func (f *FakeDriver) Click(ctx context.Context, loc engine.Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	n, idx, ok := f.lookup(loc)
	if !ok {
		f.mu.Unlock()
		return notFound(loc)
	}
	if n.Hidden {
		f.mu.Unlock()
		return fmt.Errorf("%s is not visible", loc)
	}
	if n.ClickErr != nil {
		f.mu.Unlock()
		return n.ClickErr
	}
	f.record("click", loc, "")
	hook := n.OnClick
	f.mu.Unlock()

	if hook != nil {
		hook(f, idx)
	}
	return nil
}

func (f *FakeDriver) Fill(ctx context.Context, loc engine.Locator, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _, ok := f.lookup(loc)
	if !ok {
		return notFound(loc)
	}
	if n.Disabled || n.ReadOnly {
		return fmt.Errorf("%s is not editable", loc)
	}
	f.record("fill", loc, value)
	n.Value = value
	f.events[key(loc)] = append(f.events[key(loc)], "input", "change")
	return nil
}

func (f *FakeDriver) Check(ctx context.Context, loc engine.Locator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _, ok := f.lookup(loc)
	if !ok {
		return notFound(loc)
	}
	if n.Disabled {
		return fmt.Errorf("%s is disabled", loc)
	}
	f.record("check", loc, "")
	if !n.Checked {
		n.Checked = true
		f.events[key(loc)] = append(f.events[key(loc)], "click", "change")
	}
	return nil
}

func (f *FakeDriver) ScrollIntoView(ctx context.Context, loc engine.Locator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, _, ok := f.lookup(loc); !ok {
		return notFound(loc)
	}
	f.record("scroll", loc, "")
	return nil
}

func (f *FakeDriver) Blur(ctx context.Context, loc engine.Locator) error {
	f.mu.Lock()
	n, _, ok := f.lookup(loc)
	if !ok {
		f.mu.Unlock()
		return notFound(loc)
	}
	f.record("blur", loc, "")
	hook := n.OnBlur
	f.mu.Unlock()

	if hook != nil {
		hook(f)
	}
	return nil
}

func (f *FakeDriver) SelectOptionByLabel(ctx context.Context, loc engine.Locator, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("select-label", loc, label)
	n, _, ok := f.lookup(loc)
	if !ok {
		return notFound(loc)
	}
	if n.SelectErr != nil {
		return n.SelectErr
	}
	if n.Disabled || n.Hidden {
		return fmt.Errorf("%s is not actionable", loc)
	}
	for i, o := range n.Options {
		if strings.TrimSpace(o.Label) == strings.TrimSpace(label) {
			f.selectIndex(loc, n, i)
			return nil
		}
	}
	return fmt.Errorf("no option labeled %q in %s", label, loc)
}

func (f *FakeDriver) Options(ctx context.Context, loc engine.Locator) ([]engine.Option, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _, ok := f.lookup(loc)
	if !ok {
		return nil, notFound(loc)
	}
	return append([]engine.Option(nil), n.Options...), nil
}

func (f *FakeDriver) SetSelectedIndex(ctx context.Context, loc engine.Locator, index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("set-index", loc, fmt.Sprint(index))
	n, _, ok := f.lookup(loc)
	if !ok {
		return notFound(loc)
	}
	if index < 0 || index >= len(n.Options) {
		return fmt.Errorf("index %d out of range for %s", index, loc)
	}
	f.selectIndex(loc, n, index)
	return nil
}

// selectIndex marks option i selected and dispatches input and change. The
// lock must be held.
func (f *FakeDriver) selectIndex(loc engine.Locator, n *Node, i int) {
	for j := range n.Options {
		n.Options[j].Selected = j == i
	}
	n.Value = n.Options[i].Value
	f.events[key(loc)] = append(f.events[key(loc)], "input", "change")
}

func (f *FakeDriver) Evaluate(ctx context.Context, script string, out interface{}) error {
	if f.EvaluateFunc == nil {
		return errors.New("evaluate is not supported by this fake")
	}
	return f.EvaluateFunc(script, out)
}

func (f *FakeDriver) WaitNetworkIdle(ctx context.Context, quiet time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.NetworkIdleErr
}

// Options builds an option list from labels. Values are the labels, lower case.
func Options(labels ...string) []engine.Option {
	out := make([]engine.Option, len(labels))
	for i, l := range labels {
		out[i] = engine.Option{Index: i, Label: l, Value: strings.ToLower(l)}
	}
	return out
}

func notFound(loc engine.Locator) error {
	return &engine.NotFoundError{Intent: loc.String()}
}
