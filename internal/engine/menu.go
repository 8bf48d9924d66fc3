// internal/engine/menu.go
package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// MenuLocators describe a popup-menu dropdown. Trigger opens the menu; Surface
// matches rendered popups of this kind anywhere in the page and Items selects
// the entries inside one surface.
type MenuLocators struct {
	Trigger Locator
	Surface Locator
	Items   Locator
}

// DefaultMenuLocators covers ARIA listbox and menu popups as rendered by the
// common component libraries.
func DefaultMenuLocators(trigger Locator) MenuLocators {
	return MenuLocators{
		Trigger: trigger,
		Surface: CSS("[role='listbox'], [role='menu']"),
		Items:   CSS("[role='option'], [role='menuitem']"),
	}
}

// PopupMenu drives a non-native dropdown.
type PopupMenu struct {
	eng  *Engine
	locs MenuLocators
}

// PopupMenu returns a chooser for the menu described by locs.
func (e *Engine) PopupMenu(locs MenuLocators) *PopupMenu {
	return &PopupMenu{eng: e, locs: locs}
}

func (*PopupMenu) chooser() {}

// Choose opens the menu, picks the item whose text equals option (falling back
// to the first item containing it), or a random enabled item when option is
// empty, clicks it and waits for the surface to close.
//
// Only the surface this trigger opened is considered: the one its
// aria-controls or aria-owns names, else the last surface that became visible
// after the click. Hidden entries inside it are ignored.
func (m *PopupMenu) Choose(ctx context.Context, option string, opts ...CallOption) (string, error) {
	co := m.eng.options(opts)
	logger := m.eng.logger.With(zap.Stringer("menu", m.locs.Trigger), zap.String("option", option))

	before, err := visibleIndexes(ctx, m.eng.drv, m.locs.Surface)
	if err != nil {
		return "", fmt.Errorf("sampling open menus: %w", err)
	}
	if err := m.eng.act(ctx, m.locs.Trigger, co, func(ctx context.Context) error {
		return m.eng.drv.Click(ctx, m.locs.Trigger)
	}); err != nil {
		return "", fmt.Errorf("opening menu %s: %w", m.locs.Trigger, err)
	}

	surface, err := m.openSurface(ctx, co, before)
	if err != nil {
		return "", err
	}
	logger = logger.With(zap.Stringer("surface", surface))
	items := surface.Locate(m.locs.Items)

	var shown []int
	if err := m.eng.waiter.Await(ctx, Predicate(fmt.Sprintf("a visible item in %s", surface), func(ctx context.Context, drv Driver) (bool, error) {
		var err error
		shown, err = visibleIndexes(ctx, drv, items)
		return len(shown) > 0, err
	}), co.timeout); err != nil {
		return "", err
	}

	all, err := m.eng.drv.Texts(ctx, items)
	if err != nil {
		return "", fmt.Errorf("listing items of %s: %w", surface, err)
	}
	texts := make([]string, 0, len(shown))
	for _, i := range shown {
		if i < len(all) {
			texts = append(texts, all[i])
		}
	}
	shown = shown[:len(texts)]

	var k int
	if option == "" {
		k, err = m.randomEnabled(ctx, items, shown, texts)
	} else {
		k, err = m.match(texts, option)
	}
	if err != nil {
		return "", err
	}

	item := items.Nth(shown[k])
	if err := m.eng.drv.ScrollIntoView(ctx, item); err != nil {
		logger.Debug("Scroll into view failed, clicking anyway.", zap.Error(err))
	}
	if err := m.eng.act(ctx, item, co, func(ctx context.Context) error {
		return m.eng.drv.Click(ctx, item)
	}); err != nil {
		return "", fmt.Errorf("clicking menu item %q: %w", texts[k], err)
	}
	if err := m.eng.waiter.Await(ctx, Hidden(surface), co.timeout); err != nil {
		return "", err
	}

	chosen := normalize(texts[k])
	logger.Info("Menu item chosen.", zap.String("selected", chosen))
	return chosen, nil
}

// openSurface waits for the popup the trigger opened and returns a locator
// pinned to it.
func (m *PopupMenu) openSurface(ctx context.Context, co callOptions, before []int) (Locator, error) {
	if id := m.ownedID(ctx); id != "" {
		owned := CSS(fmt.Sprintf("[id=%s]", cssString(id)))
		if err := m.eng.waiter.Await(ctx, Visible(owned), co.timeout); err != nil {
			return Locator{}, err
		}
		return owned, nil
	}

	wasOpen := make(map[int]bool, len(before))
	for _, i := range before {
		wasOpen[i] = true
	}
	var surface Locator
	cond := Predicate(fmt.Sprintf("a newly opened %s", m.locs.Surface), func(ctx context.Context, drv Driver) (bool, error) {
		shown, err := visibleIndexes(ctx, drv, m.locs.Surface)
		if err != nil {
			return false, err
		}
		// Popups are usually portaled to the end of the body, so the last
		// newly visible surface wins.
		for j := len(shown) - 1; j >= 0; j-- {
			if !wasOpen[shown[j]] {
				surface = m.locs.Surface.Nth(shown[j])
				return true, nil
			}
		}
		return false, nil
	})
	if err := m.eng.waiter.Await(ctx, cond, co.timeout); err != nil {
		return Locator{}, err
	}
	return surface, nil
}

// ownedID returns the first id named by the trigger's aria-controls or
// aria-owns, or "".
func (m *PopupMenu) ownedID(ctx context.Context) string {
	for _, attr := range []string{"aria-controls", "aria-owns"} {
		v, ok, err := m.eng.drv.Attribute(ctx, m.locs.Trigger, attr)
		if err != nil || !ok {
			continue
		}
		if ids := strings.Fields(v); len(ids) > 0 {
			return ids[0]
		}
	}
	return ""
}

func (m *PopupMenu) match(texts []string, option string) (int, error) {
	want := normalize(option)
	for i, t := range texts {
		if normalize(t) == want {
			return i, nil
		}
	}
	lower := strings.ToLower(want)
	for i, t := range texts {
		if strings.Contains(strings.ToLower(normalize(t)), lower) {
			return i, nil
		}
	}
	return 0, &NotFoundError{Intent: fmt.Sprintf("menu item %q", option), Err: fmt.Errorf("%d item(s) rendered", len(texts))}
}

// randomEnabled picks among the shown items, returning a position in texts.
func (m *PopupMenu) randomEnabled(ctx context.Context, items Locator, shown []int, texts []string) (int, error) {
	var candidates []int
	for k, t := range texts {
		if m.eng.isPlaceholder(t) {
			continue
		}
		item := items.Nth(shown[k])
		st, err := m.eng.drv.State(ctx, item)
		if err != nil || !st.Attached || !st.Enabled {
			continue
		}
		if disabled, ok, _ := m.eng.drv.Attribute(ctx, item, "aria-disabled"); ok && disabled == "true" {
			continue
		}
		candidates = append(candidates, k)
	}
	if len(candidates) == 0 {
		return 0, &NotFoundError{Intent: fmt.Sprintf("random item in %s", items), Err: fmt.Errorf("no enabled items")}
	}
	return candidates[m.eng.rng.Intn(len(candidates))], nil
}

// visibleIndexes returns the indexes of the visible matches of loc, scanning
// at most maxVisibilityScan of them.
func visibleIndexes(ctx context.Context, drv Driver, loc Locator) ([]int, error) {
	n, err := drv.Count(ctx, loc)
	if err != nil {
		return nil, err
	}
	if n > maxVisibilityScan {
		n = maxVisibilityScan
	}
	var out []int
	for i := 0; i < n; i++ {
		st, err := drv.State(ctx, loc.Nth(i))
		if err != nil {
			return nil, err
		}
		if st.Attached && st.Visible {
			out = append(out, i)
		}
	}
	return out, nil
}

// cssString quotes s as a CSS string literal.
func cssString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)
	return `"` + r.Replace(s) + `"`
}
