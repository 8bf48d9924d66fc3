// internal/engine/dropdown_test.go
package engine_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/formpilot/internal/engine"
	"github.com/xkilldash9x/formpilot/internal/engine/enginetest"
)

var country = engine.CSS("select#country")

func newCountrySelect(f *enginetest.FakeDriver) *enginetest.Node {
	opts := enginetest.Options("Please select", "France", "Germany", "United Kingdom")
	opts[0].Selected = true
	return f.Set(country, &enginetest.Node{Tag: "select", Options: opts})
}

func selectedLabel(t *testing.T, f *enginetest.FakeDriver, loc engine.Locator) string {
	t.Helper()
	opts, err := f.Options(context.Background(), loc)
	require.NoError(t, err)
	for _, o := range opts {
		if o.Selected {
			return o.Label
		}
	}
	return ""
}

// misreportingDriver reports a fixed selection no matter what was set.
type misreportingDriver struct {
	*enginetest.FakeDriver
	report string
}

func (d *misreportingDriver) Options(ctx context.Context, loc engine.Locator) ([]engine.Option, error) {
	opts, err := d.FakeDriver.Options(ctx, loc)
	for i := range opts {
		opts[i].Selected = opts[i].Label == d.report
	}
	return opts, err
}

func TestSelect_ConventionalPath(t *testing.T) {
	f := enginetest.New()
	newCountrySelect(f)
	eng := newEngine(t, f)

	got, err := eng.SelectOption(context.Background(), country, "Germany")
	require.NoError(t, err)
	assert.Equal(t, "Germany", got)
	assert.Equal(t, "Germany", selectedLabel(t, f, country))
	assert.Empty(t, f.CallsOf("set-index", nil), "no fallback when the conventional path works")
}

func TestSelect_FallbackMutatesOnce(t *testing.T) {
	f := enginetest.New()
	newCountrySelect(f).SelectErr = errors.New("element is not editable")
	eng := newEngine(t, f)

	got, err := eng.SelectOption(context.Background(), country, "United Kingdom")
	require.NoError(t, err)
	assert.Equal(t, "United Kingdom", got)
	assert.Equal(t, "United Kingdom", selectedLabel(t, f, country))

	if diff := cmp.Diff([]string{"input", "change"}, f.Events(country)); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}
	setIndex := f.CallsOf("set-index", nil)
	require.Len(t, setIndex, 1)
	assert.Equal(t, "3", setIndex[0].Arg)
}

func TestSelect_FallbackNormalizesText(t *testing.T) {
	f := enginetest.New()
	newCountrySelect(f).SelectErr = errors.New("covered by overlay")
	eng := newEngine(t, f)

	got, err := eng.SelectOption(context.Background(), country, "  united   KINGDOM ")
	require.NoError(t, err)
	assert.Equal(t, "United Kingdom", got, "the option's own label is returned")
}

func TestSelect_FallbackIndexSkipsPlaceholder(t *testing.T) {
	f := enginetest.New()
	newCountrySelect(f).SelectErr = errors.New("read-only")
	eng := newEngine(t, f)

	got, err := eng.NativeSelect(country).Select(context.Background(), "Narnia", 1)
	require.NoError(t, err)
	assert.Equal(t, "Germany", got)
}

func TestSelect_NoMatchNoFallback(t *testing.T) {
	f := enginetest.New()
	newCountrySelect(f)
	eng := newEngine(t, f)

	_, err := eng.SelectOption(context.Background(), country, "Narnia")
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrNotFound))
	assert.Contains(t, err.Error(), "Narnia")

	_, err = eng.NativeSelect(country).Select(context.Background(), "Narnia", 10)
	assert.True(t, errors.Is(err, engine.ErrNotFound), "an out of range fallback index is not a match")
}

func TestSelect_Idempotent(t *testing.T) {
	f := enginetest.New()
	newCountrySelect(f)
	eng := newEngine(t, f)
	ctx := context.Background()

	first, err := eng.SelectOption(ctx, country, "France")
	require.NoError(t, err)
	second, err := eng.SelectOption(ctx, country, "France")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "France", selectedLabel(t, f, country))
}

func TestSelect_PostCondition(t *testing.T) {
	tests := []struct {
		name    string
		report  string
		wantErr bool
	}{
		{name: "empty read-back is trusted after retry", report: ""},
		{name: "placeholder read-back is trusted after retry", report: "Please select"},
		{name: "sentinel read-back is trusted after retry", report: "Select Address"},
		{name: "a different real option is a mismatch", report: "Germany", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := enginetest.New()
			node := newCountrySelect(f)
			node.Options = append(node.Options, engine.Option{Index: 4, Label: "Select Address"})
			drv := &misreportingDriver{FakeDriver: f, report: tt.report}
			eng := newEngine(t, drv)

			got, err := eng.SelectOption(context.Background(), country, "France")
			assert.Len(t, f.CallsOf("select-label", nil), 2, "a suspect read-back gets exactly one retry")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, engine.ErrPostCondition))
				var pc *engine.PostConditionError
				require.ErrorAs(t, err, &pc)
				assert.Equal(t, "France", pc.Expected)
				assert.Equal(t, "Germany", pc.Observed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "France", got)
		})
	}
}

func TestSelectRandom_SkipsPlaceholders(t *testing.T) {
	f := enginetest.New()
	opts := enginetest.Options("Please select...", "", "Select Address", "Red", "Green", "Blue")
	opts = append(opts, engine.Option{Index: 6, Label: "Retired", Disabled: true})
	f.Set(country, &enginetest.Node{Tag: "select", Options: opts})
	eng := newEngine(t, f, engine.WithRand(rand.New(rand.NewSource(7))))

	seen := map[string]int{}
	for i := 0; i < 60; i++ {
		got, err := eng.SelectOption(context.Background(), country, "")
		require.NoError(t, err)
		seen[got]++
	}
	for label := range seen {
		assert.Contains(t, []string{"Red", "Green", "Blue"}, label)
	}
	assert.Len(t, seen, 3, "every real option should come up over 60 picks")
}

func TestSelectRandom_NothingSelectable(t *testing.T) {
	f := enginetest.New()
	f.Set(country, &enginetest.Node{Tag: "select", Options: enginetest.Options("Please select", " ")})
	eng := newEngine(t, f)

	_, err := eng.SelectOption(context.Background(), country, "")
	assert.True(t, errors.Is(err, engine.ErrNotFound))
}

func TestNativeSelectIsAChooser(t *testing.T) {
	f := enginetest.New()
	newCountrySelect(f)
	eng := newEngine(t, f)

	var c engine.Chooser = eng.NativeSelect(country)
	got, err := c.Choose(context.Background(), "France")
	require.NoError(t, err)
	assert.Equal(t, "France", got)
}

// -- Popup menu --

type titleMenu struct {
	locs   engine.MenuLocators
	chosen string
}

func newTitleMenu(f *enginetest.FakeDriver, items ...string) *titleMenu {
	m := &titleMenu{locs: engine.DefaultMenuLocators(engine.CSS("#title"))}
	surface := m.locs.Surface.Nth(0)
	entries := surface.Locate(m.locs.Items)
	f.Set(m.locs.Surface, &enginetest.Node{Hidden: true})
	f.Set(m.locs.Trigger, &enginetest.Node{OnClick: func(f *enginetest.FakeDriver, _ int) {
		f.Update(surface, func(n *enginetest.Node) { n.Hidden = false })
		f.Set(entries, &enginetest.Node{Texts: items, OnClick: func(f *enginetest.FakeDriver, i int) {
			m.chosen = items[i]
			f.Update(surface, func(n *enginetest.Node) { n.Hidden = true })
			f.Remove(entries)
		}})
	}})
	return m
}

// newTitleMenuBesideNav renders an always-open navigation menu first in the
// document and the title popup, hidden until its trigger is clicked, second.
// The popup also carries a pre-rendered hidden entry.
func newTitleMenuBesideNav(f *enginetest.FakeDriver, triggerAttrs map[string]string) *titleMenu {
	m := &titleMenu{locs: engine.DefaultMenuLocators(engine.CSS("#title"))}
	nav := m.locs.Surface.Nth(0)
	popup := m.locs.Surface.Nth(1)
	if triggerAttrs != nil {
		popup = engine.CSS(`[id="title-menu"]`)
		f.Set(popup, &enginetest.Node{Hidden: true})
	}
	entries := popup.Locate(m.locs.Items)

	f.Set(m.locs.Surface, &enginetest.Node{Count: 2, HiddenAt: map[int]bool{1: true}})
	navItems := []string{"Home", "Doctors", "Mr Blog"}
	f.Set(nav.Locate(m.locs.Items), &enginetest.Node{Texts: navItems, OnClick: func(f *enginetest.FakeDriver, i int) {
		m.chosen = "nav:" + navItems[i]
	}})

	setOpen := func(open bool) {
		if triggerAttrs != nil {
			f.Update(popup, func(n *enginetest.Node) { n.Hidden = !open })
			return
		}
		f.Update(m.locs.Surface, func(n *enginetest.Node) { n.HiddenAt = map[int]bool{1: !open} })
	}
	titles := []string{"Mr", "Retired", "Doctor"}
	f.Set(entries, &enginetest.Node{Texts: titles, HiddenAt: map[int]bool{1: true}, OnClick: func(f *enginetest.FakeDriver, i int) {
		m.chosen = titles[i]
		setOpen(false)
	}})
	f.Set(m.locs.Trigger, &enginetest.Node{Attrs: triggerAttrs, OnClick: func(f *enginetest.FakeDriver, _ int) {
		setOpen(true)
	}})
	return m
}

func TestPopupMenu_Choose(t *testing.T) {
	tests := []struct {
		option string
		want   string
	}{
		{option: "Mrs", want: "Mrs"},
		{option: "Mr", want: "Mr"},
		{option: "doc", want: "Doctor"},
	}
	for _, tt := range tests {
		t.Run(tt.option, func(t *testing.T) {
			f := enginetest.New()
			m := newTitleMenu(f, "Mrs", "Mr", "Ms", "Doctor")
			eng := newEngine(t, f)

			got, err := eng.PopupMenu(m.locs).Choose(context.Background(), tt.option)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, m.chosen)
			assert.Len(t, f.CallsOf("scroll", nil), 1, "the item is scrolled into view before the click")

			st, err := f.State(context.Background(), m.locs.Surface)
			require.NoError(t, err)
			assert.False(t, st.Visible, "the menu surface is closed on return")
		})
	}
}

func TestPopupMenu_Random(t *testing.T) {
	f := enginetest.New()
	m := newTitleMenu(f, "Please select", "Mr", "Ms")
	eng := newEngine(t, f, engine.WithRand(rand.New(rand.NewSource(1))))

	var c engine.Chooser = eng.PopupMenu(m.locs)
	got, err := c.Choose(context.Background(), "")
	require.NoError(t, err)
	assert.Contains(t, []string{"Mr", "Ms"}, got)
	assert.Equal(t, got, m.chosen)
}

func TestPopupMenu_Missing(t *testing.T) {
	f := enginetest.New()
	m := newTitleMenu(f, "Mr", "Ms")
	eng := newEngine(t, f)

	_, err := eng.PopupMenu(m.locs).Choose(context.Background(), "Professor")
	assert.True(t, errors.Is(err, engine.ErrNotFound))
	assert.Empty(t, m.chosen)
}

func TestPopupMenu_IgnoresOtherOpenMenus(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]string
	}{
		{name: "newly opened surface"},
		{name: "aria-controls", attrs: map[string]string{"aria-controls": "title-menu"}},
		{name: "aria-owns", attrs: map[string]string{"aria-owns": "title-menu other"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := enginetest.New()
			m := newTitleMenuBesideNav(f, tt.attrs)
			eng := newEngine(t, f)

			got, err := eng.PopupMenu(m.locs).Choose(context.Background(), "doc")
			require.NoError(t, err)
			assert.Equal(t, "Doctor", got, "items of the navigation menu are never matched")
			assert.Equal(t, "Doctor", m.chosen)
		})
	}
}

func TestPopupMenu_SkipsHiddenItems(t *testing.T) {
	f := enginetest.New()
	m := newTitleMenuBesideNav(f, nil)
	eng := newEngine(t, f)

	_, err := eng.PopupMenu(m.locs).Choose(context.Background(), "Retired")
	assert.True(t, errors.Is(err, engine.ErrNotFound), "a pre-rendered hidden entry is not offered")
	assert.Empty(t, m.chosen)
}

func TestPopupMenu_RandomStaysInsideSurface(t *testing.T) {
	for seed := int64(0); seed < 5; seed++ {
		f := enginetest.New()
		m := newTitleMenuBesideNav(f, nil)
		eng := newEngine(t, f, engine.WithRand(rand.New(rand.NewSource(seed))))

		got, err := eng.PopupMenu(m.locs).Choose(context.Background(), "")
		require.NoError(t, err)
		assert.Contains(t, []string{"Mr", "Doctor"}, got)
		assert.Equal(t, got, m.chosen)
	}
}
