// internal/engine/resolver_test.go
package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/formpilot/internal/engine"
	"github.com/xkilldash9x/formpilot/internal/engine/enginetest"
)

// spy wraps a locator in a strategy that counts how often it was asked.
type spy struct {
	name  string
	loc   engine.Locator
	err   error
	calls int
}

func (s *spy) strategy() engine.Strategy {
	return engine.Strategy{Name: s.name, Locate: func(context.Context) (engine.Locator, error) {
		s.calls++
		return s.loc, s.err
	}}
}

func strategies(spies ...*spy) []engine.Strategy {
	out := make([]engine.Strategy, len(spies))
	for i, s := range spies {
		out[i] = s.strategy()
	}
	return out
}

func TestResolveFirst_FirstSuccessWins(t *testing.T) {
	f := enginetest.New()
	f.Set(engine.Label("Email", true), &enginetest.Node{Tag: "input"})
	f.Set(engine.Placeholder("Email", false), &enginetest.Node{Tag: "input"})
	eng := newEngine(t, f)

	missing := &spy{name: "missing", loc: engine.CSS("#nope")}
	label := &spy{name: "label", loc: engine.Label("Email", true)}
	placeholder := &spy{name: "placeholder", loc: engine.Placeholder("Email", false)}

	res, err := eng.ResolveFirst(context.Background(), strategies(missing, label, placeholder), "Email")
	require.NoError(t, err)

	assert.Equal(t, "label", res.Strategy)
	assert.Equal(t, engine.Label("Email", true).First().String(), res.Locator.String())
	assert.Equal(t, 1, res.Matches)
	assert.Equal(t, 1, missing.calls)
	assert.Equal(t, 1, label.calls)
	assert.Equal(t, 0, placeholder.calls, "strategies after the first match must never run")
}

func TestResolveFirst_SwallowsStrategyFailures(t *testing.T) {
	f := enginetest.New()
	broken := engine.CSS("input[")
	f.FailCount(broken, errors.New("SyntaxError: not a valid selector"))
	f.Set(engine.CSS("#email"), &enginetest.Node{})
	eng := newEngine(t, f)

	producerErr := &spy{name: "producer-error", err: errors.New("missing attribute")}
	lookupErr := &spy{name: "lookup-error", loc: broken}
	ok := &spy{name: "css", loc: engine.CSS("#email")}

	res, err := eng.ResolveFirst(context.Background(), strategies(producerErr, lookupErr, ok), "Email")
	require.NoError(t, err)
	assert.Equal(t, "css", res.Strategy)
	assert.Equal(t, 1, producerErr.calls)
	assert.Equal(t, 1, lookupErr.calls)
}

func TestResolveFirst_NotFoundCarriesIntent(t *testing.T) {
	eng := newEngine(t, enginetest.New())
	a := &spy{name: "a", loc: engine.CSS("#a")}
	b := &spy{name: "b", err: errors.New("boom")}

	_, err := eng.ResolveFirst(context.Background(), strategies(a, b), "Date of birth")
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrNotFound))

	var nf *engine.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Date of birth", nf.Intent)
	assert.Equal(t, []string{"a", "b"}, nf.Tried)
	assert.Contains(t, err.Error(), "Date of birth")
}

func TestResolveFirst_StopsOnCancellation(t *testing.T) {
	eng := newEngine(t, enginetest.New())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &spy{name: "never", loc: engine.CSS("#a")}
	_, err := eng.ResolveFirst(ctx, strategies(s), "anything")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.calls)
}

func TestResolveFirst_WarnsOnAmbiguity(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f := enginetest.New()
	f.Set(engine.Label("Name", false), &enginetest.Node{Count: 3})
	eng := newEngineWithLogger(t, f, zap.New(core))

	res, err := eng.ResolveFirst(context.Background(),
		[]engine.Strategy{engine.Fixed("loose", engine.Label("Name", false))}, "Name")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Matches)
	idx, ok := res.Locator.Index()
	assert.True(t, ok)
	assert.Equal(t, 0, idx, "the first of several matches is taken")

	warnings := logs.FilterMessageSnippet("several nodes").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, int64(3), warnings[0].ContextMap()["matches"])
}

func TestLabelStrategiesOrder(t *testing.T) {
	var names []string
	for _, s := range engine.LabelStrategies("Email") {
		names = append(names, s.Name)
	}
	want := []string{"accessible-name-exact", "accessible-name-loose", "sibling-structure", "attribute-pattern", "placeholder"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("label strategy order mismatch (-want +got):\n%s", diff)
	}
}

func TestAttributePatternStrategy(t *testing.T) {
	ctx := context.Background()
	pattern := engine.LabelStrategies("First name")[3]

	loc, err := pattern.Locate(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.ByCSS, loc.Kind())
	for _, want := range []string{
		`input:not([type='hidden'])[name*="firstname" i]`,
		`input:not([type='hidden'])[id*="first_name" i]`,
		`select[name*="first-name" i]`,
		`textarea[id*="firstname" i]`,
	} {
		assert.Contains(t, loc.Query(), want)
	}

	_, err = engine.LabelStrategies("* ?")[3].Locate(ctx)
	assert.Error(t, err, "captions without letters or digits cannot form a pattern")
}

func TestResolveInput_EachStrategyShape(t *testing.T) {
	ctx := context.Background()
	strategyLoc := func(label string, i int) engine.Locator {
		loc, err := engine.LabelStrategies(label)[i].Locate(ctx)
		require.NoError(t, err)
		return loc
	}

	tests := []struct {
		name     string
		register engine.Locator
		// lookups is the number of strategies that must have been counted.
		lookups int
	}{
		{"exact accessible name", strategyLoc("Email", 0), 1},
		{"loose accessible name", strategyLoc("Email", 1), 2},
		{"sibling structure", strategyLoc("Email", 2), 3},
		{"attribute pattern", strategyLoc("Email", 3), 4},
		{"placeholder", strategyLoc("Email", 4), 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := enginetest.New()
			f.Set(tt.register, &enginetest.Node{Tag: "input"})
			eng := newEngine(t, f)

			el, err := eng.ResolveInput(ctx, "Email")
			require.NoError(t, err)
			assert.Equal(t, tt.register.First().String(), el.Locator().String())

			var counted []string
			for _, c := range f.CallsOf("count", nil) {
				counted = append(counted, c.Locator)
			}
			assert.Len(t, counted, tt.lookups)
		})
	}
}

func TestResolveInput_WaitsForVisibility(t *testing.T) {
	f := enginetest.New()
	f.Set(engine.Label("Email", true), &enginetest.Node{Hidden: true})
	eng := newEngine(t, f)

	_, err := eng.ResolveInput(context.Background(), "Email")
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrTimeout), "a hidden match must not be handed back")
}

func TestResolveInput_HiddenMatchFallsThrough(t *testing.T) {
	f := enginetest.New()
	f.Set(engine.Label("Email", true), &enginetest.Node{Tag: "input", Hidden: true})
	f.Set(engine.Placeholder("Email", false), &enginetest.Node{Tag: "input"})
	eng := newEngine(t, f)

	res, err := eng.ResolveFirst(context.Background(), engine.LabelStrategies("Email"), "Email")
	require.NoError(t, err)
	assert.Equal(t, "placeholder", res.Strategy)

	el, err := eng.ResolveInput(context.Background(), "Email")
	require.NoError(t, err)
	assert.Equal(t, engine.Placeholder("Email", false).First().String(), el.Locator().String())
}

func TestResolveFirst_TakesFirstVisibleMatch(t *testing.T) {
	f := enginetest.New()
	f.Set(engine.Label("Name", false), &enginetest.Node{Count: 3, HiddenAt: map[int]bool{0: true}})
	eng := newEngine(t, f)

	res, err := eng.ResolveFirst(context.Background(),
		[]engine.Strategy{engine.Fixed("loose", engine.Label("Name", false))}, "Name")
	require.NoError(t, err)

	idx, ok := res.Locator.Index()
	require.True(t, ok)
	assert.Equal(t, 1, idx, "the hidden first match is skipped")
	assert.Equal(t, 3, res.Matches)
}

func TestResolveFirst_AllHiddenIsNotFound(t *testing.T) {
	f := enginetest.New()
	f.Set(engine.CSS("#email"), &enginetest.Node{Count: 2, Hidden: true})
	eng := newEngine(t, f)

	_, err := eng.ResolveFirst(context.Background(),
		[]engine.Strategy{engine.Fixed("css", engine.CSS("#email"))}, "Email")
	assert.True(t, errors.Is(err, engine.ErrNotFound))
}

func TestResolveInput_WaitsForFieldToAppear(t *testing.T) {
	f := enginetest.New()
	f.Set(engine.Label("Email", true), &enginetest.Node{Tag: "input", Hidden: true})
	eng := newEngine(t, f)

	go func() {
		time.Sleep(20 * time.Millisecond)
		f.Update(engine.Label("Email", true), func(n *enginetest.Node) { n.Hidden = false })
	}()

	el, err := eng.ResolveInput(context.Background(), "Email", engine.WithTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, engine.Label("Email", true).First().String(), el.Locator().String())
}

func TestResolveInputAny(t *testing.T) {
	f := enginetest.New()
	f.Set(engine.Placeholder("Mobile number", false), &enginetest.Node{Tag: "input"})
	eng := newEngine(t, f)

	el, err := eng.ResolveInputAny(context.Background(), []string{"Telephone", "Mobile number"}, engine.WithTimeout(0))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(el.Locator().String(), "placeholder=Mobile number"))

	_, err = eng.ResolveInputAny(context.Background(), []string{"Fax", "Pager"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrNotFound))
	assert.Contains(t, err.Error(), "Pager", "the last failure is surfaced")
}

func TestTryMany(t *testing.T) {
	ctx := context.Background()
	var attempted []string

	got, err := engine.TryMany(ctx, []string{"a", "b", "c"}, "letters", func(_ context.Context, s string) (string, error) {
		attempted = append(attempted, s)
		if s == "b" {
			return strings.ToUpper(s), nil
		}
		return "", errors.New("no " + s)
	})
	require.NoError(t, err)
	assert.Equal(t, "B", got)
	assert.Equal(t, []string{"a", "b"}, attempted)

	sentinel := errors.New("last")
	_, err = engine.TryMany(ctx, []int{1, 2}, "numbers", func(_ context.Context, i int) (int, error) {
		if i == 2 {
			return 0, sentinel
		}
		return 0, errors.New("first")
	})
	assert.ErrorIs(t, err, sentinel)

	_, err = engine.TryMany(ctx, nil, "nothing", func(context.Context, int) (int, error) { return 0, nil })
	assert.True(t, errors.Is(err, engine.ErrNotFound))
}
