// internal/engine/enginetest/widgets.go
package enginetest

import (
	"fmt"
	"strconv"
	"time"

	"github.com/xkilldash9x/formpilot/internal/engine"
)

// GridCalendar simulates a day-grid calendar popup on a FakeDriver. It starts
// closed on the days view of Year/Month; clicking the field opens it.
type GridCalendar struct {
	Locs  engine.GridLocators
	Field engine.Locator

	Open        bool
	View        engine.View
	DecadeStart int
	Year        int
	Month       int
	// Frozen makes the paging controls do nothing.
	Frozen bool

	f       *FakeDriver
	dynamic []engine.Locator
}

// NewGridCalendar wires a simulated calendar for field, showing start's month.
func NewGridCalendar(f *FakeDriver, field engine.Locator, locs engine.GridLocators, start time.Time) *GridCalendar {
	g := &GridCalendar{
		Locs:        locs,
		Field:       field,
		View:        engine.ViewDays,
		Year:        start.Year(),
		Month:       int(start.Month()),
		DecadeStart: start.Year() - start.Year()%10,
		f:           f,
	}
	f.Set(field, &Node{Tag: "input", OnClick: func(f *FakeDriver, _ int) {
		g.Open = true
		g.View = engine.ViewDays
		g.Sync()
	}})
	g.Sync()
	return g
}

// Value is the field's current value.
func (g *GridCalendar) Value() string {
	if n := g.f.Node(g.Field); n != nil {
		return n.Value
	}
	return ""
}

// PaddingCell addresses a greyed out cell of an adjacent month on the days view.
func (g *GridCalendar) PaddingCell(day int) engine.Locator {
	return g.Locs.DaysView.Locate(engine.CSS("td.day.new")).HasText(strconv.Itoa(day), true)
}

// Sync re-renders the simulated markup from the current state.
func (g *GridCalendar) Sync() {
	for _, loc := range g.dynamic {
		g.f.Remove(loc)
	}
	g.dynamic = g.dynamic[:0]

	days := g.Open && g.View == engine.ViewDays
	months := g.Open && g.View == engine.ViewMonths
	years := g.Open && g.View == engine.ViewYears

	g.set(g.Locs.Popup, &Node{Hidden: !g.Open})
	g.set(g.Locs.DaysView, &Node{Hidden: !days})
	g.set(g.Locs.MonthsView, &Node{Hidden: !months})
	g.set(g.Locs.YearsView, &Node{Hidden: !years})

	g.set(g.Locs.DaysSwitch, &Node{Hidden: !days, OnClick: g.to(engine.ViewMonths)})
	g.set(g.Locs.MonthsSwitch, &Node{Hidden: !months, OnClick: g.to(engine.ViewYears)})
	g.set(g.Locs.PrevPage, &Node{Hidden: !years, OnClick: g.page(-10)})
	g.set(g.Locs.NextPage, &Node{Hidden: !years, OnClick: g.page(10)})

	yearTexts := make([]string, 10)
	for i := range yearTexts {
		y := g.DecadeStart + i
		yearTexts[i] = strconv.Itoa(y)
		g.set(g.Locs.YearCells.HasText(yearTexts[i], true), &Node{Hidden: !years, Text: yearTexts[i], OnClick: func(f *FakeDriver, _ int) {
			g.Year = y
			g.View = engine.ViewMonths
			g.Sync()
		}})
	}
	g.set(g.Locs.YearCells, &Node{Hidden: !years, Texts: yearTexts})

	monthTexts := make([]string, 12)
	for i := range monthTexts {
		m := i + 1
		monthTexts[i] = time.Month(m).String()[:3]
		g.set(g.Locs.MonthCells.HasText(monthTexts[i], true), &Node{Hidden: !months, Text: monthTexts[i], OnClick: func(f *FakeDriver, _ int) {
			g.Month = m
			g.View = engine.ViewDays
			g.Sync()
		}})
	}
	g.set(g.Locs.MonthCells, &Node{Hidden: !months, Texts: monthTexts})

	n := engine.DaysIn(g.Month, g.Year)
	dayTexts := make([]string, n)
	for i := range dayTexts {
		d := i + 1
		dayTexts[i] = strconv.Itoa(d)
		g.set(g.Locs.DayCells.HasText(dayTexts[i], true), &Node{Hidden: !days, Text: dayTexts[i], OnClick: g.pick(d, g.Month, g.Year)})
	}
	g.set(g.Locs.DayCells, &Node{Hidden: !days, Texts: dayTexts})

	// The next month's leading days pad the grid and carry the same numbers.
	next := time.Date(g.Year, time.Month(g.Month)+1, 1, 0, 0, 0, 0, time.UTC)
	for d := 1; d <= 31; d++ {
		g.set(g.PaddingCell(d), &Node{Hidden: !days, Text: strconv.Itoa(d), OnClick: g.pick(d, int(next.Month()), next.Year())})
	}
}

func (g *GridCalendar) set(loc engine.Locator, n *Node) {
	g.f.Set(loc, n)
	g.dynamic = append(g.dynamic, loc)
}

func (g *GridCalendar) to(v engine.View) func(*FakeDriver, int) {
	return func(*FakeDriver, int) {
		g.View = v
		g.Sync()
	}
}

func (g *GridCalendar) page(delta int) func(*FakeDriver, int) {
	return func(*FakeDriver, int) {
		if !g.Frozen {
			g.DecadeStart += delta
		}
		g.Sync()
	}
}

func (g *GridCalendar) pick(day, month, year int) func(*FakeDriver, int) {
	return func(f *FakeDriver, _ int) {
		f.Update(g.Field, func(n *Node) {
			n.Value = fmt.Sprintf("%02d/%02d/%04d", day, month, year)
		})
		g.Open = false
		g.Sync()
	}
}

// MonthYearPicker simulates a month picker with a year header and steppers.
// Picking a month stages the value; the field commits it when it loses focus.
type MonthYearPicker struct {
	Locs  engine.MonthYearLocators
	Field engine.Locator

	Open bool
	Year int
	// Frozen makes the steppers do nothing.
	Frozen bool
	// StructuralOnly renders month entries without the role based names.
	StructuralOnly bool

	f       *FakeDriver
	pending string
	dynamic []engine.Locator
}

// NewMonthYearPicker wires a simulated month picker for field, opening on year.
func NewMonthYearPicker(f *FakeDriver, field engine.Locator, locs engine.MonthYearLocators, year int) *MonthYearPicker {
	p := &MonthYearPicker{Locs: locs, Field: field, Year: year, f: f}
	f.Set(field, &Node{
		Tag: "input",
		OnClick: func(*FakeDriver, int) {
			p.Open = true
			p.Sync()
		},
		OnBlur: func(f *FakeDriver) {
			if p.pending == "" {
				return
			}
			f.Update(field, func(n *Node) { n.Value = p.pending })
		},
	})
	p.Sync()
	return p
}

// Value is the field's current value.
func (p *MonthYearPicker) Value() string {
	if n := p.f.Node(p.Field); n != nil {
		return n.Value
	}
	return ""
}

// Sync re-renders the simulated markup from the current state.
func (p *MonthYearPicker) Sync() {
	for _, loc := range p.dynamic {
		p.f.Remove(loc)
	}
	p.dynamic = p.dynamic[:0]

	p.set(p.Locs.Dialog, &Node{Hidden: !p.Open})
	p.set(p.Locs.Header, &Node{Hidden: !p.Open, Text: strconv.Itoa(p.Year)})
	p.set(p.Locs.PrevYear, &Node{Hidden: !p.Open, Attrs: map[string]string{"aria-label": "Previous Year"}, OnClick: p.step(-1)})
	p.set(p.Locs.NextYear, &Node{Hidden: !p.Open, Attrs: map[string]string{"aria-label": "Next Year"}, OnClick: p.step(1)})

	for m := time.January; m <= time.December; m++ {
		loc := p.Locs.Option(m, p.Year)
		if p.StructuralOnly {
			loc = p.Locs.FallbackOption(m, p.Year)
		}
		value := fmt.Sprintf("%02d/%04d", int(m), p.Year)
		p.set(loc, &Node{Hidden: !p.Open, Text: m.String()[:3], OnClick: func(*FakeDriver, int) {
			p.pending = value
			p.Open = false
			p.Sync()
		}})
	}
}

func (p *MonthYearPicker) set(loc engine.Locator, n *Node) {
	p.f.Set(loc, n)
	p.dynamic = append(p.dynamic, loc)
}

func (p *MonthYearPicker) step(delta int) func(*FakeDriver, int) {
	return func(*FakeDriver, int) {
		if !p.Frozen {
			p.Year += delta
		}
		p.Sync()
	}
}
