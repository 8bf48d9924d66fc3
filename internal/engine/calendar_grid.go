// internal/engine/calendar_grid.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// GridLocators describe a day-grid calendar popup with separate days, months
// and years views, each with a switch in its header that moves one level up.
type GridLocators struct {
	Popup      Locator
	DaysView   Locator
	MonthsView Locator
	YearsView  Locator

	DaysSwitch   Locator
	MonthsSwitch Locator
	PrevPage     Locator
	NextPage     Locator

	YearCells  Locator
	MonthCells Locator
	// DayCells must exclude the padding cells borrowed from adjacent months.
	DayCells Locator
}

// DefaultGridLocators matches the bootstrap-datepicker markup.
func DefaultGridLocators() GridLocators {
	days := CSS(".datepicker-dropdown .datepicker-days")
	months := CSS(".datepicker-dropdown .datepicker-months")
	years := CSS(".datepicker-dropdown .datepicker-years")
	return GridLocators{
		Popup:        CSS(".datepicker-dropdown"),
		DaysView:     days,
		MonthsView:   months,
		YearsView:    years,
		DaysSwitch:   days.Locate(CSS("th.datepicker-switch")),
		MonthsSwitch: months.Locate(CSS("th.datepicker-switch")),
		PrevPage:     years.Locate(CSS("th.prev")),
		NextPage:     years.Locate(CSS("th.next")),
		YearCells:    years.Locate(CSS("span.year:not(.old):not(.new)")),
		MonthCells:   months.Locate(CSS("span.month")),
		DayCells:     days.Locate(CSS("td.day:not(.old):not(.new)")),
	}
}

// GridCalendar drives a day-grid calendar: up to the years view, page the
// decade window to the target year, then pick year, month and day.
type GridCalendar struct {
	eng  *Engine
	locs GridLocators
}

// GridCalendar returns a picker for the calendar described by locs.
func (e *Engine) GridCalendar(locs GridLocators) *GridCalendar {
	return &GridCalendar{eng: e, locs: locs}
}

func (*GridCalendar) datePicker() {}

// SetDate parses date ("DD/MM/YYYY"; today when blank) and commits it.
// Malformed input fails before the field is touched.
func (g *GridCalendar) SetDate(ctx context.Context, field Locator, date string, opts ...CallOption) (string, error) {
	var (
		d   Date
		err error
	)
	if strings.TrimSpace(date) == "" {
		d = DateOf(g.eng.now())
	} else if d, err = ParseDate(date); err != nil {
		return "", err
	}
	return g.Commit(ctx, field, d, opts...)
}

// Commit navigates the calendar attached to field to d and verifies the field
// reads back d as "DD/MM/YYYY".
func (g *GridCalendar) Commit(ctx context.Context, field Locator, d Date, opts ...CallOption) (string, error) {
	co := g.eng.options(opts)
	nav := &navigation{target: d}
	logger := g.eng.logger.With(zap.Stringer("field", field))

	if err := g.click(ctx, field, co); err != nil {
		return "", fmt.Errorf("opening calendar: %w", err)
	}
	if err := g.eng.waiter.Await(ctx, Visible(g.locs.Popup), co.timeout); err != nil {
		return "", err
	}
	if err := g.showYears(ctx, nav, co); err != nil {
		return "", err
	}

	pager := &gridPager{cal: g, nav: nav, co: co}
	steps, err := PageToYear(ctx, pager, d.Year, RetryBudget{MaxSteps: g.eng.cfg.YearPagingBudget, StepDelay: g.eng.cfg.SettleDelay})
	nav.steps = steps
	if err != nil {
		logger.Warn("Year paging failed.", nav.field(), zap.Error(err))
		return "", err
	}
	logger.Debug("Target year in view.", nav.field())

	if err := g.click(ctx, g.locs.YearCells.HasText(strconv.Itoa(d.Year), true).First(), co); err != nil {
		return "", fmt.Errorf("picking year %d: %w", d.Year, err)
	}
	if err := g.eng.waiter.Await(ctx, Visible(g.locs.MonthsView), co.timeout); err != nil {
		return "", err
	}
	nav.view = ViewMonths

	if err := g.click(ctx, g.locs.MonthCells.HasText(d.MonthAbbrev(), true).First(), co); err != nil {
		return "", fmt.Errorf("picking month %s: %w", d.MonthAbbrev(), err)
	}
	if err := g.eng.waiter.Await(ctx, Visible(g.locs.DaysView), co.timeout); err != nil {
		return "", err
	}
	nav.view = ViewDays

	if err := g.click(ctx, g.locs.DayCells.HasText(strconv.Itoa(d.Day), true).First(), co); err != nil {
		return "", fmt.Errorf("picking day %d: %w", d.Day, err)
	}

	want := d.String()
	if err := verifyValue(ctx, g.eng, field, want); err != nil {
		return "", err
	}
	logger.Info("Date committed.", zap.String("date", want), zap.Int("pages", steps))
	return want, nil
}

// showYears climbs to the years view, clicking the header switch at most twice.
// The popup may still be rendering, so each step first waits for some view to
// show.
func (g *GridCalendar) showYears(ctx context.Context, nav *navigation, co callOptions) error {
	for i := 0; i < 2; i++ {
		view, err := g.awaitView(ctx, co)
		if err != nil {
			return err
		}
		nav.view = view
		if view == ViewYears {
			return nil
		}
		sw := g.locs.DaysSwitch
		if view == ViewMonths {
			sw = g.locs.MonthsSwitch
		}
		if err := g.click(ctx, sw, co); err != nil {
			return fmt.Errorf("switching up from %s view: %w", view, err)
		}
		if err := g.eng.settle(ctx); err != nil {
			return err
		}
	}
	if err := g.eng.waiter.Await(ctx, Visible(g.locs.YearsView), co.timeout); err != nil {
		return err
	}
	nav.view = ViewYears
	return nil
}

// awaitView polls until one of the three views is visible and returns it.
func (g *GridCalendar) awaitView(ctx context.Context, co callOptions) (View, error) {
	view := ViewUnknown
	err := g.eng.waiter.Await(ctx, Predicate(fmt.Sprintf("a view inside %s", g.locs.Popup), func(ctx context.Context, _ Driver) (bool, error) {
		var err error
		view, err = g.currentView(ctx)
		return view != ViewUnknown, err
	}), co.timeout)
	return view, err
}

func (g *GridCalendar) currentView(ctx context.Context) (View, error) {
	for _, v := range []struct {
		view View
		loc  Locator
	}{
		{ViewYears, g.locs.YearsView},
		{ViewMonths, g.locs.MonthsView},
		{ViewDays, g.locs.DaysView},
	} {
		st, err := g.eng.drv.State(ctx, v.loc)
		if err != nil {
			return ViewUnknown, err
		}
		if st.Attached && st.Visible {
			return v.view, nil
		}
	}
	return ViewUnknown, nil
}

func (g *GridCalendar) click(ctx context.Context, loc Locator, co callOptions) error {
	return g.eng.act(ctx, loc, co, func(ctx context.Context) error {
		return g.eng.drv.Click(ctx, loc)
	})
}

// gridPager reads the decade window from the year cells.
type gridPager struct {
	cal *GridCalendar
	nav *navigation
	co  callOptions
}

func (p *gridPager) Observe(ctx context.Context) (YearRange, error) {
	texts, err := p.cal.eng.drv.Texts(ctx, p.cal.locs.YearCells)
	if err != nil {
		return YearRange{}, err
	}
	var r YearRange
	found := false
	for _, t := range texts {
		y, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			continue
		}
		if !found || y < r.Min {
			r.Min = y
		}
		if !found || y > r.Max {
			r.Max = y
		}
		found = true
	}
	if !found {
		return YearRange{}, errors.New("no year cells rendered")
	}
	p.nav.visible = &r
	return r, nil
}

func (p *gridPager) Step(ctx context.Context, dir Direction) error {
	loc := p.cal.locs.PrevPage
	if dir == Forward {
		loc = p.cal.locs.NextPage
	}
	return p.cal.click(ctx, loc, p.co)
}

// verifyValue waits for field to hold want and reports a mismatch as a
// *PostConditionError.
func verifyValue(ctx context.Context, eng *Engine, field Locator, want string) error {
	err := eng.waiter.Await(ctx, ValueEquals(field, want), eng.cfg.PostConditionTimeout)
	if err == nil || !errors.Is(err, ErrTimeout) {
		return err
	}
	st, stateErr := eng.drv.State(ctx, field)
	if stateErr != nil {
		return &PostConditionError{Intent: fmt.Sprintf("commit %s", field), Expected: want, Err: err}
	}
	return &PostConditionError{Intent: fmt.Sprintf("commit %s", field), Expected: want, Observed: st.Value, Err: err}
}
