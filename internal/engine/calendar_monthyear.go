// internal/engine/calendar_monthyear.go
package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
)

// MonthYearLocators describe a month picker: a dialog with a year header,
// previous/next year steppers and one entry per month.
type MonthYearLocators struct {
	Dialog   Locator
	Header   Locator
	PrevYear Locator
	NextYear Locator
	// Option is the preferred, role based, month entry.
	Option func(month time.Month, year int) Locator
	// FallbackOption is a structural lookup for the same entry.
	FallbackOption func(month time.Month, year int) Locator
}

// DefaultMonthYearLocators matches react-datepicker in month picker mode.
func DefaultMonthYearLocators() MonthYearLocators {
	return MonthYearLocators{
		Dialog:   CSS(".react-datepicker"),
		Header:   CSS(".react-datepicker .react-datepicker-year-header"),
		PrevYear: CSS(".react-datepicker button.react-datepicker__navigation--previous"),
		NextYear: CSS(".react-datepicker button.react-datepicker__navigation--next"),
		Option: func(month time.Month, year int) Locator {
			return Role("option", fmt.Sprintf("Choose %s %d", month, year), true)
		},
		FallbackOption: func(month time.Month, year int) Locator {
			return XPath(fmt.Sprintf(
				"//div[contains(concat(' ', normalize-space(@class), ' '), ' react-datepicker__month-text ')]"+
					"[contains(@aria-label, %s) and contains(@aria-label, '%d')]",
				xpathLiteral(month.String()), year))
		},
	}
}

// MonthYearPicker drives a month picker with year steppers.
type MonthYearPicker struct {
	eng  *Engine
	locs MonthYearLocators
}

// MonthYearPicker returns a picker for the widget described by locs.
func (e *Engine) MonthYearPicker(locs MonthYearLocators) *MonthYearPicker {
	return &MonthYearPicker{eng: e, locs: locs}
}

func (*MonthYearPicker) datePicker() {}

// SetMonthYear validates month (1-12) and year and commits them.
func (p *MonthYearPicker) SetMonthYear(ctx context.Context, field Locator, month, year int, opts ...CallOption) (string, error) {
	d, err := NewDate(1, month, year)
	if err != nil {
		return "", err
	}
	return p.Commit(ctx, field, d, opts...)
}

// Commit steps the header year to d.Year, picks d's month and verifies the
// field reads back "MM/YYYY" after losing focus. The day of d is ignored.
func (p *MonthYearPicker) Commit(ctx context.Context, field Locator, d Date, opts ...CallOption) (string, error) {
	co := p.eng.options(opts)
	nav := &navigation{view: ViewMonths, target: d}
	logger := p.eng.logger.With(zap.Stringer("field", field))

	if err := p.click(ctx, field, co); err != nil {
		return "", fmt.Errorf("opening month picker: %w", err)
	}
	if err := p.eng.waiter.Await(ctx, Visible(p.locs.Header), co.timeout); err != nil {
		return "", err
	}

	pager := &headerPager{picker: p, nav: nav, co: co}
	steps, err := PageToYear(ctx, pager, d.Year, RetryBudget{MaxSteps: p.eng.cfg.HeaderStepBudget, StepDelay: p.eng.cfg.SettleDelay})
	nav.steps = steps
	if err != nil {
		logger.Warn("Year stepping failed.", nav.field(), zap.Error(err))
		return "", err
	}

	// The header can bounce after the last step; never accept a near miss.
	r, err := pager.Observe(ctx)
	if err != nil {
		return "", fmt.Errorf("re-reading year header: %w", err)
	}
	if !r.Contains(d.Year) {
		return "", &NavigationBoundsError{Target: d.Year, Last: r, Steps: steps}
	}

	month := time.Month(d.Month)
	strategies := []Strategy{Fixed("role-option", p.locs.Option(month, d.Year))}
	if p.locs.FallbackOption != nil {
		strategies = append(strategies, Fixed("structural", p.locs.FallbackOption(month, d.Year)))
	}
	res, err := p.eng.resolver.ResolveFirst(ctx, strategies, fmt.Sprintf("Choose %s %d", month, d.Year))
	if err != nil {
		return "", err
	}
	if err := p.click(ctx, res.Locator, co); err != nil {
		return "", fmt.Errorf("picking %s %d: %w", month, d.Year, err)
	}
	if err := p.eng.drv.Blur(ctx, field); err != nil {
		logger.Debug("Blur failed.", zap.Error(err))
	}

	want := d.MonthYear()
	if err := verifyValue(ctx, p.eng, field, want); err != nil {
		return "", err
	}
	logger.Info("Month committed.", zap.String("value", want), zap.Int("steps", steps), zap.String("strategy", res.Strategy))
	return want, nil
}

func (p *MonthYearPicker) click(ctx context.Context, loc Locator, co callOptions) error {
	return p.eng.act(ctx, loc, co, func(ctx context.Context) error {
		return p.eng.drv.Click(ctx, loc)
	})
}

// headerPager reads a single year from the header text.
type headerPager struct {
	picker *MonthYearPicker
	nav    *navigation
	co     callOptions
}

func (h *headerPager) Observe(ctx context.Context) (YearRange, error) {
	st, err := h.picker.eng.drv.State(ctx, h.picker.locs.Header)
	if err != nil {
		return YearRange{}, err
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, st.Text)
	year, err := strconv.Atoi(digits)
	if err != nil {
		return YearRange{}, fmt.Errorf("year header %q holds no year", st.Text)
	}
	r := YearRange{Min: year, Max: year}
	h.nav.visible = &r
	return r, nil
}

func (h *headerPager) Step(ctx context.Context, dir Direction) error {
	loc := h.picker.locs.PrevYear
	if dir == Forward {
		loc = h.picker.locs.NextYear
	}
	return h.picker.click(ctx, loc, h.co)
}
