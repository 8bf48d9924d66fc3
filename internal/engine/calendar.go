// internal/engine/calendar.go
package engine

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DatePicker is the common capability of the calendar widget shapes the engine
// drives. Commit opens the picker attached to field, navigates to d and
// returns the committed value in the picker's own format. The set of
// implementations is closed: GridCalendar and MonthYearPicker.
type DatePicker interface {
	Commit(ctx context.Context, field Locator, d Date, opts ...CallOption) (string, error)
	datePicker()
}

// View is the page a grid calendar currently shows.
type View int

const (
	ViewUnknown View = iota
	ViewDays
	ViewMonths
	ViewYears
)

func (v View) String() string {
	switch v {
	case ViewDays:
		return "days"
	case ViewMonths:
		return "months"
	case ViewYears:
		return "years"
	default:
		return "unknown"
	}
}

// navigation is the per-call state of a calendar run. It lives for one Commit
// and is only used for logging.
type navigation struct {
	view    View
	visible *YearRange
	target  Date
	steps   int
}

func (n *navigation) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("view", n.view.String())
	enc.AddString("target", n.target.String())
	if n.visible != nil {
		enc.AddString("visible", n.visible.String())
	}
	enc.AddInt("steps", n.steps)
	return nil
}

func (n *navigation) field() zap.Field { return zap.Object("navigation", n) }
