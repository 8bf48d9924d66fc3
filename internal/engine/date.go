// internal/engine/date.go
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	MinYear = 1900
	MaxYear = 3000
)

var dateShape = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`)

// Date is a validated calendar day. The zero value is not valid; build one
// with NewDate or ParseDate.
type Date struct {
	Day   int
	Month int // 1-12
	Year  int
}

// NewDate validates the triple. Out of range parts are rejected here so
// navigation never starts on a date the widget cannot show.
func NewDate(day, month, year int) (Date, error) {
	raw := fmt.Sprintf("%02d/%02d/%04d", day, month, year)
	if year < MinYear || year > MaxYear {
		return Date{}, &ValidationError{Field: "date", Value: raw, Reason: fmt.Sprintf("year must be within [%d, %d]", MinYear, MaxYear)}
	}
	if month < 1 || month > 12 {
		return Date{}, &ValidationError{Field: "date", Value: raw, Reason: "month must be within [1, 12]"}
	}
	if days := DaysIn(month, year); day < 1 || day > days {
		return Date{}, &ValidationError{Field: "date", Value: raw, Reason: fmt.Sprintf("day must be within [1, %d] for %s %d", days, time.Month(month), year)}
	}
	return Date{Day: day, Month: month, Year: year}, nil
}

// ParseDate accepts exactly "DD/MM/YYYY".
func ParseDate(s string) (Date, error) {
	m := dateShape.FindStringSubmatch(s)
	if m == nil {
		return Date{}, &ValidationError{Field: "date", Value: s, Reason: "expected DD/MM/YYYY"}
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	return NewDate(day, month, year)
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	return Date{Day: t.Day(), Month: int(t.Month()), Year: t.Year()}
}

// DaysIn returns the number of days in month of year.
func DaysIn(month, year int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// String formats the date as "DD/MM/YYYY".
func (d Date) String() string {
	return fmt.Sprintf("%02d/%02d/%04d", d.Day, d.Month, d.Year)
}

// MonthYear formats the date as "MM/YYYY".
func (d Date) MonthYear() string {
	return fmt.Sprintf("%02d/%04d", d.Month, d.Year)
}

// MonthName is the English month name, e.g. "February".
func (d Date) MonthName() string { return time.Month(d.Month).String() }

// MonthAbbrev is the three letter month name, e.g. "Feb".
func (d Date) MonthAbbrev() string { return d.MonthName()[:3] }
