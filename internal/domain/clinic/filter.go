package clinic

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MonthFilter restricts an aggregation to patients visiting in one calendar
// month.
type MonthFilter struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// Validate rejects months outside 1..12 and years outside 1..9999.
func (f MonthFilter) Validate() error {
	if f.Month < 1 || f.Month > 12 {
		return fmt.Errorf("%w: month %d not in 1..12", ErrInvalidFilter, f.Month)
	}
	if f.Year < 1 || f.Year > 9999 {
		return fmt.Errorf("%w: year %d out of range", ErrInvalidFilter, f.Year)
	}
	return nil
}

// Range returns the half-open interval [first of month, first of next month)
// in loc. December rolls over into January of the next year through
// time.Date normalization.
func (f MonthFilter) Range(loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	start := time.Date(f.Year, time.Month(f.Month), 1, 0, 0, 0, 0, loc)
	end := time.Date(f.Year, time.Month(f.Month)+1, 1, 0, 0, 0, 0, loc)
	return start, end
}

// Contains reports whether t falls inside the month in loc.
func (f MonthFilter) Contains(t time.Time, loc *time.Location) bool {
	start, end := f.Range(loc)
	return !t.Before(start) && t.Before(end)
}

// Label renders the filter as "June 2025".
func (f MonthFilter) Label() string {
	return fmt.Sprintf("%s %d", time.Month(f.Month), f.Year)
}

// ParseMonthFilter builds a filter from raw month/year query values. Both
// empty means no filter. Exactly one present, or a non-numeric value, is
// ErrInvalidFilter.
func ParseMonthFilter(month, year string) (*MonthFilter, error) {
	month, year = strings.TrimSpace(month), strings.TrimSpace(year)
	if month == "" && year == "" {
		return nil, nil
	}
	if month == "" || year == "" {
		return nil, fmt.Errorf("%w: month and year must be given together", ErrInvalidFilter)
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		return nil, fmt.Errorf("%w: month %q is not a number", ErrInvalidFilter, month)
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return nil, fmt.Errorf("%w: year %q is not a number", ErrInvalidFilter, year)
	}
	f := &MonthFilter{Month: m, Year: y}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}
