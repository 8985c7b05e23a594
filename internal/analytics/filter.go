package analytics

import (
	"fmt"
	"strings"
	"time"
)

// DefaultView decides what an unbounded filter shows.
type DefaultView string

const (
	ViewAll   DefaultView = "all"
	ViewToday DefaultView = "today"
	ViewMonth DefaultView = "month"
)

// ParseDefaultView accepts "all", "today" or "month"; anything else is an error.
func ParseDefaultView(s string) (DefaultView, error) {
	switch DefaultView(strings.ToLower(strings.TrimSpace(s))) {
	case ViewAll, "":
		return ViewAll, nil
	case ViewToday:
		return ViewToday, nil
	case ViewMonth:
		return ViewMonth, nil
	default:
		return "", fmt.Errorf("unknown default view %q", s)
	}
}

// DateRange is an inclusive day range. A nil bound is unbounded on that side.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// Unbounded reports whether neither side is set.
func (r DateRange) Unbounded() bool {
	return r.Start == nil && r.End == nil
}

// Contains reports whether day falls inside the range. Comparison is by calendar day.
func (r DateRange) Contains(day time.Time) bool {
	d := Day(day)
	if r.Start != nil && d.Before(Day(*r.Start)) {
		return false
	}
	if r.End != nil && d.After(Day(*r.End)) {
		return false
	}
	return true
}

// Filter selects a display subset of a trade set.
type Filter struct {
	Range       DateRange
	ClientName  string
	Today       bool
	Month       bool
	DefaultView DefaultView
}

// FilterResult is the subset plus its recomputed subtotal.
type FilterResult struct {
	Trades   []TradeRecord `json:"trades"`
	Subtotal float64       `json:"subtotal"`
	Count    int           `json:"count"`
}

// effectiveRange resolves the Today and Month quick filters and the default
// view against now. Today wins over Month; both override explicit bounds.
func (f Filter) effectiveRange(now time.Time) DateRange {
	unbounded := f.Range.Unbounded()
	switch {
	case f.Today || (unbounded && !f.Month && f.DefaultView == ViewToday):
		today := Day(now)
		return DateRange{Start: &today, End: &today}
	case f.Month || (unbounded && f.DefaultView == ViewMonth):
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		last := first.AddDate(0, 1, -1)
		return DateRange{Start: &first, End: &last}
	}
	return f.Range
}

// Apply returns the records matching f, in their original order.
// Records without a usable date are dropped whenever any date bound applies.
func (f Filter) Apply(trades []TradeRecord, now time.Time) FilterResult {
	rng := f.effectiveRange(now)
	needle := strings.ToLower(strings.TrimSpace(f.ClientName))

	out := make([]TradeRecord, 0, len(trades))
	for _, t := range trades {
		if !rng.Unbounded() {
			if !t.HasDate() || !rng.Contains(t.Date) {
				continue
			}
		}
		if needle != "" && !strings.Contains(strings.ToLower(t.ClientName), needle) {
			continue
		}
		out = append(out, t)
	}

	return FilterResult{
		Trades:   out,
		Subtotal: round2(SumProfit(out)),
		Count:    len(out),
	}
}
