// Package usage holds the portal-independent parts of usage retrieval:
// request range validation, chunk planning and record normalization.
package usage

import (
	"fmt"
	"strings"
	"time"
)

// DefaultEmbargoDays is how far behind today the portal's data is final.
const DefaultEmbargoDays = 2

// DailyWindowDays is the span of one daily LoadUsage call, ending at its anchor.
const DailyWindowDays = 30

// Portal date layouts
const (
	PortalDateLayout = "01/02/06"
	PortalTimeLayout = "15:04"
	ISODateLayout    = "2006-01-02"
)

// ValidationError reports a caller-supplied date range the portal cannot serve.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Day truncates t to its calendar date, expressed at midnight UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// LatestAvailable returns the most recent date the portal is expected to
// have finalized data for.
func LatestAvailable(today time.Time, embargoDays int) time.Time {
	return Day(today).AddDate(0, 0, -embargoDays)
}

// ValidateRange checks start/end ordering and the embargo window. Both
// checks run before any network activity.
func ValidateRange(start, end, today time.Time, embargoDays int) error {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return &ValidationError{Message: fmt.Sprintf("end date (%s) must be on or after start date (%s)",
			end.Format(ISODateLayout), start.Format(ISODateLayout))}
	}

	latest := LatestAvailable(today, embargoDays)
	if end.After(latest) {
		return &ValidationError{Message: fmt.Sprintf("end date (%s) cannot be later than %d days ago (%s)",
			end.Format(ISODateLayout), embargoDays, latest.Format(ISODateLayout))}
	}
	return nil
}

// DaysInRange counts the calendar days in [start, end].
func DaysInRange(start, end time.Time) int {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}

// Days lists every calendar day in [start, end] in ascending order.
func Days(start, end time.Time) []time.Time {
	start, end = Day(start), Day(end)
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// DailyAnchors plans the anchor dates for daily LoadUsage calls. The first
// anchor is end; each following anchor steps back DailyWindowDays until the
// anchor falls before start.
func DailyAnchors(start, end time.Time) []time.Time {
	start, end = Day(start), Day(end)
	var anchors []time.Time
	for anchor := end; !anchor.Before(start); anchor = anchor.AddDate(0, 0, -DailyWindowDays) {
		anchors = append(anchors, anchor)
	}
	return anchors
}

// InRange reports whether d falls in [start, end], comparing calendar dates.
func InRange(d, start, end time.Time) bool {
	d = Day(d)
	return !d.Before(Day(start)) && !d.After(Day(end))
}

// Overlaps reports whether the billing period [periodStart, periodEnd]
// shares at least one day with [start, end]. Both boundaries are inclusive.
func Overlaps(periodStart, periodEnd, start, end time.Time) bool {
	return !Day(periodEnd).Before(Day(start)) && !Day(periodStart).After(Day(end))
}

// ParseBillPeriod parses the portal's "MM/DD/YY to MM/DD/YY" label.
func ParseBillPeriod(label string) (time.Time, time.Time, error) {
	from, to, ok := strings.Cut(label, " to ")
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid billing period %q", label)
	}
	ps, err := time.Parse(PortalDateLayout, strings.TrimSpace(from))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid billing period start %q: %w", from, err)
	}
	pe, err := time.Parse(PortalDateLayout, strings.TrimSpace(to))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid billing period end %q: %w", to, err)
	}
	return ps, pe, nil
}

// FormatPortalDate formats a date the way LoadUsage expects strDate.
func FormatPortalDate(d time.Time) string {
	return d.Format(PortalDateLayout)
}
