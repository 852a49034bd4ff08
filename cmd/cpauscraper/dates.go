package main

import (
	"fmt"
	"time"

	"github.com/jgoulah/cpauscraper/internal/usage"
)

// parseDate parses a date string in either YYYY-MM-DD format or relative format (e.g., "7d")
func parseDate(dateStr string, now time.Time) (time.Time, error) {
	// Try absolute date format first
	t, err := time.Parse(usage.ISODateLayout, dateStr)
	if err == nil {
		return t, nil
	}

	// Try relative format (e.g., "7d" for 7 days ago)
	if len(dateStr) > 1 && dateStr[len(dateStr)-1] == 'd' {
		daysStr := dateStr[:len(dateStr)-1]
		var days int
		if _, err := fmt.Sscanf(daysStr, "%d", &days); err == nil {
			return usage.Day(now).AddDate(0, 0, -days), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid date format: %s (use YYYY-MM-DD or Nd for N days ago)", dateStr)
}

// parseRange parses START and optional END. A missing END defaults to the
// latest date outside the embargo window. The range is validated before any
// portal activity.
func parseRange(args []string, now time.Time, embargo int) (time.Time, time.Time, error) {
	start, err := parseDate(args[0], now)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing start date: %w", err)
	}

	end := usage.LatestAvailable(usage.Day(now), embargo)
	if len(args) > 1 {
		end, err = parseDate(args[1], now)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing end date: %w", err)
		}
	}

	if err := usage.ValidateRange(start, end, usage.Day(now), embargo); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
