package models

import (
	"fmt"
	"strings"
	"time"
)

// Interval is the granularity of a usage query
type Interval string

const (
	Monthly       Interval = "monthly"
	Daily         Interval = "daily"
	Hourly        Interval = "hourly"
	FifteenMinute Interval = "15min"
)

// Intervals lists every supported interval in display order
var Intervals = []Interval{Monthly, Daily, Hourly, FifteenMinute}

// ParseInterval converts a CLI/config string into an Interval
func ParseInterval(s string) (Interval, error) {
	switch Interval(strings.ToLower(strings.TrimSpace(s))) {
	case Monthly:
		return Monthly, nil
	case Daily:
		return Daily, nil
	case Hourly:
		return Hourly, nil
	case FifteenMinute, "sub-hourly", "15-minute":
		return FifteenMinute, nil
	}
	return "", fmt.Errorf("unknown interval: %s (available: monthly, daily, hourly, 15min)", s)
}

// SubDaily reports whether records of this interval carry a time of day
func (i Interval) SubDaily() bool {
	return i == Hourly || i == FifteenMinute
}

func (i Interval) String() string {
	return string(i)
}

// MeterKind is the meter class the portal filters meter listings by
type MeterKind string

const (
	Electric MeterKind = "E"
	Water    MeterKind = "W"
)

// Quantity returns the column suffix used for this meter's quantities
func (k MeterKind) Quantity() string {
	if k == Water {
		return "volume"
	}
	return "kwh"
}

func (k MeterKind) String() string {
	switch k {
	case Electric:
		return "electric"
	case Water:
		return "water"
	}
	return string(k)
}

// UsageRecord is one normalized time bucket of usage
type UsageRecord struct {
	ID            int       `json:"id,omitempty"`
	MeterNumber   string    `json:"meter_number,omitempty"`
	Kind          MeterKind `json:"kind,omitempty"`
	Interval      Interval  `json:"interval"`
	Date          time.Time `json:"date"`                     // Day at midnight UTC, or day + time of day for sub-daily
	BillingPeriod string    `json:"billing_period,omitempty"` // Monthly only
	Import        float64   `json:"import"`
	Export        float64   `json:"export"`
	Net           float64   `json:"net"`
}

// DateString formats the record date the way the CSV output expects
func (r UsageRecord) DateString() string {
	if r.Interval.SubDaily() {
		return r.Date.Format("2006-01-02T15:04:05")
	}
	return r.Date.Format("2006-01-02")
}
