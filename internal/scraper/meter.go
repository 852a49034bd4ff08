package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jgoulah/cpauscraper/internal/logger"
	"github.com/jgoulah/cpauscraper/internal/usage"
	"github.com/jgoulah/cpauscraper/pkg/models"
)

// Meter is one active utility meter bound to the session that listed it
type Meter struct {
	Number       string
	Kind         models.MeterKind
	Address      string
	RateCategory string
	Status       int

	session *Session
}

// meterDetail is one entry of BindMultiMeter's MeterDetails. Older portal
// builds prefix Address and Status with "Meter".
type meterDetail struct {
	MeterNumber     flexString     `json:"MeterNumber"`
	MeterType       string         `json:"MeterType"`
	Address         string         `json:"Address"`
	MeterAddress    string         `json:"MeterAddress"`
	MeterAttribute2 string         `json:"MeterAttribute2"`
	Status          *models.Number `json:"Status"`
	MeterStatus     *models.Number `json:"MeterStatus"`
}

func (d meterDetail) status() int {
	switch {
	case d.Status != nil:
		return d.Status.Int()
	case d.MeterStatus != nil:
		return d.MeterStatus.Int()
	}
	return 0
}

// ListActiveMeters lists the account's meters of the given kind, keeping
// only those whose status flag is active.
func ListActiveMeters(ctx context.Context, s *Session, kind models.MeterKind) ([]Meter, error) {
	inner, err := s.call(ctx, "BindMultiMeter", map[string]string{"MeterType": string(kind)})
	if err != nil {
		return nil, err
	}

	var list struct {
		MeterDetails []meterDetail `json:"MeterDetails"`
	}
	if err := json.Unmarshal(inner, &list); err != nil {
		return nil, &APIError{Endpoint: "BindMultiMeter", Message: "failed to parse meter list", Err: err}
	}

	var meters []Meter
	for _, d := range list.MeterDetails {
		if d.status() != 1 {
			continue
		}
		address := d.Address
		if address == "" {
			address = d.MeterAddress
		}
		meterKind := kind
		if d.MeterType != "" {
			meterKind = models.MeterKind(strings.ToUpper(d.MeterType))
		}
		meters = append(meters, Meter{
			Number:       string(d.MeterNumber),
			Kind:         meterKind,
			Address:      address,
			RateCategory: d.MeterAttribute2,
			Status:       d.status(),
			session:      s,
		})
	}

	logger.SessionLog.Debugf("found %d active %s meters", len(meters), kind)
	return meters, nil
}

// GetMeter returns the active meter with number, or the first active meter
// when number is empty.
func GetMeter(ctx context.Context, s *Session, kind models.MeterKind, number string) (*Meter, error) {
	meters, err := ListActiveMeters(ctx, s, kind)
	if err != nil {
		return nil, err
	}
	if len(meters) == 0 {
		return nil, &MeterNotFoundError{}
	}
	if number == "" {
		return &meters[0], nil
	}
	for i := range meters {
		if meters[i].Number == number {
			return &meters[i], nil
		}
	}
	return nil, &MeterNotFoundError{MeterNumber: number}
}

// AvailableIntervals lists the intervals the portal serves for this meter
func (m *Meter) AvailableIntervals() []models.Interval {
	return models.Intervals
}

// GetUsage fetches and normalizes usage for [start, end]. A zero end
// defaults to the most recent date outside the embargo window.
func (m *Meter) GetUsage(ctx context.Context, interval models.Interval, start, end time.Time) ([]models.UsageRecord, error) {
	if end.IsZero() {
		end = usage.LatestAvailable(m.session.Today(), m.session.EmbargoDays())
	}
	start, end = usage.Day(start), usage.Day(end)

	logger.FetchLog.Infof("fetching %s usage for meter %s from %s to %s",
		interval, m.Number, start.Format(usage.ISODateLayout), end.Format(usage.ISODateLayout))

	raw, err := FetchRaw(ctx, m.session, m, interval, start, end)
	if err != nil {
		return nil, err
	}

	records := usage.Normalize(raw, interval, start, end)
	for i := range records {
		records[i].MeterNumber = m.Number
		records[i].Kind = m.Kind
	}

	logger.FetchLog.Infof("retrieved %d %s usage records from %d raw rows", len(records), interval, len(raw))
	return records, nil
}

// MonthlyUsage returns billing periods overlapping [start, end]
func (m *Meter) MonthlyUsage(ctx context.Context, start, end time.Time) ([]models.UsageRecord, error) {
	return m.GetUsage(ctx, models.Monthly, start, end)
}

// DailyUsage returns one record per day in [start, end]
func (m *Meter) DailyUsage(ctx context.Context, start, end time.Time) ([]models.UsageRecord, error) {
	return m.GetUsage(ctx, models.Daily, start, end)
}

// HourlyUsage makes one portal call per day in the range
func (m *Meter) HourlyUsage(ctx context.Context, start, end time.Time) ([]models.UsageRecord, error) {
	return m.GetUsage(ctx, models.Hourly, start, end)
}

// FifteenMinuteUsage makes one portal call per day in the range
func (m *Meter) FifteenMinuteUsage(ctx context.Context, start, end time.Time) ([]models.UsageRecord, error) {
	return m.GetUsage(ctx, models.FifteenMinute, start, end)
}

// EachUsage walks [start, end] in chunks of chunkDays, handing each record to
// fn as its chunk arrives. Monthly usage is a single chunk. It stops at the
// first error from the portal or from fn.
func (m *Meter) EachUsage(ctx context.Context, interval models.Interval, start, end time.Time, chunkDays int, fn func(models.UsageRecord) error) error {
	if end.IsZero() {
		end = usage.LatestAvailable(m.session.Today(), m.session.EmbargoDays())
	}
	if chunkDays <= 0 {
		chunkDays = usage.DailyWindowDays
	}
	start, end = usage.Day(start), usage.Day(end)

	if interval == models.Monthly {
		return m.emit(ctx, interval, start, end, fn)
	}
	if err := usage.ValidateRange(start, end, m.session.Today(), m.session.EmbargoDays()); err != nil {
		return err
	}

	for chunkStart := start; !chunkStart.After(end); {
		chunkEnd := chunkStart.AddDate(0, 0, chunkDays-1)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		if err := m.emit(ctx, interval, chunkStart, chunkEnd, fn); err != nil {
			return err
		}
		chunkStart = chunkEnd.AddDate(0, 0, 1)
	}
	return nil
}

func (m *Meter) emit(ctx context.Context, interval models.Interval, start, end time.Time, fn func(models.UsageRecord) error) error {
	records, err := m.GetUsage(ctx, interval, start, end)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (m *Meter) String() string {
	return fmt.Sprintf("%s meter %s", m.Kind, m.Number)
}

// flexString accepts a JSON string or number
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
