package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jgoulah/cpauscraper/internal/logger"
	"github.com/jgoulah/cpauscraper/internal/usage"
	"github.com/jgoulah/cpauscraper/pkg/models"
)

// LoadUsage mode codes per interval
var intervalModes = map[models.Interval]string{
	models.Monthly:       "M",
	models.Daily:         "D",
	models.Hourly:        "H",
	models.FifteenMinute: "MI",
}

// loadUsageRequest is the fixed LoadUsage payload. Only Mode, strDate,
// SeasonId and MeterNumber vary between calls.
type loadUsageRequest struct {
	UsageOrGeneration string `json:"UsageOrGeneration"`
	Type              string `json:"Type"`
	Mode              string `json:"Mode"`
	StrDate           string `json:"strDate"`
	HourlyType        string `json:"hourlyType"`
	SeasonID          any    `json:"SeasonId"`
	WeatherOverlay    int    `json:"weatherOverlay"`
	UsageYear         string `json:"usageyear"`
	MeterNumber       string `json:"MeterNumber"`
	DateFromDaily     string `json:"DateFromDaily"`
	DateToDaily       string `json:"DateToDaily"`
	IsTier            bool   `json:"IsTier"`
	IsTou             bool   `json:"IsTou"`
}

type loadUsageResponse struct {
	Rows []models.RawRecord `json:"objUsageGenerationResultSetTwo"`
}

func newLoadUsageRequest(m *Meter, mode string, anchor time.Time) loadUsageRequest {
	req := loadUsageRequest{
		UsageOrGeneration: "1",
		Type:              unitCode(m.Kind),
		Mode:              mode,
		HourlyType:        "H",
		SeasonID:          0,
		MeterNumber:       m.Number,
		IsTier:            true,
		IsTou:             false,
	}
	if mode == intervalModes[models.Monthly] {
		req.SeasonID = ""
	} else {
		req.StrDate = usage.FormatPortalDate(anchor)
	}
	return req
}

// unitCode selects kWh for electric meters and gallons for water meters
func unitCode(kind models.MeterKind) string {
	if kind == models.Water {
		return "G"
	}
	return "K"
}

// FetchRaw retrieves the raw LoadUsage rows covering [start, end].
//
// Monthly is one call returning all billing history. Daily calls are
// anchored at their last day and step back 30 days from end; rows for a date
// already returned by an earlier call are skipped. Hourly and 15-minute
// calls are issued once per day. Any failed call aborts the fetch and
// discards what earlier calls returned.
func FetchRaw(ctx context.Context, s *Session, m *Meter, interval models.Interval, start, end time.Time) ([]models.RawRecord, error) {
	mode, ok := intervalModes[interval]
	if !ok {
		return nil, &ValidationError{Message: fmt.Sprintf("unsupported interval %q", interval)}
	}
	if err := usage.ValidateRange(start, end, s.Today(), s.EmbargoDays()); err != nil {
		return nil, err
	}
	if !s.IsAuthenticated() {
		return nil, &AuthError{Message: "not authenticated"}
	}

	switch interval {
	case models.Monthly:
		logger.FetchLog.Debug("fetching monthly billing history")
		return loadUsage(ctx, s, newLoadUsageRequest(m, mode, time.Time{}))
	case models.Daily:
		return fetchDaily(ctx, s, m, mode, start, end)
	default:
		return fetchPerDay(ctx, s, m, mode, start, end)
	}
}

func fetchDaily(ctx context.Context, s *Session, m *Meter, mode string, start, end time.Time) ([]models.RawRecord, error) {
	anchors := usage.DailyAnchors(start, end)
	logger.FetchLog.Debugf("fetching daily data with %d call(s) for %d days", len(anchors), usage.DaysInRange(start, end))

	var all []models.RawRecord
	seen := make(map[string]bool)
	for i, anchor := range anchors {
		logger.FetchLog.Debugf("daily call %d/%d anchored at %s", i+1, len(anchors), usage.FormatPortalDate(anchor))
		rows, err := loadUsage(ctx, s, newLoadUsageRequest(m, mode, anchor))
		if err != nil {
			return nil, err
		}

		// import and export share a date within one call, so a date only
		// counts as seen once its call has been consumed
		var fresh []string
		for _, r := range rows {
			key := strings.TrimSpace(r.UsageDate)
			if key == "" || seen[key] {
				continue
			}
			all = append(all, r)
			fresh = append(fresh, key)
		}
		for _, key := range fresh {
			seen[key] = true
		}
	}
	return all, nil
}

func fetchPerDay(ctx context.Context, s *Session, m *Meter, mode string, start, end time.Time) ([]models.RawRecord, error) {
	days := usage.Days(start, end)
	logger.FetchLog.Debugf("fetching %s data with %d call(s), one per day", mode, len(days))

	var all []models.RawRecord
	for i, day := range days {
		logger.FetchLog.Debugf("call %d/%d for %s", i+1, len(days), usage.FormatPortalDate(day))
		rows, err := loadUsage(ctx, s, newLoadUsageRequest(m, mode, day))
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	return all, nil
}

func loadUsage(ctx context.Context, s *Session, req loadUsageRequest) ([]models.RawRecord, error) {
	inner, err := s.call(ctx, "LoadUsage", req)
	if err != nil {
		return nil, err
	}

	var resp loadUsageResponse
	if err := json.Unmarshal(inner, &resp); err != nil {
		return nil, &APIError{Endpoint: "LoadUsage", Message: "failed to parse usage rows", Err: err}
	}
	return resp.Rows, nil
}
