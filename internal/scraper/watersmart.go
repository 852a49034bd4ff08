package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/jgoulah/cpauscraper/internal/config"
	"github.com/jgoulah/cpauscraper/internal/logger"
	"github.com/jgoulah/cpauscraper/internal/usage"
	"github.com/jgoulah/cpauscraper/pkg/models"
)

// WaterSmartMeter labels stored WaterSmart records, which carry no meter number
const WaterSmartMeter = "watersmart"

const (
	realTimeChartPath    = "/index.php/rest/v1/Chart/RealTimeChart"
	dailyChartPath       = "/index.php/rest/v1/Chart/weatherConsumptionChart?module=portal&commentary=full"
	billingHistoryPath   = "/index.php/rest/v1/Chart/BillingHistoryChart?flowType=per_day&comparison=cohort"
	waterSmartDateLayout = "2006-01-02"
)

// WaterSmartOptions configures a WaterSmartSession
type WaterSmartOptions struct {
	BaseURL       string
	Authenticator WaterAuthenticator
	// Cookies from an earlier login; empty triggers a login on first use
	Cookies     []config.Cookie
	EmbargoDays int
	Now         func() time.Time
	// Location interprets RealTimeChart timestamps, time.Local by default
	Location   *time.Location
	HTTPClient *http.Client
}

// WaterSmartSession reads water usage from the WaterSmart portal using
// cookies obtained from a browser login.
type WaterSmartSession struct {
	opts    WaterSmartOptions
	client  *resty.Client
	cookies []config.Cookie
}

// NewWaterSmartSession creates a session; no network activity happens until
// the first usage call.
func NewWaterSmartSession(opts WaterSmartOptions) *WaterSmartSession {
	if opts.BaseURL == "" {
		opts.BaseURL = config.DefaultWaterSmartURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.EmbargoDays <= 0 {
		opts.EmbargoDays = usage.DefaultEmbargoDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	var client *resty.Client
	if opts.HTTPClient != nil {
		client = resty.NewWithClient(opts.HTTPClient)
	} else {
		client = resty.New()
	}
	client.SetHeader("User-Agent", defaultUserAgent)
	client.SetHeader("Accept", "application/json")

	return &WaterSmartSession{opts: opts, client: client, cookies: opts.Cookies}
}

// Cookies returns the cookies currently in use, for saving to config
func (w *WaterSmartSession) Cookies() []config.Cookie {
	return w.cookies
}

// Authenticate replaces the session cookies with fresh ones
func (w *WaterSmartSession) Authenticate(ctx context.Context) error {
	if w.opts.Authenticator == nil {
		return &AuthError{Message: "no WaterSmart authenticator configured"}
	}
	cookies, err := w.opts.Authenticator.Authenticate(ctx)
	if err != nil {
		return err
	}
	w.cookies = cookies
	return nil
}

// get issues a GET with the session cookies. A 401 triggers at most one
// re-authentication and one retry.
func (w *WaterSmartSession) get(ctx context.Context, path string) ([]byte, error) {
	if len(w.cookies) == 0 {
		if err := w.Authenticate(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := w.do(ctx, path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		logger.WaterLog.Warn("received 401, re-authenticating")
		if err := w.Authenticate(ctx); err != nil {
			return nil, fmt.Errorf("re-authenticating: %w", err)
		}
		if resp, err = w.do(ctx, path); err != nil {
			return nil, err
		}
		if resp.StatusCode() == http.StatusUnauthorized {
			return nil, &AuthError{StatusCode: http.StatusUnauthorized, Message: "still unauthorized after re-authentication"}
		}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &APIError{Endpoint: path, StatusCode: resp.StatusCode(), Message: "WaterSmart request failed"}
	}
	return resp.Body(), nil
}

func (w *WaterSmartSession) do(ctx context.Context, path string) (*resty.Response, error) {
	logger.WaterLog.Debugf("GET %s", path)
	resp, err := w.client.R().
		SetContext(ctx).
		SetCookies(HTTPCookies(w.cookies)).
		Get(w.opts.BaseURL + path)
	if err != nil {
		return nil, &ConnectionError{Op: "requesting " + path, Err: err}
	}
	return resp, nil
}

// GetUsage returns water usage for [start, end]. Hourly and daily come from
// the real-time and weather charts; monthly returns billing periods that
// overlap the range. Import carries gallons; export is always zero.
func (w *WaterSmartSession) GetUsage(ctx context.Context, interval models.Interval, start, end time.Time) ([]models.UsageRecord, error) {
	today := usage.Day(w.opts.Now())
	if end.IsZero() {
		end = usage.LatestAvailable(today, w.opts.EmbargoDays)
	}
	start, end = usage.Day(start), usage.Day(end)
	if err := usage.ValidateRange(start, end, today, w.opts.EmbargoDays); err != nil {
		return nil, err
	}

	var (
		records []models.UsageRecord
		err     error
	)
	switch interval {
	case models.Hourly:
		records, err = w.hourly(ctx, start, end)
	case models.Daily:
		records, err = w.daily(ctx, start, end)
	case models.Monthly:
		records, err = w.billing(ctx, start, end)
	default:
		return nil, &ValidationError{Message: fmt.Sprintf("WaterSmart does not provide %s usage", interval)}
	}
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })
	logger.WaterLog.Infof("retrieved %d %s water usage records", len(records), interval)
	return records, nil
}

func waterRecord(interval models.Interval, at time.Time, gallons float64) models.UsageRecord {
	return models.UsageRecord{
		MeterNumber: WaterSmartMeter,
		Kind:        models.Water,
		Interval:    interval,
		Date:        at,
		Import:      gallons,
		Net:         gallons,
	}
}

func (w *WaterSmartSession) hourly(ctx context.Context, start, end time.Time) ([]models.UsageRecord, error) {
	body, err := w.get(ctx, realTimeChartPath)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			Series []struct {
				ReadDatetime models.Number `json:"read_datetime"`
				Gallons      models.Number `json:"gallons"`
			} `json:"series"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &APIError{Endpoint: "RealTimeChart", Message: "failed to parse response", Err: err}
	}

	var records []models.UsageRecord
	for _, p := range resp.Data.Series {
		local := time.Unix(int64(p.ReadDatetime), 0).In(w.opts.Location)
		wall := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), local.Minute(), 0, 0, time.UTC)
		if !usage.InRange(wall, start, end) {
			continue
		}
		records = append(records, waterRecord(models.Hourly, wall, p.Gallons.Float()))
	}
	return records, nil
}

func (w *WaterSmartSession) daily(ctx context.Context, start, end time.Time) ([]models.UsageRecord, error) {
	body, err := w.get(ctx, dailyChartPath)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			ChartData struct {
				DailyData struct {
					Categories  []string        `json:"categories"`
					Consumption []models.Number `json:"consumption"`
				} `json:"dailyData"`
			} `json:"chartData"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &APIError{Endpoint: "weatherConsumptionChart", Message: "failed to parse response", Err: err}
	}

	daily := resp.Data.ChartData.DailyData
	n := min(len(daily.Categories), len(daily.Consumption))
	var records []models.UsageRecord
	for i := 0; i < n; i++ {
		day, err := time.Parse(waterSmartDateLayout, strings.TrimSpace(daily.Categories[i]))
		if err != nil || !usage.InRange(day, start, end) {
			continue
		}
		records = append(records, waterRecord(models.Daily, day, daily.Consumption[i].Float()))
	}
	return records, nil
}

func (w *WaterSmartSession) billing(ctx context.Context, start, end time.Time) ([]models.UsageRecord, error) {
	body, err := w.get(ctx, billingHistoryPath)
	if err != nil {
		return nil, err
	}

	type periodDate struct {
		Date string `json:"date"`
	}
	var resp struct {
		Data struct {
			ChartData []struct {
				Gallons models.Number `json:"gallons"`
				Period  struct {
					StartDate periodDate `json:"startDate"`
					EndDate   periodDate `json:"endDate"`
				} `json:"period"`
			} `json:"chart_data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &APIError{Endpoint: "BillingHistoryChart", Message: "failed to parse response", Err: err}
	}

	var records []models.UsageRecord
	for _, p := range resp.Data.ChartData {
		ps, psErr := parseWaterSmartDate(p.Period.StartDate.Date)
		pe, peErr := parseWaterSmartDate(p.Period.EndDate.Date)
		label := fmt.Sprintf("%s to %s", usage.FormatPortalDate(ps), usage.FormatPortalDate(pe))
		if psErr != nil || peErr != nil {
			// unparseable periods are kept, like CPAU billing periods
			label = strings.TrimSpace(p.Period.StartDate.Date + " to " + p.Period.EndDate.Date)
		} else if !usage.Overlaps(ps, pe, start, end) {
			continue
		}

		rec := waterRecord(models.Monthly, ps, p.Gallons.Float())
		rec.BillingPeriod = label
		records = append(records, rec)
	}
	return records, nil
}

// parseWaterSmartDate reads the date part of "2006-01-02 15:04:05.000000"
func parseWaterSmartDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) < len(waterSmartDateLayout) {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return time.Parse(waterSmartDateLayout, s[:len(waterSmartDateLayout)])
}
