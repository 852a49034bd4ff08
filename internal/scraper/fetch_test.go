package scraper

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoulah/cpauscraper/internal/usage"
	"github.com/jgoulah/cpauscraper/pkg/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMeters(t *testing.T) {
	p := newFakePortal(t)
	s := p.login(t, p.options())

	t.Run("only active meters", func(t *testing.T) {
		meters, err := ListActiveMeters(context.Background(), s, models.Electric)
		require.NoError(t, err)
		require.Len(t, meters, 2)
		assert.Equal(t, "12345678", meters[0].Number)
		assert.Equal(t, "123 Test St", meters[0].Address)
		assert.Equal(t, "E-1 Residential", meters[0].RateCategory)
		assert.Equal(t, models.Electric, meters[0].Kind)
		assert.Equal(t, "87654321", meters[1].Number)
	})

	t.Run("default meter", func(t *testing.T) {
		m, err := GetMeter(context.Background(), s, models.Electric, "")
		require.NoError(t, err)
		assert.Equal(t, "12345678", m.Number)
		assert.Equal(t, models.Intervals, m.AvailableIntervals())
	})

	t.Run("by number", func(t *testing.T) {
		m, err := GetMeter(context.Background(), s, models.Electric, "87654321")
		require.NoError(t, err)
		assert.Equal(t, "456 Other St", m.Address)
	})

	t.Run("inactive meter is not found", func(t *testing.T) {
		_, err := GetMeter(context.Background(), s, models.Electric, "11111111")
		var notFound *MeterNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "11111111", notFound.MeterNumber)
	})

	t.Run("no active meters", func(t *testing.T) {
		p.meters = `{"MeterDetails":[{"MeterNumber":"1","MeterStatus":0}]}`
		_, err := GetMeter(context.Background(), s, models.Electric, "")
		var notFound *MeterNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Empty(t, notFound.MeterNumber)
	})
}

func TestFetchMonthly(t *testing.T) {
	p := newFakePortal(t)
	p.usage = func(req loadUsageRequest) (int, string) {
		return http.StatusOK, `{"objUsageGenerationResultSetTwo":[
			{"BillPeriod":"09/03/24 to 10/01/24","Year":2024,"Month":9,"UsageType":"IUsage","UsageValue":400},
			{"BillPeriod":"10/02/24 to 11/01/24","Year":2024,"Month":10,"UsageType":"IUsage","UsageValue":"512.5"},
			{"BillPeriod":"10/02/24 to 11/01/24","Year":2024,"Month":10,"UsageType":"Eusage","UsageValue":-101.25},
			{"BillPeriod":"11/02/24 to 12/02/24","Year":2024,"Month":11,"UsageType":"IUsage","UsageValue":450}
		]}`
	}
	s := p.login(t, p.options())
	m, err := GetMeter(context.Background(), s, models.Electric, "")
	require.NoError(t, err)

	records, err := m.MonthlyUsage(context.Background(), date(2024, 11, 1), date(2024, 11, 30))
	require.NoError(t, err)

	require.Equal(t, 1, p.callCount())
	req := p.calls[0]
	assert.Equal(t, "M", req.Mode)
	assert.Equal(t, "", req.StrDate)
	assert.Equal(t, "", req.SeasonID)
	assert.Equal(t, "K", req.Type)
	assert.Equal(t, "12345678", req.MeterNumber)
	assert.True(t, req.IsTier)
	assert.False(t, req.IsTou)

	require.Len(t, records, 2)
	assert.Equal(t, "10/02/24 to 11/01/24", records[0].BillingPeriod)
	assert.Equal(t, 512.5, records[0].Import)
	assert.Equal(t, 101.25, records[0].Export)
	assert.Equal(t, 411.25, records[0].Net)
	assert.Equal(t, "12345678", records[0].MeterNumber)
	assert.Equal(t, date(2024, 11, 2), records[1].Date)
}

func TestFetchDaily(t *testing.T) {
	t.Run("multi chunk without duplicates", func(t *testing.T) {
		p := newFakePortal(t)
		// each window returns 31 days so neighbouring windows overlap
		p.usage = func(req loadUsageRequest) (int, string) {
			anchor, err := time.Parse("01/02/06", req.StrDate)
			if err != nil {
				return http.StatusBadRequest, ""
			}
			return http.StatusOK, usageRows(usage.Days(anchor.AddDate(0, 0, -30), anchor), []string{""}, 10, 1)
		}
		s := p.login(t, p.options())
		m, err := GetMeter(context.Background(), s, models.Electric, "")
		require.NoError(t, err)

		records, err := m.DailyUsage(context.Background(), date(2024, 10, 1), date(2024, 12, 20))
		require.NoError(t, err)

		require.Equal(t, 3, p.callCount())
		assert.Equal(t, "12/20/24", p.calls[0].StrDate)
		assert.Equal(t, "11/20/24", p.calls[1].StrDate)
		assert.Equal(t, "10/21/24", p.calls[2].StrDate)
		assert.Equal(t, "D", p.calls[0].Mode)
		assert.Equal(t, float64(0), p.calls[0].SeasonID)

		seen := map[time.Time]bool{}
		for _, r := range records {
			assert.False(t, seen[r.Date], "duplicate %s", r.Date)
			seen[r.Date] = true
			assert.Equal(t, 10.0, r.Import, "overlapping windows must not double count %s", r.Date)
			assert.Equal(t, 1.0, r.Export)
			assert.Equal(t, 9.0, r.Net)
		}
		assert.Len(t, records, usage.DaysInRange(date(2024, 10, 1), date(2024, 12, 20)))
		assert.Equal(t, date(2024, 10, 1), records[0].Date)
		assert.Equal(t, date(2024, 12, 20), records[len(records)-1].Date)
	})

	t.Run("window overrun is trimmed", func(t *testing.T) {
		p := newFakePortal(t)
		p.usage = func(req loadUsageRequest) (int, string) {
			return http.StatusOK, `{"objUsageGenerationResultSetTwo":[
				{"UsageDate":"12/15/24","UsageType":"IUsage","UsageValue":28.06},
				{"UsageDate":"12/15/24","UsageType":"EUsage","UsageValue":0.10}
			]}`
		}
		s := p.login(t, p.options())
		m, err := GetMeter(context.Background(), s, models.Electric, "")
		require.NoError(t, err)

		records, err := m.DailyUsage(context.Background(), date(2024, 12, 1), date(2024, 12, 3))
		require.NoError(t, err)
		assert.Empty(t, records)
		assert.Equal(t, 1, p.callCount())
		assert.Equal(t, "12/03/24", p.calls[0].StrDate)
	})
}

func TestFetchHourly(t *testing.T) {
	for _, interval := range []models.Interval{models.Hourly, models.FifteenMinute} {
		t.Run(string(interval), func(t *testing.T) {
			p := newFakePortal(t)
			p.usage = func(req loadUsageRequest) (int, string) {
				day, err := time.Parse("01/02/06", req.StrDate)
				if err != nil {
					return http.StatusBadRequest, ""
				}
				return http.StatusOK, usageRows([]time.Time{day}, []string{"00:00", "01:00"}, 0.5, 0.25)
			}
			s := p.login(t, p.options())
			m, err := GetMeter(context.Background(), s, models.Electric, "")
			require.NoError(t, err)

			records, err := m.GetUsage(context.Background(), interval, date(2024, 12, 16), date(2024, 12, 18))
			require.NoError(t, err)

			require.Equal(t, 3, p.callCount())
			for i, want := range []string{"12/16/24", "12/17/24", "12/18/24"} {
				assert.Equal(t, want, p.calls[i].StrDate)
				assert.Equal(t, intervalModes[interval], p.calls[i].Mode)
			}

			days := map[time.Time]bool{}
			for _, r := range records {
				days[usage.Day(r.Date)] = true
			}
			assert.Equal(t, map[time.Time]bool{
				date(2024, 12, 16): true,
				date(2024, 12, 17): true,
				date(2024, 12, 18): true,
			}, days)
			require.Len(t, records, 6)
			assert.Equal(t, time.Date(2024, 12, 16, 1, 0, 0, 0, time.UTC), records[1].Date)
			assert.Equal(t, 0.25, records[1].Net)
		})
	}
}

func TestFetchFailures(t *testing.T) {
	t.Run("validation happens before any call", func(t *testing.T) {
		p := newFakePortal(t)
		s := p.login(t, p.options())
		m, err := GetMeter(context.Background(), s, models.Electric, "")
		require.NoError(t, err)

		var vErr *ValidationError
		_, err = m.DailyUsage(context.Background(), date(2025, 1, 1), date(2025, 1, 10))
		require.ErrorAs(t, err, &vErr)
		_, err = m.DailyUsage(context.Background(), date(2025, 1, 1), date(2025, 1, 9))
		require.ErrorAs(t, err, &vErr)
		_, err = m.DailyUsage(context.Background(), date(2024, 12, 5), date(2024, 12, 1))
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, 0, p.callCount())

		_, err = m.DailyUsage(context.Background(), date(2025, 1, 1), date(2025, 1, 8))
		assert.NoError(t, err)
	})

	t.Run("zero end defaults to embargo edge", func(t *testing.T) {
		p := newFakePortal(t)
		s := p.login(t, p.options())
		m, err := GetMeter(context.Background(), s, models.Electric, "")
		require.NoError(t, err)

		_, err = m.DailyUsage(context.Background(), date(2025, 1, 1), time.Time{})
		require.NoError(t, err)
		require.Equal(t, 1, p.callCount())
		assert.Equal(t, "01/08/25", p.calls[0].StrDate)
	})

	t.Run("a failed chunk discards earlier results", func(t *testing.T) {
		p := newFakePortal(t)
		p.usage = func(req loadUsageRequest) (int, string) {
			if req.StrDate == "12/17/24" {
				return http.StatusInternalServerError, ""
			}
			day, _ := time.Parse("01/02/06", req.StrDate)
			return http.StatusOK, usageRows([]time.Time{day}, []string{"00:00"}, 1, 0)
		}
		s := p.login(t, p.options())
		m, err := GetMeter(context.Background(), s, models.Electric, "")
		require.NoError(t, err)

		records, err := m.HourlyUsage(context.Background(), date(2024, 12, 16), date(2024, 12, 18))
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
		assert.Nil(t, records)
		assert.Equal(t, 2, p.callCount(), "no calls after the failure")
	})

	t.Run("malformed inner payload", func(t *testing.T) {
		p := newFakePortal(t)
		p.usage = func(req loadUsageRequest) (int, string) {
			return http.StatusOK, `{"objUsageGenerationResultSetTwo": "nope"}`
		}
		s := p.login(t, p.options())
		m, err := GetMeter(context.Background(), s, models.Electric, "")
		require.NoError(t, err)

		_, err = m.MonthlyUsage(context.Background(), date(2024, 1, 1), date(2024, 12, 31))
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "LoadUsage", apiErr.Endpoint)
	})

	t.Run("water meters request gallons", func(t *testing.T) {
		p := newFakePortal(t)
		p.meters = `{"MeterDetails":[{"MeterNumber":"W1","MeterType":"W","Address":"123 Test St","Status":1}]}`
		s := p.login(t, p.options())
		m, err := GetMeter(context.Background(), s, models.Water, "")
		require.NoError(t, err)
		assert.Equal(t, models.Water, m.Kind)

		_, err = m.MonthlyUsage(context.Background(), date(2024, 1, 1), date(2024, 12, 31))
		require.NoError(t, err)
		assert.Equal(t, "G", p.calls[0].Type)
	})
}

func TestEachUsage(t *testing.T) {
	p := newFakePortal(t)
	p.usage = func(req loadUsageRequest) (int, string) {
		anchor, _ := time.Parse("01/02/06", req.StrDate)
		return http.StatusOK, usageRows(usage.Days(anchor.AddDate(0, 0, -29), anchor), []string{""}, 2, 0)
	}
	s := p.login(t, p.options())
	m, err := GetMeter(context.Background(), s, models.Electric, "")
	require.NoError(t, err)

	var got []time.Time
	err = m.EachUsage(context.Background(), models.Daily, date(2024, 12, 1), date(2024, 12, 20), 7, func(r models.UsageRecord) error {
		got = append(got, r.Date)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, usage.Days(date(2024, 12, 1), date(2024, 12, 20)), got)
	assert.Equal(t, 3, p.callCount())

	t.Run("stops on callback error", func(t *testing.T) {
		calls := p.callCount()
		stop := assert.AnError
		n := 0
		err := m.EachUsage(context.Background(), models.Daily, date(2024, 12, 1), date(2024, 12, 20), 7, func(r models.UsageRecord) error {
			n++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, n)
		assert.Equal(t, calls+1, p.callCount())
	})
}
