package usage

import (
	"math/rand"
	"testing"
	"time"

	"github.com/jgoulah/cpauscraper/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(day, hour, flow string, value float64) models.RawRecord {
	return models.RawRecord{UsageDate: day, Hourly: hour, UsageType: flow, UsageValue: models.Number(value)}
}

func monthly(period string, year, month int, flow string, value float64) models.RawRecord {
	return models.RawRecord{
		BillPeriod: period,
		Year:       models.Number(year),
		Month:      models.Number(month),
		UsageType:  flow,
		UsageValue: models.Number(value),
	}
}

func TestNormalizeDaily(t *testing.T) {
	t.Run("export sign handling", func(t *testing.T) {
		records := Normalize([]models.RawRecord{
			raw("12/02/24", "", "IUsage", 10.0),
			raw("12/02/24", "", "Eusage", -2.0),
		}, models.Daily, date(2024, 12, 1), date(2024, 12, 3))

		require.Len(t, records, 1)
		assert.Equal(t, date(2024, 12, 2), records[0].Date)
		assert.Equal(t, 10.0, records[0].Import)
		assert.Equal(t, 2.0, records[0].Export)
		assert.Equal(t, 8.0, records[0].Net)
		assert.Equal(t, models.Daily, records[0].Interval)
	})

	t.Run("window overrun is trimmed", func(t *testing.T) {
		records := Normalize([]models.RawRecord{
			raw("12/15/24", "", "IUsage", 28.06),
			raw("12/15/24", "", "EUsage", 0.10),
		}, models.Daily, date(2024, 12, 1), date(2024, 12, 3))
		assert.Empty(t, records)
	})

	t.Run("missing direction is zero", func(t *testing.T) {
		records := Normalize([]models.RawRecord{
			raw("12/01/24", "", "IUsage", 5.5),
			raw("12/02/24", "", "EUsage", 1.5),
			raw("12/03/24", "", "Other", 99),
		}, models.Daily, date(2024, 12, 1), date(2024, 12, 3))

		require.Len(t, records, 3)
		assert.Equal(t, models.UsageRecord{Interval: models.Daily, Date: date(2024, 12, 1), Import: 5.5, Net: 5.5}, records[0])
		assert.Equal(t, models.UsageRecord{Interval: models.Daily, Date: date(2024, 12, 2), Export: 1.5, Net: -1.5}, records[1])
		assert.Equal(t, models.UsageRecord{Interval: models.Daily, Date: date(2024, 12, 3)}, records[2])
	})

	t.Run("chronological across years", func(t *testing.T) {
		records := Normalize([]models.RawRecord{
			raw("01/01/25", "", "IUsage", 1),
			raw("12/31/24", "", "IUsage", 2),
			raw("not a date", "", "IUsage", 3),
		}, models.Daily, date(2024, 12, 1), date(2025, 1, 5))

		require.Len(t, records, 2)
		assert.Equal(t, date(2024, 12, 31), records[0].Date)
		assert.Equal(t, date(2025, 1, 1), records[1].Date)
	})
}

func TestNormalizeSubDaily(t *testing.T) {
	records := Normalize([]models.RawRecord{
		raw("12/17/24", "01:00", "IUsage", 0.64),
		raw("12/17/24", "00:00", "IUsage", 0.58),
		raw("12/17/24", "00:00", "EUsage", 0.00),
		raw("12/17/24", "01:00", "EUsage", -0.10),
		raw("12/16/24", "23:00", "IUsage", 0.31),
	}, models.Hourly, date(2024, 12, 16), date(2024, 12, 17))

	require.Len(t, records, 3)
	assert.Equal(t, time.Date(2024, 12, 16, 23, 0, 0, 0, time.UTC), records[0].Date)
	assert.Equal(t, time.Date(2024, 12, 17, 0, 0, 0, 0, time.UTC), records[1].Date)
	assert.Equal(t, time.Date(2024, 12, 17, 1, 0, 0, 0, time.UTC), records[2].Date)
	assert.Equal(t, 0.64, records[2].Import)
	assert.Equal(t, 0.10, records[2].Export)
	assert.Equal(t, "2024-12-17T01:00:00", records[2].DateString())
}

func TestNormalizeMonthly(t *testing.T) {
	start, end := date(2024, 11, 1), date(2024, 11, 30)

	records := Normalize([]models.RawRecord{
		monthly("09/03/24 to 10/01/24", 2024, 9, "IUsage", 400),
		monthly("10/02/24 to 11/01/24", 2024, 10, "IUsage", 500),
		monthly("10/02/24 to 11/01/24", 2024, 10, "Eusage", -120),
		monthly("11/02/24 to 11/30/24", 2024, 11, "IUsage", 450),
		monthly("12/01/24 to 12/31/24", 2024, 12, "IUsage", 600),
		monthly("unknown", 2024, 8, "IUsage", 300),
	}, models.Monthly, start, end)

	require.Len(t, records, 3)

	// unparseable periods are kept
	assert.Equal(t, "unknown", records[0].BillingPeriod)
	assert.Equal(t, date(2024, 8, 1), records[0].Date)

	assert.Equal(t, "10/02/24 to 11/01/24", records[1].BillingPeriod)
	assert.Equal(t, date(2024, 10, 2), records[1].Date)
	assert.Equal(t, 500.0, records[1].Import)
	assert.Equal(t, 120.0, records[1].Export)
	assert.Equal(t, 380.0, records[1].Net)

	assert.Equal(t, date(2024, 11, 2), records[2].Date)
}

func TestNormalizeProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var input []models.RawRecord
	for d := 1; d <= 28; d++ {
		day := date(2024, 2, d).Format(PortalDateLayout)
		input = append(input,
			raw(day, "", "IUsage", rng.Float64()*50),
			raw(day, "", "Eusage", -rng.Float64()*20),
		)
	}

	first := Normalize(input, models.Daily, date(2024, 2, 1), date(2024, 2, 28))
	second := Normalize(input, models.Daily, date(2024, 2, 1), date(2024, 2, 28))
	assert.Equal(t, first, second)

	seen := map[time.Time]bool{}
	for _, r := range first {
		assert.Equal(t, r.Import-r.Export, r.Net)
		assert.GreaterOrEqual(t, r.Export, 0.0)
		assert.False(t, seen[r.Date], "duplicate date %s", r.Date)
		seen[r.Date] = true
	}
	assert.Len(t, first, 28)
}
