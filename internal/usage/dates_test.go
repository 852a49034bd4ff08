package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestValidateRange(t *testing.T) {
	now := time.Date(2025, time.January, 10, 15, 30, 0, 0, time.Local)
	today := date(2025, time.January, 10)

	t.Run("embargo", func(t *testing.T) {
		var vErr *ValidationError

		err := ValidateRange(today.AddDate(0, 0, -5), today, now, DefaultEmbargoDays)
		require.ErrorAs(t, err, &vErr)

		err = ValidateRange(today.AddDate(0, 0, -5), today.AddDate(0, 0, -1), now, DefaultEmbargoDays)
		require.ErrorAs(t, err, &vErr)

		assert.NoError(t, ValidateRange(today.AddDate(0, 0, -5), today.AddDate(0, 0, -2), now, DefaultEmbargoDays))
	})

	t.Run("end before start", func(t *testing.T) {
		var vErr *ValidationError
		err := ValidateRange(date(2024, 12, 3), date(2024, 12, 1), now, DefaultEmbargoDays)
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.Message, "on or after")

		// ordering is reported even when the end is also inside the embargo
		err = ValidateRange(today, today.AddDate(0, 0, -1), now, DefaultEmbargoDays)
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.Message, "on or after")
	})

	t.Run("configurable embargo", func(t *testing.T) {
		assert.NoError(t, ValidateRange(today.AddDate(0, 0, -3), today, now, 0))
		assert.Error(t, ValidateRange(today.AddDate(0, 0, -10), today.AddDate(0, 0, -4), now, 5))
	})
}

func TestDailyAnchors(t *testing.T) {
	t.Run("single window", func(t *testing.T) {
		anchors := DailyAnchors(date(2024, 12, 1), date(2024, 12, 30))
		assert.Equal(t, []time.Time{date(2024, 12, 30)}, anchors)
	})

	t.Run("steps back thirty days from end", func(t *testing.T) {
		anchors := DailyAnchors(date(2024, 10, 1), date(2024, 12, 20))
		assert.Equal(t, []time.Time{
			date(2024, 12, 20),
			date(2024, 11, 20),
			date(2024, 10, 21),
		}, anchors)
	})

	t.Run("anchor equal to start is issued", func(t *testing.T) {
		anchors := DailyAnchors(date(2024, 11, 20), date(2024, 12, 20))
		assert.Equal(t, []time.Time{date(2024, 12, 20), date(2024, 11, 20)}, anchors)
	})
}

func TestDays(t *testing.T) {
	days := Days(date(2024, 12, 30), date(2025, 1, 1))
	assert.Equal(t, []time.Time{date(2024, 12, 30), date(2024, 12, 31), date(2025, 1, 1)}, days)
	assert.Equal(t, 3, DaysInRange(date(2024, 12, 30), date(2025, 1, 1)))
	assert.Empty(t, Days(date(2025, 1, 2), date(2025, 1, 1)))
}

func TestOverlaps(t *testing.T) {
	start, end := date(2024, 11, 1), date(2024, 11, 30)

	tests := []struct {
		name   string
		ps, pe time.Time
		want   bool
	}{
		{"period ends on start", date(2024, 10, 2), date(2024, 11, 1), true},
		{"period starts on end", date(2024, 11, 30), date(2024, 12, 29), true},
		{"period ends the day before start", date(2024, 10, 1), date(2024, 10, 31), false},
		{"period starts the day after end", date(2024, 12, 1), date(2024, 12, 31), false},
		{"period contains range", date(2024, 10, 15), date(2024, 12, 15), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.ps, tt.pe, start, end))
		})
	}
}

func TestParseBillPeriod(t *testing.T) {
	ps, pe, err := ParseBillPeriod("10/15/24 to 11/13/24")
	require.NoError(t, err)
	assert.Equal(t, date(2024, 10, 15), ps)
	assert.Equal(t, date(2024, 11, 13), pe)

	_, _, err = ParseBillPeriod("Oct 2024")
	assert.Error(t, err)
	_, _, err = ParseBillPeriod("10/15/24 to soon")
	assert.Error(t, err)
}
