package usage

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jgoulah/cpauscraper/pkg/models"
)

type bucket struct {
	key    string
	sortAt time.Time
	record models.UsageRecord
}

// Normalize merges raw import/export rows into one UsageRecord per time
// bucket, ordered by the bucket's date.
//
// Monthly rows are kept when their billing period overlaps [start, end]; rows
// whose period label does not parse are kept as well. Daily rows outside
// [start, end] are dropped. Rows whose date cannot be parsed are skipped and
// unknown flow tags contribute nothing, but still produce their bucket.
func Normalize(raw []models.RawRecord, interval models.Interval, start, end time.Time) []models.UsageRecord {
	buckets := make(map[string]*bucket)

	for _, r := range raw {
		b, ok := bucketFor(r, interval, start, end)
		if !ok {
			continue
		}
		if existing, found := buckets[b.key]; found {
			b = existing
		} else {
			buckets[b.key] = b
		}

		switch {
		case r.IsExport():
			b.record.Export += math.Abs(r.UsageValue.Float())
		case r.IsImport():
			b.record.Import += r.UsageValue.Float()
		}
	}

	ordered := make([]*bucket, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].sortAt.Equal(ordered[j].sortAt) {
			return ordered[i].sortAt.Before(ordered[j].sortAt)
		}
		return ordered[i].key < ordered[j].key
	})

	records := make([]models.UsageRecord, 0, len(ordered))
	for _, b := range ordered {
		rec := b.record
		rec.Net = rec.Import - rec.Export
		records = append(records, rec)
	}
	return records
}

// bucketFor returns a fresh bucket for r, or false when r is filtered out.
func bucketFor(r models.RawRecord, interval models.Interval, start, end time.Time) (*bucket, bool) {
	if interval == models.Monthly {
		return monthlyBucket(r, start, end)
	}

	day, err := time.Parse(PortalDateLayout, strings.TrimSpace(r.UsageDate))
	if err != nil {
		return nil, false
	}
	if interval == models.Daily && !InRange(day, start, end) {
		return nil, false
	}

	key := day.Format(ISODateLayout)
	at := day
	if interval.SubDaily() {
		if tod, ok := parseTimeOfDay(r.Hourly); ok {
			at = day.Add(tod)
			key = at.Format("2006-01-02T15:04")
		}
	}

	return &bucket{
		key:    key,
		sortAt: at,
		record: models.UsageRecord{Interval: interval, Date: at},
	}, true
}

func monthlyBucket(r models.RawRecord, start, end time.Time) (*bucket, bool) {
	ps, pe, err := ParseBillPeriod(r.BillPeriod)
	periodKnown := err == nil
	if periodKnown && !Overlaps(ps, pe, start, end) {
		return nil, false
	}

	year, month := r.Year.Int(), r.Month.Int()
	if (year == 0 || month < 1 || month > 12) && periodKnown {
		year, month = ps.Year(), int(ps.Month())
	}
	firstOfMonth := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)

	date := firstOfMonth
	if periodKnown {
		date = ps
	}

	return &bucket{
		key:    fmt.Sprintf("%04d-%02d", year, month),
		sortAt: firstOfMonth,
		record: models.UsageRecord{
			Interval:      models.Monthly,
			Date:          date,
			BillingPeriod: r.BillPeriod,
		},
	}, true
}

// parseTimeOfDay parses the portal's "HH:MM" time-of-day column.
func parseTimeOfDay(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, layout := range []string{PortalTimeLayout, "15:04:05", "3:04 PM"} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, true
		}
	}
	return 0, false
}
