// Package output renders usage records as CSV and terminal tables.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/jgoulah/cpauscraper/pkg/models"
)

// Header returns the CSV column names for an interval and meter kind
func Header(interval models.Interval, kind models.MeterKind) []string {
	q := kind.Quantity()
	cols := []string{"date"}
	if interval == models.Monthly {
		cols = append(cols, "billing_period")
	}
	return append(cols, "export_"+q, "import_"+q, "net_"+q)
}

// WriteCSV writes records with a header row. The header is written even when
// there are no records.
func WriteCSV(w io.Writer, records []models.UsageRecord, interval models.Interval, kind models.MeterKind) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(interval, kind)); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, r := range records {
		row := []string{r.DateString()}
		if interval == models.Monthly {
			row = append(row, r.BillingPeriod)
		}
		row = append(row, formatFloat(r.Export), formatFloat(r.Import), formatFloat(r.Net))
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row %s: %w", r.DateString(), err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
