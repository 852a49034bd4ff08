package output

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/jgoulah/cpauscraper/internal/scraper"
	"github.com/jgoulah/cpauscraper/pkg/models"
)

// RenderMeters prints active meters as a table
func RenderMeters(w io.Writer, meters []scraper.Meter) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Meter", "Type", "Address", "Rate", "Intervals"})

	for _, m := range meters {
		t.AppendRow(table.Row{m.Number, m.Kind.String(), m.Address, m.RateCategory, fmt.Sprint(m.AvailableIntervals())})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}

// RenderUsage prints stored usage records as a table with a totals footer
func RenderUsage(w io.Writer, records []models.UsageRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Meter", "Interval", "Date", "Billing Period", "Import", "Export", "Net"})

	var imp, exp, net float64
	for _, r := range records {
		t.AppendRow(table.Row{
			r.MeterNumber, r.Interval, r.DateString(), r.BillingPeriod,
			fmt.Sprintf("%.3f", r.Import), fmt.Sprintf("%.3f", r.Export), fmt.Sprintf("%.3f", r.Net),
		})
		imp += r.Import
		exp += r.Export
		net += r.Net
	}

	t.AppendFooter(table.Row{
		"", "", fmt.Sprintf("%d records", len(records)), "Total",
		fmt.Sprintf("%.3f", imp), fmt.Sprintf("%.3f", exp), fmt.Sprintf("%.3f", net),
	})
	t.SetStyle(table.StyleRounded)
	t.Render()
}
