package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/cpauscraper/internal/logger"
	"github.com/jgoulah/cpauscraper/internal/output"
	"github.com/jgoulah/cpauscraper/internal/scraper"
	"github.com/jgoulah/cpauscraper/pkg/models"
)

var (
	fetchInterval string
	fetchOutput   string
	fetchMeter    string
	fetchWater    bool
	fetchStore    bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch START [END]",
	Short: "Fetch meter usage from the CPAU portal as CSV",
	Long: `Logs in to the CPAU portal and downloads usage for one meter between START and
END (YYYY-MM-DD, or Nd for N days ago). END defaults to two days ago; the
portal does not have final data for more recent days.

CSV is written to stdout unless --output is given. Progress goes to stderr.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchInterval, "interval", "i", "monthly", "Interval: monthly, daily, hourly or 15min")
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "Output file (default: stdout)")
	fetchCmd.Flags().StringVar(&fetchMeter, "meter", "", "Meter number (default: first active meter)")
	fetchCmd.Flags().BoolVar(&fetchWater, "water", false, "Fetch the water meter instead of electric")
	fetchCmd.Flags().BoolVar(&fetchStore, "store", false, "Also store records in the database")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	interval, err := models.ParseInterval(fetchInterval)
	if err != nil {
		return err
	}

	start, end, err := parseRange(args, time.Now(), cfg.GetEmbargoDays())
	if err != nil {
		return err
	}

	creds, err := loadCredentials()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	session, err := scraper.Authenticate(ctx, sessionOptions(), creds)
	if err != nil {
		return err
	}
	defer session.Close()

	meter, err := selectMeter(ctx, session, meterKind(fetchWater), fetchMeter)
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	fmt.Fprintf(stderr, "Fetching %s usage for %s from %s to %s...\n",
		interval, meter, start.Format("2006-01-02"), end.Format("2006-01-02"))

	records, err := meter.GetUsage(ctx, interval, start, end)
	if err != nil {
		return err
	}
	fmt.Fprintf(stderr, "✓ Retrieved %d records\n", len(records))

	if err := writeRecords(cmd.OutOrStdout(), fetchOutput, records, interval, meter.Kind); err != nil {
		return err
	}

	if fetchStore {
		if err := storeRecords(stderr, records); err != nil {
			return err
		}
	}
	return nil
}

// selectMeter returns the numbered meter, or the first active meter of the kind
func selectMeter(ctx context.Context, s *scraper.Session, kind models.MeterKind, number string) (*scraper.Meter, error) {
	if number != "" {
		return scraper.GetMeter(ctx, s, kind, number)
	}

	meters, err := scraper.ListActiveMeters(ctx, s, kind)
	if err != nil {
		return nil, err
	}
	if len(meters) == 0 {
		return nil, &scraper.MeterNotFoundError{}
	}
	if len(meters) > 1 {
		logger.MainLog.Warnf("%d active %s meters, using %s", len(meters), kind, meters[0].Number)
	}
	return &meters[0], nil
}

// writeRecords renders the CSV in full before touching the destination so a
// failure never leaves partial output behind.
func writeRecords(stdout io.Writer, path string, records []models.UsageRecord, interval models.Interval, kind models.MeterKind) error {
	var buf bytes.Buffer
	if err := output.WriteCSV(&buf, records, interval, kind); err != nil {
		return err
	}

	if path == "" {
		_, err := buf.WriteTo(stdout)
		return err
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}
	logger.MainLog.Infof("wrote %d records to %s", len(records), path)
	return nil
}

// storeRecords saves records to the database
func storeRecords(w io.Writer, records []models.UsageRecord) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	added, err := db.InsertAll(records)
	if err != nil {
		return fmt.Errorf("storing records: %w", err)
	}
	fmt.Fprintf(w, "✓ Stored %d new records (%d already present)\n", added, len(records)-added)
	return nil
}
