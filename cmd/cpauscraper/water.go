package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/cpauscraper/internal/logger"
	"github.com/jgoulah/cpauscraper/internal/scraper"
	"github.com/jgoulah/cpauscraper/pkg/models"
)

var (
	waterInterval string
	waterOutput   string
	waterStore    bool
)

var waterCmd = &cobra.Command{
	Use:   "water START [END]",
	Short: "Fetch water usage from WaterSmart as CSV",
	Long: `Downloads water usage in gallons from the WaterSmart portal. Saved cookies from
"login water" are used when present; otherwise, or when they have expired, a
headless browser logs in through the CPAU portal.

Intervals: hourly, daily, billing (billing periods overlapping the range).`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runWater,
}

func init() {
	waterCmd.Flags().StringVarP(&waterInterval, "interval", "i", "daily", "Interval: hourly, daily or billing")
	waterCmd.Flags().StringVarP(&waterOutput, "output", "o", "", "Output file (default: stdout)")
	waterCmd.Flags().BoolVar(&waterStore, "store", false, "Also store records in the database")
	rootCmd.AddCommand(waterCmd)
}

func runWater(cmd *cobra.Command, args []string) error {
	interval, err := parseWaterInterval(waterInterval)
	if err != nil {
		return err
	}

	start, end, err := parseRange(args, time.Now(), cfg.GetEmbargoDays())
	if err != nil {
		return err
	}

	ws, err := newWaterSession()
	if err != nil {
		return err
	}

	records, err := ws.GetUsage(cmd.Context(), interval, start, end)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "✓ Retrieved %d water records\n", len(records))

	// Keep refreshed cookies for the next run
	if !slices.Equal(cfg.WaterSmart.Cookies, ws.Cookies()) {
		cfg.WaterSmart.Cookies = ws.Cookies()
		if err := saveConfig(cfg); err != nil {
			logger.WaterLog.Warnf("saving refreshed cookies: %v", err)
		}
	}

	if err := writeRecords(cmd.OutOrStdout(), waterOutput, records, interval, models.Water); err != nil {
		return err
	}

	if waterStore {
		return storeRecords(cmd.ErrOrStderr(), records)
	}
	return nil
}

func parseWaterInterval(s string) (models.Interval, error) {
	switch s {
	case "billing", "monthly":
		return models.Monthly, nil
	case "hourly":
		return models.Hourly, nil
	case "daily":
		return models.Daily, nil
	}
	return "", fmt.Errorf("unknown water interval: %s (available: hourly, daily, billing)", s)
}

func waterAuthenticator(creds models.Credentials) *scraper.BrowserAuthenticator {
	return &scraper.BrowserAuthenticator{
		PortalURL:     cfg.GetPortalURL(),
		WaterSmartURL: cfg.GetWaterSmartURL(),
		Credentials:   creds,
		Headless:      cfg.GetWaterSmartHeadless(),
	}
}
