package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/cpauscraper/internal/database"
	"github.com/jgoulah/cpauscraper/internal/publisher"
	"github.com/jgoulah/cpauscraper/pkg/models"
)

var (
	publishMeter    string
	publishInterval string
	publishSince    string
	publishUntil    string
	publishAll      bool
	publishLimit    int
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish stored usage to Home Assistant and MQTT",
	Long:  `Reads stored usage records from the database and publishes import, export and net values to Home Assistant and, when enabled, MQTT.`,
	Args:  cobra.NoArgs,
	RunE:  runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishMeter, "meter", "", "Meter number to publish (default: all meters)")
	publishCmd.Flags().StringVar(&publishInterval, "interval", "", "Interval to publish (default: all intervals)")
	publishCmd.Flags().StringVar(&publishSince, "since", "", "Only publish data since this date (YYYY-MM-DD or relative like 7d)")
	publishCmd.Flags().StringVar(&publishUntil, "until", "", "Only publish data until this date (YYYY-MM-DD)")
	publishCmd.Flags().BoolVar(&publishAll, "all", false, "Force republish all records (ignore published flag)")
	publishCmd.Flags().IntVar(&publishLimit, "limit", 0, "Limit number of records to publish (0 = no limit)")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	now := time.Now()
	fmt.Fprintf(out, "=== Publish started at %s ===\n", now.Format("2006-01-02 15:04:05 MST"))

	if !cfg.HomeAssistant.Enabled && !cfg.MQTT.Enabled {
		return fmt.Errorf("neither Home Assistant nor MQTT is enabled in config")
	}

	filter := database.Filter{MeterNumber: publishMeter, UnpublishedOnly: !publishAll}
	if publishInterval != "" {
		interval, err := models.ParseInterval(publishInterval)
		if err != nil {
			return err
		}
		filter.Interval = interval
	}

	// Parse date filters if provided
	var sinceDate, untilDate *time.Time
	if publishSince != "" {
		since, err := parseDate(publishSince, now)
		if err != nil {
			return fmt.Errorf("parsing --since date: %w", err)
		}
		sinceDate = &since
	}
	if publishUntil != "" {
		until, err := parseDate(publishUntil, now)
		if err != nil {
			return fmt.Errorf("parsing --until date: %w", err)
		}
		// Include every sub-daily record on the last day
		until = until.AddDate(0, 0, 1).Add(-time.Nanosecond)
		untilDate = &until
	}

	pub, err := publisher.New(cfg.MQTT, cfg.HomeAssistant)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	data, err := db.ListUsage(filter)
	if err != nil {
		return fmt.Errorf("listing data: %w", err)
	}

	var records []models.UsageRecord
	for _, record := range data {
		if sinceDate != nil && record.Date.Before(*sinceDate) {
			continue
		}
		if untilDate != nil && record.Date.After(*untilDate) {
			continue
		}
		records = append(records, record)
	}

	if len(records) == 0 {
		if publishAll {
			fmt.Fprintln(out, "No data found")
		} else {
			fmt.Fprintln(out, "No unpublished data found")
		}
		return nil
	}

	// Apply limit if specified
	if publishLimit > 0 && len(records) > publishLimit {
		records = records[:publishLimit]
		fmt.Fprintf(out, "Limiting to %d records (--limit flag)\n", publishLimit)
	}

	fmt.Fprintf(out, "Publishing %d records...\n", len(records))
	published := 0
	for i, record := range records {
		fmt.Fprintf(out, "[%d/%d] Publishing %s %s %s (net %.3f)... ",
			i+1, len(records), record.MeterNumber, record.Interval, record.DateString(), record.Net)
		if err := pub.Publish(cmd.Context(), record); err != nil {
			fmt.Fprintf(out, "FAILED: %v\n", err)
			continue
		}

		// Mark record as published in database
		if err := db.MarkPublished(record.ID); err != nil {
			fmt.Fprintf(out, "✓ (warning: failed to mark as published: %v)\n", err)
		} else {
			fmt.Fprintf(out, "✓\n")
		}
		published++
	}

	fmt.Fprintf(out, "\nTotal records published: %d/%d\n", published, len(records))
	if published < len(records) {
		return fmt.Errorf("%d records failed to publish", len(records)-published)
	}
	return nil
}
