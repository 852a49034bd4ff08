package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jgoulah/cpauscraper/internal/database"
	"github.com/jgoulah/cpauscraper/internal/output"
	"github.com/jgoulah/cpauscraper/pkg/models"
)

var (
	listMeter    string
	listInterval string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored usage records",
	Long:  `Displays usage records stored in the local database by fetch --store.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listMeter, "meter", "", "Filter by meter number")
	listCmd.Flags().StringVar(&listInterval, "interval", "", "Filter by interval (monthly, daily, hourly, 15min)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	filter := database.Filter{MeterNumber: listMeter}
	if listInterval != "" {
		interval, err := models.ParseInterval(listInterval)
		if err != nil {
			return err
		}
		filter.Interval = interval
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	records, err := db.ListUsage(filter)
	if err != nil {
		return fmt.Errorf("listing data: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No data found")
		return nil
	}

	output.RenderUsage(cmd.OutOrStdout(), records)
	return nil
}
