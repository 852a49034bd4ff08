package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/cpauscraper/internal/config"
	"github.com/jgoulah/cpauscraper/internal/publisher"
)

var statsEntity string

var generateStatsCmd = &cobra.Command{
	Use:   "generate-stats",
	Short: "Generate statistics in Home Assistant from backfilled states",
	Long:  `Calls AppDaemon endpoint to compile statistics from individual hourly consumption states. Run this after publishing to populate the Energy dashboard.`,
	Args:  cobra.NoArgs,
	RunE:  runGenerateStats,
}

func init() {
	generateStatsCmd.Flags().StringVar(&statsEntity, "entity", "", "Entity to compile (default: every configured entity)")
	rootCmd.AddCommand(generateStatsCmd)
}

func runGenerateStats(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "=== Generate Statistics started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	ha := cfg.HomeAssistant
	if !ha.Enabled {
		return fmt.Errorf("Home Assistant is not enabled in config")
	}

	entities := []string{statsEntity}
	if statsEntity == "" {
		entities = nil
		for _, e := range []string{ha.ImportEntityID, ha.ExportEntityID, ha.NetEntityID} {
			if e != "" {
				entities = append(entities, e)
			}
		}
	}

	pub, err := publisher.New(config.MQTTConfig{}, ha)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	for _, entity := range entities {
		fmt.Fprintf(out, "Generating statistics for %s...\n", entity)
		result, err := pub.GenerateStatistics(cmd.Context(), entity)
		if err != nil {
			return fmt.Errorf("generating statistics for %s: %w", entity, err)
		}

		fmt.Fprintf(out, "✓ Statistics generated successfully\n")
		fmt.Fprintf(out, "  - Inserted: %d new statistics records\n", result.Inserted)
		fmt.Fprintf(out, "  - Updated: %d existing statistics records\n", result.Updated)
		fmt.Fprintf(out, "  - Total hours: %d\n", result.TotalHours)
	}

	return nil
}
