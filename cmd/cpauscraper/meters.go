package main

import (
	"github.com/spf13/cobra"

	"github.com/jgoulah/cpauscraper/internal/output"
	"github.com/jgoulah/cpauscraper/internal/scraper"
)

var metersWater bool

var metersCmd = &cobra.Command{
	Use:   "meters",
	Short: "List active meters on the account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		meters, err := scraper.ListActiveMeters(ctx, session, meterKind(metersWater))
		if err != nil {
			return err
		}
		if len(meters) == 0 {
			return &scraper.MeterNotFoundError{}
		}

		output.RenderMeters(cmd.OutOrStdout(), meters)
		return nil
	},
}

func init() {
	metersCmd.Flags().BoolVar(&metersWater, "water", false, "List water meters instead of electric")
	rootCmd.AddCommand(metersCmd)
}
