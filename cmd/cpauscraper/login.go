package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jgoulah/cpauscraper/internal/scraper"
)

var loginVisible bool

var loginCmd = &cobra.Command{
	Use:   "login [service]",
	Short: "Login to a service and save cookies",
	Long: `Logs in through a browser and saves the session cookies to the config file.

The CPAU portal itself needs no saved session; its login is a plain HTTP call
made on every run. WaterSmart is reached by single sign-on from the portal and
needs a browser, so its cookies are saved for reuse.

Available services: water`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().BoolVar(&loginVisible, "visible", false, "Show the browser window")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	service := args[0]
	if service != "water" {
		return fmt.Errorf("unknown service: %s (available: water)", service)
	}

	creds, err := loadCredentials()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Opening browser for WaterSmart login...\n")

	auth := waterAuthenticator(creds)
	if loginVisible {
		auth.Headless = false
	}
	cookies, err := auth.Authenticate(cmd.Context())
	if err != nil {
		return err
	}

	if len(cookies) == 0 {
		return fmt.Errorf("no cookies found - make sure you're logged in")
	}

	cfg.WaterSmart.Cookies = cookies
	if err := saveConfig(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Fprintf(out, "✓ Successfully saved %d cookies for WaterSmart\n", len(cookies))
	return nil
}

// newWaterSession builds a WaterSmart session from saved cookies that logs in
// again through the browser when they have expired.
func newWaterSession() (*scraper.WaterSmartSession, error) {
	creds, err := loadCredentials()
	if err != nil {
		return nil, err
	}

	return scraper.NewWaterSmartSession(scraper.WaterSmartOptions{
		BaseURL:       cfg.GetWaterSmartURL(),
		Authenticator: waterAuthenticator(creds),
		Cookies:       cfg.WaterSmart.Cookies,
		EmbargoDays:   cfg.GetEmbargoDays(),
	}), nil
}
