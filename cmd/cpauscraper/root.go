package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jgoulah/cpauscraper/internal/config"
	"github.com/jgoulah/cpauscraper/internal/database"
	"github.com/jgoulah/cpauscraper/internal/logger"
	"github.com/jgoulah/cpauscraper/internal/scraper"
	"github.com/jgoulah/cpauscraper/pkg/models"
)

var (
	cfgFile  string
	dbPath   string
	logLevel string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cpauscraper",
	Short: "Retrieve electric and water usage from the City of Palo Alto Utilities portal",
	Long: `cpauscraper logs in to the CPAU customer portal and downloads meter usage
at monthly, daily, hourly or 15-minute granularity as CSV. Records can be
stored in a local SQLite database and published to Home Assistant.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default is ./data.db)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error (default from config, else info)")
}

// setup loads the config and configures logging before any command runs
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := logLevel
	if level == "" {
		level = cfg.GetLogLevel()
	}
	if err := logger.InitLog(level, false); err != nil {
		return err
	}
	logger.CfgLog.Debugf("using config %s", getConfigPath())
	return nil
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// getDBPath returns the database file path, flag first then config
func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return cfg.GetDatabase()
}

// loadConfig loads the configuration file
func loadConfig() (*config.Config, error) {
	return config.Load(getConfigPath())
}

// saveConfig saves the configuration file
func saveConfig(cfg *config.Config) error {
	return config.Save(getConfigPath(), cfg)
}

// openDB opens the database connection
func openDB() (*database.DB, error) {
	path := getDBPath()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return database.New(path)
}

// loadCredentials reads the secrets file named in the config
func loadCredentials() (models.Credentials, error) {
	return config.LoadCredentials(cfg.GetSecretsFile())
}

// sessionOptions builds portal session options from the config
func sessionOptions() scraper.Options {
	return scraper.Options{
		BaseURL:        cfg.GetPortalURL(),
		UserAgent:      cfg.Portal.UserAgent,
		Timeout:        cfg.GetTimeout(),
		EmbargoDays:    cfg.GetEmbargoDays(),
		Reauthenticate: cfg.Portal.Reauthenticate,
	}
}

func meterKind(water bool) models.MeterKind {
	if water {
		return models.Water
	}
	return models.Electric
}
