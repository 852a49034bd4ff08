package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/asaskevich/govalidator"
	"gopkg.in/yaml.v3"
)

// Defaults applied by the getters when a field is unset
const (
	DefaultPortalURL      = "https://mycpau.cityofpaloalto.org/Portal"
	DefaultWaterSmartURL  = "https://paloalto.watersmart.com"
	DefaultSecretsFile    = "secrets.json"
	DefaultDatabase       = "data.db"
	DefaultTimeoutSeconds = 60
	DefaultEmbargoDays    = 2
	DefaultTopicPrefix    = "cpau"
)

// Config holds the application configuration
type Config struct {
	Portal        PortalConfig     `yaml:"portal,omitempty"`
	SecretsFile   string           `yaml:"secrets_file,omitempty"`
	Database      string           `yaml:"database,omitempty"`
	LogLevel      string           `yaml:"log_level,omitempty"`
	HomeAssistant HAConfig         `yaml:"home_assistant,omitempty"`
	MQTT          MQTTConfig       `yaml:"mqtt,omitempty"`
	WaterSmart    WaterSmartConfig `yaml:"watersmart,omitempty"`
}

// PortalConfig configures the CPAU portal session
type PortalConfig struct {
	BaseURL        string `yaml:"base_url,omitempty"`
	UserAgent      string `yaml:"user_agent,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
	EmbargoDays    int    `yaml:"embargo_days,omitempty"` // Days before today the portal has not finalized
	Reauthenticate bool   `yaml:"reauthenticate,omitempty"`
}

// HAConfig holds Home Assistant HTTP API configuration
type HAConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"`   // e.g., "http://yourdomain.local:5050"
	Token          string `yaml:"token"` // Long-lived access token
	ImportEntityID string `yaml:"import_entity_id,omitempty"`
	ExportEntityID string `yaml:"export_entity_id,omitempty"`
	NetEntityID    string `yaml:"net_entity_id,omitempty"`
}

// MQTTConfig holds MQTT broker configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // host:port
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
}

// WaterSmartConfig configures the WaterSmart water portal
type WaterSmartConfig struct {
	BaseURL  string   `yaml:"base_url,omitempty"`
	Headless *bool    `yaml:"headless,omitempty"`
	Cookies  []Cookie `yaml:"cookies,omitempty"`
}

// Cookie represents a browser cookie
type Cookie struct {
	Name     string  `yaml:"name"`
	Value    string  `yaml:"value"`
	Domain   string  `yaml:"domain"`
	Path     string  `yaml:"path"`
	Expires  float64 `yaml:"expires,omitempty"`
	HTTPOnly bool    `yaml:"httpOnly,omitempty"`
	Secure   bool    `yaml:"secure,omitempty"`
	SameSite string  `yaml:"sameSite,omitempty"`
}

// Load reads the config file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty config if file doesn't exist
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}

	return &cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// Validate checks URLs and hosts of the enabled sections
func (c *Config) Validate() error {
	if c.Portal.BaseURL != "" && !govalidator.IsURL(c.Portal.BaseURL) {
		return fmt.Errorf("portal.base_url is not a valid URL: %q", c.Portal.BaseURL)
	}
	if c.Portal.TimeoutSeconds < 0 {
		return fmt.Errorf("portal.timeout_seconds must not be negative")
	}
	if c.Portal.EmbargoDays < 0 {
		return fmt.Errorf("portal.embargo_days must not be negative")
	}
	if c.WaterSmart.BaseURL != "" && !govalidator.IsURL(c.WaterSmart.BaseURL) {
		return fmt.Errorf("watersmart.base_url is not a valid URL: %q", c.WaterSmart.BaseURL)
	}
	if c.HomeAssistant.Enabled {
		if !govalidator.IsURL(c.HomeAssistant.URL) {
			return fmt.Errorf("home_assistant.url is not a valid URL: %q", c.HomeAssistant.URL)
		}
		if c.HomeAssistant.Token == "" {
			return fmt.Errorf("home_assistant.token is required when enabled")
		}
	}
	if c.MQTT.Enabled && !govalidator.IsDialString(c.MQTT.Broker) {
		return fmt.Errorf("mqtt.broker must be host:port, got %q", c.MQTT.Broker)
	}
	return nil
}

// GetPortalURL returns the CPAU portal base URL
func (c *Config) GetPortalURL() string {
	if c.Portal.BaseURL == "" {
		return DefaultPortalURL
	}
	return c.Portal.BaseURL
}

// GetTimeout returns the portal HTTP timeout, 60s by default
func (c *Config) GetTimeout() time.Duration {
	if c.Portal.TimeoutSeconds <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(c.Portal.TimeoutSeconds) * time.Second
}

// GetEmbargoDays returns the embargo window with a default of 2 days
func (c *Config) GetEmbargoDays() int {
	if c.Portal.EmbargoDays <= 0 {
		return DefaultEmbargoDays
	}
	return c.Portal.EmbargoDays
}

// GetSecretsFile returns the credentials file path
func (c *Config) GetSecretsFile() string {
	if c.SecretsFile == "" {
		return DefaultSecretsFile
	}
	return c.SecretsFile
}

// GetDatabase returns the SQLite database path
func (c *Config) GetDatabase() string {
	if c.Database == "" {
		return DefaultDatabase
	}
	return c.Database
}

// GetLogLevel returns the configured log level, info by default
func (c *Config) GetLogLevel() string {
	if c.LogLevel == "" {
		return "info"
	}
	return c.LogLevel
}

// GetWaterSmartURL returns the WaterSmart base URL
func (c *Config) GetWaterSmartURL() string {
	if c.WaterSmart.BaseURL == "" {
		return DefaultWaterSmartURL
	}
	return c.WaterSmart.BaseURL
}

// GetWaterSmartHeadless reports whether the WaterSmart login browser runs headless
func (c *Config) GetWaterSmartHeadless() bool {
	if c.WaterSmart.Headless == nil {
		return true
	}
	return *c.WaterSmart.Headless
}

// GetTopicPrefix returns the MQTT topic prefix
func (c *MQTTConfig) GetTopicPrefix() string {
	if c.TopicPrefix == "" {
		return DefaultTopicPrefix
	}
	return c.TopicPrefix
}
