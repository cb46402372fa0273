// Package config provides configuration management for the scanner.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Scanner     ScannerConfig `mapstructure:"scanner"`
	Reference   RefConfig     `mapstructure:"reference"`
	UI          UIConfig      `mapstructure:"ui"`
	Credentials Credentials   `mapstructure:"-"` // Loaded separately
}

// ScannerConfig holds enrichment pipeline configuration.
type ScannerConfig struct {
	Workers        int    `mapstructure:"workers"`         // margin-call fan-out width
	Partial        bool   `mapstructure:"partial"`         // collect row failures instead of aborting
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // per-call HTTP timeout
	DefaultSymbol  string `mapstructure:"default_symbol"`
}

// RefConfig holds reference-table cache configuration.
type RefConfig struct {
	CachePath         string `mapstructure:"cache_path"`          // SQLite cache location
	InstrumentTTLDays int    `mapstructure:"instrument_ttl_days"` // instrument dump freshness
	LotSizeTTLDays    int    `mapstructure:"lot_size_ttl_days"`   // lot-size table freshness
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	DateFormat   string `mapstructure:"date_format"`
}

// Credentials holds the Upstox API credentials.
type Credentials struct {
	Upstox UpstoxCredentials `mapstructure:"upstox"`
}

// UpstoxCredentials holds the five named secrets for the Upstox API.
type UpstoxCredentials struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
	AuthCode     string `mapstructure:"auth_code"` // one-time authorization code
	Token        string `mapstructure:"token"`     // long-lived access token
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/premium-scanner"
	}
	return filepath.Join(home, ".config", "premium-scanner")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
// A .env file in the working directory is honored for secret overrides.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// .env is optional; ignore absence.
	_ = godotenv.Load()

	cfg := &Config{}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir string, target *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetDefault("scanner.workers", 4)
	v.SetDefault("scanner.partial", false)
	v.SetDefault("scanner.timeout_seconds", 30)
	v.SetDefault("scanner.default_symbol", "NIFTY")
	v.SetDefault("reference.instrument_ttl_days", 1)
	v.SetDefault("reference.lot_size_ttl_days", 30)
	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.date_format", "02-Jan-2006")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := createTemplateConfig(configDir); err != nil {
				return err
			}
			return v.Unmarshal(target)
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLIENT_ID"); v != "" {
		cfg.Credentials.Upstox.ClientID = v
	}
	if v := os.Getenv("CLIENT_SECRET"); v != "" {
		cfg.Credentials.Upstox.ClientSecret = v
	}
	if v := os.Getenv("REDIRECT_URL"); v != "" {
		cfg.Credentials.Upstox.RedirectURL = v
	}
	if v := os.Getenv("CODE"); v != "" {
		cfg.Credentials.Upstox.AuthCode = v
	}
	if v := os.Getenv("TOKEN"); v != "" {
		cfg.Credentials.Upstox.Token = v
	}
}

func applyDefaults(cfg *Config, configDir string) {
	if cfg.Reference.CachePath == "" {
		cfg.Reference.CachePath = filepath.Join(configDir, "reference.db")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Scanner.Workers < 1 {
		return fmt.Errorf("scanner.workers must be at least 1")
	}
	if c.Scanner.TimeoutSeconds < 1 {
		return fmt.Errorf("scanner.timeout_seconds must be at least 1")
	}
	if c.Reference.InstrumentTTLDays < 0 || c.Reference.LotSizeTTLDays < 0 {
		return fmt.Errorf("reference TTLs must be non-negative")
	}
	return nil
}

// SessionPath returns the location of the persisted session file.
func SessionPath(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "session.json")
}
