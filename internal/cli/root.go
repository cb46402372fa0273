// Package cli provides the command-line interface for the premium scanner.
package cli

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"premium-scanner/internal/config"
	"premium-scanner/internal/enrich"
	"premium-scanner/internal/logging"
	"premium-scanner/internal/nse"
	"premium-scanner/internal/reference"
	"premium-scanner/internal/store"
	"premium-scanner/internal/upstox"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-12-01"
)

// App holds the application dependencies.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	NSE      *nse.Client
	Auth     *upstox.Authenticator
	Margin   *upstox.MarginClient
	Resolver *reference.Resolver
	Cache    *store.ReferenceStore
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	timeout := time.Duration(cfg.Scanner.TimeoutSeconds) * time.Second
	app.NSE = nse.NewClient(logger, nse.WithTimeout(timeout))

	app.Auth = upstox.NewAuthenticator(logger, upstox.AuthConfig{
		ClientID:     cfg.Credentials.Upstox.ClientID,
		ClientSecret: cfg.Credentials.Upstox.ClientSecret,
		RedirectURL:  cfg.Credentials.Upstox.RedirectURL,
		SessionPath:  config.SessionPath(config.DefaultConfigDir()),
	})
	if cfg.Credentials.Upstox.Token != "" {
		app.Auth.SetToken(cfg.Credentials.Upstox.Token)
		logger.Debug().Msg("Access token loaded from configuration")
	}

	app.Margin = upstox.NewMarginClient(logger, app.Auth, upstox.WithMarginTimeout(timeout))

	// Initialize SQLite reference cache. The resolver works without it, at
	// the cost of re-downloading both tables every run.
	cache, err := store.NewReferenceStore(cfg.Reference.CachePath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to open reference cache, downloads will not be cached")
	} else {
		app.Cache = cache
		logger.Debug().Str("path", cfg.Reference.CachePath).Msg("Reference cache opened")
	}

	app.Resolver = reference.NewResolver(logger, reference.ResolverConfig{
		Instruments:   reference.NewInstrumentDownloader(logger, nil, ""),
		Lots:          reference.NewLotSizeDownloader(logger, nil, ""),
		Cache:         app.Cache,
		InstrumentTTL: time.Duration(cfg.Reference.InstrumentTTLDays) * 24 * time.Hour,
		LotTTL:        time.Duration(cfg.Reference.LotSizeTTLDays) * 24 * time.Hour,
	})

	rootCmd := &cobra.Command{
		Use:   "pscan",
		Short: "Premium Scanner - NSE option premium and margin CLI",
		Long: `Premium Scanner fetches NSE option chains and enriches them with
margin requirements and premium earnings via the Upstox API.

Fetch a raw chain with 'pscan chain', or run the full margin-enriched
scan with 'pscan scan'. Margin calls require an Upstox login ('pscan login').`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Handle debug flag
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/premium-scanner)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addAuthCommands(rootCmd, app)
	rootCmd.AddCommand(newChainCmd(app))
	rootCmd.AddCommand(newScanCmd(app))

	return rootCmd
}

// enricher builds the enrichment pipeline for a single run. Flag values
// override the configured defaults.
func (app *App) enricher(workers int, partial bool) *enrich.Enricher {
	if workers <= 0 {
		workers = app.Config.Scanner.Workers
	}
	return enrich.New(app.Logger, app.Resolver, app.Margin, enrich.Config{
		Workers: workers,
		Partial: partial || app.Config.Scanner.Partial,
	})
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Premium Scanner v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Scanner Configuration")
	output.Printf("  Default Symbol:  %s\n", cfg.Scanner.DefaultSymbol)
	output.Printf("  Workers:         %d\n", cfg.Scanner.Workers)
	output.Printf("  Partial Mode:    %v\n", cfg.Scanner.Partial)
	output.Printf("  Timeout:         %ds\n", cfg.Scanner.TimeoutSeconds)
	output.Println()

	output.Bold("Reference Cache")
	output.Printf("  Cache Path:      %s\n", cfg.Reference.CachePath)
	output.Printf("  Instrument TTL:  %d days\n", cfg.Reference.InstrumentTTLDays)
	output.Printf("  Lot Size TTL:    %d days\n", cfg.Reference.LotSizeTTLDays)
	output.Println()

	output.Bold("Upstox Credentials")
	output.Printf("  Client ID:       %s\n", maskSecret(cfg.Credentials.Upstox.ClientID))
	output.Printf("  Client Secret:   %s\n", maskSecret(cfg.Credentials.Upstox.ClientSecret))
	output.Printf("  Redirect URL:    %s\n", cfg.Credentials.Upstox.RedirectURL)
	output.Printf("  Token:           %s\n", maskSecret(cfg.Credentials.Upstox.Token))

	return nil
}

// maskSecret hides all but the last four characters of a credential.
func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
