package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"optionstream/internal/config"
	"optionstream/internal/logging"
	"optionstream/internal/quotes"
	"optionstream/internal/store"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies shared by all commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  store.Store
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if st, err := store.NewSQLiteStore(cfg.Store.Path); err != nil {
		logger.Warn().Err(err).Msg("store unavailable, session and journal disabled")
	} else {
		app.Store = st
	}

	rootCmd := &cobra.Command{
		Use:   "optionstream",
		Short: "Option chain analytics and streaming server for Indian markets",
		Long: `optionstream computes live option-chain analytics (Greeks, IV, PCR,
max pain) from Zerodha Kite market data and distributes them over
WebSocket and REST.

Use 'optionstream serve' to start the server, or the inspection
commands (chain, analytics, expiries) for one-shot queries.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/optionstream)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("mock", false, "use the synthetic quote source instead of Kite")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newLoginCmd(app))
	rootCmd.AddCommand(newLogoutCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newChainCmd(app))
	rootCmd.AddCommand(newAnalyticsCmd(app))
	rootCmd.AddCommand(newExpiriesCmd(app))
	rootCmd.AddCommand(newJournalCmd(app))
	rootCmd.AddCommand(newWatchCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
			} else {
				output.Printf("optionstream v%s\n", Version)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
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
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Server")
	output.Printf("  Addr:             %s\n", cfg.Server.Addr)
	output.Println()

	output.Bold("Cache")
	output.Printf("  TTL:              %s\n", cfg.Cache.TTL)
	output.Printf("  Stale grace:      %.0fx\n", cfg.Cache.StaleGraceMultiple)
	output.Println()

	output.Bold("Broadcast")
	output.Printf("  Interval:         %s\n", cfg.Broadcast.Interval)
	output.Printf("  Closed interval:  %s\n", cfg.Broadcast.ClosedInterval)
	output.Printf("  Symbol timeout:   %s\n", cfg.Broadcast.SymbolTimeout)
	output.Printf("  Workers:          %d\n", cfg.Broadcast.Workers)
	output.Println()

	output.Bold("Connections")
	output.Printf("  Queue size:       %d\n", cfg.Connection.QueueSize)
	output.Printf("  Drop policy:      %s\n", cfg.Connection.DropPolicy)
	output.Printf("  Drop threshold:   %d\n", cfg.Connection.DropThreshold)
	output.Println()

	output.Bold("Store")
	output.Printf("  Path:             %s\n", cfg.Store.Path)
	output.Printf("  Journal enabled:  %v\n", cfg.Store.JournalEnabled)
}

// quoteSource builds the quote backend for a command: the mock source
// with --mock, otherwise Kite using the stored session.
func (app *App) quoteSource(cmd *cobra.Command) (quotes.QuoteSource, error) {
	mock, _ := cmd.Flags().GetBool("mock")
	if mock {
		return quotes.NewMockSource(0), nil
	}
	return app.kiteSource(cmd)
}
