// Package cli provides the command-line interface for the trading journal.
package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"trade-journal/internal/analytics"
	"trade-journal/internal/auth"
	"trade-journal/internal/blob"
	"trade-journal/internal/config"
	"trade-journal/internal/docstore"
	"trade-journal/internal/importer"
	"trade-journal/internal/journal"
	"trade-journal/internal/logging"
	"trade-journal/internal/metrics"
	"trade-journal/internal/models"
	"trade-journal/internal/security"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies. Stores are opened on first use
// so commands that need none of them start instantly.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Access  *security.AccessController
	Audit   *security.AuditLogger
	Metrics *metrics.Metrics
	Engine  *analytics.Engine

	mu    sync.Mutex
	docs  *docstore.SQLiteStore
	blobs blob.ObjectStore
	auth  *auth.LocalProvider
}

// NewApp wires the dependencies every command shares.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
		Engine:  analytics.NewEngine(analytics.WithLogger(logger)),
	}

	if cfg.Security.Audit {
		audit, err := security.NewAuditLogger(security.AuditConfig{
			LogDir:     cfg.Security.AuditDir,
			MaxSize:    50,
			MaxBackups: 30,
			MaxAge:     365,
			Compress:   true,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to open audit log, continuing without it")
		} else {
			app.Audit = audit
		}
	}
	app.Access = security.NewAccessController(cfg.Security.ReadOnly, app.Audit)

	return app
}

// Docs returns the document store.
func (a *App) Docs() (*docstore.SQLiteStore, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.docs == nil {
		docs, err := docstore.NewSQLiteStore(a.Config.Database.Path, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal database: %w", err)
		}
		a.docs = docs
	}
	return a.docs, nil
}

// Blobs returns the object store for chart images.
func (a *App) Blobs(ctx context.Context) (blob.ObjectStore, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.blobs == nil {
		blobs, err := blob.New(ctx, a.Config.Storage, a.Config.Credentials.S3, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open image storage: %w", err)
		}
		a.blobs = blobs
	}
	return a.blobs, nil
}

// Auth returns the identity provider.
func (a *App) Auth() (*auth.LocalProvider, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.auth == nil {
		p, err := auth.NewLocalProvider(a.Config.Database.Path, a.Config.Auth, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open identity store: %w", err)
		}
		p.SetAudit(a.Audit)
		a.auth = p
	}
	return a.auth, nil
}

// Importer returns a client for the screenshot parsing service.
func (a *App) Importer() *importer.Client {
	return importer.NewClient(a.Config.Importer, a.Config.Credentials.Importer, a.Logger,
		importer.WithMetrics(a.Metrics))
}

// SessionFile returns the CLI's stored session token.
func (a *App) SessionFile() *auth.SessionFile {
	return auth.NewSessionFile(a.Config.SessionFile())
}

// CurrentUser resolves the stored session token to a user.
func (a *App) CurrentUser(ctx context.Context) (models.User, error) {
	token, err := a.SessionFile().Load()
	if err != nil {
		return models.User{}, err
	}
	p, err := a.Auth()
	if err != nil {
		return models.User{}, err
	}
	return p.Lookup(ctx, token)
}

// OpenJournal signs in from the session file, subscribes to the user's
// trades and waits for the first snapshot. The returned session must be
// closed.
func (a *App) OpenJournal(ctx context.Context) (*journal.Session, error) {
	user, err := a.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := a.Docs()
	if err != nil {
		return nil, err
	}
	blobs, err := a.Blobs(ctx)
	if err != nil {
		return nil, err
	}

	sess := journal.NewSession(docs, blobs, security.NewTradeValidator(a.Engine.Location()), a.Logger)
	sess.SetMetrics(a.Metrics)
	sess.SetGuard(a.Access, a.Audit)

	if err := sess.Open(ctx, user.UID, a.Config.Sync.FirstSnapshotTimeout); err != nil {
		sess.Close()
		return nil, fmt.Errorf("failed to load journal: %w", err)
	}
	return sess, nil
}

// Close releases every opened store.
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.docs != nil {
		a.docs.Close()
	}
	if a.auth != nil {
		a.auth.Close()
	}
	if a.Audit != nil {
		a.Audit.Close()
	}
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := NewApp(cfg, logger)

	rootCmd := &cobra.Command{
		Use:   "journal",
		Short: "Trade journal - record, annotate and review your trades",
		Long: `Trade journal keeps your trades, their chart screenshots and your notes on
psychology and execution, and summarizes performance by day, week and month.

Trades can be added by hand, imported from CSV, or parsed from a broker
screenshot by the import service. 'journal serve' exposes the same journal
over HTTP with a live websocket feed.`,
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
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.Close()
		},
	}

	// --config is read by main before the config loads; it is declared here
	// so cobra accepts it
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/trade-journal)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addAuthCommands(rootCmd, app)
	addTradeCommands(rootCmd, app)
	addAnalyticsCommands(rootCmd, app)
	addServeCommand(rootCmd, app)
	addHelpCommands(rootCmd)

	return rootCmd
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
				output.Printf("Trade Journal v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				masked := *app.Config
				masked.Credentials.S3.SecretAccessKey = security.MaskCredential(masked.Credentials.S3.SecretAccessKey)
				masked.Credentials.Importer.APIKey = security.MaskCredential(masked.Credentials.Importer.APIKey)
				return output.JSON(masked)
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
				output.JSON(map[string]string{"path": app.Config.Dir})
			} else {
				output.Println(app.Config.Dir)
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

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Storage")
	output.Printf("  Database:        %s\n", cfg.Database.Path)
	output.Printf("  Image driver:    %s\n", cfg.Storage.Driver)
	if cfg.Storage.Driver == "s3" {
		output.Printf("  Bucket:          %s (%s)\n", cfg.Storage.Bucket, cfg.Storage.Region)
	} else {
		output.Printf("  Image dir:       %s\n", cfg.Storage.Dir)
	}
	output.Printf("  Image cache:     %s (max age %s)\n", cfg.Cache.Path, cfg.Cache.MaxAge)
	output.Println()

	output.Bold("Accounts")
	output.Printf("  Require verified: %v\n", cfg.Auth.RequireVerified)
	output.Printf("  Session TTL:     %s\n", cfg.Auth.SessionTTL)
	output.Println()

	output.Bold("Import Service")
	url := cfg.Importer.URL
	if url == "" {
		url = "(not configured)"
	}
	output.Printf("  URL:             %s\n", url)
	output.Printf("  API key:         %s\n", security.MaskCredential(cfg.Credentials.Importer.APIKey))
	output.Printf("  Rate:            %.1f/s (burst %d)\n", cfg.Importer.Rate, cfg.Importer.Burst)
	output.Println()

	output.Bold("Server")
	output.Printf("  Address:         %s\n", cfg.Server.Addr)
	output.Printf("  Origins:         %v\n", cfg.Server.AllowedOrigins)
	output.Printf("  Read-only:       %v\n", cfg.Security.ReadOnly)
}
