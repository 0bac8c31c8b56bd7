package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gitea.kood.tech/petrkubec/purpose-match/backend/config"
	"gitea.kood.tech/petrkubec/purpose-match/backend/logging"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags override values from the config file and environment.
type globalFlags struct {
	configPath string
	backend    string
	port       int
	logLevel   string
}

func rootCmd() *cobra.Command {
	var g globalFlags

	cmd := &cobra.Command{
		Use:           "purpose-match",
		Short:         "Purpose matching backend",
		Long:          "Serves the purpose matching REST API and the realtime chat websocket.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&g.backend, "backend", "", "Storage backend (memory, postgres, dynamodb)")
	cmd.PersistentFlags().IntVar(&g.port, "port", 0, "HTTP port")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(serveCmd(&g), migrateCmd(&g), seedCmd(&g))
	return cmd
}

func serveCmd(g *globalFlags) *cobra.Command {
	var autoMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, g, func(ctx context.Context, app *App) error {
				if autoMigrate {
					if err := app.Migrate(ctx); err != nil {
						return fmt.Errorf("migrate: %w", err)
					}
				}
				return app.Run(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "Apply schema migrations before serving")
	return cmd
}

func migrateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations (postgres) or create tables (dynamodb)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd.Context(), g, func(ctx context.Context, log logging.Logger, b *backend) error {
				if err := b.migrate(ctx); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				log.Info(ctx, "schema up to date", "backend", b.name)
				return nil
			})
		},
	}
}

func seedCmd(g *globalFlags) *cobra.Command {
	opts := defaultSeedOptions()
	var migrateFirst bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the database with demo users, purposes and matches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd.Context(), g, func(ctx context.Context, log logging.Logger, b *backend) error {
				if migrateFirst {
					if err := b.migrate(ctx); err != nil {
						return fmt.Errorf("migrate: %w", err)
					}
				}
				rep, err := newSeeder(b.store, opts.Seed, log).run(ctx, opts)
				if err != nil {
					return err
				}
				printSeedReport(cmd.OutOrStdout(), rep, opts)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&opts.Count, "count", opts.Count, "Number of users to create")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", opts.Seed, "Random seed")
	cmd.Flags().StringVar(&opts.Password, "password", opts.Password, "Password for every seeded user")
	cmd.Flags().Float64Var(&opts.InterestRate, "interest-rate", opts.InterestRate, "Share of purposes each user swipes right on")
	cmd.Flags().Float64Var(&opts.SeenRate, "seen-rate", opts.SeenRate, "Share of purposes each user swipes left on")
	cmd.Flags().Float64Var(&opts.AcceptRate, "accept-rate", opts.AcceptRate, "Share of interests accepted by the poster")
	cmd.Flags().Float64Var(&opts.MutualRate, "mutual-rate", opts.MutualRate, "Share of pending matches accepted back")
	cmd.Flags().BoolVar(&migrateFirst, "migrate", true, "Apply schema migrations before seeding")
	return cmd
}

func printSeedReport(w io.Writer, rep seedReport, opts seedOptions) {
	fmt.Fprintf(w, "Seeded %d users, %d purposes, %d interests (%d seen), %d pending and %d mutual matches, %d messages.\n",
		rep.Users, rep.Purposes, rep.Interests, rep.Seen, rep.Pending, rep.Mutual, rep.Messages)
	fmt.Fprintf(w, "Log in as user1 or user2 with password %q.\n", opts.Password)
}

func loadConfig(g *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.backend != "" {
		cfg.Database.Backend = g.backend
	}
	if g.port != 0 {
		cfg.Server.Port = g.port
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.ZapLogger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.Development || !cfg.IsProduction())
}

// withBackend opens only the store, for commands that never serve traffic.
func withBackend(ctx context.Context, g *globalFlags, fn func(context.Context, logging.Logger, *backend) error) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	b, err := openBackend(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.close(); err != nil {
			log.Warn(ctx, "closing store", "error", err)
		}
	}()
	return fn(ctx, log, b)
}

func withApp(ctx context.Context, g *globalFlags, fn func(context.Context, *App) error) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	app, err := NewApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Warn(ctx, "closing store", "error", err)
		}
	}()
	return fn(ctx, app)
}
