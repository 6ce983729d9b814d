package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fhirload/internal/config"
	"github.com/JonMunkholm/fhirload/internal/core"
	"github.com/JonMunkholm/fhirload/internal/fhir"
	"github.com/JonMunkholm/fhirload/internal/logging"
	"github.com/JonMunkholm/fhirload/internal/roster"
	"github.com/JonMunkholm/fhirload/internal/web"
)

// importFlags override the matching environment settings when set.
type importFlags struct {
	file      string
	baseURL   string
	delimiter string
	encoding  string
	policy    string
	dryRun    bool
}

func main() {
	// The root command imports, so "fhirload file.csv" and
	// "fhirload import file.csv" do the same thing.
	rootCmd := importCmd("fhirload [file]")
	rootCmd.AddCommand(importCmd("import [file]"))
	rootCmd.AddCommand(sandboxCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, core.FormatUserError(err))
		os.Exit(1)
	}
}

func importCmd(use string) *cobra.Command {
	var f importFlags

	cmd := &cobra.Command{
		Use:   use,
		Short: "Import a patient roster CSV into a FHIR server",
		Long: "Reads the roster row by row, builds a Patient (and an Observation when the\n" +
			"row has one) for each line and POSTs them to the configured FHIR server.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				f.file = args[0]
			}
			return runImport(cmd, f)
		},
	}

	cmd.Flags().StringVarP(&f.file, "file", "f", "", "roster file (overrides INPUT_PATH)")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "FHIR base URL (overrides FHIR_BASE_URL)")
	cmd.Flags().StringVarP(&f.delimiter, "delimiter", "d", "", "field separator (overrides CSV_DELIMITER)")
	cmd.Flags().StringVar(&f.encoding, "encoding", "", "force a charset and skip detection (overrides INPUT_ENCODING)")
	cmd.Flags().StringVar(&f.policy, "on-row-error", "", "abort or skip (overrides ROW_ERROR_POLICY)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "transform and log rows without submitting")

	return cmd
}

func sandboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "sandbox",
		Short:        "Run an in-memory FHIR server to rehearse imports against",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			return runSandbox(cfg)
		},
	}
}

// loadConfig reads .env and the environment, applies flag overrides and sets
// up logging.
func loadConfig(apply func(*config.Config)) (*config.Config, error) {
	// Overload lets .env win over the shell, same as the server deployment.
	envErr := godotenv.Overload()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if apply != nil {
		apply(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config validation: %w", err)
		}
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if envErr != nil {
		slog.Debug("no .env file found, using environment variables")
	}
	slog.Debug("configuration loaded", "config", cfg.String())
	return cfg, nil
}

func runImport(cmd *cobra.Command, f importFlags) error {
	cfg, err := loadConfig(func(c *config.Config) {
		if f.file != "" {
			c.Input.Path = f.file
		}
		if f.baseURL != "" {
			c.FHIR.BaseURL = f.baseURL
		}
		if f.delimiter != "" {
			c.Input.Delimiter = f.delimiter
		}
		if f.encoding != "" {
			c.Input.Encoding = f.encoding
		}
		if f.policy != "" {
			c.Import.RowErrorPolicy = f.policy
		}
		if cmd.Flags().Changed("dry-run") {
			c.Import.DryRun = f.dryRun
		}
	})
	if err != nil {
		return err
	}

	policy, err := core.ParseRowErrorPolicy(cfg.Import.RowErrorPolicy)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var submitter core.Submitter
	if !cfg.Import.DryRun {
		client, err := fhir.NewClient(cfg.FHIR.BaseURL,
			fhir.WithTimeout(cfg.FHIR.Timeout),
			fhir.WithAPIKey(cfg.FHIR.APIKey),
		)
		if err != nil {
			return err
		}
		submitter = client
	}

	var svcOpts []core.ServiceOption
	if cfg.Database.HistoryEnabled() {
		pool, err := openHistory(ctx, cfg.Database)
		if err != nil {
			slog.Warn("run history disabled", "error", err)
		} else {
			defer pool.Close()
			history := core.NewHistoryStore(pool)
			if err := history.EnsureSchema(ctx); err != nil {
				slog.Warn("run history disabled", "error", err)
			} else {
				svcOpts = append(svcOpts, core.WithHistory(history))
			}
		}
	}

	cols := cfg.Input.Columns
	svc, err := core.NewService(submitter, core.Options{
		Encoding:      cfg.Input.Encoding,
		MinConfidence: cfg.Input.MinConfidence,
		Delimiter:     cfg.Input.DelimiterRune(),
		Columns: roster.Columns{
			Name:        cols.Name,
			CPF:         cols.CPF,
			Gender:      cols.Gender,
			BirthDate:   cols.BirthDate,
			Phone:       cols.Phone,
			Country:     cols.Country,
			Observation: cols.Observation,
		},
		Policy:      policy,
		DryRun:      cfg.Import.DryRun,
		Transformer: fhir.Transformer{CPFSystem: cfg.FHIR.CPFSystem},
	}, svcOpts...)
	if err != nil {
		return err
	}

	slog.Info("import starting",
		"file", cfg.Input.Path,
		"fhir_base_url", cfg.FHIR.BaseURL,
		"dry_run", cfg.Import.DryRun,
		"row_error_policy", policy,
		"history", len(svcOpts) > 0,
	)

	_, err = svc.Run(ctx, cfg.Input.Path)
	return err
}

// openHistory connects the run-history pool and checks it is reachable.
func openHistory(ctx context.Context, db config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(db.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(db.MaxConns)
	poolConfig.MinConns = int32(db.MinConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, core.HistoryTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func runSandbox(cfg *config.Config) error {
	server := web.NewServer(web.NewStore(), web.Options{
		APIKeys:        cfg.Sandbox.APIKeys,
		TrustedProxies: cfg.Sandbox.TrustedProxies,
		RateLimit:      cfg.Sandbox.RateLimit,
	})

	slog.Info("sandbox configured",
		"addr", cfg.Sandbox.Addr(),
		"api_key_required", cfg.Sandbox.RequireAPIKey(),
		"rate_limit", cfg.Sandbox.RateLimit,
	)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Sandbox.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Sandbox.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("sandbox server: %w", err)
	}
	<-done
	slog.Info("server stopped")
	return nil
}
