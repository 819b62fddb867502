package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seantiz/mathprepa/internal/api"
	"github.com/seantiz/mathprepa/internal/config"
	"github.com/seantiz/mathprepa/internal/identity"
	"github.com/seantiz/mathprepa/internal/observability"
	"github.com/seantiz/mathprepa/internal/store"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Run the HTTP API",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if addr != "" {
				cfg.ListenAddr = addr
			}
			if rootOpts.DatabaseURL != "" {
				cfg.DatabaseURL = rootOpts.DatabaseURL
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides MATHPREPA_LISTEN_ADDR)")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("mathprepa: starting",
		"listen_addr", cfg.ListenAddr,
		"version", Version,
		"trace_exporter", cfg.TraceExporter,
		"allowed_origins", cfg.AllowedOrigins,
	)

	shutdownTracing, err := observability.Setup(observability.TraceConfig{
		ServiceName: "mathprepa",
		Version:     Version,
		Exporter:    cfg.TraceExporter,
	}, logger)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("flush traces", "error", err)
		}
	}()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	auth := identity.NewAuthenticator(cfg.JWTSecret, db, logger)
	srv := api.NewServer(cfg.ListenAddr, db, auth, api.Options{
		SessionLifetime: cfg.SessionLifetime,
		ViewIdleTimeout: cfg.ViewIdleTimeout,
		SecureCookies:   cfg.SecureCookies,
		AllowedOrigins:  cfg.AllowedOrigins,
	}, logger)

	return srv.Run()
}
