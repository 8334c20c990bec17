package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/psicolfis/checkout-api/internal/platform/config"
	"github.com/psicolfis/checkout-api/internal/platform/observability"
	"github.com/psicolfis/checkout-api/internal/platform/secrets"
)

var Version = "dev"

type rootOptions struct {
	envFile  string
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "checkoutctl",
		Short:         "Operator tooling for the checkout API",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file with API_* overrides")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(migrateCmd(opts))
	rootCmd.AddCommand(catalogCmd(opts))
	rootCmd.AddCommand(reconcileCmd(opts))
	return rootCmd
}

// session bundles what every subcommand needs after loading configuration.
type session struct {
	cfg     config.Config
	logger  *zap.Logger
	closeFn func()
}

func (s *session) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}

func openSession(ctx context.Context, opts *rootOptions) (*session, error) {
	logger, err := observability.NewLogger(opts.logLevel)
	if err != nil {
		return nil, fmt.Errorf("initialise logger: %w", err)
	}
	logger = logger.Named("checkoutctl")

	envValues, err := config.EnvironmentValues(config.WithEnvFile(opts.envFile))
	if err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	fetcherOpts := []secrets.Option{secrets.WithLogger(logger.Named("secrets"))}
	project := strings.TrimSpace(envValues["API_SECRET_DEFAULT_PROJECT_ID"])
	if project == "" {
		project = strings.TrimSpace(envValues["API_FIRESTORE_PROJECT_ID"])
	}
	if project != "" {
		fetcherOpts = append(fetcherOpts, secrets.WithDefaultProject(project))
	}
	if path := strings.TrimSpace(envValues["API_SECRET_FALLBACK_FILE"]); path != "" {
		fetcherOpts = append(fetcherOpts, secrets.WithFallbackFile(path))
	}
	if creds := strings.TrimSpace(envValues["API_SECRET_CREDENTIALS_FILE"]); creds != "" {
		fetcherOpts = append(fetcherOpts, secrets.WithClientOptions(option.WithCredentialsFile(creds)))
	}
	fetcher, err := secrets.NewFetcher(ctx, fetcherOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise secret fetcher: %w", err)
	}

	cfg, err := config.Load(ctx,
		config.WithEnvFile(opts.envFile),
		config.WithSecretResolver(fetcher),
	)
	if err != nil {
		_ = fetcher.Close()
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	return &session{
		cfg:    cfg,
		logger: logger,
		closeFn: func() {
			_ = fetcher.Close()
			_ = logger.Sync()
		},
	}, nil
}
