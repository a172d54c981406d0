// Package cmd defines and implements the CLI commands for the ingest executable.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mkonefal2/clickbait-verifier/internal/api"
	"github.com/mkonefal2/clickbait-verifier/internal/app"
	"github.com/mkonefal2/clickbait-verifier/internal/config"
	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
	"github.com/mkonefal2/clickbait-verifier/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what the commands need from the application. Tests inject a fake.
type App interface {
	RunSources(ctx context.Context, name string) ([]crawler.ItemResult, error)
	FetchURLs(ctx context.Context, urls []string) []crawler.ItemResult
	Unprocessed(ctx context.Context, limit int) ([]crawler.ArticleRecord, error)
	ExportUnprocessed(ctx context.Context, limit int) (string, int, error)
	ImportAnalyses(ctx context.Context, r io.Reader) (app.ImportSummary, error)
	Server() *api.Server
	Config() config.Config
	Logger() *zap.Logger
	Close()
}

// AppFactory builds the App once configuration and logging are ready.
type AppFactory func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error)

func defaultFactory(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

type rootOptions struct {
	configPath string
	logLevel   string
}

// newRootCmd creates the root command. Every subcommand gets the App from the context.
func newRootCmd(factory AppFactory) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Collects news articles for the clickbait scoring agent.",
		Long: `ingest fetches articles from configured news sources (listing pages, RSS feeds
or operator-supplied URLs), extracts title, lead image, publish date and body text, and stores
one deduplicated record per URL. Records are exported as JSON for the scoring agent, whose
analyses can be imported back or posted to the HTTP API.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			level := cfg.Logging.Level
			if opts.logLevel != "" {
				level = opts.logLevel
			}
			logger, err := logging.New(cfg.Logging.Development, logging.WithLevel(level))
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := factory(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
				_ = appInstance.Logger().Sync() //nolint:errcheck // stderr sync fails on some terminals
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default searches ./config.yaml, /etc/clickbait-verifier, $HOME/.clickbait-verifier)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	cmd.AddCommand(
		newRunCmd(),
		newFetchCmd(),
		newServeCmd(),
		newExportCmd(),
		newImportCmd(),
		newUnprocessedCmd(),
	)
	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(defaultFactory).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1) //nolint:gocritic // stop already called
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
