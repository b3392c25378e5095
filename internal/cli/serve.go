package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/operia/operia/internal/api"
	"github.com/operia/operia/internal/config"
	"github.com/operia/operia/internal/extract"
	"github.com/operia/operia/internal/fetch"
	"github.com/operia/operia/internal/logging"
	"github.com/operia/operia/internal/metrics"
	"github.com/operia/operia/internal/models"
	"github.com/operia/operia/internal/notify"
	"github.com/operia/operia/internal/oauth"
	"github.com/operia/operia/internal/pipeline"
	"github.com/operia/operia/internal/statetoken"
	"github.com/operia/operia/internal/store"
	"github.com/operia/operia/internal/tasks"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "server", "run"},
	Short:   "Start the Operia server",
	Long: `Start the Operia server in main mode.

This command starts the HTTP server that handles OAuth connect flows,
content sync, extraction, and task management.

Example:
  operia serve --config config.yaml

The server will start listening on the address configured in the config file.`,
	RunE: runServe,
}

var serveFlags struct {
	Host    string
	Port    int
	Timeout time.Duration
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.Host, "host", "", "Server host (overrides config)")
	serveCmd.Flags().IntVar(&serveFlags.Port, "port", 0, "Server port (overrides config)")
	serveCmd.Flags().DurationVar(&serveFlags.Timeout, "timeout", envDuration("SHUTDOWN_TIMEOUT", 0), "Shutdown timeout (overrides config)")

	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if globalFlags.Verbose {
		log.Println("Starting Operia server...")
		log.Printf("Config path: %s", globalFlags.Config)
	}

	// Load configuration. Load validates eagerly, so a broken config
	// fails here rather than on the first request.
	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Apply CLI flags to config
	if serveFlags.Host != "" {
		cfg.Server.Host = serveFlags.Host
	}
	if serveFlags.Port != 0 {
		cfg.Server.HTTPPort = serveFlags.Port
	}
	if globalFlags.DBPath != "" {
		cfg.Database.Path = globalFlags.DBPath
	}
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if serveFlags.Timeout > 0 {
		shutdownTimeout = serveFlags.Timeout
	}

	logger := logging.NewLogger(
		logging.WithLevel(logging.LogLevel(cfg.Server.LogLevel)),
		logging.WithService("operia"),
	)

	if globalFlags.Verbose {
		log.Printf("Configuration loaded successfully")
		log.Printf("Server host: %s, port: %d", cfg.Server.Host, cfg.Server.HTTPPort)
	}

	// Create SQLite store with WAL mode enabled
	sqliteStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create SQLite store: %w", err)
	}

	if globalFlags.Verbose {
		log.Printf("Database initialized at: %s", cfg.Database.Path)
	}

	codec := statetoken.New(cfg.StateToken.Secret, cfg.StateToken.TTL)
	exchangers := oauth.Exchangers(cfg)
	m := metrics.NewMetrics("operia")

	// App signing key is optional. Without it the code-host pipeline
	// runs on user tokens only.
	var signingKey *oauth.SigningKey
	if cfg.Providers.GitHub.AppID != "" && cfg.Providers.GitHub.PrivateKeyPath != "" {
		signingKey, err = oauth.LoadSigningKey(cfg.Providers.GitHub.PrivateKeyPath, logger)
		if err != nil {
			return fmt.Errorf("failed to load app signing key: %w", err)
		}
		if err := signingKey.StartWatcher(); err != nil {
			log.Printf("Signing key watcher warning: %v", err)
		}
	}
	tokens := oauth.NewTokenManager(cfg.Providers.GitHub, signingKey, m, logger)

	fetchers := map[models.Provider]fetch.Fetcher{
		models.ProviderNotion: fetch.NewWorkspaceFetcher(cfg.Providers.Notion.BaseURL),
		models.ProviderGitHub: fetch.NewCodeHostFetcher(cfg.Providers.GitHub.BaseURL),
	}

	engine := extract.NewEngine(extract.NewLLMClient(cfg.LLM), cfg.Skills, logger)
	materializer := tasks.NewMaterializer(sqliteStore, logger)
	notifier := notify.NewNotifier(cfg.Notify.Telegram)

	pipe := pipeline.NewService(sqliteStore, fetchers, tokens, engine, materializer, m, notifier, logger)

	// Create API server
	server := api.NewServer(cfg, sqliteStore, codec, exchangers, pipe, notifier, m, logger)

	setupGracefulShutdown(server, signingKey, loader, shutdownTimeout)

	log.Printf("Starting Operia HTTP server on %s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	log.Printf("Database: %s (WAL mode enabled)", cfg.Database.Path)

	if err := server.Run(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// setupGracefulShutdown handles graceful shutdown of all components
func setupGracefulShutdown(server *api.Server, signingKey *oauth.SigningKey, loader *config.Loader, timeout time.Duration) {
	sigChan := api.SetupSignalHandler()

	go func() {
		sig := api.WaitForSignal(sigChan)
		log.Printf("Received signal: %v", sig)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		log.Println("Shutting down API server...")
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Error during server shutdown: %v", err)
		}

		if signingKey != nil {
			signingKey.StopWatcher()
		}
		if loader != nil {
			loader.StopWatcher()
		}

		log.Println("Graceful shutdown completed")
		os.Exit(0)
	}()
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	return fallback
}
