package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebogdum/lfsauth/auth"
	"github.com/ebogdum/lfsauth/config"
	"github.com/ebogdum/lfsauth/core"
	corelog "github.com/ebogdum/lfsauth/core/log"
	"github.com/ebogdum/lfsauth/server"
)

var rootCmd = &cobra.Command{
	Use:   "lfsauth",
	Short: "lfsauth - Git LFS transfer authorization service",
	Long: `lfsauth issues and verifies the short-lived tokens that gate Git LFS
object transfers, and routes projects to filesystem or S3 storage backends.`,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the lfsauth server",
	RunE:  runServer,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  "Validate the lfsauth configuration and display the loaded settings",
	RunE:  validateConfig,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <project>...",
	Short: "Show the namespace section and backend serving each project",
	Args:  cobra.MinimumNArgs(1),
	RunE:  resolveProjects,
}

var (
	configFilePath string
	warmup         bool
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&configFilePath, "config", "c", "", "Path to configuration file")
	serverCmd.Flags().BoolVar(&warmup, "warmup", false, "Build every backend's repository before serving")

	configCmd.AddCommand(validateCmd, resolveCmd)
	rootCmd.AddCommand(serverCmd, configCmd)

	// If no command specified, default to server
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "server")
	}

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// runServer starts the lfsauth server
func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := initializeLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", err)
		}
	}()

	for _, warning := range cfg.Warnings {
		logger.Warn("Configuration adjusted", zap.String("detail", warning))
	}

	logger.Info("Starting lfsauth server",
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.String("external_url", cfg.Server.ExternalURL),
		zap.String("default_backend", cfg.Storage.Backend))

	// The cipher key lives only in memory; tokens do not survive a restart
	cipher, err := auth.NewCipher(logger.Named("cipher"))
	if err != nil {
		return fmt.Errorf("failed to initialize token cipher: %w", err)
	}
	contentAuth := auth.NewContentAuthorizer(cipher, logger.Named("content_auth"))
	transferAuth := auth.NewTransferAuthorizer(cipher, cfg.Auth.SSHExpirationSeconds, logger.Named("transfer_auth"))
	users := auth.NewUserProvider(transferAuth, auth.NewStaticAccounts(cfg.Auth.KnownUsers), logger.Named("users"))
	authenticator := auth.NewAPIKeyAuthenticator(cfg.Auth.APIKeys)

	cache := core.NewRepositoryCache(core.NewLoader(&cfg, contentAuth, logger.Named("backends")), logger.Named("cache"))
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Error("Failed to close repositories", zap.Error(err))
		}
	}()

	resolver, err := core.NewResolver(&cfg, cache, logger.Named("resolver"))
	if err != nil {
		return fmt.Errorf("failed to initialize backend resolver: %w", err)
	}

	if warmup {
		logger.Info("Warming up backend repositories")
		if err := resolver.Warmup(ctx); err != nil {
			logger.Warn("Some backends failed to initialize", zap.Error(err))
		}
	}

	router := server.NewRouter(resolver, contentAuth, transferAuth, users, authenticator, &cfg, logger)

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	var metricsSrv *http.Server
	if cfg.Metrics.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.Metrics.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("Starting metrics server", zap.String("addr", cfg.Metrics.ListenAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		if cfg.Server.CertFile != "" && cfg.Server.KeyFile != "" {
			logger.Info("Starting HTTPS server", zap.String("addr", cfg.Server.ListenAddr))
			serveErr <- srv.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
			return
		}
		logger.Info("Starting HTTP server", zap.String("addr", cfg.Server.ListenAddr))
		serveErr <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	}

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server forced to shutdown", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Info("Server exited gracefully")
	return nil
}

// validateConfig validates the lfsauth configuration and displays settings
func validateConfig(cmd *cobra.Command, args []string) error {
	fmt.Println("Validating configuration...")

	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		fmt.Printf("❌ Configuration validation failed: %v\n", err)
		return err
	}

	resolver, err := newOfflineResolver(&cfg)
	if err != nil {
		fmt.Printf("❌ Namespace configuration is invalid: %v\n", err)
		return err
	}

	fmt.Println("✅ Configuration is valid")
	for _, warning := range cfg.Warnings {
		fmt.Printf("⚠️  %s\n", warning)
	}

	fmt.Printf("Listen Address: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("External URL: %s\n", cfg.Server.ExternalURL)
	fmt.Printf("TLS: %t\n", cfg.Server.CertFile != "" && cfg.Server.KeyFile != "")
	fmt.Printf("API Keys: %d configured\n", len(cfg.Auth.APIKeys))
	fmt.Printf("SSH Token Lifetime: %ds\n", cfg.Auth.SSHExpirationSeconds)
	fmt.Println("Backends:")
	for _, b := range resolver.Backends() {
		fmt.Printf("  - %s\n", b)
	}
	fmt.Printf("Namespaces: %d, Project Overrides: %d\n", len(cfg.LFS.Namespaces), len(cfg.LFS.Projects))

	return nil
}

// resolveProjects prints how each project argument is routed
func resolveProjects(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	resolver, err := newOfflineResolver(&cfg)
	if err != nil {
		return err
	}

	for _, project := range args {
		section, ok := resolver.Section(project)
		switch {
		case !ok:
			fmt.Printf("%s: no namespace section, LFS unavailable\n", project)
			continue
		case !section.Enabled:
			fmt.Printf("%s: section %q, LFS disabled\n", project, section.Pattern)
			continue
		}

		backend, err := resolver.BackendFor(project)
		if err != nil {
			fmt.Printf("%s: section %q, %v\n", project, section.Pattern, err)
			continue
		}
		fmt.Printf("%s: section %q, backend %s, read_only=%t, max_object_size=%d\n",
			project, section.Pattern, backend, section.ReadOnly, section.MaxObjectSize)
	}
	return nil
}

// newOfflineResolver builds a resolver whose repositories are never constructed
func newOfflineResolver(cfg *config.AppConfig) (*core.Resolver, error) {
	logger := zap.NewNop()
	cache := core.NewRepositoryCache(core.NewLoader(cfg, nil, logger), logger)
	return core.NewResolver(cfg, cache, logger)
}

// initializeLogger creates a zap logger based on configuration
func initializeLogger(logCfg config.LogConfig) (*zap.Logger, error) {
	var cfg zap.Config

	if logCfg.Format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	switch logCfg.Level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	if logCfg.Sanitize != "" {
		corelog.SetMode(corelog.ParseMode(logCfg.Sanitize))
	}

	return cfg.Build()
}
