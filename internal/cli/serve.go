package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/serialscope/serialscope/internal/api"
	"github.com/serialscope/serialscope/internal/config"
	"github.com/serialscope/serialscope/internal/constants"
	"github.com/serialscope/serialscope/internal/domain"
	"github.com/serialscope/serialscope/internal/feed"
	"github.com/serialscope/serialscope/internal/metrics"
	"github.com/serialscope/serialscope/internal/monitor"
	"github.com/serialscope/serialscope/internal/record"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve [ports...]",
	Short: "Run the monitoring engine with the HTTP API",
	Long: `Serve loads the config file, opens the configured ports in parallel and
runs the HTTP API until SIGINT, SIGTERM or an API shutdown request. Port
arguments restrict startup to a subset of the configured ports; ports can
still be added later through the API.`,
	Run: func(cmd *cobra.Command, args []string) {
		exitCode = newApp().cmdServe(servePort, args)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Override the API port")
	rootCmd.AddCommand(serveCmd)
}

// isLocalhost checks if the host is a localhost address
func isLocalhost(host string) bool {
	return host == "" || host == "127.0.0.1" || host == "localhost" || host == "::1"
}

// cmdServe handles the 'serve' command
func (a *App) cmdServe(portOverride int, only []string) int {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}

	// Get config directory for resolving relative paths in env files
	configDir := filepath.Dir(a.configPath)
	if configDir == "." {
		if absPath, err := filepath.Abs(a.configPath); err == nil {
			configDir = filepath.Dir(absPath)
		}
	}
	if err := config.ApplyEnvOverrides(cfg, configDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error applying environment overrides: %v\n", err)
		return 1
	}

	// Override port if specified
	if portOverride > 0 {
		cfg.API.Port = portOverride
	}

	logger := newLogger(cfg.LogLevel)

	// Create the line feed, the session registry, and the traffic recorder
	feedMgr := feed.NewManager(feed.ManagerConfig{Logger: logger})
	registry := monitor.NewRegistry(cfg.LogDir, monitor.RegistryConfig{
		DumpDir: cfg.DumpDir,
		Sink:    feedMgr,
		Logger:  logger,
	})
	recorder := record.NewRecorder(cfg.RecordingDir, feedMgr, logger)

	// Create shutdown channel
	shutdownCh := make(chan struct{})
	shutdownFn := func() {
		close(shutdownCh)
	}

	// Create API handlers and server
	collector := metrics.NewCollector(registry, feedMgr)
	handlers := api.NewHandlers(registry, feedMgr, recorder, a.configPath, shutdownFn, logger)
	apiServer := api.NewServer(api.ServerConfig{
		Host:      cfg.API.Host,
		Port:      cfg.API.Port,
		AuthToken: cfg.API.AuthToken,
	}, handlers, metrics.Handler(collector))

	// Set up signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("Starting serialscope with config: %s\n", a.configPath)
	if cfg.API.AuthToken != "" {
		fmt.Printf("API server: http://%s (auth enabled)\n", apiServer.Addr())
	} else {
		fmt.Printf("API server: http://%s (no auth)\n", apiServer.Addr())
		if !isLocalhost(cfg.API.Host) {
			fmt.Fprintf(os.Stderr, "WARNING: No auth token while binding to all interfaces (%s)\n", cfg.API.Host)
			fmt.Fprintf(os.Stderr, "         Any network client can control this engine.\n")
		}
	}

	// Open the configured ports in parallel
	configs := cfg.ToSessionConfigs()
	if len(only) > 0 {
		configs = filterConfigs(configs, only)
	}
	if len(configs) > 0 {
		fmt.Printf("Opening ports: %s\n", strings.Join(configNames(configs), ", "))
		results := registry.AddManyParallel(configs)
		for _, sc := range configs {
			if err := results[sc.Port]; err != nil {
				fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", sc.Port, err)
			}
		}
	}

	// Start API server in background
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "API server error: %v\n", err)
		}
	}()

	// Wait for shutdown signal
	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
	case <-shutdownCh:
		fmt.Println("\nShutdown requested via API...")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
	defer shutdownCancel()

	apiServer.Shutdown(shutdownCtx)
	recorder.StopAll()
	registry.Close()
	feedMgr.Close()

	fmt.Println("Shutdown complete")
	return 0
}

// filterConfigs keeps only the named ports, warning about names the config
// does not define.
func filterConfigs(configs []domain.SessionConfig, names []string) []domain.SessionConfig {
	byPort := make(map[string]domain.SessionConfig, len(configs))
	for _, sc := range configs {
		byPort[sc.Port] = sc
	}

	out := make([]domain.SessionConfig, 0, len(names))
	for _, name := range names {
		sc, ok := byPort[name]
		if !ok {
			fmt.Fprintf(os.Stderr, "Warning: port %s is not in the config\n", name)
			continue
		}
		out = append(out, sc)
	}
	return out
}

// configNames lists the port names of the given session configs
func configNames(configs []domain.SessionConfig) []string {
	names := make([]string, 0, len(configs))
	for _, sc := range configs {
		names = append(names, sc.Port)
	}
	return names
}
