package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/serialscope/serialscope/internal/config"
	"github.com/serialscope/serialscope/internal/constants"
)

// Version is set during build
var Version = "dev"

// Global flags
var (
	configPath           string
	apiAddr              string
	apiAddrExplicitlySet bool
	verbose              bool
)

// exitCode carries a nonzero command result out of Execute
var exitCode int

// App carries the resolved global options a command runs with.
type App struct {
	apiAddr              string
	configPath           string
	apiAddrExplicitlySet bool
}

func newApp() *App {
	return &App{
		apiAddr:              apiAddr,
		configPath:           configPath,
		apiAddrExplicitlySet: apiAddrExplicitlySet,
	}
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "serialscope",
	Short: "A multi-port serial monitoring engine",
	Long: `serialscope watches serial ports for lines matching keywords or
regular expressions. It supports:
  - Concurrent monitoring of many ports with per-port log files
  - Keyword and regex filtering with live rule and baud updates
  - Binary dump extraction to .bin files
  - Session recording and replay
  - An HTTP API with SSE streaming and Prometheus metrics`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Check if --addr was explicitly provided
		if cmd.Flags().Changed("addr") {
			apiAddrExplicitlySet = true
		}

		// For client commands, try to discover API address if not explicitly set
		clientCommands := map[string]bool{
			"status": true,
			"lines":  true,
			"send":   true,
			"stop":   true,
		}
		if clientCommands[cmd.Name()] && !apiAddrExplicitlySet {
			apiAddr = discoverAPIAddress()
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("serialscope version %s\n", Version)
	},
}

func init() {
	// Persistent flags available to all subcommands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", constants.DefaultConfigFile, "Config file")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", constants.DefaultAPIAddress, "API address for remote commands")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	// Set version template
	rootCmd.SetVersionTemplate("serialscope version {{.Version}}\n")

	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the process logger from the configured level. The
// --verbose flag forces debug.
func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	if verbose {
		lvl = logrus.DebugLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// loadAPIAddrFromConfig attempts to read the API address from the config file.
// Returns empty string if config doesn't exist or can't be read.
func loadAPIAddrFromConfig() string {
	cfg, err := config.Load(configPath)
	if err != nil {
		return "" // Config doesn't exist or is invalid, use default
	}
	return fmt.Sprintf("http://%s:%d", cfg.API.Host, cfg.API.Port)
}

// discoverAPIAddress attempts to discover the API address.
// Priority:
// 1. Config file (serialscope.yaml) - for the configured host and port
// 2. Default address
func discoverAPIAddress() string {
	if addr := loadAPIAddrFromConfig(); addr != "" {
		return addr
	}
	return constants.DefaultAPIAddress
}

// getConfiguredPortNames returns port names from config for shell completion
func getConfiguredPortNames() []string {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(cfg.Ports))
	for name := range cfg.Ports {
		names = append(names, name)
	}
	return names
}

// completeConfiguredPorts offers the configured port names for flag completion
func completeConfiguredPorts(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return getConfiguredPortNames(), cobra.ShellCompDirectiveNoFileComp
}
