package cli

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/serialscope/serialscope/internal/constants"
	"github.com/serialscope/serialscope/internal/domain"
	"github.com/serialscope/serialscope/internal/history"
	"github.com/serialscope/serialscope/internal/monitor"
)

// watchOptions collects the watch command flags
type watchOptions struct {
	ports           []string
	baud            int
	keywords        []string
	patterns        []string
	saveAll         bool
	noColor         bool
	throttleMs      int
	caseInsensitive bool
	dumpMarker      string
	autoDump        bool
	logDir          string
	dumpDir         string
}

var watchFlags = struct {
	ports    string
	keywords string
	patterns string
	opts     watchOptions
}{}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor ports directly and print matched lines",
	Long: `Watch opens the given ports, frames their output into lines and prints
every line that matches a keyword or regex. With no keywords and no
patterns every line matches. Ctrl-C stops all ports and prints a summary.`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := watchFlags.opts
		opts.ports = splitCSV(watchFlags.ports)
		opts.keywords = splitCSV(watchFlags.keywords)
		opts.patterns = splitCSV(watchFlags.patterns)
		exitCode = newApp().cmdWatch(opts)
	},
}

func init() {
	watchCmd.Flags().StringVarP(&watchFlags.ports, "port", "p", "", "Ports to monitor (comma separated, required)")
	_ = watchCmd.MarkFlagRequired("port")
	watchCmd.Flags().IntVarP(&watchFlags.opts.baud, "baud", "b", constants.DefaultBaudRate, "Baud rate for all ports")
	watchCmd.Flags().StringVarP(&watchFlags.keywords, "keywords", "k", "", "Keywords to match (comma separated)")
	watchCmd.Flags().StringVarP(&watchFlags.patterns, "regex", "r", "", "Regex patterns to match (comma separated)")
	watchCmd.Flags().BoolVar(&watchFlags.opts.saveAll, "save-all", false, "Log every line, not just matches")
	watchCmd.Flags().BoolVar(&watchFlags.opts.noColor, "no-color", false, "Plain output without ANSI colors")
	watchCmd.Flags().IntVar(&watchFlags.opts.throttleMs, "throttle", 0, "Minimum milliseconds between printed lines per port")
	watchCmd.Flags().BoolVar(&watchFlags.opts.caseInsensitive, "ignore-case", false, "Case-insensitive matching")
	watchCmd.Flags().StringVar(&watchFlags.opts.dumpMarker, "dump-marker", "", "Marker that flags a line as binary dump payload")
	watchCmd.Flags().BoolVar(&watchFlags.opts.autoDump, "dump", false, "Open the dump sink immediately")
	watchCmd.Flags().StringVar(&watchFlags.opts.logDir, "log-dir", constants.DefaultLogDir, "Directory for session log files")
	watchCmd.Flags().StringVar(&watchFlags.opts.dumpDir, "dump-dir", constants.DefaultDumpDir, "Directory for dump files")
	_ = watchCmd.RegisterFlagCompletionFunc("port", completeConfiguredPorts)
	rootCmd.AddCommand(watchCmd)
}

// sessionConfigs expands the watch flags into one config per port. Every
// session shares the printer callback.
func (o watchOptions) sessionConfigs(printer *LinePrinter) []domain.SessionConfig {
	configs := make([]domain.SessionConfig, 0, len(o.ports))
	for _, port := range o.ports {
		cfg := domain.SessionConfig{
			Port:          port,
			BaudRate:      o.baud,
			Keywords:      o.keywords,
			RegexPatterns: o.patterns,
			Callback:      printer.PrintCallback,
			Options: domain.SessionOptions{
				SaveAllToLog:     o.saveAll,
				ColorOutput:      !o.noColor,
				CaseInsensitive:  o.caseInsensitive,
				CallbackThrottle: time.Duration(o.throttleMs) * time.Millisecond,
			},
		}
		if o.dumpMarker != "" || o.autoDump {
			cfg.Options.Dump = domain.DumpConfig{Marker: o.dumpMarker, AutoStart: o.autoDump}
		}
		configs = append(configs, cfg)
	}
	return configs
}

// cmdWatch handles the 'watch' command
func (a *App) cmdWatch(opts watchOptions) int {
	if len(opts.ports) == 0 {
		fmt.Fprintf(os.Stderr, "Error: at least one port is required (use -p)\n")
		return 1
	}

	logger := newLogger("warn")
	printer := NewLinePrinter(opts.noColor)

	registry := monitor.NewRegistry(opts.logDir, monitor.RegistryConfig{
		DumpDir: opts.dumpDir,
		Logger:  logger,
	})

	fmt.Printf("Watching %s at %d baud (Ctrl-C to stop)\n", strings.Join(opts.ports, ", "), opts.baud)
	results := registry.AddManyParallel(opts.sessionConfigs(printer))

	started := 0
	for _, port := range opts.ports {
		if err := results[port]; err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", port, err)
		} else {
			started++
		}
	}
	if started == 0 {
		registry.Close()
		return 1
	}

	// Remember the keyword set for quick reuse
	if len(opts.keywords) > 0 {
		store := history.NewStore(historyFilePath(a.configPath), logger)
		if err := store.Add(strings.Join(opts.keywords, ",")); err != nil {
			logger.WithError(err).Warn("could not record keyword history")
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	fmt.Printf("\nReceived %s, stopping...\n", sig)

	stats := registry.AllStats()
	registry.Close()
	printWatchSummary(stats)
	return 0
}

// printWatchSummary reports per-port totals after a watch run
func printWatchSummary(stats map[string]domain.Stats) {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		st := stats[name]
		fmt.Printf("%s: %s received, %s lines, %s matched\n",
			name,
			humanize.Bytes(st.TotalBytes),
			humanize.Comma(int64(st.Lines)),
			humanize.Comma(int64(st.MatchedLines)))
	}
}
