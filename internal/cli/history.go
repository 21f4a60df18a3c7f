package cli

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/serialscope/serialscope/internal/config"
	"github.com/serialscope/serialscope/internal/constants"
	"github.com/serialscope/serialscope/internal/history"
)

var (
	historyLimit  int
	historyClear  bool
	historySearch string
	historyDelete string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the keyword sets used by past watches",
	Long: `History lists the keyword sets remembered from previous watch runs, most
recent first. Entries can be searched, deleted by number, or cleared.`,
	Run: func(cmd *cobra.Command, args []string) {
		exitCode = newApp().cmdHistory(historyLimit, historyClear, historySearch, splitCSV(historyDelete))
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Show at most N entries")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "Delete all entries")
	historyCmd.Flags().StringVar(&historySearch, "search", "", "Only entries containing this text")
	historyCmd.Flags().StringVar(&historyDelete, "delete", "", "Delete entries by number (comma separated)")
	rootCmd.AddCommand(historyCmd)
}

// historyFilePath resolves where the keyword history lives. The config
// file's history_file wins when the config is readable.
func historyFilePath(configPath string) string {
	cfg, err := config.Load(configPath)
	if err != nil {
		return constants.DefaultHistoryFile
	}
	return cfg.HistoryFile
}

// cmdHistory handles the 'history' command
func (a *App) cmdHistory(limit int, clear bool, search string, del []string) int {
	logger := newLogger("warn")
	store := history.NewStore(historyFilePath(a.configPath), logger)

	if clear {
		removed, err := store.Clear()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("Removed %d entries\n", removed)
		return 0
	}

	if len(del) > 0 {
		// The table numbers entries from 1
		indices := make([]int, 0, len(del))
		for _, raw := range del {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				fmt.Fprintf(os.Stderr, "Error: invalid entry number %q\n", raw)
				return 1
			}
			indices = append(indices, n-1)
		}
		removed, err := store.DeleteIndices(indices)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("Removed %d entries\n", removed)
		return 0
	}

	entries := store.Search(search)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if len(entries) == 0 {
		fmt.Println("No keyword history")
		return 0
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tKEYWORDS\tUSED\tLAST USED")
	for i, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", i+1, e.Keywords, e.UseCount, e.LastUsed)
	}
	w.Flush()
	return 0
}
