package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/serialscope/serialscope/internal/api"
	"github.com/serialscope/serialscope/internal/monitor"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List serial ports available on this machine",
	Run: func(cmd *cobra.Command, args []string) {
		exitCode = newApp().cmdList(listJSON)
	},
}

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine status and monitored ports",
	Run: func(cmd *cobra.Command, args []string) {
		exitCode = newApp().cmdStatus(statusJSON)
	},
}

var (
	linesPorts   string
	linesCount   int
	linesPattern string
	linesRegex   bool
	linesFollow  bool
	linesJSON    bool
	linesNoColor bool
)

var linesCmd = &cobra.Command{
	Use:   "lines",
	Short: "Show buffered lines, or follow the live stream",
	Run: func(cmd *cobra.Command, args []string) {
		params := LineParams{
			Ports:   splitCSV(linesPorts),
			Lines:   linesCount,
			Pattern: linesPattern,
			Regex:   linesRegex,
		}
		exitCode = newApp().cmdLines(params, linesFollow, linesJSON, linesNoColor)
	},
}

var (
	sendPort string
	sendRaw  bool
)

var sendCmd = &cobra.Command{
	Use:   "send DATA...",
	Short: "Write data to a monitored port",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitCode = newApp().cmdSend(sendPort, strings.Join(args, " "), sendRaw)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Shut down a running engine",
	Run: func(cmd *cobra.Command, args []string) {
		exitCode = newApp().cmdStop()
	},
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "JSON output")

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "JSON output")

	linesCmd.Flags().StringVarP(&linesPorts, "port", "p", "", "Only these ports (comma separated)")
	linesCmd.Flags().IntVarP(&linesCount, "lines", "n", 0, "Number of lines to fetch")
	linesCmd.Flags().StringVar(&linesPattern, "pattern", "", "Only lines containing this pattern")
	linesCmd.Flags().BoolVar(&linesRegex, "regex", false, "Treat the pattern as a regular expression")
	linesCmd.Flags().BoolVarP(&linesFollow, "follow", "f", false, "Stream new lines as they arrive")
	linesCmd.Flags().BoolVar(&linesJSON, "json", false, "JSON output")
	linesCmd.Flags().BoolVar(&linesNoColor, "no-color", false, "Plain output without ANSI colors")
	_ = linesCmd.RegisterFlagCompletionFunc("port", completeConfiguredPorts)

	sendCmd.Flags().StringVarP(&sendPort, "port", "p", "", "Target port (required)")
	_ = sendCmd.MarkFlagRequired("port")
	sendCmd.Flags().BoolVar(&sendRaw, "raw", false, "Send exactly as given, without a trailing CRLF")
	_ = sendCmd.RegisterFlagCompletionFunc("port", completeConfiguredPorts)

	rootCmd.AddCommand(listCmd, statusCmd, linesCmd, sendCmd, stopCmd)
}

// cmdList handles the 'list' command
func (a *App) cmdList(jsonOutput bool) int {
	ports, err := monitor.ListAvailablePorts()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	sort.Strings(ports)

	printAvailablePorts(ports, jsonOutput)
	return 0
}

// printAvailablePorts renders the port enumeration
func printAvailablePorts(ports []string, jsonOutput bool) {
	if jsonOutput {
		if err := json.NewEncoder(os.Stdout).Encode(api.AvailablePortsResponse{Ports: ports}); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to encode output: %v\n", err)
		}
		return
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tPORT")
	for i, name := range ports {
		fmt.Fprintf(w, "%d\t%s\n", i+1, name)
	}
	w.Flush()
}

// cmdStatus handles the 'status' command
func (a *App) cmdStatus(jsonOutput bool) int {
	client := a.client()

	status, err := client.GetStatus()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Is serialscope running? Try 'serialscope serve' first.\n")
		return 1
	}

	ports, err := client.GetPorts()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if jsonOutput {
		output := map[string]interface{}{
			"status": status,
			"ports":  ports.Ports,
		}
		if err := json.NewEncoder(os.Stdout).Encode(output); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to encode output: %v\n", err)
		}
		return 0
	}

	fmt.Printf("Status: %s\n", status.Status)
	fmt.Printf("Uptime: %s\n", formatDuration(time.Duration(status.UptimeSeconds)*time.Second))
	fmt.Printf("Config: %s\n", status.ConfigFile)
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PORT\tBAUD\tSTATE\tRECEIVED\tLINES\tMATCHED\tUPTIME\tFLAGS")
	fmt.Fprintln(w, "----\t----\t-----\t--------\t-----\t-------\t------\t-----")

	for _, p := range ports.Ports {
		uptime := formatDuration(time.Duration(p.UptimeSeconds) * time.Second)
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Port, p.BaudRate, p.State,
			humanize.Bytes(p.TotalBytes),
			humanize.Comma(int64(p.Lines)),
			humanize.Comma(int64(p.MatchedLines)),
			uptime, portFlags(p))
	}
	w.Flush()

	return 0
}

// portFlags summarizes dump and recording state for the status table
func portFlags(p api.PortResponse) string {
	var flags []string
	if p.DumpActive {
		flags = append(flags, "dump")
	}
	if p.Recording {
		flags = append(flags, "rec")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}

// cmdLines handles the 'lines' command
func (a *App) cmdLines(params LineParams, follow, jsonOutput, noColor bool) int {
	client := a.client()
	printer := NewLinePrinter(noColor)

	if follow {
		err := client.StreamLines(params, func(event api.LineResponse) {
			if jsonOutput {
				if err := json.NewEncoder(os.Stdout).Encode(event); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to encode line: %v\n", err)
				}
			} else {
				printer.PrintAPILine(event)
			}
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	lines, err := client.GetLines(params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if jsonOutput {
		if err := json.NewEncoder(os.Stdout).Encode(lines); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to encode lines: %v\n", err)
		}
		return 0
	}

	for _, event := range lines.Lines {
		printer.PrintAPILine(event)
	}
	if lines.FilteredCount < lines.TotalCount {
		fmt.Printf("\n(showing %d of %d lines)\n", lines.FilteredCount, lines.TotalCount)
	}
	return 0
}

// cmdSend handles the 'send' command
func (a *App) cmdSend(port, data string, raw bool) int {
	if !raw {
		data += "\r\n"
	}

	client := a.client()
	if err := client.Send(port, data); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to send to %s: %v\n", port, err)
		return 1
	}

	fmt.Printf("Sent %d bytes to %s\n", len(data), port)
	return 0
}

// cmdStop handles the 'stop' command
func (a *App) cmdStop() int {
	client := a.client()

	if err := client.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Println("Shutdown initiated")
	return 0
}

// formatDuration formats a duration nicely
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
