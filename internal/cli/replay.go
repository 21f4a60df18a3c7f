package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/serialscope/serialscope/internal/constants"
	"github.com/serialscope/serialscope/internal/record"
	"github.com/serialscope/serialscope/internal/serialport"
)

var (
	replayPort  string
	replayBaud  int
	replaySpeed float64
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Replay the send events of a recording to a serial port",
	Long: `Replay opens a serial port and writes the send events captured in a
recording file, waiting out the recorded gaps between sends. The port and
baud rate default to the values stored in the recording.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitCode = newApp().cmdReplay(args[0], replayPort, replayBaud, replaySpeed)
	},
}

func init() {
	replayCmd.Flags().StringVarP(&replayPort, "port", "p", "", "Serial port to write to (defaults to the recorded port)")
	replayCmd.Flags().IntVarP(&replayBaud, "baud", "b", 0, "Baud rate (defaults to the recorded rate)")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Timing multiplier, 2.0 halves the recorded gaps")
	_ = replayCmd.RegisterFlagCompletionFunc("port", completeConfiguredPorts)
	rootCmd.AddCommand(replayCmd)
}

// portSender adapts an open serial connection to the player's output.
type portSender struct {
	port serialport.Port
}

func (s portSender) Send(data []byte) error {
	_, err := s.port.Write(data)
	return err
}

// cmdReplay handles the 'replay' command
func (a *App) cmdReplay(file, port string, baud int, speed float64) int {
	player, err := record.Load(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	meta := player.Meta()
	if port == "" {
		port = meta.Port
	}
	if port == "" {
		fmt.Fprintln(os.Stderr, "Error: the recording names no port, use --port")
		return 1
	}
	if baud == 0 {
		baud = meta.BaudRate
	}
	if baud == 0 {
		baud = constants.DefaultBaudRate
	}

	total := player.SendCount()
	if total == 0 {
		fmt.Printf("Nothing to replay: %s has no send events\n", file)
		return 0
	}

	conn, err := serialport.NewSystemOpener(constants.ReadTimeout).Open(port, baud)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Replaying %d sends from %s to %s at %d baud (speed %.1fx)\n",
		total, file, port, baud, speed)

	sent, err := player.Play(ctx, portSender{port: conn}, speed)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Printf("\nReplay interrupted after %d of %d sends\n", sent, total)
			return 0
		}
		fmt.Fprintf(os.Stderr, "Replay failed after %d of %d sends: %v\n", sent, total, err)
		return 1
	}

	fmt.Printf("Replayed %d sends\n", sent)
	return 0
}
