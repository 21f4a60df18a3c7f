// Package ansi renders monitored lines for terminal output. Each port gets
// a stable color derived from its name so interleaved multi-port output
// stays readable.
package ansi

import (
	"fmt"
	"regexp"

	"github.com/zeebo/xxh3"
)

// Terminal control codes
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"

	// BrightBlack is used for timestamp prefixes
	BrightBlack = "\033[90m"

	// BrightRed is used for error output
	BrightRed = "\033[91m"
)

// PortColors is the palette used for port names in terminal output
var PortColors = []string{
	"\033[94m", // bright blue
	"\033[92m", // bright green
	"\033[96m", // bright cyan
	"\033[95m", // bright magenta
	"\033[93m", // bright yellow
	"\033[91m", // bright red
	"\033[34m", // blue
	"\033[32m", // green
	"\033[36m", // cyan
	"\033[35m", // magenta
}

// PortColor returns the palette entry for a port name. The same name always
// maps to the same color.
func PortColor(port string) string {
	return PortColors[int(xxh3.HashString(port)%uint64(len(PortColors)))]
}

// sgrPattern matches the SGR escape sequences this package emits.
var sgrPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// Strip removes ANSI color sequences from s.
func Strip(s string) string {
	return sgrPattern.ReplaceAllString(s, "")
}

// FormatLine renders a timestamped line with its port prefix. With color
// disabled the result matches the session log entry format.
func FormatLine(port, timestamp, line string, color bool) string {
	if !color {
		return fmt.Sprintf("[%s] [%s] %s", timestamp, port, line)
	}
	return fmt.Sprintf("%s[%s]%s %s[%s]%s %s",
		BrightBlack, timestamp, Reset, PortColor(port), port, Reset, line)
}
