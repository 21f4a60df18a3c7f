package cli

import (
	"fmt"

	"github.com/serialscope/serialscope/internal/ansi"
	"github.com/serialscope/serialscope/internal/api"
)

// LinePrinter renders matched lines for terminal output.
type LinePrinter struct {
	noColor bool
}

// NewLinePrinter creates a printer. With noColor set, ANSI sequences are
// stripped from pre-rendered lines.
func NewLinePrinter(noColor bool) *LinePrinter {
	return &LinePrinter{noColor: noColor}
}

// PrintCallback renders a line delivered through a session callback. It
// satisfies domain.LineCallback.
func (lp *LinePrinter) PrintCallback(port, timestamp, line, formatted string) {
	lp.print(port, timestamp, line, formatted)
}

// PrintAPILine renders a buffered or streamed line from the HTTP API.
func (lp *LinePrinter) PrintAPILine(event api.LineResponse) {
	lp.print(event.Port, event.Timestamp, event.Line, event.Formatted)
}

func (lp *LinePrinter) print(port, timestamp, line, formatted string) {
	if formatted == "" {
		formatted = ansi.FormatLine(port, timestamp, line, false)
	}
	if lp.noColor {
		fmt.Println(ansi.Strip(formatted))
		return
	}
	fmt.Println(formatted)
}
