package observability

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/gnan1985/You-Only-Do-Once/internal/workflow"
)

const (
	colorReset    = "\033[0m"
	colorBold     = "\033[1m"
	colorGreen    = "\033[32m"
	colorYellow   = "\033[33m"
	colorRed      = "\033[31m"
	colorNeonCyan = "\033[96m"
	colorDim      = "\033[2m"
)

const banner = `
 __   _____  ____   ___
 \ \ / / _ \|  _ \ / _ \
  \ V / | | | | | | | | |
   | || |_| | |_| | |_| |
   |_| \___/|____/ \___/

   >> YOU ONLY DO ONCE <<
`

func termWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 80
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// colored reports whether w is an interactive terminal
func colored(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func paint(w io.Writer, color, s string) string {
	if !colored(w) {
		return s
	}
	return color + s + colorReset
}

func PrintBanner(w io.Writer) {
	width := termWidth(w)
	for _, l := range strings.Split(banner, "\n") {
		padding := max((width-len(l))/2, 0)
		fmt.Fprintf(w, "%s%s\n", strings.Repeat(" ", padding), paint(w, colorNeonCyan, l))
	}
}

// PrintResult renders a run summary with one line per attempted step
func PrintResult(w io.Writer, name string, res *workflow.Result) {
	width := termWidth(w)
	rule := strings.Repeat("─", min(width, 72))

	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%s  %s\n", paint(w, colorBold, name), outcomeLabel(w, res))
	fmt.Fprintln(w, rule)

	for _, e := range res.ExecutionLog {
		mark := paint(w, colorGreen, "✔")
		if e.Status == workflow.StatusError {
			mark = paint(w, colorRed, "✘")
		}
		line := fmt.Sprintf("%s %3d  %s", mark, e.Step, e.Description)
		fmt.Fprintln(w, truncate(line, width))
		if e.Error != "" {
			fmt.Fprintln(w, paint(w, colorDim, truncate("       "+e.Error, width)))
		}
	}

	fmt.Fprintln(w, rule)
	switch res.Outcome {
	case workflow.OutcomeCompleted:
		fmt.Fprintf(w, "%d steps, %d failed\n", res.TotalSteps, res.Failures())
	case workflow.OutcomeAborted:
		fmt.Fprintf(w, "stopped after %d of %d steps: %s\n",
			res.CompletedSteps, res.TotalSteps, res.Error)
	case workflow.OutcomeInputRequired:
		fmt.Fprintf(w, "waiting for a decision: %s\n", res.Error)
	}
}

// PrintDryRun renders the steps a run would perform
func PrintDryRun(w io.Writer, name string, res *workflow.DryRunResult) {
	width := termWidth(w)
	fmt.Fprintf(w, "%s  %s\n", paint(w, colorBold, name), paint(w, colorYellow, "DRY RUN"))
	for _, e := range res.SimulationLog {
		line := fmt.Sprintf("  %3d  %s.%s  %s", e.Step, e.Tool, e.Action, e.Description)
		fmt.Fprintln(w, truncate(line, width))
	}
}

func outcomeLabel(w io.Writer, res *workflow.Result) string {
	switch res.Outcome {
	case workflow.OutcomeCompleted:
		return paint(w, colorGreen, "COMPLETED")
	case workflow.OutcomeAborted:
		return paint(w, colorRed, "ABORTED")
	default:
		return paint(w, colorYellow, "INPUT REQUIRED")
	}
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 3 || len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
