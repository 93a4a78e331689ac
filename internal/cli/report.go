package cli

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/dshills/checkrun/engine"
)

// colorScheme: success green, failure red, warning yellow, labels cyan.
type colorScheme struct {
	success *color.Color
	fail    *color.Color
	warn    *color.Color
	label   *color.Color
}

func newColorScheme() *colorScheme {
	return &colorScheme{
		success: color.New(color.FgGreen),
		fail:    color.New(color.FgRed),
		warn:    color.New(color.FgYellow),
		label:   color.New(color.FgCyan),
	}
}

func isTerminal(w io.Writer) bool {
	if w == os.Stdout {
		return isatty.IsTerminal(os.Stdout.Fd())
	}
	if w == os.Stderr {
		return isatty.IsTerminal(os.Stderr.Fd())
	}
	return false
}

// terminalWidth returns the current terminal width bounded to [60, 120],
// falling back to 80 when detection fails or w is not a terminal.
func terminalWidth(w io.Writer) int {
	if !isTerminal(w) {
		return 80
	}
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < 60 {
		return 80
	}
	if width > 120 {
		return 120
	}
	return width
}

// printReport renders a RunReport as a table of per-check outcomes followed
// by a summary line, colorized when w is a TTY.
func printReport(w io.Writer, report *engine.RunReport) {
	scheme := newColorScheme()
	useColor := isTerminal(w)
	width := terminalWidth(w)
	if useColor && w == os.Stdout {
		w = colorable.NewColorableStdout() // ANSI sequences on Windows consoles
	}

	ids := make([]string, 0, len(report.Outcomes))
	for id := range report.Outcomes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetAllowedRowLength(width)
	t.AppendHeader(table.Row{"Check", "Status", "Issues", "Executions"})

	for _, id := range ids {
		outcome := report.Outcomes[id]
		status := "ok"
		if outcome.Error != nil {
			status = string(outcome.Error.Kind)
			if useColor {
				status = scheme.fail.Sprint(status)
			}
		} else if hasCritical(outcome.Issues) {
			status = "critical"
			if useColor {
				status = scheme.fail.Sprint(status)
			}
		} else if len(outcome.Issues) > 0 {
			status = "warn"
			if useColor {
				status = scheme.warn.Sprint(status)
			}
		} else if useColor {
			status = scheme.success.Sprint(status)
		}

		checkLabel := id
		if useColor {
			checkLabel = scheme.label.Sprint(id)
		}
		t.AppendRow(table.Row{checkLabel, status, len(outcome.Issues), len(outcome.Executions)})
	}
	t.Render()

	fmt.Fprintf(w, "\nwaves=%d duration=%s", report.WavesExecuted, report.Duration.Round(1e6))
	if report.StoppedEarly {
		stopped := "stopped early"
		if useColor {
			stopped = scheme.warn.Sprint(stopped)
		}
		fmt.Fprintf(w, " %s (%s)", stopped, report.StopReason)
	}
	fmt.Fprintln(w)
}

func hasCritical(issues []engine.Issue) bool {
	for _, iss := range issues {
		if iss.Severity == engine.SeverityCritical {
			return true
		}
	}
	return false
}
