// Package display is the minimal line-oriented terminal subscriber (spec
// §1 non-goal: "rendering a full TUI... only a line-oriented status
// printer is in scope"). It subscribes to workout state snapshots and
// prints one status line per tick, colored with lipgloss the way the
// teacher's internal/ui styles.go colors its own status output, gated by
// isatty the way the teacher's internal/tui decides whether to attach a
// full TUI at all.
package display

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/szymek156/velomania-go/internal/workout"
)

var (
	purple  = lipgloss.Color("#9D61FF")
	teal    = lipgloss.Color("#14B8A6")
	amber   = lipgloss.Color("#F59E0B")
	green   = lipgloss.Color("#22C55E")
	dimGray = lipgloss.Color("#9CA3AF")
)

var (
	labelStyle    = lipgloss.NewStyle().Foreground(dimGray)
	stepStyle     = lipgloss.NewStyle().Foreground(purple).Bold(true)
	powerStyle    = lipgloss.NewStyle().Foreground(green).Bold(true)
	intervalStyle = lipgloss.NewStyle().Foreground(teal)
	warnStyle     = lipgloss.NewStyle().Foreground(amber)
)

// defaultWidth is used when the output isn't a TTY or the terminal size
// can't be determined, matching a plain 80-column pipe/log destination.
const defaultWidth = 80

// Printer prints one status line per received workout.State. It is not a
// TUI: no cursor repositioning beyond an optional carriage-return
// overwrite when attached to a real terminal.
type Printer struct {
	out      io.Writer
	colorize bool
	width    int
}

// NewPrinter builds a Printer writing to out. Coloring and in-place line
// overwriting are only enabled when out is a terminal (spec §1: batch/CI
// runs must not receive ANSI escapes in piped output).
func NewPrinter(out io.Writer) *Printer {
	p := &Printer{out: out, width: defaultWidth}

	if f, ok := out.(*os.File); ok {
		p.colorize = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		if p.colorize {
			if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
				p.width = w
			}
		}
	}
	return p
}

// Run consumes states until the channel is closed (workout end/abort),
// printing one line per snapshot.
func (p *Printer) Run(states <-chan workout.State) {
	for st := range states {
		p.print(st)
	}
	if p.colorize {
		fmt.Fprintln(p.out)
	}
}

func (p *Printer) print(st workout.State) {
	line := p.render(st)
	if p.colorize {
		fmt.Fprint(p.out, "\r\033[K"+line)
		return
	}
	fmt.Fprintln(p.out, line)
}

func (p *Printer) render(st workout.State) string {
	step := st.CurrentStepInfo.Step
	kind := "?"
	if step != nil {
		kind = step.Kind()
	}

	main := fmt.Sprintf(
		"[%d/%d] %s  %s/%s  %sW",
		st.CurrentStepNumber, st.TotalSteps,
		p.style(stepStyle, kind),
		formatDuration(st.CurrentStepInfo.Elapsed), formatDuration(st.CurrentStepInfo.Duration),
		p.style(powerStyle, fmt.Sprintf("%d", st.CurrentPowerSet)),
	)

	if iv := st.CurrentIntervalInfo; iv != nil {
		half := "rest"
		if iv.IsWork {
			half = "work"
		}
		main += "  " + p.style(intervalStyle, fmt.Sprintf("rep %d %s %s/%s", iv.Repetition, half, formatDuration(iv.Elapsed), formatDuration(iv.Duration)))
	}

	main += "  " + p.style(labelStyle, fmt.Sprintf("total %s/%s", formatDuration(st.WorkoutElapsed), formatDuration(st.TotalWorkoutDuration)))

	if p.width > 0 && len(main) > p.width {
		main = main[:p.width]
	}
	return main
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if !p.colorize {
		return text
	}
	return s.Render(text)
}

// PrintWarning prints a one-off warning line (e.g. a rejected setpoint),
// outside the per-tick status stream.
func (p *Printer) PrintWarning(msg string) {
	if p.colorize {
		fmt.Fprintln(p.out, "\r\033[K"+p.style(warnStyle, msg))
		return
	}
	fmt.Fprintln(p.out, msg)
}

func formatDuration(d interface{ Seconds() float64 }) string {
	total := int(d.Seconds())
	if total < 0 {
		total = 0
	}
	m := total / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d", m, s)
}
