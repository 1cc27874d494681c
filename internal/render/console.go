// Package render provides terminal output for the watcher: status lines,
// event lines, and bordered panels for interventions and questions.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/joss/hawtch/internal/domain"
)

// Console formats and writes operator-facing output.
type Console struct {
	out    io.Writer
	pretty bool
}

// New creates a console writing to stdout.
func New(pretty bool) *Console {
	return &Console{out: os.Stdout, pretty: pretty}
}

// NewWithWriter creates a console writing to w (used in tests).
func NewWithWriter(w io.Writer, pretty bool) *Console {
	return &Console{out: w, pretty: pretty}
}

var (
	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("2")).
			Padding(0, 2)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	severityColors = map[domain.Severity]lipgloss.Color{
		domain.SeverityLow:      lipgloss.Color("3"),
		domain.SeverityMedium:   lipgloss.Color("11"),
		domain.SeverityHigh:     lipgloss.Color("1"),
		domain.SeverityCritical: lipgloss.Color("9"),
	}
)

// Banner prints the startup banner.
func (c *Console) Banner(version string) {
	if !c.pretty {
		fmt.Fprintf(c.out, "hawtch %s\n", version)
		return
	}
	body := fmt.Sprintf("%s %s\n%s",
		color.New(color.Bold, color.FgGreen).Sprint("hawtch"),
		version,
		color.HiBlackString("coding-agent task adherence watcher"),
	)
	fmt.Fprintln(c.out, bannerStyle.Render(body))
}

// Status prints a timestamped status line.
func (c *Console) Status(msg string) {
	fmt.Fprintf(c.out, "%s %s\n", color.HiBlackString(time.Now().Format("15:04:05")), msg)
}

// Event prints one observed agent event, truncated to a readable width.
func (c *Console) Event(ev domain.HistoryEvent) {
	display := ev.Display
	if len(display) > 100 {
		display = display[:100] + "..."
	}
	fmt.Fprintf(c.out, "%s %s %s\n",
		color.HiBlackString(ev.Timestamp.Format("15:04:05")),
		color.CyanString("event:"),
		display,
	)
}

// Intervention prints a bordered panel for a delivered decision.
func (c *Console) Intervention(seq int, d domain.Decision) {
	title := fmt.Sprintf("INTERVENTION #%d - %s", seq, strings.ToUpper(string(d.Severity)))

	if !c.pretty {
		fmt.Fprintf(c.out, "%s\n%s\nconfidence: %.1f%%\n", title, d.Message, d.Judgment.Confidence*100)
		return
	}

	body := fmt.Sprintf("%s\n\n%s\n%s\n%s",
		color.New(color.Bold).Sprint(title),
		d.Message,
		color.HiBlackString(fmt.Sprintf("confidence: %.1f%%", d.Judgment.Confidence*100)),
		color.HiBlackString("at: "+d.Timestamp.Format("15:04:05")),
	)

	style := panelStyle.BorderForeground(severityColors[d.Severity])
	fmt.Fprintln(c.out, style.Render(body))

	// Terminal bell for the bands a human should notice.
	if d.Severity == domain.SeverityHigh || d.Severity == domain.SeverityCritical {
		fmt.Fprint(c.out, "\a")
	}
}

// Question prints a panel for a detected question and the escalation result.
func (c *Console) Question(ex domain.Exchange) {
	if !c.pretty {
		fmt.Fprintf(c.out, "question #%d: %s\nanswer (%s): %s\n", ex.ID, ex.Question, ex.Source, ex.Answer)
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\n", color.New(color.Bold, color.FgYellow).Sprintf("QUESTION #%d", ex.ID))
	fmt.Fprintf(&sb, "%s %s\n", color.CyanString("Q:"), ex.Question)
	if ex.Suggestion != "" {
		fmt.Fprintf(&sb, "%s\n", color.HiBlackString(fmt.Sprintf("suggested: %s (%.0f%% confident)", ex.Suggestion, ex.Confidence*100)))
	}
	if ex.Resolved {
		fmt.Fprintf(&sb, "%s %s %s", color.GreenString("A:"), ex.Answer, color.HiBlackString("("+string(ex.Source)+")"))
	}

	style := panelStyle.BorderForeground(lipgloss.Color("3"))
	fmt.Fprintln(c.out, style.Render(sb.String()))
}

// Warn prints an operator warning line.
func (c *Console) Warn(msg string) {
	c.Status(color.YellowString(msg))
}

// Success prints an operator success line.
func (c *Console) Success(msg string) {
	c.Status(color.GreenString(msg))
}

// Errorf prints an operator error line.
func (c *Console) Errorf(format string, args ...any) {
	c.Status(color.RedString(fmt.Sprintf(format, args...)))
}
