package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"slouchless/internal/detector"
	"slouchless/internal/monitor"
	"slouchless/internal/overlay"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")) // Gray
	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#000")).
		Background(lipgloss.Color("46")). // Green
		Bold(true).
		Padding(0, 1)
	slouchStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFF")).
			Background(lipgloss.Color("196")). // Red
			Bold(true).
			Padding(0, 1)
	uncertainStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000")).
			Background(lipgloss.Color("214")). // Amber
			Bold(true).
			Padding(0, 1)
	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")) // Light Gray
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// setupColor picks the color profile for w. Non-terminals and --no-color
// get plain text.
func setupColor(w io.Writer, noColor bool) {
	if noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.NewOutput(w).EnvColorProfile())
}

func verdictStyle(s detector.Status) lipgloss.Style {
	switch s {
	case detector.StatusOK:
		return okStyle
	case detector.StatusSlouching:
		return slouchStyle
	default:
		return uncertainStyle
	}
}

// formatResult renders one verdict line.
func formatResult(res detector.Result) string {
	at := res.GeneratedAt
	if at.IsZero() {
		at = time.Now()
	}
	return fmt.Sprintf("%s %s %s %s",
		timeStyle.Render(at.Format("15:04:05")),
		verdictStyle(res.Status).Render(overlay.Headline(res.Status)),
		detailStyle.Render(res.Message),
		mutedStyle.Render(fmt.Sprintf("(%s, %s)", res.Backend, res.Latency.Round(10*time.Millisecond))),
	)
}

// statusPrinter writes verdict and error lines for the monitor hooks.
type statusPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func newStatusPrinter(w io.Writer) *statusPrinter {
	return &statusPrinter{w: w}
}

func (p *statusPrinter) result(res detector.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, formatResult(res))
}

func (p *statusPrinter) failure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s %s\n",
		timeStyle.Render(time.Now().Format("15:04:05")),
		errorStyle.Render("ERROR"),
		detailStyle.Render(err.Error()))
}

func (p *statusPrinter) tick(o monitor.Outcome) {
	if o != monitor.OutcomePopupBlocked && o != monitor.OutcomeDisabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, mutedStyle.Render(fmt.Sprintf("%s check skipped (%s)", time.Now().Format("15:04:05"), o)))
}
