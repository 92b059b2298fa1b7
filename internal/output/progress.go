// Package output handles all certscan CLI output formatting.
package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/vulnverified/certscan/internal/engine"
)

const barWidth = 30

var severityStyles = map[engine.Severity]lipgloss.Style{
	engine.SeverityInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	engine.SeveritySuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	engine.SeverityWarn:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	engine.SeverityError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
}

var severityMarks = map[engine.Severity]string{
	engine.SeverityInfo:    "·",
	engine.SeveritySuccess: "+",
	engine.SeverityWarn:    "!",
	engine.SeverityError:   "x",
}

// Progress writes scan log lines and a progress bar to stderr. It also keeps
// a plain-text transcript of every line for the aggregate log file.
type Progress struct {
	w       io.Writer
	verbose bool
	silent  bool
	noColor bool
	mu      sync.Mutex
	start   time.Time

	pct        int
	barShown   bool
	transcript strings.Builder
	counts     map[engine.Severity]int
}

// NewProgress creates a progress reporter.
func NewProgress(w io.Writer, verbose, silent, noColor bool) *Progress {
	return &Progress{
		w:       w,
		verbose: verbose,
		silent:  silent,
		noColor: noColor,
		start:   time.Now(),
		pct:     -1,
		counts:  make(map[engine.Severity]int),
	}
}

// Stage prints a stage header like "[1/2] Resolving nameservers..."
func (p *Progress) Stage(num, total int, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transcript.WriteString(fmt.Sprintf("[%d/%d] %s\n", num, total, msg))
	if p.silent {
		return
	}
	p.clearBar()
	fmt.Fprintf(p.w, "[%d/%d] %s\n", num, total, msg)
	p.pct = -1
}

// Log prints one scan log entry. Info entries are only printed in verbose
// mode but always reach the transcript.
func (p *Progress) Log(e engine.LogEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counts[e.Severity]++
	p.transcript.WriteString(fmt.Sprintf("[%s] %s\n", e.Severity, e.Message))

	if p.silent || (e.Severity == engine.SeverityInfo && !p.verbose) {
		return
	}
	p.clearBar()

	mark := severityMarks[e.Severity]
	if mark == "" {
		mark = "-"
	}
	line := fmt.Sprintf("  %s %s", mark, e.Message)
	if !p.noColor {
		if style, ok := severityStyles[e.Severity]; ok {
			line = style.Render(line)
		}
	}
	fmt.Fprintln(p.w, line)
	p.drawBar()
}

// LogSink adapts Log to engine.LogSink.
func (p *Progress) LogSink() engine.LogSink {
	return p.Log
}

// Report redraws the progress bar when the percentage changes.
func (p *Progress) Report(pct int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pct = max(0, min(pct, 100))
	if pct == p.pct {
		return
	}
	p.pct = pct
	if p.silent {
		return
	}
	p.clearBar()
	p.drawBar()
}

// ProgressSink adapts Report to engine.ProgressSink.
func (p *Progress) ProgressSink() engine.ProgressSink {
	return p.Report
}

// Warn prints a warning outside of any scan.
func (p *Progress) Warn(msg string) {
	p.Log(engine.LogEntry{Message: msg, Severity: engine.SeverityWarn})
}

// Count returns how many entries of a severity were logged.
func (p *Progress) Count(sev engine.Severity) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[sev]
}

// Transcript returns every logged line as plain text.
func (p *Progress) Transcript() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transcript.String()
}

// Complete prints the final duration.
func (p *Progress) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.silent {
		return
	}
	p.clearBar()
	elapsed := time.Since(p.start)
	fmt.Fprintf(p.w, "\nCompleted in %.1fs\n", elapsed.Seconds())
}

func (p *Progress) drawBar() {
	if p.pct < 0 {
		return
	}
	filled := p.pct * barWidth / 100
	bar := strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled)
	fmt.Fprintf(p.w, "\r  [%s] %3d%%", bar, p.pct)
	p.barShown = true
}

func (p *Progress) clearBar() {
	if !p.barShown {
		return
	}
	fmt.Fprintf(p.w, "\r%s\r", strings.Repeat(" ", barWidth+10))
	p.barShown = false
}
