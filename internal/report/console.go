package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/phobologic/layerguard/internal/rules"
)

var (
	colorRed    = lipgloss.Color("#f85149")
	colorYellow = lipgloss.Color("#d29922")
	colorGreen  = lipgloss.Color("#3fb950")
	colorGray   = lipgloss.Color("#8b949e")
)

type styles struct {
	color     bool
	heading   lipgloss.Style
	violation lipgloss.Style
	skipped   lipgloss.Style
	uncovered lipgloss.Style
	muted     lipgloss.Style
	ok        lipgloss.Style
	label     lipgloss.Style
}

func newStyles(color bool) *styles {
	return &styles{
		color:     color,
		heading:   lipgloss.NewStyle().Bold(true),
		violation: lipgloss.NewStyle().Foreground(colorRed),
		skipped:   lipgloss.NewStyle().Foreground(colorYellow),
		uncovered: lipgloss.NewStyle().Foreground(colorYellow),
		muted:     lipgloss.NewStyle().Foreground(colorGray),
		ok:        lipgloss.NewStyle().Foreground(colorGreen).Bold(true),
		label:     lipgloss.NewStyle().Width(22),
	}
}

// paint renders text with s only when colour is enabled.
func (s *styles) paint(style lipgloss.Style, text string) string {
	if !s.color {
		return text
	}
	return style.Render(text)
}

type consoleFormatter struct {
	opts   Options
	styles *styles
}

func (f *consoleFormatter) Format(w io.Writer, r *rules.Report) error {
	bw := bufio.NewWriter(w)
	s := f.styles

	f.section(bw, "Violations", r.Filter(rules.Violation), func(rule rules.Rule) string {
		return s.paint(s.violation, fmt.Sprintf("%s must not depend on %s (%s on %s)",
			rule.Depender, rule.Dependee, rule.DependerLayer, rule.DependeeLayer))
	})
	if f.opts.ReportSkipped {
		f.section(bw, "Skipped violations", r.Filter(rules.Skipped), func(rule rules.Rule) string {
			return s.paint(s.skipped, fmt.Sprintf("[SKIPPED] %s must not depend on %s (%s on %s)",
				rule.Depender, rule.Dependee, rule.DependerLayer, rule.DependeeLayer))
		})
	}
	if f.opts.ReportUncovered {
		f.section(bw, "Uncovered dependencies", r.Filter(rules.Uncovered), func(rule rules.Rule) string {
			return s.paint(s.uncovered, fmt.Sprintf("%s has uncovered dependency on %s", rule.Depender, rule.Dependee))
		})
	}

	if len(r.Diagnostics) > 0 {
		fmt.Fprintln(bw, s.paint(s.heading, "Warnings"))
		for _, d := range r.Diagnostics {
			fmt.Fprintf(bw, "  %s %s\n", s.paint(s.skipped, "["+string(d.Kind)+"]"), d)
		}
		fmt.Fprintln(bw)
	}

	fmt.Fprintln(bw, s.paint(s.heading, "Report"))
	f.count(bw, "Violations", r.Counts.Violation, s.violation)
	f.count(bw, "Skipped violations", r.Counts.Skipped, s.skipped)
	f.count(bw, "Uncovered", r.Counts.Uncovered, s.uncovered)
	f.count(bw, "Allowed", r.Counts.Allowed, s.ok)
	f.count(bw, "Unresolved", r.Unresolved, s.muted)
	f.count(bw, "Warnings", len(r.Diagnostics), s.skipped)

	if !r.HasViolations() {
		fmt.Fprintf(bw, "\n%s\n", s.paint(s.ok, "No violations found."))
	}
	return bw.Flush()
}

func (f *consoleFormatter) section(w io.Writer, title string, list []rules.Rule, line func(rules.Rule) string) {
	if len(list) == 0 {
		return
	}
	s := f.styles
	fmt.Fprintf(w, "%s (%d)\n", s.paint(s.heading, title), len(list))
	for _, rule := range list {
		fmt.Fprintf(w, "  %s\n", line(rule))
		fmt.Fprintf(w, "    %s\n", s.paint(s.muted, location(rule)))
	}
	fmt.Fprintln(w)
}

func (f *consoleFormatter) count(w io.Writer, label string, n int, style lipgloss.Style) {
	s := f.styles
	value := fmt.Sprint(n)
	if n > 0 {
		value = s.paint(style, value)
	}
	fmt.Fprintf(w, "  %s%s\n", s.label.Render(label), value)
}

func location(rule rules.Rule) string {
	var b strings.Builder
	b.WriteString(rule.File)
	if rule.Line > 0 {
		fmt.Fprintf(&b, ":%d", rule.Line)
	}
	if rule.Kind != "" {
		fmt.Fprintf(&b, " (%s)", rule.Kind)
	}
	return b.String()
}
