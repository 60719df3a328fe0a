// Package report renders evaluation results in the supported output formats.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/phobologic/layerguard/internal/rules"
)

// Formatter names.
const (
	Console  = "console"
	JSON     = "json"
	TOON     = "toon"
	Baseline = "baseline"
)

// Options controls which classifications are rendered. Counts are always
// reported in full.
type Options struct {
	ReportSkipped   bool
	ReportUncovered bool
	// Color enables ANSI styling in the console formatter.
	Color bool
}

// Formatter writes a report to w.
type Formatter interface {
	Format(w io.Writer, r *rules.Report) error
}

// New returns the formatter registered under name.
func New(name string, opts Options) (Formatter, error) {
	switch name {
	case Console:
		return &consoleFormatter{opts: opts, styles: newStyles(opts.Color)}, nil
	case JSON:
		return &jsonFormatter{opts: opts}, nil
	case TOON:
		return &toonFormatter{opts: opts}, nil
	case Baseline:
		return &baselineFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown formatter %q", name)
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// visible returns the classifications opts asks to render, in display order.
func visible(opts Options) []rules.Classification {
	cls := []rules.Classification{rules.Violation}
	if opts.ReportSkipped {
		cls = append(cls, rules.Skipped)
	}
	if opts.ReportUncovered {
		cls = append(cls, rules.Uncovered)
	}
	return cls
}
