package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/phobologic/layerguard/internal/model"
	"github.com/phobologic/layerguard/internal/rules"
	"github.com/phobologic/layerguard/internal/toon"
)

type summary struct {
	rules.Counts
	Unresolved int `json:"unresolved"`
	Warnings   int `json:"warnings"`
}

type jsonDocument struct {
	Summary     summary            `json:"summary"`
	Rules       []rules.Rule       `json:"rules"`
	Diagnostics []model.Diagnostic `json:"diagnostics"`
}

type jsonFormatter struct {
	opts Options
}

func (f *jsonFormatter) Format(w io.Writer, r *rules.Report) error {
	doc := jsonDocument{
		Summary:     summary{Counts: r.Counts, Unresolved: r.Unresolved, Warnings: len(r.Diagnostics)},
		Rules:       r.Filter(visible(f.opts)...),
		Diagnostics: r.Diagnostics,
	}
	if doc.Rules == nil {
		doc.Rules = []rules.Rule{}
	}
	if doc.Diagnostics == nil {
		doc.Diagnostics = []model.Diagnostic{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding json report: %w", err)
	}
	return nil
}

type toonFormatter struct {
	opts Options
}

var (
	ruleColumns       = []string{"classification", "depender", "dependee", "file", "line", "kind", "depender_layer", "dependee_layer"}
	diagnosticColumns = []string{"kind", "file", "line", "message"}
)

func (f *toonFormatter) Format(w io.Writer, r *rules.Report) error {
	list := r.Filter(visible(f.opts)...)
	ruleRows := make([][]string, 0, len(list))
	for _, rule := range list {
		ruleRows = append(ruleRows, []string{
			string(rule.Classification),
			rule.Depender.String(),
			rule.Dependee.String(),
			rule.File,
			strconv.Itoa(rule.Line),
			string(rule.Kind),
			rule.DependerLayer,
			rule.DependeeLayer,
		})
	}
	diagRows := make([][]string, 0, len(r.Diagnostics))
	for _, d := range r.Diagnostics {
		diagRows = append(diagRows, []string{string(d.Kind), d.File, strconv.Itoa(d.Line), d.Message})
	}

	status := "passed"
	if r.HasViolations() {
		status = "failed"
	}

	var doc toon.Document
	doc.Int("violations", r.Counts.Violation).
		Int("skipped", r.Counts.Skipped).
		Int("uncovered", r.Counts.Uncovered).
		Int("allowed", r.Counts.Allowed).
		Int("unresolved", r.Unresolved).
		Field("status", status).
		Table("rules", ruleColumns, ruleRows).
		Table("diagnostics", diagnosticColumns, diagRows)

	_, err := fmt.Fprintln(w, doc.String())
	return err
}

// baselineFormatter writes the current violations as a skip_violations
// section that can be pasted into the depfile. Already skipped dependencies
// are kept so the baseline stays complete.
type baselineFormatter struct{}

type baselineDocument struct {
	SkipViolations map[string][]string `yaml:"skip_violations"`
}

func (f *baselineFormatter) Format(w io.Writer, r *rules.Report) error {
	skip := make(map[string][]string)
	for _, rule := range r.Filter(rules.Violation, rules.Skipped) {
		skip[rule.Depender.Name] = append(skip[rule.Depender.Name], rule.Dependee.Name)
	}
	for k, v := range skip {
		slices.Sort(v)
		skip[k] = slices.Compact(v)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(baselineDocument{SkipViolations: skip}); err != nil {
		return fmt.Errorf("encoding baseline: %w", err)
	}
	return enc.Close()
}
