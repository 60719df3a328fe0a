// Package rules classifies dependency edges against the layer ruleset.
package rules

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/phobologic/layerguard/internal/graph"
	"github.com/phobologic/layerguard/internal/layer"
	"github.com/phobologic/layerguard/internal/model"
)

// Classification is the outcome for one dependency.
type Classification string

const (
	Allowed   Classification = "allowed"
	Violation Classification = "violation"
	Skipped   Classification = "skipped"
	Uncovered Classification = "uncovered"
)

// rank orders classifications for deduplication: higher wins.
var rank = map[Classification]int{
	Allowed:   0,
	Uncovered: 1,
	Skipped:   2,
	Violation: 3,
}

// Ruleset maps a layer to the layers it may depend on. A layer may always
// depend on itself.
type Ruleset map[string][]string

// Allows reports whether from may depend on to.
func (r Ruleset) Allows(from, to string) bool {
	return from == to || slices.Contains(r[from], to)
}

// Rule is one classified dependency. DependerLayer and DependeeLayer hold
// the layer pair that decided the classification; the full sets are kept
// alongside.
type Rule struct {
	Classification Classification       `json:"classification"`
	Depender       model.Token          `json:"depender"`
	Dependee       model.Token          `json:"dependee"`
	File           string               `json:"file"`
	Line           int                  `json:"line"`
	Kind           model.DependencyKind `json:"kind"`
	DependerLayer  string               `json:"depender_layer,omitempty"`
	DependeeLayer  string               `json:"dependee_layer,omitempty"`
	DependerLayers []string             `json:"depender_layers,omitempty"`
	DependeeLayers []string             `json:"dependee_layers,omitempty"`
}

// Counts tallies classifications.
type Counts struct {
	Allowed   int `json:"allowed"`
	Violation int `json:"violations"`
	Skipped   int `json:"skipped"`
	Uncovered int `json:"uncovered"`
}

func (c *Counts) add(cl Classification) {
	switch cl {
	case Allowed:
		c.Allowed++
	case Violation:
		c.Violation++
	case Skipped:
		c.Skipped++
	case Uncovered:
		c.Uncovered++
	}
}

// Report is the result of evaluating a run.
type Report struct {
	Rules       []Rule             `json:"rules"`
	Counts      Counts             `json:"counts"`
	Unresolved  int                `json:"unresolved"`
	Diagnostics []model.Diagnostic `json:"diagnostics,omitempty"`
}

// HasViolations reports whether any dependency is a violation.
func (r *Report) HasViolations() bool {
	return r.Counts.Violation > 0
}

// Options controls what the evaluator reports.
type Options struct {
	// IncludeAllowed keeps allowed rules in Report.Rules.
	IncludeAllowed bool
	// IgnoreUncoveredInternal drops uncovered dependencies on symbols no
	// analysed file declares.
	IgnoreUncoveredInternal bool
	// Workers bounds the evaluation fan-out.
	Workers int
}

// Evaluator classifies edges. It is immutable and safe for concurrent use.
type Evaluator struct {
	Ruleset Ruleset
	Skip    *SkipRules
	Options Options
}

type verdict struct {
	rule    Rule
	skipID  int
	skipped bool
	drop    bool
}

// Evaluate classifies edges using assignment. declared reports whether a
// token is declared in the analysed code and backs the internal-symbol check.
func (e *Evaluator) Evaluate(ctx context.Context, edges graph.EdgeSet, a layer.Assignment, declared func(model.Token) bool) (*Report, error) {
	workers := e.Options.Workers
	if workers < 1 {
		workers = 1
	}
	slots := make([]verdict, len(edges.Edges))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	const chunk = 256
	for start := 0; start < len(edges.Edges); start += chunk {
		end := min(start+chunk, len(edges.Edges))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				slots[i] = e.classify(edges.Edges[i], a, declared)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("evaluating rules: %w", err)
	}

	return e.merge(slots, edges.Unresolved), nil
}

func (e *Evaluator) classify(edge graph.Edge, a layer.Assignment, declared func(model.Token) bool) verdict {
	lx, ly := a.Layers(edge.Depender), a.Layers(edge.Dependee)
	v := verdict{rule: Rule{
		Depender:       edge.Depender,
		Dependee:       edge.Dependee,
		File:           edge.File,
		Line:           edge.Line,
		Kind:           edge.Kind,
		DependerLayers: lx,
		DependeeLayers: ly,
	}}

	if len(lx) == 0 || len(ly) == 0 {
		if len(ly) == 0 && e.Options.IgnoreUncoveredInternal && internal(edge.Dependee, declared) {
			v.drop = true
			return v
		}
		v.rule.Classification = Uncovered
		if len(lx) > 0 {
			v.rule.DependerLayer = lx[0]
		}
		if len(ly) > 0 {
			v.rule.DependeeLayer = ly[0]
		}
		return v
	}

	v.rule.Classification = Allowed
	v.rule.DependerLayer, v.rule.DependeeLayer = lx[0], ly[0]
	for _, from := range lx {
		for _, to := range ly {
			if e.Ruleset.Allows(from, to) {
				continue
			}
			v.rule.DependerLayer, v.rule.DependeeLayer = from, to
			if id, ok := e.Skip.Match(edge.Depender.Name, edge.Dependee.Name); ok {
				v.rule.Classification = Skipped
				v.skipID, v.skipped = id, true
			} else {
				v.rule.Classification = Violation
			}
			return v
		}
	}
	return v
}

// internal reports whether tok is provided from outside the analysed code:
// superglobals, and any class-like or function no analysed file declares
// (builtins and vendor code alike). A nil declared means nothing is declared.
func internal(tok model.Token, declared func(model.Token) bool) bool {
	if tok.Type == model.SuperglobalToken {
		return true
	}
	return declared == nil || !declared(tok)
}

type dedupeKey struct {
	depender model.Token
	dependee model.Token
	line     int
}

func (e *Evaluator) merge(slots []verdict, unresolved int) *Report {
	best := make(map[dedupeKey]int)
	var order []dedupeKey
	for i, v := range slots {
		if v.drop {
			continue
		}
		k := dedupeKey{v.rule.Depender, v.rule.Dependee, v.rule.Line}
		prev, ok := best[k]
		if !ok {
			best[k] = i
			order = append(order, k)
			continue
		}
		if rank[v.rule.Classification] > rank[slots[prev].rule.Classification] {
			best[k] = i
		}
	}

	report := &Report{Unresolved: unresolved}
	matched := make(map[int]bool)
	for _, k := range order {
		v := slots[best[k]]
		report.Counts.add(v.rule.Classification)
		if v.skipped {
			matched[v.skipID] = true
		}
		if v.rule.Classification == Allowed && !e.Options.IncludeAllowed {
			continue
		}
		report.Rules = append(report.Rules, v.rule)
	}

	sort.SliceStable(report.Rules, func(i, j int) bool {
		a, b := report.Rules[i], report.Rules[j]
		if a.Depender != b.Depender {
			return a.Depender.Less(b.Depender)
		}
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Dependee.Less(b.Dependee)
	})

	for i := 0; i < e.Skip.Len(); i++ {
		if !matched[i] {
			report.Diagnostics = append(report.Diagnostics, model.Diagnostic{
				Kind:    model.DiagUnmatchedSkip,
				Message: "skip rule matched no dependency: " + e.Skip.Describe(i),
			})
		}
	}
	return report
}

// Filter returns the rules with one of the given classifications.
func (r *Report) Filter(cls ...Classification) []Rule {
	var out []Rule
	for _, rule := range r.Rules {
		if slices.Contains(cls, rule.Classification) {
			out = append(out, rule)
		}
	}
	return out
}
