// Package analyser runs the full pipeline: extraction, symbol map, layer
// assignment and rule evaluation.
package analyser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/phobologic/layerguard/internal/cache"
	"github.com/phobologic/layerguard/internal/config"
	"github.com/phobologic/layerguard/internal/discover"
	"github.com/phobologic/layerguard/internal/graph"
	"github.com/phobologic/layerguard/internal/lang"
	"github.com/phobologic/layerguard/internal/layer"
	"github.com/phobologic/layerguard/internal/model"
	"github.com/phobologic/layerguard/internal/parse"
	"github.com/phobologic/layerguard/internal/rules"
)

var (
	// ErrViolations is returned by Check when the report has violations.
	ErrViolations = errors.New("architecture violations found")
	// ErrUncovered is returned by Check for uncovered dependencies when
	// they are configured to fail the run.
	ErrUncovered = errors.New("uncovered dependencies found")
)

// Analyser runs one analysis. The zero value of the optional fields is
// usable: a nil Cache disables caching and a nil Logger discards output.
type Analyser struct {
	Config  *config.Config
	Cache   *cache.FileCache
	Logger  *slog.Logger
	Workers int
	// Strict turns parse failures into a fatal error.
	Strict bool
	// IncludeAllowed keeps allowed dependencies in the report.
	IncludeAllowed bool
}

// Result holds every intermediate product of a run.
type Result struct {
	Files      []model.FileReference
	Symbols    *graph.SymbolMap
	Edges      graph.EdgeSet
	Resolver   *layer.Resolver
	Assignment layer.Assignment
	Report     *rules.Report
}

// Discover lists the files cfg selects, in discovery order.
func Discover(cfg *config.Config) ([]discover.FileEntry, error) {
	files, err := discover.Files(cfg.BaseDir, discover.Options{
		Paths:     cfg.Paths,
		Exclude:   cfg.ExcludeFiles,
		Languages: []string{lang.PHP},
	})
	if err != nil {
		return nil, fmt.Errorf("discovering files: %w", err)
	}
	return files, nil
}

func (a *Analyser) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.Logger
}

func (a *Analyser) workers() int {
	if a.Workers > 0 {
		return a.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Run analyses files, which must be in discovery order and relative to
// Config.BaseDir.
func (a *Analyser) Run(ctx context.Context, files []discover.FileEntry) (*Result, error) {
	ctx, span := tracer.Start(ctx, "analyser.Run", trace.WithAttributes(attribute.Int("files", len(files))))
	defer span.End()
	log := a.logger()

	refs, diags, err := a.Extract(ctx, files)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	_, gspan := tracer.Start(ctx, "analyser.graph")
	symbols, dupes := graph.Build(refs)
	edges := graph.Edges(symbols, a.Config.Emitters)
	gspan.SetAttributes(attribute.Int("symbols", symbols.Len()), attribute.Int("edges", len(edges.Edges)))
	gspan.End()
	for _, d := range dupes {
		log.Warn("duplicate definition", "file", d.File, "line", d.Line, "message", d.Message)
	}
	diags = append(diags, dupes...)
	log.Debug("built symbol map", "symbols", symbols.Len(), "edges", len(edges.Edges), "unresolved", edges.Unresolved)

	actx, aspan := tracer.Start(ctx, "analyser.assign")
	resolver := layer.NewResolver(a.Config.Layers, symbols)
	assignment, err := resolver.Assign(actx, layer.Tokens(symbols, edges.Edges), a.workers())
	aspan.End()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	ectx, espan := tracer.Start(ctx, "analyser.evaluate")
	eval := &rules.Evaluator{
		Ruleset: a.Config.Ruleset,
		Skip:    a.Config.Skip,
		Options: rules.Options{
			IncludeAllowed:          a.IncludeAllowed,
			IgnoreUncoveredInternal: a.Config.IgnoreUncoveredInternal,
			Workers:                 a.workers(),
		},
	}
	report, err := eval.Evaluate(ectx, edges, assignment, symbols.Declared)
	espan.End()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	for _, d := range report.Diagnostics {
		log.Warn(d.Message)
	}
	report.Diagnostics = append(diags, report.Diagnostics...)
	recordCounts(ctx, report.Counts)
	span.SetAttributes(attribute.Int("violations", report.Counts.Violation))

	return &Result{
		Files:      refs,
		Symbols:    symbols,
		Edges:      edges,
		Resolver:   resolver,
		Assignment: assignment,
		Report:     report,
	}, nil
}

// Extract turns files into references using a fixed worker pool. Each worker
// owns its parsers. Results are merged in discovery order; files that fail
// to parse are left out and reported as diagnostics, or abort the run in
// strict mode.
func (a *Analyser) Extract(ctx context.Context, files []discover.FileEntry) ([]model.FileReference, []model.Diagnostic, error) {
	ctx, span := tracer.Start(ctx, "analyser.extract")
	defer span.End()

	type result struct {
		ref    model.FileReference
		err    error
		cached bool
	}

	numWorkers := min(a.workers(), len(files))
	work := make(chan int, len(files))
	results := make([]result, len(files))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			parsers := make(map[string]*sitter.Parser)
			for idx := range work {
				if err := ctx.Err(); err != nil {
					results[idx] = result{err: err}
					continue
				}
				f := files[idx]
				p, ok := parsers[f.Language]
				if !ok {
					l, known := lang.Languages[f.Language]
					if !known {
						results[idx] = result{err: &parse.Error{File: f.Path, Message: "unsupported language " + f.Language}}
						continue
					}
					p = l.NewParser()
					parsers[f.Language] = p
				}
				ref, cached, err := a.extractFile(ctx, p, f)
				results[idx] = result{ref: ref, err: err, cached: cached}
			}
		}()
	}

	for i := range files {
		work <- i
	}
	close(work)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("extracting files: %w", err)
	}

	log := a.logger()
	var (
		refs                   []model.FileReference
		diags                  []model.Diagnostic
		parsed, hits, failures int
	)
	for _, r := range results {
		if r.err != nil {
			var perr *parse.Error
			if !errors.As(r.err, &perr) {
				return nil, nil, r.err
			}
			failures++
			if a.Strict {
				recordExtraction(ctx, parsed, hits, failures)
				return nil, nil, r.err
			}
			log.Warn("skipping file", "file", perr.File, "line", perr.Line, "error", perr.Message)
			diags = append(diags, model.Diagnostic{
				Kind:    model.DiagParseError,
				File:    perr.File,
				Line:    perr.Line,
				Message: perr.Message,
			})
			continue
		}
		if r.cached {
			hits++
		} else {
			parsed++
		}
		refs = append(refs, r.ref)
	}
	recordExtraction(ctx, parsed, hits, failures)
	span.SetAttributes(attribute.Int("parsed", parsed), attribute.Int("cache_hits", hits), attribute.Int("failures", failures))
	log.Debug("extracted files", "parsed", parsed, "cache_hits", hits, "failures", failures)
	return refs, diags, nil
}

func (a *Analyser) extractFile(ctx context.Context, p *sitter.Parser, f discover.FileEntry) (model.FileReference, bool, error) {
	source, err := os.ReadFile(filepath.Join(a.Config.BaseDir, filepath.FromSlash(f.Path)))
	if err != nil {
		return model.FileReference{}, false, &parse.Error{File: f.Path, Message: "cannot read file", Cause: err}
	}

	if a.Cache != nil {
		if ref, ok := a.Cache.Get(f.Path, source); ok {
			return ref, true, nil
		}
	}

	ref, err := parse.Extract(ctx, p, source, f.Path)
	if err != nil {
		return model.FileReference{}, false, err
	}
	a.logger().Debug("parsed", "summary", parse.Describe(ref))

	if a.Cache != nil {
		if err := a.Cache.Put(f.Path, source, ref); err != nil {
			a.logger().Warn("cache write failed", "file", f.Path, "error", err)
		}
	}
	return ref, false, nil
}

// Check maps a report to the run's exit error.
func Check(r *rules.Report, failOnUncovered bool) error {
	if r.HasViolations() {
		return fmt.Errorf("%w: %d", ErrViolations, r.Counts.Violation)
	}
	if failOnUncovered && r.Counts.Uncovered > 0 {
		return fmt.Errorf("%w: %d", ErrUncovered, r.Counts.Uncovered)
	}
	return nil
}
