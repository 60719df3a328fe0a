// Package layer assigns tokens to the layers declared in the configuration.
package layer

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/phobologic/layerguard/internal/collector"
	"github.com/phobologic/layerguard/internal/graph"
	"github.com/phobologic/layerguard/internal/model"
)

// Definition is a named layer. A token belongs to the layer when any of its
// collectors is satisfied.
type Definition struct {
	Name       string
	Collectors []collector.Collector
}

// Resolver evaluates layer definitions against tokens of one symbol map.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	defs   []Definition
	byName map[string]int
	m      *graph.SymbolMap
	env    *collector.Env
}

// NewResolver returns a resolver for defs over m. Layer collectors must not
// form cycles; configuration loading rejects them.
func NewResolver(defs []Definition, m *graph.SymbolMap) *Resolver {
	r := &Resolver{
		defs:   defs,
		byName: make(map[string]int, len(defs)),
		m:      m,
	}
	for i, d := range defs {
		r.byName[d.Name] = i
	}
	r.env = &collector.Env{Symbols: m, InLayer: r.InLayer}
	return r
}

// Names returns the layer names in declaration order.
func (r *Resolver) Names() []string {
	names := make([]string, len(r.defs))
	for i, d := range r.defs {
		names[i] = d.Name
	}
	return names
}

// ReferenceFor builds the collector reference for tok. Tokens that are not
// declared in the analysed code get a bare reference, so name-based
// collectors still match them.
func (r *Resolver) ReferenceFor(tok model.Token) collector.Reference {
	ref := collector.Reference{Token: tok}
	switch tok.Type {
	case model.ClassLikeToken:
		if c, ok := r.m.ClassLike(tok.Name); ok {
			ref.ClassLike = c
			ref.File = c.File
		}
	case model.FunctionToken:
		if f, ok := r.m.Function(tok.Name); ok {
			ref.Function = f
			ref.File = f.File
		}
	case model.FileToken:
		ref.File = tok.Name
	}
	return ref
}

// InLayer reports whether ref belongs to the named layer.
func (r *Resolver) InLayer(name string, ref collector.Reference) bool {
	i, ok := r.byName[name]
	if !ok {
		return false
	}
	for _, c := range r.defs[i].Collectors {
		if c.Satisfy(ref, r.env) {
			return true
		}
	}
	return false
}

// Resolve returns the sorted names of every layer ref belongs to.
func (r *Resolver) Resolve(ref collector.Reference) []string {
	var out []string
	for _, d := range r.defs {
		if r.InLayer(d.Name, ref) {
			out = append(out, d.Name)
		}
	}
	sort.Strings(out)
	return out
}

// Assignment maps tokens to their layers. Tokens without layers are absent.
type Assignment map[model.Token][]string

// Layers returns the layers of tok.
func (a Assignment) Layers(tok model.Token) []string {
	return a[tok]
}

// Members returns the tokens of a layer, sorted.
func (a Assignment) Members(layer string) []model.Token {
	var out []model.Token
	for tok, layers := range a {
		if slices.Contains(layers, layer) {
			out = append(out, tok)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Assign resolves tokens in parallel with at most workers goroutines.
// Results are written to per-token slots and merged once all are done.
func (r *Resolver) Assign(ctx context.Context, tokens []model.Token, workers int) (Assignment, error) {
	if workers < 1 {
		workers = 1
	}
	slots := make([][]string, len(tokens))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, tok := range tokens {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			slots[i] = r.Resolve(r.ReferenceFor(tok))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("assigning layers: %w", err)
	}

	out := make(Assignment, len(tokens))
	for i, tok := range tokens {
		if len(slots[i]) > 0 {
			out[tok] = slots[i]
		}
	}
	return out, nil
}

// Tokens returns every token that can be assigned for m and edges: all
// declared class-likes, functions and files plus every edge endpoint,
// deduplicated and sorted.
func Tokens(m *graph.SymbolMap, edges []graph.Edge) []model.Token {
	seen := make(map[model.Token]struct{})
	add := func(t model.Token) { seen[t] = struct{}{} }
	for _, c := range m.ClassLikes() {
		add(c.Token())
	}
	for _, f := range m.Functions() {
		add(f.Token())
	}
	for _, f := range m.Files() {
		add(model.File(f.Path))
	}
	for _, e := range edges {
		add(e.Depender)
		add(e.Dependee)
	}
	out := make([]model.Token, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
