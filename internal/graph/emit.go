package graph

import (
	"sort"

	"github.com/phobologic/layerguard/internal/model"
)

// Edge is one dependency between two tokens, observed in File at Line.
type Edge struct {
	Depender model.Token          `json:"depender"`
	Dependee model.Token          `json:"dependee"`
	File     string               `json:"file"`
	Line     int                  `json:"line"`
	Kind     model.DependencyKind `json:"kind"`
}

// EdgeSet is the output of the dependency emitters.
type EdgeSet struct {
	Edges []Edge
	// Unresolved counts dynamic dependencies that were dropped.
	Unresolved int
}

var superDependency = map[model.SuperKind]model.DependencyKind{
	model.Extends:    model.DepExtends,
	model.Implements: model.DepImplements,
	model.UsesTrait:  model.DepTrait,
}

type emitter struct {
	m    *SymbolMap
	seen map[Edge]struct{}
	out  EdgeSet
}

// Edges runs the emitters for types over m. The result is sorted by
// depender, file, line, dependee and kind, with exact duplicates removed.
func Edges(m *SymbolMap, types []model.EmitterType) EdgeSet {
	e := &emitter{m: m, seen: make(map[Edge]struct{})}
	for _, t := range dedupeTypes(types) {
		switch t {
		case model.EmitClassToken:
			e.classToken()
		case model.EmitClassSuperglobalToken:
			e.classSuperglobal()
		case model.EmitFileToken:
			e.fileToken()
		case model.EmitFunctionToken:
			e.functionToken()
		case model.EmitFunctionCall:
			e.functionCall()
		case model.EmitFunctionSuperglobalToken:
			e.functionSuperglobal()
		case model.EmitUseToken:
			e.useToken()
		}
	}

	edges := e.out.Edges
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Depender != b.Depender {
			return a.Depender.Less(b.Depender)
		}
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Dependee != b.Dependee {
			return a.Dependee.Less(b.Dependee)
		}
		return a.Kind < b.Kind
	})
	return e.out
}

func dedupeTypes(types []model.EmitterType) []model.EmitterType {
	if len(types) == 0 {
		types = model.DefaultEmitterTypes
	}
	seen := make(map[model.EmitterType]struct{}, len(types))
	var out []model.EmitterType
	for _, t := range types {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func (e *emitter) add(edge Edge) {
	if edge.Depender == edge.Dependee {
		return
	}
	if _, ok := e.seen[edge]; ok {
		return
	}
	e.seen[edge] = struct{}{}
	e.out.Edges = append(e.out.Edges, edge)
}

// deps emits the dependencies of one depender whose target has type want.
func (e *emitter) deps(from model.Token, file string, deps []model.Dependency, want model.TokenType) {
	for _, d := range deps {
		if d.IsUnresolved() {
			if want == model.ClassLikeToken && d.Kind != model.DepFunctionCall {
				e.out.Unresolved++
			}
			continue
		}
		if d.Target.Type != want {
			continue
		}
		e.add(Edge{Depender: from, Dependee: d.Target, File: file, Line: d.Line, Kind: d.Kind})
	}
}

func (e *emitter) classToken() {
	for _, c := range e.m.ClassLikes() {
		from := c.Token()
		for _, sr := range c.Supers {
			e.add(Edge{
				Depender: from,
				Dependee: model.ClassLike(sr.Target),
				File:     c.File,
				Line:     sr.Line,
				Kind:     superDependency[sr.Kind],
			})
		}
		e.deps(from, c.File, c.Dependencies, model.ClassLikeToken)
	}
}

func (e *emitter) classSuperglobal() {
	for _, c := range e.m.ClassLikes() {
		e.deps(c.Token(), c.File, c.Dependencies, model.SuperglobalToken)
	}
}

func (e *emitter) fileToken() {
	for _, f := range e.m.files {
		e.deps(model.File(f.Path), f.Path, f.Dependencies, model.ClassLikeToken)
	}
}

func (e *emitter) functionToken() {
	for _, f := range e.m.Functions() {
		e.deps(f.Token(), f.File, f.Dependencies, model.ClassLikeToken)
	}
}

func (e *emitter) functionSuperglobal() {
	for _, f := range e.m.Functions() {
		e.deps(f.Token(), f.File, f.Dependencies, model.SuperglobalToken)
	}
}

// functionCall emits calls from class-likes, functions and top-level code.
func (e *emitter) functionCall() {
	calls := func(from model.Token, file string, deps []model.Dependency) {
		for _, d := range deps {
			if d.Kind != model.DepFunctionCall {
				continue
			}
			if d.IsUnresolved() {
				e.out.Unresolved++
				continue
			}
			e.add(Edge{Depender: from, Dependee: e.m.FunctionTarget(d), File: file, Line: d.Line, Kind: d.Kind})
		}
	}
	for _, c := range e.m.ClassLikes() {
		calls(c.Token(), c.File, c.Dependencies)
	}
	for _, f := range e.m.Functions() {
		calls(f.Token(), f.File, f.Dependencies)
	}
	for _, f := range e.m.files {
		calls(model.File(f.Path), f.Path, f.Dependencies)
	}
}

// useToken attributes each import of a file to every class-like it declares.
func (e *emitter) useToken() {
	for _, f := range e.m.files {
		for _, c := range f.ClassLikes {
			if owned, ok := e.m.classLikes[c.FQN]; !ok || owned.File != f.Path {
				continue
			}
			for _, u := range f.Uses {
				e.add(Edge{Depender: c.Token(), Dependee: u.Target, File: f.Path, Line: u.Line, Kind: model.DepUse})
			}
		}
	}
}
