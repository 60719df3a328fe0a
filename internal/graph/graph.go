// Package graph builds the run-scoped symbol map from extracted files and
// derives dependency edges from it.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/phobologic/layerguard/internal/model"
)

// SymbolMap indexes every class-like, function and file of one analysis run.
// It is read-only after Build; accessors return pointers into the map and
// callers must not modify what they point to.
type SymbolMap struct {
	classLikes map[string]*model.ClassLikeReference
	folded     map[string]string
	functions  map[string]*model.FunctionReference
	files      []*model.FileReference
	fileIndex  map[string]int

	classNames    []string
	functionNames []string
}

// Build indexes files in the given order. The first definition of an FQN
// wins; later ones are dropped and reported as duplicate-definition
// diagnostics.
func Build(files []model.FileReference) (*SymbolMap, []model.Diagnostic) {
	m := &SymbolMap{
		classLikes: make(map[string]*model.ClassLikeReference),
		folded:     make(map[string]string),
		functions:  make(map[string]*model.FunctionReference),
		fileIndex:  make(map[string]int, len(files)),
	}
	var diags []model.Diagnostic

	for i := range files {
		fr := &files[i]
		if _, dup := m.fileIndex[fr.Path]; dup {
			diags = append(diags, model.Diagnostic{
				Kind:    model.DiagDuplicateDefinition,
				File:    fr.Path,
				Message: "file analysed twice, keeping the first",
			})
			continue
		}
		m.fileIndex[fr.Path] = len(m.files)
		m.files = append(m.files, fr)

		for j := range fr.ClassLikes {
			c := &fr.ClassLikes[j]
			if prev, ok := m.classLikes[c.FQN]; ok {
				diags = append(diags, duplicate(c.FQN, c.File, c.Line, prev.File, prev.Line))
				continue
			}
			m.classLikes[c.FQN] = c
			if _, ok := m.folded[strings.ToLower(c.FQN)]; !ok {
				m.folded[strings.ToLower(c.FQN)] = c.FQN
			}
			m.classNames = append(m.classNames, c.FQN)
		}
		for j := range fr.Functions {
			f := &fr.Functions[j]
			if prev, ok := m.functions[f.FQN]; ok {
				diags = append(diags, duplicate(f.FQN+"()", f.File, f.Line, prev.File, prev.Line))
				continue
			}
			m.functions[f.FQN] = f
			m.functionNames = append(m.functionNames, f.FQN)
		}
	}

	sort.Strings(m.classNames)
	sort.Strings(m.functionNames)
	return m, diags
}

func duplicate(name, file string, line int, prevFile string, prevLine int) model.Diagnostic {
	return model.Diagnostic{
		Kind:    model.DiagDuplicateDefinition,
		File:    file,
		Line:    line,
		Message: fmt.Sprintf("%s already declared in %s:%d, ignoring this definition", name, prevFile, prevLine),
	}
}

// ClassLike returns the class-like declared under fqn.
func (m *SymbolMap) ClassLike(fqn string) (*model.ClassLikeReference, bool) {
	c, ok := m.classLikes[fqn]
	return c, ok
}

// Function returns the function declared under fqn.
func (m *SymbolMap) Function(fqn string) (*model.FunctionReference, bool) {
	f, ok := m.functions[fqn]
	return f, ok
}

// File returns the file analysed at path.
func (m *SymbolMap) File(path string) (*model.FileReference, bool) {
	i, ok := m.fileIndex[path]
	if !ok {
		return nil, false
	}
	return m.files[i], true
}

// ClassLikes returns all class-likes sorted by FQN.
func (m *SymbolMap) ClassLikes() []*model.ClassLikeReference {
	out := make([]*model.ClassLikeReference, len(m.classNames))
	for i, name := range m.classNames {
		out[i] = m.classLikes[name]
	}
	return out
}

// Functions returns all functions sorted by FQN.
func (m *SymbolMap) Functions() []*model.FunctionReference {
	out := make([]*model.FunctionReference, len(m.functionNames))
	for i, name := range m.functionNames {
		out[i] = m.functions[name]
	}
	return out
}

// Files returns all files in discovery order.
func (m *SymbolMap) Files() []*model.FileReference {
	return append([]*model.FileReference(nil), m.files...)
}

// Owner returns the file that declares tok. Superglobals and tokens absent
// from the map have no owner.
func (m *SymbolMap) Owner(tok model.Token) (string, bool) {
	switch tok.Type {
	case model.ClassLikeToken:
		if c, ok := m.classLikes[tok.Name]; ok {
			return c.File, true
		}
	case model.FunctionToken:
		if f, ok := m.functions[tok.Name]; ok {
			return f.File, true
		}
	case model.FileToken:
		if _, ok := m.fileIndex[tok.Name]; ok {
			return tok.Name, true
		}
	}
	return "", false
}

// Declared reports whether tok names something declared in the analysed code.
func (m *SymbolMap) Declared(tok model.Token) bool {
	_, ok := m.Owner(tok)
	return ok
}

// FunctionTarget applies PHP's fallback rule to a function-call dependency:
// the namespaced function if it is declared, the global fallback otherwise.
func (m *SymbolMap) FunctionTarget(d model.Dependency) model.Token {
	if d.Fallback == "" {
		return d.Target
	}
	if _, ok := m.functions[d.Target.Name]; ok {
		return d.Target
	}
	return model.Function(d.Fallback)
}

// Len returns the number of class-likes and functions in the map.
func (m *SymbolMap) Len() int {
	return len(m.classLikes) + len(m.functions)
}
