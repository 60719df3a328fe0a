// Package resolve turns raw PHP names into fully-qualified names using the
// namespace and import table of the file they appear in.
package resolve

import (
	"strings"
)

const separator = `\`

var builtinTypes = map[string]struct{}{
	"array":    {},
	"bool":     {},
	"callable": {},
	"false":    {},
	"float":    {},
	"int":      {},
	"iterable": {},
	"mixed":    {},
	"never":    {},
	"null":     {},
	"object":   {},
	"parent":   {},
	"self":     {},
	"static":   {},
	"string":   {},
	"true":     {},
	"void":     {},
}

// Result is the outcome of resolving one raw name.
type Result struct {
	// FQN is the canonical name without a leading separator.
	FQN string
	// Fallback is the global name PHP falls back to for unqualified
	// function calls inside a namespace. Empty otherwise.
	Fallback string
	// Unresolved is set when the name is dynamic (a variable or expression).
	Unresolved bool
	// Builtin is set for type keywords that are not class-likes.
	Builtin bool
}

// Scope is the name-resolution context at one point of a file: the current
// namespace and the imports declared so far.
//
// The Resolve methods are pure; Use* calls only happen while the extractor
// reads import statements.
type Scope struct {
	Namespace string
	classes   map[string]string
	functions map[string]string
}

// NewScope returns an empty scope for namespace ("" for the global namespace).
func NewScope(namespace string) *Scope {
	return &Scope{
		Namespace: Normalize(namespace),
		classes:   make(map[string]string),
		functions: make(map[string]string),
	}
}

// UseClass records `use fqn as alias`. An empty alias means the last segment.
func (s *Scope) UseClass(fqn, alias string) {
	fqn = Normalize(fqn)
	if alias == "" {
		alias = LastSegment(fqn)
	}
	s.classes[strings.ToLower(alias)] = fqn
}

// UseFunction records `use function fqn as alias`.
func (s *Scope) UseFunction(fqn, alias string) {
	fqn = Normalize(fqn)
	if alias == "" {
		alias = LastSegment(fqn)
	}
	s.functions[strings.ToLower(alias)] = fqn
}

// ResolveClass resolves a class-like name as written in source.
//
// Order: fully-qualified names are taken as is, then the first segment is
// matched against the imports, then the name is taken relative to the
// current namespace (which is the global namespace when there is none).
func (s *Scope) ResolveClass(raw string) Result {
	name, ok := clean(raw)
	if !ok {
		return Result{Unresolved: true}
	}
	if _, builtin := builtinTypes[strings.ToLower(name)]; builtin {
		return Result{FQN: strings.ToLower(name), Builtin: true}
	}
	if strings.HasPrefix(name, separator) {
		return Result{FQN: Normalize(name)}
	}
	if rest, ok := cutNamespaceKeyword(name); ok {
		return Result{FQN: Qualify(s.Namespace, rest)}
	}

	first, rest, qualified := strings.Cut(name, separator)
	if target, ok := s.classes[strings.ToLower(first)]; ok {
		if qualified {
			return Result{FQN: target + separator + rest}
		}
		return Result{FQN: target}
	}
	return Result{FQN: Qualify(s.Namespace, name)}
}

// ResolveFunction resolves a function name as written in a call.
func (s *Scope) ResolveFunction(raw string) Result {
	name, ok := clean(raw)
	if !ok {
		return Result{Unresolved: true}
	}
	if strings.HasPrefix(name, separator) {
		return Result{FQN: Normalize(name)}
	}
	if rest, ok := cutNamespaceKeyword(name); ok {
		return Result{FQN: Qualify(s.Namespace, rest)}
	}

	first, rest, qualified := strings.Cut(name, separator)
	if !qualified {
		if target, ok := s.functions[strings.ToLower(name)]; ok {
			return Result{FQN: target}
		}
		if s.Namespace == "" {
			return Result{FQN: name}
		}
		return Result{FQN: Qualify(s.Namespace, name), Fallback: name}
	}
	// Qualified function names resolve their prefix through class imports.
	if target, ok := s.classes[strings.ToLower(first)]; ok {
		return Result{FQN: target + separator + rest}
	}
	return Result{FQN: Qualify(s.Namespace, name)}
}

// Qualify joins namespace and name.
func Qualify(namespace, name string) string {
	name = Normalize(name)
	if namespace == "" {
		return name
	}
	return Normalize(namespace) + separator + name
}

// Normalize strips whitespace and the leading separator from a name.
func Normalize(name string) string {
	name = strings.Join(strings.Fields(name), "")
	return strings.TrimPrefix(name, separator)
}

// LastSegment returns the unqualified part of a name.
func LastSegment(name string) string {
	if i := strings.LastIndex(name, separator); i >= 0 {
		return name[i+1:]
	}
	return name
}

func clean(raw string) (string, bool) {
	name := strings.Join(strings.Fields(raw), "")
	if name == "" || name == separator {
		return "", false
	}
	if strings.ContainsAny(name, "$()[]{}'\"-:>") {
		return "", false
	}
	return name, true
}

func cutNamespaceKeyword(name string) (string, bool) {
	if len(name) > len("namespace\\") && strings.EqualFold(name[:len("namespace\\")], "namespace\\") {
		return name[len("namespace\\"):], true
	}
	return "", false
}
