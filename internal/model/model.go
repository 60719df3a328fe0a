// Package model defines core data structures for layerguard.
package model

import "fmt"

// UnresolvedName is the sentinel target name of a dependency whose target
// cannot be determined statically (e.g. `new $class()`).
const UnresolvedName = "<unresolved>"

// TokenType indicates what kind of code unit a token names.
type TokenType string

const (
	ClassLikeToken   TokenType = "class-like"
	FunctionToken    TokenType = "function"
	SuperglobalToken TokenType = "superglobal"
	FileToken        TokenType = "file"
)

// Token identifies one end of a dependency edge.
type Token struct {
	Type TokenType `json:"type"`
	Name string    `json:"name"`
}

func (t Token) String() string {
	switch t.Type {
	case FunctionToken:
		return t.Name + "()"
	case SuperglobalToken:
		return "$" + t.Name
	default:
		return t.Name
	}
}

// Less orders tokens by name, then by type.
func (t Token) Less(o Token) bool {
	if t.Name != o.Name {
		return t.Name < o.Name
	}
	return t.Type < o.Type
}

// ClassLike returns a class-like token for fqn.
func ClassLike(fqn string) Token { return Token{Type: ClassLikeToken, Name: fqn} }

// Function returns a function token for fqn.
func Function(fqn string) Token { return Token{Type: FunctionToken, Name: fqn} }

// Superglobal returns a superglobal token (name without the leading $).
func Superglobal(name string) Token { return Token{Type: SuperglobalToken, Name: name} }

// File returns a file token for path.
func File(path string) Token { return Token{Type: FileToken, Name: path} }

// Unresolved returns the sentinel token for dynamic targets.
func Unresolved() Token { return Token{Type: ClassLikeToken, Name: UnresolvedName} }

// ClassLikeType is the declaration kind of a class-like entity.
type ClassLikeType string

const (
	Class     ClassLikeType = "class"
	Interface ClassLikeType = "interface"
	Trait     ClassLikeType = "trait"
	Enum      ClassLikeType = "enum"
)

// SuperKind is the kind of an ancestry edge.
type SuperKind string

const (
	Extends    SuperKind = "extends"
	Implements SuperKind = "implements"
	UsesTrait  SuperKind = "uses"
)

// SuperReference is an ancestry edge from a class-like to Target.
type SuperReference struct {
	Target string    `json:"target"`
	Line   int       `json:"line"`
	Kind   SuperKind `json:"kind"`
}

// DependencyKind tags how a dependency was observed in source.
type DependencyKind string

const (
	DepUse            DependencyKind = "use"
	DepExtends        DependencyKind = "extends"
	DepImplements     DependencyKind = "implements"
	DepTrait          DependencyKind = "trait"
	DepNew            DependencyKind = "new"
	DepStaticCall     DependencyKind = "static-call"
	DepStaticProperty DependencyKind = "static-property"
	DepConstant       DependencyKind = "constant"
	DepInstanceof     DependencyKind = "instanceof"
	DepCatch          DependencyKind = "catch"
	DepParameter      DependencyKind = "parameter"
	DepReturnType     DependencyKind = "return-type"
	DepPropertyType   DependencyKind = "property-type"
	DepAttribute      DependencyKind = "attribute"
	DepFunctionCall   DependencyKind = "function-call"
	DepSuperglobal    DependencyKind = "superglobal"
)

// Dependency is a raw usage of Target observed at Line.
//
// Fallback is only set for unqualified function calls inside a namespace:
// PHP tries the namespaced function first and falls back to the global one.
type Dependency struct {
	Target   Token          `json:"target"`
	Fallback string         `json:"fallback,omitempty"`
	Line     int            `json:"line"`
	Kind     DependencyKind `json:"kind"`
}

// IsUnresolved reports whether the dependency has no static target.
func (d Dependency) IsUnresolved() bool {
	return d.Target.Name == UnresolvedName
}

// ClassLikeReference is a class, interface, trait or enum declared in a file.
type ClassLikeReference struct {
	FQN          string           `json:"fqn"`
	Type         ClassLikeType    `json:"type"`
	File         string           `json:"file"`
	Line         int              `json:"line"`
	Supers       []SuperReference `json:"supers,omitempty"`
	Dependencies []Dependency     `json:"dependencies,omitempty"`
}

// Token returns the class-like token for r.
func (r *ClassLikeReference) Token() Token { return ClassLike(r.FQN) }

// FunctionReference is a top-level function declared in a file.
type FunctionReference struct {
	FQN          string       `json:"fqn"`
	File         string       `json:"file"`
	Line         int          `json:"line"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
}

// Token returns the function token for r.
func (r *FunctionReference) Token() Token { return Function(r.FQN) }

// FileReference is the extraction result for a single source file.
type FileReference struct {
	Path         string               `json:"path"`
	ClassLikes   []ClassLikeReference `json:"class_likes,omitempty"`
	Functions    []FunctionReference  `json:"functions,omitempty"`
	Uses         []Dependency         `json:"uses,omitempty"`
	Dependencies []Dependency         `json:"dependencies,omitempty"`
}

// DiagnosticKind classifies a non-fatal finding.
type DiagnosticKind string

const (
	DiagParseError          DiagnosticKind = "parse-error"
	DiagDuplicateDefinition DiagnosticKind = "duplicate-definition"
	DiagUnmatchedSkip       DiagnosticKind = "unmatched-skip"
)

// Diagnostic is a recoverable problem surfaced alongside the report.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	File    string         `json:"file,omitempty"`
	Line    int            `json:"line,omitempty"`
	Message string         `json:"message"`
}

func (d Diagnostic) String() string {
	switch {
	case d.File != "" && d.Line > 0:
		return fmt.Sprintf("%s:%d: %s", d.File, d.Line, d.Message)
	case d.File != "":
		return fmt.Sprintf("%s: %s", d.File, d.Message)
	default:
		return d.Message
	}
}
