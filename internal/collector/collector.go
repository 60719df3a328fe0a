// Package collector implements the predicates that decide layer membership.
//
// The set of collectors is closed: every variant is declared here and
// configuration decoding only produces these types.
package collector

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/layerguard/internal/graph"
	"github.com/phobologic/layerguard/internal/model"
)

// Reference is the candidate a collector is evaluated against: a token plus
// whatever the symbol map knows about it. ClassLike and Function are nil for
// tokens that are not declared in the analysed code.
type Reference struct {
	Token     model.Token
	ClassLike *model.ClassLikeReference
	Function  *model.FunctionReference
	// File is the path of the declaring file, empty if unknown.
	File string
}

// Env is the read-only context collectors are evaluated in.
type Env struct {
	Symbols *graph.SymbolMap
	// InLayer reports membership of ref in another layer.
	InLayer func(layer string, ref Reference) bool
}

// Collector decides whether a reference belongs to a layer.
type Collector interface {
	Satisfy(ref Reference, env *Env) bool
	// Type returns the configuration name of the collector.
	Type() string
	sealed()
}

// compile builds the case-insensitive regex collectors match with.
func compile(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	return re, nil
}

// ClassName matches class-likes whose FQN matches a regular expression.
type ClassName struct {
	Pattern *regexp.Regexp
}

// NewClassName compiles pattern.
func NewClassName(pattern string) (*ClassName, error) {
	re, err := compile(pattern)
	if err != nil {
		return nil, err
	}
	return &ClassName{Pattern: re}, nil
}

func (c *ClassName) Satisfy(ref Reference, _ *Env) bool {
	return ref.Token.Type == model.ClassLikeToken && c.Pattern.MatchString(ref.Token.Name)
}

func (c *ClassName) Type() string { return "className" }
func (*ClassName) sealed()        {}

// ClassLike matches declared class-likes of one kind (any kind when Kind is
// empty) whose FQN matches a regular expression.
type ClassLike struct {
	Pattern *regexp.Regexp
	Kind    model.ClassLikeType
}

// NewClassLike compiles pattern for kind.
func NewClassLike(pattern string, kind model.ClassLikeType) (*ClassLike, error) {
	re, err := compile(pattern)
	if err != nil {
		return nil, err
	}
	return &ClassLike{Pattern: re, Kind: kind}, nil
}

func (c *ClassLike) Satisfy(ref Reference, _ *Env) bool {
	if ref.ClassLike == nil {
		return false
	}
	if c.Kind != "" && ref.ClassLike.Type != c.Kind {
		return false
	}
	return c.Pattern.MatchString(ref.ClassLike.FQN)
}

func (c *ClassLike) Type() string {
	if c.Kind == "" {
		return "classLike"
	}
	return string(c.Kind)
}
func (*ClassLike) sealed() {}

// Directory matches references whose declaring file path matches a regular
// expression.
type Directory struct {
	Pattern *regexp.Regexp
}

// NewDirectory compiles pattern.
func NewDirectory(pattern string) (*Directory, error) {
	re, err := compile(pattern)
	if err != nil {
		return nil, err
	}
	return &Directory{Pattern: re}, nil
}

func (c *Directory) Satisfy(ref Reference, _ *Env) bool {
	return ref.File != "" && c.Pattern.MatchString(ref.File)
}

func (c *Directory) Type() string { return "directory" }
func (*Directory) sealed()        {}

// Glob matches references whose declaring file matches a gitignore-style
// pattern.
type Glob struct {
	Pattern string
	matcher *ignore.GitIgnore
}

// NewGlob compiles pattern.
func NewGlob(pattern string) (*Glob, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	return &Glob{Pattern: pattern, matcher: ignore.CompileIgnoreLines(pattern)}, nil
}

func (c *Glob) Satisfy(ref Reference, _ *Env) bool {
	return ref.File != "" && c.matcher.MatchesPath(ref.File)
}

func (c *Glob) Type() string { return "glob" }
func (*Glob) sealed()        {}

// FunctionName matches functions whose FQN matches a regular expression.
type FunctionName struct {
	Pattern *regexp.Regexp
}

// NewFunctionName compiles pattern.
func NewFunctionName(pattern string) (*FunctionName, error) {
	re, err := compile(pattern)
	if err != nil {
		return nil, err
	}
	return &FunctionName{Pattern: re}, nil
}

func (c *FunctionName) Satisfy(ref Reference, _ *Env) bool {
	return ref.Token.Type == model.FunctionToken && c.Pattern.MatchString(ref.Token.Name)
}

func (c *FunctionName) Type() string { return "functionName" }
func (*FunctionName) sealed()        {}

// Superglobal matches the named superglobal variables (without `$`).
type Superglobal struct {
	Names []string
}

func (c *Superglobal) Satisfy(ref Reference, _ *Env) bool {
	return ref.Token.Type == model.SuperglobalToken && slices.Contains(c.Names, ref.Token.Name)
}

func (c *Superglobal) Type() string { return "superglobal" }
func (*Superglobal) sealed()        {}

// Inheritance matches class-likes that have Target as an ancestor.
//
// Kind selects the edge kind (extends, implements or trait use) that must
// lead to Target; an empty Kind accepts any kind and backs the `inherits`
// collector. With Transitive set the ancestry is walked through the symbol
// map, otherwise only direct supers count.
type Inheritance struct {
	Target     string
	Kind       model.SuperKind
	Transitive bool
}

func (c *Inheritance) Satisfy(ref Reference, env *Env) bool {
	if ref.ClassLike == nil || env == nil || env.Symbols == nil {
		return false
	}
	return env.Symbols.Inherits(ref.ClassLike.FQN, c.Target, c.Kind, c.Transitive)
}

func (c *Inheritance) Type() string {
	switch c.Kind {
	case model.Extends:
		return "extends"
	case model.Implements:
		return "implements"
	case model.UsesTrait:
		return "uses"
	default:
		return "inherits"
	}
}
func (*Inheritance) sealed() {}

// Layer matches references that belong to another layer.
type Layer struct {
	Name string
}

func (c *Layer) Satisfy(ref Reference, env *Env) bool {
	if env == nil || env.InLayer == nil {
		return false
	}
	return env.InLayer(c.Name, ref)
}

func (c *Layer) Type() string { return "layer" }
func (*Layer) sealed()        {}

// And matches when every child matches. An empty And never matches.
type And struct {
	Children []Collector
}

func (c *And) Satisfy(ref Reference, env *Env) bool {
	if len(c.Children) == 0 {
		return false
	}
	for _, child := range c.Children {
		if !child.Satisfy(ref, env) {
			return false
		}
	}
	return true
}

func (c *And) Type() string { return "and" }
func (*And) sealed()        {}

// Or matches when any child matches.
type Or struct {
	Children []Collector
}

func (c *Or) Satisfy(ref Reference, env *Env) bool {
	for _, child := range c.Children {
		if child.Satisfy(ref, env) {
			return true
		}
	}
	return false
}

func (c *Or) Type() string { return "or" }
func (*Or) sealed()        {}

// Not inverts its child.
type Not struct {
	Child Collector
}

func (c *Not) Satisfy(ref Reference, env *Env) bool {
	return !c.Child.Satisfy(ref, env)
}

func (c *Not) Type() string { return "not" }
func (*Not) sealed()        {}

// Walk calls fn for c and every nested collector, depth first.
func Walk(c Collector, fn func(Collector)) {
	fn(c)
	switch v := c.(type) {
	case *And:
		for _, child := range v.Children {
			Walk(child, fn)
		}
	case *Or:
		for _, child := range v.Children {
			Walk(child, fn)
		}
	case *Not:
		Walk(v.Child, fn)
	}
}

// LayerRefs returns the layer names referenced by c, in order of appearance.
func LayerRefs(c Collector) []string {
	var out []string
	Walk(c, func(c Collector) {
		if l, ok := c.(*Layer); ok && !slices.Contains(out, l.Name) {
			out = append(out, l.Name)
		}
	})
	return out
}
