// Package parse extracts class-likes, functions and their raw dependencies
// from PHP source files using tree-sitter.
package parse

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/layerguard/internal/lang"
	"github.com/phobologic/layerguard/internal/model"
	"github.com/phobologic/layerguard/internal/resolve"
)

// SchemaVersion changes whenever the shape of extracted references changes,
// so cached references from older builds are not reused.
const SchemaVersion = "3"

var superglobals = map[string]struct{}{
	"GLOBALS":  {},
	"_SERVER":  {},
	"_GET":     {},
	"_POST":    {},
	"_FILES":   {},
	"_COOKIE":  {},
	"_SESSION": {},
	"_REQUEST": {},
	"_ENV":     {},
}

var classLikeTypes = map[string]model.ClassLikeType{
	"class_declaration":     model.Class,
	"interface_declaration": model.Interface,
	"trait_declaration":     model.Trait,
	"enum_declaration":      model.Enum,
}

// Extract parses a PHP source file and returns its file reference.
// The parser must be created for the PHP language and must not be shared
// between goroutines. filePath should be the discovery-relative path.
func Extract(ctx context.Context, parser *sitter.Parser, source []byte, filePath string) (model.FileReference, error) {
	if len(source) == 0 {
		return model.FileReference{Path: filePath}, nil
	}

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return model.FileReference{}, &Error{File: filePath, Message: "tree-sitter parse failed", Cause: err}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		perr := &Error{File: filePath, Message: "syntax error"}
		if bad := firstError(root); bad != nil {
			perr.Line = line(bad)
			if near := snippet(bad, source); near != "" {
				perr.Message += fmt.Sprintf(" near %q", near)
			}
		}
		return model.FileReference{}, perr
	}

	x := &extraction{
		source: source,
		b:      model.NewFileReferenceBuilder(filePath),
		scope:  resolve.NewScope(""),
	}
	file := owner{add: func(d model.Dependency) { x.b.Dependency(d) }}
	x.walkChildren(root, file)
	return x.b.Build(), nil
}

// owner is the code unit dependencies are currently attributed to.
type owner struct {
	add func(model.Dependency)
	// class is the declaring class-like, nil outside class bodies and
	// inside anonymous classes.
	class *model.ClassLikeBuilder
	// self and parent back self::/static:: and parent:: references.
	self   string
	parent string
	// inClass is set inside any class body, including anonymous ones.
	inClass    bool
	inFunction bool
}

// anonymous returns the owner for the body of an anonymous class: its
// dependencies belong to the enclosing unit, but it has no ancestry of its own.
func anonymous(o owner) owner {
	o.class = nil
	o.self = ""
	o.parent = ""
	o.inClass = true
	return o
}

type extraction struct {
	source []byte
	b      *model.FileReferenceBuilder
	scope  *resolve.Scope
}

func (x *extraction) walkChildren(node *sitter.Node, o owner) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		x.walk(node.NamedChild(i), o)
	}
}

func (x *extraction) walk(node *sitter.Node, o owner) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "namespace_definition":
		x.namespace(node, o)
		return

	case "namespace_use_declaration":
		x.imports(node)
		return

	case "class_declaration", "interface_declaration", "trait_declaration", "enum_declaration":
		x.declareClassLike(node, o)
		return

	case "function_definition":
		if !o.inClass && !o.inFunction {
			x.declareFunction(node)
			return
		}
		x.functionSignature(node, o)

	case "method_declaration", "anonymous_function", "anonymous_function_creation_expression", "arrow_function":
		x.functionSignature(node, o)

	case "property_declaration":
		x.classRef(node.ChildByFieldName("type"), model.DepPropertyType, o)

	case "use_declaration":
		x.traitUse(node, o)
		return

	case "object_creation_expression":
		x.instantiation(node, o)
		x.walkChildren(node, anonymous(o))
		return

	case "anonymous_class":
		x.anonymousClass(node, o)
		x.walkChildren(node, anonymous(o))
		return

	case "scoped_call_expression":
		x.classRef(node.ChildByFieldName("scope"), model.DepStaticCall, o)

	case "scoped_property_access_expression":
		x.classRef(node.ChildByFieldName("scope"), model.DepStaticProperty, o)

	case "class_constant_access_expression":
		if node.NamedChildCount() > 0 {
			x.classRef(node.NamedChild(0), model.DepConstant, o)
		}

	case "binary_expression":
		if op := node.ChildByFieldName("operator"); op != nil && strings.EqualFold(op.Type(), "instanceof") {
			x.classRef(node.ChildByFieldName("right"), model.DepInstanceof, o)
		}

	case "catch_clause":
		x.classRef(node.ChildByFieldName("type"), model.DepCatch, o)

	case "attribute":
		if node.NamedChildCount() > 0 {
			x.classRef(node.NamedChild(0), model.DepAttribute, o)
		}

	case "function_call_expression":
		x.functionCall(node, o)

	case "variable_name":
		name := strings.TrimPrefix(lang.NodeText(node, x.source), "$")
		if _, ok := superglobals[name]; ok {
			o.add(model.Dependency{Target: model.Superglobal(name), Line: line(node), Kind: model.DepSuperglobal})
		}
		return
	}

	x.walkChildren(node, o)
}

// namespace handles both `namespace Foo;` and `namespace Foo { ... }`.
// Each namespace starts with an empty import table.
func (x *extraction) namespace(node *sitter.Node, o owner) {
	name := ""
	if n := node.ChildByFieldName("name"); n != nil {
		name = lang.NodeText(n, x.source)
	}
	body := node.ChildByFieldName("body")
	if body == nil {
		x.scope = resolve.NewScope(name)
		return
	}
	outer := x.scope
	x.scope = resolve.NewScope(name)
	x.walkChildren(body, o)
	x.scope = outer
}

// imports records `use` statements in the scope and as file-level uses.
func (x *extraction) imports(node *sitter.Node) {
	kind := useKind(node)
	prefix := ""
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "namespace_name":
			prefix = resolve.Normalize(lang.NodeText(child, x.source))
		case "namespace_use_clause":
			x.importClause(child, "", kind)
		case "namespace_use_group":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				x.importClause(child.NamedChild(j), prefix, kind)
			}
		}
	}
}

func (x *extraction) importClause(clause *sitter.Node, prefix, kind string) {
	if k := useKind(clause); k != "" {
		kind = k
	}

	var target, alias string
	if a := clause.ChildByFieldName("alias"); a != nil {
		alias = lang.NodeText(a, x.source)
	}
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		child := clause.NamedChild(i)
		switch child.Type() {
		case "name", "qualified_name", "namespace_name":
			if target == "" {
				target = lang.NodeText(child, x.source)
			} else if alias == "" {
				alias = lang.NodeText(child, x.source)
			}
		case "namespace_aliasing_clause":
			if child.NamedChildCount() > 0 {
				alias = lang.NodeText(child.NamedChild(0), x.source)
			}
		}
	}
	if target == "" {
		return
	}
	fqn := resolve.Normalize(target)
	if prefix != "" {
		fqn = prefix + `\` + fqn
	}

	switch kind {
	case "function":
		x.scope.UseFunction(fqn, alias)
	case "const":
	default:
		x.scope.UseClass(fqn, alias)
		x.b.Use(fqn, line(clause))
	}
}

// useKind returns "function" or "const" when the node carries that keyword.
func useKind(node *sitter.Node) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		switch t := node.Child(i).Type(); t {
		case "function", "const":
			return t
		}
	}
	return ""
}

func (x *extraction) declareClassLike(node *sitter.Node, o owner) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	fqn := resolve.Qualify(x.scope.Namespace, lang.NodeText(nameNode, x.source))
	typ := classLikeTypes[node.Type()]
	cb := x.b.NewClassLike(fqn, typ, line(node))

	inner := owner{
		add:     func(d model.Dependency) { cb.Dependency(d) },
		class:   cb,
		self:    fqn,
		inClass: true,
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "base_clause":
			x.eachName(child, func(fqn string, n *sitter.Node) {
				if typ == model.Interface {
					cb.Implements(fqn, line(n))
					return
				}
				cb.Extends(fqn, line(n))
				if inner.parent == "" {
					inner.parent = fqn
				}
			})
		case "class_interface_clause":
			x.eachName(child, func(fqn string, n *sitter.Node) {
				cb.Implements(fqn, line(n))
			})
		}
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "base_clause", "class_interface_clause", "name":
		default:
			x.walk(child, inner)
		}
	}
}

func (x *extraction) declareFunction(node *sitter.Node) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	fqn := resolve.Qualify(x.scope.Namespace, lang.NodeText(nameNode, x.source))
	fb := x.b.NewFunction(fqn, line(node))
	inner := owner{
		add:        func(d model.Dependency) { fb.Dependency(d) },
		inFunction: true,
	}
	x.functionSignature(node, inner)
	x.walkChildren(node, inner)
}

// functionSignature records parameter and return types of any function-like
// node. The body is walked by the caller.
func (x *extraction) functionSignature(node *sitter.Node, o owner) {
	if params := node.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			x.classRef(params.NamedChild(i).ChildByFieldName("type"), model.DepParameter, o)
		}
	}
	x.classRef(node.ChildByFieldName("return_type"), model.DepReturnType, o)
}

// traitUse handles `use Foo, Bar;` inside a class body.
func (x *extraction) traitUse(node *sitter.Node, o owner) {
	x.eachName(node, func(fqn string, n *sitter.Node) {
		if o.class != nil {
			o.class.Trait(fqn, line(n))
			return
		}
		o.add(model.Dependency{Target: model.ClassLike(fqn), Line: line(n), Kind: model.DepTrait})
	})
}

func (x *extraction) instantiation(node *sitter.Node, o owner) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "arguments", "attribute_list", "declaration_list", "anonymous_class", "comment":
			continue
		case "base_clause":
			x.eachName(child, func(fqn string, n *sitter.Node) {
				o.add(model.Dependency{Target: model.ClassLike(fqn), Line: line(n), Kind: model.DepExtends})
			})
			continue
		case "class_interface_clause":
			x.eachName(child, func(fqn string, n *sitter.Node) {
				o.add(model.Dependency{Target: model.ClassLike(fqn), Line: line(n), Kind: model.DepImplements})
			})
			continue
		}
		x.classRef(child, model.DepNew, o)
		return
	}
}

func (x *extraction) anonymousClass(node *sitter.Node, o owner) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "base_clause":
			x.eachName(child, func(fqn string, n *sitter.Node) {
				o.add(model.Dependency{Target: model.ClassLike(fqn), Line: line(n), Kind: model.DepExtends})
			})
		case "class_interface_clause":
			x.eachName(child, func(fqn string, n *sitter.Node) {
				o.add(model.Dependency{Target: model.ClassLike(fqn), Line: line(n), Kind: model.DepImplements})
			})
		}
	}
}

func (x *extraction) functionCall(node *sitter.Node, o owner) {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return
	}
	switch fn.Type() {
	case "name", "qualified_name", "relative_name":
		res := x.scope.ResolveFunction(lang.NodeText(fn, x.source))
		if res.Unresolved {
			o.add(model.Dependency{Target: model.Unresolved(), Line: line(fn), Kind: model.DepFunctionCall})
			return
		}
		o.add(model.Dependency{
			Target:   model.Function(res.FQN),
			Fallback: res.Fallback,
			Line:     line(fn),
			Kind:     model.DepFunctionCall,
		})
	default:
		o.add(model.Dependency{Target: model.Unresolved(), Line: line(fn), Kind: model.DepFunctionCall})
	}
}

// classRef records a dependency on the class-like named by node, which may be
// a plain name, a type expression, or a dynamic expression.
func (x *extraction) classRef(node *sitter.Node, kind model.DependencyKind, o owner) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "name", "qualified_name", "relative_name", "relative_scope":
		text := lang.NodeText(node, x.source)
		switch strings.ToLower(resolve.Normalize(text)) {
		case "self", "static":
			return
		case "parent":
			if o.parent != "" {
				o.add(model.Dependency{Target: model.ClassLike(o.parent), Line: line(node), Kind: kind})
			}
			return
		}
		res := x.scope.ResolveClass(text)
		switch {
		case res.Builtin:
		case res.Unresolved:
			o.add(model.Dependency{Target: model.Unresolved(), Line: line(node), Kind: kind})
		case res.FQN != o.self:
			o.add(model.Dependency{Target: model.ClassLike(res.FQN), Line: line(node), Kind: kind})
		}

	case "named_type", "type_name", "optional_type", "union_type", "intersection_type",
		"disjunctive_normal_form_type", "type_list", "nullable_type":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			x.classRef(node.NamedChild(i), kind, o)
		}

	case "primitive_type", "bottom_type", "cast_type", "comment":

	default:
		o.add(model.Dependency{Target: model.Unresolved(), Line: line(node), Kind: kind})
	}
}

// eachName resolves every name child of a clause as a class-like.
func (x *extraction) eachName(node *sitter.Node, fn func(fqn string, n *sitter.Node)) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() != "name" && child.Type() != "qualified_name" {
			continue
		}
		res := x.scope.ResolveClass(lang.NodeText(child, x.source))
		if res.Builtin || res.Unresolved {
			continue
		}
		fn(res.FQN, child)
	}
}

func line(node *sitter.Node) int {
	return int(node.StartPoint().Row) + 1
}

// snippet returns the start of node's source on one line.
func snippet(node *sitter.Node, source []byte) string {
	return truncate(lang.CollapseWhitespace(lang.NodeText(node, source)), 40)
}

// truncate shortens s to at most limit runes, marking the cut with "...".
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}

func firstError(node *sitter.Node) *sitter.Node {
	if node.Type() == "ERROR" || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.HasError() || child.IsMissing() {
			if bad := firstError(child); bad != nil {
				return bad
			}
		}
	}
	return nil
}

// Describe renders a one-line summary of a file reference, used by debug
// output and logs.
func Describe(fr model.FileReference) string {
	deps := len(fr.Dependencies) + len(fr.Uses)
	for _, c := range fr.ClassLikes {
		deps += len(c.Dependencies)
	}
	for _, f := range fr.Functions {
		deps += len(f.Dependencies)
	}
	return fmt.Sprintf("%s: %d class-likes, %d functions, %d dependencies",
		fr.Path, len(fr.ClassLikes), len(fr.Functions), deps)
}
