package model

import "slices"

// FileReferenceBuilder accumulates the declarations of one file.
// Build returns an independent copy, so a builder can keep being used.
type FileReferenceBuilder struct {
	path       string
	classLikes []*ClassLikeBuilder
	functions  []*FunctionBuilder
	uses       []Dependency
	deps       []Dependency
}

// NewFileReferenceBuilder starts a builder for the file at path.
func NewFileReferenceBuilder(path string) *FileReferenceBuilder {
	return &FileReferenceBuilder{path: path}
}

// NewClassLike declares a class-like in the file and returns its builder.
func (b *FileReferenceBuilder) NewClassLike(fqn string, typ ClassLikeType, line int) *ClassLikeBuilder {
	cb := &ClassLikeBuilder{ref: ClassLikeReference{FQN: fqn, Type: typ, File: b.path, Line: line}}
	b.classLikes = append(b.classLikes, cb)
	return cb
}

// NewFunction declares a top-level function in the file and returns its builder.
func (b *FileReferenceBuilder) NewFunction(fqn string, line int) *FunctionBuilder {
	fb := &FunctionBuilder{ref: FunctionReference{FQN: fqn, File: b.path, Line: line}}
	b.functions = append(b.functions, fb)
	return fb
}

// Use records an import statement of the file.
func (b *FileReferenceBuilder) Use(fqn string, line int) *FileReferenceBuilder {
	b.uses = append(b.uses, Dependency{Target: ClassLike(fqn), Line: line, Kind: DepUse})
	return b
}

// Dependency records a file-scoped dependency (top-level code).
func (b *FileReferenceBuilder) Dependency(d Dependency) *FileReferenceBuilder {
	b.deps = append(b.deps, d)
	return b
}

// Build returns the immutable file reference.
func (b *FileReferenceBuilder) Build() FileReference {
	fr := FileReference{
		Path:         b.path,
		Uses:         slices.Clone(b.uses),
		Dependencies: slices.Clone(b.deps),
	}
	for _, cb := range b.classLikes {
		fr.ClassLikes = append(fr.ClassLikes, cb.build())
	}
	for _, fb := range b.functions {
		fr.Functions = append(fr.Functions, fb.build())
	}
	return fr
}

// ClassLikeBuilder accumulates ancestry and dependencies of one class-like.
type ClassLikeBuilder struct {
	ref ClassLikeReference
}

// Extends adds an extends edge.
func (cb *ClassLikeBuilder) Extends(fqn string, line int) *ClassLikeBuilder {
	return cb.super(fqn, line, Extends)
}

// Implements adds an implements edge.
func (cb *ClassLikeBuilder) Implements(fqn string, line int) *ClassLikeBuilder {
	return cb.super(fqn, line, Implements)
}

// Trait adds a trait-use edge.
func (cb *ClassLikeBuilder) Trait(fqn string, line int) *ClassLikeBuilder {
	return cb.super(fqn, line, UsesTrait)
}

func (cb *ClassLikeBuilder) super(fqn string, line int, kind SuperKind) *ClassLikeBuilder {
	cb.ref.Supers = append(cb.ref.Supers, SuperReference{Target: fqn, Line: line, Kind: kind})
	return cb
}

// Dependency records a dependency of the class-like.
func (cb *ClassLikeBuilder) Dependency(d Dependency) *ClassLikeBuilder {
	cb.ref.Dependencies = append(cb.ref.Dependencies, d)
	return cb
}

// DependsOn is shorthand for a class-like dependency of the given kind.
func (cb *ClassLikeBuilder) DependsOn(fqn string, line int, kind DependencyKind) *ClassLikeBuilder {
	return cb.Dependency(Dependency{Target: ClassLike(fqn), Line: line, Kind: kind})
}

func (cb *ClassLikeBuilder) build() ClassLikeReference {
	ref := cb.ref
	ref.Supers = slices.Clone(cb.ref.Supers)
	ref.Dependencies = slices.Clone(cb.ref.Dependencies)
	return ref
}

// FunctionBuilder accumulates dependencies of one function.
type FunctionBuilder struct {
	ref FunctionReference
}

// Dependency records a dependency of the function.
func (fb *FunctionBuilder) Dependency(d Dependency) *FunctionBuilder {
	fb.ref.Dependencies = append(fb.ref.Dependencies, d)
	return fb
}

func (fb *FunctionBuilder) build() FunctionReference {
	ref := fb.ref
	ref.Dependencies = slices.Clone(fb.ref.Dependencies)
	return ref
}
