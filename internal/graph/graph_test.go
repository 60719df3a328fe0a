package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/layerguard/internal/model"
)

// inheritanceFixture: Foo implements Bar, Bar implements Baz, FooBar extends
// Foo and uses FizTrait.
func inheritanceFixture() []model.FileReference {
	b := model.NewFileReferenceBuilder("src/fixture.php")
	b.NewClassLike("Foo", model.Class, 3).Implements("Bar", 3)
	b.NewClassLike("Bar", model.Interface, 4).Implements("Baz", 4)
	b.NewClassLike("Baz", model.Interface, 5)
	b.NewClassLike("FizTrait", model.Trait, 6)
	b.NewClassLike("FooBar", model.Class, 7).Extends("Foo", 7).Trait("FizTrait", 8)
	return []model.FileReference{b.Build()}
}

func TestBuildFirstDefinitionWins(t *testing.T) {
	t.Parallel()

	a := model.NewFileReferenceBuilder("a.php")
	a.NewClassLike(`App\Foo`, model.Class, 2)
	a.NewFunction(`App\helper`, 9)
	b := model.NewFileReferenceBuilder("b.php")
	b.NewClassLike(`App\Foo`, model.Interface, 5)
	b.NewFunction(`App\helper`, 3)

	m, diags := Build([]model.FileReference{a.Build(), b.Build()})

	foo, ok := m.ClassLike(`App\Foo`)
	require.True(t, ok)
	assert.Equal(t, "a.php", foo.File)
	assert.Equal(t, model.Class, foo.Type)

	fn, ok := m.Function(`App\helper`)
	require.True(t, ok)
	assert.Equal(t, "a.php", fn.File)

	require.Len(t, diags, 2)
	for _, d := range diags {
		assert.Equal(t, model.DiagDuplicateDefinition, d.Kind)
		assert.Equal(t, "b.php", d.File)
	}
	assert.Contains(t, diags[0].Message, "a.php:2")
}

func TestBuildAccessors(t *testing.T) {
	t.Parallel()

	m, diags := Build(inheritanceFixture())
	require.Empty(t, diags)

	var names []string
	for _, c := range m.ClassLikes() {
		names = append(names, c.FQN)
	}
	assert.Equal(t, []string{"Bar", "Baz", "FizTrait", "Foo", "FooBar"}, names)
	assert.Equal(t, 5, m.Len())

	owner, ok := m.Owner(model.ClassLike("Foo"))
	assert.True(t, ok)
	assert.Equal(t, "src/fixture.php", owner)

	_, ok = m.Owner(model.ClassLike("Vendor\\Thing"))
	assert.False(t, ok)
	_, ok = m.Owner(model.Superglobal("_GET"))
	assert.False(t, ok)
	assert.True(t, m.Declared(model.File("src/fixture.php")))

	require.Len(t, m.Files(), 1)
	_, ok = m.File("src/fixture.php")
	assert.True(t, ok)
}

func TestInheritsTransitive(t *testing.T) {
	t.Parallel()

	m, _ := Build(inheritanceFixture())

	tests := []struct {
		target string
		want   bool
	}{
		{"Bar", true},
		{"Baz", true},
		{"Foo", true},
		{"FizTrait", true},
		{"None", false},
		{"FooBar", false},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, m.Inherits("FooBar", tt.target, "", true))
		})
	}
}

func TestInheritsByKind(t *testing.T) {
	t.Parallel()

	m, _ := Build(inheritanceFixture())

	assert.True(t, m.Inherits("FooBar", "Foo", model.Extends, false))
	assert.False(t, m.Inherits("FooBar", "Bar", model.Implements, false), "not a direct super")
	assert.True(t, m.Inherits("FooBar", "Bar", model.Implements, true))
	assert.True(t, m.Inherits("FooBar", "Baz", model.Implements, true))
	assert.False(t, m.Inherits("FooBar", "Bar", model.Extends, true), "wrong edge kind")
	assert.True(t, m.Inherits("FooBar", "FizTrait", model.UsesTrait, false))
	assert.False(t, m.Inherits("Unknown", "Foo", "", true))
}

func TestInheritsIgnoresCase(t *testing.T) {
	t.Parallel()

	b := model.NewFileReferenceBuilder("case.php")
	b.NewClassLike(`App\Base`, model.Class, 1).Implements(`App\Contract`, 1)
	b.NewClassLike(`App\Middle`, model.Class, 2).Extends(`app\base`, 2)
	b.NewClassLike(`App\Leaf`, model.Class, 3).Extends(`APP\Middle`, 3)
	m, _ := Build([]model.FileReference{b.Build()})

	assert.True(t, m.Inherits(`App\Leaf`, `App\Base`, model.Extends, true))
	assert.True(t, m.Inherits(`App\Leaf`, `app\contract`, model.Implements, true))
	assert.True(t, m.Inherits(`app\leaf`, `App\Middle`, model.Extends, false))
	assert.Len(t, m.Ancestry(`App\Leaf`), 3)
}

func TestAncestryCycleTerminates(t *testing.T) {
	t.Parallel()

	b := model.NewFileReferenceBuilder("cycle.php")
	b.NewClassLike("A", model.Class, 1).Extends("B", 1)
	b.NewClassLike("B", model.Class, 2).Extends("A", 2)
	m, _ := Build([]model.FileReference{b.Build()})

	assert.True(t, m.Inherits("A", "B", "", true))
	assert.False(t, m.Inherits("A", "C", "", true))
	assert.False(t, m.Inherits("A", "C", model.Implements, true))
	assert.Len(t, m.Ancestry("A"), 2)
}

func TestAncestryDanglingTarget(t *testing.T) {
	t.Parallel()

	b := model.NewFileReferenceBuilder("a.php")
	b.NewClassLike("Child", model.Class, 1).Extends(`Vendor\Base`, 1)
	m, _ := Build([]model.FileReference{b.Build()})

	assert.Equal(t, []model.SuperReference{
		{Target: `Vendor\Base`, Line: 1, Kind: model.Extends},
	}, m.Ancestry("Child"))
	assert.True(t, m.Inherits("Child", `Vendor\Base`, model.Extends, true))
}

func TestBuildDeterministicAcrossOrder(t *testing.T) {
	t.Parallel()

	a := model.NewFileReferenceBuilder("a.php")
	a.NewClassLike("A", model.Class, 1).DependsOn("B", 2, model.DepNew)
	b := model.NewFileReferenceBuilder("b.php")
	b.NewClassLike("B", model.Class, 1).DependsOn("A", 3, model.DepParameter)

	m1, _ := Build([]model.FileReference{a.Build(), b.Build()})
	m2, _ := Build([]model.FileReference{b.Build(), a.Build()})

	assert.Equal(t, m1.ClassLikes(), m2.ClassLikes())
	assert.Equal(t, Edges(m1, nil), Edges(m2, nil))
}

func TestEdgesDefaultTypes(t *testing.T) {
	t.Parallel()

	b := model.NewFileReferenceBuilder("src/Foo.php")
	b.Use(`App\Repo`, 3)
	b.NewClassLike(`App\Foo`, model.Class, 5).
		Extends(`App\Base`, 5).
		DependsOn(`App\Dep`, 8, model.DepNew).
		DependsOn(`App\Foo`, 9, model.DepStaticCall).
		Dependency(model.Dependency{Target: model.Unresolved(), Line: 10, Kind: model.DepNew}).
		Dependency(model.Dependency{Target: model.Superglobal("_GET"), Line: 11, Kind: model.DepSuperglobal})
	m, _ := Build([]model.FileReference{b.Build()})

	got := Edges(m, nil)
	foo := model.ClassLike(`App\Foo`)
	assert.Equal(t, []Edge{
		{Depender: foo, Dependee: model.ClassLike(`App\Repo`), File: "src/Foo.php", Line: 3, Kind: model.DepUse},
		{Depender: foo, Dependee: model.ClassLike(`App\Base`), File: "src/Foo.php", Line: 5, Kind: model.DepExtends},
		{Depender: foo, Dependee: model.ClassLike(`App\Dep`), File: "src/Foo.php", Line: 8, Kind: model.DepNew},
	}, got.Edges)
	assert.Equal(t, 1, got.Unresolved)
}

func TestEdgesFunctionAndSuperglobalEmitters(t *testing.T) {
	t.Parallel()

	b := model.NewFileReferenceBuilder("lib.php")
	b.NewFunction(`App\helper`, 3).
		Dependency(model.Dependency{Target: model.ClassLike(`App\Model`), Line: 4, Kind: model.DepNew}).
		Dependency(model.Dependency{Target: model.Superglobal("_POST"), Line: 5, Kind: model.DepSuperglobal}).
		Dependency(model.Dependency{Target: model.Function(`App\strlen`), Fallback: "strlen", Line: 6, Kind: model.DepFunctionCall}).
		Dependency(model.Dependency{Target: model.Function(`App\local`), Fallback: "local", Line: 7, Kind: model.DepFunctionCall})
	b.NewFunction(`App\local`, 10)
	b.Dependency(model.Dependency{Target: model.ClassLike(`App\Kernel`), Line: 12, Kind: model.DepNew})
	m, _ := Build([]model.FileReference{b.Build()})

	helper := model.Function(`App\helper`)
	got := Edges(m, []model.EmitterType{
		model.EmitFunctionToken,
		model.EmitFunctionSuperglobalToken,
		model.EmitFunctionCall,
		model.EmitFileToken,
	})
	assert.Equal(t, []Edge{
		{Depender: helper, Dependee: model.ClassLike(`App\Model`), File: "lib.php", Line: 4, Kind: model.DepNew},
		{Depender: helper, Dependee: model.Superglobal("_POST"), File: "lib.php", Line: 5, Kind: model.DepSuperglobal},
		{Depender: helper, Dependee: model.Function("strlen"), File: "lib.php", Line: 6, Kind: model.DepFunctionCall},
		{Depender: helper, Dependee: model.Function(`App\local`), File: "lib.php", Line: 7, Kind: model.DepFunctionCall},
		{Depender: model.File("lib.php"), Dependee: model.ClassLike(`App\Kernel`), File: "lib.php", Line: 12, Kind: model.DepNew},
	}, got.Edges)
}

func TestEdgesUseTokenSkipsDuplicateOwners(t *testing.T) {
	t.Parallel()

	a := model.NewFileReferenceBuilder("a.php")
	a.NewClassLike("Foo", model.Class, 2)
	b := model.NewFileReferenceBuilder("b.php")
	b.Use("Bar", 1)
	b.NewClassLike("Foo", model.Class, 2)
	m, _ := Build([]model.FileReference{a.Build(), b.Build()})

	assert.Empty(t, Edges(m, []model.EmitterType{model.EmitUseToken}).Edges)
}
