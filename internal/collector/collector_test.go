package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/layerguard/internal/graph"
	"github.com/phobologic/layerguard/internal/model"
)

func fixture(t *testing.T) *graph.SymbolMap {
	t.Helper()
	b := model.NewFileReferenceBuilder("src/Domain/fixture.php")
	b.NewClassLike(`App\Domain\Foo`, model.Class, 3).Implements(`App\Domain\Bar`, 3)
	b.NewClassLike(`App\Domain\Bar`, model.Interface, 4).Implements(`App\Domain\Baz`, 4)
	b.NewClassLike(`App\Domain\Baz`, model.Interface, 5)
	b.NewClassLike(`App\Domain\FizTrait`, model.Trait, 6)
	b.NewClassLike(`App\Domain\FooBar`, model.Class, 7).Extends(`App\Domain\Foo`, 7).Trait(`App\Domain\FizTrait`, 8)
	b.NewFunction(`App\Domain\helper`, 12)
	m, diags := graph.Build([]model.FileReference{b.Build()})
	require.Empty(t, diags)
	return m
}

func ref(m *graph.SymbolMap, tok model.Token) Reference {
	r := Reference{Token: tok}
	switch tok.Type {
	case model.ClassLikeToken:
		if c, ok := m.ClassLike(tok.Name); ok {
			r.ClassLike = c
			r.File = c.File
		}
	case model.FunctionToken:
		if f, ok := m.Function(tok.Name); ok {
			r.Function = f
			r.File = f.File
		}
	}
	return r
}

func TestClassName(t *testing.T) {
	t.Parallel()

	m := fixture(t)
	c, err := NewClassName(`.*\\Domain\\.*`)
	require.NoError(t, err)

	assert.True(t, c.Satisfy(ref(m, model.ClassLike(`App\Domain\Foo`)), nil))
	assert.True(t, c.Satisfy(ref(m, model.ClassLike(`Vendor\domain\X`)), nil), "case-insensitive, undeclared")
	assert.False(t, c.Satisfy(ref(m, model.ClassLike(`App\Http\X`)), nil))
	assert.False(t, c.Satisfy(ref(m, model.Function(`App\Domain\helper`)), nil))

	_, err = NewClassName("(")
	assert.Error(t, err)
}

func TestClassLikeKinds(t *testing.T) {
	t.Parallel()

	m := fixture(t)
	iface, err := NewClassLike(`Domain`, model.Interface)
	require.NoError(t, err)
	anyKind, err := NewClassLike(`Domain`, "")
	require.NoError(t, err)

	assert.True(t, iface.Satisfy(ref(m, model.ClassLike(`App\Domain\Bar`)), nil))
	assert.False(t, iface.Satisfy(ref(m, model.ClassLike(`App\Domain\Foo`)), nil))
	assert.True(t, anyKind.Satisfy(ref(m, model.ClassLike(`App\Domain\FizTrait`)), nil))
	assert.False(t, anyKind.Satisfy(ref(m, model.ClassLike(`Vendor\Domain\Undeclared`)), nil))
	assert.Equal(t, "interface", iface.Type())
	assert.Equal(t, "classLike", anyKind.Type())
}

func TestDirectoryAndGlob(t *testing.T) {
	t.Parallel()

	m := fixture(t)
	dir, err := NewDirectory(`src/Domain/.*`)
	require.NoError(t, err)
	glob, err := NewGlob("src/Domain/*.php")
	require.NoError(t, err)
	otherGlob, err := NewGlob("src/Http/**")
	require.NoError(t, err)

	foo := ref(m, model.ClassLike(`App\Domain\Foo`))
	helper := ref(m, model.Function(`App\Domain\helper`))
	vendor := ref(m, model.ClassLike(`Vendor\Thing`))

	assert.True(t, dir.Satisfy(foo, nil))
	assert.True(t, dir.Satisfy(helper, nil))
	assert.False(t, dir.Satisfy(vendor, nil))
	assert.True(t, glob.Satisfy(foo, nil))
	assert.False(t, otherGlob.Satisfy(foo, nil))
	assert.False(t, glob.Satisfy(vendor, nil))

	_, err = NewGlob("  ")
	assert.Error(t, err)
}

func TestFunctionNameAndSuperglobal(t *testing.T) {
	t.Parallel()

	m := fixture(t)
	fn, err := NewFunctionName(`^App\\Domain\\`)
	require.NoError(t, err)
	sg := &Superglobal{Names: []string{"_GET", "_POST"}}

	assert.True(t, fn.Satisfy(ref(m, model.Function(`App\Domain\helper`)), nil))
	assert.False(t, fn.Satisfy(ref(m, model.ClassLike(`App\Domain\Foo`)), nil))
	assert.True(t, sg.Satisfy(Reference{Token: model.Superglobal("_POST")}, nil))
	assert.False(t, sg.Satisfy(Reference{Token: model.Superglobal("_SERVER")}, nil))
	assert.False(t, sg.Satisfy(Reference{Token: model.ClassLike("_GET")}, nil))
}

func TestInheritance(t *testing.T) {
	t.Parallel()

	m := fixture(t)
	env := &Env{Symbols: m}
	fooBar := ref(m, model.ClassLike(`App\Domain\FooBar`))

	tests := []struct {
		name string
		c    *Inheritance
		want bool
	}{
		{"inherits interface", &Inheritance{Target: `App\Domain\Bar`, Transitive: true}, true},
		{"inherits transitive interface", &Inheritance{Target: `App\Domain\Baz`, Transitive: true}, true},
		{"inherits parent", &Inheritance{Target: `App\Domain\Foo`, Transitive: true}, true},
		{"inherits trait", &Inheritance{Target: `App\Domain\FizTrait`, Transitive: true}, true},
		{"inherits unknown", &Inheritance{Target: "None", Transitive: true}, false},
		{"implements transitive", &Inheritance{Target: `App\Domain\Baz`, Kind: model.Implements, Transitive: true}, true},
		{"implements direct only", &Inheritance{Target: `App\Domain\Baz`, Kind: model.Implements}, false},
		{"extends direct", &Inheritance{Target: `App\Domain\Foo`, Kind: model.Extends}, true},
		{"uses direct", &Inheritance{Target: `App\Domain\FizTrait`, Kind: model.UsesTrait}, true},
		{"extends wrong kind", &Inheritance{Target: `App\Domain\Bar`, Kind: model.Extends, Transitive: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.c.Satisfy(fooBar, env))
		})
	}

	assert.False(t, (&Inheritance{Target: "X", Transitive: true}).Satisfy(ref(m, model.ClassLike("Undeclared")), env))
}

func TestCombinators(t *testing.T) {
	t.Parallel()

	m := fixture(t)
	domain, err := NewClassName(`Domain`)
	require.NoError(t, err)
	iface, err := NewClassLike(`.*`, model.Interface)
	require.NoError(t, err)

	bar := ref(m, model.ClassLike(`App\Domain\Bar`))
	foo := ref(m, model.ClassLike(`App\Domain\Foo`))

	and := &And{Children: []Collector{domain, &Not{Child: iface}}}
	assert.False(t, and.Satisfy(bar, nil))
	assert.True(t, and.Satisfy(foo, nil))

	or := &Or{Children: []Collector{iface, &Superglobal{Names: []string{"_GET"}}}}
	assert.True(t, or.Satisfy(bar, nil))
	assert.False(t, or.Satisfy(foo, nil))

	assert.False(t, (&And{}).Satisfy(foo, nil))
	assert.False(t, (&Or{}).Satisfy(foo, nil))
}

func TestLayerCollector(t *testing.T) {
	t.Parallel()

	var asked []string
	env := &Env{InLayer: func(layer string, ref Reference) bool {
		asked = append(asked, layer)
		return layer == "Domain"
	}}
	r := Reference{Token: model.ClassLike("X")}

	assert.True(t, (&Layer{Name: "Domain"}).Satisfy(r, env))
	assert.False(t, (&Layer{Name: "Infra"}).Satisfy(r, env))
	assert.Equal(t, []string{"Domain", "Infra"}, asked)
	assert.False(t, (&Layer{Name: "Domain"}).Satisfy(r, nil))
}

func TestLayerRefs(t *testing.T) {
	t.Parallel()

	c := &Or{Children: []Collector{
		&Layer{Name: "A"},
		&Not{Child: &And{Children: []Collector{&Layer{Name: "B"}, &Layer{Name: "A"}}}},
	}}
	assert.Equal(t, []string{"A", "B"}, LayerRefs(c))
}
