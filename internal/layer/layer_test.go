package layer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/layerguard/internal/collector"
	"github.com/phobologic/layerguard/internal/graph"
	"github.com/phobologic/layerguard/internal/model"
)

func mustClassName(t *testing.T, pattern string) collector.Collector {
	t.Helper()
	c, err := collector.NewClassName(pattern)
	require.NoError(t, err)
	return c
}

func setup(t *testing.T) (*Resolver, *graph.SymbolMap) {
	t.Helper()
	b := model.NewFileReferenceBuilder("src/app.php")
	b.NewClassLike(`App\Controller\Home`, model.Class, 3).DependsOn(`App\Service\Mailer`, 5, model.DepNew)
	b.NewClassLike(`App\Service\Mailer`, model.Class, 9).Implements(`App\Contract\Sender`, 9)
	b.NewClassLike(`App\Contract\Sender`, model.Interface, 12)
	m, _ := graph.Build([]model.FileReference{b.Build()})

	defs := []Definition{
		{Name: "Controller", Collectors: []collector.Collector{mustClassName(t, `\\Controller\\`)}},
		{Name: "Service", Collectors: []collector.Collector{mustClassName(t, `\\Service\\`)}},
		{Name: "Senders", Collectors: []collector.Collector{
			&collector.Inheritance{Target: `App\Contract\Sender`, Kind: model.Implements, Transitive: true},
		}},
		{Name: "Application", Collectors: []collector.Collector{
			&collector.Layer{Name: "Controller"},
			&collector.Layer{Name: "Service"},
		}},
		{Name: "Vendor", Collectors: []collector.Collector{mustClassName(t, `^Vendor\\`)}},
	}
	return NewResolver(defs, m), m
}

func TestResolve(t *testing.T) {
	t.Parallel()

	r, _ := setup(t)

	assert.Equal(t, []string{"Application", "Controller"}, r.Resolve(r.ReferenceFor(model.ClassLike(`App\Controller\Home`))))
	assert.Equal(t, []string{"Application", "Senders", "Service"}, r.Resolve(r.ReferenceFor(model.ClassLike(`App\Service\Mailer`))))
	assert.Empty(t, r.Resolve(r.ReferenceFor(model.ClassLike(`App\Contract\Sender`))))
	assert.Equal(t, []string{"Vendor"}, r.Resolve(r.ReferenceFor(model.ClassLike(`Vendor\Lib`))),
		"undeclared tokens still match by name")
	assert.False(t, r.InLayer("Missing", r.ReferenceFor(model.ClassLike(`App\Controller\Home`))))
	assert.Equal(t, []string{"Controller", "Service", "Senders", "Application", "Vendor"}, r.Names())
}

func TestReferenceFor(t *testing.T) {
	t.Parallel()

	r, _ := setup(t)

	ref := r.ReferenceFor(model.ClassLike(`App\Service\Mailer`))
	require.NotNil(t, ref.ClassLike)
	assert.Equal(t, "src/app.php", ref.File)

	ref = r.ReferenceFor(model.ClassLike(`Vendor\Lib`))
	assert.Nil(t, ref.ClassLike)
	assert.Empty(t, ref.File)

	assert.Equal(t, "src/app.php", r.ReferenceFor(model.File("src/app.php")).File)
}

func TestAssign(t *testing.T) {
	t.Parallel()

	r, m := setup(t)
	edges := graph.Edges(m, nil)
	tokens := Tokens(m, edges.Edges)

	got, err := r.Assign(context.Background(), tokens, 4)
	require.NoError(t, err)

	assert.Equal(t, []string{"Application", "Controller"}, got.Layers(model.ClassLike(`App\Controller\Home`)))
	_, ok := got[model.ClassLike(`App\Contract\Sender`)]
	assert.False(t, ok, "tokens without layers are absent")
	assert.Equal(t, []model.Token{
		model.ClassLike(`App\Controller\Home`),
		model.ClassLike(`App\Service\Mailer`),
	}, got.Members("Application"))

	again, err := r.Assign(context.Background(), tokens, 1)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestAssignCancelled(t *testing.T) {
	t.Parallel()

	r, m := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Assign(ctx, Tokens(m, nil), 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokens(t *testing.T) {
	t.Parallel()

	_, m := setup(t)
	tokens := Tokens(m, []graph.Edge{{
		Depender: model.ClassLike(`App\Controller\Home`),
		Dependee: model.ClassLike(`Vendor\Lib`),
	}})

	assert.Equal(t, []model.Token{
		model.ClassLike(`App\Contract\Sender`),
		model.ClassLike(`App\Controller\Home`),
		model.ClassLike(`App\Service\Mailer`),
		model.ClassLike(`Vendor\Lib`),
		model.File("src/app.php"),
	}, tokens)
}
