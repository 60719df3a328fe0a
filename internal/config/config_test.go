package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/layerguard/internal/collector"
	"github.com/phobologic/layerguard/internal/graph"
	"github.com/phobologic/layerguard/internal/layer"
	"github.com/phobologic/layerguard/internal/model"
)

func parse(t *testing.T, doc string) *Config {
	t.Helper()
	cfg, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	return cfg
}

func parseErr(t *testing.T, doc string) *Error {
	t.Helper()
	_, err := Parse(strings.NewReader(doc))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	return cerr
}

const fullDepfile = `
paths: [src/, lib/]
exclude_files:
  - '#.*Test\.php$#'
  - vendor/.*
layers:
  - name: Controller
    collectors:
      - type: className
        value: .*Controller.*
  - name: Service
    collectors:
      - type: directory
        regex: src/Service/.*
      - type: bool
        must:
          - type: classLike
            value: .*
        must_not:
          - type: interface
            value: .*
  - name: Repository
    collectors:
      - type: implements
        value: App\Contract\Repository
        transitive: false
ruleset:
  Controller: [+Service]
  Service: [Repository]
  Repository: ~
skip_violations:
  App\Repository\Users: ['#^App\\Controller\\#']
analyser:
  types: [class_token, function_call]
ignore_uncovered_internal_classes: false
formatters:
  graphviz:
    hidden_layers: [Repository]
`

func TestParseFull(t *testing.T) {
	t.Parallel()

	cfg := parse(t, fullDepfile)

	assert.Equal(t, []string{"src/", "lib/"}, cfg.Paths)
	require.Len(t, cfg.ExcludeFiles, 2)
	assert.True(t, cfg.ExcludeFiles[0].MatchString("src/FooTest.php"))
	assert.True(t, cfg.ExcludeFiles[1].MatchString("vendor/x.php"))

	require.Len(t, cfg.Layers, 3)
	assert.Equal(t, "Controller", cfg.Layers[0].Name)
	require.Len(t, cfg.Layers[1].Collectors, 2)
	assert.IsType(t, &collector.Directory{}, cfg.Layers[1].Collectors[0])

	and, ok := cfg.Layers[1].Collectors[1].(*collector.And)
	require.True(t, ok, "bool is normalized to and/not/or")
	require.Len(t, and.Children, 2)
	not, ok := and.Children[1].(*collector.Not)
	require.True(t, ok)
	assert.IsType(t, &collector.Or{}, not.Child)

	assert.Equal(t, &collector.Inheritance{
		Target: `App\Contract\Repository`, Kind: model.Implements, Transitive: false,
	}, cfg.Layers[2].Collectors[0])

	assert.Equal(t, []string{"Service", "Repository"}, cfg.Ruleset["Controller"], "+Service expands")
	assert.True(t, cfg.Ruleset.Allows("Controller", "Repository"))
	assert.Empty(t, cfg.Ruleset["Repository"])

	_, ok = cfg.Skip.Match(`App\Repository\Users`, `App\Controller\Home`)
	assert.True(t, ok)

	assert.Equal(t, []model.EmitterType{model.EmitClassToken, model.EmitFunctionCall}, cfg.Emitters)
	assert.False(t, cfg.IgnoreUncoveredInternal)
	assert.True(t, cfg.UseRelativePathFromDepfile)
	assert.Contains(t, cfg.Formatters, "graphviz")
}

func TestParseDefaults(t *testing.T) {
	t.Parallel()

	cfg := parse(t, "layers: []\n")
	assert.Equal(t, []string{"src/"}, cfg.Paths)
	assert.Equal(t, model.DefaultEmitterTypes, cfg.Emitters)
	assert.True(t, cfg.IgnoreUncoveredInternal)
	assert.True(t, cfg.UseRelativePathFromDepfile)
}

func TestParseDeptracWrapper(t *testing.T) {
	t.Parallel()

	cfg := parse(t, `
deptrac:
  layers:
    - name: A
      collectors:
        - type: className
          regex: ^A
`)
	require.Len(t, cfg.Layers, 1)
	assert.Equal(t, "A", cfg.Layers[0].Name)
}

// The fixture classes: Foo implements Bar, Bar implements Baz, FooBar
// extends Foo and uses FizTrait.
func inheritanceMap(t *testing.T) *graph.SymbolMap {
	t.Helper()
	b := model.NewFileReferenceBuilder("fixture.php")
	b.NewClassLike("Foo", model.Class, 1).Implements("Bar", 1)
	b.NewClassLike("Bar", model.Interface, 2).Implements("Baz", 2)
	b.NewClassLike("Baz", model.Interface, 3)
	b.NewClassLike("FizTrait", model.Trait, 4)
	b.NewClassLike("FooBar", model.Class, 5).Extends("Foo", 5).Trait("FizTrait", 6)
	m, _ := graph.Build([]model.FileReference{b.Build()})
	return m
}

func TestInheritsCanonicalAndLegacyKeys(t *testing.T) {
	t.Parallel()

	m := inheritanceMap(t)
	tests := []struct {
		target string
		want   bool
	}{
		{"Bar", true},
		{"Baz", true},
		{"Foo", true},
		{"FizTrait", true},
		{"None", false},
	}
	for _, key := range []string{"value", "inherits"} {
		for _, tt := range tests {
			t.Run(key+"/"+tt.target, func(t *testing.T) {
				t.Parallel()
				cfg := parse(t, "layers:\n  - name: L\n    collectors:\n      - type: inherits\n        "+key+": "+tt.target+"\n")
				r := layer.NewResolver(cfg.Layers, m)
				got := r.InLayer("L", r.ReferenceFor(model.ClassLike("FooBar")))
				assert.Equal(t, tt.want, got)
			})
		}
	}
}

func TestLegacyKeysNormalize(t *testing.T) {
	t.Parallel()

	canonical := parse(t, `
layers:
  - name: A
    collectors:
      - {type: extends, value: Base}
      - {type: layer, value: B}
  - name: B
    collectors:
      - {type: className, value: ^B}
`)
	legacy := parse(t, `
layers:
  - name: A
    collectors:
      - {type: extends, extends: Base}
      - {type: layer, layer: B}
  - name: B
    collectors:
      - {type: className, regex: ^B}
`)
	assert.Equal(t, canonical.Layers, legacy.Layers)
}

func TestConfigurationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown collector", "layers:\n  - name: A\n    collectors:\n      - type: magic\n", "unknown collector type"},
		{"missing type", "layers:\n  - name: A\n    collectors:\n      - value: x\n", "collector type is required"},
		{"missing value", "layers:\n  - name: A\n    collectors:\n      - type: className\n", "missing attribute"},
		{"invalid regex", "layers:\n  - name: A\n    collectors:\n      - type: className\n        value: '('\n", "invalid pattern"},
		{"empty layer name", "layers:\n  - name: ''\n    collectors:\n      - {type: className, value: x}\n", "name is required"},
		{"duplicate layer", "layers:\n  - name: A\n    collectors:\n      - {type: className, value: x}\n  - name: A\n    collectors:\n      - {type: className, value: y}\n", "duplicate layer"},
		{"no collectors", "layers:\n  - name: A\n    collectors: []\n", "has no collectors"},
		{"ruleset key", "layers:\n  - name: A\n    collectors:\n      - {type: className, value: x}\nruleset:\n  B: [A]\n", `undeclared layer "B"`},
		{"ruleset value", "layers:\n  - name: A\n    collectors:\n      - {type: className, value: x}\nruleset:\n  A: [+C]\n", `undeclared layer "+C"`},
		{"layer collector target", "layers:\n  - name: A\n    collectors:\n      - {type: layer, value: Z}\n", "undeclared layer"},
		{"layer cycle", "layers:\n  - name: A\n    collectors:\n      - {type: layer, value: B}\n  - name: B\n    collectors:\n      - {type: not, value: {type: layer, value: A}}\n", "cycle"},
		{"analyser type", "analyser:\n  types: [method_token]\n", "invalid analyser type"},
		{"unknown key", "layerz: []\n", "malformed YAML"},
		{"bad transitive", "layers:\n  - name: A\n    collectors:\n      - {type: uses, value: T, transitive: maybe}\n", "must be a boolean"},
		{"empty bool", "layers:\n  - name: A\n    collectors:\n      - {type: bool}\n", "must or must_not"},
		{"exclude regex", "exclude_files: ['#(#']\n", "invalid pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := parseErr(t, tt.doc)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadResolvesBaseDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte("paths: [app/]\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.BaseDir)
	assert.Equal(t, path, cfg.File)
	assert.Equal(t, []string{"app/"}, cfg.Paths)
}

func TestLoadErrorsCarryFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("layers:\n  - name: A\n    collectors: []\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), path+": layers[0]"))

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadSettings(t *testing.T) {
	t.Setenv("LAYERGUARD_FORMATTER", "json")
	t.Setenv("LAYERGUARD_FAIL_ON_UNCOVERED", "true")

	v := NewViper()
	v.Set("workers", 0)
	s, err := LoadSettings(v)
	require.NoError(t, err)

	assert.Equal(t, "json", s.Formatter)
	assert.True(t, s.FailOnUncovered)
	assert.Equal(t, 1, s.Workers)
	assert.Equal(t, DefaultFile, s.Config)
	assert.True(t, s.ReportUncovered)
}

func TestLoadSettingsRejectsFormatter(t *testing.T) {
	t.Parallel()

	v := NewViper()
	v.Set("formatter", "graphviz")
	_, err := LoadSettings(v)
	assert.ErrorIs(t, err, ErrConfiguration)
}
