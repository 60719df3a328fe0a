// Package config loads and validates the layerguard depfile and resolves
// run settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/phobologic/layerguard/internal/collector"
	"github.com/phobologic/layerguard/internal/layer"
	"github.com/phobologic/layerguard/internal/model"
	"github.com/phobologic/layerguard/internal/rules"
)

// DefaultFile is the depfile name looked up when none is given.
const DefaultFile = "layerguard.yaml"

// depfile mirrors the YAML document. Keys keep their case, which matters
// for layer names and class names.
type depfile struct {
	Paths          []string            `yaml:"paths"`
	ExcludeFiles   []string            `yaml:"exclude_files"`
	Layers         []rawLayer          `yaml:"layers"`
	Ruleset        map[string][]string `yaml:"ruleset"`
	SkipViolations map[string][]string `yaml:"skip_violations"`
	Analyser       struct {
		Types []string `yaml:"types"`
	} `yaml:"analyser"`
	IgnoreUncoveredInternalClasses *bool          `yaml:"ignore_uncovered_internal_classes"`
	UseRelativePathFromDepfile     *bool          `yaml:"use_relative_path_from_depfile"`
	Formatters                     map[string]any `yaml:"formatters"`

	// Deptrac wraps the same document in a `deptrac` key.
	Deptrac *depfile `yaml:"deptrac"`
}

type rawLayer struct {
	Name       string           `yaml:"name"`
	Collectors []map[string]any `yaml:"collectors"`
	Attributes map[string]any   `yaml:"attributes"`
}

// Config is a validated depfile.
type Config struct {
	// File is the depfile path, empty for configs parsed from a reader.
	File string
	// BaseDir is the directory paths and file identities are relative to.
	BaseDir string

	Paths        []string
	ExcludeFiles []*regexp.Regexp
	Layers       []layer.Definition
	Ruleset      rules.Ruleset
	Skip         *rules.SkipRules
	Emitters     []model.EmitterType

	IgnoreUncoveredInternal    bool
	UseRelativePathFromDepfile bool
	Formatters                 map[string]any
}

// Load reads and validates the depfile at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{File: path, Message: "cannot read depfile", Cause: err}
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		var cerr *Error
		if errors.As(err, &cerr) {
			cerr.File = path
		}
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	cfg.File = path
	if cfg.UseRelativePathFromDepfile {
		cfg.BaseDir = filepath.Dir(abs)
	} else if cfg.BaseDir, err = os.Getwd(); err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}
	return cfg, nil
}

// Parse decodes and validates a depfile. BaseDir is left to the caller.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &Error{Message: "cannot read depfile", Cause: err}
	}

	var doc depfile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &Error{Message: "malformed YAML", Cause: err}
	}
	if doc.Deptrac != nil {
		doc = *doc.Deptrac
	}
	return build(&doc)
}

func build(doc *depfile) (*Config, error) {
	cfg := &Config{
		Paths:                      doc.Paths,
		IgnoreUncoveredInternal:    boolOr(doc.IgnoreUncoveredInternalClasses, true),
		UseRelativePathFromDepfile: boolOr(doc.UseRelativePathFromDepfile, true),
		Formatters:                 doc.Formatters,
	}
	if len(cfg.Paths) == 0 {
		cfg.Paths = []string{"src/"}
	}
	for i, p := range cfg.Paths {
		if strings.TrimSpace(p) == "" {
			return nil, errorf(fmt.Sprintf("paths[%d]", i), "path must not be empty")
		}
	}

	for i, p := range doc.ExcludeFiles {
		re, err := excludePattern(p)
		if err != nil {
			return nil, &Error{Path: fmt.Sprintf("exclude_files[%d]", i), Message: "invalid pattern", Cause: err}
		}
		cfg.ExcludeFiles = append(cfg.ExcludeFiles, re)
	}

	layers, err := buildLayers(doc.Layers)
	if err != nil {
		return nil, err
	}
	cfg.Layers = layers

	names := make(map[string]bool, len(layers))
	for _, l := range layers {
		names[l.Name] = true
	}
	if cfg.Ruleset, err = buildRuleset(doc.Ruleset, names); err != nil {
		return nil, err
	}

	if cfg.Skip, err = rules.NewSkipRules(doc.SkipViolations); err != nil {
		return nil, &Error{Path: "skip_violations", Message: "invalid pattern", Cause: err}
	}

	if len(doc.Analyser.Types) == 0 {
		cfg.Emitters = slices.Clone(model.DefaultEmitterTypes)
	}
	for i, t := range doc.Analyser.Types {
		et, err := model.ParseEmitterType(t)
		if err != nil {
			return nil, &Error{Path: fmt.Sprintf("analyser.types[%d]", i), Message: err.Error()}
		}
		cfg.Emitters = append(cfg.Emitters, et)
	}
	return cfg, nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// excludePattern accepts delimited patterns (`#Test\.php$#`) and bare ones.
func excludePattern(p string) (*regexp.Regexp, error) {
	re, ok, err := rules.ParsePattern(p)
	if err != nil {
		return nil, err
	}
	if ok {
		return re, nil
	}
	return regexp.Compile(p)
}

func buildLayers(raw []rawLayer) ([]layer.Definition, error) {
	seen := make(map[string]bool, len(raw))
	defs := make([]layer.Definition, 0, len(raw))
	for i, rl := range raw {
		path := fmt.Sprintf("layers[%d]", i)
		name := strings.TrimSpace(rl.Name)
		if name == "" {
			return nil, errorf(path, "layer name is required")
		}
		if seen[name] {
			return nil, errorf(path, "duplicate layer %q", name)
		}
		seen[name] = true
		if len(rl.Collectors) == 0 {
			return nil, errorf(path, "layer %q has no collectors", name)
		}

		def := layer.Definition{Name: name}
		for j, rc := range rl.Collectors {
			c, err := decodeCollector(attrs(rc), fmt.Sprintf("%s.collectors[%d]", path, j))
			if err != nil {
				return nil, err
			}
			def.Collectors = append(def.Collectors, c)
		}
		defs = append(defs, def)
	}

	if err := checkLayerRefs(defs, seen); err != nil {
		return nil, err
	}
	return defs, nil
}

// checkLayerRefs rejects layer collectors naming unknown layers or forming
// a cycle.
func checkLayerRefs(defs []layer.Definition, declared map[string]bool) error {
	refs := make(map[string][]string, len(defs))
	for i, d := range defs {
		for _, c := range d.Collectors {
			for _, name := range collector.LayerRefs(c) {
				if !declared[name] {
					return errorf(fmt.Sprintf("layers[%d]", i), "layer collector references undeclared layer %q", name)
				}
				refs[d.Name] = append(refs[d.Name], name)
			}
		}
	}

	const (
		unvisited = iota
		active
		done
	)
	state := make(map[string]int, len(defs))
	var visit func(name string, chain []string) error
	visit = func(name string, chain []string) error {
		switch state[name] {
		case active:
			return errorf("layers", "layer collectors form a cycle: %s", strings.Join(append(chain, name), " -> "))
		case done:
			return nil
		}
		state[name] = active
		for _, next := range refs[name] {
			if err := visit(next, append(chain, name)); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}
	for _, d := range defs {
		if err := visit(d.Name, nil); err != nil {
			return err
		}
	}
	return nil
}

// buildRuleset validates layer names and expands `+Layer` entries, which
// grant everything Layer may depend on as well as Layer itself.
func buildRuleset(raw map[string][]string, declared map[string]bool) (rules.Ruleset, error) {
	for _, from := range sortedKeys(raw) {
		if !declared[from] {
			return nil, errorf("ruleset", "undeclared layer %q", from)
		}
		for _, to := range raw[from] {
			if !declared[strings.TrimPrefix(to, "+")] {
				return nil, errorf("ruleset."+from, "undeclared layer %q", to)
			}
		}
	}

	out := make(rules.Ruleset, len(raw))
	for _, from := range sortedKeys(raw) {
		seen := map[string]bool{from: true}
		var allowed []string
		var expand func(l string)
		expand = func(l string) {
			for _, to := range raw[l] {
				name, transitive := strings.CutPrefix(to, "+")
				if !slices.Contains(allowed, name) {
					allowed = append(allowed, name)
				}
				if transitive && !seen[name] {
					seen[name] = true
					expand(name)
				}
			}
		}
		expand(from)
		out[from] = allowed
	}
	return out, nil
}
