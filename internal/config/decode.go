package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/phobologic/layerguard/internal/collector"
	"github.com/phobologic/layerguard/internal/model"
)

type attrs map[string]any

// decodeCollector turns one collector attribute bag into its variant.
// Legacy attribute names are accepted here and nowhere else.
func decodeCollector(raw attrs, path string) (collector.Collector, error) {
	typ, ok := raw["type"].(string)
	if !ok || typ == "" {
		return nil, errorf(path, "collector type is required")
	}

	switch typ {
	case "className":
		v, err := raw.str(path, "value", "regex")
		if err != nil {
			return nil, err
		}
		return wrapRegex(path)(collector.NewClassName(v))

	case "classLike", "class", "interface", "trait", "enum":
		v, err := raw.str(path, "value", "regex")
		if err != nil {
			return nil, err
		}
		kind := model.ClassLikeType(typ)
		if typ == "classLike" {
			kind = ""
		}
		return wrapRegex(path)(collector.NewClassLike(v, kind))

	case "directory":
		v, err := raw.str(path, "value", "regex")
		if err != nil {
			return nil, err
		}
		return wrapRegex(path)(collector.NewDirectory(v))

	case "glob":
		v, err := raw.str(path, "value")
		if err != nil {
			return nil, err
		}
		return wrapRegex(path)(collector.NewGlob(v))

	case "functionName":
		v, err := raw.str(path, "value", "regex")
		if err != nil {
			return nil, err
		}
		return wrapRegex(path)(collector.NewFunctionName(v))

	case "superglobal":
		names, err := raw.strings(path, "value")
		if err != nil {
			return nil, err
		}
		for i, n := range names {
			names[i] = strings.TrimPrefix(n, "$")
		}
		return &collector.Superglobal{Names: names}, nil

	case "implements", "extends", "uses":
		v, err := raw.str(path, "value", typ)
		if err != nil {
			return nil, err
		}
		transitive, err := raw.boolean(path, "transitive", true)
		if err != nil {
			return nil, err
		}
		kinds := map[string]model.SuperKind{
			"implements": model.Implements,
			"extends":    model.Extends,
			"uses":       model.UsesTrait,
		}
		return &collector.Inheritance{Target: normalizeFQN(v), Kind: kinds[typ], Transitive: transitive}, nil

	case "inherits":
		v, err := raw.str(path, "value", "inherits")
		if err != nil {
			return nil, err
		}
		return &collector.Inheritance{Target: normalizeFQN(v), Transitive: true}, nil

	case "layer":
		v, err := raw.str(path, "value", "layer")
		if err != nil {
			return nil, err
		}
		return &collector.Layer{Name: v}, nil

	case "and", "or":
		children, err := raw.collectors(path, "value", "collectors")
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			return nil, errorf(path, "%s collector needs at least one child", typ)
		}
		if typ == "and" {
			return &collector.And{Children: children}, nil
		}
		return &collector.Or{Children: children}, nil

	case "not":
		children, err := raw.collectors(path, "value")
		if err != nil {
			return nil, err
		}
		if len(children) != 1 {
			return nil, errorf(path, "not collector needs exactly one child")
		}
		return &collector.Not{Child: children[0]}, nil

	case "bool":
		return decodeBool(raw, path)

	default:
		return nil, errorf(path, "unknown collector type %q", typ)
	}
}

// decodeBool rewrites the legacy `bool` collector as
// and(must..., not(or(must_not...))).
func decodeBool(raw attrs, path string) (collector.Collector, error) {
	must, err := raw.collectors(path, "must")
	if err != nil {
		return nil, err
	}
	mustNot, err := raw.collectors(path, "must_not")
	if err != nil {
		return nil, err
	}
	if len(must) == 0 && len(mustNot) == 0 {
		return nil, errorf(path, "bool collector needs must or must_not")
	}
	children := must
	if len(mustNot) > 0 {
		children = append(children, &collector.Not{Child: &collector.Or{Children: mustNot}})
	}
	return &collector.And{Children: children}, nil
}

func wrapRegex(path string) func(collector.Collector, error) (collector.Collector, error) {
	return func(c collector.Collector, err error) (collector.Collector, error) {
		if err != nil {
			return nil, &Error{Path: path, Message: "invalid pattern", Cause: err}
		}
		return c, nil
	}
}

func normalizeFQN(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), `\`)
}

// lookup returns the first present key and its name.
func (a attrs) lookup(keys ...string) (any, string, bool) {
	for _, k := range keys {
		if v, ok := a[k]; ok {
			return v, k, true
		}
	}
	return nil, "", false
}

func (a attrs) str(path string, keys ...string) (string, error) {
	v, key, ok := a.lookup(keys...)
	if !ok {
		return "", errorf(path, "missing attribute %q", keys[0])
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", errorf(path, "attribute %q must be a non-empty string", key)
	}
	return s, nil
}

func (a attrs) strings(path string, keys ...string) ([]string, error) {
	v, key, ok := a.lookup(keys...)
	if !ok {
		return nil, errorf(path, "missing attribute %q", keys[0])
	}
	switch v := v.(type) {
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, errorf(path, "attribute %q must be a list of strings", key)
			}
			out = append(out, s)
		}
		if len(out) == 0 {
			return nil, errorf(path, "attribute %q must not be empty", key)
		}
		return out, nil
	default:
		return nil, errorf(path, "attribute %q must be a list of strings", key)
	}
}

func (a attrs) boolean(path, key string, def bool) (bool, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, errorf(path, "attribute %q must be a boolean", key)
	}
	return b, nil
}

// collectors decodes nested collectors from a list or a single mapping.
// A missing key yields no collectors.
func (a attrs) collectors(path string, keys ...string) ([]collector.Collector, error) {
	v, key, ok := a.lookup(keys...)
	if !ok || v == nil {
		return nil, nil
	}
	var items []any
	switch v := v.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	default:
		return nil, errorf(path, "attribute %q must be a list of collectors", key)
	}

	out := make([]collector.Collector, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, errorf(path, "attribute %q must be a list of collectors", key)
		}
		c, err := decodeCollector(attrs(m), fmt.Sprintf("%s.%s[%d]", path, key, i))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// sortedKeys returns the keys of m in order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
