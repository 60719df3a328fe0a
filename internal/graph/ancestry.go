package graph

import (
	"strings"

	"github.com/phobologic/layerguard/internal/model"
)

// Ancestry returns the ancestry edges reachable from fqn, breadth first.
// Each class-like is expanded at most once, so cycles terminate. Targets
// absent from the map appear as edges but are not expanded.
func (m *SymbolMap) Ancestry(fqn string) []model.SuperReference {
	var out []model.SuperReference
	m.walk(fqn, func(_ string, sr model.SuperReference) bool {
		out = append(out, sr)
		return false
	})
	return out
}

// Inherits reports whether target is an ancestor of fqn reached through an
// edge of the given kind (any kind when kind is empty). With transitive set,
// the path leading to that edge may use edges of any kind; otherwise only the
// direct supers of fqn are considered. Names compare case-insensitively, as
// PHP class names do.
func (m *SymbolMap) Inherits(fqn, target string, kind model.SuperKind, transitive bool) bool {
	match := func(sr model.SuperReference) bool {
		return strings.EqualFold(sr.Target, target) && (kind == "" || sr.Kind == kind)
	}
	if !transitive {
		c, ok := m.lookup(fqn)
		if !ok {
			return false
		}
		for _, sr := range c.Supers {
			if match(sr) {
				return true
			}
		}
		return false
	}
	return m.walk(fqn, func(_ string, sr model.SuperReference) bool {
		return match(sr)
	})
}

// walk visits ancestry edges breadth first until visit returns true.
func (m *SymbolMap) walk(fqn string, visit func(from string, sr model.SuperReference) bool) bool {
	visited := map[string]struct{}{strings.ToLower(fqn): {}}
	queue := []string{fqn}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		c, ok := m.lookup(cur)
		if !ok {
			continue
		}
		for _, sr := range c.Supers {
			if visit(cur, sr) {
				return true
			}
			key := strings.ToLower(sr.Target)
			if _, seen := visited[key]; seen {
				continue
			}
			visited[key] = struct{}{}
			queue = append(queue, sr.Target)
		}
	}
	return false
}

// lookup finds a class-like by exact FQN, falling back to a case-insensitive
// match.
func (m *SymbolMap) lookup(fqn string) (*model.ClassLikeReference, bool) {
	if c, ok := m.classLikes[fqn]; ok {
		return c, true
	}
	c, ok := m.classLikes[m.folded[strings.ToLower(fqn)]]
	return c, ok
}
