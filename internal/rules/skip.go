package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ParsePattern compiles a delimited regular expression such as `#Test$#i`
// or `/^App\\/`. ok is false when s is not delimited.
func ParsePattern(s string) (re *regexp.Regexp, ok bool, err error) {
	if len(s) < 2 || (s[0] != '#' && s[0] != '/') {
		return nil, false, nil
	}
	delim := s[0]
	end := strings.LastIndexByte(s, delim)
	if end == 0 {
		return nil, false, nil
	}
	body, flags := s[1:end], s[end+1:]
	prefix := ""
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's', 'U':
			prefix += string(f)
		case 'u', 'x', 'D':
		default:
			return nil, true, fmt.Errorf("invalid regex flag %q in %s", f, s)
		}
	}
	if prefix != "" {
		body = "(?" + prefix + ")" + body
	}
	re, err = regexp.Compile(body)
	if err != nil {
		return nil, true, fmt.Errorf("invalid regex %s: %w", s, err)
	}
	return re, true, nil
}

// matcher matches a token name exactly or by regular expression.
type matcher struct {
	raw string
	re  *regexp.Regexp
}

func newMatcher(s string) (matcher, error) {
	re, ok, err := ParsePattern(s)
	if err != nil {
		return matcher{}, err
	}
	if ok {
		return matcher{raw: s, re: re}, nil
	}
	return matcher{raw: strings.TrimPrefix(s, `\`)}, nil
}

func (m matcher) match(name string) bool {
	if m.re != nil {
		return m.re.MatchString(name)
	}
	return m.raw == name
}

type skipEntry struct {
	depender matcher
	dependee matcher
}

// SkipRules suppresses known violations. Each rule pairs a depender with a
// dependee; either side may be a delimited regular expression.
type SkipRules struct {
	entries []skipEntry
}

// NewSkipRules compiles the skip_violations table. Rules are ordered by
// depender, then by the order of their dependees.
func NewSkipRules(raw map[string][]string) (*SkipRules, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s := &SkipRules{}
	for _, k := range keys {
		depender, err := newMatcher(k)
		if err != nil {
			return nil, err
		}
		for _, v := range raw[k] {
			dependee, err := newMatcher(v)
			if err != nil {
				return nil, err
			}
			s.entries = append(s.entries, skipEntry{depender: depender, dependee: dependee})
		}
	}
	return s, nil
}

// Match returns the index of the first rule matching the pair.
func (s *SkipRules) Match(depender, dependee string) (int, bool) {
	if s == nil {
		return 0, false
	}
	for i, e := range s.entries {
		if e.depender.match(depender) && e.dependee.match(dependee) {
			return i, true
		}
	}
	return 0, false
}

// Len returns the number of rules.
func (s *SkipRules) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Describe renders rule i as `depender -> dependee`.
func (s *SkipRules) Describe(i int) string {
	e := s.entries[i]
	return e.depender.raw + " -> " + e.dependee.raw
}
