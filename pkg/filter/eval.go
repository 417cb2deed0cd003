package filter

import (
	"strings"

	"github.com/liliang-cn/sqcatalog/pkg/core"
)

// FactSet indexes the facts of one entity by lower-cased key
type FactSet map[string]map[string]struct{}

// NewFactSet builds a FactSet from facts, normalizing keys and lower-casing
// values
func NewFactSet(facts []core.Fact) FactSet {
	set := make(FactSet, len(facts))
	for _, f := range facts {
		key := core.NormalizeFactKey(f.Key)
		values, ok := set[key]
		if !ok {
			values = make(map[string]struct{})
			set[key] = values
		}
		values[strings.ToLower(f.Value)] = struct{}{}
	}
	return set
}

// Eval reports whether an entity with the given facts satisfies p.
// Unknown predicate types never match.
func Eval(p Predicate, facts FactSet) bool {
	switch node := p.(type) {
	case nil, MatchAll:
		return true
	case MatchNone:
		return false
	case HasFact:
		return facts.has(node.Key, node.Values) != node.Negated
	case And:
		for _, term := range node.Terms {
			if !Eval(term, facts) {
				return false
			}
		}
		return true
	case Or:
		for _, term := range node.Terms {
			if Eval(term, facts) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (s FactSet) has(key string, values []string) bool {
	present, ok := s[key]
	if !ok {
		return false
	}
	if len(values) == 0 {
		return len(present) > 0
	}
	for _, v := range values {
		if _, ok := present[v]; ok {
			return true
		}
	}
	return false
}
