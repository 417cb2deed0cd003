package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/liliang-cn/sqcatalog/pkg/core"
)

// Predicate is the compiled, store-agnostic form of a Filter. Values are
// never mutated after Compile returns them.
type Predicate interface {
	predicateNode()
}

// MatchAll matches every entity
type MatchAll struct{}

// MatchNone matches no entity
type MatchNone struct{}

// HasFact holds when an entity has a fact with Key and, if Values is
// non-empty, a value in Values. Negated flips the outcome. Key and Values are
// lower-cased and Values is sorted and unique.
type HasFact struct {
	Key     string
	Values  []string
	Negated bool
}

// And holds when every term holds
type And struct {
	Terms []Predicate
}

// Or holds when at least one term holds
type Or struct {
	Terms []Predicate
}

func (MatchAll) predicateNode()  {}
func (MatchNone) predicateNode() {}
func (HasFact) predicateNode()   {}
func (And) predicateNode()       {}
func (Or) predicateNode()        {}

// Compile validates f and lowers it into a Predicate. A nil filter matches
// every entity. Empty AllOf matches everything, empty AnyOf nothing.
func Compile(f Filter) (Predicate, error) {
	if f == nil {
		return MatchAll{}, nil
	}
	return compile(f, "filter")
}

func compile(f Filter, path string) (Predicate, error) {
	switch node := f.(type) {
	case Leaf:
		return compileLeaf(node, path)
	case *Leaf:
		if node == nil {
			return nil, fmt.Errorf("%w: %s is a nil leaf", core.ErrInvalidFilter, path)
		}
		return compileLeaf(*node, path)
	case AllOf:
		terms, err := compileTerms(node, path+".allOf")
		if err != nil {
			return nil, err
		}
		if len(terms) == 0 {
			return MatchAll{}, nil
		}
		if len(terms) == 1 {
			return terms[0], nil
		}
		return And{Terms: terms}, nil
	case AnyOf:
		terms, err := compileTerms(node, path+".anyOf")
		if err != nil {
			return nil, err
		}
		if len(terms) == 0 {
			return MatchNone{}, nil
		}
		if len(terms) == 1 {
			return terms[0], nil
		}
		return Or{Terms: terms}, nil
	case nil:
		return nil, fmt.Errorf("%w: %s is nil", core.ErrInvalidFilter, path)
	default:
		return nil, fmt.Errorf("%w: %s has unsupported type %T", core.ErrInvalidFilter, path, f)
	}
}

func compileTerms(children []Filter, path string) ([]Predicate, error) {
	terms := make([]Predicate, 0, len(children))
	for i, child := range children {
		term, err := compile(child, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	return terms, nil
}

func compileLeaf(l Leaf, path string) (Predicate, error) {
	key := core.NormalizeFactKey(l.Key)
	if key == "" {
		return nil, fmt.Errorf("%w: %s has an empty key", core.ErrInvalidFilter, path)
	}

	var values []string
	if len(l.MatchValueIn) > 0 {
		set := make(map[string]struct{}, len(l.MatchValueIn))
		for _, v := range l.MatchValueIn {
			set[strings.ToLower(v)] = struct{}{}
		}
		values = make([]string, 0, len(set))
		for v := range set {
			values = append(values, v)
		}
		sort.Strings(values)
	}

	return HasFact{Key: key, Values: values, Negated: l.negated()}, nil
}
