// Package filter compiles entity filter trees into store predicates.
//
// A Filter is what callers build: leaves matching facts by key and value,
// combined with AllOf and AnyOf. Compile validates the tree and lowers it into
// a Predicate, an immutable representation that knows nothing about any
// particular store. Predicates are then lowered again, either to a SQL WHERE
// fragment (ToSQL) or evaluated directly against facts held in memory (Eval).
//
// Key and value comparisons are case-insensitive.
//
//	f := filter.AllOf{
//		filter.Match("kind", "component"),
//		filter.Match("spec.owner", "team-a", "team-b"),
//	}
//	pred, err := filter.Compile(f)
//	if err != nil {
//		return err
//	}
//	where, args, err := filter.ToSQL(pred, "fe.entity_id", filter.Question, 0)
package filter

// Filter is one node of a filter tree. The set of implementations is closed:
// Leaf, AllOf and AnyOf.
type Filter interface {
	filterNode()
}

// Leaf matches entities by their facts.
//
// With MatchValueExists unset or true, an entity matches when it has a fact
// with Key and, if MatchValueIn is non-empty, a value in MatchValueIn. With
// MatchValueExists false the leaf is negated: an entity matches when it has
// no such fact.
type Leaf struct {
	Key              string   `json:"key"`
	MatchValueIn     []string `json:"matchValueIn,omitempty"`
	MatchValueExists *bool    `json:"matchValueExists,omitempty"`
}

// AllOf matches entities matching every sub-filter
type AllOf []Filter

// AnyOf matches entities matching at least one sub-filter
type AnyOf []Filter

func (Leaf) filterNode()  {}
func (AllOf) filterNode() {}
func (AnyOf) filterNode() {}

// Match builds a leaf requiring a fact with key and, if given, one of values.
func Match(key string, values ...string) Leaf {
	return Leaf{Key: key, MatchValueIn: values}
}

// NotMatch builds the negation of Match(key, values...).
func NotMatch(key string, values ...string) Leaf {
	exists := false
	return Leaf{Key: key, MatchValueIn: values, MatchValueExists: &exists}
}

func (l Leaf) negated() bool {
	return l.MatchValueExists != nil && !*l.MatchValueExists
}
