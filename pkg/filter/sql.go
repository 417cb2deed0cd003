package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the placeholder style of generated SQL
type Dialect int

const (
	// Question uses ? placeholders (SQLite)
	Question Dialect = iota
	// Dollar uses $1, $2, ... placeholders (PostgreSQL)
	Dollar
)

// SearchTable is the fact relation predicates are pushed down to
const SearchTable = "search"

// ToSQL lowers a predicate into a WHERE fragment restricting column, an
// entity id column of the outer query. Each fact test becomes a semi-join
// against the search table so no entity set is materialized in memory.
//
// argOffset is the number of arguments already bound by the outer query; it
// only matters for the Dollar dialect.
func ToSQL(p Predicate, column string, d Dialect, argOffset int) (string, []any, error) {
	b := &sqlBuilder{column: column, dialect: d, index: argOffset}
	if err := b.build(p); err != nil {
		return "", nil, err
	}
	return b.sb.String(), b.args, nil
}

type sqlBuilder struct {
	sb      strings.Builder
	args    []any
	column  string
	dialect Dialect
	index   int
}

func (b *sqlBuilder) placeholder(arg any) string {
	b.args = append(b.args, arg)
	b.index++
	if b.dialect == Dollar {
		return "$" + strconv.Itoa(b.index)
	}
	return "?"
}

func (b *sqlBuilder) build(p Predicate) error {
	switch node := p.(type) {
	case nil, MatchAll:
		b.sb.WriteString("1 = 1")
	case MatchNone:
		b.sb.WriteString("1 = 0")
	case HasFact:
		b.sb.WriteString(b.column)
		if node.Negated {
			b.sb.WriteString(" NOT IN ")
		} else {
			b.sb.WriteString(" IN ")
		}
		b.sb.WriteString("(SELECT entity_id FROM " + SearchTable + " WHERE key = ")
		b.sb.WriteString(b.placeholder(node.Key))
		if len(node.Values) > 0 {
			b.sb.WriteString(" AND value IN (")
			for i, v := range node.Values {
				if i > 0 {
					b.sb.WriteString(", ")
				}
				b.sb.WriteString(b.placeholder(v))
			}
			b.sb.WriteString(")")
		}
		b.sb.WriteString(")")
	case And:
		return b.join(node.Terms, " AND ", "1 = 1")
	case Or:
		return b.join(node.Terms, " OR ", "1 = 0")
	default:
		return fmt.Errorf("cannot lower predicate of type %T", p)
	}
	return nil
}

func (b *sqlBuilder) join(terms []Predicate, sep, empty string) error {
	if len(terms) == 0 {
		b.sb.WriteString(empty)
		return nil
	}
	b.sb.WriteString("(")
	for i, term := range terms {
		if i > 0 {
			b.sb.WriteString(sep)
		}
		b.sb.WriteString("(")
		if err := b.build(term); err != nil {
			return err
		}
		b.sb.WriteString(")")
	}
	b.sb.WriteString(")")
	return nil
}
