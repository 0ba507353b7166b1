// Package scope derives the row-visibility rules for a caller. Every function here is
// pure: it turns a caller identity and request filters into a Predicate that the
// repositories render into SQL. The same Predicate value is rendered for a listing's
// page query and its count query so the two can never disagree.
package scope

import (
	"fmt"
	"strings"
)

// Op is a comparison operator.
type Op string

const (
	OpEq        Op = "="
	OpNotEq     Op = "<>"
	OpGTE       Op = ">="
	OpLTE       Op = "<="
	OpLT        Op = "<"
	OpILike     Op = "ILIKE"
	OpAny       Op = "= ANY"
	OpBeforeNow Op = "< NOW()" // takes no value
)

// Condition compares one or more columns against a value. Multiple columns are OR-ed
// together against the same value.
type Condition struct {
	Columns []string
	Op      Op
	Value   any
}

// Predicate is an AND-ed list of conditions. The zero value matches everything.
type Predicate struct {
	conds []Condition
}

// Where returns a copy of p with an extra condition.
func (p Predicate) Where(column string, op Op, value any) Predicate {
	return p.with(Condition{Columns: []string{column}, Op: op, Value: value})
}

// WhereAny returns a copy of p with an extra condition matching if any column matches.
func (p Predicate) WhereAny(columns []string, op Op, value any) Predicate {
	return p.with(Condition{Columns: columns, Op: op, Value: value})
}

func (p Predicate) with(c Condition) Predicate {
	conds := make([]Condition, len(p.conds), len(p.conds)+1)
	copy(conds, p.conds)
	return Predicate{conds: append(conds, c)}
}

// Conditions returns the conditions in order.
func (p Predicate) Conditions() []Condition {
	return p.conds
}

// Has reports whether p has a single-column condition on column with op.
func (p Predicate) Has(column string, op Op) bool {
	_, ok := p.find(column, op)
	return ok
}

// Value returns the value of the first single-column condition on column with op,
// or nil.
func (p Predicate) Value(column string, op Op) any {
	c, _ := p.find(column, op)
	return c.Value
}

func (p Predicate) find(column string, op Op) (Condition, bool) {
	for _, c := range p.conds {
		if c.Op == op && len(c.Columns) == 1 && c.Columns[0] == column {
			return c, true
		}
	}
	return Condition{}, false
}

// SQL renders the predicate as a WHERE body with positional parameters starting at
// $startArg. An empty predicate renders as "TRUE".
func (p Predicate) SQL(startArg int) (string, []any) {
	if len(p.conds) == 0 {
		return "TRUE", nil
	}

	parts := make([]string, 0, len(p.conds))
	args := make([]any, 0, len(p.conds))
	n := startArg

	for _, c := range p.conds {
		if c.Op == OpBeforeNow {
			parts = append(parts, fmt.Sprintf("%s < NOW()", c.Columns[0]))
			continue
		}

		placeholder := fmt.Sprintf("$%d", n)
		args = append(args, c.Value)
		n++

		exprs := make([]string, len(c.Columns))
		for i, col := range c.Columns {
			if c.Op == OpAny {
				exprs[i] = fmt.Sprintf("%s = ANY(%s)", col, placeholder)
			} else {
				exprs[i] = fmt.Sprintf("%s %s %s", col, c.Op, placeholder)
			}
		}
		if len(exprs) == 1 {
			parts = append(parts, exprs[0])
		} else {
			parts = append(parts, "("+strings.Join(exprs, " OR ")+")")
		}
	}

	return strings.Join(parts, " AND "), args
}

// ContainsPattern wraps s for a case-insensitive substring match, escaping LIKE
// metacharacters.
func ContainsPattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
