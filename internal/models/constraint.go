package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/vvka-141/pgdbapi/internal/schema"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// Condition restricts one column to, or away from, a set of values.
type Condition struct {
	negate bool
	values []any
}

// EqualAny matches rows whose column equals one of values.
func EqualAny(values ...any) Condition {
	return Condition{values: values}
}

// NotEqual matches rows whose column differs from every one of values.
func NotEqual(values ...any) Condition {
	return Condition{negate: true, values: values}
}

// Values returns the compared values.
func (c Condition) Values() []any { return c.values }

// Negated reports whether c is a NotEqual condition.
func (c Condition) Negated() bool { return c.negate }

// render builds the predicate for column. A nil value compares with IS NULL,
// since IN and NOT IN never match NULL.
func (c Condition) render(column string, b *builder) string {
	var placeholders []string
	hasNull := false
	for _, v := range c.values {
		if v == nil {
			hasNull = true
			continue
		}
		placeholders = append(placeholders, b.arg(v))
	}

	var parts []string
	if len(placeholders) > 0 {
		op := "IN"
		if c.negate {
			op = "NOT IN"
		}
		parts = append(parts, fmt.Sprintf("%s %s (%s)", column, op, strings.Join(placeholders, ", ")))
	}
	if hasNull {
		if c.negate {
			parts = append(parts, column+" IS NOT NULL")
		} else {
			parts = append(parts, column+" IS NULL")
		}
	}

	switch {
	case len(parts) == 0 && c.negate:
		return "TRUE"
	case len(parts) == 0:
		return "FALSE"
	case len(parts) == 1:
		return parts[0]
	case c.negate:
		return "(" + strings.Join(parts, " AND ") + ")"
	default:
		return "(" + strings.Join(parts, " OR ") + ")"
	}
}

// Constraint is a conjunction of per-column conditions that must hold for a
// destructive update to proceed.
type Constraint struct {
	conditions map[string]Condition
}

// NewConstraint builds a Constraint from column conditions.
func NewConstraint(conditions map[string]Condition) *Constraint {
	c := &Constraint{conditions: make(map[string]Condition, len(conditions))}
	for k, v := range conditions {
		c.conditions[k] = v
	}
	return c
}

// Columns returns the constrained column names, sorted.
func (c *Constraint) Columns() []string {
	cols := make([]string, 0, len(c.conditions))
	for col := range c.conditions {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// Condition returns the condition on column.
func (c *Constraint) Condition(column string) (Condition, bool) {
	cond, ok := c.conditions[column]
	return cond, ok
}

// apply appends the constraint predicates to b after checking every column
// exists in table.
func (c *Constraint) apply(snap *schema.Snapshot, table string, b *builder) error {
	if c == nil {
		return nil
	}
	for _, col := range c.Columns() {
		if !snap.HasColumn(table, col) {
			return fmt.Errorf("%w: constraint on unknown column %s.%s", dbapi.ErrInvalidArgument, table, col)
		}
		b.where(c.conditions[col].render(pgx.Identifier{col}.Sanitize(), b))
	}
	return nil
}
