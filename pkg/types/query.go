package types

import (
	"slices"
	"time"
)

// Operator is a comparison applied by a Condition.
type Operator string

// Supported operators. Backends translate them to their own syntax.
const (
	OpEq      Operator = "="
	OpNe      Operator = "!="
	OpLt      Operator = "<"
	OpLte     Operator = "<="
	OpGt      Operator = ">"
	OpGte     Operator = ">="
	OpLike    Operator = "LIKE"
	OpIn      Operator = "IN"
	OpIsNull  Operator = "IS NULL"
	OpNotNull Operator = "IS NOT NULL"
)

var knownOperators = map[Operator]bool{
	OpEq: true, OpNe: true, OpLt: true, OpLte: true, OpGt: true, OpGte: true,
	OpLike: true, OpIn: true, OpIsNull: true, OpNotNull: true,
}

// Condition constrains one column. Value is ignored for OpIsNull and
// OpNotNull and holds a []any for OpIn.
type Condition struct {
	Column string
	Op     Operator
	Value  any
}

// Order sorts results by one column.
type Order struct {
	Column string
	Desc   bool
}

// Query is a composable filter over the metadata records. Conditions are
// ANDed. The zero value and a nil *Query both match every record.
type Query struct {
	conditions []Condition
	orders     []Order
	limit      int
}

// NewQuery returns an empty query.
func NewQuery() *Query {
	return &Query{}
}

// Where appends a condition and returns q for chaining.
func (q *Query) Where(column string, op Operator, value any) *Query {
	q.conditions = append(q.conditions, Condition{Column: column, Op: op, Value: value})
	return q
}

// WhereEq appends an equality condition.
func (q *Query) WhereEq(column string, value any) *Query {
	return q.Where(column, OpEq, value)
}

// WhereIn appends a membership condition. An empty values list matches
// nothing.
func (q *Query) WhereIn(column string, values ...any) *Query {
	return q.Where(column, OpIn, slices.Clone(values))
}

// WhereNull appends an IS NULL condition.
func (q *Query) WhereNull(column string) *Query {
	return q.Where(column, OpIsNull, nil)
}

// WhereNotNull appends an IS NOT NULL condition.
func (q *Query) WhereNotNull(column string) *Query {
	return q.Where(column, OpNotNull, nil)
}

// WhereLike appends a pattern match using % and _ wildcards. Case
// sensitivity follows the backend; SQLite folds ASCII case.
func (q *Query) WhereLike(column, pattern string) *Query {
	return q.Where(column, OpLike, pattern)
}

// OrderBy appends a sort column. Backends break remaining ties by id.
func (q *Query) OrderBy(column string, desc bool) *Query {
	q.orders = append(q.orders, Order{Column: column, Desc: desc})
	return q
}

// Limit caps the number of returned records. Zero or negative means no cap.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Apply runs each refinement against q in order and returns q.
func (q *Query) Apply(refinements ...Refinement) *Query {
	for _, r := range refinements {
		if r != nil {
			r.Refine(q)
		}
	}
	return q
}

// Conditions returns a copy of the conditions.
func (q *Query) Conditions() []Condition {
	if q == nil {
		return nil
	}
	return slices.Clone(q.conditions)
}

// Orders returns a copy of the sort columns.
func (q *Query) Orders() []Order {
	if q == nil {
		return nil
	}
	return slices.Clone(q.orders)
}

// MaxRows returns the limit, zero when unset.
func (q *Query) MaxRows() int {
	if q == nil || q.limit < 0 {
		return 0
	}
	return q.limit
}

// Clone returns an independent copy of q.
func (q *Query) Clone() *Query {
	if q == nil {
		return NewQuery()
	}
	return &Query{
		conditions: slices.Clone(q.conditions),
		orders:     slices.Clone(q.orders),
		limit:      q.limit,
	}
}

// Validate checks every column against Columns and every operator against
// the supported set. It returns ErrInvalidFilter on the first violation.
func (q *Query) Validate() error {
	if q == nil {
		return nil
	}
	for _, c := range q.conditions {
		if !slices.Contains(Columns, c.Column) || !knownOperators[c.Op] {
			return ErrInvalidFilter
		}
		if c.Op == OpIn {
			if _, ok := c.Value.([]any); !ok {
				return ErrInvalidFilter
			}
		}
	}
	for _, o := range q.orders {
		if !slices.Contains(Columns, o.Column) {
			return ErrInvalidFilter
		}
	}
	return nil
}

// Refinement narrows a metadata lookup. The accessor applies refinements
// to its scoped query without inspecting them.
type Refinement interface {
	Refine(q *Query)
}

// RefinementFunc adapts a function to the Refinement interface.
type RefinementFunc func(q *Query)

// Refine implements Refinement.
func (f RefinementFunc) Refine(q *Query) {
	if f != nil {
		f(q)
	}
}

// Refinements composes refinements into one, applied in order. Nil entries
// are skipped.
func Refinements(rs ...Refinement) Refinement {
	return RefinementFunc(func(q *Query) {
		q.Apply(rs...)
	})
}

// Eq returns a refinement that adds column = value.
func Eq(column string, value any) Refinement {
	return RefinementFunc(func(q *Query) {
		q.WhereEq(column, value)
	})
}

// UpdatedSince returns a refinement matching records whose updated_at is at
// or after t.
func UpdatedSince(t time.Time) Refinement {
	return RefinementFunc(func(q *Query) {
		q.Where(ColumnUpdatedAt, OpGte, FormatTime(t))
	})
}
