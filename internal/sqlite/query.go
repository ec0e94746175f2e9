package sqlite

import (
	"fmt"
	"strings"
	"time"

	"github.com/mesh-intelligence/entitymeta/pkg/types"
)

const selectColumns = `id, "key", value, entity_id, entity_type, created_at, updated_at`

// buildWhere renders the conditions of q as a WHERE clause with positional
// arguments. The clause is empty when q has no conditions.
func buildWhere(q *types.Query) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var parts []string
	var args []any
	for _, c := range q.Conditions() {
		col := quoteColumn(c.Column)
		switch c.Op {
		case types.OpIsNull, types.OpNotNull:
			parts = append(parts, fmt.Sprintf("%s %s", col, c.Op))
		case types.OpIn:
			values := c.Value.([]any)
			if len(values) == 0 {
				parts = append(parts, "0 = 1")
				continue
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
			parts = append(parts, fmt.Sprintf("%s IN (%s)", col, placeholders))
			for _, v := range values {
				args = append(args, bindValue(v))
			}
		default:
			if c.Value == nil {
				return "", nil, types.ErrInvalidFilter
			}
			parts = append(parts, fmt.Sprintf("%s %s ?", col, c.Op))
			args = append(args, bindValue(c.Value))
		}
	}

	if len(parts) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

// buildOrder renders ORDER BY and LIMIT. Results always end ordered by id so
// that "first" is deterministic.
func buildOrder(q *types.Query) string {
	var parts []string
	for _, o := range q.Orders() {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, quoteColumn(o.Column)+" "+dir)
	}
	parts = append(parts, "id ASC")

	clause := " ORDER BY " + strings.Join(parts, ", ")
	if n := q.MaxRows(); n > 0 {
		clause += fmt.Sprintf(" LIMIT %d", n)
	}
	return clause
}

func quoteColumn(col string) string {
	return `"` + col + `"`
}

// bindValue converts condition values to what the text columns hold.
func bindValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return types.FormatTime(x)
	}
	return v
}
