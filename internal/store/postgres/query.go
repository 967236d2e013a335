package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/buzzpool/internal/domain"
)

// listQuery appends positional filters to a base SELECT.
type listQuery struct {
	sb       strings.Builder
	args     []any
	hasWhere bool
}

func newListQuery(base string, args ...any) *listQuery {
	q := &listQuery{args: args}
	q.sb.WriteString(base)
	q.hasWhere = strings.Contains(strings.ToUpper(base), " WHERE ")
	return q
}

func (q *listQuery) where(cond string, arg any) {
	q.args = append(q.args, arg)
	if q.hasWhere {
		q.sb.WriteString(" AND ")
	} else {
		q.sb.WriteString(" WHERE ")
		q.hasWhere = true
	}
	q.sb.WriteString(fmt.Sprintf(cond, len(q.args)))
}

// page adds ORDER BY plus the limit and offset from opts.
func (q *listQuery) page(orderBy string, opts domain.ListOpts) {
	q.sb.WriteString(" ORDER BY " + orderBy)
	if opts.Limit > 0 {
		q.args = append(q.args, opts.Limit)
		q.sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(q.args)))
	}
	if opts.Offset > 0 {
		q.args = append(q.args, opts.Offset)
		q.sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(q.args)))
	}
}

func (q *listQuery) String() string { return q.sb.String() }
