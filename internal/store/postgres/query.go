package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/nftstore/internal/domain"
)

// listQuery appends time-window filters, newest-first ordering and paging to
// a SELECT whose WHERE clause already holds len(args) placeholders.
type listQuery struct {
	sb   strings.Builder
	args []any
}

func newListQuery(base string, args ...any) *listQuery {
	q := &listQuery{args: args}
	q.sb.WriteString(base)
	return q
}

func (q *listQuery) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *listQuery) where(cond string, v any) {
	fmt.Fprintf(&q.sb, " AND "+cond, q.arg(v))
}

func (q *listQuery) apply(opts domain.ListOpts) (string, []any) {
	if opts.Since != nil {
		q.where("created_at >= %s", *opts.Since)
	}
	if opts.Until != nil {
		q.where("created_at <= %s", *opts.Until)
	}
	q.sb.WriteString(" ORDER BY created_at DESC")
	if opts.Limit > 0 {
		q.sb.WriteString(" LIMIT " + q.arg(opts.Limit))
	}
	if opts.Offset > 0 {
		q.sb.WriteString(" OFFSET " + q.arg(opts.Offset))
	}
	return q.sb.String(), q.args
}
