package metricdb

import (
	"fmt"
	"strings"
	"time"
)

// SeriesQuery builds the select of the revision date plus one value per
// expression, joined on the revision key and ordered by date. A non-zero
// since bounds the revision date from below as a bound parameter.
func SeriesQuery(exprs []Expr, since time.Time) (string, []interface{}, error) {
	if len(exprs) == 0 {
		return "", nil, fmt.Errorf("at least one metric expression is required")
	}
	selects := make([]string, 0, len(exprs)+1)
	selects = append(selects, "revisions.date")
	for _, e := range exprs {
		if err := e.Validate(); err != nil {
			return "", nil, err
		}
		selects = append(selects, e.sql())
	}

	var args []interface{}
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(selects, ", "))
	b.WriteString(" FROM metrics, revisions WHERE metrics.revision = revisions.revision")
	if !since.IsZero() {
		b.WriteString(" AND revisions.date >= ?")
		args = append(args, since.Format(DateLayout))
	}
	b.WriteString(" ORDER BY revisions.date, revisions.revision")
	return b.String(), args, nil
}
