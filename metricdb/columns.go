package metricdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Column is a numeric column of the metrics relation.
type Column string

const (
	LOCSource Column = "loc_source"
	LOCHeader Column = "loc_header"
	LOCOther  Column = "loc_other"

	CountSource Column = "count_source"
	CountHeader Column = "count_header"
	CountOther  Column = "count_other"
	CountBinary Column = "count_binary"

	SizeSource Column = "size_source"
	SizeHeader Column = "size_header"
	SizeOther  Column = "size_other"
	SizeBinary Column = "size_binary"
)

var ErrUnknownColumn = errors.New("unknown metric column")

var knownColumns = sets.New[Column](
	LOCSource, LOCHeader, LOCOther,
	CountSource, CountHeader, CountOther, CountBinary,
	SizeSource, SizeHeader, SizeOther, SizeBinary,
)

// Columns returns every known metric column in schema order.
func Columns() []Column {
	return []Column{
		LOCSource, LOCHeader, LOCOther,
		CountSource, CountHeader, CountOther, CountBinary,
		SizeSource, SizeHeader, SizeOther, SizeBinary,
	}
}

func ParseColumn(s string) (Column, error) {
	c := Column(strings.TrimSpace(s))
	if !knownColumns.Has(c) {
		names := make([]string, 0, knownColumns.Len())
		for _, k := range knownColumns.UnsortedList() {
			names = append(names, string(k))
		}
		sort.Strings(names)
		return "", fmt.Errorf("%w %q, must be one of %s", ErrUnknownColumn, s, strings.Join(names, ", "))
	}
	return c, nil
}

// Expr selects a metric column, or the ratio of two columns when Per is set.
type Expr struct {
	Column Column
	Per    Column
}

// ParseExpr accepts "column" or "column / column".
func ParseExpr(s string) (Expr, error) {
	parts := strings.Split(s, "/")
	switch len(parts) {
	case 1:
		c, err := ParseColumn(parts[0])
		if err != nil {
			return Expr{}, err
		}
		return Expr{Column: c}, nil
	case 2:
		c, err := ParseColumn(parts[0])
		if err != nil {
			return Expr{}, err
		}
		per, err := ParseColumn(parts[1])
		if err != nil {
			return Expr{}, err
		}
		return Expr{Column: c, Per: per}, nil
	default:
		return Expr{}, fmt.Errorf("invalid metric expression %q, expected 'column' or 'column / column'", s)
	}
}

func (e Expr) String() string {
	if len(e.Per) == 0 {
		return string(e.Column)
	}
	return fmt.Sprintf("%s / %s", e.Column, e.Per)
}

func (e Expr) Validate() error {
	if !knownColumns.Has(e.Column) {
		return fmt.Errorf("%w %q", ErrUnknownColumn, e.Column)
	}
	if len(e.Per) > 0 && !knownColumns.Has(e.Per) {
		return fmt.Errorf("%w %q", ErrUnknownColumn, e.Per)
	}
	return nil
}

// sql renders the select expression. Only validated columns reach the query
// text; the division is floating point and a zero divisor yields NULL.
func (e Expr) sql() string {
	if len(e.Per) == 0 {
		return "metrics." + string(e.Column)
	}
	return fmt.Sprintf("metrics.%s * 1.0 / NULLIF(metrics.%s, 0)", e.Column, e.Per)
}

func (e Expr) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func (e *Expr) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseExpr(s)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
