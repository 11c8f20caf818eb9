package metricdb

import (
	"database/sql"
	"fmt"
	"time"
)

// DateLayout is the text form of revisions.date.
const DateLayout = "2006-01-02 15:04:05"

// MetricRow is one row of a series query: the revision date followed by one
// nullable value per requested expression, in request order.
type MetricRow struct {
	Date   time.Time
	Values []sql.NullFloat64
}

// revisionDate scans a revisions.date column. Drivers return DATETIME
// columns as time.Time, []byte or string depending on their settings.
type revisionDate struct {
	location *time.Location
	time     time.Time
	valid    bool
}

func (d *revisionDate) Scan(src interface{}) error {
	switch t := src.(type) {
	case nil:
		d.time, d.valid = time.Time{}, false
		return nil
	case time.Time:
		// drivers decode DATETIME as UTC; the stored wall clock is in d.location
		d.time = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), d.zone())
		d.valid = true
		return nil
	case []byte:
		return d.parse(string(t))
	case string:
		return d.parse(t)
	default:
		return fmt.Errorf("unsupported revision date type %T", src)
	}
}

func (d *revisionDate) zone() *time.Location {
	if d.location == nil {
		return time.Local
	}
	return d.location
}

func (d *revisionDate) parse(s string) error {
	t, err := time.ParseInLocation(DateLayout, s, d.zone())
	if err != nil {
		return fmt.Errorf("malformed revision date %q: %v", s, err)
	}
	d.time, d.valid = t, true
	return nil
}

// RevisionMetrics is the import form of one revision and its measurements.
type RevisionMetrics struct {
	Revision int64              `json:"revision"`
	Date     string             `json:"date"`
	Metrics  map[Column]float64 `json:"metrics"`
}
