package metricdb

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"k8s.io/klog/v2"
	_ "modernc.org/sqlite"
)

type DB struct {
	driver   string
	db       *sqlx.DB
	location *time.Location
}

// New opens a metrics database. For the sqlite driver a bare path is turned
// into a file URI; other drivers receive dsn unchanged. Dates stored as text
// are interpreted in location, or local time when location is nil.
func New(driver, dsn string, location *time.Location) (*DB, error) {
	switch driver {
	case "sqlite":
		if !strings.HasPrefix(dsn, "file:") {
			dsn = fmt.Sprintf("file:%s?_timeout=3000", url.PathEscape(dsn))
		}
	case "mysql":
	default:
		return nil, fmt.Errorf("unsupported database driver %q, must be mysql or sqlite", driver)
	}
	if location == nil {
		location = time.Local
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %v", err)
	}
	return &DB{
		driver:   driver,
		db:       db,
		location: location,
	}, nil
}

func (d *DB) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("unable to connect to %s database: %v", d.driver, err)
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Location() *time.Location {
	return d.location
}

func (d *DB) CreateSchema() error {
	if err := CreateSchema(d.db); err != nil {
		return fmt.Errorf("unable to create database schema: %v", err)
	}
	return nil
}

func (d *DB) NewBatchInserter(maxBatch int64) (*metricBatchInserter, error) {
	return NewBatchInserter(d.db, maxBatch)
}

// Series opens a cursor over the rows selected by SeriesQuery.
func (d *DB) Series(ctx context.Context, exprs []Expr, since time.Time) (*Cursor, error) {
	query, args, err := SeriesQuery(exprs, since)
	if err != nil {
		return nil, err
	}
	query = d.db.Rebind(query)
	klog.V(4).Infof("DEBUG: Query: %s\nArgs: %v", query, args)
	rows, err := d.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query series: %v", err)
	}
	return newCursor(rows, len(exprs), d.location), nil
}

// Summary describes the revisions available for charting.
type Summary struct {
	Revisions int64
	First     time.Time
	Last      time.Time
}

func (d *DB) Summary(ctx context.Context) (Summary, error) {
	var s Summary
	var count int64
	first := revisionDate{location: d.location}
	last := revisionDate{location: d.location}
	if err := RowsOf(d.db.QueryxContext(ctx, `
		SELECT count(*), min(revisions.date), max(revisions.date)
		FROM metrics, revisions
		WHERE metrics.revision = revisions.revision
	`)).Every([]interface{}{&count, &first, &last}, func() {
		s = Summary{Revisions: count, First: first.time, Last: last.time}
	}); err != nil {
		return Summary{}, fmt.Errorf("unable to summarize revisions: %v", err)
	}
	return s, nil
}

// Cursor yields the rows of a series query one at a time. It is not
// restartable.
type Cursor struct {
	rows   *sqlx.Rows
	date   revisionDate
	values []sql.NullFloat64
	dest   []interface{}
	read   int
	err    error
}

func newCursor(rows *sqlx.Rows, width int, location *time.Location) *Cursor {
	c := &Cursor{
		rows:   rows,
		date:   revisionDate{location: location},
		values: make([]sql.NullFloat64, width),
	}
	c.dest = make([]interface{}, 0, width+1)
	c.dest = append(c.dest, &c.date)
	for i := range c.values {
		c.dest = append(c.dest, &c.values[i])
	}
	return c
}

// Next scans the next row into row and reports whether one was read.
func (c *Cursor) Next(row *MetricRow) bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	if err := c.rows.Scan(c.dest...); err != nil {
		c.err = fmt.Errorf("unable to scan row %d: %v", c.read+1, err)
		return false
	}
	c.read++
	if !c.date.valid {
		c.err = fmt.Errorf("row %d has no revision date", c.read)
		return false
	}
	row.Date = c.date.time
	row.Values = make([]sql.NullFloat64, len(c.values))
	copy(row.Values, c.values)
	return true
}

func (c *Cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	if err := c.rows.Err(); err != nil {
		return fmt.Errorf("failed to return results for query: %v", err)
	}
	return nil
}

// Read is the number of rows returned so far.
func (c *Cursor) Read() int {
	return c.read
}

func (c *Cursor) Close() error {
	return c.rows.Close()
}
