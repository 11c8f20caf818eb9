// Package series turns revision-dated metric rows into updates of a
// fixed-step round-robin store.
//
// A Builder starts uninitialized. The first row creates the store with a
// start boundary one second before the row's date and moves the builder to
// streaming. Every row whose step (seconds since the epoch) differs from the
// previously written step becomes one update; a row repeating the previous
// step is dropped, so the first row per timestamp wins. NULL source values
// are written as rrd.Unknown. Close ends the stream; no further rows are
// accepted.
package series

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codemetrics/codegraph/metricdb"
	"github.com/codemetrics/codegraph/rrd"
)

var (
	ErrNoRows = errors.New("no rows to chart")
	ErrClosed = errors.New("builder is closed")
)

type state int

const (
	uninitialized state = iota
	streaming
	closed
)

func (s state) String() string {
	switch s {
	case uninitialized:
		return "uninitialized"
	case streaming:
		return "streaming"
	case closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RowSource yields metric rows one at a time.
type RowSource interface {
	Next(row *metricdb.MetricRow) bool
	Err() error
}

type Stats struct {
	Rows       int
	Updates    int
	Duplicates int
}

type Builder struct {
	sources  []rrd.DataSource
	capacity int

	state  state
	store  *rrd.Store
	start  time.Time
	prev   int64
	values []float64
	stats  Stats
}

func NewBuilder(sources []rrd.DataSource, capacity int) *Builder {
	if capacity <= 0 {
		capacity = rrd.DefaultCapacity
	}
	return &Builder{
		sources:  sources,
		capacity: capacity,
		values:   make([]float64, len(sources)),
	}
}

// Add feeds one row.
func (b *Builder) Add(row metricdb.MetricRow) error {
	switch b.state {
	case closed:
		return ErrClosed
	case uninitialized:
		if len(row.Values) != len(b.sources) {
			return fmt.Errorf("row has %d values, expected %d", len(row.Values), len(b.sources))
		}
		step := row.Date.Unix()
		store, err := rrd.New(rrd.Options{
			Start:    step - 1,
			Capacity: b.capacity,
			Sources:  b.sources,
		})
		if err != nil {
			return fmt.Errorf("unable to create store: %v", err)
		}
		b.store = store
		b.start = row.Date
		b.prev = step - 1
		b.state = streaming
	}

	b.stats.Rows++
	if len(row.Values) != len(b.sources) {
		return fmt.Errorf("row %d has %d values, expected %d", b.stats.Rows, len(row.Values), len(b.sources))
	}
	step := row.Date.Unix()
	if step == b.prev {
		b.stats.Duplicates++
		return nil
	}
	for i, v := range row.Values {
		if v.Valid {
			b.values[i] = v.Float64
		} else {
			b.values[i] = rrd.Unknown
		}
	}
	if err := b.store.Update(step, b.values...); err != nil {
		return fmt.Errorf("row %d at %s: %w", b.stats.Rows, row.Date.Format(metricdb.DateLayout), err)
	}
	b.prev = step
	b.stats.Updates++
	return nil
}

// Drain feeds every row of src and closes the builder.
func (b *Builder) Drain(ctx context.Context, src RowSource) (*rrd.Store, error) {
	var row metricdb.MetricRow
	for src.Next(&row) {
		if err := ctx.Err(); err != nil {
			b.state = closed
			return nil, err
		}
		if err := b.Add(row); err != nil {
			b.state = closed
			return nil, err
		}
	}
	if err := src.Err(); err != nil {
		b.state = closed
		return nil, err
	}
	return b.Close()
}

// Close ends the stream and returns the populated store.
func (b *Builder) Close() (*rrd.Store, error) {
	wasEmpty := b.state == uninitialized
	b.state = closed
	if wasEmpty || b.store == nil {
		return nil, ErrNoRows
	}
	return b.store, nil
}

// Start is the date of the first accepted row, the left edge of the chart.
func (b *Builder) Start() time.Time {
	return b.start
}

func (b *Builder) Stats() Stats {
	return b.stats
}
