package series

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/codemetrics/codegraph/metricdb"
	"github.com/codemetrics/codegraph/rrd"
)

type sliceSource struct {
	rows []metricdb.MetricRow
	err  error
}

func (s *sliceSource) Next(row *metricdb.MetricRow) bool {
	if len(s.rows) == 0 {
		return false
	}
	*row = s.rows[0]
	s.rows = s.rows[1:]
	return true
}

func (s *sliceSource) Err() error { return s.err }

func date(s string) time.Time {
	t, err := time.ParseInLocation(metricdb.DateLayout, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func row(when string, values ...interface{}) metricdb.MetricRow {
	r := metricdb.MetricRow{Date: date(when)}
	for _, v := range values {
		switch t := v.(type) {
		case nil:
			r.Values = append(r.Values, sql.NullFloat64{})
		case int:
			r.Values = append(r.Values, sql.NullFloat64{Float64: float64(t), Valid: true})
		case float64:
			r.Values = append(r.Values, sql.NullFloat64{Float64: t, Valid: true})
		default:
			panic(fmt.Sprintf("unsupported value %T", v))
		}
	}
	return r
}

func channels(n int) []rrd.DataSource {
	var ds []rrd.DataSource
	for i := 0; i < n; i++ {
		ds = append(ds, rrd.DataSource{Name: fmt.Sprintf("source%d", i)})
	}
	return ds
}

func drain(t *testing.T, width int, rows ...metricdb.MetricRow) (*rrd.Store, *Builder) {
	t.Helper()
	b := NewBuilder(channels(width), 100)
	store, err := b.Drain(context.Background(), &sliceSource{rows: rows})
	if err != nil {
		t.Fatal(err)
	}
	return store, b
}

func all(s *rrd.Store) []rrd.Sample {
	return s.Fetch(math.MinInt64, math.MaxInt64)
}

func TestBuilder_DropsDuplicateTimestamps(t *testing.T) {
	store, b := drain(t, 1,
		row("2020-01-01 00:00:00", 10),
		row("2020-01-01 00:00:00", 20),
		row("2020-01-02 00:00:00", 30),
	)
	samples := all(store)
	if len(samples) != 2 {
		t.Fatalf("expected 2 updates, got %#v", samples)
	}
	if samples[0].Step != date("2020-01-01 00:00:00").Unix() || samples[0].Values[0] != 10 {
		t.Fatalf("unexpected first sample %#v", samples[0])
	}
	if samples[1].Step != date("2020-01-02 00:00:00").Unix() || samples[1].Values[0] != 30 {
		t.Fatalf("unexpected second sample %#v", samples[1])
	}
	if stats := b.Stats(); stats != (Stats{Rows: 3, Updates: 2, Duplicates: 1}) {
		t.Fatalf("unexpected stats %#v", stats)
	}
}

func TestBuilder_OneUpdatePerIncreasingRow(t *testing.T) {
	var rows []metricdb.MetricRow
	base := date("2019-06-01 12:00:00")
	for i := 0; i < 50; i++ {
		r := metricdb.MetricRow{Date: base.Add(time.Duration(i*i+1) * time.Second)}
		r.Values = []sql.NullFloat64{{Float64: float64(i), Valid: true}, {Float64: float64(i * 2), Valid: true}}
		rows = append(rows, r)
	}
	store, b := drain(t, 2, rows...)
	samples := all(store)
	if len(samples) != len(rows) {
		t.Fatalf("expected %d updates, got %d", len(rows), len(samples))
	}
	for i, s := range samples {
		if s.Step != rows[i].Date.Unix() || s.Values[0] != float64(i) || s.Values[1] != float64(i*2) {
			t.Fatalf("sample %d out of order or altered: %#v", i, s)
		}
	}
	if b.Stats().Duplicates != 0 {
		t.Fatalf("unexpected duplicates %#v", b.Stats())
	}
}

func TestBuilder_NullIsUnknown(t *testing.T) {
	store, _ := drain(t, 2,
		row("2020-01-01 00:00:00", 5, 7),
		row("2020-01-01 00:00:01", nil, 8),
		row("2020-01-01 00:00:02", 0, nil),
	)
	samples := all(store)
	if !rrd.IsUnknown(samples[1].Values[0]) {
		t.Fatalf("NULL must be unknown, not %v", samples[1].Values[0])
	}
	if samples[2].Values[0] != 0 || rrd.IsUnknown(samples[2].Values[0]) {
		t.Fatalf("zero must stay zero, got %v", samples[2].Values[0])
	}
	if !rrd.IsUnknown(samples[2].Values[1]) {
		t.Fatalf("NULL must not forward fill, got %v", samples[2].Values[1])
	}
}

func TestBuilder_StartBoundary(t *testing.T) {
	store, b := drain(t, 1, row("2020-03-04 05:06:07", 1))
	first := date("2020-03-04 05:06:07")
	if store.Start() != first.Unix()-1 {
		t.Fatalf("expected start %d, got %d", first.Unix()-1, store.Start())
	}
	if store.Len() != 1 || store.Last() != first.Unix() {
		t.Fatalf("first update aliased to the start boundary: len=%d last=%d", store.Len(), store.Last())
	}
	if !b.Start().Equal(first) {
		t.Fatalf("unexpected chart start %s", b.Start())
	}
}

func TestBuilder_States(t *testing.T) {
	b := NewBuilder(channels(1), 10)
	if b.state != uninitialized {
		t.Fatalf("unexpected state %s", b.state)
	}
	if err := b.Add(row("2020-01-01 00:00:00", 1)); err != nil {
		t.Fatal(err)
	}
	if b.state != streaming {
		t.Fatalf("unexpected state %s", b.state)
	}
	if _, err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.Add(row("2020-01-02 00:00:00", 1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	if _, err := NewBuilder(channels(1), 10).Close(); !errors.Is(err, ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestBuilder_Errors(t *testing.T) {
	b := NewBuilder(channels(2), 10)
	if err := b.Add(row("2020-01-01 00:00:00", 1)); err == nil {
		t.Fatal("expected value count error")
	}

	b = NewBuilder(channels(1), 10)
	_, err := b.Drain(context.Background(), &sliceSource{rows: []metricdb.MetricRow{
		row("2020-01-02 00:00:00", 1),
		row("2020-01-01 00:00:00", 2),
	}})
	if !errors.Is(err, rrd.ErrNotAfterLast) {
		t.Fatalf("expected out of order error, got %v", err)
	}

	sourceErr := errors.New("connection reset")
	_, err = NewBuilder(channels(1), 10).Drain(context.Background(), &sliceSource{err: sourceErr})
	if !errors.Is(err, sourceErr) {
		t.Fatalf("expected source error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewBuilder(channels(1), 10).Drain(ctx, &sliceSource{rows: []metricdb.MetricRow{row("2020-01-01 00:00:00", 1)}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
