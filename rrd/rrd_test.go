package rrd

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"k8s.io/utils/diff"
)

func sources(names ...string) []DataSource {
	var ds []DataSource
	for _, name := range names {
		ds = append(ds, DataSource{Name: name})
	}
	return ds
}

func mustNew(t *testing.T, start int64, capacity int, names ...string) *Store {
	t.Helper()
	s, err := New(Options{Start: start, Capacity: capacity, Sources: sources(names...)})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// equalSamples compares samples treating unknown values as equal to each other.
func equalSamples(a, b []Sample) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Step != b[i].Step || len(a[i].Values) != len(b[i].Values) {
			return false
		}
		for j := range a[i].Values {
			x, y := a[i].Values[j], b[i].Values[j]
			if IsUnknown(x) != IsUnknown(y) || (!IsUnknown(x) && x != y) {
				return false
			}
		}
	}
	return true
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "no sources", opts: Options{Capacity: 1}},
		{name: "zero capacity", opts: Options{Sources: sources("a")}},
		{name: "empty name", opts: Options{Capacity: 1, Sources: sources("")}},
		{name: "duplicate", opts: Options{Capacity: 1, Sources: sources("a", "a")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestStore_Update(t *testing.T) {
	s := mustNew(t, 99, 10, "source0", "source1")
	if s.Last() != 99 || s.Start() != 99 || s.Len() != 0 {
		t.Fatalf("unexpected initial state start=%d last=%d len=%d", s.Start(), s.Last(), s.Len())
	}

	// the first step right after the start boundary is a real update
	if err := s.Update(100, 1, Unknown); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(100, 2, 2); !errors.Is(err, ErrNotAfterLast) {
		t.Fatalf("expected ErrNotAfterLast, got %v", err)
	}
	if err := s.Update(90, 2, 2); !errors.Is(err, ErrNotAfterLast) {
		t.Fatalf("expected ErrNotAfterLast, got %v", err)
	}
	if err := s.Update(101, 2); !errors.Is(err, ErrSourceCount) {
		t.Fatalf("expected ErrSourceCount, got %v", err)
	}
	if err := s.Update(200, 3, 4); err != nil {
		t.Fatal(err)
	}

	expected := []Sample{
		{Step: 100, Values: []float64{1, Unknown}},
		{Step: 200, Values: []float64{3, 4}},
	}
	if got := s.Fetch(0, 1000); !equalSamples(expected, got) {
		t.Fatalf("\n%s", diff.ObjectReflectDiff(expected, got))
	}
	if got := s.Fetch(101, 200); !equalSamples(expected[1:], got) {
		t.Fatalf("unexpected fetch %#v", got)
	}
	if got := s.Fetch(300, 200); got != nil {
		t.Fatalf("unexpected fetch %#v", got)
	}

	values, ok := s.Lookup(100)
	if !ok || values[0] != 1 || !IsUnknown(values[1]) {
		t.Fatalf("unexpected lookup %v %t", values, ok)
	}
	if _, ok := s.Lookup(150); ok {
		t.Fatal("unexpected lookup hit")
	}
	if i, ok := s.SourceIndex("source1"); !ok || i != 1 {
		t.Fatalf("unexpected source index %d %t", i, ok)
	}
}

func TestStore_Wraps(t *testing.T) {
	s := mustNew(t, 0, 3, "a")
	for step := int64(1); step <= 5; step++ {
		if err := s.Update(step*10, float64(step)); err != nil {
			t.Fatal(err)
		}
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 retained samples, got %d", s.Len())
	}
	expected := []Sample{
		{Step: 30, Values: []float64{3}},
		{Step: 40, Values: []float64{4}},
		{Step: 50, Values: []float64{5}},
	}
	if got := s.Fetch(math.MinInt64, math.MaxInt64); !reflect.DeepEqual(expected, got) {
		t.Fatalf("\n%s", diff.ObjectReflectDiff(expected, got))
	}
	if _, ok := s.Lookup(20); ok {
		t.Fatal("overwritten sample still visible")
	}
}

func TestStore_LargeCapacityAcrossPages(t *testing.T) {
	s := mustNew(t, 0, DefaultCapacity, "a", "b")
	n := pageSize*2 + 7
	for i := 1; i <= n; i++ {
		if err := s.Update(int64(i), float64(i), float64(-i)); err != nil {
			t.Fatal(err)
		}
	}
	allocated := 0
	for _, p := range s.ring.pages {
		if p != nil {
			allocated++
		}
	}
	if allocated != 3 {
		t.Fatalf("expected 3 allocated pages, got %d", allocated)
	}
	values, ok := s.Lookup(int64(pageSize + 1))
	if !ok || values[0] != float64(pageSize+1) || values[1] != -float64(pageSize+1) {
		t.Fatalf("unexpected lookup %v %t", values, ok)
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	s := mustNew(t, 1577836799, 4, "source0", "source1", "source2")
	updates := []Sample{
		{Step: 1577836800, Values: []float64{10, Unknown, 0.1}},
		{Step: 1577923200, Values: []float64{30, 12345678901234, -0}},
		{Step: 1578009600, Values: []float64{Unknown, Unknown, Unknown}},
		{Step: 1578096000, Values: []float64{1e-300, 2, 3}},
		{Step: 1578182400, Values: []float64{5, 6, 7}},
	}
	for _, u := range updates {
		if err := s.Update(u.Step, u.Values...); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(t.TempDir(), "chart.rrz")
	if err := WriteFile(path, s); err != nil {
		t.Fatal(err)
	}
	loaded, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Start() != s.Start() || loaded.Last() != s.Last() || loaded.Capacity() != 4 || loaded.Len() != 4 {
		t.Fatalf("unexpected header start=%d last=%d cap=%d len=%d", loaded.Start(), loaded.Last(), loaded.Capacity(), loaded.Len())
	}
	if !reflect.DeepEqual(s.Sources(), loaded.Sources()) {
		t.Fatalf("\n%s", diff.ObjectReflectDiff(s.Sources(), loaded.Sources()))
	}
	expected := s.Fetch(math.MinInt64, math.MaxInt64)
	got := loaded.Fetch(math.MinInt64, math.MaxInt64)
	if !equalSamples(expected, got) {
		t.Fatalf("\n%s", diff.ObjectReflectDiff(expected, got))
	}
	if err := loaded.Update(s.Last(), 1, 2, 3); !errors.Is(err, ErrNotAfterLast) {
		t.Fatalf("loaded store accepted a stale update: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the snapshot file, got %d entries", len(entries))
	}
}

func TestReadFile_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.rrz")
	if err := os.WriteFile(path, []byte("not zstd at all"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(path); err == nil {
		t.Fatal("expected error")
	}
}
