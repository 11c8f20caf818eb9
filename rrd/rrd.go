// Package rrd implements a round-robin time-series store: a fixed-capacity
// circular buffer of samples keyed by an integer step index, one float64
// channel per data source. A channel without an observation at a step holds
// the Unknown marker.
package rrd

import (
	"errors"
	"fmt"
	"math"

	"k8s.io/apimachinery/pkg/util/sets"
)

// DefaultCapacity is the number of distinct steps a store retains unless
// configured otherwise.
const DefaultCapacity = 2200200

var (
	ErrNotAfterLast = errors.New("update step is not after the last update")
	ErrSourceCount  = errors.New("update value count does not match data sources")
)

// Unknown marks a channel with no observation at a step. It is a NaN and
// never compares equal to any value, itself included; test with IsUnknown.
var Unknown = math.NaN()

func IsUnknown(v float64) bool {
	return math.IsNaN(v)
}

type DataSource struct {
	Name string
}

type Options struct {
	// Start is the initial last-update boundary. The first update must be
	// strictly after it.
	Start int64
	// Capacity is the number of distinct steps retained before the oldest
	// is overwritten.
	Capacity int
	Sources  []DataSource
}

type Sample struct {
	Step   int64
	Values []float64
}

type Store struct {
	start   int64
	last    int64
	sources []DataSource
	ring    *ring
}

func New(opts Options) (*Store, error) {
	if len(opts.Sources) == 0 {
		return nil, fmt.Errorf("at least one data source is required")
	}
	if opts.Capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive, got %d", opts.Capacity)
	}
	names := sets.New[string]()
	for i, ds := range opts.Sources {
		if len(ds.Name) == 0 {
			return nil, fmt.Errorf("data source %d has no name", i)
		}
		if names.Has(ds.Name) {
			return nil, fmt.Errorf("duplicate data source %q", ds.Name)
		}
		names.Insert(ds.Name)
	}
	sources := make([]DataSource, len(opts.Sources))
	copy(sources, opts.Sources)
	return &Store{
		start:   opts.Start,
		last:    opts.Start,
		sources: sources,
		ring:    newRing(opts.Capacity, len(sources)),
	}, nil
}

// Update records one value per data source at step.
func (s *Store) Update(step int64, values ...float64) error {
	if len(values) != len(s.sources) {
		return fmt.Errorf("%w: got %d, expected %d", ErrSourceCount, len(values), len(s.sources))
	}
	if step <= s.last {
		return fmt.Errorf("%w: step %d, last update %d", ErrNotAfterLast, step, s.last)
	}
	s.ring.push(step, values)
	s.last = step
	return nil
}

func (s *Store) Start() int64 { return s.start }

// Last is the step of the most recent update, or Start before any update.
func (s *Store) Last() int64 { return s.last }

func (s *Store) Len() int { return s.ring.size }

func (s *Store) Capacity() int { return s.ring.capacity }

func (s *Store) Sources() []DataSource {
	sources := make([]DataSource, len(s.sources))
	copy(sources, s.sources)
	return sources
}

// SourceIndex returns the channel position of the named data source.
func (s *Store) SourceIndex(name string) (int, bool) {
	for i, ds := range s.sources {
		if ds.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Lookup returns a copy of the values stored at exactly step.
func (s *Store) Lookup(step int64) ([]float64, bool) {
	i := s.ring.search(step)
	if i >= s.ring.size {
		return nil, false
	}
	at, values := s.ring.at(i)
	if at != step {
		return nil, false
	}
	return append([]float64(nil), values...), true
}

// Fetch returns copies of the retained samples with from <= step <= to, in
// step order.
func (s *Store) Fetch(from, to int64) []Sample {
	if to < from {
		return nil
	}
	var samples []Sample
	for i := s.ring.search(from); i < s.ring.size; i++ {
		step, values := s.ring.at(i)
		if step > to {
			break
		}
		samples = append(samples, Sample{Step: step, Values: append([]float64(nil), values...)})
	}
	return samples
}

// Each calls fn for every retained sample in step order. The values passed to
// fn are only valid for the duration of the call.
func (s *Store) Each(fn func(step int64, values []float64) error) error {
	for i := 0; i < s.ring.size; i++ {
		step, values := s.ring.at(i)
		if err := fn(step, values); err != nil {
			return err
		}
	}
	return nil
}
