package rrd

import "sort"

const pageSize = 4096

type page struct {
	steps  [pageSize]int64
	values []float64
}

// ring is a fixed-capacity circular buffer of samples. Pages are allocated on
// first write so a large capacity only costs what is actually stored.
type ring struct {
	capacity int
	width    int
	head     int
	size     int
	pages    []*page
}

func newRing(capacity, width int) *ring {
	return &ring{
		capacity: capacity,
		width:    width,
		pages:    make([]*page, (capacity+pageSize-1)/pageSize),
	}
}

func (r *ring) slot(physical int) (*page, int) {
	p := r.pages[physical/pageSize]
	if p == nil {
		p = &page{values: make([]float64, pageSize*r.width)}
		r.pages[physical/pageSize] = p
	}
	return p, physical % pageSize
}

// push appends a sample, overwriting the oldest one when full.
func (r *ring) push(step int64, values []float64) {
	var physical int
	if r.size < r.capacity {
		physical = (r.head + r.size) % r.capacity
		r.size++
	} else {
		physical = r.head
		r.head = (r.head + 1) % r.capacity
	}
	p, i := r.slot(physical)
	p.steps[i] = step
	copy(p.values[i*r.width:(i+1)*r.width], values)
}

// at returns the i-th oldest sample. The returned values alias the ring.
func (r *ring) at(i int) (int64, []float64) {
	p, j := r.slot((r.head + i) % r.capacity)
	return p.steps[j], p.values[j*r.width : (j+1)*r.width]
}

// search returns the index of the first sample with a step >= step.
func (r *ring) search(step int64) int {
	return sort.Search(r.size, func(i int) bool {
		s, _ := r.at(i)
		return s >= step
	})
}
