package chart

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"time"

	"github.com/codemetrics/codegraph/rrd"
)

// DefaultPalette is cycled through in series order.
var DefaultPalette = Palette{
	{R: 0x00, G: 0x99, B: 0x33, A: 0xff},
	{R: 0x00, G: 0x33, B: 0x99, A: 0xff},
	{R: 0x99, G: 0x33, B: 0x00, A: 0xff},
	{R: 0xbb, G: 0xbb, B: 0x00, A: 0xff},
}

type Palette []color.RGBA

// Color returns the colour for series i, wrapping around the palette.
func (p Palette) Color(i int) color.RGBA {
	if len(p) == 0 {
		return color.RGBA{A: 0xff}
	}
	return p[i%len(p)]
}

// ParseColor parses #rrggbb.
func ParseColor(s string) (color.RGBA, error) {
	if len(s) != 7 || !strings.HasPrefix(s, "#") {
		return color.RGBA{}, fmt.Errorf("color %q must be of the form #rrggbb", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("color %q must be of the form #rrggbb", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

func ColorString(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

type Kind int

const (
	Line Kind = iota
	Area
)

func (k Kind) String() string {
	switch k {
	case Line:
		return "line"
	case Area:
		return "area"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Directive draws one data source of a store.
type Directive struct {
	// Source is the channel index in the store.
	Source int
	Label  string
	Kind   Kind
	Stack  bool
	Color  color.RGBA
}

// SourceName is the data source name used for series i.
func SourceName(i int) string {
	return "source" + strconv.Itoa(i)
}

// Sources returns one data source per series.
func Sources(series []SeriesSpec) []rrd.DataSource {
	sources := make([]rrd.DataSource, len(series))
	for i := range series {
		sources[i].Name = SourceName(i)
	}
	return sources
}

// Directives maps series to drawing directives, one per series, colouring
// series i with the palette entry at i.
func Directives(series []SeriesSpec, palette Palette) []Directive {
	directives := make([]Directive, 0, len(series))
	for i, s := range series {
		d := Directive{
			Source: i,
			Label:  s.Label,
			Kind:   Line,
			Stack:  s.Has(FlagStack),
			Color:  palette.Color(i),
		}
		if s.Has(FlagArea) {
			d.Kind = Area
		}
		directives = append(directives, d)
	}
	return directives
}

// Trace is the plotted geometry of one directive. Top holds the drawn value
// per step and Base the value it is drawn from; both are rrd.Unknown where
// the source has no observation.
type Trace struct {
	Directive Directive
	Steps     []int64
	Base      []float64
	Top       []float64
}

// Values evaluates directives against the samples of store from start to the
// last update, without drawing them.
//
// Directives are painted in order onto a running total per step. A directive
// without the stack flag resets the total to zero before it is painted; a
// stacked one is drawn from the total left by the directives before it. An
// unknown value leaves a gap and adds nothing to the total.
func Values(store *rrd.Store, start time.Time, directives []Directive) ([]Trace, error) {
	width := len(store.Sources())
	for _, d := range directives {
		if d.Source < 0 || d.Source >= width {
			return nil, fmt.Errorf("directive %q refers to data source %d, store has %d", d.Label, d.Source, width)
		}
	}
	samples := store.Fetch(start.Unix(), store.Last())
	steps := make([]int64, len(samples))
	for i, s := range samples {
		steps[i] = s.Step
	}

	traces := make([]Trace, 0, len(directives))
	paint := make([]float64, len(samples))
	for _, d := range directives {
		t := Trace{
			Directive: d,
			Steps:     steps,
			Base:      make([]float64, len(samples)),
			Top:       make([]float64, len(samples)),
		}
		for i, s := range samples {
			if !d.Stack {
				paint[i] = 0
			}
			v := s.Values[d.Source]
			if rrd.IsUnknown(v) {
				t.Base[i], t.Top[i] = rrd.Unknown, rrd.Unknown
				continue
			}
			t.Base[i] = paint[i]
			paint[i] += v
			t.Top[i] = paint[i]
		}
		traces = append(traces, t)
	}
	return traces, nil
}
