package chart

import (
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/codemetrics/codegraph/rrd"
)

// band fills the region between the base and top of a trace, one polygon per
// run of known values.
type band struct {
	trace Trace
	line  draw.LineStyle
}

func newBand(t Trace) *band {
	return &band{trace: t, line: lineStyle(t.Directive.Color)}
}

func (b *band) runs() [][2]int {
	var runs [][2]int
	start := -1
	for i := range b.trace.Steps {
		if rrd.IsUnknown(b.trace.Top[i]) {
			if start >= 0 {
				runs = append(runs, [2]int{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		runs = append(runs, [2]int{start, len(b.trace.Steps)})
	}
	return runs
}

func (b *band) Plot(c draw.Canvas, plt *plot.Plot) {
	trX, trY := plt.Transforms(&c)
	t := b.trace
	for _, run := range b.runs() {
		pts := make([]vg.Point, 0, 2*(run[1]-run[0]))
		top := make([]vg.Point, 0, run[1]-run[0])
		for i := run[0]; i < run[1]; i++ {
			p := vg.Point{X: trX(float64(t.Steps[i])), Y: trY(t.Top[i])}
			pts = append(pts, p)
			top = append(top, p)
		}
		for i := run[1] - 1; i >= run[0]; i-- {
			pts = append(pts, vg.Point{X: trX(float64(t.Steps[i])), Y: trY(t.Base[i])})
		}
		c.FillPolygon(t.Directive.Color, c.ClipPolygonXY(pts))
		c.StrokeLines(b.line, c.ClipLinesXY(top)...)
	}
}

func (b *band) DataRange() (xmin, xmax, ymin, ymax float64) {
	xmin, ymin = math.Inf(1), math.Inf(1)
	xmax, ymax = math.Inf(-1), math.Inf(-1)
	t := b.trace
	for i, step := range t.Steps {
		if rrd.IsUnknown(t.Top[i]) {
			continue
		}
		x := float64(step)
		xmin, xmax = math.Min(xmin, x), math.Max(xmax, x)
		ymin = math.Min(ymin, math.Min(t.Base[i], t.Top[i]))
		ymax = math.Max(ymax, math.Max(t.Base[i], t.Top[i]))
	}
	return xmin, xmax, ymin, ymax
}

func (b *band) Thumbnail(c *draw.Canvas) {
	pts := []vg.Point{
		{X: c.Min.X, Y: c.Min.Y},
		{X: c.Min.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Min.Y},
	}
	c.FillPolygon(b.trace.Directive.Color, c.ClipPolygonY(pts))
}
