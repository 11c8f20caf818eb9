package chart

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"time"

	units "github.com/docker/go-units"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/codemetrics/codegraph/rrd"
)

// dpi converts requested pixel sizes into vg lengths.
const dpi = 96

type RenderOptions struct {
	Title  string
	YLabel string
	Unit   Unit
	Width  int
	Height int
	// Start is the left edge of the chart; earlier samples are not drawn.
	Start time.Time
	// LowerLimit is the bottom of the vertical axis.
	LowerLimit float64
	// Location is the zone used for date labels, local time if nil.
	Location *time.Location
}

func (r *Request) RenderOptions(start time.Time, location *time.Location) RenderOptions {
	return RenderOptions{
		Title:    r.Title,
		YLabel:   r.YLabel,
		Unit:     r.Unit,
		Width:    r.Width,
		Height:   r.Height,
		Start:    start,
		Location: location,
	}
}

// Render draws directives over the samples of store as a PNG image. Width and
// Height size the data area; the image grows by the room the title, axes and
// labels take.
func Render(w io.Writer, store *rrd.Store, opts RenderOptions, directives []Directive) error {
	p, err := newPlot(store, opts, directives)
	if err != nil {
		return err
	}
	width, height := imageSize(p, opts.Width, opts.Height)
	c := vgimg.NewWith(vgimg.UseWH(width, height), vgimg.UseDPI(dpi))
	p.Draw(draw.New(c))
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(w); err != nil {
		return fmt.Errorf("unable to encode chart: %v", err)
	}
	return nil
}

func newPlot(store *rrd.Store, opts RenderOptions, directives []Directive) (*plot.Plot, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("image dimensions %dx%d must be positive", opts.Width, opts.Height)
	}
	traces, err := Values(store, opts.Start, directives)
	if err != nil {
		return nil, err
	}
	location := opts.Location
	if location == nil {
		location = time.Local
	}

	p := plot.New()
	p.Title.Text = opts.Title
	p.Y.Label.Text = opts.YLabel
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02", Time: plot.UnixTimeIn(location)}
	p.Y.Tick.Marker = unitTicks{unit: opts.Unit}
	p.Legend.Top = true
	p.Legend.Left = true
	p.Add(plotter.NewGrid())

	for _, t := range traces {
		switch t.Directive.Kind {
		case Area:
			b := newBand(t)
			p.Add(b)
			p.Legend.Add(t.Directive.Label, b)
		default:
			lines, err := lineSegments(t)
			if err != nil {
				return nil, fmt.Errorf("series %q: %v", t.Directive.Label, err)
			}
			for _, l := range lines {
				p.Add(l)
			}
			thumb := &plotter.Line{LineStyle: lineStyle(t.Directive.Color)}
			p.Legend.Add(t.Directive.Label, thumb)
		}
	}

	p.X.Min = float64(opts.Start.Unix())
	p.X.Max = float64(store.Last())
	if p.X.Max <= p.X.Min {
		p.X.Max = p.X.Min + 1
	}
	p.Y.Min = opts.LowerLimit
	if math.IsInf(p.Y.Max, 0) || p.Y.Max <= p.Y.Min {
		p.Y.Max = p.Y.Min + 1
	}

	return p, nil
}

func pixels(px int) vg.Length {
	return vg.Length(px) * vg.Inch / dpi
}

// imageSize returns the canvas size that leaves a data area of width by
// height pixels once p has laid out its title and axes. The margins do not
// depend on the canvas size, so one trial layout is enough.
func imageSize(p *plot.Plot, width, height int) (vg.Length, vg.Length) {
	w, h := pixels(width), pixels(height)
	trial := vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(dpi))
	area := p.DataCanvas(draw.New(trial)).Size()
	return w + (w - area.X), h + (h - area.Y)
}

func lineStyle(c color.Color) draw.LineStyle {
	return draw.LineStyle{Color: c, Width: vg.Points(1)}
}

// lineSegments splits a trace at unknown values into connected lines.
func lineSegments(t Trace) ([]*plotter.Line, error) {
	var lines []*plotter.Line
	var xys plotter.XYs
	flush := func() error {
		if len(xys) == 0 {
			return nil
		}
		l, err := plotter.NewLine(xys)
		if err != nil {
			return err
		}
		l.LineStyle = lineStyle(t.Directive.Color)
		lines = append(lines, l)
		xys = nil
		return nil
	}
	for i, step := range t.Steps {
		if rrd.IsUnknown(t.Top[i]) {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		xys = append(xys, plotter.XY{X: float64(step), Y: t.Top[i]})
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return lines, nil
}

type unitTicks struct {
	unit Unit
}

var countAbbrs = []string{"", "k", "M", "G", "T", "P"}

func (t unitTicks) Ticks(min, max float64) []plot.Tick {
	ticks := plot.DefaultTicks{}.Ticks(min, max)
	for i := range ticks {
		if len(ticks[i].Label) == 0 {
			continue
		}
		ticks[i].Label = t.unit.Format(ticks[i].Value)
	}
	return ticks
}

// Format renders v for an axis label: binary prefixes for bytes, decimal
// prefixes for counts.
func (u Unit) Format(v float64) string {
	if v < 0 {
		return "-" + u.Format(-v)
	}
	switch u {
	case UnitBytes:
		return units.BytesSize(v)
	default:
		return units.CustomSize("%.4g%s", v, 1000.0, countAbbrs)
	}
}
