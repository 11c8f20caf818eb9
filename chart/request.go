package chart

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/codemetrics/codegraph/metricdb"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/yaml"
)

const (
	DefaultWidth  = 520
	DefaultHeight = 250
)

// Flag changes how a series is drawn.
type Flag string

const (
	// FlagArea fills the region under the series instead of stroking a line.
	FlagArea Flag = "area"
	// FlagStack draws the series on top of the previous series instead of
	// from zero.
	FlagStack Flag = "stack"
)

var knownFlags = sets.New[Flag](FlagArea, FlagStack)

// Unit selects how vertical axis values are labelled.
type Unit string

const (
	UnitCount Unit = "count"
	UnitBytes Unit = "bytes"
)

type SeriesSpec struct {
	Label string        `json:"label"`
	Expr  metricdb.Expr `json:"column"`
	Flags []Flag        `json:"flags,omitempty"`
}

func (s SeriesSpec) Has(flag Flag) bool {
	for _, f := range s.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

type Request struct {
	Name   string       `json:"name"`
	Output string       `json:"output"`
	Title  string       `json:"title"`
	YLabel string       `json:"yLabel"`
	Unit   Unit         `json:"unit,omitempty"`
	Width  int          `json:"width,omitempty"`
	Height int          `json:"height,omitempty"`
	Series []SeriesSpec `json:"series"`
}

func (r *Request) Exprs() []metricdb.Expr {
	exprs := make([]metricdb.Expr, 0, len(r.Series))
	for _, s := range r.Series {
		exprs = append(exprs, s.Expr)
	}
	return exprs
}

// Complete fills in defaults for unset optional fields.
func (r *Request) Complete() {
	if r.Width == 0 {
		r.Width = DefaultWidth
	}
	if r.Height == 0 {
		r.Height = DefaultHeight
	}
	if len(r.Unit) == 0 {
		r.Unit = UnitCount
	}
	if len(r.Output) == 0 && len(r.Name) > 0 {
		r.Output = r.Name + ".png"
	}
}

func (r *Request) Validate() error {
	var errs []error
	if len(r.Name) == 0 || strings.ContainsAny(r.Name, `/\ `) {
		errs = append(errs, fmt.Errorf("name %q must be non-empty and contain no slashes or spaces", r.Name))
	}
	if len(r.Output) == 0 || path.IsAbs(r.Output) || strings.HasPrefix(path.Clean(r.Output), "..") {
		errs = append(errs, fmt.Errorf("output %q must be a relative path", r.Output))
	}
	if !strings.HasSuffix(r.Output, ".png") {
		errs = append(errs, fmt.Errorf("output %q must be a .png file", r.Output))
	}
	switch r.Unit {
	case UnitCount, UnitBytes:
	default:
		errs = append(errs, fmt.Errorf("unit %q must be %s or %s", r.Unit, UnitCount, UnitBytes))
	}
	if r.Width <= 0 || r.Height <= 0 {
		errs = append(errs, fmt.Errorf("dimensions %dx%d must be positive", r.Width, r.Height))
	}
	if len(r.Series) == 0 {
		errs = append(errs, fmt.Errorf("at least one series is required"))
	}
	for i, s := range r.Series {
		if err := s.Expr.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("series %d: %v", i, err))
		}
		for _, f := range s.Flags {
			if !knownFlags.Has(f) {
				errs = append(errs, fmt.Errorf("series %d: unknown flag %q", i, f))
			}
		}
	}
	if err := utilerrors.NewAggregate(errs); err != nil {
		return fmt.Errorf("chart %s: %v", r.Name, err)
	}
	return nil
}

// LoadRequests reads chart requests from a YAML or JSON file.
func LoadRequests(file string) ([]Request, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var requests []Request
	if err := yaml.UnmarshalStrict(data, &requests); err != nil {
		return nil, fmt.Errorf("unable to parse chart file %s: %v", file, err)
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("chart file %s defines no charts", file)
	}
	if err := CompleteAndValidate(requests); err != nil {
		return nil, err
	}
	return requests, nil
}

// CompleteAndValidate applies defaults and checks every request, including
// that names and outputs are unique.
func CompleteAndValidate(requests []Request) error {
	var errs []error
	names := sets.New[string]()
	outputs := sets.New[string]()
	for i := range requests {
		r := &requests[i]
		r.Complete()
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if names.Has(r.Name) {
			errs = append(errs, fmt.Errorf("chart %s is defined more than once", r.Name))
		}
		if outputs.Has(r.Output) {
			errs = append(errs, fmt.Errorf("chart %s writes %s which another chart also writes", r.Name, r.Output))
		}
		names.Insert(r.Name)
		outputs.Insert(r.Output)
	}
	return utilerrors.NewAggregate(errs)
}

func spec(label string, expr metricdb.Expr, flags ...Flag) SeriesSpec {
	return SeriesSpec{Label: label, Expr: expr, Flags: flags}
}

func col(c metricdb.Column) metricdb.Expr { return metricdb.Expr{Column: c} }

func per(c, per metricdb.Column) metricdb.Expr { return metricdb.Expr{Column: c, Per: per} }

// DefaultRequests returns the built-in charts.
func DefaultRequests() []Request {
	requests := []Request{
		{
			Name: "lines-of-code", Output: "test1.png", Title: "Lines of code", YLabel: "LOC", Unit: UnitCount,
			Series: []SeriesSpec{
				spec("Source lines", col(metricdb.LOCSource)),
				spec("Header lines", col(metricdb.LOCHeader)),
				spec("Other text files", col(metricdb.LOCOther)),
			},
		},
		{
			Name: "file-count", Output: "test2.png", Title: "Number of files", YLabel: "# Files", Unit: UnitCount,
			Series: []SeriesSpec{
				spec("Source files", col(metricdb.CountSource)),
				spec("Header files", col(metricdb.CountHeader)),
				spec("Other text files", col(metricdb.CountOther)),
				spec("Binary files", col(metricdb.CountBinary)),
			},
		},
		{
			Name: "file-size", Output: "test3.png", Title: "Total filesize", YLabel: "Size (bytes)", Unit: UnitBytes,
			Series: []SeriesSpec{
				spec("Source files", col(metricdb.SizeSource)),
				spec("Header files", col(metricdb.SizeHeader)),
				spec("Other text files", col(metricdb.SizeOther)),
				spec("Binary files", col(metricdb.SizeBinary)),
			},
		},
		{
			Name: "file-size-stacked", Output: "test4.png", Title: "Total filesize (additive)", YLabel: "Size (bytes)", Unit: UnitBytes,
			Series: []SeriesSpec{
				spec("Source files", col(metricdb.SizeSource), FlagArea),
				spec("Header files", col(metricdb.SizeHeader), FlagStack, FlagArea),
				spec("Other text files", col(metricdb.SizeOther), FlagStack, FlagArea),
				spec("Binary files", col(metricdb.SizeBinary), FlagStack, FlagArea),
			},
		},
		{
			Name: "average-file-size", Output: "test5.png", Title: "Average filesize", YLabel: "Size (bytes)", Unit: UnitBytes,
			Series: []SeriesSpec{
				spec("Source files", per(metricdb.SizeSource, metricdb.CountSource)),
				spec("Header files", per(metricdb.SizeHeader, metricdb.CountHeader)),
				spec("Other text files", per(metricdb.SizeOther, metricdb.CountOther)),
				spec("Binary files", per(metricdb.SizeBinary, metricdb.CountBinary)),
			},
		},
		{
			Name: "average-lines-per-file", Output: "test6.png", Title: "Average lines of code per file", YLabel: "LOC", Unit: UnitCount,
			Series: []SeriesSpec{
				spec("Source files", per(metricdb.LOCSource, metricdb.CountSource)),
				spec("Header files", per(metricdb.LOCHeader, metricdb.CountHeader)),
				spec("Other text files", per(metricdb.LOCOther, metricdb.CountOther)),
			},
		},
	}
	for i := range requests {
		requests[i].Complete()
	}
	return requests
}

// Select returns the requests with the given names, in the order given. No
// names selects every request.
func Select(requests []Request, names []string) ([]Request, error) {
	if len(names) == 0 {
		return requests, nil
	}
	byName := make(map[string]Request, len(requests))
	for _, r := range requests {
		byName[r.Name] = r
	}
	selected := make([]Request, 0, len(names))
	for _, name := range names {
		r, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("no chart named %q", name)
		}
		selected = append(selected, r)
	}
	return selected, nil
}
