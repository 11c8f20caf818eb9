package httpchart

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"k8s.io/klog/v2"

	"github.com/codemetrics/codegraph/chart"
	"github.com/codemetrics/codegraph/pkg/httpwriter"
	"github.com/codemetrics/codegraph/rrd"
)

type APIChartResponse struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`

	Title  string `json:"title,omitempty"`
	YLabel string `json:"yLabel,omitempty"`
	Unit   string `json:"unit,omitempty"`
	// Start is the left edge of the chart in seconds since the epoch.
	Start int64 `json:"start,omitempty"`
	// Data holds the sample steps under the empty label and the plotted
	// value of every series under its label.
	Data   map[string]APIChartSeriesNullable `json:"data,omitempty"`
	Series []APIChartSeriesDefinition        `json:"series,omitempty"`
}

type APIChartSeriesDefinition struct {
	Label  string `json:"label"`
	Kind   string `json:"kind,omitempty"`
	Stack  bool   `json:"stack,omitempty"`
	Fill   string `json:"fill,omitempty"`
	Stroke string `json:"stroke,omitempty"`
}

type APIChartSeriesNullable interface {
	MarshalJSON() ([]byte, error)
}

type APIChartSteps []int64

func (s APIChartSteps) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, len(s)*11+2)
	buf = append(buf, '[')
	for i, v := range s {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendInt(buf, v, 10)
	}
	buf = append(buf, ']')
	return buf, nil
}

// APIChartValues encodes unknown values as null.
type APIChartValues []float64

func (s APIChartValues) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, len(s)*16+2)
	buf = append(buf, '[')
	for i, v := range s {
		if i > 0 {
			buf = append(buf, ',')
		}
		if rrd.IsUnknown(v) {
			buf = append(buf, []byte(`null`)...)
			continue
		}
		buf = strconv.AppendFloat(buf, v, 'g', -1, 64)
	}
	buf = append(buf, ']')
	return buf, nil
}

func (s *Server) HandleAPIChart(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	var success bool
	start := time.Now()
	defer func() {
		klog.Infof("Render API chart %s duration=%s success=%t", name, time.Since(start).Truncate(time.Millisecond), success)
	}()

	status := http.StatusOK
	result, err := s.apiChart(req, name)
	if err != nil {
		status = statusFor(err)
		reason := "InternalError"
		if _, ok := s.request(name); !ok {
			status, reason = http.StatusNotFound, "NotFound"
		} else if status == http.StatusNotFound {
			reason = "NoData"
		}
		result = &APIChartResponse{Reason: reason, Message: err.Error()}
	} else {
		result.Success = true
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	writer := httpwriter.ForRequest(w, req)
	w.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(result); err != nil {
		klog.Errorf("Failed to write response: %v", err)
	}
	if err := writer.Close(); err != nil {
		klog.Errorf("Failed to close response: %v", err)
	}
	success = result.Success
}

func (s *Server) apiChart(req *http.Request, name string) (*APIChartResponse, error) {
	r, ok := s.request(name)
	if !ok {
		return nil, fmt.Errorf("no chart named %q", name)
	}
	c, err := s.Generator.Build(req.Context(), r)
	if err != nil {
		return nil, err
	}
	palette := s.Generator.Palette
	if len(palette) == 0 {
		palette = chart.DefaultPalette
	}
	traces, err := chart.Values(c.Store, c.Start, chart.Directives(r.Series, palette))
	if err != nil {
		return nil, err
	}

	result := &APIChartResponse{
		Title:  r.Title,
		YLabel: r.YLabel,
		Unit:   string(r.Unit),
		Start:  c.Start.Unix(),
		Data:   make(map[string]APIChartSeriesNullable, len(traces)+1),
	}
	var steps []int64
	if len(traces) > 0 {
		steps = traces[0].Steps
	}
	result.Data[""] = APIChartSteps(steps)
	for _, t := range traces {
		color := chart.ColorString(t.Directive.Color)
		def := APIChartSeriesDefinition{
			Label:  t.Directive.Label,
			Kind:   t.Directive.Kind.String(),
			Stack:  t.Directive.Stack,
			Stroke: color,
		}
		if t.Directive.Kind == chart.Area {
			def.Fill = color
		}
		result.Series = append(result.Series, def)
		result.Data[t.Directive.Label] = APIChartValues(t.Top)
	}
	return result, nil
}
