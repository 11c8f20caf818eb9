package httpchart

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"k8s.io/klog/v2"

	"github.com/codemetrics/codegraph/chart"
	"github.com/codemetrics/codegraph/metricdb"
	"github.com/codemetrics/codegraph/pkg/httpwriter"
	"github.com/codemetrics/codegraph/series"
	"github.com/codemetrics/codegraph/static"
)

// Server renders charts on demand from the current database contents.
type Server struct {
	Generator *chart.Generator
	Requests  []chart.Request
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.HandleIndex).Methods(http.MethodGet)
	r.HandleFunc("/chart/{name:[^/]+}.png", s.HandleChart).Methods(http.MethodGet)
	r.HandleFunc("/api/chart/{name}", s.HandleAPIChart).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(static.Handler("/static/"))
	if s.Generator.Metrics != nil {
		r.Handle("/metrics", s.Generator.Metrics.Handler())
	}
	return r
}

func (s *Server) request(name string) (chart.Request, bool) {
	for _, r := range s.Requests {
		if r.Name == name {
			return r, true
		}
	}
	return chart.Request{}, false
}

// statusFor maps a chart build error to a response code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, series.ErrNoRows):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) HandleChart(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	var success bool
	start := time.Now()
	var queryDuration, renderDuration time.Duration
	defer func() {
		klog.Infof("Render chart %s query=%s render=%s duration=%s success=%t", name, queryDuration.Truncate(time.Millisecond/10), renderDuration.Truncate(time.Millisecond/10), time.Since(start).Truncate(time.Millisecond), success)
	}()

	r, ok := s.request(name)
	if !ok {
		http.Error(w, fmt.Sprintf("No chart named %q", name), http.StatusNotFound)
		return
	}
	c, err := s.Generator.Build(req.Context(), r)
	queryDuration = time.Since(start)
	if err != nil {
		http.Error(w, fmt.Sprintf("Unable to load chart: %v", err), statusFor(err))
		return
	}
	renderStart := time.Now()
	var buf bytes.Buffer
	if err := s.Generator.Render(&buf, c); err != nil {
		http.Error(w, fmt.Sprintf("Unable to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	renderDuration = time.Since(renderStart)

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := buf.WriteTo(w); err != nil {
		klog.Errorf("Failed to write response: %v", err)
		return
	}
	success = true
}

func (s *Server) HandleIndex(w http.ResponseWriter, req *http.Request) {
	summary, err := s.Generator.DB.Summary(req.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Unable to summarize database: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	writer := httpwriter.ForRequest(w, req)
	defer writer.Close()

	fmt.Fprintf(writer, htmlPageStart, "Code metrics")
	if summary.Revisions == 0 {
		fmt.Fprint(writer, `<p class="summary">No revisions have been recorded.</p>`)
	} else {
		fmt.Fprintf(writer, `<p class="summary">%d revisions from %s to %s</p>`,
			summary.Revisions,
			html.EscapeString(summary.First.Format(metricdb.DateLayout)),
			html.EscapeString(summary.Last.Format(metricdb.DateLayout)),
		)
	}
	fmt.Fprint(writer, `<div class="charts">`)
	for _, r := range s.Requests {
		name := html.EscapeString(r.Name)
		fmt.Fprintf(writer, htmlChart, name, html.EscapeString(r.Title), r.Width, r.Height)
	}
	fmt.Fprint(writer, `</div>`)
	fmt.Fprint(writer, htmlPageEnd)
}

const htmlPageStart = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8"><title>%s</title>
<link rel="stylesheet" href="/static/charts.css">
<meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no">
</head>
<body>
<h1>Code metrics</h1>
`

const htmlPageEnd = `
</body>
</html>
`

const htmlChart = `
<div class="chart">
<img src="/chart/%[1]s.png" alt="%[2]s" width="%[3]d" height="%[4]d">
<div><a href="/api/chart/%[1]s">data</a></div>
</div>
`
