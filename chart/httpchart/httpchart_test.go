package httpchart

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/codemetrics/codegraph/chart"
	"github.com/codemetrics/codegraph/metricdb"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := metricdb.New("sqlite", filepath.Join(t.TempDir(), "metrics.db"), time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.CreateSchema(); err != nil {
		t.Fatal(err)
	}
	records := []metricdb.RevisionMetrics{
		{Revision: 1, Date: "2020-01-01 00:00:00", Metrics: map[metricdb.Column]float64{metricdb.LOCSource: 10, metricdb.LOCHeader: 1, metricdb.LOCOther: 2}},
		{Revision: 2, Date: "2020-01-01 00:00:00", Metrics: map[metricdb.Column]float64{metricdb.LOCSource: 20, metricdb.LOCHeader: 1, metricdb.LOCOther: 2}},
		{Revision: 3, Date: "2020-01-02 00:00:00", Metrics: map[metricdb.Column]float64{metricdb.LOCSource: 30, metricdb.LOCOther: 3}},
	}
	if _, err := db.Import(context.Background(), records, 10); err != nil {
		t.Fatal(err)
	}
	s := &Server{
		Generator: &chart.Generator{DB: db, Capacity: 10, Metrics: chart.NewMetrics()},
		Requests:  chart.DefaultRequests(),
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_Chart(t *testing.T) {
	srv := newTestServer(t)
	resp := get(t, srv.URL+"/chart/lines-of-code.png")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content type %s", ct)
	}
	if _, err := png.Decode(resp.Body); err != nil {
		t.Fatal(err)
	}

	if resp := get(t, srv.URL+"/chart/missing.png"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestServer_APIChart(t *testing.T) {
	srv := newTestServer(t)
	resp := get(t, srv.URL+"/api/chart/lines-of-code")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var result struct {
		Success bool                  `json:"success"`
		Start   int64                 `json:"start"`
		Data    map[string][]*float64 `json:"data"`
		Series  []APIChartSeriesDefinition
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if !result.Success || result.Start != time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Unix() {
		t.Fatalf("unexpected result %#v", result)
	}
	if len(result.Series) != 3 || result.Series[0].Stroke != "#009933" {
		t.Fatalf("unexpected series %#v", result.Series)
	}
	steps := result.Data[""]
	if len(steps) != 2 {
		t.Fatalf("expected one step per distinct date, got %d", len(steps))
	}
	source := result.Data["Source lines"]
	if len(source) != 2 || *source[0] != 10 || *source[1] != 30 {
		t.Fatalf("unexpected source values %v", source)
	}
	header := result.Data["Header lines"]
	if len(header) != 2 || header[0] == nil || header[1] != nil {
		t.Fatalf("expected a null for the missing header count, got %v", header)
	}

	resp = get(t, srv.URL+"/api/chart/missing")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestServer_Index(t *testing.T) {
	srv := newTestServer(t)
	resp := get(t, srv.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	for _, expected := range []string{"3 revisions", `/chart/file-size-stacked.png`, `/api/chart/average-lines-per-file`} {
		if !strings.Contains(body.String(), expected) {
			t.Errorf("index does not contain %q", expected)
		}
	}

	if resp := get(t, srv.URL+"/static/charts.css"); resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected static status %d", resp.StatusCode)
	}
	if resp := get(t, srv.URL+"/metrics"); resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected metrics status %d", resp.StatusCode)
	}
}
