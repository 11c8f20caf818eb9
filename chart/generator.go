package chart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"

	"github.com/codemetrics/codegraph/metricdb"
	"github.com/codemetrics/codegraph/pkg/output"
	"github.com/codemetrics/codegraph/rrd"
	"github.com/codemetrics/codegraph/series"
)

// Generator turns chart requests into images. Every request is built into a
// store of its own, so requests are independent of each other.
type Generator struct {
	DB      *metricdb.DB
	Sink    output.Sink
	Palette Palette
	// Capacity is the number of steps retained per chart, rrd.DefaultCapacity
	// when zero.
	Capacity int
	// Since excludes revisions dated earlier when non-zero.
	Since time.Time
	// ScratchDir receives a snapshot of every chart store when set.
	ScratchDir string
	// Workers is the number of charts generated at once, at least one.
	Workers int
	Metrics *Metrics
}

// Chart is a populated store ready for rendering.
type Chart struct {
	Request Request
	Store   *rrd.Store
	Start   time.Time
	Stats   series.Stats
}

// Build queries the rows of req and loads them into a new store.
func (g *Generator) Build(ctx context.Context, req Request) (*Chart, error) {
	cursor, err := g.DB.Series(ctx, req.Exprs(), g.Since)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	b := series.NewBuilder(Sources(req.Series), g.Capacity)
	store, err := b.Drain(ctx, cursor)
	c := &Chart{Request: req, Store: store, Start: b.Start(), Stats: b.Stats()}
	if err != nil {
		return c, err
	}
	klog.V(2).Infof("Loaded %d rows into chart %s (%d updates, %d duplicate timestamps)", c.Stats.Rows, req.Name, c.Stats.Updates, c.Stats.Duplicates)
	return c, nil
}

// Render draws c as a PNG image.
func (g *Generator) Render(w io.Writer, c *Chart) error {
	palette := g.Palette
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	opts := c.Request.RenderOptions(c.Start, g.DB.Location())
	return Render(w, c.Store, opts, Directives(c.Request.Series, palette))
}

// Generate builds req, snapshots its store and publishes the image to the
// sink under req.Output.
func (g *Generator) Generate(ctx context.Context, req Request) error {
	start := time.Now()
	c, err := g.generate(ctx, req)
	var stats series.Stats
	if c != nil {
		stats = c.Stats
	}
	g.Metrics.observe(stats, time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("chart %s: %w", req.Name, err)
	}
	klog.Infof("Rendered chart %s rows=%d updates=%d duplicates=%d duration=%s", req.Name, stats.Rows, stats.Updates, stats.Duplicates, time.Since(start).Truncate(time.Millisecond))
	return nil
}

func (g *Generator) generate(ctx context.Context, req Request) (*Chart, error) {
	c, err := g.Build(ctx, req)
	if err != nil {
		return c, err
	}
	if len(g.ScratchDir) > 0 {
		if err := rrd.WriteFile(g.SnapshotPath(req.Name), c.Store); err != nil {
			return c, err
		}
	}
	obj, err := g.Sink.Create(ctx, req.Output)
	if err != nil {
		return c, fmt.Errorf("unable to create %s: %v", req.Output, err)
	}
	if err := g.Render(obj, c); err != nil {
		obj.Abort()
		return c, err
	}
	if err := obj.Commit(); err != nil {
		return c, fmt.Errorf("unable to publish %s: %v", req.Output, err)
	}
	return c, nil
}

// SnapshotPath is where the store of the named chart is written.
func (g *Generator) SnapshotPath(name string) string {
	return filepath.Join(g.ScratchDir, name+".rrz")
}

// GenerateAll generates every request. A failing request does not stop the
// others; all failures are returned together in request order.
func (g *Generator) GenerateAll(ctx context.Context, requests []Request) error {
	workers := g.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(requests) {
		workers = len(requests)
	}

	errs := make([]error, len(requests))
	var wg sync.WaitGroup
	workCh := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workCh {
				if err := g.Generate(ctx, requests[i]); err != nil {
					if errors.Is(err, series.ErrNoRows) {
						klog.Warningf("Chart %s has no data: %v", requests[i].Name, err)
					} else {
						klog.Errorf("Chart generation failed: %v", err)
					}
					errs[i] = err
				}
			}
		}()
	}
	for i := range requests {
		if ctx.Err() != nil {
			errs[i] = fmt.Errorf("chart %s: %w", requests[i].Name, ctx.Err())
			continue
		}
		workCh <- i
	}
	close(workCh)
	wg.Wait()
	return utilerrors.NewAggregate(errs)
}
