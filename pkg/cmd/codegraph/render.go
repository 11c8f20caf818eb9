package codegraph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/codemetrics/codegraph/chart"
	"github.com/codemetrics/codegraph/metricdb"
	"github.com/codemetrics/codegraph/pkg/output"
	"github.com/codemetrics/codegraph/rrd"
)

// ChartOptions describe which charts to build and how.
type ChartOptions struct {
	ChartsFile string
	Charts     []string
	Since      string
	Capacity   int
	Width      int
	Height     int
	Palette    []string

	since    time.Time
	requests []chart.Request
	palette  chart.Palette
}

func NewChartOptions() *ChartOptions {
	return &ChartOptions{
		Capacity: rrd.DefaultCapacity,
	}
}

func (o *ChartOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.ChartsFile, "charts", o.ChartsFile, "A YAML file of chart definitions to use instead of the built-in charts.")
	fs.StringSliceVar(&o.Charts, "only", o.Charts, "Names of the charts to build. Defaults to every chart.")
	fs.StringVar(&o.Since, "since", o.Since, "Ignore revisions dated before this date (YYYY-MM-DD or YYYY-MM-DD HH:MM:SS).")
	fs.IntVar(&o.Capacity, "capacity", o.Capacity, "The number of distinct revision timestamps retained per chart.")
	fs.IntVar(&o.Width, "width", o.Width, "Override the image width in pixels of every chart.")
	fs.IntVar(&o.Height, "height", o.Height, "Override the image height in pixels of every chart.")
	fs.StringSliceVar(&o.Palette, "palette", o.Palette, "Series colours as #rrggbb, cycled in series order.")
}

func (o *ChartOptions) Validate(location *time.Location) error {
	if o.Capacity <= 0 {
		return errors.New("--capacity must be positive")
	}
	if o.Width < 0 || o.Height < 0 {
		return errors.New("--width and --height must not be negative")
	}
	if len(o.Since) > 0 {
		var err error
		for _, layout := range []string{metricdb.DateLayout, "2006-01-02"} {
			if o.since, err = time.ParseInLocation(layout, o.Since, location); err == nil {
				break
			}
		}
		if err != nil {
			return fmt.Errorf("--since must be a date of the form YYYY-MM-DD or YYYY-MM-DD HH:MM:SS")
		}
	}
	o.palette = nil
	for _, s := range o.Palette {
		c, err := chart.ParseColor(s)
		if err != nil {
			return fmt.Errorf("--palette: %v", err)
		}
		o.palette = append(o.palette, c)
	}

	requests := chart.DefaultRequests()
	if len(o.ChartsFile) > 0 {
		loaded, err := chart.LoadRequests(o.ChartsFile)
		if err != nil {
			return err
		}
		requests = loaded
	}
	for i := range requests {
		if o.Width > 0 {
			requests[i].Width = o.Width
		}
		if o.Height > 0 {
			requests[i].Height = o.Height
		}
	}
	selected, err := chart.Select(requests, o.Charts)
	if err != nil {
		return fmt.Errorf("--only: %v", err)
	}
	o.requests = selected
	return nil
}

func (o *ChartOptions) Requests() []chart.Request {
	return o.requests
}

func (o *ChartOptions) Generator(db *metricdb.DB) *chart.Generator {
	return &chart.Generator{
		DB:       db,
		Palette:  o.palette,
		Capacity: o.Capacity,
		Since:    o.since,
	}
}

type RenderOptions struct {
	DB     *DatabaseOptions
	Charts *ChartOptions

	Output            string
	GCPServiceAccount string
	ScratchDir        string
	Workers           int
	MetricsFile       string
}

func NewRenderCommand() *cobra.Command {
	o := &RenderOptions{
		DB:      NewDatabaseOptions(),
		Charts:  NewChartOptions(),
		Output:  "/var/www/code",
		Workers: 1,
	}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the metric charts as PNG images",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
	}
	o.AddFlags(cmd.Flags())
	return cmd
}

func (o *RenderOptions) AddFlags(fs *pflag.FlagSet) {
	o.DB.AddFlags(fs)
	o.Charts.AddFlags(fs)
	fs.StringVar(&o.Output, "output", o.Output, "A directory or gs://BUCKET/PREFIX location to write chart images to.")
	fs.StringVar(&o.GCPServiceAccount, "gcp-service-account", o.GCPServiceAccount, "A service account credentials file used to write to a GCS output location.")
	fs.StringVar(&o.ScratchDir, "scratch-dir", o.ScratchDir, "A directory to keep a snapshot of every chart's time series in.")
	fs.IntVar(&o.Workers, "workers", o.Workers, "The number of charts rendered at the same time.")
	fs.StringVar(&o.MetricsFile, "metrics-file", o.MetricsFile, "Write run metrics in the Prometheus text format to this file.")
}

func (o *RenderOptions) Validate() error {
	if err := o.DB.Validate(); err != nil {
		return err
	}
	if err := o.Charts.Validate(o.DB.Location()); err != nil {
		return err
	}
	if len(o.Output) == 0 {
		return errors.New("--output must be set")
	}
	if o.Workers < 1 {
		return errors.New("--workers must be at least 1")
	}
	return nil
}

func (o *RenderOptions) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(o.ScratchDir) > 0 {
		if err := os.MkdirAll(o.ScratchDir, 0755); err != nil {
			return fmt.Errorf("unable to create --scratch-dir: %v", err)
		}
	}
	sink, err := output.ForLocation(ctx, o.Output, o.GCPServiceAccount)
	if err != nil {
		return err
	}
	db, err := o.DB.Open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	g := o.Charts.Generator(db)
	g.Sink = sink
	g.ScratchDir = o.ScratchDir
	g.Workers = o.Workers
	g.Metrics = chart.NewMetrics()

	requests := o.Charts.Requests()
	klog.Infof("Rendering %d charts to %s with %d workers", len(requests), sink, o.Workers)
	start := time.Now()
	genErr := g.GenerateAll(ctx, requests)
	klog.Infof("Rendered charts in %s", units.HumanDuration(time.Since(start)))

	if len(o.MetricsFile) > 0 {
		if err := g.Metrics.WriteTextfile(o.MetricsFile); err != nil {
			klog.Errorf("Unable to write --metrics-file: %v", err)
		}
	}
	return genErr
}
