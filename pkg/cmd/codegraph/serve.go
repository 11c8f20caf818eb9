package codegraph

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/codemetrics/codegraph/chart"
	"github.com/codemetrics/codegraph/chart/httpchart"
)

type ServeOptions struct {
	DB     *DatabaseOptions
	Charts *ChartOptions

	ListenAddr string
}

func NewServeCommand() *cobra.Command {
	o := &ServeOptions{
		DB:         NewDatabaseOptions(),
		Charts:     NewChartOptions(),
		ListenAddr: ":8080",
	}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the metric charts over HTTP, rendered from the database on every request",
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

func (o *ServeOptions) AddFlags(fs *pflag.FlagSet) {
	o.DB.AddFlags(fs)
	o.Charts.AddFlags(fs)
	fs.StringVar(&o.ListenAddr, "listen", o.ListenAddr, "The address to serve charts on.")
}

func (o *ServeOptions) Validate() error {
	if err := o.DB.Validate(); err != nil {
		return err
	}
	if err := o.Charts.Validate(o.DB.Location()); err != nil {
		return err
	}
	if len(o.ListenAddr) == 0 {
		return errors.New("--listen must be set")
	}
	return nil
}

func (o *ServeOptions) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := o.DB.Open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	g := o.Charts.Generator(db)
	g.Metrics = chart.NewMetrics()
	s := &httpchart.Server{Generator: g, Requests: o.Charts.Requests()}
	server := &http.Server{
		Addr:              o.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		klog.Infof("Listening on %s", o.ListenAddr)
		errCh <- server.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
