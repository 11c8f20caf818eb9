package codegraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/codemetrics/codegraph/metricdb"
)

type ImportOptions struct {
	DB *DatabaseOptions

	CreateSchema bool
	BatchSize    int64

	files []string
	in    io.Reader
}

func NewImportCommand() *cobra.Command {
	o := &ImportOptions{
		DB:        NewDatabaseOptions(),
		BatchSize: 500,
		in:        os.Stdin,
	}
	cmd := &cobra.Command{
		Use:   "import [FILE...]",
		Short: "Load revision metrics from JSON files into the database",
		Long: `Load revision metrics into the database.

Each file (or standard input when no file or - is given) holds a JSON array
of objects of the form

  {"revision": 1024, "date": "2020-01-01 12:00:00", "metrics": {"loc_source": 1000}}

Revisions that already exist in the database are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.files = args
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
	}
	o.AddFlags(cmd.Flags())
	return cmd
}

func (o *ImportOptions) AddFlags(fs *pflag.FlagSet) {
	o.DB.AddFlags(fs)
	fs.BoolVar(&o.CreateSchema, "create-schema", o.CreateSchema, "Create the revisions and metrics tables if they do not exist.")
	fs.Int64Var(&o.BatchSize, "batch-size", o.BatchSize, "The number of revisions inserted per transaction.")
}

func (o *ImportOptions) Validate() error {
	if err := o.DB.Validate(); err != nil {
		return err
	}
	if o.BatchSize < 1 {
		return errors.New("--batch-size must be at least 1")
	}
	return nil
}

func (o *ImportOptions) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var records []metricdb.RevisionMetrics
	files := o.files
	if len(files) == 0 {
		files = []string{"-"}
	}
	for _, file := range files {
		r, err := o.read(file)
		if err != nil {
			return err
		}
		records = append(records, r...)
	}

	db, err := o.DB.Open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	if o.CreateSchema {
		if err := db.CreateSchema(); err != nil {
			return err
		}
	}
	result, err := db.Import(ctx, records, o.BatchSize)
	if err != nil {
		return err
	}
	klog.Infof("Imported %d revisions, skipped %d that already existed", result.Inserted, result.Skipped)
	return nil
}

func (o *ImportOptions) read(file string) ([]metricdb.RevisionMetrics, error) {
	if file == "-" {
		records, err := metricdb.DecodeRevisions(o.in)
		if err != nil {
			return nil, fmt.Errorf("standard input: %v", err)
		}
		return records, nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	records, err := metricdb.DecodeRevisions(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", file, err)
	}
	return records, nil
}
