package codegraph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/codemetrics/codegraph/metricdb"
)

// DatabaseOptions select the metrics database shared by every command.
type DatabaseOptions struct {
	Driver   string
	DSN      string
	Timezone string

	location *time.Location
}

func NewDatabaseOptions() *DatabaseOptions {
	return &DatabaseOptions{
		Driver: "mysql",
		DSN:    os.Getenv("CODEGRAPH_DSN"),
	}
}

func (o *DatabaseOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Driver, "driver", o.Driver, "The database driver, mysql or sqlite.")
	fs.StringVar(&o.DSN, "dsn", o.DSN, "The data source name of the metrics database, for example user:password@tcp(host:3306)/metrics for mysql or a file path for sqlite. Defaults to $CODEGRAPH_DSN.")
	fs.StringVar(&o.Timezone, "timezone", o.Timezone, "The IANA time zone revision dates are recorded in. Defaults to local time.")
}

func (o *DatabaseOptions) Validate() error {
	switch o.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("--driver must be mysql or sqlite")
	}
	if len(o.DSN) == 0 {
		return errors.New("--dsn or $CODEGRAPH_DSN must be set")
	}
	o.location = time.Local
	if len(o.Timezone) > 0 {
		location, err := time.LoadLocation(o.Timezone)
		if err != nil {
			return fmt.Errorf("--timezone is invalid: %v", err)
		}
		o.location = location
	}
	return nil
}

func (o *DatabaseOptions) Location() *time.Location {
	if o.location == nil {
		return time.Local
	}
	return o.location
}

// Open connects to the database and verifies it is reachable.
func (o *DatabaseOptions) Open(ctx context.Context) (*metricdb.DB, error) {
	db, err := metricdb.New(o.Driver, o.DSN, o.Location())
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	klog.V(2).Infof("Connected to %s database", o.Driver)
	return db, nil
}
