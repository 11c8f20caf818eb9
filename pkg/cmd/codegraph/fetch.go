package codegraph

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/codemetrics/codegraph/rrd"
)

type FetchOptions struct {
	Start int64
	End   int64

	file string
	out  io.Writer
}

func NewFetchCommand() *cobra.Command {
	o := &FetchOptions{
		Start: math.MinInt64,
		End:   math.MaxInt64,
		out:   os.Stdout,
	}
	cmd := &cobra.Command{
		Use:   "fetch SNAPSHOT",
		Short: "Print the samples of a chart snapshot written with --scratch-dir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.file = args[0]
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run()
		},
	}
	o.AddFlags(cmd.Flags())
	return cmd
}

func (o *FetchOptions) AddFlags(fs *pflag.FlagSet) {
	fs.Int64Var(&o.Start, "start", o.Start, "Only print samples at or after this step (seconds since the epoch).")
	fs.Int64Var(&o.End, "end", o.End, "Only print samples at or before this step (seconds since the epoch).")
}

func (o *FetchOptions) Validate() error {
	if o.End < o.Start {
		return errors.New("--end must not be before --start")
	}
	return nil
}

func (o *FetchOptions) Run() error {
	store, err := rrd.ReadFile(o.file)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(o.out)
	if err := WriteSamples(w, store, o.Start, o.End); err != nil {
		return err
	}
	return w.Flush()
}

// WriteSamples prints a header of data source names and one line per sample
// of the form "step: v1 v2", with U for unknown values.
func WriteSamples(w io.Writer, store *rrd.Store, start, end int64) error {
	var names []string
	for _, ds := range store.Sources() {
		names = append(names, ds.Name)
	}
	if _, err := fmt.Fprintf(w, "%s\n\n", strings.Join(names, " ")); err != nil {
		return err
	}
	buf := make([]byte, 0, 128)
	for _, s := range store.Fetch(start, end) {
		buf = strconv.AppendInt(buf[:0], s.Step, 10)
		buf = append(buf, ':')
		for _, v := range s.Values {
			buf = append(buf, ' ')
			if rrd.IsUnknown(v) {
				buf = append(buf, 'U')
				continue
			}
			buf = strconv.AppendFloat(buf, v, 'g', -1, 64)
		}
		buf = append(buf, '\n')
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
