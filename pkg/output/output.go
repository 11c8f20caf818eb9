// Package output publishes rendered charts to a local directory or a GCS
// bucket.
package output

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
	"k8s.io/klog/v2"
)

// Object is a pending output. Nothing is visible at the destination until
// Commit returns successfully; Abort discards what was written.
type Object interface {
	io.Writer
	Commit() error
	Abort()
}

type Sink interface {
	Create(ctx context.Context, name string) (Object, error)
	String() string
}

// ForLocation returns a GCS sink for gs://bucket/prefix locations and a
// directory sink otherwise. credentialsFile is only used for GCS.
func ForLocation(ctx context.Context, location, credentialsFile string) (Sink, error) {
	if !strings.HasPrefix(location, "gs://") {
		return NewDir(location)
	}
	u, err := url.Parse(location)
	if err != nil || len(u.Host) == 0 {
		return nil, fmt.Errorf("output location %q must be of the form gs://BUCKET/PREFIX", location)
	}
	var opts []option.ClientOption
	if len(credentialsFile) > 0 {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create GCS client: %v", err)
	}
	return &GCS{Client: client, Bucket: u.Host, Prefix: strings.Trim(u.Path, "/")}, nil
}

// Dir writes outputs below a local directory.
type Dir struct {
	Path string
}

func NewDir(dir string) (*Dir, error) {
	if len(dir) == 0 {
		return nil, fmt.Errorf("output directory must be specified")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("unable to create output directory: %v", err)
	}
	return &Dir{Path: dir}, nil
}

func (d *Dir) String() string { return d.Path }

func (d *Dir) Create(ctx context.Context, name string) (Object, error) {
	target := filepath.Join(d.Path, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*")
	if err != nil {
		return nil, err
	}
	return &fileObject{File: f, target: target}, nil
}

type fileObject struct {
	*os.File
	target string
}

func (f *fileObject) Commit() error {
	if err := f.File.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	if err := os.Chmod(f.Name(), 0644); err != nil {
		os.Remove(f.Name())
		return err
	}
	if err := os.Rename(f.Name(), f.target); err != nil {
		os.Remove(f.Name())
		return err
	}
	return nil
}

func (f *fileObject) Abort() {
	f.File.Close()
	if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
		klog.Warningf("Unable to remove incomplete output %s: %v", f.Name(), err)
	}
}

// GCS writes outputs as objects below Prefix in Bucket.
type GCS struct {
	Client *storage.Client
	Bucket string
	Prefix string
}

func (g *GCS) String() string {
	return fmt.Sprintf("gs://%s/%s", g.Bucket, g.Prefix)
}

func (g *GCS) Create(ctx context.Context, name string) (Object, error) {
	ctx, cancel := context.WithCancel(ctx)
	w := g.Client.Bucket(g.Bucket).Object(path.Join(g.Prefix, name)).NewWriter(ctx)
	w.ContentType = contentType(name)
	w.CacheControl = "no-cache"
	return &gcsObject{Writer: w, cancel: cancel}, nil
}

type gcsObject struct {
	*storage.Writer
	cancel context.CancelFunc
}

func (o *gcsObject) Commit() error {
	defer o.cancel()
	return o.Writer.Close()
}

// Abort cancels the upload, which leaves any existing object in place.
func (o *gcsObject) Abort() {
	o.cancel()
	o.Writer.Close()
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".png":
		return "image/png"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
