package httpwriter

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

type WriteCloser interface {
	io.Writer
	io.Closer
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// AcceptsGzip reports whether the request accepts a gzip response body,
// honouring quality values (https://tools.ietf.org/html/rfc7231#section-5.3.4).
func AcceptsGzip(req *http.Request) bool {
	gzipQ, anyQ := -1.0, -1.0
	for _, header := range req.Header.Values("Accept-Encoding") {
		for _, part := range strings.Split(header, ",") {
			coding, q := parseCoding(part)
			switch coding {
			case "gzip", "x-gzip":
				if q > gzipQ {
					gzipQ = q
				}
			case "*":
				if q > anyQ {
					anyQ = q
				}
			}
		}
	}
	if gzipQ >= 0 {
		return gzipQ > 0
	}
	return anyQ > 0
}

func parseCoding(s string) (string, float64) {
	params := strings.Split(s, ";")
	coding := strings.ToLower(strings.TrimSpace(params[0]))
	q := 1.0
	for _, p := range params[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || strings.TrimSpace(k) != "q" {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || f < 0 || f > 1 {
			return coding, 0
		}
		q = f
	}
	return coding, q
}

// ForRequest returns a writer for the response body that compresses when the
// client accepts it. Close must be called to flush the body.
func ForRequest(w http.ResponseWriter, req *http.Request) WriteCloser {
	w.Header().Add("Vary", "Accept-Encoding")
	if AcceptsGzip(req) {
		w.Header().Set("Content-Encoding", "gzip")
		return gzip.NewWriter(w)
	}
	return nopCloser{w}
}
