package static

import (
	"embed"
	"net/http"
)

// staticContent holds the stylesheets of the chart index.
//
//go:embed *.css
var staticContent embed.FS

// Handler returns a file server for the embedded content below prefix, for
// example /static/.
func Handler(prefix string) http.Handler {
	return http.StripPrefix(prefix, http.FileServer(http.FS(staticContent)))
}
