// Package dashboard serves the embedded status page.
package dashboard

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed assets
var assets embed.FS

// Handler returns an HTTP handler serving the embedded dashboard.
// index.html answers /, the other assets their own paths.
func Handler() http.Handler {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		// Unreachable: the embedded "assets" directory always exists.
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
