package main

import (
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"path"
)

//go:embed static
var staticFiles embed.FS

// registerStaticAssets serves every embedded file under /static/ with a
// content hash ETag so browsers can revalidate cheaply.
func registerStaticAssets(mux *http.ServeMux) error {
	return fs.WalkDir(staticFiles, "static", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		body, err := staticFiles.ReadFile(name)
		if err != nil {
			return err
		}
		etag := fmt.Sprintf(`"%x"`, sha256.Sum256(body))
		contentType := mime.TypeByExtension(path.Ext(name))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		mux.HandleFunc("GET /"+name, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("If-None-Match") == etag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("Content-Type", contentType)
			w.Header().Set("Cache-Control", "public, max-age=0, no-cache")
			w.Header().Set("ETag", etag)
			if _, err := w.Write(body); err != nil {
				slog.ErrorContext(r.Context(), "failed to write static asset", "asset", name, "error", err)
			}
		})
		return nil
	})
}
