package app

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"parcelcli/internal/infrastructure"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// mimeTypes covers the asset types the frontend build emits. Files read
// out of an embedded fs.FS carry no type information, so the handlers
// cannot lean on http.ServeFile's detection.
var mimeTypes = map[string]string{
	".css":   "text/css",
	".html":  "text/html; charset=utf-8",
	".ico":   "image/x-icon",
	".jpeg":  "image/jpeg",
	".jpg":   "image/jpeg",
	".js":    "application/javascript",
	".json":  "application/json",
	".png":   "image/png",
	".svg":   "image/svg+xml",
	".txt":   "text/plain",
	".woff":  "font/woff",
	".woff2": "font/woff2",
}

func contentTypeFor(name string) string {
	if ct, ok := mimeTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// mountStaticAssets registers the asset routes outside the middleware
// group. Fingerprinted build output is immutable for a day, and none of
// it needs the session or CORS stack.
func (a *Application) mountStaticAssets(r chi.Router) {
	frontendFS := a.FrontendFS

	r.Route("/assets", func(r chi.Router) {
		r.Use(middleware.SetHeader("Cache-Control", "public, max-age=86400"))
		r.Handle("/*", a.staticAssetHandler(frontendFS))
	})

	// Root-level files browsers request on their own
	r.Get("/favicon.svg", a.serveEmbeddedFile(frontendFS, "favicon.svg"))
	r.Get("/robots.txt", a.serveEmbeddedFile(frontendFS, "robots.txt"))
}

// mountSPA registers the catch-all for the embedded single-page UI.
// It must be registered last so the API and asset routes win.
func (a *Application) mountSPA(r chi.Router) {
	if a.FrontendFS == nil {
		a.Logger.Warn("No embedded frontend, UI routes disabled")
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Frontend not available", http.StatusServiceUnavailable)
		})
		return
	}

	r.Get("/*", a.spaHandler(a.FrontendFS))
}

// serveEmbeddedFile returns a handler for one named file from the
// embedded frontend
func (a *Application) serveEmbeddedFile(frontendFS fs.FS, filename string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, err := frontendFS.Open(filename)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer file.Close()

		w.Header().Set("Content-Type", contentTypeFor(filename))
		w.Header().Set("Cache-Control", "public, max-age=86400")
		io.Copy(w, file)
	}
}

// staticAssetHandler serves /assets/* straight from the embedded tree
func (a *Application) staticAssetHandler(frontendFS fs.FS) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /assets/app.js resolves to assets/app.js in the embedded FS
		name := strings.TrimPrefix(r.URL.Path, "/")

		file, err := frontendFS.Open(name)
		if err != nil {
			a.Logger.WarnContext(r.Context(), "Static asset not found",
				slog.String("path", name),
				slog.String("error", err.Error()))
			http.NotFound(w, r)
			return
		}
		defer file.Close()

		w.Header().Set("Content-Type", contentTypeFor(name))
		w.Header().Set("X-Content-Type-Options", "nosniff")
		io.Copy(w, file)
	})
}

// spaHandler serves the single-page UI. Paths that match a file in the
// embedded tree are served as-is; everything else gets index.html so
// client-side routing survives deep links and refreshes.
func (a *Application) spaHandler(frontendFS fs.FS) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = fmt.Sprintf("spa-%d", time.Now().UnixNano())
		}
		ctx := infrastructure.WithTraceID(r.Context(), reqID)

		urlPath := path.Clean(r.URL.Path)
		if urlPath != "/" && a.serveExact(w, frontendFS, strings.TrimPrefix(urlPath, "/")) {
			return
		}

		index, err := frontendFS.Open("index.html")
		if err != nil {
			a.Logger.ErrorContext(ctx, "SPA shell missing from embedded frontend",
				slog.String("error", err.Error()),
				slog.String("path", urlPath))
			http.Error(w, "Frontend not available", http.StatusServiceUnavailable)
			return
		}
		defer index.Close()

		// The shell must never be cached, it references fingerprinted
		// assets that change between releases.
		h := w.Header()
		h.Set("Content-Type", "text/html; charset=utf-8")
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		io.Copy(w, index)

		a.Logger.DebugContext(ctx, "Served SPA shell", slog.String("path", urlPath))
	}
}

// serveExact writes the named file if it exists in the embedded tree.
// Directories report false so they fall through to the SPA shell.
func (a *Application) serveExact(w http.ResponseWriter, frontendFS fs.FS, name string) bool {
	file, err := frontendFS.Open(name)
	if err != nil {
		return false
	}
	defer file.Close()

	if stat, err := file.Stat(); err != nil || stat.IsDir() {
		return false
	}

	h := w.Header()
	h.Set("Content-Type", contentTypeFor(name))
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	io.Copy(w, file)
	return true
}
