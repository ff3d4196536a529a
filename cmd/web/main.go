package main

import (
	"io/fs"
	"log/slog"
	"os"

	"parcelcli/internal/app"
	"parcelcli/web"
)

func main() {
	application, err := app.NewApplication(frontendAssets())
	if err != nil {
		slog.Error("Application initialization failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("Server stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// frontendAssets unwraps the embedded UI tree. A nil filesystem makes the
// server fall back to serving from the web directory on disk.
func frontendAssets() fs.FS {
	assets, err := fs.Sub(web.Static, "static")
	if err != nil {
		slog.Warn("Embedded frontend unavailable, serving from disk",
			slog.String("error", err.Error()))
		return nil
	}
	return assets
}
