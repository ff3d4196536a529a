// Package web holds the embedded browser UI served by the Parcel Pulse
// HTTP server.
package web

import "embed"

// Static contains the single-page UI and its assets.
//
//go:embed all:static
var Static embed.FS
