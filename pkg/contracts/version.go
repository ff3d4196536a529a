// Package contracts defines the shared contract surface between the Parcel
// Pulse server, its batch tool and the browser UI: domain types, API request
// shapes, WebSocket events and version identifiers.
package contracts

const (
	// DataFormatVersion is the version of the exported report file format
	DataFormatVersion = "v1"

	// APIVersion is the version of the API (HTTP and WebSocket messages)
	APIVersion = "v1"
)

// VersionInfo is the response body of the version endpoint. Build fields
// are filled from ldflags-set values and omitted when a build carries none.
type VersionInfo struct {
	Version      string  `json:"version"`
	RepoURL      string  `json:"repo_url"`
	BuildTime    string  `json:"build_time,omitempty"`
	BuildID      string  `json:"build_id,omitempty"`
	GoVersion    string  `json:"go_version"`
	OS           string  `json:"os"`
	Architecture string  `json:"arch"`
	APIVersion   string  `json:"api_version"`
	DataFormat   string  `json:"data_format"`
	Uptime       float64 `json:"uptime"`
	StartTime    string  `json:"start_time"`
	CurrentTime  string  `json:"current_time"`
}
