// Package api contains API contract definitions for the Parcel Pulse
// charge extraction service. Version v1 represents the current stable
// API version.
package api

// SelectionUpdateRequest replaces the active category selection for one
// carrier. An empty list is valid and puts the report into its idle state.
type SelectionUpdateRequest struct {
	Categories []string `json:"categories" validate:"omitempty,dive,min=1,max=200"`
}

// ReportViewRequest represents the query parameters of a report view request.
type ReportViewRequest struct {
	Carrier string `json:"carrier" param:"carrier" validate:"required,oneof=fedex ups"`
}

// ExportRequest represents a request to download the visible report table.
type ExportRequest struct {
	Carrier string `json:"carrier" param:"carrier" validate:"required,oneof=fedex ups"`
	Format  string `json:"format" query:"format" validate:"omitempty,oneof=csv"`
}

// UploadRequest represents the multipart metadata of an invoice upload.
// The file itself travels in the "file" form field.
type UploadRequest struct {
	Carrier     string `json:"carrier" param:"carrier" validate:"required,oneof=fedex ups"`
	FileName    string `json:"file_name" validate:"required,filename"`
	TrackingCol string `json:"tracking_col,omitempty" validate:"omitempty,min=1,max=200"`
}

// ClientLogRequest represents a log entry forwarded from the browser UI.
type ClientLogRequest struct {
	Level   string                 `json:"level" validate:"omitempty,oneof=debug info warn error"`
	Message string                 `json:"message" validate:"required,max=2000"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Source  string                 `json:"source,omitempty" validate:"omitempty,max=100"`
}
