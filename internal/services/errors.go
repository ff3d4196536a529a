package services

import "errors"

// Sentinel errors the report service returns. The HTTP layer matches on
// these with errors.Is to pick the response status.
var (
	ErrUnknownCarrier = errors.New("unknown carrier")

	ErrReportNotFound    = errors.New("no report uploaded for carrier")
	ErrExportUnavailable = errors.New("no visible table to export")
)
