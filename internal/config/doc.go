// Package config loads and validates the server configuration and owns
// the on-disk directory layout.
//
// Configuration is layered. PARCEL_* environment variables win over a
// config.yaml found on the search path (working directory, configs/,
// and two parent configs/ directories), which wins over the struct tag
// defaults:
//
//	PARCEL_SERVER_PORT=9090
//	PARCEL_LOGGING_LEVEL=debug
//	PARCEL_SESSION_TTL=24h
//	PARCEL_UPLOAD_MAX_SIZE_BYTES=26214400
//
// Load wires the whole thing together at startup; LoadFromPath does
// the same from an explicit file for the CLI's --config flag. Both
// validate the result and create any missing directories, so a nil
// error means the server can actually run with what came back.
//
// Directory layout is separate from the YAML-backed Config. GetPaths
// resolves every directory relative to the executable, never the
// working directory, and caches the result for the life of the
// process:
//
//	paths, err := config.GetPaths()
//	if err != nil {
//	    return err
//	}
//	archive := paths.GetUploadPath("20250818T090000_invoice.csv")
//	report := paths.GetCarrierExportPath("fedex", time.Now())
//
// Callers share the cached Paths struct and must copy it before
// overriding individual directories.
//
// Tests use Default(), which returns a fully populated configuration
// that needs no environment and touches no disk.
package config
