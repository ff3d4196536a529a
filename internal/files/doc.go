// Package files finds invoice files on disk and manages the archived
// copies the service keeps.
//
// Discovery locates invoice files (.csv and .xlsx, skipping Excel lock
// files) and dated carrier exports. Manager archives uploaded invoices
// under the uploads directory and enforces the retention windows on both
// archived uploads and kept report copies.
//
// Example usage:
//
//	// Expand a drop directory into invoice files, oldest first
//	invoices, err := files.NewDiscovery("").FindInvoiceFiles(dir)
//
//	// Archive a received invoice and sweep expired ones
//	manager := files.NewManager(paths)
//	archived, err := manager.ArchiveUpload("fedex_march.csv", data, time.Now())
//	removed, err := manager.PruneUploads(time.Now().Add(-30 * 24 * time.Hour))
package files
