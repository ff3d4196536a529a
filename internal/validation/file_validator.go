package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"parcelcli/internal/config"
	apperrors "parcelcli/internal/errors"
)

// FileValidator provides file validation for uploads and batch runs
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		logger: logger,
	}
}

// ValidateUpload checks a received invoice against the upload limits before
// any bytes are parsed. Rejections are typed so transport can map them to
// the right status code.
func (v *FileValidator) ValidateUpload(filename string, size int64, cfg *config.Config) error {
	if filename == "" {
		v.logger.Warn("Upload rejected: no filename")
		return fmt.Errorf("%w: part carries no filename", apperrors.ErrMissingFilePart)
	}

	if size <= 0 {
		v.logger.Warn("Upload rejected: empty file",
			slog.String("filename", filename))
		return fmt.Errorf("%w: %s", apperrors.ErrEmptyUpload, filename)
	}

	if size > cfg.Upload.MaxSizeBytes {
		v.logger.Warn("Upload rejected: too large",
			slog.String("filename", filename),
			slog.Int64("size_bytes", size),
			slog.Int64("max_size_bytes", cfg.Upload.MaxSizeBytes))
		return fmt.Errorf("%w: %d bytes (limit %d)", apperrors.ErrFileTooLarge, size, cfg.Upload.MaxSizeBytes)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !cfg.AllowedExtension(ext) {
		v.logger.Warn("Upload rejected: unsupported extension",
			slog.String("filename", filename),
			slog.String("extension", ext))
		return fmt.Errorf("%w: %s", apperrors.ErrUnsupportedUpload, ext)
	}

	if strings.HasPrefix(filepath.Base(filename), "~$") {
		v.logger.Warn("Upload rejected: Excel lock file",
			slog.String("filename", filename))
		return fmt.Errorf("%w: %s is an Excel lock file", apperrors.ErrUnsupportedUpload, filename)
	}

	v.logger.Debug("Upload validated",
		slog.String("filename", filename),
		slog.Int64("size_bytes", size))
	return nil
}

// ValidateOutputDirectory creates dir if it is missing and confirms the
// process can write into it before a batch run starts filling it.
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir), slog.String("error", err.Error()))
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	probe := filepath.Join(dir, ".write_test")
	file, err := os.Create(probe)
	if err != nil {
		v.logger.Error("Output directory is not writable",
			slog.String("directory", dir), slog.String("error", err.Error()))
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	file.Close()
	os.Remove(probe)

	v.logger.Debug("Output directory validated", slog.String("directory", dir))
	return nil
}

// ValidateFile checks that path names a readable regular file. Opening the
// file directly covers both the existence and the permission check in one
// pass.
func (v *FileValidator) ValidateFile(path string) error {
	file, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
		v.logger.Error("File does not exist", slog.String("file", path))
		return fmt.Errorf("file %s does not exist", path)
	case err != nil:
		v.logger.Error("File is not readable",
			slog.String("file", path), slog.String("error", err.Error()))
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		v.logger.Error("Path is a directory, not a file", slog.String("path", path))
		return fmt.Errorf("%s is a directory, not a file", path)
	}

	v.logger.Debug("File validated",
		slog.String("file", path), slog.Int64("size", info.Size()))
	return nil
}

// ValidateInvoiceFile checks that a file on disk looks like a loadable
// invoice before it is handed to a parser.
func (v *FileValidator) ValidateInvoiceFile(path string) error {
	if err := v.ValidateFile(path); err != nil {
		return err
	}

	base := filepath.Base(path)
	if strings.HasPrefix(base, "~$") {
		v.logger.Warn("Skipping Excel lock file", slog.String("file", path))
		return fmt.Errorf("file %s is an Excel lock file", path)
	}

	ext := strings.ToLower(filepath.Ext(base))
	if ext != ".csv" && ext != ".xlsx" {
		v.logger.Error("File is not an invoice file",
			slog.String("file", path), slog.String("extension", ext))
		return fmt.Errorf("file %s is not an invoice file (extension: %s)", path, ext)
	}
	return nil
}
