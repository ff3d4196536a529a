package validation

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcelcli/internal/config"
	apperrors "parcelcli/internal/errors"
)

func uploadTestConfig() *config.Config {
	return &config.Config{
		Upload: config.UploadConfig{
			MaxSizeBytes:      1024,
			AllowedExtensions: []string{".csv", ".xlsx"},
		},
	}
}

func TestFileValidator_ValidateUpload(t *testing.T) {
	tests := []struct {
		name          string
		filename      string
		size          int64
		wantSentinel  error
		errorContains string
	}{
		{
			name:     "valid CSV upload",
			filename: "fedex_invoice.csv",
			size:     512,
		},
		{
			name:     "valid Excel upload",
			filename: "ups_march.xlsx",
			size:     1024,
		},
		{
			name:     "extension check is case insensitive",
			filename: "INVOICE.CSV",
			size:     10,
		},
		{
			name:          "missing filename",
			filename:      "",
			size:          512,
			wantSentinel:  apperrors.ErrMissingFilePart,
			errorContains: "no filename",
		},
		{
			name:         "empty file",
			filename:     "invoice.csv",
			size:         0,
			wantSentinel: apperrors.ErrEmptyUpload,
		},
		{
			name:         "negative size",
			filename:     "invoice.csv",
			size:         -1,
			wantSentinel: apperrors.ErrEmptyUpload,
		},
		{
			name:          "over size limit",
			filename:      "invoice.csv",
			size:          1025,
			wantSentinel:  apperrors.ErrFileTooLarge,
			errorContains: "limit 1024",
		},
		{
			name:         "unsupported extension",
			filename:     "invoice.pdf",
			size:         512,
			wantSentinel: apperrors.ErrUnsupportedUpload,
		},
		{
			name:         "no extension",
			filename:     "invoice",
			size:         512,
			wantSentinel: apperrors.ErrUnsupportedUpload,
		},
		{
			name:          "Excel lock file",
			filename:      "~$invoice.xlsx",
			size:          512,
			wantSentinel:  apperrors.ErrUnsupportedUpload,
			errorContains: "lock file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := NewFileValidator(slog.Default())

			err := validator.ValidateUpload(tt.filename, tt.size, uploadTestConfig())

			if tt.wantSentinel != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantSentinel),
					"expected %v, got %v", tt.wantSentinel, err)
				if tt.errorContains != "" {
					assert.Contains(t, err.Error(), tt.errorContains)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFileValidator_ValidateOutputDirectory(t *testing.T) {
	validator := NewFileValidator(slog.Default())

	t.Run("existing directory", func(t *testing.T) {
		assert.NoError(t, validator.ValidateOutputDirectory(t.TempDir()))
	})

	t.Run("creates missing nested directories", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "reports", "2025", "ups")

		require.NoError(t, validator.ValidateOutputDirectory(dir))

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("leaves no probe file behind", func(t *testing.T) {
		dir := t.TempDir()

		require.NoError(t, validator.ValidateOutputDirectory(dir))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestFileValidator_ValidateInvoiceFile(t *testing.T) {
	validator := NewFileValidator(slog.Default())
	dir := t.TempDir()
	write := func(name string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("shipment data"), 0644))
		return path
	}

	tests := []struct {
		name        string
		path        string
		errContains string
	}{
		{name: "CSV invoice", path: write("fedex_invoice.csv")},
		{name: "Excel invoice", path: write("ups_invoice.xlsx")},
		{name: "Excel lock file", path: write("~$invoice.xlsx"), errContains: "lock file"},
		{name: "unsupported extension", path: write("invoice.pdf"), errContains: "not an invoice file"},
		{name: "missing file", path: filepath.Join(dir, "no_such_invoice.csv"), errContains: "does not exist"},
		{name: "path is a directory", path: dir, errContains: "is a directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateInvoiceFile(tt.path)

			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestNewFileValidator_NilLogger(t *testing.T) {
	validator := NewFileValidator(nil)

	require.NotNil(t, validator)
	assert.NotNil(t, validator.logger)
}
