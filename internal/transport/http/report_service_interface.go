package http

import (
	"context"

	"parcelcli/internal/services"
	"parcelcli/pkg/contracts/domain"
)

// ReportServiceInterface defines the interface for carrier report operations
type ReportServiceInterface interface {
	Upload(ctx context.Context, sessionID string, carrier domain.CarrierID, filename string, data []byte) (*domain.UploadResult, error)
	View(ctx context.Context, sessionID string, carrier domain.CarrierID) (*domain.ReportView, error)
	SetSelection(ctx context.Context, sessionID string, carrier domain.CarrierID, categories []string) (*domain.ReportView, error)
	SelectAll(ctx context.Context, sessionID string, carrier domain.CarrierID) (*domain.ReportView, error)
	ResetSelection(ctx context.Context, sessionID string, carrier domain.CarrierID) (*domain.ReportView, error)
	Export(ctx context.Context, sessionID string, carrier domain.CarrierID) (*services.ExportResult, error)
}
