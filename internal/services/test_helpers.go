package services

import (
	"github.com/stretchr/testify/mock"

	"parcelcli/pkg/contracts/domain"
)

// MockWebSocketHub is a mock for WebSocketHub interface
type MockWebSocketHub struct {
	mock.Mock
}

func (m *MockWebSocketHub) BroadcastReportRefresh(carrier domain.CarrierID, sessionID string) {
	m.Called(carrier, sessionID)
}
