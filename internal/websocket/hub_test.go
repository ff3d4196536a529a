package websocket

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcelcli/pkg/contracts/domain"
	"parcelcli/pkg/contracts/events"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// registerDrainedClient registers a bare client on a running hub and consumes
// the connection welcome message so the next read sees a broadcast.
func registerDrainedClient(t *testing.T, hub *Hub) *Client {
	t.Helper()

	client := &Client{
		hub:         hub,
		conn:        nil,
		send:        make(chan []byte, 256),
		id:          "test-client",
		connectedAt: time.Now(),
	}
	hub.Register(client)

	select {
	case <-client.send:
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for connection message")
	}
	return client
}

func TestHubCreation(t *testing.T) {
	tests := []struct {
		name   string
		logger *slog.Logger
		test   func(t *testing.T, hub *Hub)
	}{
		{
			name:   "new hub has empty client map",
			logger: newTestLogger(),
			test: func(t *testing.T, hub *Hub) {
				assert.Equal(t, 0, hub.ClientCount())
			},
		},
		{
			name:   "new hub has initialized channels",
			logger: newTestLogger(),
			test: func(t *testing.T, hub *Hub) {
				assert.NotNil(t, hub.clients)
				assert.NotNil(t, hub.broadcast)
				assert.NotNil(t, hub.register)
				assert.NotNil(t, hub.unregister)
			},
		},
		{
			name:   "nil logger falls back to the default",
			logger: nil,
			test: func(t *testing.T, hub *Hub) {
				assert.NotNil(t, hub.logger)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := NewHub(tt.logger)
			tt.test(t, hub)
		})
	}
}

func TestHubWelcomeMessage(t *testing.T) {
	hub := NewHub(newTestLogger())
	hub.Start()
	defer hub.Stop()

	client := &Client{
		hub:         hub,
		conn:        nil,
		send:        make(chan []byte, 256),
		id:          "welcome-client",
		connectedAt: time.Now(),
	}
	hub.Register(client)

	select {
	case raw := <-client.send:
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &msg))

		assert.Equal(t, string(events.MessageTypeConnection), msg["type"])
		data := msg["data"].(map[string]interface{})
		assert.Equal(t, "connected", data["status"])
		assert.Equal(t, "Connected to Parcel Pulse", data["message"])
		assert.Equal(t, "welcome-client", data["client_id"])

		_, err := time.Parse(time.RFC3339, msg["timestamp"].(string))
		assert.NoError(t, err)

		// No trace on the upgrade means no trace on the welcome
		_, hasTrace := msg["trace_id"]
		assert.False(t, hasTrace)
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for connection message")
	}
}

func TestBroadcastReportRefresh(t *testing.T) {
	tests := []struct {
		name      string
		broadcast func(hub *Hub)
		checkMsg  func(t *testing.T, msg map[string]interface{})
	}{
		{
			name: "fedex refresh carries carrier and session",
			broadcast: func(hub *Hub) {
				hub.BroadcastReportRefresh(domain.CarrierFedEx, "2a9f7c3e-9b1d-4a5e-8f21-6c0d4e8b9a11")
			},
			checkMsg: func(t *testing.T, msg map[string]interface{}) {
				assert.Equal(t, string(events.MessageTypeReportRefresh), msg["type"])
				assert.Equal(t, "fedex", msg["carrier"])
				assert.Equal(t, "2a9f7c3e-9b1d-4a5e-8f21-6c0d4e8b9a11", msg["session_id"])
			},
		},
		{
			name: "ups refresh",
			broadcast: func(hub *Hub) {
				hub.BroadcastReportRefresh(domain.CarrierUPS, "session-ups")
			},
			checkMsg: func(t *testing.T, msg map[string]interface{}) {
				assert.Equal(t, string(events.MessageTypeReportRefresh), msg["type"])
				assert.Equal(t, "ups", msg["carrier"])
				assert.Equal(t, "session-ups", msg["session_id"])
			},
		},
		{
			name: "refresh without trace omits trace_id",
			broadcast: func(hub *Hub) {
				hub.BroadcastReportRefresh(domain.CarrierFedEx, "session-1")
			},
			checkMsg: func(t *testing.T, msg map[string]interface{}) {
				_, hasTrace := msg["trace_id"]
				assert.False(t, hasTrace)
			},
		},
		{
			name: "refresh with trace carries trace_id",
			broadcast: func(hub *Hub) {
				hub.BroadcastReportRefreshWithTrace(domain.CarrierFedEx, "session-1", "trace-abc-123")
			},
			checkMsg: func(t *testing.T, msg map[string]interface{}) {
				assert.Equal(t, "trace-abc-123", msg["trace_id"])
			},
		},
		{
			name: "payload is flat, no nested data envelope",
			broadcast: func(hub *Hub) {
				hub.BroadcastReportRefresh(domain.CarrierUPS, "session-2")
			},
			checkMsg: func(t *testing.T, msg map[string]interface{}) {
				_, hasData := msg["data"]
				assert.False(t, hasData)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := NewHub(newTestLogger())
			hub.Start()
			defer hub.Stop()

			client := registerDrainedClient(t, hub)

			tt.broadcast(hub)

			select {
			case raw := <-client.send:
				var msg map[string]interface{}
				require.NoError(t, json.Unmarshal(raw, &msg))

				if timestamp, ok := msg["timestamp"]; ok {
					_, err := time.Parse(time.RFC3339, timestamp.(string))
					assert.NoError(t, err)
				}
				tt.checkMsg(t, msg)
			case <-time.After(1 * time.Second):
				t.Fatal("timeout waiting for broadcast message")
			}
		})
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub(newTestLogger())
	hub.Start()
	defer hub.Stop()

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = registerDrainedClient(t, hub)
	}
	assert.Equal(t, 3, hub.ClientCount())

	hub.BroadcastReportRefresh(domain.CarrierFedEx, "shared-session")

	for i, client := range clients {
		select {
		case raw := <-client.send:
			assert.Contains(t, string(raw), string(events.MessageTypeReportRefresh))
			assert.Contains(t, string(raw), "shared-session")
		case <-time.After(1 * time.Second):
			t.Fatalf("client %d: timeout waiting for message", i)
		}
	}
}

func TestHubClientDisconnectOnFullBuffer(t *testing.T) {
	hub := NewHub(newTestLogger())
	hub.Start()
	defer hub.Stop()

	// Buffer of one, never drained: the second broadcast cannot be queued
	client := &Client{
		hub:         hub,
		conn:        nil,
		send:        make(chan []byte, 1),
		id:          "slow-client",
		connectedAt: time.Now(),
	}
	hub.Register(client)
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 5; i++ {
		hub.BroadcastReportRefresh(domain.CarrierFedEx, "session-1")
	}

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())

	// The welcome frame fills the buffer, so the first refresh drops the
	// client; later refreshes see an empty hub.
	snap := hub.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.Messages.Dropped)
	assert.Equal(t, int64(0), snap.Connections.Active)
}

func TestHubUnregisterRemovesClient(t *testing.T) {
	hub := NewHub(newTestLogger())
	hub.Start()
	defer hub.Stop()

	client := registerDrainedClient(t, hub)
	assert.Equal(t, 1, hub.ClientCount())

	hub.unregister <- client
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubStop(t *testing.T) {
	hub := NewHub(newTestLogger())
	hub.Start()

	registerDrainedClient(t, hub)
	assert.Equal(t, 1, hub.ClientCount())

	hub.Stop()
	assert.Equal(t, 0, hub.ClientCount())

	// A second stop is a no-op
	hub.Stop()
}

func TestHubConcurrentBroadcasts(t *testing.T) {
	hub := NewHub(newTestLogger())
	hub.Start()
	defer hub.Stop()

	received := 0
	var mu sync.Mutex

	for i := 0; i < 5; i++ {
		client := registerDrainedClient(t, hub)
		go func(c *Client) {
			for range c.send {
				mu.Lock()
				received++
				mu.Unlock()
			}
		}(client)
	}

	broadcasts := 100
	var wg sync.WaitGroup
	for i := 0; i < broadcasts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.BroadcastReportRefresh(domain.CarrierUPS, "session-1")
		}()
	}

	wg.Wait()
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	assert.Greater(t, received, 0, "should have received messages")
	mu.Unlock()
}

func TestHubStats(t *testing.T) {
	hub := NewHub(newTestLogger())
	hub.Start()
	defer hub.Stop()

	client := registerDrainedClient(t, hub)

	hub.BroadcastReportRefresh(domain.CarrierFedEx, "session-1")
	select {
	case <-client.send:
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
	time.Sleep(50 * time.Millisecond)

	stats := hub.Stats()
	assert.Equal(t, 1, stats.ActiveClients)
	assert.Equal(t, int64(1), stats.TotalConnections)
	assert.Equal(t, int64(1), stats.FramesQueued)

	// The hub's own metrics see the same connection.
	assert.Equal(t, int64(1), hub.Metrics().Snapshot().Connections.Total)
}

func BenchmarkBroadcastReportRefresh(b *testing.B) {
	hub := NewHub(newTestLogger())
	hub.Start()
	defer hub.Stop()

	for i := 0; i < 10; i++ {
		client := &Client{
			hub:         hub,
			conn:        nil,
			send:        make(chan []byte, 256),
			connectedAt: time.Now(),
		}
		hub.Register(client)
		go func(c *Client) {
			for range c.send {
			}
		}(client)
	}
	time.Sleep(50 * time.Millisecond)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.BroadcastReportRefresh(domain.CarrierFedEx, "bench-session")
	}
}
