package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcelcli/pkg/contracts/domain"
	"parcelcli/pkg/contracts/events"
)

func TestClientConstants(t *testing.T) {
	assert.Equal(t, 10*time.Second, writeWait)
	assert.Equal(t, 60*time.Second, pongWait)
	assert.Equal(t, (pongWait*9)/10, pingPeriod)
	assert.Equal(t, 512, maxMessageSize)
	assert.Equal(t, 256, sendBuffer)
}

func TestNewClient(t *testing.T) {
	hub := NewHub(newTestLogger())
	mock := newMockConn()

	client := NewClient(hub, mock, newTestLogger())

	_, err := uuid.Parse(client.id)
	assert.NoError(t, err, "client id should be a uuid")
	assert.Equal(t, "127.0.0.1:8080", client.remoteAddr)
	assert.Equal(t, sendBuffer, cap(client.send))
	assert.False(t, client.connectedAt.IsZero())
}

func TestNewClient_NilLogger(t *testing.T) {
	hub := NewHub(newTestLogger())
	client := NewClient(hub, newMockConn(), nil)
	assert.NotNil(t, client.logger)
}

func TestWritePumpDeliversMessages(t *testing.T) {
	hub := NewHub(newTestLogger())
	mock := newMockConn()
	client := NewClient(hub, mock, newTestLogger())

	go client.WritePump()

	client.send <- []byte(`{"type":"report:refresh","carrier":"fedex"}`)
	client.send <- []byte(`{"type":"report:refresh","carrier":"ups"}`)
	time.Sleep(100 * time.Millisecond)

	close(client.send)
	time.Sleep(50 * time.Millisecond)

	written := mock.sentFrames()
	require.GreaterOrEqual(t, len(written), 3)

	assert.Equal(t, websocket.TextMessage, written[0].kind)
	assert.Contains(t, string(written[0].data), "fedex")
	assert.Equal(t, websocket.TextMessage, written[1].kind)
	assert.Contains(t, string(written[1].data), "ups")

	// Hub closing the channel ends the pump with a close frame
	assert.Equal(t, websocket.CloseMessage, written[len(written)-1].kind)

	// The pump feeds the hub's traffic counters as it writes
	snap := hub.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.Messages.Sent)
	assert.Greater(t, snap.Messages.BytesSent, int64(0))
}

func TestWritePumpStopsOnWriteError(t *testing.T) {
	hub := NewHub(newTestLogger())
	mock := newMockConn()
	mock.failWrites(assert.AnError)
	client := NewClient(hub, mock, newTestLogger())

	done := make(chan struct{})
	go func() {
		client.WritePump()
		close(done)
	}()

	client.send <- []byte(`{"type":"report:refresh"}`)

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("write pump did not stop after write error")
	}
	assert.True(t, mock.wasClosed())
	assert.Equal(t, int64(1), hub.Metrics().Snapshot().Errors["write"])
}

func TestReadPumpHeartbeatAndUnregister(t *testing.T) {
	hub := NewHub(newTestLogger())
	hub.Start()
	defer hub.Stop()

	mock := newMockConn()
	mock.queueRead(websocket.TextMessage, []byte(`{"type":"heartbeat"}`), nil)
	client := NewClient(hub, mock, newTestLogger())

	hub.Register(client)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, hub.ClientCount())

	// Pump consumes the heartbeat, then the scripted read error ends it
	client.ReadPump()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, hub.ClientCount())
	assert.True(t, mock.wasClosed())

	limit, deadline, pongSet := mock.readSetup()
	assert.Equal(t, int64(maxMessageSize), limit)
	assert.False(t, deadline.IsZero())
	assert.True(t, pongSet, "pong handler keeps the read deadline moving")

	assert.Equal(t, int64(1), hub.Metrics().Snapshot().Messages.Received)
}

func TestServeWS(t *testing.T) {
	hub := NewHub(newTestLogger())
	hub.Start()
	defer hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		ServeWS(hub, conn)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	// First frame is the connection welcome
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)

	var welcome map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &welcome))
	assert.Equal(t, string(events.MessageTypeConnection), welcome["type"])
	data := welcome["data"].(map[string]interface{})
	assert.Equal(t, "Connected to Parcel Pulse", data["message"])

	// A refresh broadcast reaches the page
	hub.BroadcastReportRefresh(domain.CarrierFedEx, "session-1")

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err = ws.ReadMessage()
	require.NoError(t, err)

	var refresh map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &refresh))
	assert.Equal(t, string(events.MessageTypeReportRefresh), refresh["type"])
	assert.Equal(t, "fedex", refresh["carrier"])
	assert.Equal(t, "session-1", refresh["session_id"])
}

func TestServeWSHeartbeatKeepsConnectionOpen(t *testing.T) {
	hub := NewHub(newTestLogger())
	hub.Start()
	defer hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		ServeWS(hub, conn)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	err = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`))
	assert.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	// Still writable after the heartbeat
	err = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`))
	assert.NoError(t, err)
}

func TestServeWSWithIdentity(t *testing.T) {
	hub := NewHub(newTestLogger())
	hub.Start()
	defer hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		ServeWSWithIdentity(hub, conn, "session-xyz", "trace-abc", newTestLogger())
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)

	var welcome map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &welcome))
	assert.Equal(t, string(events.MessageTypeConnection), welcome["type"])
	assert.Equal(t, "trace-abc", welcome["trace_id"])
}
