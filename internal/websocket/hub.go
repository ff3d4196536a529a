// Package websocket pushes live refresh events to connected browser pages.
// The hub fans out one domain event, report:refresh, whenever an upload or
// selection change mutates a carrier report; pages belonging to the session
// that changed re-fetch their view over HTTP.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"parcelcli/internal/infrastructure"
	"parcelcli/pkg/contracts/domain"
	"parcelcli/pkg/contracts/events"
)

// Hub owns the client set and the broadcast queue. All mutations of the
// client set happen on the Run goroutine, so the arms never race each other.
type Hub struct {
	clients map[*Client]bool

	// Marshaled frames waiting for fan-out.
	broadcast chan []byte

	register   chan *Client
	unregister chan *Client

	// mu guards clients and the counters below.
	mu sync.RWMutex

	logger *slog.Logger

	// Traffic counters for this hub instance.
	metrics *Metrics

	// OTel instruments, nil when the hub runs outside the server.
	business *infrastructure.BusinessMetrics

	totalConnections int64
	framesQueued     int64

	quit        chan struct{}
	running     bool
	metricsQuit chan struct{}
}

// HubStats is the hub-level view served by the stats endpoint. Frame-level
// traffic lives in Metrics; these are the hub's own counters.
type HubStats struct {
	ActiveClients    int   `json:"active_clients"`
	TotalConnections int64 `json:"total_connections"`
	FramesQueued     int64 `json:"frames_queued"`
	QueueLength      int   `json:"broadcast_queue"`
}

// NewHub creates a hub with its own metrics. Call Start to begin serving.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	return &Hub{
		clients:     make(map[*Client]bool),
		broadcast:   make(chan []byte),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		logger:      logger.With(slog.String("component", "websocket.hub")),
		metrics:     NewMetrics(),
		quit:        make(chan struct{}),
		metricsQuit: make(chan struct{}),
	}
}

// NewInstrumentedHub additionally reports connection and message counts
// through the shared OpenTelemetry instruments.
func NewInstrumentedHub(logger *slog.Logger, business *infrastructure.BusinessMetrics) *Hub {
	hub := NewHub(logger)
	hub.business = business
	return hub
}

// Start launches the event loop and the periodic metrics reporter.
// Calling Start on a running hub is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true

	go h.Run()
	go h.reportMetrics()
}

// Run is the hub's event loop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("Hub event loop stopped")
			return
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

// handleRegister adds the client and greets it so the page knows the socket
// is live before the first refresh event arrives.
func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.totalConnections++
	h.mu.Unlock()

	ctx := client.traceContext()
	h.logger.InfoContext(ctx, "Client registered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.String("session_id", client.sessionID),
		slog.String("remote_addr", client.remoteAddr))

	h.metrics.RecordConnection()
	infrastructure.RecordActiveConnectionChange(ctx, h.business, 1)

	welcome := events.WebSocketMessage{
		BaseMessage: events.BaseMessage{
			Type:      events.MessageTypeConnection,
			Timestamp: time.Now(),
			TraceID:   client.traceID,
		},
		Data: events.ConnectionStatus{
			Status:   "connected",
			Message:  "Connected to Parcel Pulse",
			ClientID: client.id,
		},
	}

	raw, err := json.Marshal(welcome)
	if err != nil {
		return
	}
	select {
	case client.send <- raw:
	default:
		h.logger.WarnContext(ctx, "Client buffer already full at welcome",
			slog.String("client_id", client.id))
	}
}

// handleUnregister forgets a client the read pump reported gone. Safe to
// call twice for the same client; only the first removal counts.
func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	ctx := client.traceContext()
	h.logger.InfoContext(ctx, "Client unregistered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.Duration("connection_duration", time.Since(client.connectedAt)))

	h.metrics.RecordDisconnection(time.Since(client.connectedAt))
	infrastructure.RecordActiveConnectionChange(ctx, h.business, -1)
}

// fanOut queues one frame on every connected client. The client set is
// copied first so no lock is held while queueing.
func (h *Hub) fanOut(message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	h.logger.Debug("Fanning out message",
		slog.Int("client_count", len(clients)),
		slog.Int("message_size", len(message)))

	delivered := 0
	for _, client := range clients {
		select {
		case client.send <- message:
			delivered++
		default:
			h.dropSlowClient(client)
		}
	}

	h.mu.Lock()
	h.framesQueued += int64(delivered)
	h.mu.Unlock()

	if dropped := len(clients) - delivered; dropped > 0 {
		h.logger.Warn("Dropped slow clients during fan-out",
			slog.Int("delivered", delivered),
			slog.Int("dropped", dropped))
	}

	infrastructure.RecordWebSocketMessages(context.Background(), h.business, "sent", int64(delivered))
}

// dropSlowClient removes a client whose send queue is full. A page that
// stopped reading would otherwise stall every other page's refresh.
func (h *Hub) dropSlowClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.mu.Unlock()

	ctx := client.traceContext()
	h.logger.WarnContext(ctx, "Client send buffer full, disconnecting",
		slog.String("client_id", client.id))

	h.metrics.RecordDrop()
	h.metrics.RecordDisconnection(time.Since(client.connectedAt))
	infrastructure.RecordActiveConnectionChange(ctx, h.business, -1)
}

// BroadcastReportRefresh notifies every connected page that a carrier report
// changed. Pages compare the session ID against their own cookie and re-fetch
// the view when it matches.
func (h *Hub) BroadcastReportRefresh(carrier domain.CarrierID, sessionID string) {
	h.BroadcastReportRefreshWithTrace(carrier, sessionID, "")
}

// BroadcastReportRefreshWithTrace carries the originating request's trace ID
// so a refresh observed in the browser can be tied back to the mutation that
// caused it.
func (h *Hub) BroadcastReportRefreshWithTrace(carrier domain.CarrierID, sessionID, traceID string) {
	h.broadcastEvent(events.ReportRefresh{
		BaseMessage: events.BaseMessage{
			Type:      events.MessageTypeReportRefresh,
			Timestamp: time.Now(),
			TraceID:   traceID,
		},
		Carrier:   string(carrier),
		SessionID: sessionID,
	})
}

// broadcastEvent marshals an event contract and queues it for fan-out.
func (h *Hub) broadcastEvent(event events.ReportRefresh) {
	raw, err := json.Marshal(event)
	if err != nil {
		ctx := context.Background()
		if event.TraceID != "" {
			ctx = infrastructure.WithTraceID(ctx, event.TraceID)
		}
		h.logger.ErrorContext(ctx, "Error marshaling message",
			slog.String("error", err.Error()),
			slog.String("message_type", string(event.Type)))
		return
	}

	h.broadcast <- raw
}

// Register hands a client to the event loop.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Metrics exposes the hub's traffic counters to the stats endpoint.
func (h *Hub) Metrics() *Metrics {
	return h.metrics
}

// Stats returns the hub-level counters.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return HubStats{
		ActiveClients:    len(h.clients),
		TotalConnections: h.totalConnections,
		FramesQueued:     h.framesQueued,
		QueueLength:      len(h.broadcast),
	}
}

// Stop shuts down the loops and disconnects every client. Safe to call
// more than once; only the first call does anything.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false

	close(h.quit)
	close(h.metricsQuit)

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// reportMetrics logs hub health every 30 seconds and samples the broadcast
// queue so pressure shows up in the stats endpoint between scrapes.
func (h *Hub) reportMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.metricsQuit:
			h.logger.Info("Hub metrics reporter stopped")
			return
		case <-ticker.C:
			s := h.Stats()
			h.metrics.RecordQueueDepth(int64(s.QueueLength))
			h.logger.Info("Hub metrics snapshot",
				slog.Int("active_clients", s.ActiveClients),
				slog.Int64("total_connections", s.TotalConnections),
				slog.Int64("frames_queued", s.FramesQueued),
				slog.Int("broadcast_queue", s.QueueLength))
		}
	}
}
