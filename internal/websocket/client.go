package websocket

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"parcelcli/internal/infrastructure"
)

const (
	// writeWait caps how long a single frame write may block.
	writeWait = 10 * time.Second

	// pongWait is how long a silent peer stays alive. The pong handler
	// extends it; pings go out at pingPeriod to prompt those pongs.
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// maxMessageSize bounds inbound frames. Pages only ever send the
	// heartbeat, so anything larger is a misbehaving peer.
	maxMessageSize = 512

	// sendBuffer is the per-client outbound queue. A page that falls this
	// far behind gets dropped by the hub instead of slowing everyone.
	sendBuffer = 256
)

// heartbeatFrame is the one payload pages send. It exists to keep proxies
// from idling out a quiet connection.
var heartbeatFrame = []byte(`{"type":"heartbeat"}`)

// Client owns one browser socket: the read pump watches for heartbeats and
// disconnects, the write pump drains the send queue the hub fills.
type Client struct {
	hub  *Hub
	conn Connection

	// send is filled by the hub and drained by WritePump only.
	send chan []byte

	id          string
	sessionID   string
	traceID     string
	remoteAddr  string
	connectedAt time.Time

	logger *slog.Logger

	// Per-client traffic, logged when the pumps stop.
	messagesSent     int64
	messagesReceived int64
	bytesSent        int64
	bytesReceived    int64
}

// NewClient wires an already-upgraded connection to the hub. Pumps start
// when the caller says so.
func NewClient(hub *Hub, conn Connection, logger *slog.Logger) *Client {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	id := uuid.New().String()
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		id:          id,
		remoteAddr:  conn.RemoteAddr(),
		connectedAt: time.Now(),
		logger: logger.With(
			slog.String("component", "websocket.client"),
			slog.String("client_id", id)),
	}
}

// NewClientWithIdentity tags the client with the browser session that opened
// the socket and the trace ID of the upgrade request.
func NewClientWithIdentity(hub *Hub, conn Connection, sessionID, traceID string, logger *slog.Logger) *Client {
	client := NewClient(hub, conn, logger)
	client.sessionID = sessionID
	client.traceID = traceID
	if sessionID != "" {
		client.logger = client.logger.With(slog.String("session_id", sessionID))
	}
	if traceID != "" {
		client.logger = client.logger.With(slog.String("trace_id", traceID))
	}
	return client
}

// traceContext carries the upgrade request's trace ID so pump and hub log
// lines correlate back to the request that opened the socket.
func (c *Client) traceContext() context.Context {
	if c.traceID == "" {
		return context.Background()
	}
	return infrastructure.WithTraceID(context.Background(), c.traceID)
}

// ReadPump consumes inbound frames until the peer goes away, then tells the
// hub to forget the client. Must run on its own goroutine, one per client.
func (c *Client) ReadPump() {
	defer func() {
		c.logger.InfoContext(c.traceContext(), "WebSocket client disconnected",
			slog.Duration("connection_duration", time.Since(c.connectedAt)),
			slog.Int64("messages_received", c.messagesReceived),
			slog.Int64("bytes_received", c.bytesReceived))
		c.hub.unregister <- c
		c.conn.Close()
	}()

	refresh := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	c.conn.SetReadLimit(maxMessageSize)
	refresh()
	c.conn.SetPongHandler(func(string) error { return refresh() })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.ErrorContext(c.traceContext(), "Unexpected WebSocket close",
					slog.String("error", err.Error()))
				c.hub.metrics.RecordError("read")
			}
			return
		}

		message = bytes.TrimSpace(message)
		c.messagesReceived++
		c.bytesReceived += int64(len(message))
		c.hub.metrics.RecordReceived(int64(len(message)))

		// Heartbeats already did their job through the pong handler and the
		// read deadline. Anything else is ignored: mutations go over HTTP.
		if bytes.Equal(message, heartbeatFrame) {
			c.logger.Debug("Heartbeat received")
		}
	}
}

// WritePump moves frames from the send queue to the socket and keeps the
// connection alive with pings. Must run on its own goroutine, one per client.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.InfoContext(c.traceContext(), "WebSocket write pump stopped",
			slog.Int64("messages_sent", c.messagesSent),
			slog.Int64("bytes_sent", c.bytesSent))
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the queue; tell the peer before hanging up.
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if c.writeFrame(message) != nil {
				return
			}

			// Flush whatever the hub queued behind the first frame before
			// going back to sleep.
			for n := len(c.send); n > 0; n-- {
				select {
				case queued := <-c.send:
					if c.writeFrame(queued) != nil {
						return
					}
				default:
				}
			}

		case <-ticker.C:
			if err := c.ping(); err != nil {
				c.logger.DebugContext(c.traceContext(), "Ping failed, stopping write pump",
					slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (c *Client) ping() error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// writeFrame sends one text frame and keeps the traffic counters current.
func (c *Client) writeFrame(message []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.ErrorContext(c.traceContext(), "Error writing to WebSocket",
			slog.String("error", err.Error()))
		c.hub.metrics.RecordError("write")
		return err
	}

	c.messagesSent++
	c.bytesSent += int64(len(message))
	c.hub.metrics.RecordSent(int64(len(message)))
	return nil
}

// ServeWS registers an upgraded connection with the hub and starts its pumps.
func ServeWS(hub *Hub, conn *websocket.Conn) {
	startClient(NewClient(hub, wrapConn(conn), nil))
}

// ServeWSWithIdentity is ServeWS for upgrade handlers that already know the
// browser session and request trace.
func ServeWSWithIdentity(hub *Hub, conn *websocket.Conn, sessionID, traceID string, logger *slog.Logger) {
	startClient(NewClientWithIdentity(hub, wrapConn(conn), sessionID, traceID, logger))
}

func startClient(client *Client) {
	client.hub.Register(client)
	go client.WritePump()
	go client.ReadPump()
}
