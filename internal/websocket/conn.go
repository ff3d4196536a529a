package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// Connection is the slice of gorilla/websocket's Conn that the client pumps
// touch. Tests substitute a scriptable fake.
type Connection interface {
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)

	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error

	RemoteAddr() string
	Close() error
}

// gorillaConn adapts *websocket.Conn to Connection. Embedding covers every
// method except RemoteAddr, which flattens the net.Addr to a string for
// logging.
type gorillaConn struct {
	*websocket.Conn
}

func wrapConn(conn *websocket.Conn) Connection {
	return gorillaConn{conn}
}

func (g gorillaConn) RemoteAddr() string {
	if addr := g.Conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
