package websocket

import (
	"errors"
	"sync"
	"time"
)

// mockConn is a scriptable Connection for pump tests. Reads replay queued
// frames in order; writes are recorded for assertions.
type mockConn struct {
	mu sync.Mutex

	reads   []mockFrame
	readPos int
	written []mockFrame

	writeErr error
	closed   bool

	readLimit     int64
	readDeadline  time.Time
	writeDeadline time.Time
	pongHandler   func(string) error

	addr string
}

type mockFrame struct {
	kind int
	data []byte
	err  error
}

func newMockConn() *mockConn {
	return &mockConn{addr: "127.0.0.1:8080"}
}

// queueRead appends a frame for ReadMessage to replay. Once the queue runs
// out, reads fail, which is how a test ends the read pump.
func (m *mockConn) queueRead(kind int, data []byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads = append(m.reads, mockFrame{kind: kind, data: data, err: err})
}

// failWrites makes every subsequent WriteMessage return err.
func (m *mockConn) failWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

func (m *mockConn) sentFrames() []mockFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockFrame, len(m.written))
	copy(out, m.written)
	return out
}

func (m *mockConn) wasClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// readSetup reports what the read pump configured on the connection.
func (m *mockConn) readSetup() (limit int64, deadline time.Time, pongSet bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readLimit, m.readDeadline, m.pongHandler != nil
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, nil, errors.New("connection closed")
	}
	if m.readPos < len(m.reads) {
		frame := m.reads[m.readPos]
		m.readPos++
		return frame.kind, frame.data, frame.err
	}
	return 0, nil, errors.New("no more frames")
}

func (m *mockConn) WriteMessage(kind int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("connection closed")
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.written = append(m.written, mockFrame{kind: kind, data: data})
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readDeadline = t
	return nil
}

func (m *mockConn) SetWriteDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeDeadline = t
	return nil
}

func (m *mockConn) SetReadLimit(limit int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readLimit = limit
}

func (m *mockConn) SetPongHandler(h func(string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pongHandler = h
}

func (m *mockConn) RemoteAddr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}
