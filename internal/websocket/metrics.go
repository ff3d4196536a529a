package websocket

import (
	"sync"
	"time"
)

// lifetimeWindow bounds the sample set behind the average connection
// lifetime. Pages reconnect on every navigation, so an all-time average
// would drift toward whatever the oldest deploy saw.
const lifetimeWindow = 100

// Metrics counts socket traffic for one hub. The OTel instruments cover
// dashboards; this is the cheap in-process view the stats endpoint serves
// without a Prometheus scrape in the loop.
type Metrics struct {
	mu sync.RWMutex

	startedAt time.Time

	totalConns  int64
	activeConns int64
	peakConns   int64

	sent          int64
	received      int64
	bytesSent     int64
	bytesReceived int64
	dropped       int64

	avgDepth int64
	maxDepth int64

	errorsByKind map[string]int64

	lifetimes   []time.Duration
	lifetimeSum time.Duration
}

// Snapshot is the point-in-time view of a Metrics, shaped for JSON.
type Snapshot struct {
	Connections ConnectionStats  `json:"connections"`
	Messages    MessageStats     `json:"messages"`
	Queue       QueueStats       `json:"queue"`
	Errors      map[string]int64 `json:"errors"`
	Uptime      float64          `json:"uptime_seconds"`
}

// ConnectionStats summarizes client connection churn.
type ConnectionStats struct {
	Total         int64 `json:"total"`
	Active        int64 `json:"active"`
	Peak          int64 `json:"peak"`
	AvgDurationMs int64 `json:"avg_duration_ms"`
}

// MessageStats summarizes frame traffic in both directions.
type MessageStats struct {
	Sent          int64 `json:"sent"`
	Received      int64 `json:"received"`
	BytesSent     int64 `json:"bytes_sent"`
	BytesReceived int64 `json:"bytes_received"`
	Dropped       int64 `json:"dropped"`
	AvgSize       int64 `json:"avg_size"`
}

// QueueStats summarizes broadcast queue pressure.
type QueueStats struct {
	AvgDepth int64 `json:"avg_depth"`
	MaxDepth int64 `json:"max_depth"`
}

// NewMetrics returns a zeroed Metrics whose uptime clock starts now.
func NewMetrics() *Metrics {
	return &Metrics{
		startedAt:    time.Now(),
		errorsByKind: make(map[string]int64),
		lifetimes:    make([]time.Duration, 0, lifetimeWindow),
	}
}

// RecordConnection counts a client registration.
func (m *Metrics) RecordConnection() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalConns++
	m.activeConns++
	if m.activeConns > m.peakConns {
		m.peakConns = m.activeConns
	}
}

// RecordDisconnection counts a client leaving and folds its lifetime into
// the sliding window.
func (m *Metrics) RecordDisconnection(lifetime time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.activeConns--

	m.lifetimes = append(m.lifetimes, lifetime)
	m.lifetimeSum += lifetime
	if len(m.lifetimes) > lifetimeWindow {
		m.lifetimeSum -= m.lifetimes[0]
		m.lifetimes = m.lifetimes[1:]
	}
}

// RecordSent counts one frame written to a client.
func (m *Metrics) RecordSent(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent++
	m.bytesSent += bytes
}

// RecordReceived counts one frame read from a client.
func (m *Metrics) RecordReceived(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.received++
	m.bytesReceived += bytes
}

// RecordError counts a failure by kind, "read" or "write" from the pumps.
func (m *Metrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errorsByKind[kind]++
}

// RecordQueueDepth samples the broadcast queue length.
func (m *Metrics) RecordQueueDepth(depth int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if depth > m.maxDepth {
		m.maxDepth = depth
	}

	// Exponential moving average, seeded with the first sample.
	if m.avgDepth == 0 {
		m.avgDepth = depth
	} else {
		m.avgDepth = (m.avgDepth*9 + depth) / 10
	}
}

// RecordDrop counts a frame discarded because a client stopped reading.
func (m *Metrics) RecordDrop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dropped++
}

// Snapshot assembles the current counters. The errors map is copied, so
// callers may hold the result as long as they like.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var avgLifetime time.Duration
	if len(m.lifetimes) > 0 {
		avgLifetime = m.lifetimeSum / time.Duration(len(m.lifetimes))
	}

	var avgSize int64
	if frames := m.sent + m.received; frames > 0 {
		avgSize = (m.bytesSent + m.bytesReceived) / frames
	}

	errs := make(map[string]int64, len(m.errorsByKind))
	for kind, n := range m.errorsByKind {
		errs[kind] = n
	}

	return Snapshot{
		Connections: ConnectionStats{
			Total:         m.totalConns,
			Active:        m.activeConns,
			Peak:          m.peakConns,
			AvgDurationMs: avgLifetime.Milliseconds(),
		},
		Messages: MessageStats{
			Sent:          m.sent,
			Received:      m.received,
			BytesSent:     m.bytesSent,
			BytesReceived: m.bytesReceived,
			Dropped:       m.dropped,
			AvgSize:       avgSize,
		},
		Queue: QueueStats{
			AvgDepth: m.avgDepth,
			MaxDepth: m.maxDepth,
		},
		Errors: errs,
		Uptime: time.Since(m.startedAt).Seconds(),
	}
}
