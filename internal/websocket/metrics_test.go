package websocket

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsZeroSnapshot(t *testing.T) {
	snap := NewMetrics().Snapshot()

	assert.Zero(t, snap.Connections.Total)
	assert.Zero(t, snap.Connections.AvgDurationMs)
	assert.Zero(t, snap.Messages.AvgSize, "no traffic means no average")
	assert.NotNil(t, snap.Errors)
	assert.GreaterOrEqual(t, snap.Uptime, 0.0)
}

func TestMetricsConnectionAccounting(t *testing.T) {
	m := NewMetrics()

	m.RecordConnection()
	m.RecordConnection()
	m.RecordConnection()
	m.RecordDisconnection(2 * time.Minute)

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.Connections.Total)
	assert.Equal(t, int64(2), snap.Connections.Active)
	assert.Equal(t, int64(3), snap.Connections.Peak)
	assert.Equal(t, int64(120000), snap.Connections.AvgDurationMs)
}

func TestMetricsLifetimeWindow(t *testing.T) {
	m := NewMetrics()

	// Fill the window with short lifetimes, then push them all out with
	// long ones. The average must follow the window, not history.
	for i := 0; i < lifetimeWindow; i++ {
		m.RecordConnection()
		m.RecordDisconnection(time.Second)
	}
	for i := 0; i < lifetimeWindow; i++ {
		m.RecordConnection()
		m.RecordDisconnection(time.Minute)
	}

	snap := m.Snapshot()
	assert.Equal(t, int64(60000), snap.Connections.AvgDurationMs)
}

func TestMetricsTraffic(t *testing.T) {
	m := NewMetrics()

	// Two refresh frames out, one heartbeat in.
	m.RecordSent(90)
	m.RecordSent(110)
	m.RecordReceived(22)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Messages.Sent)
	assert.Equal(t, int64(1), snap.Messages.Received)
	assert.Equal(t, int64(200), snap.Messages.BytesSent)
	assert.Equal(t, int64(22), snap.Messages.BytesReceived)
	assert.Equal(t, int64(74), snap.Messages.AvgSize)
}

func TestMetricsErrorsByKind(t *testing.T) {
	m := NewMetrics()

	m.RecordError("read")
	m.RecordError("write")
	m.RecordError("read")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Errors["read"])
	assert.Equal(t, int64(1), snap.Errors["write"])
}

func TestMetricsQueueDepth(t *testing.T) {
	m := NewMetrics()

	m.RecordQueueDepth(10)
	assert.Equal(t, int64(10), m.Snapshot().Queue.AvgDepth, "first sample seeds the average")

	m.RecordQueueDepth(20)
	m.RecordQueueDepth(5)

	snap := m.Snapshot()
	assert.Equal(t, int64(20), snap.Queue.MaxDepth)
	assert.Less(t, snap.Queue.AvgDepth, int64(20), "average decays, max sticks")
}

func TestMetricsDrops(t *testing.T) {
	m := NewMetrics()

	m.RecordDrop()
	m.RecordDrop()

	assert.Equal(t, int64(2), m.Snapshot().Messages.Dropped)
}

func TestSnapshotIsDetached(t *testing.T) {
	m := NewMetrics()
	m.RecordError("read")

	snap := m.Snapshot()
	snap.Errors["read"] = 99

	assert.Equal(t, int64(1), m.Snapshot().Errors["read"],
		"mutating a snapshot must not leak back into the counters")
}

func TestSnapshotJSONShape(t *testing.T) {
	raw, err := json.Marshal(NewMetrics().Snapshot())
	require.NoError(t, err)

	// The stats endpoint serves this verbatim, so the keys are a contract.
	for _, key := range []string{
		"connections", "messages", "queue", "errors", "uptime_seconds",
		"avg_duration_ms", "bytes_sent", "bytes_received", "avg_size",
	} {
		assert.Contains(t, string(raw), `"`+key+`"`)
	}
}

func TestMetricsConcurrency(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	const workers = 8
	const rounds = 200

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				m.RecordConnection()
				m.RecordSent(100)
				m.RecordReceived(20)
				m.RecordError("write")
				m.RecordDrop()
				m.RecordQueueDepth(int64(j % 7))
				m.RecordDisconnection(time.Second)
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.Equal(t, int64(workers*rounds), snap.Connections.Total)
	assert.Equal(t, int64(0), snap.Connections.Active)
	assert.Equal(t, int64(workers*rounds), snap.Messages.Sent)
	assert.Equal(t, int64(workers*rounds), snap.Messages.Received)
	assert.Equal(t, int64(workers*rounds), snap.Messages.Dropped)
	assert.Equal(t, int64(workers*rounds), snap.Errors["write"])
}
