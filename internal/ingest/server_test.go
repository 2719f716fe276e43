package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetpulse/internal/alerts"
	"fleetpulse/internal/models"
)

type storedPoint struct {
	measurement string
	tags        map[string]string
	fields      map[string]float64
	timestamp   time.Time
}

type fakeStore struct {
	mu     sync.Mutex
	points []storedPoint
	err    error
}

func (f *fakeStore) WritePoint(_ context.Context, measurement string, tags map[string]string, fields map[string]float64, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.points = append(f.points, storedPoint{measurement, tags, fields, ts})
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points)
}

type cacheEntry struct {
	value any
	ttl   time.Duration
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	err     error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]cacheEntry)}
}

func (f *fakeCache) SetJSON(_ context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries[key] = cacheEntry{value: value, ttl: ttl}
	return nil
}

func (f *fakeCache) get(key string) (cacheEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key]
	return e, ok
}

func (f *fakeCache) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type fakeHub struct {
	mu       sync.Mutex
	messages [][]byte
}

func (f *fakeHub) Broadcast(message []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
}

func (f *fakeHub) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeHub) updates(t *testing.T) []models.MetricUpdate {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.MetricUpdate, 0, len(f.messages))
	for _, raw := range f.messages {
		var u models.MetricUpdate
		require.NoError(t, json.Unmarshal(raw, &u))
		out = append(out, u)
	}
	return out
}

func telemetryJSON(t *testing.T, robotID string, cpu, battery float64) []byte {
	t.Helper()
	p := models.TelemetryPacket{
		Version:     1,
		RobotID:     robotID,
		WarehouseID: "wh-east",
		Timestamp:   time.Now().UnixNano(),
		Sequence:    1,
		System: models.SystemMetrics{
			CPUPercent:     cpu,
			MemoryPercent:  40,
			BatteryPercent: battery,
			Temperature:    36,
		},
		Network: models.NetworkMetrics{
			LatencyMs:         8,
			PacketLossPercent: 0,
			BandwidthMbps:     100,
			InterfaceType:     "wifi",
		},
		ROS2:     []models.ROS2TopicMetric{},
		Position: models.Position{X: 1, Y: 2, Z: 0},
		Status:   models.RobotStatus{State: "working", TaskProgress: 10},
	}
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return raw
}

func testServer(t *testing.T, store *fakeStore, cache *fakeCache, h *fakeHub) *Server {
	t.Helper()
	engine := alerts.NewEngine(alerts.DefaultRules(), 30*time.Second)
	s := NewServer(Config{
		Port:      0,
		Workers:   4,
		QueueSize: 64,
		CacheTTL:  10 * time.Second,
	}, store, cache, h, engine, nil)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func sendDatagram(t *testing.T, addr *net.UDPAddr, payload []byte) {
	t.Helper()
	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: addr.Port})
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(payload)
	require.NoError(t, err)
}

func TestPipelineEndToEnd(t *testing.T) {
	store := &fakeStore{}
	cache := newFakeCache()
	h := &fakeHub{}
	s := testServer(t, store, cache, h)

	sendDatagram(t, s.Addr(), telemetryJSON(t, "amr-001", 95, 50))

	require.Eventually(t, func() bool { return h.count() == 1 },
		2*time.Second, 5*time.Millisecond)

	update := h.updates(t)[0]
	assert.Equal(t, "metric_update", update.Type)
	assert.Equal(t, "amr-001", update.RobotID)
	assert.Equal(t, "wh-east", update.WarehouseID)
	require.Len(t, update.Alerts, 1)
	assert.Equal(t, "high_cpu", update.Alerts[0].AlertType)
	assert.Equal(t, "warning", update.Alerts[0].Severity)

	// Second identical packet inside the cooldown window: update still
	// flows, but with no alerts.
	sendDatagram(t, s.Addr(), telemetryJSON(t, "amr-001", 95, 50))
	require.Eventually(t, func() bool { return h.count() == 2 },
		2*time.Second, 5*time.Millisecond)
	assert.Empty(t, h.updates(t)[1].Alerts)

	assert.Equal(t, uint64(2), s.Received())
	assert.Equal(t, 2, store.count())

	entry, ok := cache.get(SnapshotKey("amr-001"))
	require.True(t, ok)
	snapshot := entry.value.(models.RobotSnapshot)
	assert.Equal(t, "amr-001", snapshot.RobotID)
	assert.InDelta(t, 95, snapshot.System.CPUPercent, 0.001)
	assert.Equal(t, 10*time.Second, entry.ttl)
}

func TestTimeSeriesPointContent(t *testing.T) {
	store := &fakeStore{}
	cache := newFakeCache()
	h := &fakeHub{}
	s := testServer(t, store, cache, h)

	payload := telemetryJSON(t, "amr-007", 33, 77)
	var p models.TelemetryPacket
	require.NoError(t, json.Unmarshal(payload, &p))

	require.True(t, s.Submit(payload))
	require.Eventually(t, func() bool { return store.count() == 1 },
		2*time.Second, 5*time.Millisecond)

	store.mu.Lock()
	point := store.points[0]
	store.mu.Unlock()
	assert.Equal(t, "system_metrics", point.measurement)
	assert.Equal(t, map[string]string{"robot_id": "amr-007", "warehouse_id": "wh-east"}, point.tags)
	assert.InDelta(t, 33, point.fields["cpu_percent"], 0.001)
	assert.InDelta(t, 77, point.fields["battery_percent"], 0.001)
	assert.Equal(t, time.Unix(0, p.Timestamp).UTC(), point.timestamp.UTC())
}

func TestMalformedPacketCountedAndDropped(t *testing.T) {
	store := &fakeStore{}
	cache := newFakeCache()
	h := &fakeHub{}
	s := testServer(t, store, cache, h)

	sendDatagram(t, s.Addr(), []byte("not telemetry"))

	require.Eventually(t, func() bool { return s.Failed() == 1 },
		2*time.Second, 5*time.Millisecond)
	assert.Zero(t, s.Received())
	assert.Zero(t, store.count())
	assert.Zero(t, cache.count())
	assert.Zero(t, h.count())
}

func TestPersistFailureDoesNotSuppressBroadcast(t *testing.T) {
	store := &fakeStore{err: errors.New("clickhouse down")}
	cache := newFakeCache()
	cache.err = errors.New("redis down")
	h := &fakeHub{}
	s := testServer(t, store, cache, h)

	require.True(t, s.Submit(telemetryJSON(t, "amr-001", 10, 80)))

	require.Eventually(t, func() bool { return h.count() == 1 },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), s.Received())
}

func TestQueueFullDropsAndCounts(t *testing.T) {
	engine := alerts.NewEngine(alerts.DefaultRules(), 30*time.Second)
	// Never started, so nothing drains the queue.
	s := NewServer(Config{QueueSize: 1}, &fakeStore{}, newFakeCache(), &fakeHub{}, engine, nil)

	assert.True(t, s.Submit([]byte("a")))
	assert.False(t, s.Submit([]byte("b")))
	assert.False(t, s.Submit([]byte("c")))
	assert.Equal(t, uint64(2), s.Dropped())
}

func TestStartStopIdempotent(t *testing.T) {
	engine := alerts.NewEngine(alerts.DefaultRules(), 30*time.Second)
	s := NewServer(Config{Port: 0}, &fakeStore{}, newFakeCache(), &fakeHub{}, engine, nil)

	require.NoError(t, s.Start())
	port := s.Addr().Port
	require.NoError(t, s.Start())
	assert.Equal(t, port, s.Addr().Port, "second Start must not rebind")

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())

	// The port is released after Stop.
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	require.NoError(t, err)
	_ = conn.Close()
}

func TestSubmitAfterStopRefused(t *testing.T) {
	engine := alerts.NewEngine(alerts.DefaultRules(), 30*time.Second)
	s := NewServer(Config{Port: 0}, &fakeStore{}, newFakeCache(), &fakeHub{}, engine, nil)
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())

	assert.False(t, s.Submit(telemetryJSON(t, "amr-001", 10, 80)))
}

func TestStopDrainsQueueIntoDroppedCount(t *testing.T) {
	engine := alerts.NewEngine(alerts.DefaultRules(), 30*time.Second)
	// Never started, so the queued payloads are still pending at Stop.
	s := NewServer(Config{QueueSize: 8}, &fakeStore{}, newFakeCache(), &fakeHub{}, engine, nil)

	for i := 0; i < 3; i++ {
		require.True(t, s.Submit(telemetryJSON(t, "amr-001", 10, 80)))
	}
	require.NoError(t, s.Stop())

	assert.Equal(t, uint64(3), s.Dropped(), "queued payloads must be accounted for at shutdown")
	assert.Zero(t, s.Received())
	assert.False(t, s.Submit(telemetryJSON(t, "amr-001", 10, 80)), "stopped server must refuse new payloads")
	assert.Equal(t, uint64(3), s.Dropped(), "refused submits after Stop are not re-counted")
}

func TestConcurrentDistinctRobots(t *testing.T) {
	const robots = 1000

	store := &fakeStore{}
	cache := newFakeCache()
	h := &fakeHub{}
	engine := alerts.NewEngine(alerts.DefaultRules(), 30*time.Second)
	s := NewServer(Config{
		Port:      0,
		Workers:   8,
		QueueSize: 2 * robots,
		CacheTTL:  10 * time.Second,
	}, store, cache, h, engine, nil)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })

	var wg sync.WaitGroup
	for i := 0; i < robots; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("amr-%04d", i)
			// battery 15 fires low_battery for every robot
			assert.True(t, s.Submit(telemetryJSON(t, id, 10, 15)))
		}(i)
	}
	wg.Wait()

	require.Eventually(t, func() bool { return h.count() == robots },
		10*time.Second, 10*time.Millisecond)
	assert.Equal(t, robots, cache.count())
	assert.Equal(t, robots, store.count())
	assert.Equal(t, uint64(robots), s.Received())

	// No cross-attribution: each update carries exactly one low_battery
	// alert for its own robot.
	for _, update := range h.updates(t) {
		require.Len(t, update.Alerts, 1, "robot %s", update.RobotID)
		assert.Equal(t, "low_battery", update.Alerts[0].AlertType)
		assert.Equal(t, update.RobotID, update.Alerts[0].RobotID)
	}
}
