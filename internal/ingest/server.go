// Package ingest owns the telemetry intake path: it listens for UDP
// datagrams, decodes them, persists metrics and snapshots, evaluates
// alerts and hands the resulting update to the broadcast hub. Every
// packet runs its own pipeline; packets are never ordered or buffered
// relative to each other.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"fleetpulse/internal/alerts"
	"fleetpulse/internal/codec"
	"fleetpulse/internal/models"
)

// TimeSeriesStore receives one metrics row per packet.
type TimeSeriesStore interface {
	WritePoint(ctx context.Context, measurement string, tags map[string]string, fields map[string]float64, timestamp time.Time) error
}

// SnapshotCache receives the latest full state per robot, with a TTL.
type SnapshotCache interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Broadcaster fans an update message out to live subscribers.
type Broadcaster interface {
	Broadcast(message []byte)
}

// Config holds the ingestion server settings.
type Config struct {
	Port          int
	Workers       int
	QueueSize     int
	CacheTTL      time.Duration
	StatsInterval time.Duration
}

// Server drives the per-packet pipeline. Datagrams are pulled off the
// socket by a single read loop and handed to a fixed pool of workers
// over a bounded queue; when the queue is full new datagrams are dropped
// and counted instead of piling up goroutines.
type Server struct {
	cfg     Config
	store   TimeSeriesStore
	cache   SnapshotCache
	hub     Broadcaster
	engine  *alerts.Engine
	metrics *Metrics

	queue chan []byte
	done  chan struct{}

	mu      sync.Mutex
	running bool
	stopped bool
	conn    *net.UDPConn
	wg      sync.WaitGroup

	received atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

// NewServer wires the pipeline against its collaborators. metrics may be
// nil.
func NewServer(cfg Config, store TimeSeriesStore, cache SnapshotCache, hub Broadcaster, engine *alerts.Engine, metrics *Metrics) *Server {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Second
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = 30 * time.Second
	}
	return &Server{
		cfg:     cfg,
		store:   store,
		cache:   cache,
		hub:     hub,
		engine:  engine,
		metrics: metrics,
		queue:   make(chan []byte, cfg.QueueSize),
		done:    make(chan struct{}),
	}
}

// Start binds the UDP socket and launches the read loop, the worker pool
// and the stats reporter. Calling Start on a running server is a no-op.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.stopped {
		return nil
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: s.cfg.Port})
	if err != nil {
		return fmt.Errorf("failed to bind UDP port %d: %w", s.cfg.Port, err)
	}
	s.conn = conn
	s.running = true

	s.wg.Add(2 + s.cfg.Workers)
	go s.readLoop()
	go s.reportStats()
	for i := 0; i < s.cfg.Workers; i++ {
		go s.worker()
	}

	log.Printf("UDP ingestion server listening on %s (%d workers, queue %d)",
		conn.LocalAddr(), s.cfg.Workers, s.cfg.QueueSize)
	return nil
}

// Stop closes the socket so no new datagrams are accepted and waits for
// the workers. Packets already being processed run to completion; the
// persistence writes are idempotent, so finishing them is safe. Payloads
// still sitting in the queue when the workers exit are discarded and
// counted as dropped. Calling Stop on a stopped server is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	wasRunning := s.running
	s.running = false
	s.stopped = true
	close(s.done)
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if wasRunning {
		s.wg.Wait()
	}
	s.drainQueue()
	if wasRunning {
		log.Println("UDP ingestion server stopped")
	}
	return nil
}

// drainQueue empties whatever the workers left behind and accounts for
// it, so shutdown never loses datagrams silently.
func (s *Server) drainQueue() {
	drained := 0
	for {
		select {
		case <-s.queue:
			drained++
		default:
			if drained > 0 {
				s.dropped.Add(uint64(drained))
				if s.metrics != nil {
					s.metrics.PacketsDropped.Add(float64(drained))
				}
				log.Printf("Dropped %d queued datagrams at shutdown", drained)
			}
			return
		}
	}
}

// Addr returns the bound UDP address, or nil before Start.
func (s *Server) Addr() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Received reports packets fully processed.
func (s *Server) Received() uint64 { return s.received.Load() }

// Failed reports packets rejected at the decode boundary.
func (s *Server) Failed() uint64 { return s.failed.Load() }

// Dropped reports datagrams discarded because the queue was full.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

// Submit enqueues one raw payload for processing. It never blocks: when
// the queue is full the payload is dropped and counted. Used by the UDP
// read loop and by alternate sources such as the MQTT bridge.
func (s *Server) Submit(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.queue <- payload:
		return true
	default:
		s.dropped.Add(1)
		if s.metrics != nil {
			s.metrics.PacketsDropped.Inc()
		}
		return false
	}
}

func (s *Server) readLoop() {
	defer s.wg.Done()

	buf := make([]byte, 65535)
	for {
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("UDP read error: %v", err)
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		s.Submit(payload)
	}
}

func (s *Server) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case payload := <-s.queue:
			s.processPacket(payload)
		}
	}
}

// processPacket runs one pipeline pass: decode, then persistence and
// alert evaluation concurrently, then broadcast. Failures past the
// decode boundary are logged and counted but never keep the update from
// reaching subscribers.
func (s *Server) processPacket(payload []byte) {
	packet, err := codec.Decode(payload)
	if err != nil {
		s.failed.Add(1)
		if s.metrics != nil {
			s.metrics.PacketsFailed.Inc()
		}
		log.Printf("Dropping packet: %v", err)
		return
	}

	var fired []models.Alert
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.persist(packet)
	}()
	go func() {
		defer wg.Done()
		fired = s.engine.Evaluate(packet, time.Now())
	}()
	wg.Wait()

	s.received.Add(1)
	if s.metrics != nil {
		s.metrics.PacketsReceived.Inc()
		s.metrics.AlertsEmitted.Add(float64(len(fired)))
	}

	s.broadcastUpdate(packet, fired)
}

// persist fans the packet out to both stores. The writes are independent
// and neither failure aborts the other.
func (s *Server) persist(packet *models.TelemetryPacket) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		err := s.store.WritePoint(context.Background(), "system_metrics",
			map[string]string{
				"robot_id":     packet.RobotID,
				"warehouse_id": packet.WarehouseID,
			},
			map[string]float64{
				"cpu_percent":     packet.System.CPUPercent,
				"memory_percent":  packet.System.MemoryPercent,
				"battery_percent": packet.System.BatteryPercent,
				"temperature":     packet.System.Temperature,
			},
			time.Unix(0, packet.Timestamp),
		)
		if err != nil {
			log.Printf("Error storing metrics for %s: %v", packet.RobotID, err)
			if s.metrics != nil {
				s.metrics.PersistFailures.WithLabelValues("timeseries").Inc()
			}
		}
	}()

	go func() {
		defer wg.Done()
		snapshot := models.RobotSnapshot{
			RobotID:     packet.RobotID,
			WarehouseID: packet.WarehouseID,
			Timestamp:   packet.Timestamp,
			System:      packet.System,
			Network:     packet.Network,
			Position:    packet.Position,
			Status:      packet.Status,
		}
		key := SnapshotKey(packet.RobotID)
		if err := s.cache.SetJSON(context.Background(), key, snapshot, s.cfg.CacheTTL); err != nil {
			log.Printf("Error updating cache for %s: %v", packet.RobotID, err)
			if s.metrics != nil {
				s.metrics.PersistFailures.WithLabelValues("snapshot").Inc()
			}
		}
	}()

	wg.Wait()
}

func (s *Server) broadcastUpdate(packet *models.TelemetryPacket, fired []models.Alert) {
	if fired == nil {
		fired = []models.Alert{}
	}
	update := models.MetricUpdate{
		Type:        "metric_update",
		RobotID:     packet.RobotID,
		WarehouseID: packet.WarehouseID,
		Timestamp:   packet.Timestamp,
		System:      packet.System,
		Network:     packet.Network,
		Position:    packet.Position,
		Status:      packet.Status,
		Alerts:      fired,
	}
	payload, err := json.Marshal(update)
	if err != nil {
		log.Printf("Error marshalling update for %s: %v", packet.RobotID, err)
		return
	}
	s.hub.Broadcast(payload)
}

// reportStats logs throughput at a fixed interval.
func (s *Server) reportStats() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.StatsInterval)
	defer ticker.Stop()

	var lastReceived uint64
	lastReport := time.Now()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			received := s.received.Load()
			elapsed := now.Sub(lastReport).Seconds()
			rate := 0.0
			if elapsed > 0 {
				rate = float64(received-lastReceived) / elapsed
			}
			log.Printf("Stats: %d packets (%.1f/s), %d failed, %d dropped",
				received, rate, s.failed.Load(), s.dropped.Load())
			lastReceived = received
			lastReport = now
		}
	}
}

// SnapshotKey is the cache key for one robot's latest snapshot.
func SnapshotKey(robotID string) string {
	return "robot:" + robotID + ":latest"
}
