package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fleetpulse/internal/alerts"
	"fleetpulse/internal/api"
	"fleetpulse/internal/hub"
	"fleetpulse/internal/ingest"
	"fleetpulse/internal/storage"
	"fleetpulse/pkg/config"
)

func main() {
	log.Println("Starting FleetPulse backend...")

	// Load configuration
	cfg := config.Load()

	// Initialize ClickHouse time-series store
	store, err := storage.NewClickHouseStore(
		cfg.ClickHouseAddr,
		cfg.ClickHouseDB,
		cfg.ClickHouseUser,
		cfg.ClickHousePass,
	)
	if err != nil {
		log.Fatalf("Failed to initialize ClickHouse: %v", err)
	}
	defer store.Close()

	// Initialize Redis snapshot cache
	cache, err := storage.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer cache.Close()

	// Prometheus registry shared by the pipeline and the hub
	registry := prometheus.NewRegistry()
	ingestMetrics := ingest.NewMetrics(registry)

	subscriberGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleetpulse",
		Subsystem: "hub",
		Name:      "subscribers_connected",
		Help:      "Currently connected update subscribers",
	})
	registry.MustRegister(subscriberGauge)

	// Broadcast hub
	broadcastHub := hub.NewHub(subscriberGauge)
	go broadcastHub.Run()

	// Alert engine with the fixed rule set
	engine := alerts.NewEngine(alerts.DefaultRules(), cfg.AlertCooldown)

	// UDP ingestion server
	server := ingest.NewServer(ingest.Config{
		Port:          cfg.UDPPort,
		Workers:       cfg.IngestWorkers,
		QueueSize:     cfg.IngestQueue,
		CacheTTL:      cfg.CacheTTL,
		StatsInterval: cfg.StatsInterval,
	}, store, cache, broadcastHub, engine, ingestMetrics)

	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start ingestion server: %v", err)
	}

	// Optional MQTT telemetry source feeding the same pipeline
	var mqttSource *ingest.MQTTSource
	if cfg.MQTTEnabled {
		mqttSource, err = ingest.NewMQTTSource(ingest.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			Topic:    cfg.MQTTTopic,
		}, server.Submit)
		if err != nil {
			log.Fatalf("Failed to initialize MQTT source: %v", err)
		}
		if err := mqttSource.Subscribe(); err != nil {
			log.Fatalf("Failed to subscribe to MQTT telemetry: %v", err)
		}
	}

	// HTTP API + websocket endpoint
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: api.NewRouter(store, cache, broadcastHub, registry),
	}
	go func() {
		log.Printf("HTTP API listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	log.Println("FleetPulse backend is running. Press Ctrl+C to exit.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")

	// Stop intake first so no new pipeline runs start, then drop the
	// outer surfaces, then the stores (deferred above).
	if mqttSource != nil {
		mqttSource.Close()
	}
	if err := server.Stop(); err != nil {
		log.Printf("Error stopping ingestion server: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	broadcastHub.Stop()
}
