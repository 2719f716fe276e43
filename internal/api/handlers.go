package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"fleetpulse/internal/hub"
	"fleetpulse/internal/ingest"
	"fleetpulse/internal/models"
)

const snapshotPattern = "robot:*:latest"

// robotSummary is one fleet-status row: a snapshot with its timestamp
// rendered as a wall-clock last-seen time.
type robotSummary struct {
	RobotID     string                `json:"robot_id"`
	WarehouseID string                `json:"warehouse_id"`
	LastSeen    time.Time             `json:"last_seen"`
	System      models.SystemMetrics  `json:"system"`
	Network     models.NetworkMetrics `json:"network"`
	Position    models.Position       `json:"position"`
	Status      models.RobotStatus    `json:"status"`
}

func (h *handler) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "fleetpulse",
		"version": "0.1.0",
		"status":  "operational",
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"database":    h.store.Ping(ctx) == nil,
		"cache":       h.cache.Ping(ctx) == nil,
		"subscribers": h.hub.Count(),
	})
}

func (h *handler) listRobots(w http.ResponseWriter, r *http.Request) {
	keys, err := h.cache.Keys(r.Context(), snapshotPattern)
	if err != nil {
		log.Printf("Error listing robots: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list robots")
		return
	}

	robots := make([]string, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimSuffix(strings.TrimPrefix(key, "robot:"), ":latest")
		robots = append(robots, id)
	}
	writeJSON(w, http.StatusOK, map[string]any{"robots": robots})
}

func (h *handler) robotLatest(w http.ResponseWriter, r *http.Request) {
	robotID := chi.URLParam(r, "robotID")

	var snapshot models.RobotSnapshot
	found, err := h.cache.GetJSON(r.Context(), ingest.SnapshotKey(robotID), &snapshot)
	if err != nil {
		log.Printf("Error loading snapshot for %s: %v", robotID, err)
		writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "robot not found or stale")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *handler) fleetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	keys, err := h.cache.Keys(ctx, snapshotPattern)
	if err != nil {
		log.Printf("Error getting fleet status: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load fleet status")
		return
	}

	summaries := make([]robotSummary, 0, len(keys))
	for _, key := range keys {
		var snapshot models.RobotSnapshot
		found, err := h.cache.GetJSON(ctx, key, &snapshot)
		if err != nil {
			log.Printf("Error loading %s: %v", key, err)
			continue
		}
		if !found {
			// Expired between Keys and GetJSON.
			continue
		}
		summaries = append(summaries, robotSummary{
			RobotID:     snapshot.RobotID,
			WarehouseID: snapshot.WarehouseID,
			LastSeen:    time.Unix(0, snapshot.Timestamp),
			System:      snapshot.System,
			Network:     snapshot.Network,
			Position:    snapshot.Position,
			Status:      snapshot.Status,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_robots": len(summaries),
		"robots":       summaries,
		"timestamp":    time.Now(),
	})
}

// serveWS upgrades the connection and hands it to the hub.
func (h *handler) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := hub.NewClient(h.hub, conn)
	h.hub.Register(client)
	go client.WritePump()
	go client.ReadPump()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
