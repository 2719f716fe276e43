package models

import "time"

// Alert is one event generated by the alert engine. Acknowledged is
// always false at creation; acknowledgment is handled outside ingestion.
type Alert struct {
	AlertID      string    `json:"alert_id"`
	RobotID      string    `json:"robot_id"`
	WarehouseID  string    `json:"warehouse_id"`
	Severity     string    `json:"severity"`
	AlertType    string    `json:"alert_type"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}

// RobotSnapshot is the latest known full state of one robot, kept in the
// cache under robot:<id>:latest with a freshness TTL. It is overwritten
// wholesale on every packet, never merged.
type RobotSnapshot struct {
	RobotID     string         `json:"robot_id"`
	WarehouseID string         `json:"warehouse_id"`
	Timestamp   int64          `json:"timestamp"`
	System      SystemMetrics  `json:"system"`
	Network     NetworkMetrics `json:"network"`
	Position    Position       `json:"position"`
	Status      RobotStatus    `json:"status"`
}

// MetricUpdate is the message fanned out to live subscribers after each
// successfully processed packet.
type MetricUpdate struct {
	Type        string         `json:"type"`
	RobotID     string         `json:"robot_id"`
	WarehouseID string         `json:"warehouse_id"`
	Timestamp   int64          `json:"timestamp"`
	System      SystemMetrics  `json:"system"`
	Network     NetworkMetrics `json:"network"`
	Position    Position       `json:"position"`
	Status      RobotStatus    `json:"status"`
	Alerts      []Alert        `json:"alerts"`
}
