package models

// SystemMetrics carries the on-board resource readings of one robot.
type SystemMetrics struct {
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryPercent  float64 `json:"memory_percent"`
	BatteryPercent float64 `json:"battery_percent"`
	Temperature    float64 `json:"temperature"`
}

// NetworkMetrics carries link-quality readings. SignalStrengthDBM is only
// reported on wireless interfaces.
type NetworkMetrics struct {
	LatencyMs         float64  `json:"latency_ms"`
	PacketLossPercent float64  `json:"packet_loss_percent"`
	SignalStrengthDBM *float64 `json:"signal_strength_dbm,omitempty"`
	BandwidthMbps     float64  `json:"bandwidth_mbps"`
	InterfaceType     string   `json:"interface_type"`
}

// ROS2TopicMetric describes the health of one ROS2 topic on the robot.
type ROS2TopicMetric struct {
	TopicName        string  `json:"topic_name"`
	NodeName         string  `json:"node_name"`
	PublishRateHz    float64 `json:"publish_rate_hz"`
	MessageSizeBytes int     `json:"message_size_bytes"`
	QueueDepth       int     `json:"queue_depth"`
	DroppedMessages  int     `json:"dropped_messages"`
}

// Position is the robot's location in warehouse coordinates, meters.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// RobotStatus describes what the robot is currently doing. CurrentTask is
// unset when the robot is idle. TaskProgress is 0-100.
type RobotStatus struct {
	State        string  `json:"state"`
	CurrentTask  *string `json:"current_task,omitempty"`
	TaskProgress int     `json:"task_progress"`
}

// TelemetryPacket is the content of one telemetry datagram. It is built
// once by the codec and never mutated afterwards; pipeline stages only
// read it.
type TelemetryPacket struct {
	Version     int               `json:"version"`
	RobotID     string            `json:"robot_id"`
	WarehouseID string            `json:"warehouse_id"`
	Timestamp   int64             `json:"timestamp"` // nanoseconds since epoch
	Sequence    uint64            `json:"sequence"`
	System      SystemMetrics     `json:"system"`
	Network     NetworkMetrics    `json:"network"`
	ROS2        []ROS2TopicMetric `json:"ros2"`
	Position    Position          `json:"position"`
	Status      RobotStatus       `json:"status"`
}
