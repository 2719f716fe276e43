// Package codec decodes raw telemetry datagrams into TelemetryPacket
// values. Payloads come straight off the wire and are fully untrusted;
// anything structurally incomplete or out of range is rejected with a
// DecodeError and never reaches the rest of the pipeline.
package codec

import (
	"encoding/json"
	"fmt"

	"fleetpulse/internal/models"
)

// DecodeError describes why a payload was rejected.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode telemetry: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode telemetry: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// The wire structs mirror the packet with pointer fields so that missing
// keys can be told apart from zero values, down to the members of each
// measurement group. A group that is present but incomplete is as
// invalid as a missing one.
type wirePacket struct {
	Version     *int          `json:"version"`
	RobotID     *string       `json:"robot_id"`
	WarehouseID *string       `json:"warehouse_id"`
	Timestamp   *int64        `json:"timestamp"`
	Sequence    *uint64       `json:"sequence"`
	System      *wireSystem   `json:"system"`
	Network     *wireNetwork  `json:"network"`
	ROS2        *[]wireROS2   `json:"ros2"`
	Position    *wirePosition `json:"position"`
	Status      *wireStatus   `json:"status"`
}

type wireSystem struct {
	CPUPercent     *float64 `json:"cpu_percent"`
	MemoryPercent  *float64 `json:"memory_percent"`
	BatteryPercent *float64 `json:"battery_percent"`
	Temperature    *float64 `json:"temperature"`
}

type wireNetwork struct {
	LatencyMs         *float64 `json:"latency_ms"`
	PacketLossPercent *float64 `json:"packet_loss_percent"`
	SignalStrengthDBM *float64 `json:"signal_strength_dbm"`
	BandwidthMbps     *float64 `json:"bandwidth_mbps"`
	InterfaceType     *string  `json:"interface_type"`
}

type wireROS2 struct {
	TopicName        *string  `json:"topic_name"`
	NodeName         *string  `json:"node_name"`
	PublishRateHz    *float64 `json:"publish_rate_hz"`
	MessageSizeBytes *int     `json:"message_size_bytes"`
	QueueDepth       *int     `json:"queue_depth"`
	DroppedMessages  *int     `json:"dropped_messages"`
}

type wirePosition struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

type wireStatus struct {
	State        *string `json:"state"`
	CurrentTask  *string `json:"current_task"`
	TaskProgress *int    `json:"task_progress"`
}

// Decode parses a raw datagram payload into a TelemetryPacket. The
// returned error, when non-nil, is always a *DecodeError.
func Decode(data []byte) (*models.TelemetryPacket, error) {
	var wire wirePacket
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &DecodeError{Reason: "malformed JSON", Err: err}
	}

	if err := validate(&wire); err != nil {
		return nil, err
	}

	topics := make([]models.ROS2TopicMetric, len(*wire.ROS2))
	for i, topic := range *wire.ROS2 {
		topics[i] = models.ROS2TopicMetric{
			TopicName:        *topic.TopicName,
			NodeName:         *topic.NodeName,
			PublishRateHz:    *topic.PublishRateHz,
			MessageSizeBytes: *topic.MessageSizeBytes,
			QueueDepth:       *topic.QueueDepth,
			DroppedMessages:  *topic.DroppedMessages,
		}
	}

	return &models.TelemetryPacket{
		Version:     *wire.Version,
		RobotID:     *wire.RobotID,
		WarehouseID: *wire.WarehouseID,
		Timestamp:   *wire.Timestamp,
		Sequence:    *wire.Sequence,
		System: models.SystemMetrics{
			CPUPercent:     *wire.System.CPUPercent,
			MemoryPercent:  *wire.System.MemoryPercent,
			BatteryPercent: *wire.System.BatteryPercent,
			Temperature:    *wire.System.Temperature,
		},
		Network: models.NetworkMetrics{
			LatencyMs:         *wire.Network.LatencyMs,
			PacketLossPercent: *wire.Network.PacketLossPercent,
			SignalStrengthDBM: wire.Network.SignalStrengthDBM,
			BandwidthMbps:     *wire.Network.BandwidthMbps,
			InterfaceType:     *wire.Network.InterfaceType,
		},
		ROS2:     topics,
		Position: models.Position{X: *wire.Position.X, Y: *wire.Position.Y, Z: *wire.Position.Z},
		Status: models.RobotStatus{
			State:        *wire.Status.State,
			CurrentTask:  wire.Status.CurrentTask,
			TaskProgress: *wire.Status.TaskProgress,
		},
	}, nil
}

func validate(wire *wirePacket) error {
	switch {
	case wire.Version == nil:
		return &DecodeError{Reason: "missing field: version"}
	case wire.RobotID == nil || *wire.RobotID == "":
		return &DecodeError{Reason: "missing field: robot_id"}
	case wire.WarehouseID == nil || *wire.WarehouseID == "":
		return &DecodeError{Reason: "missing field: warehouse_id"}
	case wire.Timestamp == nil:
		return &DecodeError{Reason: "missing field: timestamp"}
	case wire.Sequence == nil:
		return &DecodeError{Reason: "missing field: sequence"}
	case wire.System == nil:
		return &DecodeError{Reason: "missing group: system"}
	case wire.Network == nil:
		return &DecodeError{Reason: "missing group: network"}
	case wire.ROS2 == nil:
		return &DecodeError{Reason: "missing group: ros2"}
	case wire.Position == nil:
		return &DecodeError{Reason: "missing group: position"}
	case wire.Status == nil:
		return &DecodeError{Reason: "missing group: status"}
	}

	if err := validateSystem(wire.System); err != nil {
		return err
	}
	if err := validateNetwork(wire.Network); err != nil {
		return err
	}
	for i, topic := range *wire.ROS2 {
		if err := validateROS2(i, &topic); err != nil {
			return err
		}
	}
	if err := validatePosition(wire.Position); err != nil {
		return err
	}
	if err := validateStatus(wire.Status); err != nil {
		return err
	}

	if *wire.Timestamp <= 0 {
		return &DecodeError{Reason: fmt.Sprintf("invalid timestamp %d", *wire.Timestamp)}
	}
	return nil
}

func validateSystem(s *wireSystem) error {
	switch {
	case s.CPUPercent == nil:
		return &DecodeError{Reason: "missing field: system.cpu_percent"}
	case s.MemoryPercent == nil:
		return &DecodeError{Reason: "missing field: system.memory_percent"}
	case s.BatteryPercent == nil:
		return &DecodeError{Reason: "missing field: system.battery_percent"}
	case s.Temperature == nil:
		return &DecodeError{Reason: "missing field: system.temperature"}
	}
	return nil
}

func validateNetwork(n *wireNetwork) error {
	// signal_strength_dbm is the one optional member.
	switch {
	case n.LatencyMs == nil:
		return &DecodeError{Reason: "missing field: network.latency_ms"}
	case n.PacketLossPercent == nil:
		return &DecodeError{Reason: "missing field: network.packet_loss_percent"}
	case n.BandwidthMbps == nil:
		return &DecodeError{Reason: "missing field: network.bandwidth_mbps"}
	case n.InterfaceType == nil || *n.InterfaceType == "":
		return &DecodeError{Reason: "missing field: network.interface_type"}
	}
	return nil
}

func validateROS2(i int, t *wireROS2) error {
	switch {
	case t.TopicName == nil || *t.TopicName == "":
		return &DecodeError{Reason: fmt.Sprintf("missing field: ros2[%d].topic_name", i)}
	case t.NodeName == nil || *t.NodeName == "":
		return &DecodeError{Reason: fmt.Sprintf("missing field: ros2[%d].node_name", i)}
	case t.PublishRateHz == nil:
		return &DecodeError{Reason: fmt.Sprintf("missing field: ros2[%d].publish_rate_hz", i)}
	case t.MessageSizeBytes == nil:
		return &DecodeError{Reason: fmt.Sprintf("missing field: ros2[%d].message_size_bytes", i)}
	case t.QueueDepth == nil:
		return &DecodeError{Reason: fmt.Sprintf("missing field: ros2[%d].queue_depth", i)}
	case t.DroppedMessages == nil:
		return &DecodeError{Reason: fmt.Sprintf("missing field: ros2[%d].dropped_messages", i)}
	}
	return nil
}

func validatePosition(p *wirePosition) error {
	switch {
	case p.X == nil:
		return &DecodeError{Reason: "missing field: position.x"}
	case p.Y == nil:
		return &DecodeError{Reason: "missing field: position.y"}
	case p.Z == nil:
		return &DecodeError{Reason: "missing field: position.z"}
	}
	return nil
}

func validateStatus(s *wireStatus) error {
	if s.State == nil || *s.State == "" {
		return &DecodeError{Reason: "missing field: status.state"}
	}
	if s.TaskProgress == nil {
		return &DecodeError{Reason: "missing field: status.task_progress"}
	}
	if p := *s.TaskProgress; p < 0 || p > 100 {
		return &DecodeError{Reason: fmt.Sprintf("task_progress %d out of range 0-100", p)}
	}
	return nil
}
