package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetpulse/internal/models"
)

func validPacket() *models.TelemetryPacket {
	task := "pick_order_42"
	rssi := -55.0
	return &models.TelemetryPacket{
		Version:     1,
		RobotID:     "amr-001",
		WarehouseID: "wh-east",
		Timestamp:   1700000000000000000,
		Sequence:    17,
		System: models.SystemMetrics{
			CPUPercent:     42.5,
			MemoryPercent:  61.2,
			BatteryPercent: 88.0,
			Temperature:    37.9,
		},
		Network: models.NetworkMetrics{
			LatencyMs:         12.4,
			PacketLossPercent: 0.2,
			SignalStrengthDBM: &rssi,
			BandwidthMbps:     120.0,
			InterfaceType:     "wifi",
		},
		ROS2: []models.ROS2TopicMetric{
			{
				TopicName:        "/cmd_vel",
				NodeName:         "motion_controller",
				PublishRateHz:    20.0,
				MessageSizeBytes: 48,
				QueueDepth:       10,
				DroppedMessages:  0,
			},
		},
		Position: models.Position{X: 13.2, Y: 7.7, Z: 0.0},
		Status: models.RobotStatus{
			State:        "working",
			CurrentTask:  &task,
			TaskProgress: 64,
		},
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	want := validPacket()
	raw, err := json.Marshal(want)
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeEmptyROS2(t *testing.T) {
	p := validPacket()
	p.ROS2 = []models.ROS2TopicMetric{}
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.NotNil(t, got.ROS2)
	assert.Empty(t, got.ROS2)
}

func TestDecodeOptionalFieldsAbsent(t *testing.T) {
	p := validPacket()
	p.Network.SignalStrengthDBM = nil
	p.Status.CurrentTask = nil
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Nil(t, got.Network.SignalStrengthDBM)
	assert.Nil(t, got.Status.CurrentTask)
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  []byte
	}{
		{"not JSON", []byte("!!not json!!")},
		{"truncated", []byte(`{"version": 1, "robot_id":`)},
		{"wrong type", []byte(`{"version": "one"}`)},
		{"empty", []byte("")},
		{"binary", []byte{0x00, 0xff, 0x13, 0x37}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			packet, err := Decode(tc.raw)
			assert.Nil(t, packet)
			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
		})
	}
}

func TestDecodeMissingFields(t *testing.T) {
	base := validPacket()
	cases := []struct {
		name   string
		mutate func(m map[string]any)
	}{
		{"no robot_id", func(m map[string]any) { delete(m, "robot_id") }},
		{"empty robot_id", func(m map[string]any) { m["robot_id"] = "" }},
		{"no warehouse_id", func(m map[string]any) { delete(m, "warehouse_id") }},
		{"no timestamp", func(m map[string]any) { delete(m, "timestamp") }},
		{"no sequence", func(m map[string]any) { delete(m, "sequence") }},
		{"no system", func(m map[string]any) { delete(m, "system") }},
		{"no network", func(m map[string]any) { delete(m, "network") }},
		{"no ros2", func(m map[string]any) { delete(m, "ros2") }},
		{"no position", func(m map[string]any) { delete(m, "position") }},
		{"no status", func(m map[string]any) { delete(m, "status") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := json.Marshal(base)
			require.NoError(t, err)
			var m map[string]any
			require.NoError(t, json.Unmarshal(raw, &m))
			tc.mutate(m)
			raw, err = json.Marshal(m)
			require.NoError(t, err)

			_, err = Decode(raw)
			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
		})
	}
}

// An empty or partial measurement group must be rejected outright. If
// "system": {} were accepted, battery_percent would default to zero and
// the packet would read as a critically drained robot.
func TestDecodeIncompleteGroups(t *testing.T) {
	base := validPacket()
	cases := []struct {
		name   string
		mutate func(m map[string]any)
	}{
		{"empty system", func(m map[string]any) { m["system"] = map[string]any{} }},
		{"empty network", func(m map[string]any) { m["network"] = map[string]any{} }},
		{"empty position", func(m map[string]any) { m["position"] = map[string]any{} }},
		{"empty status", func(m map[string]any) { m["status"] = map[string]any{} }},
		{"empty ros2 element", func(m map[string]any) { m["ros2"] = []any{map[string]any{}} }},
		{"system without battery", func(m map[string]any) {
			delete(m["system"].(map[string]any), "battery_percent")
		}},
		{"system without cpu", func(m map[string]any) {
			delete(m["system"].(map[string]any), "cpu_percent")
		}},
		{"network without interface_type", func(m map[string]any) {
			delete(m["network"].(map[string]any), "interface_type")
		}},
		{"network without latency", func(m map[string]any) {
			delete(m["network"].(map[string]any), "latency_ms")
		}},
		{"position without y", func(m map[string]any) {
			delete(m["position"].(map[string]any), "y")
		}},
		{"status without state", func(m map[string]any) {
			delete(m["status"].(map[string]any), "state")
		}},
		{"status without task_progress", func(m map[string]any) {
			delete(m["status"].(map[string]any), "task_progress")
		}},
		{"ros2 element without topic_name", func(m map[string]any) {
			delete(m["ros2"].([]any)[0].(map[string]any), "topic_name")
		}},
		{"ros2 element without dropped_messages", func(m map[string]any) {
			delete(m["ros2"].([]any)[0].(map[string]any), "dropped_messages")
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := json.Marshal(base)
			require.NoError(t, err)
			var m map[string]any
			require.NoError(t, json.Unmarshal(raw, &m))
			tc.mutate(m)
			raw, err = json.Marshal(m)
			require.NoError(t, err)

			packet, err := Decode(raw)
			assert.Nil(t, packet)
			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
		})
	}
}

func TestDecodeProgressOutOfRange(t *testing.T) {
	for _, progress := range []int{-1, 101, 500} {
		p := validPacket()
		p.Status.TaskProgress = progress
		raw, err := json.Marshal(p)
		require.NoError(t, err)

		_, err = Decode(raw)
		assert.Error(t, err, "progress %d must be rejected", progress)
	}

	for _, progress := range []int{0, 100} {
		p := validPacket()
		p.Status.TaskProgress = progress
		raw, err := json.Marshal(p)
		require.NoError(t, err)

		got, err := Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, progress, got.Status.TaskProgress)
	}
}
