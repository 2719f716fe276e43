package alerts

import (
	"fmt"

	"fleetpulse/internal/models"
)

// Rule is one named alert condition. Check and Message must be pure;
// the engine may call them concurrently.
type Rule struct {
	Name     string
	Severity string
	Check    func(*models.TelemetryPacket) bool
	Message  func(*models.TelemetryPacket) string
}

// DefaultRules is the process-wide rule set, fixed at startup.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "high_cpu",
			Severity: "warning",
			Check: func(p *models.TelemetryPacket) bool {
				return p.System.CPUPercent > 90
			},
			Message: func(p *models.TelemetryPacket) string {
				return fmt.Sprintf("High CPU: %.1f%%", p.System.CPUPercent)
			},
		},
		{
			Name:     "low_battery",
			Severity: "warning",
			Check: func(p *models.TelemetryPacket) bool {
				return p.System.BatteryPercent < 20
			},
			Message: func(p *models.TelemetryPacket) string {
				return fmt.Sprintf("Low battery: %.1f%%", p.System.BatteryPercent)
			},
		},
	}
}
