// Package alerts evaluates a fixed rule set against incoming telemetry
// and suppresses repeats with a per-(robot, rule) cooldown. Cooldown
// state lives in process memory only; a restart clears it, which at
// worst re-emits one alert per pair inside the window.
package alerts

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetpulse/internal/models"
)

// DefaultCooldown is how long a (robot, rule) pair stays silent after
// firing.
const DefaultCooldown = 30 * time.Second

// Engine holds the rule set and the cooldown state.
type Engine struct {
	rules    []Rule
	cooldown time.Duration

	// state maps "robotID:ruleName" to a *cooldownEntry. Entries are
	// created once per key and never removed; the gate serializes per
	// key, not across the whole engine.
	state sync.Map
}

type cooldownEntry struct {
	mu   sync.Mutex
	last time.Time
}

// NewEngine creates an engine over the given rules. Rules are evaluated
// in slice order on every packet.
func NewEngine(rules []Rule, cooldown time.Duration) *Engine {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Engine{rules: rules, cooldown: cooldown}
}

// Evaluate runs every rule against the packet and returns the alerts
// that pass their cooldown gate. Multiple rules may fire on one packet,
// each gated independently. Safe for concurrent use.
func (e *Engine) Evaluate(packet *models.TelemetryPacket, now time.Time) []models.Alert {
	var fired []models.Alert
	for _, rule := range e.rules {
		if !rule.Check(packet) {
			continue
		}
		if !e.passCooldown(packet.RobotID+":"+rule.Name, now) {
			continue
		}
		fired = append(fired, models.Alert{
			AlertID:      uuid.NewString(),
			RobotID:      packet.RobotID,
			WarehouseID:  packet.WarehouseID,
			Severity:     rule.Severity,
			AlertType:    rule.Name,
			Message:      rule.Message(packet),
			Timestamp:    now,
			Acknowledged: false,
		})
	}
	return fired
}

// passCooldown atomically checks and, when the window has elapsed,
// refreshes the last-fired time for one key. Two concurrent evaluations
// of the same key inside the window cannot both pass.
func (e *Engine) passCooldown(key string, now time.Time) bool {
	v, _ := e.state.LoadOrStore(key, &cooldownEntry{})
	entry := v.(*cooldownEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.last.IsZero() && now.Sub(entry.last) < e.cooldown {
		return false
	}
	entry.last = now
	return true
}
