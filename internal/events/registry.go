package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// game
	"game.started": {},
	"game.clock":   {},
	"game.ended":   {},

	// checkpoint
	"checkpoint.reached":  {},
	"checkpoint.rejected": {},

	// plates
	"plate.activated": {},
	"plate.rejected":  {},
	"group.completed": {},
	"level.completed": {},
	"gate.opened":     {},

	// photos
	"photo.captured": {},
	"photo.rejected": {},

	// hazards and resets
	"hazard.triggered": {},
	"hazard.rejected":  {},
	"player.reset":     {},

	// timer
	"timer.started":   {},
	"timer.expired":   {},
	"timer.cancelled": {},

	// operator
	"operator.reset": {},
	"operator.end":   {},

	// device
	"device.connected":    {},
	"device.disconnected": {},
	"device.error":        {},

	// system
	"system.startup":         {},
	"system.startup_restore": {},
	"system.shutdown":        {},
	"system.error":           {},
}

// Validate rejects event names outside the allow-list.
func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
