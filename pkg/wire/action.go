package wire

// Action names the operation a request asks for.
type Action string

const (
	// ActionConnect is the handshake request sent by a device.
	ActionConnect Action = "connect"

	// ActionGetReadings returns the device's readings snapshot.
	ActionGetReadings Action = "get_readings"

	// ActionSetThreshold sets the device threshold to "value" (clamped).
	ActionSetThreshold Action = "set_thres"

	// ActionActivate activates the device's automatic behavior.
	ActionActivate Action = "set_activate"

	// ActionDeactivate deactivates the device's automatic behavior.
	ActionDeactivate Action = "set_deactivate"

	// ActionOn switches the device on (locks a lock).
	ActionOn Action = "set_on"

	// ActionOff switches the device off (unlocks a lock).
	ActionOff Action = "set_off"

	// ActionDisconnect asks the device to acknowledge and close the session.
	ActionDisconnect Action = "set_disconnect"
)

// CommandActions lists the actions the hub may send after a handshake,
// in menu order.
var CommandActions = []Action{
	ActionGetReadings,
	ActionSetThreshold,
	ActionActivate,
	ActionDeactivate,
	ActionOn,
	ActionOff,
	ActionDisconnect,
}

// IsCommand reports whether a is a post-handshake command action.
func (a Action) IsCommand() bool {
	for _, c := range CommandActions {
		if a == c {
			return true
		}
	}
	return false
}

// String returns the action name.
func (a Action) String() string {
	if a == "" {
		return "<none>"
	}
	return string(a)
}
