package device

import "github.com/homehub-sim/homehub/pkg/wire"

// ResultValueMissing answers a set_thres request without a value.
const ResultValueMissing = "failure - value missing"

// Execute applies a command request to d. It reports false for actions
// that have no handler; no response should be sent for those.
// set_disconnect is acknowledged here; closing the session is up to the
// caller.
func Execute(d Device, req wire.Request) (wire.Response, bool) {
	switch req.Action {
	case wire.ActionGetReadings:
		return wire.NewResponse(d.Readings()), true

	case wire.ActionSetThreshold:
		if req.Value == nil {
			return wire.NewResponse(ResultValueMissing), true
		}
		d.SetThreshold(*req.Value)
		return wire.NewResponse(ResultSuccess), true

	case wire.ActionActivate:
		return wire.NewResponse(d.Activate()), true

	case wire.ActionDeactivate:
		return wire.NewResponse(d.Deactivate()), true

	case wire.ActionOn:
		return wire.NewResponse(d.SwitchOn()), true

	case wire.ActionOff:
		return wire.NewResponse(d.SwitchOff()), true

	case wire.ActionDisconnect:
		return wire.NewResponse(ResultSuccess), true

	default:
		return wire.Response{}, false
	}
}
