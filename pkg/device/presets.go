package device

import "fmt"

// Presets returns fresh instances of the predefined simulated devices.
func Presets() []Device {
	return []Device{
		NewSmartLight("Light1", 50),
		NewSmartLight("Light2", 30),
		NewSmartLight("Light3", 80),
		NewMotionSensor("Motion1", 5),
		NewMotionSensor("Motion2", 8),
		NewMotionSensor("Motion3", 3),
		NewSmartLock("Lock1"),
		NewSmartLock("Lock2"),
		NewSmartLock("Lock3"),
		NewThermostat("Therm1", 23),
		NewThermostat("Therm2", 30),
		NewThermostat("Therm3", 15),
	}
}

// Lookup returns a fresh instance of the preset named id.
func Lookup(id string) (Device, bool) {
	for _, d := range Presets() {
		if d.ID() == id {
			return d, true
		}
	}
	return nil, false
}

// New creates a device of the given kind with the kind's default threshold
// when threshold is nil.
func New(kind Kind, id string, threshold *int) (Device, error) {
	pick := func(def int) int {
		if threshold != nil {
			return *threshold
		}
		return def
	}

	switch kind {
	case KindSmartLight:
		return NewSmartLight(id, pick(LightDefaultThresh)), nil
	case KindMotionSensor:
		return NewMotionSensor(id, pick(MotionDefaultThresh)), nil
	case KindSmartLock:
		return NewSmartLock(id), nil
	case KindThermostat:
		return NewThermostat(id, pick(ThermDefaultThresh)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
