package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
)

// Kind is the device type tag sent in the handshake.
type Kind string

const (
	KindSmartLight   Kind = "SmartLight"
	KindMotionSensor Kind = "MotionSensor"
	KindSmartLock    Kind = "SmartLock"
	KindThermostat   Kind = "Thermostat"
)

// Kinds lists every device kind.
var Kinds = []Kind{KindSmartLight, KindMotionSensor, KindSmartLock, KindThermostat}

// ErrUnknownKind indicates an unrecognized device type.
var ErrUnknownKind = errors.New("unknown device type")

// ParseKind converts a type tag to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Status is the activation state of a device.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Command results shared by all kinds.
const (
	ResultSuccess         = "success"
	ResultAlreadyActive   = "already active"
	ResultAlreadyInactive = "already inactive"
	ResultAlreadyOn       = "already on"
	ResultAlreadyOff      = "already off"
)

// Readings is a flat snapshot of a device's state.
type Readings map[string]any

// Device is a simulated device. Implementations are safe for concurrent
// use: commands and the self-sensing loop run on different goroutines.
type Device interface {
	// ID returns the device identifier.
	ID() string

	// Kind returns the device type.
	Kind() Kind

	// Readings returns a snapshot of the device state.
	Readings() Readings

	// Threshold returns the current threshold.
	Threshold() int

	// SetThreshold sets the threshold clamped to the kind's range and
	// returns the stored value.
	SetThreshold(v int) int

	// Activate enables automatic behavior.
	Activate() string

	// Deactivate disables automatic behavior.
	Deactivate() string

	// SwitchOn handles set_on and returns the result text.
	SwitchOn() string

	// SwitchOff handles set_off and returns the result text.
	SwitchOff() string

	// HasSensor reports whether Sense does anything.
	HasSensor() bool

	// Sense perturbs the sensed value once and applies the automatic
	// behavior. It returns a note when the behavior fired, else "".
	Sense(rng *rand.Rand) string

	// String renders the kind and readings for display.
	String() string
}

// base holds the state every kind shares. Embedding types guard their own
// fields with the same mutex.
type base struct {
	mu        sync.Mutex
	id        string
	kind      Kind
	status    Status
	threshold int
	min, max  int
	on        bool
}

func (b *base) init(id string, kind Kind, threshold, min, max int) {
	b.id = id
	b.kind = kind
	b.status = StatusActive
	b.threshold = clamp(threshold, min, max)
	b.min = min
	b.max = max
	b.on = true
}

func (b *base) ID() string { return b.id }

func (b *base) Kind() Kind { return b.kind }

func (b *base) Threshold() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.threshold
}

func (b *base) SetThreshold(v int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.threshold = clamp(v, b.min, b.max)
	return b.threshold
}

// ThresholdRange returns the inclusive threshold bounds.
func (b *base) ThresholdRange() (int, int) {
	return b.min, b.max
}

func (b *base) Activate() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == StatusActive {
		return ResultAlreadyActive
	}
	b.status = StatusActive
	return ResultSuccess
}

func (b *base) Deactivate() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == StatusInactive {
		return ResultAlreadyInactive
	}
	b.status = StatusInactive
	return ResultSuccess
}

// readingsLocked returns the common readings. Callers hold mu.
func (b *base) readingsLocked() Readings {
	return Readings{
		"identifier": b.id,
		"status":     string(b.status),
		"threshold":  b.threshold,
		"switch":     switchString(b.on),
	}
}

func render(d Device) string {
	data, err := json.Marshal(d.Readings())
	if err != nil {
		return string(d.Kind()) + "| <unreadable>"
	}
	return string(d.Kind()) + "| " + string(data)
}

func switchString(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func clamp(v, min, max int) int {
	if v > max {
		return max
	}
	if v < min {
		return min
	}
	return v
}
