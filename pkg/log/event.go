package log

import (
	"strings"
	"time"
)

// Event is a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred.
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the TCP connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction of message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event.
	Category Category `cbor:"5,keyasint"`

	// LocalRole tells whether the hub or a device recorded the event.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// DeviceID is the device identifier, once known.
	DeviceID string `cbor:"8,keyasint,omitempty"`

	// Exactly one payload is set.
	Envelope    *EnvelopeEvent    `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction of message flow.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer is the protocol layer that captured an event.
type Layer uint8

const (
	// LayerTransport is the envelope layer (ciphertext sizes).
	LayerTransport Layer = 0
	// LayerWire is the decoded message layer.
	LayerWire Layer = 1
	// LayerService is the hub / endpoint layer.
	LayerService Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryState   Category = 2
	CategoryError   Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory converts a category name (case-insensitive) to a Category.
func ParseCategory(s string) (Category, bool) {
	for _, c := range []Category{CategoryMessage, CategoryState, CategoryError} {
		if strings.EqualFold(c.String(), s) {
			return c, true
		}
	}
	return 0, false
}

// Role is the local side that recorded an event.
type Role uint8

const (
	RoleDevice Role = 0
	RoleHub    Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleDevice:
		return "DEVICE"
	case RoleHub:
		return "HUB"
	default:
		return "UNKNOWN"
	}
}

// EnvelopeEvent records one ciphertext envelope crossing the wire.
type EnvelopeEvent struct {
	// Size is the ciphertext size in bytes.
	Size int `cbor:"1,keyasint"`
}

// MessageEvent records a decoded plaintext message.
type MessageEvent struct {
	Type MessageType `cbor:"1,keyasint"`

	// Action is set for requests.
	Action string `cbor:"2,keyasint,omitempty"`

	// Value is the set_thres argument, if any.
	Value *int `cbor:"3,keyasint,omitempty"`

	// Result is the compact JSON result of a response.
	Result string `cbor:"4,keyasint,omitempty"`

	// RoundTrip is the time from request write to response read (hub side).
	RoundTrip *time.Duration `cbor:"5,keyasint,omitempty"`
}

// MessageType distinguishes requests from responses.
type MessageType uint8

const (
	MessageTypeRequest  MessageType = 0
	MessageTypeResponse MessageType = 1
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent records a lifecycle transition.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity is the thing that changed state.
type StateEntity uint8

const (
	// StateEntityConnection is the TCP connection.
	StateEntityConnection StateEntity = 0
	// StateEntitySession is the hub session handler or device endpoint.
	StateEntitySession StateEntity = 1
	// StateEntityRegistry is a device's registry entry (online/offline).
	StateEntityRegistry StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	case StateEntityRegistry:
		return "REGISTRY"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData records an error at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Context describes the operation in progress.
	Context string `cbor:"4,keyasint,omitempty"`
}
