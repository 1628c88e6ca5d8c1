package log

import "time"

// Source stamps events with the identity of one connection.
// The zero value discards everything.
type Source struct {
	Logger       Logger
	Role         Role
	ConnectionID string
	RemoteAddr   string
	DeviceID     string
}

// WithDevice returns a copy of s tagged with a device identifier.
func (s Source) WithDevice(id string) Source {
	s.DeviceID = id
	return s
}

func (s Source) emit(e Event) {
	if s.Logger == nil {
		return
	}
	e.Timestamp = time.Now()
	e.ConnectionID = s.ConnectionID
	e.LocalRole = s.Role
	e.RemoteAddr = s.RemoteAddr
	e.DeviceID = s.DeviceID
	s.Logger.Log(e)
}

// Envelope records a ciphertext of size bytes.
func (s Source) Envelope(dir Direction, size int) {
	s.emit(Event{
		Direction: dir,
		Layer:     LayerTransport,
		Category:  CategoryMessage,
		Envelope:  &EnvelopeEvent{Size: size},
	})
}

// Request records a decoded request.
func (s Source) Request(dir Direction, action string, value *int) {
	s.emit(Event{
		Direction: dir,
		Layer:     LayerWire,
		Category:  CategoryMessage,
		Message:   &MessageEvent{Type: MessageTypeRequest, Action: action, Value: value},
	})
}

// Response records a decoded response. rtt may be zero.
func (s Source) Response(dir Direction, result string, rtt time.Duration) {
	msg := &MessageEvent{Type: MessageTypeResponse, Result: result}
	if rtt > 0 {
		msg.RoundTrip = &rtt
	}
	s.emit(Event{
		Direction: dir,
		Layer:     LayerWire,
		Category:  CategoryMessage,
		Message:   msg,
	})
}

// State records a state transition.
func (s Source) State(entity StateEntity, oldState, newState, reason string) {
	layer := LayerService
	if entity == StateEntityConnection {
		layer = LayerTransport
	}
	s.emit(Event{
		Layer:    layer,
		Category: CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

// Error records an error.
func (s Source) Error(layer Layer, err error, context string) {
	if err == nil {
		return
	}
	s.emit(Event{
		Layer:    layer,
		Category: CategoryError,
		Error:    &ErrorEventData{Layer: layer, Message: err.Error(), Context: context},
	})
}
