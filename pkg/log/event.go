package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies one serial link (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow relative to the host.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Port is the serial device path the link is bound to.
	Port string `cbor:"6,keyasint,omitempty"`

	// UnitID is the topology-derived unit identifier (populated once
	// the unit has been identified).
	UnitID string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"8,keyasint,omitempty"`  // Serial boundary (raw bytes)
	Message     *MessageEvent     `cbor:"9,keyasint,omitempty"`  // Decoded request/response
	StateChange *StateChangeEvent `cbor:"10,keyasint,omitempty"` // Link/channel/dryer state
	Error       *ErrorEventData   `cbor:"11,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates bytes or messages arriving from the unit.
	DirectionIn Direction = 0
	// DirectionOut indicates bytes or messages sent to the unit.
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

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the serial framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the message codec layer (decoded JSON).
	LayerWire Layer = 1
	// LayerDiscovery is the enumeration and probing layer.
	LayerDiscovery Layer = 2
	// LayerUnit is the unit driver layer.
	LayerUnit Layer = 3
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerDiscovery:
		return "DISCOVERY"
	case LayerUnit:
		return "UNIT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a protocol message (request/response).
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
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

// FrameEvent captures raw frame data at the serial boundary.
type FrameEvent struct {
	// Size is the frame size in bytes (including envelope).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded protocol message at the wire layer.
type MessageEvent struct {
	// Type distinguishes request from response.
	Type MessageType `cbor:"1,keyasint"`

	// RequestID correlates request/response pairs.
	RequestID uint32 `cbor:"2,keyasint"`

	// For requests: the method being invoked.
	Method string `cbor:"3,keyasint,omitempty"`

	// For move and assist requests: the target channel.
	Channel *int `cbor:"4,keyasint,omitempty"`

	// For responses: the result code reported by the unit.
	Code *int `cbor:"5,keyasint,omitempty"`

	// RoundTrip is the duration from request write to response receipt
	// (responses only). Stored as nanoseconds.
	RoundTrip *time.Duration `cbor:"6,keyasint,omitempty"`
}

// MessageType distinguishes request from response.
type MessageType uint8

const (
	// MessageTypeRequest indicates a request message.
	MessageTypeRequest MessageType = 0
	// MessageTypeResponse indicates a response message.
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

// StateChangeEvent captures link, channel and dryer lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// Channel index for channel entities, -1 otherwise.
	Channel int `cbor:"2,keyasint,omitempty"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"3,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"4,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"5,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityLink indicates a serial link state change.
	StateEntityLink StateEntity = 0
	// StateEntityChannel indicates a channel occupancy change.
	StateEntityChannel StateEntity = 1
	// StateEntityDryer indicates a dryer state change.
	StateEntityDryer StateEntity = 2
	// StateEntityUnit indicates a unit lifecycle change (identified,
	// connected, reconnected, torn down).
	StateEntityUnit StateEntity = 3
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityLink:
		return "LINK"
	case StateEntityChannel:
		return "CHANNEL"
	case StateEntityDryer:
		return "DRYER"
	case StateEntityUnit:
		return "UNIT"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the unit-reported result code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
