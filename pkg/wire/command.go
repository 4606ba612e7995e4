package wire

import (
	"errors"
	"fmt"
)

// Method identifies one protocol method understood by the unit firmware.
type Method string

// The complete method set. There is no extension mechanism; firmware
// rejects anything else.
const (
	// MethodGetInfo requests model and firmware identification.
	MethodGetInfo Method = "get_info"

	// MethodGetStatus requests the full unit status snapshot.
	MethodGetStatus Method = "get_status"

	// MethodFeed drives filament forward on one channel.
	MethodFeed Method = "feed"

	// MethodRetract pulls filament back on one channel. The firmware
	// names this "back".
	MethodRetract Method = "back"

	// MethodFeedAssist enables feed assist on one channel.
	MethodFeedAssist Method = "feed_assist"

	// MethodFeedAssistOff disables feed assist. The firmware applies
	// this unit-wide; it takes no parameters.
	MethodFeedAssistOff Method = "feed_assist_off"

	// MethodDryerStart starts the spool dryer.
	MethodDryerStart Method = "dryer_start"

	// MethodDryerStop stops the spool dryer. Cooldown continues
	// asynchronously in the hardware.
	MethodDryerStop Method = "dryer_stop"
)

// IsValid reports whether m names a known method.
func (m Method) IsValid() bool {
	switch m {
	case MethodGetInfo, MethodGetStatus, MethodFeed, MethodRetract,
		MethodFeedAssist, MethodFeedAssistOff, MethodDryerStart, MethodDryerStop:
		return true
	default:
		return false
	}
}

// Errors returned by command construction.
var (
	// ErrUnknownMethod indicates a method outside the supported set.
	ErrUnknownMethod = errors.New("unknown method")

	// ErrInvalidParams indicates parameters of the wrong shape for the
	// method.
	ErrInvalidParams = errors.New("invalid parameters")
)

// MoveParams parameterizes feed and back commands. Length is
// millimeters, Speed is millimeters per second; the hardware accepts
// speeds 10..80.
type MoveParams struct {
	Index  int `json:"index"`
	Length int `json:"len"`
	Speed  int `json:"speed"`
}

// AssistParams parameterizes feed_assist.
type AssistParams struct {
	Index int `json:"index"`
}

// DryerParams parameterizes dryer_start. Temp is degrees Celsius, Time
// is minutes.
type DryerParams struct {
	Temp int `json:"temp"`
	Time int `json:"time"`
}

// Command is one validated unit instruction. Commands are immutable
// once built; the transport assigns the correlation id at send time.
type Command struct {
	method Method
	params any
}

// NewCommand builds a command for an arbitrary method. Unknown methods
// and mismatched parameter shapes are rejected here rather than at the
// wire boundary.
func NewCommand(method Method, params any) (*Command, error) {
	if !method.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	ok := false
	switch method {
	case MethodFeed, MethodRetract:
		_, ok = params.(MoveParams)
	case MethodFeedAssist:
		_, ok = params.(AssistParams)
	case MethodDryerStart:
		_, ok = params.(DryerParams)
	default:
		ok = params == nil
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s with %T", ErrInvalidParams, method, params)
	}
	return &Command{method: method, params: params}, nil
}

// Method returns the wire method name.
func (c *Command) Method() Method { return c.method }

// Params returns the typed parameter struct, or nil for parameterless
// methods.
func (c *Command) Params() any { return c.params }

// NewGetInfoCommand requests model and firmware identification.
func NewGetInfoCommand() *Command {
	return &Command{method: MethodGetInfo}
}

// NewGetStatusCommand requests the full unit status snapshot.
func NewGetStatusCommand() *Command {
	return &Command{method: MethodGetStatus}
}

// NewFeedCommand feeds length millimeters forward on one channel.
func NewFeedCommand(channel, length, speed int) *Command {
	return &Command{method: MethodFeed, params: MoveParams{Index: channel, Length: length, Speed: speed}}
}

// NewRetractCommand pulls length millimeters back on one channel.
func NewRetractCommand(channel, length, speed int) *Command {
	return &Command{method: MethodRetract, params: MoveParams{Index: channel, Length: length, Speed: speed}}
}

// NewFeedAssistCommand enables feed assist on one channel.
func NewFeedAssistCommand(channel int) *Command {
	return &Command{method: MethodFeedAssist, params: AssistParams{Index: channel}}
}

// NewFeedAssistOffCommand disables feed assist unit-wide.
func NewFeedAssistOffCommand() *Command {
	return &Command{method: MethodFeedAssistOff}
}

// NewDryerStartCommand starts the dryer at temp degrees Celsius for the
// given number of minutes.
func NewDryerStartCommand(temp, minutes int) *Command {
	return &Command{method: MethodDryerStart, params: DryerParams{Temp: temp, Time: minutes}}
}

// NewDryerStopCommand stops the dryer.
func NewDryerStopCommand() *Command {
	return &Command{method: MethodDryerStop}
}
