package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Correlation ids increment per link and wrap below this bound, matching
// the unit firmware's expectations.
const RequestIDModulus = 300000

// Request is one JSON-RPC call from host to unit.
//
// JSON encoding:
//
//	{"id": 7, "method": "feed", "params": {"index": 0, "len": 50, "speed": 50}}
//
// Params is omitted for parameterless methods. After decoding (device
// simulators only; the host never receives requests) Params holds a
// generic map.
type Request struct {
	ID     uint32 `json:"id"`
	Method Method `json:"method"`
	Params any    `json:"params,omitempty"`
}

// Response is one JSON-RPC reply from unit to host.
//
// JSON encoding, success with payload:
//
//	{"id": 7, "result": {...}}
//
// Success acknowledgement without payload:
//
//	{"id": 7, "code": 0, "msg": "success"}
//
// Failure carries a non-zero code, or an error value:
//
//	{"id": 7, "code": 3, "msg": "busy"}
type Response struct {
	ID     uint32          `json:"id"`
	Code   int             `json:"code"`
	Msg    string          `json:"msg,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// CommandError is a failure the unit itself reported in a response.
type CommandError struct {
	Code int
	Msg  string
}

func (e *CommandError) Error() string {
	if e.Msg == "" {
		return "command rejected: code " + strconv.Itoa(e.Code)
	}
	return fmt.Sprintf("command rejected: %s (code %d)", e.Msg, e.Code)
}

// Err folds the response's failure fields into a *CommandError, or nil
// if the response reports success.
func (r *Response) Err() error {
	if len(r.Error) > 0 {
		msg := r.Msg
		if msg == "" {
			var s string
			if json.Unmarshal(r.Error, &s) == nil {
				msg = s
			} else {
				msg = string(r.Error)
			}
		}
		return &CommandError{Code: r.Code, Msg: msg}
	}
	if r.Code != 0 {
		return &CommandError{Code: r.Code, Msg: r.Msg}
	}
	return nil
}

// Info is the get_info result payload.
type Info struct {
	Model        string `json:"model"`
	Firmware     string `json:"firmware"`
	SerialNumber string `json:"serial_number,omitempty"`
	MACAddress   string `json:"mac_address,omitempty"`
}

// Slot occupancy strings reported by the unit firmware.
const (
	SlotEmpty   = "empty"
	SlotReady   = "ready"
	SlotLoading = "loading"
	SlotError   = "error"
)

// Dryer status strings reported by the unit firmware.
const (
	DryerStopped = "stop"
	DryerDrying  = "drying"
)

// SlotStatus is one channel's entry in a get_status result. SKU, Type
// and Color come from the spool RFID tag when one is present.
type SlotStatus struct {
	Index  int    `json:"index"`
	Status string `json:"status"`
	SKU    string `json:"sku,omitempty"`
	Type   string `json:"type,omitempty"`
	Color  []int  `json:"color,omitempty"`
}

// DryerStatus is the dryer block of a get_status result. Duration and
// RemainTime are minutes.
type DryerStatus struct {
	Status     string `json:"status"`
	TargetTemp int    `json:"target_temp"`
	Duration   int    `json:"duration"`
	RemainTime int    `json:"remain_time"`
}

// Status is the get_status result payload. Temp is the unit's current
// internal temperature in degrees Celsius.
type Status struct {
	Status          string       `json:"status"`
	Temp            int          `json:"temp"`
	FanSpeed        int          `json:"fan_speed"`
	FeedAssistCount int          `json:"feed_assist_count"`
	Dryer           DryerStatus  `json:"dryer_status"`
	Slots           []SlotStatus `json:"slots"`
}

// DecodeInfo parses a get_info response's result. A response carrying a
// failure yields that failure; a success without a parseable result
// yields ErrMalformedPayload.
func DecodeInfo(resp *Response) (*Info, error) {
	if err := resp.Err(); err != nil {
		return nil, err
	}
	if len(resp.Result) == 0 {
		return nil, fmt.Errorf("%w: missing info result", ErrMalformedPayload)
	}
	var info Info
	if err := json.Unmarshal(resp.Result, &info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &info, nil
}

// DecodeStatus parses a get_status response's result.
func DecodeStatus(resp *Response) (*Status, error) {
	if err := resp.Err(); err != nil {
		return nil, err
	}
	if len(resp.Result) == 0 {
		return nil, fmt.Errorf("%w: missing status result", ErrMalformedPayload)
	}
	var st Status
	if err := json.Unmarshal(resp.Result, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &st, nil
}
