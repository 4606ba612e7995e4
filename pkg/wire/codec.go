package wire

import (
	"encoding/json"
	"fmt"
)

// MarshalRequest serializes a command under the given correlation id
// into frame payload bytes, without the envelope. Encoding is
// deterministic: parameter structs marshal in field declaration order,
// so the same logical command always produces the same bytes.
func MarshalRequest(id uint32, cmd *Command) ([]byte, error) {
	req := Request{ID: id, Method: cmd.Method(), Params: cmd.Params()}
	payload, err := json.Marshal(&req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return payload, nil
}

// EncodeRequest is MarshalRequest plus the frame envelope.
func EncodeRequest(id uint32, cmd *Command) ([]byte, error) {
	payload, err := MarshalRequest(id, cmd)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(payload)
}

// EncodeResponse serializes and frames a response. The host only
// consumes responses; this exists for device simulators and tests.
func EncodeResponse(resp *Response) ([]byte, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return EncodeFrame(payload)
}

// ParseResponse decodes one intact frame payload into a response.
func ParseResponse(payload []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &resp, nil
}

// DecodeResponse extracts at most one response from buffered stream
// bytes. It shares NextFrame's contract: rest holds the bytes the
// caller must keep, a nil response with a nil error means no complete
// frame has arrived, ErrCorruptFrame means a frame was dropped, and
// ErrMalformedPayload means an intact frame carried unparseable JSON
// (the frame is consumed either way).
func DecodeResponse(buf []byte) (*Response, []byte, error) {
	payload, rest, err := NextFrame(buf)
	if err != nil || payload == nil {
		return nil, rest, err
	}
	resp, err := ParseResponse(payload)
	if err != nil {
		return nil, rest, err
	}
	return resp, rest, nil
}

// DecodeRequest extracts at most one request from buffered stream
// bytes, mirroring DecodeResponse. Device simulators use this; the
// host never receives requests.
func DecodeRequest(buf []byte) (*Request, []byte, error) {
	payload, rest, err := NextFrame(buf)
	if err != nil || payload == nil {
		return nil, rest, err
	}
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, rest, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if !req.Method.IsValid() {
		return nil, rest, fmt.Errorf("%w: %q", ErrUnknownMethod, req.Method)
	}
	return &req, rest, nil
}
