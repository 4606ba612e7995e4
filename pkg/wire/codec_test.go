package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cmd  *Command
	}{
		{name: "get_info", cmd: NewGetInfoCommand()},
		{name: "get_status", cmd: NewGetStatusCommand()},
		{name: "feed", cmd: NewFeedCommand(0, 50, 50)},
		{name: "retract", cmd: NewRetractCommand(3, 120, 30)},
		{name: "feed assist on", cmd: NewFeedAssistCommand(2)},
		{name: "feed assist off", cmd: NewFeedAssistOffCommand()},
		{name: "dryer start", cmd: NewDryerStartCommand(55, 240)},
		{name: "dryer stop", cmd: NewDryerStopCommand()},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := uint32(i + 1)
			frame, err := EncodeRequest(id, tt.cmd)
			if err != nil {
				t.Fatalf("EncodeRequest failed: %v", err)
			}

			req, rest, err := DecodeRequest(frame)
			if err != nil {
				t.Fatalf("DecodeRequest failed: %v", err)
			}
			if len(rest) != 0 {
				t.Errorf("%d leftover bytes", len(rest))
			}
			if req.ID != id {
				t.Errorf("id = %d, want %d", req.ID, id)
			}
			if req.Method != tt.cmd.Method() {
				t.Errorf("method = %q, want %q", req.Method, tt.cmd.Method())
			}
			if (req.Params != nil) != (tt.cmd.Params() != nil) {
				t.Errorf("params presence = %v, want %v", req.Params != nil, tt.cmd.Params() != nil)
			}
		})
	}
}

func TestEncodeRequestDeterministic(t *testing.T) {
	a, err := EncodeRequest(17, NewFeedCommand(1, 75, 40))
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}
	b, err := EncodeRequest(17, NewFeedCommand(1, 75, 40))
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("same logical command produced different bytes:\n% X\n% X", a, b)
	}
}

func TestEncodeRequestParamNames(t *testing.T) {
	frame, err := EncodeRequest(5, NewFeedCommand(2, 50, 60))
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}
	payload, _, err := NextFrame(frame)
	if err != nil {
		t.Fatalf("NextFrame failed: %v", err)
	}

	var raw struct {
		ID     uint32         `json:"id"`
		Method string         `json:"method"`
		Params map[string]int `json:"params"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if raw.Method != "feed" {
		t.Errorf("method = %q, want feed", raw.Method)
	}
	want := map[string]int{"index": 2, "len": 50, "speed": 60}
	for k, v := range want {
		if raw.Params[k] != v {
			t.Errorf("params[%q] = %d, want %d", k, raw.Params[k], v)
		}
	}
}

func TestResponseRoundTrip(t *testing.T) {
	result, _ := json.Marshal(map[string]string{"model": "ACE Pro", "firmware": "v1.2.3"})
	frame, err := EncodeResponse(&Response{ID: 9, Result: result})
	if err != nil {
		t.Fatalf("EncodeResponse failed: %v", err)
	}

	resp, rest, err := DecodeResponse(frame)
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("%d leftover bytes", len(rest))
	}
	if resp.ID != 9 {
		t.Errorf("id = %d, want 9", resp.ID)
	}
	if resp.Err() != nil {
		t.Errorf("Err() = %v, want nil", resp.Err())
	}

	info, err := DecodeInfo(resp)
	if err != nil {
		t.Fatalf("DecodeInfo failed: %v", err)
	}
	if info.Model != "ACE Pro" || info.Firmware != "v1.2.3" {
		t.Errorf("info = %+v", info)
	}
}

func TestDecodeResponseIncomplete(t *testing.T) {
	frame, _ := EncodeResponse(&Response{ID: 1, Code: 0})
	resp, rest, err := DecodeResponse(frame[:len(frame)-1])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != nil {
		t.Fatalf("got response from incomplete frame")
	}
	if len(rest) != len(frame)-1 {
		t.Fatalf("rest = %d bytes, want %d", len(rest), len(frame)-1)
	}
}

func TestDecodeResponseMalformedPayload(t *testing.T) {
	frame, err := EncodeFrame([]byte(`{"id":`))
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	resp, rest, err := DecodeResponse(frame)
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("err = %v, want ErrMalformedPayload", err)
	}
	if resp != nil {
		t.Errorf("got response from malformed payload")
	}
	if len(rest) != 0 {
		t.Errorf("malformed frame not consumed: %d bytes left", len(rest))
	}
}

func TestResponseErr(t *testing.T) {
	tests := []struct {
		name    string
		resp    Response
		wantErr bool
		wantMsg string
	}{
		{name: "success ack", resp: Response{ID: 1, Code: 0, Msg: "success"}},
		{name: "success result", resp: Response{ID: 2, Result: json.RawMessage(`{}`)}},
		{name: "nonzero code", resp: Response{ID: 3, Code: 3, Msg: "busy"}, wantErr: true, wantMsg: "busy"},
		{name: "error string", resp: Response{ID: 4, Error: json.RawMessage(`"no filament"`)}, wantErr: true, wantMsg: "no filament"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.resp.Err()
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Err() = %v, want nil", err)
				}
				return
			}
			var cmdErr *CommandError
			if !errors.As(err, &cmdErr) {
				t.Fatalf("Err() = %T, want *CommandError", err)
			}
			if cmdErr.Msg != tt.wantMsg {
				t.Errorf("msg = %q, want %q", cmdErr.Msg, tt.wantMsg)
			}
		})
	}
}

const statusFixture = `{
	"status": "ready",
	"temp": 28,
	"fan_speed": 7000,
	"feed_assist_count": 0,
	"dryer_status": {"status": "drying", "target_temp": 55, "duration": 240, "remain_time": 180},
	"slots": [
		{"index": 0, "status": "ready", "sku": "PLA-BK", "type": "PLA", "color": [20, 20, 20]},
		{"index": 1, "status": "empty"},
		{"index": 2, "status": "ready"},
		{"index": 3, "status": "error"}
	]
}`

func TestDecodeStatus(t *testing.T) {
	resp := &Response{ID: 11, Result: json.RawMessage(statusFixture)}

	st, err := DecodeStatus(resp)
	if err != nil {
		t.Fatalf("DecodeStatus failed: %v", err)
	}
	if st.Temp != 28 {
		t.Errorf("temp = %d, want 28", st.Temp)
	}
	if st.Dryer.Status != DryerDrying || st.Dryer.TargetTemp != 55 || st.Dryer.RemainTime != 180 {
		t.Errorf("dryer = %+v", st.Dryer)
	}
	if len(st.Slots) != 4 {
		t.Fatalf("slots = %d, want 4", len(st.Slots))
	}
	wantStates := []string{SlotReady, SlotEmpty, SlotReady, SlotError}
	for i, want := range wantStates {
		if st.Slots[i].Status != want {
			t.Errorf("slot %d status = %q, want %q", i, st.Slots[i].Status, want)
		}
	}
	if st.Slots[0].Type != "PLA" {
		t.Errorf("slot 0 type = %q, want PLA", st.Slots[0].Type)
	}
}

func TestDecodeStatusMissingResult(t *testing.T) {
	_, err := DecodeStatus(&Response{ID: 1, Code: 0})
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("err = %v, want ErrMalformedPayload", err)
	}
}

func TestDecodeStatusPropagatesCommandError(t *testing.T) {
	_, err := DecodeStatus(&Response{ID: 1, Code: 5, Msg: "not ready"})
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("err = %T, want *CommandError", err)
	}
}
