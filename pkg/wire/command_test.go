package wire

import (
	"errors"
	"testing"
)

func TestNewCommandRejectsUnknownMethod(t *testing.T) {
	_, err := NewCommand("reboot", nil)
	if !errors.Is(err, ErrUnknownMethod) {
		t.Fatalf("err = %v, want ErrUnknownMethod", err)
	}
}

func TestNewCommandParamShapes(t *testing.T) {
	tests := []struct {
		name    string
		method  Method
		params  any
		wantErr error
	}{
		{name: "feed with move params", method: MethodFeed, params: MoveParams{Index: 0, Length: 50, Speed: 50}},
		{name: "retract with move params", method: MethodRetract, params: MoveParams{Index: 1, Length: 30, Speed: 20}},
		{name: "assist with assist params", method: MethodFeedAssist, params: AssistParams{Index: 2}},
		{name: "dryer start with dryer params", method: MethodDryerStart, params: DryerParams{Temp: 55, Time: 240}},
		{name: "get_info bare", method: MethodGetInfo},
		{name: "feed without params", method: MethodFeed, wantErr: ErrInvalidParams},
		{name: "feed with wrong params", method: MethodFeed, params: AssistParams{Index: 0}, wantErr: ErrInvalidParams},
		{name: "get_info with params", method: MethodGetInfo, params: AssistParams{Index: 0}, wantErr: ErrInvalidParams},
		{name: "assist off with params", method: MethodFeedAssistOff, params: AssistParams{Index: 0}, wantErr: ErrInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := NewCommand(tt.method, tt.params)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewCommand failed: %v", err)
			}
			if cmd.Method() != tt.method {
				t.Errorf("method = %q, want %q", cmd.Method(), tt.method)
			}
		})
	}
}

func TestConstructorParams(t *testing.T) {
	cmd := NewFeedCommand(2, 100, 35)
	mp, ok := cmd.Params().(MoveParams)
	if !ok {
		t.Fatalf("params = %T, want MoveParams", cmd.Params())
	}
	if mp.Index != 2 || mp.Length != 100 || mp.Speed != 35 {
		t.Errorf("params = %+v", mp)
	}

	if p := NewFeedAssistOffCommand().Params(); p != nil {
		t.Errorf("assist off params = %v, want nil", p)
	}
	if m := NewRetractCommand(0, 10, 10).Method(); m != MethodRetract {
		t.Errorf("retract method = %q, want %q", m, MethodRetract)
	}

	dp, ok := NewDryerStartCommand(50, 120).Params().(DryerParams)
	if !ok || dp.Temp != 50 || dp.Time != 120 {
		t.Errorf("dryer params = %+v ok=%v", dp, ok)
	}
}

func TestMethodIsValid(t *testing.T) {
	for _, m := range []Method{MethodGetInfo, MethodGetStatus, MethodFeed, MethodRetract,
		MethodFeedAssist, MethodFeedAssistOff, MethodDryerStart, MethodDryerStop} {
		if !m.IsValid() {
			t.Errorf("%q reported invalid", m)
		}
	}
	if Method("get_temp").IsValid() {
		t.Errorf("unknown method reported valid")
	}
}
