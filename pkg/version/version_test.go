package version

import "testing"

func TestParseFirmware(t *testing.T) {
	tests := []struct {
		input string
		want  Firmware
	}{
		{"v1.2.3", Firmware{1, 2, 3}},
		{"1.2.3", Firmware{1, 2, 3}},
		{"v2.0", Firmware{2, 0, 0}},
		{"v10.23.1", Firmware{10, 23, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			fw, err := ParseFirmware(tt.input)
			if err != nil {
				t.Fatalf("ParseFirmware(%q): %v", tt.input, err)
			}
			if fw != tt.want {
				t.Errorf("ParseFirmware(%q) = %+v, want %+v", tt.input, fw, tt.want)
			}
		})
	}
}

func TestParseFirmwareInvalid(t *testing.T) {
	for _, input := range []string{"", "v1", "1.2.3.4", "v1.x.3", "v-1.2.3", "firmware"} {
		t.Run(input, func(t *testing.T) {
			if _, err := ParseFirmware(input); err == nil {
				t.Errorf("ParseFirmware(%q) succeeded, want error", input)
			}
		})
	}
}

func TestFirmwareString(t *testing.T) {
	fw := Firmware{Major: 1, Minor: 2, Patch: 3}
	if got := fw.String(); got != "v1.2.3" {
		t.Errorf("String() = %q, want v1.2.3", got)
	}
}

func TestFirmwareAtLeast(t *testing.T) {
	tests := []struct {
		a, b Firmware
		want bool
	}{
		{Firmware{1, 2, 3}, Firmware{1, 2, 3}, true},
		{Firmware{1, 2, 4}, Firmware{1, 2, 3}, true},
		{Firmware{1, 3, 0}, Firmware{1, 2, 9}, true},
		{Firmware{2, 0, 0}, Firmware{1, 9, 9}, true},
		{Firmware{1, 2, 2}, Firmware{1, 2, 3}, false},
		{Firmware{0, 9, 9}, Firmware{1, 0, 0}, false},
	}

	for _, tt := range tests {
		if got := tt.a.AtLeast(tt.b); got != tt.want {
			t.Errorf("%v.AtLeast(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
