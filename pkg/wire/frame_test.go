package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestChecksumKnownValue(t *testing.T) {
	// CRC-16/MCRF4XX check value for the standard test vector.
	if got := Checksum([]byte("123456789")); got != 0x6F91 {
		t.Fatalf("Checksum = 0x%04X, want 0x6F91", got)
	}
}

func TestEncodeFrameLayout(t *testing.T) {
	payload := []byte(`{"id":1,"method":"get_info"}`)
	frame, err := EncodeFrame(payload)
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	if len(frame) != MinFrameSize+len(payload) {
		t.Fatalf("frame length = %d, want %d", len(frame), MinFrameSize+len(payload))
	}
	if frame[0] != 0xFF || frame[1] != 0xAA {
		t.Errorf("header = %02X %02X, want FF AA", frame[0], frame[1])
	}
	if got := binary.LittleEndian.Uint16(frame[2:4]); int(got) != len(payload) {
		t.Errorf("length field = %d, want %d", got, len(payload))
	}
	if !bytes.Equal(frame[4:4+len(payload)], payload) {
		t.Errorf("payload bytes do not match input")
	}
	if got := binary.LittleEndian.Uint16(frame[4+len(payload):]); got != Checksum(payload) {
		t.Errorf("crc field = 0x%04X, want 0x%04X", got, Checksum(payload))
	}
	if frame[len(frame)-1] != 0xFE {
		t.Errorf("tail byte = 0x%02X, want 0xFE", frame[len(frame)-1])
	}
}

func TestEncodeFrameTooLarge(t *testing.T) {
	_, err := EncodeFrame(make([]byte, MaxPayloadSize+1))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func mustFrame(t *testing.T, payload string) []byte {
	t.Helper()
	frame, err := EncodeFrame([]byte(payload))
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	return frame
}

func TestNextFrameChunkedDelivery(t *testing.T) {
	frame := mustFrame(t, `{"id":42,"code":0}`)

	// Deliver the frame one byte at a time at every possible boundary.
	for split := 1; split < len(frame); split++ {
		payload, rest, err := NextFrame(frame[:split])
		if err != nil {
			t.Fatalf("split %d: unexpected error: %v", split, err)
		}
		if payload != nil {
			t.Fatalf("split %d: got payload from incomplete frame", split)
		}

		buf := append(append([]byte{}, rest...), frame[split:]...)
		payload, rest, err = NextFrame(buf)
		if err != nil {
			t.Fatalf("split %d: second scan failed: %v", split, err)
		}
		if string(payload) != `{"id":42,"code":0}` {
			t.Fatalf("split %d: payload = %q", split, payload)
		}
		if len(rest) != 0 {
			t.Fatalf("split %d: %d leftover bytes", split, len(rest))
		}
	}
}

func TestNextFrameSkipsGarbagePrefix(t *testing.T) {
	frame := mustFrame(t, `{"id":1}`)
	buf := append([]byte{0x00, 0x13, 0xFE, 0xFF}, frame...)

	payload, rest, err := NextFrame(buf)
	if err != nil {
		t.Fatalf("NextFrame failed: %v", err)
	}
	if string(payload) != `{"id":1}` {
		t.Fatalf("payload = %q", payload)
	}
	if len(rest) != 0 {
		t.Fatalf("rest = % X, want empty", rest)
	}
}

func TestNextFrameBackToBack(t *testing.T) {
	buf := append(mustFrame(t, `{"id":1}`), mustFrame(t, `{"id":2}`)...)

	first, rest, err := NextFrame(buf)
	if err != nil || string(first) != `{"id":1}` {
		t.Fatalf("first = %q, err = %v", first, err)
	}
	second, rest, err := NextFrame(rest)
	if err != nil || string(second) != `{"id":2}` {
		t.Fatalf("second = %q, err = %v", second, err)
	}
	if len(rest) != 0 {
		t.Fatalf("rest = % X, want empty", rest)
	}
}

// drainFrames scans buf to exhaustion and returns every payload that
// decoded successfully.
func drainFrames(buf []byte) [][]byte {
	var out [][]byte
	for {
		payload, rest, _ := NextFrame(buf)
		if payload != nil {
			out = append(out, payload)
		}
		if payload == nil && len(rest) == len(buf) {
			return out // waiting for more bytes
		}
		if len(rest) == 0 {
			return out
		}
		buf = rest
	}
}

func TestNextFrameDetectsEverySingleBitFlip(t *testing.T) {
	frame := mustFrame(t, `{"id":9,"method":"get_status"}`)

	for i := range frame {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte{}, frame...)
			mutated[i] ^= 1 << bit

			for _, payload := range drainFrames(mutated) {
				t.Fatalf("byte %d bit %d: mutated frame decoded to %q", i, bit, payload)
			}
		}
	}
}

func TestNextFrameResyncsAfterCorruptFrame(t *testing.T) {
	bad := mustFrame(t, `{"id":7,"code":0}`)
	bad[6] ^= 0x01 // flip a payload bit
	good := mustFrame(t, `{"id":8,"code":0}`)
	buf := append(bad, good...)

	_, rest, err := NextFrame(buf)
	if !errors.Is(err, ErrCorruptFrame) {
		t.Fatalf("err = %v, want ErrCorruptFrame", err)
	}

	payloads := drainFrames(rest)
	if len(payloads) != 1 || string(payloads[0]) != `{"id":8,"code":0}` {
		t.Fatalf("payloads after resync = %q", payloads)
	}
}

func TestNextFrameKeepsTrailingHalfHeader(t *testing.T) {
	payload, rest, err := NextFrame([]byte{0x01, 0x02, 0xFF})
	if err != nil || payload != nil {
		t.Fatalf("payload = %v, err = %v", payload, err)
	}
	if !bytes.Equal(rest, []byte{0xFF}) {
		t.Fatalf("rest = % X, want FF", rest)
	}
}
