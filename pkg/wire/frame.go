package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sigurn/crc16"
)

// Frame layout. The header pair marks the start of a frame, the length
// field counts payload bytes, and the tail byte closes the envelope.
const (
	headerByte0 = 0xFF
	headerByte1 = 0xAA
	tailByte    = 0xFE

	headerSize = 2
	lengthSize = 2
	crcSize    = 2
	tailSize   = 1

	// MinFrameSize is the size of a frame carrying an empty payload.
	MinFrameSize = headerSize + lengthSize + crcSize + tailSize

	// MaxPayloadSize is the largest payload a frame can carry; the
	// length field is 16 bits.
	MaxPayloadSize = 0xFFFF
)

// Sentinel errors returned by frame decoding.
var (
	// ErrCorruptFrame indicates a frame failed its CRC or delimiter
	// checks. The frame is dropped; it is never partially interpreted.
	ErrCorruptFrame = errors.New("corrupt frame")

	// ErrMalformedPayload indicates a frame passed integrity checks but
	// its payload could not be parsed.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrFrameTooLarge indicates a payload exceeds the 16-bit length field.
	ErrFrameTooLarge = errors.New("frame too large")
)

// crcTable parameterizes the checksum shared with the unit firmware:
// CRC-16/MCRF4XX (polynomial 0x1021 reflected, init 0xFFFF, no final xor).
var crcTable = crc16.MakeTable(crc16.CRC16_MCRF4XX)

// Checksum computes the frame CRC over payload bytes.
func Checksum(payload []byte) uint16 {
	return crc16.Checksum(payload, crcTable)
}

// EncodeFrame wraps a payload in the wire envelope:
//
//	[0xFF 0xAA] [len uint16 LE] [payload] [crc uint16 LE] [0xFE]
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	frame := make([]byte, 0, MinFrameSize+len(payload))
	frame = append(frame, headerByte0, headerByte1)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(payload)))
	frame = append(frame, payload...)
	frame = binary.LittleEndian.AppendUint16(frame, Checksum(payload))
	frame = append(frame, tailByte)
	return frame, nil
}

// NextFrame scans buf for one complete frame and returns its payload
// plus the bytes remaining after it. It never blocks.
//
// Bytes before the first header pair are garbage and are discarded.
// (nil, rest, nil) with an empty or shortened rest means no complete
// frame has arrived yet; callers append more bytes and scan again. A
// frame whose CRC or tail byte does not check out yields ErrCorruptFrame
// with rest positioned one byte past the bad header, so the next scan
// resynchronizes on any header embedded in the dropped region.
func NextFrame(buf []byte) (payload, rest []byte, err error) {
	start := indexHeader(buf)
	if start < 0 {
		// A trailing 0xFF may be the first half of a header.
		if n := len(buf); n > 0 && buf[n-1] == headerByte0 {
			return nil, buf[n-1:], nil
		}
		return nil, nil, nil
	}
	buf = buf[start:]

	if len(buf) < headerSize+lengthSize {
		return nil, buf, nil
	}
	payloadLen := int(binary.LittleEndian.Uint16(buf[headerSize:]))
	total := MinFrameSize + payloadLen
	if len(buf) < total {
		return nil, buf, nil
	}

	body := buf[headerSize+lengthSize : headerSize+lengthSize+payloadLen]
	wantCRC := binary.LittleEndian.Uint16(buf[headerSize+lengthSize+payloadLen:])
	if wantCRC != Checksum(body) {
		return nil, buf[1:], fmt.Errorf("%w: crc mismatch", ErrCorruptFrame)
	}
	if buf[total-1] != tailByte {
		return nil, buf[1:], fmt.Errorf("%w: bad tail byte 0x%02X", ErrCorruptFrame, buf[total-1])
	}
	return body, buf[total:], nil
}

func indexHeader(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == headerByte0 && buf[i+1] == headerByte1 {
			return i
		}
	}
	return -1
}
