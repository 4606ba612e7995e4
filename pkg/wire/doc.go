// Package wire implements the framed JSON wire format spoken by ACE
// filament-feeding units.
//
// Each frame wraps one JSON request or response:
//
//	[0xFF 0xAA] [len uint16 LE] [payload] [crc uint16 LE] [0xFE]
//
// The CRC is CRC-16/MCRF4XX computed over payload bytes only. Requests
// carry a correlation id, a method name and optional parameters;
// responses echo the id and carry either a result object or an error
// code with a message.
//
// # Command Set
//
// The method set is closed: get_info, get_status, feed, back,
// feed_assist, feed_assist_off, dryer_start, dryer_stop. Commands are
// built through typed constructors and carry typed parameter structs;
// unknown methods are rejected at construction, not at the wire
// boundary.
//
// # Stream Decoding
//
// DecodeResponse is a pure function from buffered bytes to at most one
// parsed response plus leftover bytes. It never blocks. Corrupt frames
// are dropped and the scanner resynchronizes on the next header pair;
// the transport layer treats them as "no response yet" until its
// deadline expires.
package wire
