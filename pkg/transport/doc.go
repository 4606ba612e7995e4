// Package transport maintains the serial link to a single ACE unit.
//
// A Link owns exactly one serial connection and serializes requests
// over it: one command is in flight at a time, and the matching
// response is routed back to its caller by correlation id. The unit
// firmware offers no multiplexing guarantees, so concurrent callers
// queue on the link rather than pipeline.
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      JSON commands             │
//	├────────────────────────────────┤
//	│   CRC16 framing (pkg/wire)     │
//	├────────────────────────────────┤
//	│   USB CDC serial, 115200 8N1   │
//	└────────────────────────────────┘
//
// # Failure Model
//
// A request that gets no matching response within its deadline fails
// with ErrTimeout. The link never retries timeouts; the command may
// have executed on the unit, so only the caller can decide whether
// repeating it is safe. Frame writes get a single automatic retry for
// transient driver errors.
//
// Disconnects are terminal. Once a link observes a fatal port error,
// or Close is called, every subsequent Send fails immediately with
// ErrDisconnected. Recovery means discarding the link and opening a
// new one against a freshly identified device, never silently reusing
// a path that may now belong to a different unit.
package transport
