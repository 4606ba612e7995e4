// Package log provides structured protocol logging for ACE units.
//
// This package defines the Logger interface and Event types for
// capturing protocol-level events at multiple layers (transport, wire,
// discovery, unit). It is separate from operational logging (slog):
// protocol capture provides a complete machine-readable trace of the
// serial traffic for debugging and analysis.
//
// # Basic Usage
//
// Components take a Logger through their config:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For capture: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("ace-trace.alog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events carry one type-specific payload:
//   - Frame: raw frame bytes at the serial boundary
//   - Message: decoded requests and responses with correlation ids
//   - StateChange: link, channel and dryer state transitions
//   - Error: failures at any layer
//
// # File Format
//
// Capture files are a CBOR event stream with .alog extension. The
// ace-log CLI tool provides viewing, filtering and statistics.
package log
