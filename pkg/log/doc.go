// Package log provides protocol event capture for the hub and its devices.
//
// It is separate from operational logging (slog): protocol capture is a
// machine-readable trace of every envelope, decoded message, session state
// change and protocol error, for debugging and later analysis.
//
// # Basic Usage
//
//	// Development: print events via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Production: write a binary trace
//	fl, _ := log.NewFileLogger("hub.hlog")
//	cfg.ProtocolLogger = fl
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Event Types
//
//   - Transport: envelope sizes in and out (EnvelopeEvent)
//   - Wire: decoded requests and responses (MessageEvent)
//   - Service: connection, session and registry state (StateChangeEvent)
//
// Errors at any layer carry an ErrorEventData payload. Credentials are never
// recorded.
//
// # File Format
//
// Log files use the .hlog extension and hold a CBOR sequence: a FileHeader
// (magic "homehub-log" and format version) followed by events. Reopening a
// file appends after its header; readers refuse files without one or with a
// newer version. The homehub-log tool views, filters and summarizes them.
package log
