// Package log records structured protocol events for nxblue sockets.
//
// It is separate from operational logging (slog). A protocol log is a
// machine-readable trace of everything a socket did: frames read and
// written, commands decoded and sent, state changes and errors.
//
// # Basic Usage
//
//	// Console while developing
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Binary file for later analysis with nxblue-log
//	fl, _ := log.NewFileLogger("/var/log/nxblue/controller.nxlog")
//	cfg.ProtocolLogger = fl
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Layers
//
//   - Transport: raw framed messages (FrameEvent)
//   - Command: decoded or encoded commands (CommandEvent)
//   - Socket: lifecycle changes (StateChangeEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Files use the .nxlog extension: a CBOR FileHeader (magic "NXLOG" and a
// format version) followed by CBOR-encoded events. Readers reject files
// with another magic or a newer version.
package log
