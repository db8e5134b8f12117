// Package log provides structured protocol logging for the Zik client.
//
// This package defines the Logger interface and Event types for
// capturing protocol-level events at multiple layers (transport, wire,
// session). It is separate from operational logging - protocol capture
// provides a complete machine-readable trace of the control channel
// for debugging against real headsets.
//
// # Basic Usage
//
// Components accept a Logger in their configuration:
//
//	// For development: log to console via slog
//	cfg.Logger = log.NewSlogAdapter(slog.Default())
//
//	// For field captures: write to binary file
//	cfg.Logger, _ = log.NewFileLogger("session.zlog")
//
//	// Both: use MultiLogger
//	cfg.Logger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Log files use CBOR encoding with integer keys (.zlog extension).
// The zik-log CLI tool views and exports captured files.
package log
