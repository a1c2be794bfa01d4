// Package logger provides structured logging for clipshare.
//
//   - logger.go: slog-based logger, JSON or text output, runtime level changes
//   - context.go: request ID propagation
//   - redact.go: clipboard payload and credential masking
//
// Clipboard contents are user data and never reach the log verbatim:
// payload attributes are reduced to their size and a short prefix.
package logger
