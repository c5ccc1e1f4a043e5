// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// The monitor, the escalation engine and the transport take the logger
// from the context, so every tick and every check-in is logged with the
// subject it belongs to.
package logger
