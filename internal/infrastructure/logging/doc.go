// Package logging provides structured logging for an InfiGrid node.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig section of the config file:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	nodeLog := logger.Component("node")
//	nodeLog.Info("journal replayed", "head", head.Seq)
//
// # Security
//
// Never log bearer tokens, the JWT secret, or broker credentials. Principals
// and journal hashes are not secret and are logged freely.
package logging
