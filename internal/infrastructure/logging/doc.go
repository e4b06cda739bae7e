// Package logging provides structured logging for Edgeberry Core.
//
// It wraps log/slog so every component logs the same way:
// JSON in production, text for development, with service and version
// fields on every record.
//
// Configured via the logging section:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("bridge").Info("command published", "device_id", id)
//
// Never log JWTs, MQTT passwords or request bodies that may carry them.
package logging
