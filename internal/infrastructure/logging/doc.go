// Package logging provides structured logging for Idiotic Core.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the controller.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Rotating file output via lumberjack
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file:
//	    path: "./logs/idiotic.log"
//	    max_size: 50     # megabytes
//	    max_backups: 3
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	defer logger.Close()
//	logger.Info("device connected", "class", "TempSensor", "id", id)
package logging
