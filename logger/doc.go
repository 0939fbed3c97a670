// Package logger provides structured logging capabilities.
//
// The logger package sets up the application's zap logger in either
// production (JSON, ISO-8601 timestamps) or development (console) mode.
// Logs always go to stderr so that stdout stays free for CLI output and
// the MCP stdio transport.
//
// Usage:
//
//	log, err := logger.New("production", "info")
//	if err != nil {
//	    panic(err)
//	}
//	log.Info("Application started")
package logger
