package logger

import "github.com/teranos/loom/sym"

// Symbol-aware logging helpers for the package-level logger.
// These functions log with the symbol as a structured field, not in the message.
//
// Usage:
//
//	// Instead of:
//	logger.Infow(sym.Run + " Configuration reloaded", "path", path)
//
//	// Use:
//	logger.RunInfow("Configuration reloaded", "path", path)
//
// This makes logs queryable by symbol and keeps messages clean. Code holding
// an instance logger attaches the field directly: l.Infow(msg, FieldSymbol, sym.Run).

// RunInfow logs an info message with the Run symbol (꩜)
func RunInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.Run}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// OpenInfow logs an info message with the Open symbol (✿)
// Used for graceful startup operations
func OpenInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.Open}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// CloseInfow logs an info message with the Close symbol (❀)
// Used for graceful shutdown operations
func CloseInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.Close}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// SyncDebugw logs a debug message with the Sync symbol (⇆)
// Used for cross-instance replication events
func SyncDebugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.Sync}, keysAndValues...)
		Logger.Debugw(msg, fields...)
	}
}

// SyncWarnw logs a warning message with the Sync symbol (⇆)
func SyncWarnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.Sync}, keysAndValues...)
		Logger.Warnw(msg, fields...)
	}
}
