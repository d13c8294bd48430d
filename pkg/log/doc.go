// Package log provides structured logging for mbus commands and the
// processing worker.
//
// Loggers carry typed fields and a component tag. Output is pluggable via
// Formatter (text or JSON) and Output (console by default):
//
//	logger := log.NewLogger(log.WithLevel(log.InfoLevel))
//	logger = logger.WithComponent("worker")
//	logger.Info("message archived", log.F("queue", q), log.F("id", id))
package log
