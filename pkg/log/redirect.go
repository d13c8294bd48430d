package log

import (
	stdlog "log"
	"strings"
)

// stdLogWriter forwards standard library log output to a Logger at Info.
type stdLogWriter struct {
	logger Logger
}

func (w stdLogWriter) Write(p []byte) (int, error) {
	w.logger.Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// RedirectStdLog routes standard library log output (Pebble logs through
// it) into the given logger.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdLogWriter{logger: logger.WithComponent("stdlog")})
}
