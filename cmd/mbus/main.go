package main

import (
	"os"

	"github.com/mbusd/mbus/internal/cmd/cli"
	logpkg "github.com/mbusd/mbus/pkg/log"
)

func main() {
	// Respect MBUS_LOG_LEVEL for startup output before config is loaded.
	level := os.Getenv("MBUS_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs (used by Pebble) to our logger.
	logpkg.RedirectStdLog(logger)

	if err := cli.NewRoot().Execute(); err != nil {
		os.Exit(1)
	}
}
