// Package cli contains the Cobra commands for the mbus binary.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "github.com/mbusd/mbus/internal/config"
	pebbleq "github.com/mbusd/mbus/internal/store/pebble"
	pebblestore "github.com/mbusd/mbus/internal/storage/pebble"
	logpkg "github.com/mbusd/mbus/pkg/log"
)

// NewRoot constructs the root command with all subcommands registered.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "mbus",
		Short:        "mbus message bus CLI",
		Long:         "mbus is a single-binary message bus. Producers enqueue JSON messages onto named queues; processing runs drain them through registered handlers with lease, retry and dead-letter semantics.",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", os.Getenv("MBUS_CONFIG"), "Config file (JSON or YAML)")
	root.PersistentFlags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	root.PersistentFlags().String("fsync", "", "Fsync mode: always|interval|never")
	root.PersistentFlags().String("log-level", os.Getenv("MBUS_LOG_LEVEL"), "Log level: debug|info|warn|error")
	root.PersistentFlags().String("log-format", os.Getenv("MBUS_LOG_FORMAT"), "Log format: text|json")

	root.AddCommand(
		newQueueCommand(),
		newEnqueueCommand(),
		newProcessCommand(),
	)
	return root
}

// loadConfig resolves the effective configuration: file, then MBUS_* env,
// then persistent flags.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	if err := cfgpkg.FromEnv(&cfg); err != nil {
		return cfgpkg.Config{}, err
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("fsync"); v != "" {
		cfg.Fsync = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.LogFormat = v
	}
	return cfg, nil
}

// openStore opens the queue store described by cfg.
func openStore(cfg cfgpkg.Config) (*pebbleq.Store, error) {
	mode, err := pebblestore.ParseFsyncMode(cfg.Fsync)
	if err != nil {
		return nil, fmt.Errorf("invalid fsync mode: %w", err)
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       cfg.DataDir,
		Fsync:         mode,
		FsyncInterval: time.Duration(cfg.FsyncEveryMs) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open data dir %q: %w", cfg.DataDir, err)
	}
	return pebbleq.Open(db), nil
}

// newCmdLogger builds the logger for one command invocation. Output goes to
// the command's stderr so piped stdout stays machine-readable.
func newCmdLogger(cmd *cobra.Command, cfg cfgpkg.Config) logpkg.Logger {
	level, err := logpkg.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logpkg.InfoLevel
	}
	var formatter logpkg.Formatter = &logpkg.TextFormatter{}
	if cfg.LogFormat == "json" {
		formatter = &logpkg.JSONFormatter{}
	}
	return logpkg.NewLogger(
		logpkg.WithLevel(level),
		logpkg.WithFormatter(formatter),
		logpkg.WithOutput(logpkg.NewWriterOutput(cmd.ErrOrStderr())),
	)
}
