package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DataDir      string  `json:"dataDir" yaml:"dataDir" env:"DATA_DIR"`
	Fsync        string  `json:"fsync" yaml:"fsync" env:"FSYNC"`
	FsyncEveryMs int     `json:"fsyncEveryMs" yaml:"fsyncEveryMs" env:"FSYNC_EVERY_MS"`
	LogLevel     string  `json:"logLevel" yaml:"logLevel" env:"LOG_LEVEL"`
	LogFormat    string  `json:"logFormat" yaml:"logFormat" env:"LOG_FORMAT"`
	Process      Process `json:"process" yaml:"process" envPrefix:"PROCESS_"`
}

// Process captures baseline limits for one processing run. CLI flags
// override these per invocation.
type Process struct {
	MaxMessages                   int  `json:"maxMessages" yaml:"maxMessages" env:"MAX_MESSAGES"`
	MaxRuntimeSeconds             int  `json:"maxRuntimeSeconds" yaml:"maxRuntimeSeconds" env:"MAX_RUNTIME_SECONDS"`
	VisibilityTimeoutSeconds      int  `json:"visibilityTimeoutSeconds" yaml:"visibilityTimeoutSeconds" env:"VISIBILITY_TIMEOUT_SECONDS"`
	ErrorVisibilityTimeoutSeconds int  `json:"errorVisibilityTimeoutSeconds" yaml:"errorVisibilityTimeoutSeconds" env:"ERROR_VISIBILITY_TIMEOUT_SECONDS"`
	DeleteMessages                bool `json:"deleteMessages" yaml:"deleteMessages" env:"DELETE_MESSAGES"`
}

// Default returns built-in defaults. The error visibility window sits one
// second past the runtime budget so failed copies never re-surface within
// the run that produced them.
func Default() Config {
	return Config{
		DataDir:      DefaultDataDir(),
		Fsync:        "always",
		FsyncEveryMs: 50,
		LogLevel:     "info",
		LogFormat:    "text",
		Process: Process{
			MaxMessages:                   100,
			MaxRuntimeSeconds:             600,
			VisibilityTimeoutSeconds:      300,
			ErrorVisibilityTimeoutSeconds: 601,
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) on top
// of defaults. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// FromEnv overlays MBUS_* environment variables onto cfg. A .env file in
// the working directory is read first when present; real environment
// variables win over it.
func FromEnv(cfg *Config) error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return env.ParseWithOptions(cfg, env.Options{Prefix: "MBUS_"})
}
