package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Fsync != "always" {
		t.Fatalf("default fsync mode")
	}
	if cfg.Process.MaxMessages != 100 {
		t.Fatalf("default max messages")
	}
	if cfg.Process.ErrorVisibilityTimeoutSeconds != cfg.Process.MaxRuntimeSeconds+1 {
		t.Fatalf("error visibility must exceed the runtime budget")
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "mbus.json")
	data := []byte(`{"dataDir":"/srv/mbus","fsync":"never","process":{"maxMessages":25}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/srv/mbus" {
		t.Fatalf("expected /srv/mbus, got %s", cfg.DataDir)
	}
	if cfg.Fsync != "never" {
		t.Fatalf("expected never")
	}
	if cfg.Process.MaxMessages != 25 {
		t.Fatalf("expected 25")
	}
	// Untouched fields keep their defaults.
	if cfg.Process.MaxRuntimeSeconds != 600 {
		t.Fatalf("expected default runtime")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "mbus.yaml")
	data := []byte("dataDir: /srv/mbus\nlogFormat: json\nprocess:\n  maxRuntimeSeconds: 120\n  deleteMessages: true\n")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("expected json format")
	}
	if cfg.Process.MaxRuntimeSeconds != 120 {
		t.Fatalf("expected 120")
	}
	if !cfg.Process.DeleteMessages {
		t.Fatalf("expected delete mode")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("MBUS_FSYNC", "interval")
	t.Setenv("MBUS_LOG_LEVEL", "debug")
	t.Setenv("MBUS_PROCESS_MAX_MESSAGES", "7")
	if err := FromEnv(&cfg); err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Fsync != "interval" {
		t.Fatalf("env override fsync")
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("env override log level")
	}
	if cfg.Process.MaxMessages != 7 {
		t.Fatalf("env override max messages")
	}
}
