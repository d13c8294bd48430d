package config

import (
	"testing"
)

func TestDefaultDataDirXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got := DefaultDataDir(); got != "/custom/data/mbus" {
		t.Fatalf("expected /custom/data/mbus, got %s", got)
	}
}

func TestDefaultDataDirNotEmpty(t *testing.T) {
	if DefaultDataDir() == "" {
		t.Fatalf("default data dir must never be empty")
	}
}
