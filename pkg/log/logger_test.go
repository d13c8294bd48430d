package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": DebugLevel,
		"INFO":  InfoLevel,
		"warn":  WarnLevel,
		"error": ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("shout"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithLevel(WarnLevel), WithOutput(NewWriterOutput(&buf)))
	logger.Info("dropped")
	logger.Warn("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info entry should be filtered: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn entry missing: %q", out)
	}
}

func TestWithFieldsAndComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(NewWriterOutput(&buf)))
	logger = logger.WithComponent("worker").With(F("queue", "orders"))
	logger.Info("leased", F("id", 7))
	out := buf.String()
	for _, want := range []string{"component=worker", "queue=orders", "id=7", "leased"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithFormatter(&JSONFormatter{}), WithOutput(NewWriterOutput(&buf)))
	logger.Info("hello", F("n", 1))
	out := buf.String()
	if !strings.Contains(out, `"msg":"hello"`) || !strings.Contains(out, `"n":1`) {
		t.Fatalf("unexpected json output: %q", out)
	}
}
