package log

import (
	"io"
	"os"
	"sync"
)

// Output receives formatted log entries.
type Output interface {
	Write(entry *Entry, formattedEntry []byte) error
	Close() error
}

// ConsoleOutput writes entries to stdout, routing WARN and above to stderr.
type ConsoleOutput struct {
	mu     sync.Mutex
	stdout io.Writer
	stderr io.Writer
}

// NewConsoleOutput creates a console output bound to the process stdio.
func NewConsoleOutput() *ConsoleOutput {
	return &ConsoleOutput{stdout: os.Stdout, stderr: os.Stderr}
}

// NewWriterOutput creates an output that writes every entry to w. Useful in tests.
func NewWriterOutput(w io.Writer) *ConsoleOutput {
	return &ConsoleOutput{stdout: w, stderr: w}
}

// Write implements Output.
func (o *ConsoleOutput) Write(entry *Entry, formattedEntry []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	w := o.stdout
	if entry.Level >= WarnLevel {
		w = o.stderr
	}
	_, err := w.Write(formattedEntry)
	return err
}

// Close implements Output. Console streams are not closed.
func (o *ConsoleOutput) Close() error { return nil }
