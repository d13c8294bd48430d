// Package cli wires the mbus subcommands: queue management, producing, and
// bounded processing runs. Every command resolves configuration the same
// way (file, then MBUS_* environment, then flags) and opens the Pebble
// store for the duration of the invocation.
package cli
