// Package message defines the wire and record shape of queue messages.
//
// Every message is an Envelope: an opaque JSON payload under "data" plus a
// structured "meta" record that carries routing and error information. The
// payload is kept as raw bytes end to end so that a dead-lettered copy is
// byte-identical to the original.
package message
