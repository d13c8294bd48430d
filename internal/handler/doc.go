// Package handler defines the per-queue message handler contract and the
// registry that resolves queue names to handler instances.
//
// A handler must implement Handle; Validate is an optional capability
// discovered by type assertion. The registry is built explicitly at startup
// from queue-name to factory registrations; there is no dynamic lookup by
// naming convention.
package handler
