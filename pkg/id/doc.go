// Package id generates compact, lexicographically sortable identifiers.
//
// mbus uses them to tag each worker invocation (a "run id") so that log
// lines from concurrent worker processes can be correlated. IDs encode a
// millisecond timestamp followed by a per-process sequence, so sorting ids
// sorts runs by start time.
package id
