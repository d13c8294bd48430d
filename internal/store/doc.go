// Package store defines the queue storage contract consumed by the worker.
//
// A Store is a key-ordered, at-least-once message store with named queues,
// lease-based reads (visibility timeouts), a durable archive, and a
// transactional dead-letter re-enqueue. The worker treats every Store call
// as a synchronous, finite-duration operation; horizontal concurrency
// between worker processes rests entirely on the lease semantics.
package store
