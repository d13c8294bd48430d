// Package pebbleq implements the queue store contract on top of Pebble.
//
// # Keyspace
//
// All keys for a queue live under q/{name}/:
//
//	queues/{name}            - queue registry entry (creation time, options)
//	q/{name}/meta            - last assigned sequence (8B BE)
//	q/{name}/msg/{seq}       - message record (see record.go)
//	q/{name}/ready/{seq}     - availability index, FIFO by sequence
//	q/{name}/lease/{seq}     - active lease (expiry_ms 8B BE)
//	q/{name}/lease_idx/{expiry_ms}/{seq} - lease expiry index for reclaim
//	q/{name}/arch/{seq}      - archived message record
//
// # Message Lifecycle
//
//  1. Enqueue: record written, ready index entry added
//  2. Dequeue: expired leases reclaimed, first ready entry leased
//  3. Terminal: Archive (record moved to arch/), Delete (record removed),
//     or EnqueueError (new leased record written, original removed, one batch)
//  4. Lease expiry: entry returns to the ready index on the next Dequeue
//
// Leases make delivery at-least-once: a worker that dies mid-processing
// simply lets the lease lapse and the message is re-delivered.
package pebbleq
