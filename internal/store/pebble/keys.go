package pebbleq

import (
	"encoding/binary"
	"fmt"
)

// Key prefixes within a queue's keyspace.
const (
	prefixRegistry = "queues/"
	prefixMsg      = "msg/"
	prefixReady    = "ready/"
	prefixLease    = "lease/"
	prefixLeaseIdx = "lease_idx/"
	prefixArchive  = "arch/"
)

// queuePrefix returns the base prefix for a queue.
// Format: q/{name}/
func queuePrefix(name string) string {
	return fmt.Sprintf("q/%s/", name)
}

// registryKey returns the queue registry key.
// Format: queues/{name}
func registryKey(name string) []byte {
	return []byte(prefixRegistry + name)
}

// metaKey returns the per-queue metadata key.
// Format: q/{name}/meta
func metaKey(name string) []byte {
	return []byte(queuePrefix(name) + "meta")
}

// msgKey returns the message record key.
// Format: q/{name}/msg/{seq}
func msgKey(name string, seq uint64) []byte {
	return seqKey(queuePrefix(name)+prefixMsg, seq)
}

// readyKey returns the availability index key.
// Format: q/{name}/ready/{seq}
func readyKey(name string, seq uint64) []byte {
	return seqKey(queuePrefix(name)+prefixReady, seq)
}

// leaseKey returns the lease record key.
// Format: q/{name}/lease/{seq}
func leaseKey(name string, seq uint64) []byte {
	return seqKey(queuePrefix(name)+prefixLease, seq)
}

// leaseIdxKey returns the lease expiry index key.
// Format: q/{name}/lease_idx/{expiry_ms}/{seq}
func leaseIdxKey(name string, expiryMs int64, seq uint64) []byte {
	prefix := queuePrefix(name) + prefixLeaseIdx
	key := make([]byte, len(prefix)+8+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(expiryMs))
	binary.BigEndian.PutUint64(key[len(prefix)+8:], seq)
	return key
}

// archiveKey returns the archived record key.
// Format: q/{name}/arch/{seq}
func archiveKey(name string, seq uint64) []byte {
	return seqKey(queuePrefix(name)+prefixArchive, seq)
}

// seqKey appends a big-endian sequence to a string prefix so that byte
// order matches numeric order.
func seqKey(prefix string, seq uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], seq)
	return key
}

// keyRange returns start and (exclusive) end keys for scanning a prefix.
func keyRange(prefix string) ([]byte, []byte) {
	start := []byte(prefix)
	end := make([]byte, len(prefix)+1)
	copy(end, prefix)
	end[len(prefix)] = 0xFF
	return start, end
}

// seqFromKey extracts the trailing big-endian sequence from an index key.
func seqFromKey(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[len(key)-8:])
}
