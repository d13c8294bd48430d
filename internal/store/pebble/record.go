package pebbleq

import (
	"encoding/binary"
	"hash/crc32"
)

// Message record: enqueuedAtMs(8B BE) | readCount(4B BE) | payload | crc32c(payload)
//
// The payload is the envelope's wire JSON. The checksum covers the payload
// only; the fixed header is rewritten on every lease (read count bump).

const recordHeaderLen = 12

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

type record struct {
	EnqueuedAtMs int64
	ReadCount    uint32
	Payload      []byte
}

func encodeRecord(r record) []byte {
	out := make([]byte, recordHeaderLen, recordHeaderLen+len(r.Payload)+4)
	binary.BigEndian.PutUint64(out[0:8], uint64(r.EnqueuedAtMs))
	binary.BigEndian.PutUint32(out[8:12], r.ReadCount)
	out = append(out, r.Payload...)
	var cb [4]byte
	binary.BigEndian.PutUint32(cb[:], crc32.Checksum(r.Payload, castagnoli))
	return append(out, cb[:]...)
}

func decodeRecord(b []byte) (record, bool) {
	if len(b) < recordHeaderLen+4 {
		return record{}, false
	}
	payload := b[recordHeaderLen : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	if crc32.Checksum(payload, castagnoli) != expect {
		return record{}, false
	}
	return record{
		EnqueuedAtMs: int64(binary.BigEndian.Uint64(b[0:8])),
		ReadCount:    binary.BigEndian.Uint32(b[8:12]),
		Payload:      append([]byte(nil), payload...),
	}, true
}
