package pebbleq

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/mbusd/mbus/internal/message"
	pebblestore "github.com/mbusd/mbus/internal/storage/pebble"
	"github.com/mbusd/mbus/internal/store"
)

// Store implements store.Store on a Pebble database.
type Store struct {
	db *pebblestore.DB

	mu sync.Mutex // guards sequence allocation per process

	// now is the clock used for enqueue timestamps and lease expiry.
	// Overridable in tests.
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open wraps an opened Pebble database as a queue store. The store takes
// ownership of the database; Close closes it.
func Open(db *pebblestore.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// registryEntry is the stored value of a queue registry key.
type registryEntry struct {
	CreatedAtMs int64             `json:"created_at_ms"`
	Options     map[string]string `json:"options,omitempty"`
}

// CreateQueue registers the queue. Re-creating an existing queue is a no-op
// and does not overwrite its options.
func (s *Store) CreateQueue(_ context.Context, name string, opts store.CreateOptions) error {
	// Queue keyspaces are separated by "/"; a name containing one would
	// alias another queue's prefix (DestroyQueue("a") would wipe "a/b").
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("pebbleq: invalid queue name %q", name)
	}
	if _, err := s.db.Get(registryKey(name)); err == nil {
		return nil
	} else if !errors.Is(err, pebblestore.ErrNotFound) {
		return err
	}
	entry := registryEntry{CreatedAtMs: s.now().UnixMilli(), Options: opts}
	val, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.db.Set(registryKey(name), val)
}

// QueueOptions returns the creation options recorded on the queue's
// registry entry.
func (s *Store) QueueOptions(_ context.Context, name string) (store.CreateOptions, error) {
	val, err := s.db.Get(registryKey(name))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return nil, &store.NotFoundError{Queue: name}
		}
		return nil, err
	}
	var entry registryEntry
	if err := json.Unmarshal(val, &entry); err != nil {
		return nil, err
	}
	return entry.Options, nil
}

// ListQueues returns all registered queue names in sorted order.
func (s *Store) ListQueues(_ context.Context) ([]string, error) {
	lo, hi := keyRange(prefixRegistry)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var names []string
	for ok := iter.First(); ok; ok = iter.Next() {
		names = append(names, string(iter.Key()[len(prefixRegistry):]))
	}
	return names, nil
}

// DestroyQueue removes the queue, its archive, and its registry entry.
func (s *Store) DestroyQueue(ctx context.Context, name string) error {
	if err := s.ensureQueue(name); err != nil {
		return err
	}
	lo, hi := keyRange(queuePrefix(name))
	if err := s.db.DeleteRange(ctx, lo, hi); err != nil {
		return err
	}
	return s.db.Delete(registryKey(name))
}

// PurgeQueue removes all active messages (leased ones included) and returns
// the count removed. The archive is retained.
func (s *Store) PurgeQueue(ctx context.Context, name string) (int64, error) {
	if err := s.ensureQueue(name); err != nil {
		return 0, err
	}
	count, err := s.countPrefix(queuePrefix(name) + prefixMsg)
	if err != nil {
		return 0, err
	}
	for _, p := range []string{prefixMsg, prefixReady, prefixLease, prefixLeaseIdx} {
		lo, hi := keyRange(queuePrefix(name) + p)
		if err := s.db.DeleteRange(ctx, lo, hi); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// Enqueue appends the envelope to the queue named in its metadata.
func (s *Store) Enqueue(ctx context.Context, env message.Envelope) (uint64, error) {
	name := env.Meta.QueueName
	if err := s.ensureQueue(name); err != nil {
		return 0, err
	}
	payload, err := env.Encode()
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.nextSeq(name)
	if err != nil {
		return 0, err
	}

	b := s.db.NewBatch()
	defer b.Close()
	rec := encodeRecord(record{EnqueuedAtMs: s.now().UnixMilli(), Payload: payload})
	if err := b.Set(msgKey(name, seq), rec, nil); err != nil {
		return 0, err
	}
	if err := b.Set(readyKey(name, seq), nil, nil); err != nil {
		return 0, err
	}
	if err := s.putSeq(b, name, seq); err != nil {
		return 0, err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return 0, err
	}
	return seq, nil
}

// Dequeue reclaims expired leases, then leases the lowest ready sequence
// for the visibility window. Returns (nil, nil) when nothing is visible.
func (s *Store) Dequeue(ctx context.Context, name string, visibility time.Duration) (*message.Message, error) {
	if err := s.ensureQueue(name); err != nil {
		return nil, err
	}
	nowMs := s.now().UnixMilli()
	if err := s.reclaimExpired(ctx, name, nowMs); err != nil {
		return nil, err
	}

	lo, hi := keyRange(queuePrefix(name) + prefixReady)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	for ok := iter.First(); ok; ok = iter.Next() {
		seq := seqFromKey(iter.Key())
		val, err := s.db.Get(msgKey(name, seq))
		if err != nil {
			// Orphaned index entry; drop it and keep scanning.
			_ = s.db.Delete(readyKey(name, seq))
			continue
		}
		rec, okDec := decodeRecord(val)
		if !okDec {
			_ = s.db.Delete(readyKey(name, seq))
			_ = s.db.Delete(msgKey(name, seq))
			continue
		}

		env, err := message.DecodeEnvelope(rec.Payload)
		if err != nil {
			return nil, fmt.Errorf("pebbleq: message %d in %q: %w", seq, name, err)
		}

		rec.ReadCount++
		expiryMs := nowMs + visibility.Milliseconds()

		b := s.db.NewBatch()
		var lease [8]byte
		binary.BigEndian.PutUint64(lease[:], uint64(expiryMs))
		if err := b.Set(msgKey(name, seq), encodeRecord(rec), nil); err != nil {
			b.Close()
			return nil, err
		}
		if err := b.Set(leaseKey(name, seq), lease[:], nil); err != nil {
			b.Close()
			return nil, err
		}
		if err := b.Set(leaseIdxKey(name, expiryMs, seq), nil, nil); err != nil {
			b.Close()
			return nil, err
		}
		if err := b.Delete(readyKey(name, seq), nil); err != nil {
			b.Close()
			return nil, err
		}
		if err := s.db.CommitBatch(ctx, b); err != nil {
			b.Close()
			return nil, err
		}
		b.Close()

		return &message.Message{
			ID:         seq,
			Queue:      name,
			EnqueuedAt: time.UnixMilli(rec.EnqueuedAtMs),
			ReadCount:  int(rec.ReadCount),
			Envelope:   env,
		}, nil
	}
	return nil, nil
}

// Delete permanently removes the message and any lease it holds.
func (s *Store) Delete(ctx context.Context, name string, id uint64) error {
	if err := s.ensureQueue(name); err != nil {
		return err
	}
	if _, err := s.db.Get(msgKey(name, id)); err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return &store.MessageNotFoundError{Queue: name, ID: id}
		}
		return err
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := s.removeActive(b, name, id); err != nil {
		return err
	}
	return s.db.CommitBatch(ctx, b)
}

// Archive moves the message record into the archive space.
func (s *Store) Archive(ctx context.Context, name string, id uint64) error {
	if err := s.ensureQueue(name); err != nil {
		return err
	}
	val, err := s.db.Get(msgKey(name, id))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return &store.MessageNotFoundError{Queue: name, ID: id}
		}
		return err
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(archiveKey(name, id), val, nil); err != nil {
		return err
	}
	if err := s.removeActive(b, name, id); err != nil {
		return err
	}
	return s.db.CommitBatch(ctx, b)
}

// EnqueueError writes the envelope as a new message already under a lease
// that expires after errorVisibility, and removes the original in the same
// batch, so the queue never shows both copies.
func (s *Store) EnqueueError(ctx context.Context, env message.Envelope, originalID uint64, name string, errorVisibility time.Duration) (uint64, error) {
	if err := s.ensureQueue(name); err != nil {
		return 0, err
	}
	if _, err := s.db.Get(msgKey(name, originalID)); err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return 0, &store.MessageNotFoundError{Queue: name, ID: originalID}
		}
		return 0, err
	}
	payload, err := env.Encode()
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.nextSeq(name)
	if err != nil {
		return 0, err
	}
	nowMs := s.now().UnixMilli()
	expiryMs := nowMs + errorVisibility.Milliseconds()

	b := s.db.NewBatch()
	defer b.Close()
	rec := encodeRecord(record{EnqueuedAtMs: nowMs, Payload: payload})
	if err := b.Set(msgKey(name, seq), rec, nil); err != nil {
		return 0, err
	}
	var lease [8]byte
	binary.BigEndian.PutUint64(lease[:], uint64(expiryMs))
	if err := b.Set(leaseKey(name, seq), lease[:], nil); err != nil {
		return 0, err
	}
	if err := b.Set(leaseIdxKey(name, expiryMs, seq), nil, nil); err != nil {
		return 0, err
	}
	if err := s.removeActive(b, name, originalID); err != nil {
		return 0, err
	}
	if err := s.putSeq(b, name, seq); err != nil {
		return 0, err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return 0, err
	}
	return seq, nil
}

// Metrics returns aggregate counts and visible-message ages for the queue.
func (s *Store) Metrics(_ context.Context, name string) (store.Metrics, error) {
	if err := s.ensureQueue(name); err != nil {
		return store.Metrics{}, err
	}
	m := store.Metrics{Queue: name}

	var err error
	if m.QueueLength, err = s.countPrefix(queuePrefix(name) + prefixReady); err != nil {
		return store.Metrics{}, err
	}
	if m.LeasedLength, err = s.countPrefix(queuePrefix(name) + prefixLease); err != nil {
		return store.Metrics{}, err
	}
	if m.ArchivedMessages, err = s.countPrefix(queuePrefix(name) + prefixArchive); err != nil {
		return store.Metrics{}, err
	}
	if meta, err := s.db.Get(metaKey(name)); err == nil && len(meta) >= 8 {
		m.TotalMessages = int64(binary.BigEndian.Uint64(meta[:8]))
	}

	// Oldest/newest visible ages come from the ready index boundaries.
	lo, hi := keyRange(queuePrefix(name) + prefixReady)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return store.Metrics{}, err
	}
	defer iter.Close()

	now := s.now()
	if iter.First() {
		if age, ok := s.messageAge(name, seqFromKey(iter.Key()), now); ok {
			m.OldestVisibleAge = age
		}
	}
	if iter.Last() {
		if age, ok := s.messageAge(name, seqFromKey(iter.Key()), now); ok {
			m.NewestVisibleAge = age
		}
	}
	return m, nil
}

// reclaimExpired returns messages with lapsed leases to the ready index.
func (s *Store) reclaimExpired(ctx context.Context, name string, nowMs int64) error {
	prefix := queuePrefix(name) + prefixLeaseIdx
	lo, hi := keyRange(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return err
	}
	defer iter.Close()

	b := s.db.NewBatch()
	defer b.Close()
	reclaimed := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		k := iter.Key()
		if len(k) < len(prefix)+16 {
			continue
		}
		expiryMs := int64(binary.BigEndian.Uint64(k[len(prefix) : len(prefix)+8]))
		if expiryMs > nowMs {
			break
		}
		seq := seqFromKey(k)
		if err := b.Delete(k, nil); err != nil {
			return err
		}
		// A stale index entry may outlive its lease (lease re-taken with a
		// new expiry, or message already resolved). Only an entry matching
		// the live lease returns the message to availability.
		lease, err := s.db.Get(leaseKey(name, seq))
		if err != nil || len(lease) < 8 || int64(binary.BigEndian.Uint64(lease[:8])) != expiryMs {
			continue
		}
		if err := b.Delete(leaseKey(name, seq), nil); err != nil {
			return err
		}
		if _, err := s.db.Get(msgKey(name, seq)); err != nil {
			continue
		}
		if err := b.Set(readyKey(name, seq), nil, nil); err != nil {
			return err
		}
		reclaimed++
	}
	if reclaimed == 0 && b.Empty() {
		return nil
	}
	return s.db.CommitBatch(ctx, b)
}

// removeActive stages deletion of all active-space keys for a message.
func (s *Store) removeActive(b *pebble.Batch, name string, id uint64) error {
	if lease, err := s.db.Get(leaseKey(name, id)); err == nil && len(lease) >= 8 {
		expiryMs := int64(binary.BigEndian.Uint64(lease[:8]))
		if err := b.Delete(leaseIdxKey(name, expiryMs, id), nil); err != nil {
			return err
		}
	}
	for _, k := range [][]byte{msgKey(name, id), readyKey(name, id), leaseKey(name, id)} {
		if err := b.Delete(k, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureQueue(name string) error {
	if name == "" {
		return errors.New("pebbleq: queue name is required")
	}
	if _, err := s.db.Get(registryKey(name)); err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return &store.NotFoundError{Queue: name}
		}
		return err
	}
	return nil
}

// nextSeq allocates the next sequence for a queue. Callers hold s.mu.
func (s *Store) nextSeq(name string) (uint64, error) {
	var last uint64
	meta, err := s.db.Get(metaKey(name))
	switch {
	case err == nil && len(meta) >= 8:
		last = binary.BigEndian.Uint64(meta[:8])
	case err != nil && !errors.Is(err, pebblestore.ErrNotFound):
		return 0, err
	}
	return last + 1, nil
}

// putSeq stages the meta update for an allocated sequence.
func (s *Store) putSeq(b *pebble.Batch, name string, seq uint64) error {
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], seq)
	return b.Set(metaKey(name), meta[:], nil)
}

func (s *Store) countPrefix(prefix string) (int64, error) {
	lo, hi := keyRange(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	var n int64
	for ok := iter.First(); ok; ok = iter.Next() {
		n++
	}
	return n, nil
}

func (s *Store) messageAge(name string, seq uint64, now time.Time) (time.Duration, bool) {
	val, err := s.db.Get(msgKey(name, seq))
	if err != nil {
		return 0, false
	}
	rec, ok := decodeRecord(val)
	if !ok {
		return 0, false
	}
	return now.Sub(time.UnixMilli(rec.EnqueuedAtMs)), true
}
