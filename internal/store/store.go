package store

import (
	"context"
	"fmt"
	"time"

	"github.com/mbusd/mbus/internal/message"
)

// NotFoundError reports a queue that does not exist in the store.
type NotFoundError struct {
	Queue string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("queue %q does not exist", e.Queue)
}

// MessageNotFoundError reports a message id absent from a queue.
type MessageNotFoundError struct {
	Queue string
	ID    uint64
}

func (e *MessageNotFoundError) Error() string {
	return fmt.Sprintf("message %d not found in queue %q", e.ID, e.Queue)
}

// CreateOptions carries backend-specific queue creation knobs. The Pebble
// backend records them on the queue registry entry; other backends may use
// them for partitioning or retention settings.
type CreateOptions map[string]string

// Metrics is the aggregate view of one queue.
type Metrics struct {
	Queue string `json:"queue"`
	// QueueLength counts messages currently visible to Dequeue.
	QueueLength int64 `json:"queue_length"`
	// LeasedLength counts messages currently hidden by an active lease.
	LeasedLength int64 `json:"leased_length"`
	// TotalMessages counts every message ever accepted by the queue.
	TotalMessages int64 `json:"total_messages"`
	// ArchivedMessages counts messages moved to the archive.
	ArchivedMessages int64 `json:"archived_messages"`
	// OldestVisibleAge / NewestVisibleAge are zero when the queue is empty.
	OldestVisibleAge time.Duration `json:"oldest_visible_age"`
	NewestVisibleAge time.Duration `json:"newest_visible_age"`
}

// Store is the queue storage contract.
//
// Dequeue returns (nil, nil) when no message is visible; it never blocks
// waiting for one. All ids are unique within their queue and never reused.
type Store interface {
	// CreateQueue creates the named queue. Creating an existing queue is a no-op.
	CreateQueue(ctx context.Context, name string, opts CreateOptions) error
	// ListQueues returns the names of all existing queues, sorted.
	ListQueues(ctx context.Context) ([]string, error)
	// DestroyQueue removes the queue and all of its data, archive included.
	DestroyQueue(ctx context.Context, name string) error
	// PurgeQueue removes all active messages and returns how many were removed.
	PurgeQueue(ctx context.Context, name string) (int64, error)

	// Enqueue appends the envelope to the queue named in its meta and
	// returns the new message id.
	Enqueue(ctx context.Context, env message.Envelope) (uint64, error)
	// Dequeue leases one message for the visibility window. While leased the
	// message is invisible to other Dequeue calls on the queue; if the lease
	// expires before a terminal operation the message becomes visible again.
	Dequeue(ctx context.Context, name string, visibility time.Duration) (*message.Message, error)
	// Delete permanently removes the message.
	Delete(ctx context.Context, name string, id uint64) error
	// Archive moves the message out of the active queue into the durable archive.
	Archive(ctx context.Context, name string, id uint64) error
	// EnqueueError atomically enqueues the (augmented) envelope as a new
	// message hidden for errorVisibility, and removes the original. Returns
	// the new message id.
	EnqueueError(ctx context.Context, env message.Envelope, originalID uint64, name string, errorVisibility time.Duration) (uint64, error)

	// Metrics returns aggregate counts for the queue.
	Metrics(ctx context.Context, name string) (Metrics, error)

	// Close releases the underlying storage.
	Close() error
}
