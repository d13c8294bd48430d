package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/mbusd/mbus/internal/handler"
	"github.com/mbusd/mbus/internal/message"
	"github.com/mbusd/mbus/internal/store"
	"github.com/mbusd/mbus/pkg/id"
	logpkg "github.com/mbusd/mbus/pkg/log"
)

// Options bounds and configures one worker run.
type Options struct {
	// MaxMessages caps dequeue attempts per queue. Empty reads count:
	// the budget bounds worst-case runtime, not successful work.
	MaxMessages int
	// MaxRuntime caps wall-clock time per queue, checked at the top of
	// each cycle; an in-flight handler call is never interrupted.
	MaxRuntime time.Duration
	// VisibilityTimeout is the lease window for dequeued messages. It must
	// exceed the expected per-message processing latency.
	VisibilityTimeout time.Duration
	// ErrorVisibilityTimeout hides dead-lettered copies. Set it above
	// MaxRuntime so they never re-surface within the run that failed them.
	ErrorVisibilityTimeout time.Duration
	// DeleteOnSuccess deletes handled messages instead of archiving them.
	DeleteOnSuccess bool
	// ValidateOnly runs only the validation phase; messages are left under
	// their lease and no terminal outcome is taken.
	ValidateOnly bool
}

// The default error visibility window is one second longer than the
// runtime budget.
func (o Options) withDefaults() Options {
	if o.MaxMessages <= 0 {
		o.MaxMessages = 100
	}
	if o.MaxRuntime <= 0 {
		o.MaxRuntime = 600 * time.Second
	}
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = 300 * time.Second
	}
	if o.ErrorVisibilityTimeout <= 0 {
		o.ErrorVisibilityTimeout = o.MaxRuntime + time.Second
	}
	return o
}

// DeadLetterFailure reports a failed dead-letter re-enqueue. It carries both
// the original handling error and the store error; the run aborts because
// the failing message's state is ambiguous.
type DeadLetterFailure struct {
	Queue       string
	MessageID   uint64
	HandlingErr error
	StoreErr    error
}

func (e *DeadLetterFailure) Error() string {
	return fmt.Sprintf("dead-letter re-enqueue failed for message %d on queue %q: %v (handling error: %v)",
		e.MessageID, e.Queue, e.StoreErr, e.HandlingErr)
}

func (e *DeadLetterFailure) Unwrap() error { return e.StoreErr }

var runIDs = id.NewGenerator()

// Worker drains queues sequentially against a store using resolved handlers.
type Worker struct {
	store    store.Store
	handlers map[string]handler.Handler
	logger   logpkg.Logger
	opts     Options
	runID    string

	// now is the clock for budget checks. Overridable in tests.
	now func() time.Time
}

// New creates a worker for the given store and resolved handler set.
func New(st store.Store, handlers map[string]handler.Handler, logger logpkg.Logger, opts Options) *Worker {
	runID := runIDs.Next().String()
	return &Worker{
		store:    st,
		handlers: handlers,
		logger:   logger.WithComponent("worker").With(logpkg.F("run_id", runID)),
		opts:     opts.withDefaults(),
		runID:    runID,
		now:      time.Now,
	}
}

// RunID identifies this worker invocation in logs.
func (w *Worker) RunID() string { return w.runID }

// Run drains each queue in the caller-supplied order. It returns on the
// first fatal error: a store failure, a queue with no resolved handler, or
// a failed dead-letter re-enqueue.
func (w *Worker) Run(ctx context.Context, queueNames []string) error {
	for _, q := range queueNames {
		h, ok := w.handlers[q]
		if !ok {
			return &handler.UnregisteredQueueError{Queue: q}
		}
		if err := w.drainQueue(ctx, q, h); err != nil {
			return err
		}
	}
	return nil
}

// drainQueue runs one bounded drain cycle over a single queue.
func (w *Worker) drainQueue(ctx context.Context, queue string, h handler.Handler) error {
	logger := w.logger.With(logpkg.F("queue", queue))
	logger.Info("draining queue",
		logpkg.F("max_messages", w.opts.MaxMessages),
		logpkg.F("max_runtime", w.opts.MaxRuntime.String()),
	)

	start := w.now()
	attempts := 0
	for w.now().Sub(start) < w.opts.MaxRuntime && attempts < w.opts.MaxMessages {
		// Cancellation is cooperative, like the budget: checked here, never
		// mid-handler.
		if err := ctx.Err(); err != nil {
			return err
		}

		// The attempt counts against the budget even when the read comes
		// back empty: "at most N leases", not "N messages processed".
		attempts++

		msg, err := w.store.Dequeue(ctx, queue, w.opts.VisibilityTimeout)
		if err != nil {
			return fmt.Errorf("dequeue from %q: %w", queue, err)
		}
		if msg == nil {
			continue
		}

		if err := w.processMessage(ctx, logger, queue, h, msg); err != nil {
			return err
		}
	}
	logger.Info("queue drain finished",
		logpkg.F("attempts", attempts),
		logpkg.F("elapsed", w.now().Sub(start).String()),
	)
	return nil
}

// processMessage runs validate/handle for one leased message and applies
// exactly one terminal outcome. A nil return continues the drain cycle.
func (w *Worker) processMessage(ctx context.Context, logger logpkg.Logger, queue string, h handler.Handler, msg *message.Message) error {
	logger = logger.With(logpkg.F("id", msg.ID))

	verr := handler.Validate(ctx, h, msg)
	if w.opts.ValidateOnly {
		if verr != nil {
			// Recovered locally: the message stays leased and re-surfaces
			// when the visibility timeout lapses.
			res := resolveOutcome(verr, false)
			logger.Error("validation failed",
				logpkg.F("error", res.ErrorMessage),
				logpkg.F("payload", string(msg.Data)),
				logpkg.F("stack_trace", res.StackTrace),
			)
			return nil
		}
		logger.Info("validation passed")
		return nil
	}

	herr := verr
	if herr == nil {
		herr = handler.Handle(ctx, h, msg)
	}

	res := resolveOutcome(herr, w.opts.DeleteOnSuccess)
	switch res.Outcome {
	case OutcomeArchive:
		if err := w.store.Archive(ctx, queue, msg.ID); err != nil {
			return fmt.Errorf("archive message %d on %q: %w", msg.ID, queue, err)
		}
		logger.Info("message archived")
	case OutcomeDelete:
		if err := w.store.Delete(ctx, queue, msg.ID); err != nil {
			return fmt.Errorf("delete message %d on %q: %w", msg.ID, queue, err)
		}
		logger.Info("message deleted")
	case OutcomeDeadLetter:
		logger.Error("handling failed", logpkg.F("error", res.ErrorMessage))
		return w.deadLetter(ctx, logger, queue, msg, herr, res)
	}
	return nil
}

// deadLetter replaces the failed message with an error-annotated copy.
func (w *Worker) deadLetter(ctx context.Context, logger logpkg.Logger, queue string, msg *message.Message, herr error, res Resolution) error {
	augmented := msg.Envelope
	augmented.Meta = augmented.Meta.WithError(res.ErrorMessage, res.StackTrace)

	newID, err := w.store.EnqueueError(ctx, augmented, msg.ID, queue, w.opts.ErrorVisibilityTimeout)
	if err != nil {
		fatal := &DeadLetterFailure{Queue: queue, MessageID: msg.ID, HandlingErr: herr, StoreErr: err}
		logger.Error("dead-letter re-enqueue failed",
			logpkg.F("handling_error", herr.Error()),
			logpkg.F("store_error", err.Error()),
		)
		return fatal
	}
	logger.Info("message dead-lettered", logpkg.F("new_id", newID))
	return nil
}
