package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbusd/mbus/internal/handler"
	"github.com/mbusd/mbus/internal/message"
	"github.com/mbusd/mbus/internal/store"
	logpkg "github.com/mbusd/mbus/pkg/log"
)

// fakeStore is an in-memory store.Store that records every terminal
// operation per message id.
type fakeStore struct {
	queues map[string][]*message.Message
	leased map[uint64]*message.Message
	nextID uint64

	archived     map[string][]uint64
	deleted      map[string][]uint64
	deadLettered []deadLetterCall

	dequeueCalls map[string]int
	enqueueErr   error // forced EnqueueError failure
	dequeueFail  error // forced Dequeue failure
}

type deadLetterCall struct {
	env        message.Envelope
	originalID uint64
	queue      string
	visibility time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		queues:       map[string][]*message.Message{},
		leased:       map[uint64]*message.Message{},
		archived:     map[string][]uint64{},
		deleted:      map[string][]uint64{},
		dequeueCalls: map[string]int{},
	}
}

func (f *fakeStore) add(queue, data string) uint64 {
	f.nextID++
	msg := &message.Message{
		ID:       f.nextID,
		Queue:    queue,
		Envelope: message.NewEnvelope(queue, json.RawMessage(data)),
	}
	f.queues[queue] = append(f.queues[queue], msg)
	return msg.ID
}

func (f *fakeStore) CreateQueue(context.Context, string, store.CreateOptions) error { return nil }
func (f *fakeStore) ListQueues(context.Context) ([]string, error)                   { return nil, nil }
func (f *fakeStore) DestroyQueue(context.Context, string) error                     { return nil }
func (f *fakeStore) PurgeQueue(context.Context, string) (int64, error)              { return 0, nil }
func (f *fakeStore) Enqueue(context.Context, message.Envelope) (uint64, error)      { return 0, nil }
func (f *fakeStore) Metrics(context.Context, string) (store.Metrics, error) {
	return store.Metrics{}, nil
}
func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) Dequeue(_ context.Context, name string, _ time.Duration) (*message.Message, error) {
	f.dequeueCalls[name]++
	if f.dequeueFail != nil {
		return nil, f.dequeueFail
	}
	pending := f.queues[name]
	if len(pending) == 0 {
		return nil, nil
	}
	msg := pending[0]
	f.queues[name] = pending[1:]
	f.leased[msg.ID] = msg
	msg.ReadCount++
	return msg, nil
}

func (f *fakeStore) Delete(_ context.Context, name string, id uint64) error {
	delete(f.leased, id)
	f.deleted[name] = append(f.deleted[name], id)
	return nil
}

func (f *fakeStore) Archive(_ context.Context, name string, id uint64) error {
	delete(f.leased, id)
	f.archived[name] = append(f.archived[name], id)
	return nil
}

func (f *fakeStore) EnqueueError(_ context.Context, env message.Envelope, originalID uint64, name string, vis time.Duration) (uint64, error) {
	if f.enqueueErr != nil {
		return 0, f.enqueueErr
	}
	delete(f.leased, originalID)
	f.deadLettered = append(f.deadLettered, deadLetterCall{env: env, originalID: originalID, queue: name, visibility: vis})
	f.nextID++
	return f.nextID, nil
}

// outcomes counts terminal operations recorded for one message id.
func (f *fakeStore) outcomes(queue string, id uint64) int {
	n := 0
	for _, a := range f.archived[queue] {
		if a == id {
			n++
		}
	}
	for _, d := range f.deleted[queue] {
		if d == id {
			n++
		}
	}
	for _, dl := range f.deadLettered {
		if dl.originalID == id {
			n++
		}
	}
	return n
}

func quietLogger() logpkg.Logger {
	return logpkg.NewLogger(logpkg.WithLevel(logpkg.FatalLevel))
}

func okHandler() handler.Handler {
	return handler.Func(func(context.Context, *message.Message) error { return nil })
}

func newWorker(st store.Store, handlers map[string]handler.Handler, opts Options) *Worker {
	return New(st, handlers, quietLogger(), opts)
}

func TestBudgetMaxMessages(t *testing.T) {
	st := newFakeStore()
	w := newWorker(st, map[string]handler.Handler{"orders": okHandler()}, Options{MaxMessages: 5})

	require.NoError(t, w.Run(context.Background(), []string{"orders"}))
	// Empty reads still consume the budget.
	assert.Equal(t, 5, st.dequeueCalls["orders"])
}

func TestBudgetMaxRuntime(t *testing.T) {
	st := newFakeStore()
	w := newWorker(st, map[string]handler.Handler{"orders": okHandler()}, Options{
		MaxMessages: 1000,
		MaxRuntime:  250 * time.Millisecond,
	})

	// Deterministic clock: every observation advances time by 100ms.
	now := time.UnixMilli(0)
	w.now = func() time.Time {
		now = now.Add(100 * time.Millisecond)
		return now
	}

	require.NoError(t, w.Run(context.Background(), []string{"orders"}))
	// Start observed at 100ms; the checks at 200ms and 300ms are within
	// the 250ms budget, the check at 400ms is not: two attempts.
	assert.Equal(t, 2, st.dequeueCalls["orders"])
	assert.Less(t, st.dequeueCalls["orders"], 1000)
}

func TestSuccessArchivesExactlyOnce(t *testing.T) {
	st := newFakeStore()
	id := st.add("orders", `{"id":1}`)
	w := newWorker(st, map[string]handler.Handler{"orders": okHandler()}, Options{MaxMessages: 1})

	require.NoError(t, w.Run(context.Background(), []string{"orders"}))
	assert.Equal(t, []uint64{id}, st.archived["orders"])
	assert.Empty(t, st.deleted["orders"])
	assert.Empty(t, st.deadLettered)
	assert.Equal(t, 1, st.outcomes("orders", id))

	// Second run over the now-empty queue exits clean after the empty read.
	w2 := newWorker(st, map[string]handler.Handler{"orders": okHandler()}, Options{MaxMessages: 1})
	require.NoError(t, w2.Run(context.Background(), []string{"orders"}))
	assert.Equal(t, 1, st.outcomes("orders", id))
}

func TestDeleteOnSuccess(t *testing.T) {
	st := newFakeStore()
	id := st.add("orders", `{}`)
	w := newWorker(st, map[string]handler.Handler{"orders": okHandler()}, Options{
		MaxMessages:     1,
		DeleteOnSuccess: true,
	})

	require.NoError(t, w.Run(context.Background(), []string{"orders"}))
	assert.Equal(t, []uint64{id}, st.deleted["orders"])
	assert.Empty(t, st.archived["orders"])
	assert.Equal(t, 1, st.outcomes("orders", id))
}

func TestHandlingFailureDeadLetters(t *testing.T) {
	st := newFakeStore()
	id := st.add("orders", `{"n":  1}`)
	boom := handler.Func(func(context.Context, *message.Message) error { return errors.New("boom") })
	w := newWorker(st, map[string]handler.Handler{"orders": boom}, Options{
		MaxMessages:            2,
		MaxRuntime:             600 * time.Second,
		ErrorVisibilityTimeout: 601 * time.Second,
	})

	require.NoError(t, w.Run(context.Background(), []string{"orders"}))
	require.Len(t, st.deadLettered, 1)
	dl := st.deadLettered[0]
	assert.Equal(t, id, dl.originalID)
	assert.Equal(t, "orders", dl.queue)
	assert.Equal(t, 601*time.Second, dl.visibility)
	assert.Equal(t, "boom", dl.env.Meta.ErrorMessage)
	assert.NotEmpty(t, dl.env.Meta.StackTrace)
	// Payload bytes preserved exactly, odd spacing included.
	assert.Equal(t, `{"n":  1}`, string(dl.env.Data))
	assert.Equal(t, 1, st.outcomes("orders", id))
}

func TestValidationFailureOutsideValidateOnlyDeadLetters(t *testing.T) {
	st := newFakeStore()
	st.add("orders", `{}`)

	h := struct {
		handler.Handler
		handler.Validator
	}{
		Handler: handler.Func(func(context.Context, *message.Message) error {
			t.Fatal("handle must not run after failed validation")
			return nil
		}),
		Validator: validatorFunc(func(context.Context, *message.Message) error {
			return errors.New("bad shape")
		}),
	}

	w := newWorker(st, map[string]handler.Handler{"orders": h}, Options{MaxMessages: 1})
	require.NoError(t, w.Run(context.Background(), []string{"orders"}))
	require.Len(t, st.deadLettered, 1)
	assert.Equal(t, "bad shape", st.deadLettered[0].env.Meta.ErrorMessage)
}

type validatorFunc func(ctx context.Context, msg *message.Message) error

func (f validatorFunc) Validate(ctx context.Context, msg *message.Message) error {
	return f(ctx, msg)
}

func TestValidateOnlyIsNonDestructive(t *testing.T) {
	st := newFakeStore()
	id := st.add("orders", `{}`)

	handled := false
	h := struct {
		handler.Handler
		handler.Validator
	}{
		Handler: handler.Func(func(context.Context, *message.Message) error {
			handled = true
			return nil
		}),
		Validator: validatorFunc(func(context.Context, *message.Message) error {
			return errors.New("invalid")
		}),
	}

	w := newWorker(st, map[string]handler.Handler{"orders": h}, Options{
		MaxMessages:  1,
		ValidateOnly: true,
	})
	require.NoError(t, w.Run(context.Background(), []string{"orders"}))

	assert.False(t, handled, "handle must not run in validate-only mode")
	assert.Zero(t, st.outcomes("orders", id), "no terminal outcome in validate-only mode")
	assert.Contains(t, st.leased, id, "message stays under its lease")
}

func TestValidateOnlySkipsHandleOnSuccess(t *testing.T) {
	st := newFakeStore()
	id := st.add("orders", `{}`)

	handled := false
	h := struct {
		handler.Handler
		handler.Validator
	}{
		Handler: handler.Func(func(context.Context, *message.Message) error {
			handled = true
			return nil
		}),
		Validator: validatorFunc(func(context.Context, *message.Message) error { return nil }),
	}

	w := newWorker(st, map[string]handler.Handler{"orders": h}, Options{
		MaxMessages:  1,
		ValidateOnly: true,
	})
	require.NoError(t, w.Run(context.Background(), []string{"orders"}))
	assert.False(t, handled)
	assert.Zero(t, st.outcomes("orders", id))
}

func TestDeadLetterFailureIsFatal(t *testing.T) {
	st := newFakeStore()
	st.add("orders", `{}`)
	st.add("orders", `{}`) // never reached
	st.enqueueErr = errors.New("store outage")

	boom := handler.Func(func(context.Context, *message.Message) error { return errors.New("boom") })
	w := newWorker(st, map[string]handler.Handler{"orders": boom}, Options{MaxMessages: 10})

	err := w.Run(context.Background(), []string{"orders"})
	var fatal *DeadLetterFailure
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "orders", fatal.Queue)
	assert.EqualError(t, fatal.HandlingErr, "boom")
	assert.ErrorIs(t, fatal, st.enqueueErr)
	// The run aborted: the second message was never attempted.
	assert.Equal(t, 1, st.dequeueCalls["orders"])
}

func TestFailureThenNextMessage(t *testing.T) {
	st := newFakeStore()
	first := st.add("orders", `{"n":1}`)
	second := st.add("orders", `{"n":2}`)

	calls := 0
	flaky := handler.Func(func(_ context.Context, msg *message.Message) error {
		calls++
		if msg.ID == first {
			return errors.New("boom")
		}
		return nil
	})
	w := newWorker(st, map[string]handler.Handler{"orders": flaky}, Options{MaxMessages: 10})

	require.NoError(t, w.Run(context.Background(), []string{"orders"}))
	assert.Equal(t, 2, calls)
	require.Len(t, st.deadLettered, 1)
	assert.Equal(t, first, st.deadLettered[0].originalID)
	assert.Equal(t, []uint64{second}, st.archived["orders"])
}

func TestTwoMessagesProcessedInLeaseOrder(t *testing.T) {
	st := newFakeStore()
	first := st.add("orders", `{"n":1}`)
	second := st.add("orders", `{"n":2}`)

	var order []uint64
	h := handler.Func(func(_ context.Context, msg *message.Message) error {
		order = append(order, msg.ID)
		return nil
	})
	w := newWorker(st, map[string]handler.Handler{"orders": h}, Options{MaxMessages: 10})

	require.NoError(t, w.Run(context.Background(), []string{"orders"}))
	assert.Equal(t, []uint64{first, second}, order)
	assert.Empty(t, st.queues["orders"])
}

func TestQueuesDrainedSequentially(t *testing.T) {
	st := newFakeStore()
	st.add("alpha", `{}`)
	st.add("beta", `{}`)

	var order []string
	h := handler.Func(func(_ context.Context, msg *message.Message) error {
		order = append(order, msg.Queue)
		return nil
	})
	w := newWorker(st, map[string]handler.Handler{"alpha": h, "beta": h}, Options{MaxMessages: 1})

	require.NoError(t, w.Run(context.Background(), []string{"beta", "alpha"}))
	assert.Equal(t, []string{"beta", "alpha"}, order)
}

func TestMissingHandlerIsFatal(t *testing.T) {
	st := newFakeStore()
	w := newWorker(st, map[string]handler.Handler{}, Options{MaxMessages: 1})
	err := w.Run(context.Background(), []string{"orders"})
	var unregistered *handler.UnregisteredQueueError
	require.ErrorAs(t, err, &unregistered)
	assert.Zero(t, st.dequeueCalls["orders"])
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	st := newFakeStore()
	st.add("orders", `{}`)
	w := newWorker(st, map[string]handler.Handler{"orders": okHandler()}, Options{MaxMessages: 50})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Run(ctx, []string{"orders"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, st.dequeueCalls["orders"], "no dequeue attempt after cancellation")
}

func TestRunStopsMidDrainOnCancel(t *testing.T) {
	st := newFakeStore()
	st.add("orders", `{"n":1}`)
	st.add("orders", `{"n":2}`)

	ctx, cancel := context.WithCancel(context.Background())
	h := handler.Func(func(context.Context, *message.Message) error {
		cancel()
		return nil
	})
	w := newWorker(st, map[string]handler.Handler{"orders": h}, Options{MaxMessages: 50})

	err := w.Run(ctx, []string{"orders"})
	require.ErrorIs(t, err, context.Canceled)
	// The in-flight message was still resolved; the next cycle was not.
	assert.Equal(t, 1, st.dequeueCalls["orders"])
	assert.Len(t, st.archived["orders"], 1)
}

func TestDequeueErrorIsFatal(t *testing.T) {
	st := newFakeStore()
	st.dequeueFail = errors.New("connection lost")
	w := newWorker(st, map[string]handler.Handler{"orders": okHandler()}, Options{MaxMessages: 5})

	err := w.Run(context.Background(), []string{"orders"})
	require.ErrorIs(t, err, st.dequeueFail)
	assert.Equal(t, 1, st.dequeueCalls["orders"])
}

func TestResolveOutcome(t *testing.T) {
	assert.Equal(t, OutcomeArchive, resolveOutcome(nil, false).Outcome)
	assert.Equal(t, OutcomeDelete, resolveOutcome(nil, true).Outcome)

	res := resolveOutcome(errors.New("boom"), false)
	assert.Equal(t, OutcomeDeadLetter, res.Outcome)
	assert.Equal(t, "boom", res.ErrorMessage)
	assert.NotEmpty(t, res.StackTrace)
}
