// Package worker implements the queue processing loop.
//
// A Worker drains each requested queue in order, leasing one message at a
// time, running the queue's handler (validate, then handle), and resolving
// exactly one terminal outcome per handled message: archive, delete, or
// dead-letter re-enqueue. Each queue's drain cycle is bounded by a run
// budget (a maximum number of lease attempts and a wall-clock limit)
// checked cooperatively at the top of every cycle.
//
// Failed messages are replaced by a copy carrying error_message and
// stack_trace metadata, hidden for the error visibility window so they
// surface in a later run rather than within the current one. A failure of
// the dead-letter re-enqueue itself aborts the whole run: the failing
// message's state is ambiguous and continuing could lose or duplicate work.
package worker
