package message

import (
	"encoding/json"
	"errors"
	"time"
)

// Meta is the structured metadata attached to every message.
// QueueName routes the message, including on dead-letter re-enqueue.
type Meta struct {
	QueueName        string `json:"queue_name"`
	CorrelationID    *int64 `json:"correlation_id,omitempty"`
	CorrelationQueue string `json:"correlation_queue,omitempty"`
	ErrorMessage     string `json:"error_message,omitempty"`
	StackTrace       string `json:"stack_trace,omitempty"`
	TargetID         string `json:"target_id,omitempty"`
	Version          string `json:"version,omitempty"`
}

// WithError returns a copy of the meta with error fields set. The receiver
// is not mutated.
func (m Meta) WithError(errMsg, stackTrace string) Meta {
	m.ErrorMessage = errMsg
	m.StackTrace = stackTrace
	return m
}

// Envelope is the wire shape of an enqueued message:
//
//	{ "data": <arbitrary JSON>, "meta": { "queue_name": ..., ... } }
//
// Data is raw JSON and is never interpreted or rewritten by the core.
type Envelope struct {
	Data json.RawMessage `json:"data"`
	Meta Meta            `json:"meta"`
}

// NewEnvelope builds an envelope for the given queue and raw JSON payload.
func NewEnvelope(queue string, data json.RawMessage) Envelope {
	return Envelope{Data: data, Meta: Meta{QueueName: queue}}
}

// Encode serializes the envelope to its wire JSON.
func (e Envelope) Encode() ([]byte, error) {
	if e.Meta.QueueName == "" {
		return nil, errors.New("message: meta.queue_name is required")
	}
	return json.Marshal(e)
}

// DecodeEnvelope parses wire JSON into an Envelope.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, err
	}
	if e.Meta.QueueName == "" {
		return Envelope{}, errors.New("message: meta.queue_name is required")
	}
	return e, nil
}

// Message is a stored message as returned by a leased dequeue.
type Message struct {
	// ID is assigned by the store at enqueue time, unique within the queue.
	ID uint64
	// Queue is the queue the message was read from.
	Queue string
	// EnqueuedAt is when the store accepted the message.
	EnqueuedAt time.Time
	// ReadCount is how many times the message has been leased, this read included.
	ReadCount int

	Envelope
}
