package worker

import (
	"runtime/debug"
)

// Outcome is the terminal resolution for one handled message.
type Outcome int

const (
	// OutcomeArchive moves the message to the durable archive (success default).
	OutcomeArchive Outcome = iota
	// OutcomeDelete permanently removes the message (success with delete mode).
	OutcomeDelete
	// OutcomeDeadLetter replaces the message with an error-annotated copy.
	OutcomeDeadLetter
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeArchive:
		return "archive"
	case OutcomeDelete:
		return "delete"
	case OutcomeDeadLetter:
		return "dead-letter"
	default:
		return "unknown"
	}
}

// Resolution pairs an outcome with the error metadata for the dead-letter
// case.
type Resolution struct {
	Outcome      Outcome
	ErrorMessage string
	StackTrace   string
}

// resolveOutcome maps a handling result to its terminal outcome. Success is
// archive or delete depending on deleteOnSuccess; any failure dead-letters
// with a rendered description and a captured stack trace.
func resolveOutcome(handlingErr error, deleteOnSuccess bool) Resolution {
	if handlingErr == nil {
		if deleteOnSuccess {
			return Resolution{Outcome: OutcomeDelete}
		}
		return Resolution{Outcome: OutcomeArchive}
	}
	return Resolution{
		Outcome:      OutcomeDeadLetter,
		ErrorMessage: handlingErr.Error(),
		StackTrace:   string(debug.Stack()),
	}
}
